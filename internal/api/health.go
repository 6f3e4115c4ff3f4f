package api

import (
	"net/http"

	"p2p_wallet/internal/db"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// HealthHandler reports whether the database and Redis answer
func HealthHandler(gdb *gorm.DB, rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		status := gin.H{"database": "ok", "redis": "disabled"}
		healthy := true
		if err := db.Ping(ctx, gdb); err != nil {
			logrus.WithError(err).Error("Database health check failed")
			status["database"] = "unavailable"
			healthy = false
		}
		if rdb != nil {
			status["redis"] = "ok"
			if err := rdb.Ping(ctx).Err(); err != nil {
				logrus.WithError(err).Error("Redis health check failed")
				status["redis"] = "unavailable"
				healthy = false
			}
		}
		if !healthy {
			c.JSON(http.StatusServiceUnavailable, status)
			return
		}
		c.JSON(http.StatusOK, status)
	}
}
