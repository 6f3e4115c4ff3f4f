package api

import (
	"context"  // Context for cache invalidation
	"net/http" // HTTP status codes
	"strconv"  // Path parameter parsing
	"time"     // Bookkeeping timeout

	"p2p_wallet/internal/domain"     // Domain models
	"p2p_wallet/internal/middleware" // Caller extraction
	"p2p_wallet/internal/utils"      // Response and cache helpers

	"github.com/gin-gonic/gin"     // Gin web framework
	"github.com/redis/go-redis/v9" // Redis client
	"github.com/sirupsen/logrus"   // Structured logging
)

// callerOrAbort returns the authenticated caller, answering 401 when there is none
func callerOrAbort(c *gin.Context) (domain.Caller, bool) {
	caller, ok := middleware.CallerFrom(c)
	if !ok {
		utils.RespondStatus(c, http.StatusUnauthorized, "Unauthorized")
	}
	return caller, ok
}

// bindJSON decodes the request body, answering 400 on malformed input
func bindJSON(c *gin.Context, dest any) bool {
	if err := c.ShouldBindJSON(dest); err != nil {
		utils.RespondStatus(c, http.StatusBadRequest, "Invalid request")
		return false
	}
	return true
}

// idParam parses a numeric path parameter
func idParam(c *gin.Context, name, notFound string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		utils.RespondStatus(c, http.StatusNotFound, notFound)
		return 0, false
	}
	return uint(id), true
}

// totalPages for a listing of total rows
func totalPages(total int64, size int) int {
	if size <= 0 {
		return 0
	}
	return (int(total) + size - 1) / size
}

// bookkeepingTimeout bounds the Redis writes that run after the response is decided
const bookkeepingTimeout = 3 * time.Second

// detached keeps the values of ctx but not its cancellation or deadline
func detached(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), bookkeepingTimeout)
}

// invalidateTransfers drops cached views that a settled or created transfer makes stale
func invalidateTransfers(ctx context.Context, rdb *redis.Client, profiles interface{ Invalidate(context.Context, ...string) }, dnis ...string) {
	ctx, cancel := detached(ctx)
	defer cancel()
	profiles.Invalidate(ctx, dnis...)
	prefixes := []string{adminTxsKey, adminUsersKey}
	for _, dni := range dnis {
		prefixes = append(prefixes, utils.TransactionsCachePrefix+dni+":")
	}
	for _, prefix := range prefixes {
		if err := utils.DeletePrefix(ctx, rdb, prefix); err != nil {
			logrus.WithFields(logrus.Fields{"prefix": prefix, "error": err.Error()}).Warn("Failed to invalidate cache")
		}
	}
}
