package middleware

import (
	"net/http" // HTTP status codes

	"p2p_wallet/internal/utils" // Response helpers

	"github.com/gin-gonic/gin" // Gin web framework
)

// AdminOnlyMiddleware lets through callers holding administrator rights.
// It must run after JWTAuthMiddleware, which reloads the user on each request.
func AdminOnlyMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		caller, ok := CallerFrom(c)
		if !ok {
			utils.RespondStatus(c, http.StatusUnauthorized, "Unauthorized")
			return
		}
		if !caller.IsAdmin() {
			utils.RespondStatus(c, http.StatusForbidden, "Admin access required")
			return
		}
		c.Next()
	}
}
