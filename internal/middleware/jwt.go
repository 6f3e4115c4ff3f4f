package middleware

import (
	"context"  // Context for the user lookup
	"net/http" // HTTP status codes
	"strings"  // String manipulation

	"p2p_wallet/internal/domain" // Domain models
	"p2p_wallet/internal/users"  // Account messages
	"p2p_wallet/internal/utils"  // JWT and response helpers

	"github.com/gin-gonic/gin"   // Gin web framework
	"github.com/sirupsen/logrus" // Structured logging
)

// CallerKey is the gin context key holding the authenticated domain.Caller
const CallerKey = "caller"

// UserLoader loads the current state of a user
type UserLoader interface {
	Get(ctx context.Context, dni string) (*domain.User, error)
}

// JWTAuthMiddleware validates the bearer token and stores the caller of an active user in the context
func JWTAuthMiddleware(secret string, loader UserLoader) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization") // Get Authorization header
		if authHeader == "" || !strings.HasPrefix(authHeader, "Bearer ") {
			utils.RespondStatus(c, http.StatusUnauthorized, "Missing or invalid Authorization header")
			return
		}
		claims, err := utils.ParseJWT(strings.TrimPrefix(authHeader, "Bearer "), secret)
		if err != nil {
			utils.RespondStatus(c, http.StatusUnauthorized, "Invalid or expired token")
			return
		}
		// The token alone is not enough, the account must still exist and be active
		user, err := loader.Get(c.Request.Context(), claims.DNI)
		if err != nil {
			if _, ok := domain.AsAppError(err); ok {
				utils.RespondStatus(c, http.StatusUnauthorized, "Invalid or expired token")
				return
			}
			utils.RespondError(c, err)
			return
		}
		if !user.Active {
			logrus.WithField("user", user.DNI).Warn("Request from disabled account rejected")
			utils.RespondStatus(c, http.StatusForbidden, users.AccountDisabledMessage)
			return
		}
		c.Set(CallerKey, domain.CallerFor(user)) // Store caller in context
		c.Next()
	}
}

// CallerFrom returns the caller set by one of the auth middlewares
func CallerFrom(c *gin.Context) (domain.Caller, bool) {
	v, ok := c.Get(CallerKey)
	if !ok {
		return domain.Caller{}, false
	}
	caller, ok := v.(domain.Caller)
	return caller, ok && caller.Authenticated()
}
