package middleware

import (
	"context"
	"net/http"

	"p2p_wallet/internal/domain"
	"p2p_wallet/internal/utils"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
)

// APIKeyHeader carries the merchant key
const APIKeyHeader = "X-API-Key"

// KeyResolver maps a presented API key to its owner
type KeyResolver interface {
	Resolve(ctx context.Context, raw string) (domain.Caller, error)
}

type apiKeyBody struct {
	APIKey string `json:"api_key"`
}

// APIKeyMiddleware authenticates server to server calls by API key.
// The key is read from the X-API-Key header, falling back to the api_key body field;
// handlers behind it must bind the body with ShouldBindBodyWith.
func APIKeyMiddleware(keys KeyResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.GetHeader(APIKeyHeader)
		if raw == "" {
			var body apiKeyBody
			_ = c.ShouldBindBodyWith(&body, binding.JSON)
			raw = body.APIKey
		}
		if raw == "" {
			utils.RespondError(c, domain.NewError(http.StatusUnauthorized, domain.ErrUnauthenticated, "API key is required"))
			return
		}
		caller, err := keys.Resolve(c.Request.Context(), raw)
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		c.Set(CallerKey, caller)
		c.Next()
	}
}
