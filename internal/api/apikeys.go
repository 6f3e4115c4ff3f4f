package api

import (
	"net/http"

	"p2p_wallet/internal/apikeys"
	"p2p_wallet/internal/domain"
	"p2p_wallet/internal/ledger"
	"p2p_wallet/internal/users"
	"p2p_wallet/internal/utils"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

// APIKeyRequest is the body of POST /api/requestkey
type APIKeyRequest struct {
	ApplicationName string `json:"application_name"`
}

// RotateKeyRequest is the body of PUT /api/updatekey
type RotateKeyRequest struct {
	APIKeyID string `json:"api_key_id"`
}

// PaymentRequest is the body of POST /api/payments/request
type PaymentRequest struct {
	SenderDNI string          `json:"sender_dni"` // Customer asked to pay the key owner
	Amount    decimal.Decimal `json:"amount"`
	Message   string          `json:"message"`
}

// CreateAPIKeyHandler issues a key; its secret is only shown in this response
func CreateAPIKeyHandler(svc *apikeys.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		caller, ok := callerOrAbort(c)
		if !ok {
			return
		}
		var req APIKeyRequest
		if !bindJSON(c, &req) {
			return
		}
		issued, err := svc.Create(c.Request.Context(), caller, req.ApplicationName)
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, issued)
	}
}

// ListAPIKeysHandler lists the caller's keys without secrets
func ListAPIKeysHandler(svc *apikeys.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		caller, ok := callerOrAbort(c)
		if !ok {
			return
		}
		keys, err := svc.List(c.Request.Context(), caller)
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		if keys == nil {
			keys = []domain.APIKey{}
		}
		c.JSON(http.StatusOK, gin.H{"api_keys": keys})
	}
}

// RotateAPIKeyHandler replaces the secret of a key
func RotateAPIKeyHandler(svc *apikeys.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		caller, ok := callerOrAbort(c)
		if !ok {
			return
		}
		var req RotateKeyRequest
		if !bindJSON(c, &req) {
			return
		}
		issued, err := svc.Rotate(c.Request.Context(), caller, req.APIKeyID)
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		c.JSON(http.StatusOK, issued)
	}
}

// DeleteAPIKeyHandler removes a key
func DeleteAPIKeyHandler(svc *apikeys.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		caller, ok := callerOrAbort(c)
		if !ok {
			return
		}
		if err := svc.Delete(c.Request.Context(), caller, c.Param("id")); err != nil {
			utils.RespondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "API key deleted"})
	}
}

// PaymentRequestHandler lets a merchant, authenticated by API key, ask a customer for money.
// The result is a PENDING request the customer accepts like any other.
func PaymentRequestHandler(engine *ledger.Engine, profiles *users.Service, rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		merchant, ok := callerOrAbort(c)
		if !ok {
			return
		}
		var req PaymentRequest
		// the key middleware may have read the body already
		if err := c.ShouldBindBodyWith(&req, binding.JSON); err != nil {
			utils.RespondStatus(c, http.StatusBadRequest, "Invalid request")
			return
		}
		view, err := engine.CreateTransferRequest(c.Request.Context(), merchant, ledger.TransferRequest{
			CounterpartyDNI: req.SenderDNI,
			Amount:          req.Amount,
			Message:         req.Message,
			Direction:       ledger.DirectionRequest,
		})
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		invalidateTransfers(c.Request.Context(), rdb, profiles, view.SenderDNI, view.ReceiverDNI)
		c.JSON(http.StatusCreated, view)
	}
}
