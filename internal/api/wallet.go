package api

import (
	"errors"   // Error inspection
	"net/http" // HTTP status codes
	"strconv"  // Cache key building
	"time"     // Cache TTL

	"p2p_wallet/internal/domain" // Domain models
	"p2p_wallet/internal/ledger" // Transfer engine
	"p2p_wallet/internal/users"  // Profile cache invalidation
	"p2p_wallet/internal/utils"  // Cache, idempotency and response helpers

	"github.com/gin-gonic/gin"      // Gin web framework
	"github.com/redis/go-redis/v9"  // Redis client
	"github.com/shopspring/decimal" // Money amounts
	"github.com/sirupsen/logrus"    // Structured logging
)

// IdempotencyHeader lets clients retry POST /transactions/create safely
const IdempotencyHeader = "Idempotency-Key"

const historyCacheTTL = 60 * time.Second

// TransferRequest is the body of POST /transactions/create
type TransferRequest struct {
	ReceiverDNI string          `json:"receiver_dni"`       // Credited user
	Amount      decimal.Decimal `json:"amount"`             // Positive, two decimals at most
	Message     string          `json:"message"`            // Free text
	CardNumber  string          `json:"credit_card_number"` // Caller's funding card
}

// PendingTransferRequest is the body of POST /transactions/createrequest
type PendingTransferRequest struct {
	CounterpartyDNI string          `json:"counterparty_dni"` // Other party of the transfer
	Amount          decimal.Decimal `json:"amount"`           // Positive, two decimals at most
	Message         string          `json:"message"`          // Free text
	Direction       string          `json:"direction"`        // request (default) or offer
}

// AcceptRequest is the body of POST /transactions/acceptrequest/:id
type AcceptRequest struct {
	CardNumber string `json:"credit_card_number"` // Caller's funding card
}

// historyPage is the cached body of GET /transactions/me
type historyPage struct {
	Transactions []domain.TransactionView `json:"transactions"`
	Page         int                      `json:"page"`
	PageSize     int                      `json:"page_size"`
	Total        int64                    `json:"total"`
	TotalPages   int                      `json:"total_pages"`
	Cached       bool                     `json:"cached"`
}

// CreateTransferHandler sends money from the caller right away.
// With an Idempotency-Key header a retried request replays the first response instead of paying twice.
func CreateTransferHandler(engine *ledger.Engine, profiles *users.Service, rdb *redis.Client, idem *utils.IdempotencyStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		caller, ok := callerOrAbort(c)
		if !ok {
			return
		}
		var req TransferRequest
		if !bindJSON(c, &req) {
			return
		}
		ctx := c.Request.Context()
		key := c.GetHeader(IdempotencyHeader)
		fingerprint := utils.Fingerprint(req.ReceiverDNI, req.Amount.String(), req.CardNumber, req.Message)
		if key != "" {
			stored, err := idem.Begin(ctx, caller.DNI(), key, fingerprint)
			if errors.Is(err, utils.ErrIdempotencyInFlight) {
				utils.RespondStatus(c, http.StatusConflict, "Request with this idempotency key is in progress")
				return
			} else if errors.Is(err, utils.ErrIdempotencyMismatch) {
				utils.RespondStatus(c, http.StatusUnprocessableEntity, "Idempotency key was already used with a different request")
				return
			} else if err != nil {
				utils.RespondError(c, err)
				return
			}
			if stored != nil {
				c.Header("Idempotent-Replayed", "true")
				c.Data(stored.Status, "application/json; charset=utf-8", stored.Body)
				return
			}
		}
		view, err := engine.CreateDirectTransfer(ctx, caller, ledger.DirectTransfer{
			ReceiverDNI: req.ReceiverDNI,
			Amount:      req.Amount,
			CardNumber:  req.CardNumber,
			Message:     req.Message,
		})
		// the request context may already be gone, the key must not stay reserved
		bg, cancel := detached(ctx)
		defer cancel()
		if err != nil {
			if key != "" {
				// failures are not remembered, the client may retry with the same key
				if relErr := idem.Release(bg, caller.DNI(), key); relErr != nil {
					logrus.WithError(relErr).Warn("Failed to release idempotency key")
				}
			}
			utils.RespondError(c, err)
			return
		}
		if key != "" {
			if err := idem.Complete(bg, caller.DNI(), key, fingerprint, http.StatusCreated, view); err != nil {
				logrus.WithError(err).Warn("Failed to store idempotent response")
			}
		}
		invalidateTransfers(bg, rdb, profiles, view.SenderDNI, view.ReceiverDNI)
		c.JSON(http.StatusCreated, view)
	}
}

// CreateTransferRequestHandler opens a PENDING transfer with another user
func CreateTransferRequestHandler(engine *ledger.Engine, profiles *users.Service, rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		caller, ok := callerOrAbort(c)
		if !ok {
			return
		}
		var req PendingTransferRequest
		if !bindJSON(c, &req) {
			return
		}
		direction, err := ledger.ParseDirection(req.Direction)
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		view, err := engine.CreateTransferRequest(c.Request.Context(), caller, ledger.TransferRequest{
			CounterpartyDNI: req.CounterpartyDNI,
			Amount:          req.Amount,
			Message:         req.Message,
			Direction:       direction,
		})
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		invalidateTransfers(c.Request.Context(), rdb, profiles, view.SenderDNI, view.ReceiverDNI)
		c.JSON(http.StatusCreated, view)
	}
}

// AcceptTransferRequestHandler funds a PENDING transfer with one of the caller's cards
func AcceptTransferRequestHandler(engine *ledger.Engine, profiles *users.Service, rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		caller, ok := callerOrAbort(c)
		if !ok {
			return
		}
		id, ok := idParam(c, "id", "Request not found")
		if !ok {
			return
		}
		var req AcceptRequest
		if !bindJSON(c, &req) {
			return
		}
		view, err := engine.AcceptTransferRequest(c.Request.Context(), caller, id, req.CardNumber)
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		invalidateTransfers(c.Request.Context(), rdb, profiles, view.SenderDNI, view.ReceiverDNI)
		c.JSON(http.StatusOK, view)
	}
}

func closeRequestHandler(profiles *users.Service, rdb *redis.Client, settle func(*gin.Context, domain.Caller, uint) (*domain.TransactionView, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		caller, ok := callerOrAbort(c)
		if !ok {
			return
		}
		id, ok := idParam(c, "id", "Request not found")
		if !ok {
			return
		}
		view, err := settle(c, caller, id)
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		invalidateTransfers(c.Request.Context(), rdb, profiles, view.SenderDNI, view.ReceiverDNI)
		c.JSON(http.StatusOK, view)
	}
}

// RejectTransferRequestHandler declines a PENDING transfer; only its sender may
func RejectTransferRequestHandler(engine *ledger.Engine, profiles *users.Service, rdb *redis.Client) gin.HandlerFunc {
	return closeRequestHandler(profiles, rdb, func(c *gin.Context, caller domain.Caller, id uint) (*domain.TransactionView, error) {
		return engine.RejectTransferRequest(c.Request.Context(), caller, id)
	})
}

// RevokeTransferRequestHandler withdraws a PENDING transfer; only its initiator may
func RevokeTransferRequestHandler(engine *ledger.Engine, profiles *users.Service, rdb *redis.Client) gin.HandlerFunc {
	return closeRequestHandler(profiles, rdb, func(c *gin.Context, caller domain.Caller, id uint) (*domain.TransactionView, error) {
		return engine.RevokeTransferRequest(c.Request.Context(), caller, id)
	})
}

// TransactionHistoryHandler returns the caller's transfers, paginated and cached in Redis.
// ?status=completed restricts the history to settled money movements.
func TransactionHistoryHandler(engine *ledger.Engine, rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		caller, ok := callerOrAbort(c)
		if !ok {
			return
		}
		ctx := c.Request.Context()
		page := utils.PageFromQuery(c)
		completed := c.Query("status") == "completed"
		cacheKey := utils.TransactionsCachePrefix + caller.DNI() + ":completed=" + strconv.FormatBool(completed) +
			":page=" + strconv.Itoa(page.Page) + ":size=" + strconv.Itoa(page.PageSize)

		var cached historyPage
		if found, err := utils.GetCache(ctx, rdb, cacheKey, &cached); err == nil && found {
			cached.Cached = true
			c.JSON(http.StatusOK, cached)
			return
		}
		views, total, err := engine.ListTransfers(ctx, caller, ledger.ListFilter{CompletedOnly: completed, Page: page})
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		resp := historyPage{
			Transactions: views,
			Page:         page.Page,
			PageSize:     page.PageSize,
			Total:        total,
			TotalPages:   totalPages(total, page.PageSize),
		}
		_ = utils.SetCache(ctx, rdb, cacheKey, resp, historyCacheTTL)
		c.JSON(http.StatusOK, resp)
	}
}

// PendingTransfersHandler lists PENDING transfers waiting for the caller to accept or reject
func PendingTransfersHandler(engine *ledger.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		caller, ok := callerOrAbort(c)
		if !ok {
			return
		}
		views, err := engine.ListPending(c.Request.Context(), caller)
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"transactions": views})
	}
}

// OutgoingTransfersHandler lists PENDING transfers the caller created
func OutgoingTransfersHandler(engine *ledger.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		caller, ok := callerOrAbort(c)
		if !ok {
			return
		}
		views, err := engine.ListOutgoingRequests(c.Request.Context(), caller)
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"transactions": views})
	}
}

// GetTransactionHandler returns one transfer the caller takes part in
func GetTransactionHandler(engine *ledger.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		caller, ok := callerOrAbort(c)
		if !ok {
			return
		}
		id, ok := idParam(c, "id", "Transaction not found")
		if !ok {
			return
		}
		view, err := engine.GetTransfer(c.Request.Context(), caller, id)
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		c.JSON(http.StatusOK, view)
	}
}
