package api

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"testing"

	"p2p_wallet/internal/domain"
	"p2p_wallet/internal/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func walletFixture(t *testing.T) *harness {
	h := newHarness(t)
	h.seedUser(t, "A", "Ana", 100, false)
	h.seedUser(t, "B", "Bruno", 10, false)
	h.seedCard(t, cardA, "A")
	h.seedCard(t, cardB, "B")
	return h
}

func TestDirectTransfer(t *testing.T) {
	h := walletFixture(t)

	// warm the profile and history caches
	w := h.do(t, request{method: http.MethodGet, path: "/users/me", as: "A"})
	assertAmount(t, 100, decode[domain.User](t, w).Balance)
	w = h.do(t, request{method: http.MethodGet, path: "/transactions/me", as: "A"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, decode[historyPage](t, w).Cached)
	w = h.do(t, request{method: http.MethodGet, path: "/transactions/me", as: "A"})
	assert.True(t, decode[historyPage](t, w).Cached)

	w = h.do(t, request{method: http.MethodPost, path: "/transactions/create", as: "A", body: map[string]any{
		"receiver_dni": "B", "amount": 40, "message": "dinner", "credit_card_number": cardA,
	}})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	view := decode[domain.TransactionView](t, w)
	assert.Equal(t, domain.StatusCompleted, view.Status)
	assert.Equal(t, domain.TransactionSent, view.Type)
	assert.Equal(t, "Ana", view.SenderName)
	assert.Equal(t, "Bruno", view.ReceiverName)
	assert.Equal(t, "1111", view.CardLast4)

	assertAmount(t, 60, h.balance(t, "A"))
	assertAmount(t, 50, h.balance(t, "B"))

	// both caches were dropped by the transfer
	w = h.do(t, request{method: http.MethodGet, path: "/users/me", as: "A"})
	assertAmount(t, 60, decode[domain.User](t, w).Balance)
	w = h.do(t, request{method: http.MethodGet, path: "/transactions/me", as: "A"})
	history := decode[historyPage](t, w)
	assert.False(t, history.Cached)
	require.Len(t, history.Transactions, 1)
	assert.Equal(t, int64(1), history.Total)

	w = h.do(t, request{method: http.MethodGet, path: fmt.Sprintf("/transactions/%d", view.ID), as: "B"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, view.ID, decode[domain.TransactionView](t, w).ID)
}

func TestTransferErrors(t *testing.T) {
	h := walletFixture(t)
	h.seedUser(t, "C", "Carla", 0, false)

	tests := []struct {
		name    string
		as      string
		body    map[string]any
		status  int
		message string
	}{
		{"zero amount", "A", map[string]any{"receiver_dni": "B", "amount": 0, "credit_card_number": cardA}, http.StatusBadRequest, "Amount must be greater than zero"},
		{"unknown receiver", "A", map[string]any{"receiver_dni": "Z", "amount": 5, "credit_card_number": cardA}, http.StatusNotFound, "Receiver not found"},
		{"self", "A", map[string]any{"receiver_dni": "A", "amount": 5, "credit_card_number": cardA}, http.StatusBadRequest, "Cannot send money to yourself"},
		{"insufficient funds", "C", map[string]any{"receiver_dni": "A", "amount": 5, "credit_card_number": cardA}, http.StatusBadRequest, "Insufficient funds"},
		{"someone else's card", "A", map[string]any{"receiver_dni": "B", "amount": 5, "credit_card_number": cardB}, http.StatusBadRequest, "Invalid credit card"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := h.do(t, request{method: http.MethodPost, path: "/transactions/create", as: tt.as, body: tt.body})
			requireError(t, w, tt.status, "/transactions/create", tt.message)
		})
	}
	assertAmount(t, 100, h.balance(t, "A"))
	assertAmount(t, 10, h.balance(t, "B"))

	w := h.do(t, request{method: http.MethodGet, path: "/transactions/abc", as: "A"})
	requireError(t, w, http.StatusNotFound, "/transactions/abc", "Transaction not found")

	w = h.do(t, request{method: http.MethodPost, path: "/transactions/create", body: map[string]any{"receiver_dni": "B", "amount": 5}})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestIdempotentTransfer(t *testing.T) {
	h := walletFixture(t)
	body := map[string]any{"receiver_dni": "B", "amount": 25, "credit_card_number": cardA}
	headers := map[string]string{IdempotencyHeader: "pay-once"}

	first := h.do(t, request{method: http.MethodPost, path: "/transactions/create", as: "A", body: body, headers: headers})
	require.Equal(t, http.StatusCreated, first.Code, first.Body.String())
	second := h.do(t, request{method: http.MethodPost, path: "/transactions/create", as: "A", body: body, headers: headers})
	require.Equal(t, http.StatusCreated, second.Code)
	assert.Equal(t, "true", second.Header().Get("Idempotent-Replayed"))
	assert.JSONEq(t, first.Body.String(), second.Body.String())

	assertAmount(t, 75, h.balance(t, "A"))
	assertAmount(t, 35, h.balance(t, "B"))

	// a failed attempt does not burn its key
	failing := map[string]any{"receiver_dni": "B", "amount": 1000, "credit_card_number": cardA}
	retryKey := map[string]string{IdempotencyHeader: "retry-me"}
	w := h.do(t, request{method: http.MethodPost, path: "/transactions/create", as: "A", body: failing, headers: retryKey})
	requireError(t, w, http.StatusBadRequest, "/transactions/create", "Insufficient funds")
	w = h.do(t, request{method: http.MethodPost, path: "/transactions/create", as: "A", body: body, headers: retryKey})
	require.Equal(t, http.StatusCreated, w.Code)
	assertAmount(t, 50, h.balance(t, "A"))

	// a key held by an unfinished request is refused
	pending := fmt.Sprintf(`{"fingerprint":%q,"status":0}`, utils.Fingerprint("B", "25", cardA, ""))
	require.NoError(t, h.redis.Set("wallet:idem:A:in-flight", pending))
	w = h.do(t, request{method: http.MethodPost, path: "/transactions/create", as: "A", body: body, headers: map[string]string{IdempotencyHeader: "in-flight"}})
	requireError(t, w, http.StatusConflict, "/transactions/create", "Request with this idempotency key is in progress")

	// reusing a finished key for another payment is refused, nothing is replayed or moved
	other := map[string]any{"receiver_dni": "B", "amount": 30, "credit_card_number": cardA}
	w = h.do(t, request{method: http.MethodPost, path: "/transactions/create", as: "A", body: other, headers: headers})
	requireError(t, w, http.StatusUnprocessableEntity, "/transactions/create", "Idempotency key was already used with a different request")
	assertAmount(t, 50, h.balance(t, "A"))
}

func TestIdempotencyKeyReleasedWhenRequestIsCancelled(t *testing.T) {
	h := walletFixture(t)
	body := map[string]any{"receiver_dni": "B", "amount": 25, "credit_card_number": cardA}
	headers := map[string]string{IdempotencyHeader: "hang-up"}

	// the client goes away while the transfer row is being written
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var once sync.Once
	require.NoError(t, h.db.Callback().Create().Before("gorm:create").Register("test:cancel_request", func(tx *gorm.DB) {
		if _, ok := tx.Statement.Model.(*domain.Transaction); ok {
			once.Do(cancel)
		}
	}))

	w := h.do(t, request{method: http.MethodPost, path: "/transactions/create", as: "A", body: body, headers: headers, ctx: ctx})
	assert.NotEqual(t, http.StatusCreated, w.Code, w.Body.String())
	assertAmount(t, 100, h.balance(t, "A"))
	assertAmount(t, 10, h.balance(t, "B"))
	assert.False(t, h.redis.Exists("wallet:idem:A:hang-up"))

	w = h.do(t, request{method: http.MethodPost, path: "/transactions/create", as: "A", body: body, headers: headers})
	require.NotEqual(t, http.StatusConflict, w.Code, w.Body.String())
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assertAmount(t, 75, h.balance(t, "A"))
	assertAmount(t, 35, h.balance(t, "B"))

	replay := h.do(t, request{method: http.MethodPost, path: "/transactions/create", as: "A", body: body, headers: headers})
	assert.Equal(t, "true", replay.Header().Get("Idempotent-Replayed"))
	assert.JSONEq(t, w.Body.String(), replay.Body.String())
}

func TestRequestLifecycle(t *testing.T) {
	h := walletFixture(t)

	// B asks A for 30: A is the sender and must fund it
	w := h.do(t, request{method: http.MethodPost, path: "/transactions/createrequest", as: "B", body: map[string]any{
		"counterparty_dni": "A", "amount": 30, "message": "rent",
	}})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	asked := decode[domain.TransactionView](t, w)
	assert.Equal(t, domain.StatusPending, asked.Status)
	assert.Equal(t, "A", asked.SenderDNI)
	assert.Equal(t, "B", asked.ReceiverDNI)

	w = h.do(t, request{method: http.MethodGet, path: "/transactions/pending", as: "A"})
	require.Len(t, decode[map[string][]domain.TransactionView](t, w)["transactions"], 1)
	w = h.do(t, request{method: http.MethodGet, path: "/transactions/outgoing", as: "B"})
	require.Len(t, decode[map[string][]domain.TransactionView](t, w)["transactions"], 1)

	acceptPath := fmt.Sprintf("/transactions/acceptrequest/%d", asked.ID)
	w = h.do(t, request{method: http.MethodPost, path: acceptPath, as: "B", body: map[string]string{"credit_card_number": cardB}})
	requireError(t, w, http.StatusForbidden, acceptPath, "Not authorized to accept this request")

	w = h.do(t, request{method: http.MethodPost, path: acceptPath, as: "A", body: map[string]string{"credit_card_number": cardA}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, domain.StatusCompleted, decode[domain.TransactionView](t, w).Status)
	assertAmount(t, 70, h.balance(t, "A"))
	assertAmount(t, 40, h.balance(t, "B"))

	w = h.do(t, request{method: http.MethodPost, path: acceptPath, as: "A", body: map[string]string{"credit_card_number": cardA}})
	requireError(t, w, http.StatusBadRequest, acceptPath, "Request already completed")

	// an offer from A is revoked by A and can no longer be rejected
	w = h.do(t, request{method: http.MethodPost, path: "/transactions/createrequest", as: "A", body: map[string]any{
		"counterparty_dni": "B", "amount": 5, "direction": "offer",
	}})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	offer := decode[domain.TransactionView](t, w)
	revokePath := fmt.Sprintf("/transactions/revokerequest/%d", offer.ID)
	w = h.do(t, request{method: http.MethodPost, path: revokePath, as: "B"})
	requireError(t, w, http.StatusForbidden, revokePath, "Not authorized to revoke this request")
	w = h.do(t, request{method: http.MethodPost, path: revokePath, as: "A"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, domain.StatusRevoked, decode[domain.TransactionView](t, w).Status)
	rejectPath := fmt.Sprintf("/transactions/rejectrequest/%d", offer.ID)
	w = h.do(t, request{method: http.MethodPost, path: rejectPath, as: "A"})
	requireError(t, w, http.StatusBadRequest, rejectPath, "Request already revoked")

	w = h.do(t, request{method: http.MethodPost, path: "/transactions/createrequest", as: "A", body: map[string]any{
		"counterparty_dni": "B", "amount": 5, "direction": "sideways",
	}})
	requireError(t, w, http.StatusBadRequest, "/transactions/createrequest", "Direction must be either request or offer")

	w = h.do(t, request{method: http.MethodGet, path: "/transactions/me?status=completed", as: "B"})
	assert.Len(t, decode[historyPage](t, w).Transactions, 1)
}
