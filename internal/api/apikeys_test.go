package api

import (
	"net/http"
	"testing"

	"p2p_wallet/internal/domain"
	"p2p_wallet/internal/middleware"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAPIKeyRoutes(t *testing.T) {
	h := newHarness(t)
	h.seedUser(t, "M", "Merchant", 0, false)
	h.seedUser(t, "A", "Ana", 100, false)
	h.seedCard(t, cardA, "A")

	w := h.do(t, request{method: http.MethodPost, path: "/api/requestkey", as: "M", body: map[string]string{"application_name": "shop"}})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	issued := decode[domain.IssuedAPIKey](t, w)
	require.NotEmpty(t, issued.APIKey)

	w = h.do(t, request{method: http.MethodGet, path: "/api/getkeys", as: "M"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), issued.APIKey)

	// header authentication
	w = h.do(t, request{
		method:  http.MethodPost,
		path:    "/api/payments/request",
		body:    map[string]any{"sender_dni": "A", "amount": 12, "message": "order 42"},
		headers: map[string]string{middleware.APIKeyHeader: issued.APIKey},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	payment := decode[domain.TransactionView](t, w)
	assert.Equal(t, "A", payment.SenderDNI)
	assert.Equal(t, "M", payment.ReceiverDNI)
	assert.Equal(t, domain.StatusPending, payment.Status)

	// body authentication
	w = h.do(t, request{method: http.MethodPost, path: "/api/payments/request", body: map[string]any{"api_key": issued.APIKey, "sender_dni": "A", "amount": 3}})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = h.do(t, request{method: http.MethodGet, path: "/transactions/pending", as: "A"})
	assert.Len(t, decode[map[string][]domain.TransactionView](t, w)["transactions"], 2)

	w = h.do(t, request{method: http.MethodPut, path: "/api/updatekey", as: "M", body: map[string]string{"api_key_id": issued.ID.String()}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	rotated := decode[domain.IssuedAPIKey](t, w)
	assert.NotEqual(t, issued.APIKey, rotated.APIKey)

	w = h.do(t, request{
		method:  http.MethodPost,
		path:    "/api/payments/request",
		body:    map[string]any{"sender_dni": "A", "amount": 1},
		headers: map[string]string{middleware.APIKeyHeader: issued.APIKey},
	})
	requireError(t, w, http.StatusUnauthorized, "/api/payments/request", "Invalid API key")

	deletePath := "/api/deletekey/" + issued.ID.String()
	w = h.do(t, request{method: http.MethodDelete, path: deletePath, as: "A"})
	requireError(t, w, http.StatusNotFound, deletePath, "API key not found")
	w = h.do(t, request{method: http.MethodDelete, path: deletePath, as: "M"})
	require.Equal(t, http.StatusOK, w.Code)
	w = h.do(t, request{method: http.MethodGet, path: "/api/getkeys", as: "M"})
	assert.JSONEq(t, `{"api_keys":[]}`, w.Body.String())
}
