package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"p2p_wallet/internal/apikeys"
	"p2p_wallet/internal/cards"
	"p2p_wallet/internal/db/dbtest"
	"p2p_wallet/internal/domain"
	"p2p_wallet/internal/ledger"
	"p2p_wallet/internal/social"
	"p2p_wallet/internal/users"
	"p2p_wallet/internal/utils"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const (
	testSecret = "handler-secret"
	cardA      = "4111111111111111"
	cardB      = "4000056655665556"
)

type harness struct {
	db     *gorm.DB
	redis  *miniredis.Miniredis
	router *gin.Engine
}

func init() {
	gin.SetMode(gin.TestMode)
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	gdb := dbtest.Open(t)
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	usersSvc := users.NewService(gdb, rdb, testSecret, time.Hour)
	cardsSvc := cards.NewService(gdb, nil)
	socialSvc := social.NewService(gdb)
	router, err := NewRouter(Deps{
		DB:             gdb,
		Redis:          rdb,
		Users:          usersSvc,
		Cards:          cardsSvc,
		Social:         socialSvc,
		Ledger:         ledger.New(gdb, socialSvc, cardsSvc),
		APIKeys:        apikeys.NewService(gdb),
		Idempotency:    utils.NewIdempotencyStore(rdb, time.Hour),
		JWTSecret:      testSecret,
		RequestTimeout: 5 * time.Second,
	})
	require.NoError(t, err)
	return &harness{db: gdb, redis: mr, router: router}
}

func (h *harness) seedUser(t *testing.T, dni, name string, balance int64, admin bool) {
	t.Helper()
	u := &domain.User{
		DNI:           dni,
		Name:          name,
		Email:         dni + "@example.com",
		Password:      "x",
		BirthDate:     time.Date(1990, 1, 1, 0, 0, 0, 0, time.UTC),
		Balance:       decimal.NewFromInt(balance),
		Administrator: admin,
		Active:        true,
	}
	require.NoError(t, h.db.Create(u).Error)
}

func (h *harness) seedCard(t *testing.T, number, owner string) {
	t.Helper()
	c := &domain.Card{Number: number, UserDNI: owner, Type: "visa", ExpirationDate: time.Date(2035, 12, 31, 0, 0, 0, 0, time.UTC), HolderName: owner, Active: true}
	require.NoError(t, h.db.Create(c).Error)
}

func (h *harness) balance(t *testing.T, dni string) decimal.Decimal {
	t.Helper()
	var u domain.User
	require.NoError(t, h.db.Where("dni = ?", dni).Take(&u).Error)
	return u.Balance
}

func token(t *testing.T, dni string) string {
	t.Helper()
	tok, _, err := utils.GenerateJWT(dni, dni+"@example.com", testSecret, time.Hour)
	require.NoError(t, err)
	return tok
}

type request struct {
	method  string
	path    string
	as      string // DNI to authenticate as, empty for anonymous
	body    any
	headers map[string]string
	ctx     context.Context // request context, background when nil
}

func (h *harness) do(t *testing.T, r request) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if r.body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(r.body))
	}
	req := httptest.NewRequest(r.method, r.path, &buf)
	if r.ctx != nil {
		req = req.WithContext(r.ctx)
	}
	req.Header.Set("Content-Type", "application/json")
	if r.as != "" {
		req.Header.Set("Authorization", "Bearer "+token(t, r.as))
	}
	for k, v := range r.headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

// requireError checks the error envelope of a failed response
func requireError(t *testing.T, w *httptest.ResponseRecorder, status int, path, message string) {
	t.Helper()
	require.Equal(t, status, w.Code, w.Body.String())
	body := decode[utils.ErrorResponse](t, w)
	assert.Equal(t, status, body.StatusCode)
	assert.Equal(t, "error", body.Status)
	assert.Equal(t, path, body.Path)
	assert.Equal(t, message, body.Message)
	_, err := time.Parse(utils.TimestampLayout, body.Timestamp)
	assert.NoError(t, err)
}

func assertAmount(t *testing.T, want int64, got decimal.Decimal) {
	t.Helper()
	assert.True(t, decimal.NewFromInt(want).Equal(got), "want %d, got %s", want, got)
}
