package users

import (
	"context"
	"net/http"
	"testing"
	"time"

	"p2p_wallet/internal/db/dbtest"
	"p2p_wallet/internal/domain"
	"p2p_wallet/internal/utils"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func newService(t *testing.T) (*Service, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	svc := NewService(dbtest.Open(t), rdb, "secret", time.Hour)
	svc.cost = bcrypt.MinCost
	svc.now = func() time.Time { return time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC) }
	return svc, mr
}

func registration() Registration {
	return Registration{
		DNI:       "12345678A",
		Name:      "Ana",
		Email:     "Ana@Example.com",
		Password:  "s3cretpass",
		BirthDate: "1990-05-17",
		Amount:    decimal.RequireFromString("100.50"),
	}
}

func requireAppError(t *testing.T, err error, status int, message string) {
	t.Helper()
	appErr, ok := domain.AsAppError(err)
	require.True(t, ok, "expected AppError, got %v", err)
	assert.Equal(t, status, appErr.Status)
	assert.Equal(t, message, appErr.Message)
}

func TestCreate(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	user, err := svc.Create(ctx, registration())
	require.NoError(t, err)
	assert.Equal(t, "ana@example.com", user.Email)
	assert.True(t, user.Active)
	assert.False(t, user.Administrator)
	assert.NotEqual(t, "s3cretpass", user.Password)
	assert.True(t, decimal.RequireFromString("100.5").Equal(user.Balance))

	dup := registration()
	_, err = svc.Create(ctx, dup)
	requireAppError(t, err, http.StatusBadRequest, "User with DNI 12345678A already exists")

	dup.DNI = "87654321B"
	_, err = svc.Create(ctx, dup)
	requireAppError(t, err, http.StatusBadRequest, "User with email ana@example.com already exists")
}

func TestCreateValidation(t *testing.T) {
	svc, _ := newService(t)
	tests := []struct {
		name    string
		mutate  func(r *Registration)
		message string
	}{
		{"no dni", func(r *Registration) { r.DNI = " " }, "DNI is required and must be at most 36 characters"},
		{"no name", func(r *Registration) { r.Name = "" }, "Name is required"},
		{"no email", func(r *Registration) { r.Email = "" }, "Email is required"},
		{"short password", func(r *Registration) { r.Password = "short" }, "Password must be 8-64 characters"},
		{"negative amount", func(r *Registration) { r.Amount = decimal.NewFromInt(-1) }, "Amount cannot be negative"},
		{"bad birth date", func(r *Registration) { r.BirthDate = "17/05/1990" }, "Birth date must be in YYYY-MM-DD format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := registration()
			tt.mutate(&in)
			_, err := svc.Create(context.Background(), in)
			requireAppError(t, err, http.StatusBadRequest, tt.message)
		})
	}
}

func TestAuthenticate(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	_, err := svc.Create(ctx, registration())
	require.NoError(t, err)

	session, err := svc.Authenticate(ctx, "ana@example.com", "s3cretpass")
	require.NoError(t, err)
	assert.Equal(t, 3600, session.ExpiresIn)
	assert.Equal(t, "04/03/2026 05:06:07", session.Date)
	assert.Equal(t, "ana@example.com", session.User)
	claims, err := utils.ParseJWT(session.Token, "secret")
	require.NoError(t, err)
	assert.Equal(t, "12345678A", claims.DNI)

	_, err = svc.Authenticate(ctx, "ana@example.com", "wrongpass")
	requireAppError(t, err, http.StatusUnauthorized, "Invalid credentials")
	_, err = svc.Authenticate(ctx, "nobody@example.com", "s3cretpass")
	requireAppError(t, err, http.StatusUnauthorized, "Invalid credentials")
	_, err = svc.Authenticate(ctx, "", "x")
	requireAppError(t, err, http.StatusBadRequest, "Email is required")
	_, err = svc.Authenticate(ctx, "ana@example.com", "")
	requireAppError(t, err, http.StatusBadRequest, "Password is required")

	admin := domain.CallerFor(&domain.User{DNI: "root", Administrator: true})
	_, err = svc.SetActive(ctx, admin, "12345678A", false)
	require.NoError(t, err)
	_, err = svc.Authenticate(ctx, "ana@example.com", "s3cretpass")
	requireAppError(t, err, http.StatusInternalServerError, AccountDisabledMessage)
}

func TestGetIsCachedAndInvalidated(t *testing.T) {
	svc, mr := newService(t)
	ctx := context.Background()
	_, err := svc.Create(ctx, registration())
	require.NoError(t, err)

	user, err := svc.Get(ctx, "12345678A")
	require.NoError(t, err)
	assert.Equal(t, "Ana", user.Name)
	assert.True(t, mr.Exists(utils.UserCachePrefix+"12345678A"))

	name := "Ana Maria"
	self := domain.CallerFor(user)
	updated, err := svc.Update(ctx, self, "12345678A", Profile{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, "Ana Maria", updated.Name)

	svc.Invalidate(ctx, "12345678A")
	assert.False(t, mr.Exists(utils.UserCachePrefix+"12345678A"))

	_, err = svc.Get(ctx, "missing")
	requireAppError(t, err, http.StatusNotFound, "User not found")
}

func TestUpdateAuthorization(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	user, err := svc.Create(ctx, registration())
	require.NoError(t, err)

	stranger := domain.CallerFor(&domain.User{DNI: "X"})
	image := "https://cdn.example.com/a.png"
	_, err = svc.UpdateImage(ctx, stranger, user.DNI, image)
	requireAppError(t, err, http.StatusForbidden, "Not authorized to update this user")

	admin := domain.CallerFor(&domain.User{DNI: "root", Administrator: true})
	updated, err := svc.UpdateImage(ctx, admin, user.DNI, image)
	require.NoError(t, err)
	assert.Equal(t, image, updated.Image)

	birth := "1991-01-02"
	updated, err = svc.Update(ctx, domain.CallerFor(user), user.DNI, Profile{BirthDate: &birth})
	require.NoError(t, err)
	assert.Equal(t, 1991, updated.BirthDate.Year())

	bad := "02/01/1991"
	_, err = svc.Update(ctx, domain.CallerFor(user), user.DNI, Profile{BirthDate: &bad})
	requireAppError(t, err, http.StatusBadRequest, "Birth date must be in YYYY-MM-DD format")
}

func TestSetActiveAndList(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	user, err := svc.Create(ctx, registration())
	require.NoError(t, err)

	_, err = svc.SetActive(ctx, domain.CallerFor(user), user.DNI, false)
	requireAppError(t, err, http.StatusForbidden, "Admin access required")

	admin := domain.CallerFor(&domain.User{DNI: "root", Administrator: true})
	_, err = svc.SetActive(ctx, admin, "missing", false)
	requireAppError(t, err, http.StatusNotFound, "User not found")

	off, err := svc.SetActive(ctx, admin, user.DNI, false)
	require.NoError(t, err)
	assert.False(t, off.Active)
	on, err := svc.SetActive(ctx, admin, user.DNI, true)
	require.NoError(t, err)
	assert.True(t, on.Active)

	list, total, err := svc.List(ctx, admin, utils.NewPage(1, 10))
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Len(t, list, 1)
	_, _, err = svc.List(ctx, domain.CallerFor(user), utils.NewPage(1, 10))
	requireAppError(t, err, http.StatusForbidden, "Admin access required")
}
