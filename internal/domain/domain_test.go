package domain

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransactionStatus(t *testing.T) {
	for _, raw := range []string{"PENDING", "COMPLETED", "REJECTED", "REVOKED"} {
		st, err := ParseTransactionStatus(raw)
		require.NoError(t, err)
		assert.Equal(t, raw != "PENDING", st.Terminal(), raw)
	}
	_, err := ParseTransactionStatus("pending")
	assert.Error(t, err)
	assert.Panics(t, func() { TransactionStatus("LOST").Terminal() })
}

func TestTransactionType(t *testing.T) {
	tt, err := ParseTransactionType("REQUEST")
	require.NoError(t, err)
	assert.Equal(t, TransactionRequest, tt)
	_, err = ParseTransactionType("REFUND")
	assert.Error(t, err)
}

func TestFriendshipStatusTerminal(t *testing.T) {
	assert.False(t, FriendshipPending.Terminal())
	assert.True(t, FriendshipAccepted.Terminal())
	assert.True(t, FriendshipRejected.Terminal())
	assert.Panics(t, func() { FriendshipStatus("GONE").Terminal() })
}

func TestCardMaskingAndExpiry(t *testing.T) {
	c := &Card{Number: "4111111111111111", ExpirationDate: time.Date(2030, 4, 30, 0, 0, 0, 0, time.UTC)}
	assert.Equal(t, "1111", c.Last4())
	assert.Equal(t, "************1111", c.MaskedNumber())

	view := c.View()
	assert.Equal(t, "************1111", view.Number)
	assert.Equal(t, "04/30", view.ExpirationDate)

	assert.False(t, c.Expired(time.Date(2030, 4, 30, 23, 59, 0, 0, time.UTC)))
	assert.True(t, c.Expired(time.Date(2030, 5, 1, 0, 0, 0, 0, time.UTC)))
}

func TestCaller(t *testing.T) {
	var anon Caller
	assert.False(t, anon.Authenticated())

	c := CallerFor(&User{DNI: "1A", Email: "a@x.io", Administrator: true})
	assert.True(t, c.Authenticated())
	assert.Equal(t, "1A", c.DNI())
	assert.Equal(t, "a@x.io", c.Email())
	assert.True(t, c.IsAdmin())
}

func TestAppError(t *testing.T) {
	err := fmt.Errorf("accept: %w", Forbidden("Not authorized to accept this request"))
	appErr, ok := AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusForbidden, appErr.Status)
	assert.Equal(t, "Not authorized to accept this request", appErr.Message)
	assert.ErrorIs(t, err, ErrForbidden)

	_, ok = AsAppError(errors.New("db down"))
	assert.False(t, ok)
}

func TestTransactionInvolves(t *testing.T) {
	tx := &Transaction{SenderDNI: "A", ReceiverDNI: "B"}
	assert.True(t, tx.Involves("A"))
	assert.True(t, tx.Involves("B"))
	assert.False(t, tx.Involves("C"))
}
