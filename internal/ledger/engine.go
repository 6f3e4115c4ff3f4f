// Package ledger owns every balance mutation: direct transfers, the
// request/accept/reject/revoke state machine and the queries over transfers.
//
// sender_dni is always the debited party and receiver_dni the credited one.
// Only the sender may fund (accept) or reject a pending transfer; only the
// initiator may revoke it.
package ledger

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"time"

	"p2p_wallet/internal/db"
	"p2p_wallet/internal/domain"
	"p2p_wallet/internal/social"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// BlockChecker answers block-relation questions inside the caller's transaction
type BlockChecker interface {
	// BlockedBetween reports whether a blocked b and whether b blocked a
	BlockedBetween(tx *gorm.DB, a, b string) (aBlockedB, bBlockedA bool, err error)
}

// CardResolver loads a funding card inside the caller's transaction.
// It returns an ErrNotFound AppError when the card is missing or not owned by ownerDNI.
type CardResolver interface {
	ResolveFundingCard(tx *gorm.DB, ownerDNI, number string) (*domain.Card, error)
}

// Engine is the transfer engine
type Engine struct {
	db     *gorm.DB
	blocks BlockChecker
	cards  CardResolver
	retry  db.RetryPolicy
	now    func() time.Time
}

// Option customises an Engine
type Option func(*Engine)

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithRetryPolicy overrides how conflicting transactions are replayed
func WithRetryPolicy(p db.RetryPolicy) Option {
	return func(e *Engine) { e.retry = p }
}

// New creates the engine
func New(gdb *gorm.DB, blocks BlockChecker, cards CardResolver, opts ...Option) *Engine {
	e := &Engine{
		db:     gdb,
		blocks: blocks,
		cards:  cards,
		retry:  db.DefaultRetryPolicy,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

var maxAmount = decimal.RequireFromString("9999999999.99") // decimal(12,2)

func validateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return domain.Invalid("Amount must be greater than zero")
	}
	if !amount.Equal(amount.Round(2)) {
		return domain.Invalid("Amount must have at most two decimal places")
	}
	if amount.GreaterThan(maxAmount) {
		return domain.Invalid("Amount exceeds the maximum allowed")
	}
	return nil
}

func requireCaller(caller domain.Caller) error {
	if !caller.Authenticated() {
		return domain.NewError(http.StatusUnauthorized, domain.ErrUnauthenticated, "Unauthorized")
	}
	return nil
}

// lockUsers reads the given users FOR UPDATE in DNI order. Missing or inactive users are left out.
func lockUsers(tx *gorm.DB, dnis ...string) (map[string]*domain.User, error) {
	ordered := slices.Clone(dnis)
	slices.Sort(ordered)
	ordered = slices.Compact(ordered)

	users := make(map[string]*domain.User, len(ordered))
	for _, dni := range ordered {
		var u domain.User
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("dni = ?", dni).Take(&u).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if u.Active {
			users[dni] = &u
		}
	}
	return users, nil
}

// lockTransaction reads a transfer FOR UPDATE
func lockTransaction(tx *gorm.DB, id uint) (*domain.Transaction, error) {
	var t domain.Transaction
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", id).Take(&t).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.NotFound("Request not found")
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// writeBalance stores a new balance guarded by the row version
func writeBalance(tx *gorm.DB, u *domain.User, balance decimal.Decimal) error {
	res := tx.Model(&domain.User{}).
		Where("dni = ? AND version = ?", u.DNI, u.Version).
		Updates(map[string]any{"balance": balance, "version": gorm.Expr("version + 1")})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrConcurrentUpdate
	}
	u.Balance = balance
	u.Version++
	return nil
}

// moveFunds debits from and credits to by amount
func moveFunds(tx *gorm.DB, from, to *domain.User, amount decimal.Decimal) error {
	if from.Balance.LessThan(amount) {
		return domain.NewError(http.StatusBadRequest, domain.ErrInsufficientFunds, "Insufficient funds")
	}
	if err := writeBalance(tx, from, from.Balance.Sub(amount)); err != nil {
		return err
	}
	return writeBalance(tx, to, to.Balance.Add(amount))
}

func (e *Engine) checkBlocks(tx *gorm.DB, verb, callerDNI, otherDNI string) error {
	return social.CheckBlocks(tx, e.blocks, verb, callerDNI, otherDNI)
}

// transact runs fn in a retried database transaction
func (e *Engine) transact(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return db.Transact(ctx, e.db, e.retry, fn)
}

func logFailure(op string, fields logrus.Fields, err error) {
	fields["op"] = op
	if appErr, ok := domain.AsAppError(err); ok {
		fields["status"] = appErr.Status
		logrus.WithFields(fields).Warn(appErr.Message)
		return
	}
	fields["error"] = err.Error()
	logrus.WithFields(fields).Error("Ledger operation failed")
}
