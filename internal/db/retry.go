package db

import (
	"context" // Cancellation
	"errors"  // Error inspection
	"time"    // Backoff durations

	"p2p_wallet/internal/domain"

	mysqldrv "github.com/go-sql-driver/mysql" // MySQL error numbers
	"github.com/jackc/pgerrcode"              // PostgreSQL SQLSTATE names
	"github.com/jackc/pgx/v5/pgconn"          // PostgreSQL error type
	"github.com/sethvargo/go-retry"           // Backoff policies
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const (
	mysqlDeadlock    = 1213 // ER_LOCK_DEADLOCK
	mysqlLockTimeout = 1205 // ER_LOCK_WAIT_TIMEOUT
)

// IsRetryable reports whether err is a transient conflict worth replaying the whole transaction for
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, domain.ErrConcurrentUpdate) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgerrcode.SerializationFailure || pgErr.Code == pgerrcode.DeadlockDetected
	}
	var myErr *mysqldrv.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == mysqlDeadlock || myErr.Number == mysqlLockTimeout
	}
	return false
}

// RetryPolicy bounds how often a conflicting transaction is replayed
type RetryPolicy struct {
	Attempts uint64        // Total attempts including the first one
	Base     time.Duration // First backoff
}

// DefaultRetryPolicy is used by the services unless overridden
var DefaultRetryPolicy = RetryPolicy{Attempts: 5, Base: 20 * time.Millisecond}

// Transact runs fn inside a database transaction and replays it on retryable conflicts.
// Any other error rolls back and is returned as is.
func Transact(ctx context.Context, db *gorm.DB, policy RetryPolicy, fn func(tx *gorm.DB) error) error {
	if policy.Attempts == 0 {
		policy = DefaultRetryPolicy
	}
	backoff := retry.WithMaxRetries(policy.Attempts-1, retry.WithJitterPercent(20, retry.NewExponential(policy.Base)))
	attempt := 0
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		err := db.WithContext(ctx).Transaction(fn)
		if IsRetryable(err) {
			logrus.WithFields(logrus.Fields{
				"attempt": attempt,
				"error":   err.Error(),
			}).Warn("Transaction conflict, retrying")
			return retry.RetryableError(err)
		}
		return err
	})
}

// Ping checks that the database answers within ctx
func Ping(ctx context.Context, db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
