package utils

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const idempotencyPrefix = "wallet:idem:"

var (
	// ErrIdempotencyInFlight is returned while the first request holding a key has not finished
	ErrIdempotencyInFlight = errors.New("idempotent request in progress")
	// ErrIdempotencyMismatch is returned when a key is reused for a different request
	ErrIdempotencyMismatch = errors.New("idempotency key reused with a different request")
)

// StoredResponse is what gets replayed for a repeated idempotency key.
// A zero Status marks a reservation whose request is still running.
type StoredResponse struct {
	Fingerprint string          `json:"fingerprint"`
	Status      int             `json:"status"`
	Body        json.RawMessage `json:"body,omitempty"`
}

// Fingerprint hashes the fields that identify a request
func Fingerprint(parts ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, "\x00")))
	return hex.EncodeToString(sum[:])
}

// IdempotencyStore reserves request keys in Redis and remembers their outcome
type IdempotencyStore struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewIdempotencyStore returns a store keeping keys for ttl; nil rdb disables it
func NewIdempotencyStore(rdb *redis.Client, ttl time.Duration) *IdempotencyStore {
	return &IdempotencyStore{rdb: rdb, ttl: ttl}
}

func idempotencyKey(owner, key string) string {
	return idempotencyPrefix + owner + ":" + key
}

// Begin reserves key for owner on behalf of the request identified by fingerprint.
// When the key already finished, the stored response is returned.
// A nil response and nil error means the caller owns the reservation and must Complete or Release it.
func (s *IdempotencyStore) Begin(ctx context.Context, owner, key, fingerprint string) (*StoredResponse, error) {
	if s == nil || s.rdb == nil {
		return nil, nil
	}
	k := idempotencyKey(owner, key)
	pending, err := json.Marshal(StoredResponse{Fingerprint: fingerprint})
	if err != nil {
		return nil, err
	}
	ok, err := s.rdb.SetNX(ctx, k, pending, s.ttl).Result()
	if err != nil {
		return nil, err
	}
	if ok {
		return nil, nil
	}
	val, err := s.rdb.Get(ctx, k).Result()
	if errors.Is(err, redis.Nil) {
		// expired between SETNX and GET, try once more
		return s.Begin(ctx, owner, key, fingerprint)
	} else if err != nil {
		return nil, err
	}
	var stored StoredResponse
	if err := json.Unmarshal([]byte(val), &stored); err != nil {
		return nil, err
	}
	if stored.Fingerprint != fingerprint {
		return nil, ErrIdempotencyMismatch
	}
	if stored.Status == 0 {
		return nil, ErrIdempotencyInFlight
	}
	return &stored, nil
}

// Complete stores the final response for key
func (s *IdempotencyStore) Complete(ctx context.Context, owner, key, fingerprint string, status int, body any) error {
	if s == nil || s.rdb == nil {
		return nil
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return err
	}
	b, err := json.Marshal(StoredResponse{Fingerprint: fingerprint, Status: status, Body: raw})
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, idempotencyKey(owner, key), b, s.ttl).Err()
}

// Release drops a reservation so a failed request can be retried with the same key
func (s *IdempotencyStore) Release(ctx context.Context, owner, key string) error {
	if s == nil || s.rdb == nil {
		return nil
	}
	return s.rdb.Del(ctx, idempotencyKey(owner, key)).Err()
}
