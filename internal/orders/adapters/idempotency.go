package adapters

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"bookvault/pkg/cache"
)

const (
	idempotencyOperation = "idempotency"
	idempotencyPending   = "pending"
	// a claim that is never completed or released expires after this
	idempotencyClaimTTL = 2 * time.Minute
)

// RedisIdempotencyStore maps client Idempotency-Key values to order IDs
type RedisIdempotencyStore struct {
	cache cache.Cache
	ttl   time.Duration
}

// NewRedisIdempotencyStore keeps completed keys for ttl
func NewRedisIdempotencyStore(c cache.Cache, ttl time.Duration) *RedisIdempotencyStore {
	return &RedisIdempotencyStore{cache: c, ttl: ttl}
}

// Claim reserves key with SETNX. A key held by an in-flight submission
// returns uuid.Nil with claimed=false.
func (s *RedisIdempotencyStore) Claim(ctx context.Context, key string) (uuid.UUID, bool, error) {
	k := s.cache.GenerateKey(idempotencyOperation, key)

	ok, err := s.cache.SetNX(ctx, k, idempotencyPending, idempotencyClaimTTL)
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("failed to claim idempotency key: %w", err)
	}
	if ok {
		return uuid.Nil, true, nil
	}

	value, err := s.cache.Get(ctx, k)
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("failed to read idempotency key: %w", err)
	}
	if value == "" || value == idempotencyPending {
		return uuid.Nil, false, nil
	}
	id, err := uuid.Parse(value)
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("corrupt idempotency key %q: %w", k, err)
	}
	return id, false, nil
}

// Complete binds key to orderID for the configured TTL
func (s *RedisIdempotencyStore) Complete(ctx context.Context, key string, orderID uuid.UUID) error {
	k := s.cache.GenerateKey(idempotencyOperation, key)
	if err := s.cache.Set(ctx, k, orderID.String(), s.ttl); err != nil {
		return fmt.Errorf("failed to complete idempotency key: %w", err)
	}
	return nil
}

// Release drops a claim so the client can retry
func (s *RedisIdempotencyStore) Release(ctx context.Context, key string) error {
	k := s.cache.GenerateKey(idempotencyOperation, key)
	if err := s.cache.Del(ctx, k); err != nil {
		return fmt.Errorf("failed to release idempotency key: %w", err)
	}
	return nil
}
