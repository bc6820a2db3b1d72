package redis

import (
	"context"
	"fmt"
	"time"

	"autotrade-coordinator/internal/storage"
)

// IdempotencyStore implements storage.IdempotencyStore with SET NX EX,
// a single atomic round trip shared by every coordinator instance.
type IdempotencyStore struct {
	client *Client
}

// NewIdempotencyStore creates a new IdempotencyStore.
func NewIdempotencyStore(client *Client) *IdempotencyStore {
	return &IdempotencyStore{client: client}
}

// Compile-time interface check.
var _ storage.IdempotencyStore = (*IdempotencyStore)(nil)

// CheckAndSet sets key if absent. The TTL is rounded up to whole seconds.
func (s *IdempotencyStore) CheckAndSet(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if key == "" || ttl <= 0 {
		return false, storage.ErrInvalidInput
	}

	ok, err := s.client.SetnxExCtx(ctx, key, "1", ttlSeconds(ttl))
	if err != nil {
		return false, fmt.Errorf("setnx %s: %w", key, err)
	}
	return ok, nil
}
