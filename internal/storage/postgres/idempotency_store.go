package postgres

import (
	"context"
	"fmt"
	"time"

	"autotrade-coordinator/internal/storage"
)

// IdempotencyStore implements storage.IdempotencyStore using PostgreSQL.
// Every coordinator instance sharing the database shares the gate.
type IdempotencyStore struct {
	pool *Pool
}

// NewIdempotencyStore creates a new IdempotencyStore.
func NewIdempotencyStore(pool *Pool) *IdempotencyStore {
	return &IdempotencyStore{pool: pool}
}

// Compile-time interface check.
var _ storage.IdempotencyStore = (*IdempotencyStore)(nil)

// CheckAndSet claims key in a single statement. An expired row is taken over
// in place; a live row makes the conditional update a no-op and RETURNING yields nothing.
func (s *IdempotencyStore) CheckAndSet(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if key == "" || ttl <= 0 {
		return false, storage.ErrInvalidInput
	}

	query := `
		INSERT INTO idempotency_keys (key, expires_at)
		VALUES ($1, NOW() + $2::bigint * INTERVAL '1 millisecond')
		ON CONFLICT (key) DO UPDATE
		SET expires_at = EXCLUDED.expires_at
		WHERE idempotency_keys.expires_at <= NOW()
		RETURNING key
	`

	var claimed string
	err := s.pool.QueryRow(ctx, query, key, ttl.Milliseconds()).Scan(&claimed)
	if err != nil {
		if isNotFoundError(err) {
			return false, nil
		}
		return false, fmt.Errorf("check and set idempotency key: %w", err)
	}
	return true, nil
}

// PurgeExpired deletes expired keys and returns how many were removed.
func (s *IdempotencyStore) PurgeExpired(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM idempotency_keys WHERE expires_at <= NOW()`)
	if err != nil {
		return 0, fmt.Errorf("purge idempotency keys: %w", err)
	}
	return tag.RowsAffected(), nil
}
