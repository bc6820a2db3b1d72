package memory

import (
	"context"
	"sync"
	"time"

	"autotrade-coordinator/internal/storage"
)

// IdempotencyStore is an in-memory implementation of storage.IdempotencyStore.
// Only safe for a single process; use the Redis or PostgreSQL store when
// more than one coordinator instance runs.
type IdempotencyStore struct {
	mu     sync.Mutex
	expiry map[string]time.Time // keyed by idempotency key
	now    func() time.Time
}

// NewIdempotencyStore creates a new in-memory idempotency store.
func NewIdempotencyStore() *IdempotencyStore {
	return &IdempotencyStore{
		expiry: make(map[string]time.Time),
		now:    time.Now,
	}
}

// WithClock replaces the time source. Used by tests to move past expiry.
func (s *IdempotencyStore) WithClock(now func() time.Time) *IdempotencyStore {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
	return s
}

// CheckAndSet sets key if absent or expired and returns true; otherwise returns false.
func (s *IdempotencyStore) CheckAndSet(_ context.Context, key string, ttl time.Duration) (bool, error) {
	if key == "" || ttl <= 0 {
		return false, storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if exp, ok := s.expiry[key]; ok && now.Before(exp) {
		return false, nil
	}

	s.expiry[key] = now.Add(ttl)
	s.evictExpiredLocked(now)
	return true, nil
}

// evictExpiredLocked drops expired keys once the map is large.
func (s *IdempotencyStore) evictExpiredLocked(now time.Time) {
	if len(s.expiry) < 1024 {
		return
	}
	for k, exp := range s.expiry {
		if !now.Before(exp) {
			delete(s.expiry, k)
		}
	}
}

// PurgeExpired drops every expired key and returns how many were removed.
func (s *IdempotencyStore) PurgeExpired(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var n int64
	for k, exp := range s.expiry {
		if !now.Before(exp) {
			delete(s.expiry, k)
			n++
		}
	}
	return n, nil
}

// Len returns the number of tracked keys, expired or not.
func (s *IdempotencyStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.expiry)
}

var _ storage.IdempotencyStore = (*IdempotencyStore)(nil)
