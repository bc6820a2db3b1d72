package memory

import (
	"context"
	"sync"

	"autotrade-coordinator/internal/domain"
	"autotrade-coordinator/internal/storage"
)

// SignalStore is an in-memory implementation of storage.SignalStore.
type SignalStore struct {
	mu   sync.RWMutex
	data map[string]*domain.Signal // keyed by signal id
}

// NewSignalStore creates a new in-memory signal store.
func NewSignalStore() *SignalStore {
	return &SignalStore{
		data: make(map[string]*domain.Signal),
	}
}

// Insert adds a signal. Returns ErrDuplicateKey if id exists.
func (s *SignalStore) Insert(_ context.Context, sig *domain.Signal) error {
	if sig == nil || sig.ID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[sig.ID]; exists {
		return storage.ErrDuplicateKey
	}

	cp := *sig
	s.data[sig.ID] = &cp
	return nil
}

// GetByID retrieves a signal by ID. Returns ErrNotFound if not exists.
func (s *SignalStore) GetByID(_ context.Context, id string) (*domain.Signal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sig, exists := s.data[id]
	if !exists {
		return nil, storage.ErrNotFound
	}

	cp := *sig
	return &cp, nil
}

// Count returns the number of stored signals.
func (s *SignalStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

var _ storage.SignalStore = (*SignalStore)(nil)
