package memory

import (
	"context"
	"sort"
	"sync"

	"autotrade-coordinator/internal/domain"
	"autotrade-coordinator/internal/storage"
)

// PositionStore is an in-memory implementation of storage.PositionStore.
type PositionStore struct {
	mu   sync.RWMutex
	data map[string]*domain.PositionRecord // keyed by position id
}

// NewPositionStore creates a new in-memory position store.
func NewPositionStore() *PositionStore {
	return &PositionStore{
		data: make(map[string]*domain.PositionRecord),
	}
}

// Insert adds a new position. Returns ErrDuplicateKey if id exists.
func (s *PositionStore) Insert(_ context.Context, p *domain.PositionRecord) error {
	if p == nil || p.ID == "" || p.AgentID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[p.ID]; exists {
		return storage.ErrDuplicateKey
	}

	pos := *p
	s.data[p.ID] = &pos
	return nil
}

// Update overwrites a position. Returns ErrNotFound if id does not exist.
func (s *PositionStore) Update(_ context.Context, p *domain.PositionRecord) error {
	if p == nil || p.ID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[p.ID]; !exists {
		return storage.ErrNotFound
	}

	pos := *p
	s.data[p.ID] = &pos
	return nil
}

// Close marks a position closed. Closing an already closed position keeps its original close time.
func (s *PositionStore) Close(_ context.Context, id string, closedAt int64) (*domain.PositionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, exists := s.data[id]
	if !exists {
		return nil, storage.ErrNotFound
	}
	if p.Status != domain.PositionStatusClosed {
		p.Status = domain.PositionStatusClosed
		p.ClosedAt = &closedAt
		p.UpdatedAt = closedAt
	}

	pos := *p
	return &pos, nil
}

// GetByID retrieves a position by ID. Returns ErrNotFound if not exists.
func (s *PositionStore) GetByID(_ context.Context, id string) (*domain.PositionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, exists := s.data[id]
	if !exists {
		return nil, storage.ErrNotFound
	}

	pos := *p
	return &pos, nil
}

// FindActivePosition returns the open position of the wallet in the token.
func (s *PositionStore) FindActivePosition(_ context.Context, agentID, walletAddress, tokenAddress string) (*domain.PositionRef, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, p := range s.data {
		if p.Status != domain.PositionStatusOpen || p.AgentID != agentID {
			continue
		}
		if !domain.SameAddress(p.WalletAddress, walletAddress) || !domain.SameAddress(p.TokenAddress, tokenAddress) {
			continue
		}
		ref := p.Ref()
		return &ref, nil
	}
	return nil, storage.ErrNotFound
}

// ListOpen returns open positions ordered by opened_at ASC.
func (s *PositionStore) ListOpen(_ context.Context) ([]*domain.PositionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.PositionRecord
	for _, p := range s.data {
		if p.Status == domain.PositionStatusOpen {
			pos := *p
			result = append(result, &pos)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].OpenedAt != result[j].OpenedAt {
			return result[i].OpenedAt < result[j].OpenedAt
		}
		return result[i].ID < result[j].ID
	})

	return result, nil
}

var _ storage.PositionStore = (*PositionStore)(nil)
