package memory

import (
	"context"
	"sync"

	"autotrade-coordinator/internal/domain"
	"autotrade-coordinator/internal/storage"
)

// WalletStore is an in-memory implementation of storage.WalletStore.
type WalletStore struct {
	mu   sync.RWMutex
	data map[string]*domain.Wallet // keyed by normalized address
}

// NewWalletStore creates a new in-memory wallet store.
func NewWalletStore() *WalletStore {
	return &WalletStore{
		data: make(map[string]*domain.Wallet),
	}
}

// Insert adds a wallet. Off-curve addresses cannot sign and are rejected.
func (s *WalletStore) Insert(_ context.Context, w *domain.Wallet) error {
	if w == nil || w.AgentID == "" || !w.TradingMode.IsValid() {
		return storage.ErrInvalidInput
	}
	if domain.ValidateTokenAddress(w.Address) != nil || !domain.IsOnCurve(w.Address) {
		return storage.ErrInvalidInput
	}

	key := domain.NormalizeAddress(w.Address)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[key]; exists {
		return storage.ErrDuplicateKey
	}

	wallet := *w
	s.data[key] = &wallet
	return nil
}

// FindWalletByAgent returns the newest active wallet of the agent for mode.
func (s *WalletStore) FindWalletByAgent(_ context.Context, agentID string, mode domain.TradingMode) (*domain.Wallet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var found *domain.Wallet
	for _, w := range s.data {
		if w.AgentID != agentID || w.TradingMode != mode || !w.Active {
			continue
		}
		if found == nil || w.CreatedAt > found.CreatedAt {
			found = w
		}
	}
	if found == nil {
		return nil, storage.ErrNotFound
	}

	wallet := *found
	return &wallet, nil
}

var _ storage.WalletStore = (*WalletStore)(nil)
