package memory

import (
	"context"
	"sort"
	"sync"

	"autotrade-coordinator/internal/domain"
	"autotrade-coordinator/internal/storage"
)

type agentRow struct {
	active bool
	config domain.AgentTradingConfig
}

// AgentStore is an in-memory implementation of storage.AgentStore.
type AgentStore struct {
	mu   sync.RWMutex
	data map[string]*agentRow // keyed by agent id
}

// NewAgentStore creates a new in-memory agent store.
func NewAgentStore() *AgentStore {
	return &AgentStore{
		data: make(map[string]*agentRow),
	}
}

// GetActiveAgentIDs returns IDs of active agents, sorted.
func (s *AgentStore) GetActiveAgentIDs(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var ids []string
	for id, row := range s.data {
		if row.active {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// GetTradingMode returns the agent's trading mode.
func (s *AgentStore) GetTradingMode(_ context.Context, agentID string) (domain.TradingMode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row, ok := s.data[agentID]
	if !ok {
		return "", storage.ErrNotFound
	}
	return row.config.TradingMode, nil
}

// LoadAgentConfig returns a deep copy of the agent's config.
func (s *AgentStore) LoadAgentConfig(_ context.Context, agentID string) (*domain.AgentTradingConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row, ok := s.data[agentID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return copyConfig(&row.config), nil
}

// SaveAgentConfig creates or replaces the agent's config. New agents start active.
func (s *AgentStore) SaveAgentConfig(_ context.Context, cfg *domain.AgentTradingConfig) error {
	if cfg == nil || cfg.AgentID == "" || !cfg.TradingMode.IsValid() {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.data[cfg.AgentID]
	if !ok {
		row = &agentRow{active: true}
		s.data[cfg.AgentID] = row
	}
	row.config = *copyConfig(cfg)
	return nil
}

// SetActive flips the agent's active flag.
func (s *AgentStore) SetActive(_ context.Context, agentID string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.data[agentID]
	if !ok {
		return storage.ErrNotFound
	}
	row.active = active
	return nil
}

func copyConfig(cfg *domain.AgentTradingConfig) *domain.AgentTradingConfig {
	out := *cfg
	out.AutoTrade.Tokens = append([]domain.AutoTradeToken(nil), cfg.AutoTrade.Tokens...)
	return &out
}

var _ storage.AgentStore = (*AgentStore)(nil)
