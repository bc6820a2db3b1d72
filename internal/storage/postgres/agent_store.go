package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"autotrade-coordinator/internal/domain"
	"autotrade-coordinator/internal/storage"
)

// AgentStore implements storage.AgentStore using PostgreSQL.
// The auto-trade section is stored as JSONB.
type AgentStore struct {
	pool *Pool
}

// NewAgentStore creates a new AgentStore.
func NewAgentStore(pool *Pool) *AgentStore {
	return &AgentStore{pool: pool}
}

// Compile-time interface check.
var _ storage.AgentStore = (*AgentStore)(nil)

// GetActiveAgentIDs returns IDs of active agents, ordered by ID.
func (s *AgentStore) GetActiveAgentIDs(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT agent_id FROM agents WHERE active ORDER BY agent_id`)
	if err != nil {
		return nil, fmt.Errorf("query active agents: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// GetTradingMode returns the agent's trading mode.
func (s *AgentStore) GetTradingMode(ctx context.Context, agentID string) (domain.TradingMode, error) {
	var mode string
	err := s.pool.QueryRow(ctx, `SELECT trading_mode FROM agents WHERE agent_id = $1`, agentID).Scan(&mode)
	if err != nil {
		if isNotFoundError(err) {
			return "", storage.ErrNotFound
		}
		return "", fmt.Errorf("get trading mode: %w", err)
	}
	return domain.TradingMode(mode), nil
}

// LoadAgentConfig returns the agent's trading config.
func (s *AgentStore) LoadAgentConfig(ctx context.Context, agentID string) (*domain.AgentTradingConfig, error) {
	var mode string
	var autoTrade []byte
	err := s.pool.QueryRow(ctx, `
		SELECT trading_mode, auto_trade FROM agents WHERE agent_id = $1
	`, agentID).Scan(&mode, &autoTrade)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("load agent config: %w", err)
	}

	cfg := &domain.AgentTradingConfig{AgentID: agentID, TradingMode: domain.TradingMode(mode)}
	if err := json.Unmarshal(autoTrade, &cfg.AutoTrade); err != nil {
		return nil, fmt.Errorf("decode auto_trade of agent %s: %w", agentID, err)
	}
	return cfg, nil
}

// SaveAgentConfig creates or replaces the agent's config. New agents start active.
func (s *AgentStore) SaveAgentConfig(ctx context.Context, cfg *domain.AgentTradingConfig) error {
	if cfg == nil || cfg.AgentID == "" || !cfg.TradingMode.IsValid() {
		return storage.ErrInvalidInput
	}

	autoTrade, err := json.Marshal(cfg.AutoTrade)
	if err != nil {
		return fmt.Errorf("encode auto_trade: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO agents (agent_id, trading_mode, auto_trade, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (agent_id) DO UPDATE
		SET trading_mode = EXCLUDED.trading_mode,
		    auto_trade = EXCLUDED.auto_trade,
		    updated_at = NOW()
	`, cfg.AgentID, string(cfg.TradingMode), string(autoTrade))
	if err != nil {
		return fmt.Errorf("save agent config: %w", err)
	}
	return nil
}

// SetActive flips the agent's active flag.
func (s *AgentStore) SetActive(ctx context.Context, agentID string, active bool) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE agents SET active = $2, updated_at = NOW() WHERE agent_id = $1
	`, agentID, active)
	if err != nil {
		return fmt.Errorf("set agent active: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}
