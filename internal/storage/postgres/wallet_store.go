package postgres

import (
	"context"
	"fmt"

	"autotrade-coordinator/internal/domain"
	"autotrade-coordinator/internal/storage"
)

// WalletStore implements storage.WalletStore using PostgreSQL.
type WalletStore struct {
	pool *Pool
}

// NewWalletStore creates a new WalletStore.
func NewWalletStore(pool *Pool) *WalletStore {
	return &WalletStore{pool: pool}
}

// Compile-time interface check.
var _ storage.WalletStore = (*WalletStore)(nil)

// Insert adds a wallet. Off-curve addresses cannot sign and are rejected.
func (s *WalletStore) Insert(ctx context.Context, w *domain.Wallet) error {
	if w == nil || w.AgentID == "" || !w.TradingMode.IsValid() {
		return storage.ErrInvalidInput
	}
	if domain.ValidateTokenAddress(w.Address) != nil || !domain.IsOnCurve(w.Address) {
		return storage.ErrInvalidInput
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO wallets (address, agent_id, trading_mode, active, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, w.Address, w.AgentID, string(w.TradingMode), w.Active, w.CreatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert wallet: %w", err)
	}
	return nil
}

// FindWalletByAgent returns the newest active wallet of the agent for mode.
func (s *WalletStore) FindWalletByAgent(ctx context.Context, agentID string, mode domain.TradingMode) (*domain.Wallet, error) {
	query := `
		SELECT address, agent_id, trading_mode, active, created_at
		FROM wallets
		WHERE agent_id = $1 AND trading_mode = $2 AND active
		ORDER BY created_at DESC
		LIMIT 1
	`

	var w domain.Wallet
	var tradingMode string
	err := s.pool.QueryRow(ctx, query, agentID, string(mode)).
		Scan(&w.Address, &w.AgentID, &tradingMode, &w.Active, &w.CreatedAt)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("find wallet: %w", err)
	}
	w.TradingMode = domain.TradingMode(tradingMode)
	return &w, nil
}
