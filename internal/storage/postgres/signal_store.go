package postgres

import (
	"context"
	"fmt"

	"autotrade-coordinator/internal/domain"
	"autotrade-coordinator/internal/storage"
)

// SignalStore implements storage.SignalStore using PostgreSQL.
type SignalStore struct {
	pool *Pool
}

// NewSignalStore creates a new SignalStore.
func NewSignalStore(pool *Pool) *SignalStore {
	return &SignalStore{pool: pool}
}

// Compile-time interface check.
var _ storage.SignalStore = (*SignalStore)(nil)

// Insert adds a signal. Returns ErrDuplicateKey if id exists.
func (s *SignalStore) Insert(ctx context.Context, sig *domain.Signal) error {
	if sig == nil || sig.ID == "" {
		return storage.ErrInvalidInput
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO signals (id, agent_id, token_address, token_symbol, kind, source, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, sig.ID, sig.AgentID, sig.TokenAddress, sig.TokenSymbol, sig.Kind, sig.Source, sig.CreatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert signal: %w", err)
	}
	return nil
}

// GetByID retrieves a signal by ID. Returns ErrNotFound if not exists.
func (s *SignalStore) GetByID(ctx context.Context, id string) (*domain.Signal, error) {
	var sig domain.Signal
	err := s.pool.QueryRow(ctx, `
		SELECT id, agent_id, token_address, token_symbol, kind, source, created_at
		FROM signals WHERE id = $1
	`, id).Scan(&sig.ID, &sig.AgentID, &sig.TokenAddress, &sig.TokenSymbol, &sig.Kind, &sig.Source, &sig.CreatedAt)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get signal: %w", err)
	}
	return &sig, nil
}
