package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"autotrade-coordinator/internal/domain"
	"autotrade-coordinator/internal/storage"
)

// PositionStore implements storage.PositionStore using PostgreSQL.
type PositionStore struct {
	pool *Pool
}

// NewPositionStore creates a new PositionStore.
func NewPositionStore(pool *Pool) *PositionStore {
	return &PositionStore{pool: pool}
}

// Compile-time interface check.
var _ storage.PositionStore = (*PositionStore)(nil)

const positionColumns = `
	id, agent_id, wallet_address, token_address, token_symbol, status,
	amount_tokens, cost_basis_usd, entry_price_usd,
	opened_at, updated_at, closed_at
`

// Insert adds a new position. Returns ErrDuplicateKey if id exists.
func (s *PositionStore) Insert(ctx context.Context, p *domain.PositionRecord) error {
	if p == nil || p.ID == "" || p.AgentID == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO positions (` + positionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	_, err := s.pool.Exec(ctx, query,
		p.ID, p.AgentID, p.WalletAddress, p.TokenAddress, p.TokenSymbol, string(p.Status),
		p.AmountTokens, p.CostBasisUSD, p.EntryPriceUSD,
		p.OpenedAt, p.UpdatedAt, p.ClosedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert position: %w", err)
	}
	return nil
}

// Update overwrites a position. Returns ErrNotFound if id does not exist.
func (s *PositionStore) Update(ctx context.Context, p *domain.PositionRecord) error {
	if p == nil || p.ID == "" {
		return storage.ErrInvalidInput
	}

	query := `
		UPDATE positions SET
			agent_id = $2, wallet_address = $3, token_address = $4, token_symbol = $5, status = $6,
			amount_tokens = $7, cost_basis_usd = $8, entry_price_usd = $9,
			opened_at = $10, updated_at = $11, closed_at = $12
		WHERE id = $1
	`

	tag, err := s.pool.Exec(ctx, query,
		p.ID, p.AgentID, p.WalletAddress, p.TokenAddress, p.TokenSymbol, string(p.Status),
		p.AmountTokens, p.CostBasisUSD, p.EntryPriceUSD,
		p.OpenedAt, p.UpdatedAt, p.ClosedAt,
	)
	if err != nil {
		return fmt.Errorf("update position: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// Close marks a position closed. Closing an already closed position keeps its original close time.
func (s *PositionStore) Close(ctx context.Context, id string, closedAt int64) (*domain.PositionRecord, error) {
	_, err := s.pool.Exec(ctx, `
		UPDATE positions
		SET status = 'closed', closed_at = $2, updated_at = $2
		WHERE id = $1 AND status = 'open'
	`, id, closedAt)
	if err != nil {
		return nil, fmt.Errorf("close position: %w", err)
	}
	return s.GetByID(ctx, id)
}

// GetByID retrieves a position by ID. Returns ErrNotFound if not exists.
func (s *PositionStore) GetByID(ctx context.Context, id string) (*domain.PositionRecord, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+positionColumns+` FROM positions WHERE id = $1`, id)

	p, err := scanPosition(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get position: %w", err)
	}
	return p, nil
}

// FindActivePosition returns the open position of the wallet in the token.
// Both addresses are compared with lower() on each side.
func (s *PositionStore) FindActivePosition(ctx context.Context, agentID, walletAddress, tokenAddress string) (*domain.PositionRef, error) {
	query := `
		SELECT id, agent_id, wallet_address, token_address
		FROM positions
		WHERE status = 'open'
		  AND agent_id = $1
		  AND lower(wallet_address) = $2
		  AND lower(token_address) = $3
		ORDER BY opened_at DESC
		LIMIT 1
	`

	var ref domain.PositionRef
	err := s.pool.QueryRow(ctx, query,
		agentID, domain.NormalizeAddress(walletAddress), domain.NormalizeAddress(tokenAddress),
	).Scan(&ref.ID, &ref.AgentID, &ref.WalletAddress, &ref.TokenAddress)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("find active position: %w", err)
	}
	return &ref, nil
}

// ListOpen returns open positions ordered by opened_at ASC.
func (s *PositionStore) ListOpen(ctx context.Context) ([]*domain.PositionRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+positionColumns+`
		FROM positions
		WHERE status = 'open'
		ORDER BY opened_at ASC, id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list open positions: %w", err)
	}
	defer rows.Close()

	var result []*domain.PositionRecord
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("scan position: %w", err)
		}
		result = append(result, p)
	}
	return result, rows.Err()
}

func scanPosition(row pgx.Row) (*domain.PositionRecord, error) {
	var p domain.PositionRecord
	var status string
	err := row.Scan(
		&p.ID, &p.AgentID, &p.WalletAddress, &p.TokenAddress, &p.TokenSymbol, &status,
		&p.AmountTokens, &p.CostBasisUSD, &p.EntryPriceUSD,
		&p.OpenedAt, &p.UpdatedAt, &p.ClosedAt,
	)
	if err != nil {
		return nil, err
	}
	p.Status = domain.PositionStatus(status)
	return &p, nil
}
