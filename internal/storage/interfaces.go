package storage

import (
	"context"
	"time"

	"autotrade-coordinator/internal/domain"
)

// IdempotencyStore is the shared store behind the idempotency gate.
type IdempotencyStore interface {
	// CheckAndSet atomically sets key with the given expiry if it is absent and returns true.
	// If key is present and unexpired it returns false and changes nothing.
	CheckAndSet(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

// CacheBackend is a shared key/value store with string sets, used by the position cache.
type CacheBackend interface {
	// Get returns the payload stored at key. Returns ErrNotFound if absent.
	Get(ctx context.Context, key string) (string, error)

	// Set stores value at key, overwriting any previous value.
	Set(ctx context.Context, key, value string) error

	// Del removes keys of any type. Missing keys are ignored.
	Del(ctx context.Context, keys ...string) error

	// SAdd adds members to the set at key, creating it if needed.
	SAdd(ctx context.Context, key string, members ...string) error

	// SRem removes members from the set at key. A set emptied by SRem is removed
	// in the same operation, so callers never delete index keys themselves.
	SRem(ctx context.Context, key string, members ...string) error

	// SMembers returns all members of the set at key (empty if absent).
	SMembers(ctx context.Context, key string) ([]string, error)

	// SCard returns the number of members of the set at key (0 if absent).
	SCard(ctx context.Context, key string) (int64, error)
}

// PositionStore is the authoritative store of positions.
type PositionStore interface {
	// Insert adds a new position. Returns ErrDuplicateKey if id exists.
	Insert(ctx context.Context, p *domain.PositionRecord) error

	// Update overwrites a position. Returns ErrNotFound if id does not exist.
	Update(ctx context.Context, p *domain.PositionRecord) error

	// Close marks a position closed and returns the closed record. Returns ErrNotFound if not exists.
	Close(ctx context.Context, id string, closedAt int64) (*domain.PositionRecord, error)

	// GetByID retrieves a position by ID. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, id string) (*domain.PositionRecord, error)

	// FindActivePosition finds the open position of an agent's wallet in a token.
	// Token and wallet match case-insensitively. Returns ErrNotFound if none is open.
	FindActivePosition(ctx context.Context, agentID, walletAddress, tokenAddress string) (*domain.PositionRef, error)

	// ListOpen retrieves all open positions.
	ListOpen(ctx context.Context) ([]*domain.PositionRecord, error)
}

// WalletStore provides access to agent wallets.
type WalletStore interface {
	// Insert adds a wallet. Returns ErrDuplicateKey if the address exists,
	// ErrInvalidInput if the address is not a signing key.
	Insert(ctx context.Context, w *domain.Wallet) error

	// FindWalletByAgent returns the active wallet of an agent for a trading mode.
	// Returns ErrNotFound if the agent has none.
	FindWalletByAgent(ctx context.Context, agentID string, mode domain.TradingMode) (*domain.Wallet, error)
}

// AgentStore provides access to agents and their trading configuration.
type AgentStore interface {
	// GetActiveAgentIDs returns IDs of all active agents, ordered by ID.
	GetActiveAgentIDs(ctx context.Context) ([]string, error)

	// GetTradingMode returns the agent's current trading mode. Returns ErrNotFound if unknown.
	GetTradingMode(ctx context.Context, agentID string) (domain.TradingMode, error)

	// LoadAgentConfig returns the agent's trading config. Returns ErrNotFound if unknown.
	LoadAgentConfig(ctx context.Context, agentID string) (*domain.AgentTradingConfig, error)

	// SaveAgentConfig creates or replaces the agent's trading config.
	SaveAgentConfig(ctx context.Context, cfg *domain.AgentTradingConfig) error

	// SetActive flips the agent's active flag. Returns ErrNotFound if unknown.
	SetActive(ctx context.Context, agentID string, active bool) error
}

// SignalStore provides access to auxiliary purchase signals.
type SignalStore interface {
	// Insert adds a signal. Returns ErrDuplicateKey if id exists.
	Insert(ctx context.Context, s *domain.Signal) error

	// GetByID retrieves a signal. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, id string) (*domain.Signal, error)
}

// DecisionLog is the append-only audit log of trigger decisions.
type DecisionLog interface {
	// Record appends a decision.
	Record(ctx context.Context, d *domain.TriggerDecision) error

	// GetByAgent returns the most recent decisions of an agent, newest first.
	GetByAgent(ctx context.Context, agentID string, limit int) ([]*domain.TriggerDecision, error)
}
