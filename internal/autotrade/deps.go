// Package autotrade turns position closes, timer ticks and configuration saves
// into guarded, deduplicated purchase attempts.
package autotrade

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"autotrade-coordinator/internal/domain"
	"autotrade-coordinator/internal/executor"
	"autotrade-coordinator/internal/guard"
	"autotrade-coordinator/internal/idempotency"
	"autotrade-coordinator/internal/logging"
	"autotrade-coordinator/internal/storage"
)

// Reasons recorded on skipped and failed outcomes.
const (
	ReasonAutoTradeDisabled = "auto_trade_disabled"
	ReasonTokenNotEnabled   = "token_not_enabled"
	ReasonNoWallet          = "no_wallet"
	ReasonPositionExists    = "position_exists"
	ReasonLockHeld          = "lock_held"
	ReasonLockUnavailable   = "lock_unavailable"
	ReasonConfigUnavailable = "config_unavailable"
	ReasonLookupFailed      = "lookup_failed"
	ReasonExecutorError     = "executor_error"
)

// MarketCapGuard evaluates a token's market-cap bounds. *guard.Guard satisfies it.
type MarketCapGuard interface {
	Evaluate(ctx context.Context, tokenAddress string, bounds domain.TokenMarketCapBounds) domain.GuardResult
}

type defaultGuard struct{}

func (defaultGuard) Evaluate(ctx context.Context, tokenAddress string, bounds domain.TokenMarketCapBounds) domain.GuardResult {
	return guard.EvaluateAutoTradeMarketCapGuard(ctx, tokenAddress, bounds)
}

// Deps are the collaborators shared by the trigger paths.
type Deps struct {
	Agents    storage.AgentStore
	Wallets   storage.WalletStore
	Positions storage.PositionStore
	Executor  executor.Executor

	// Gate is required by the re-entry and reconciliation paths.
	Gate *idempotency.Gate

	// Guard defaults to the package-level guard.
	Guard MarketCapGuard

	// Signals is optional; without it no signal is linked to purchases.
	Signals storage.SignalStore

	// Decisions is optional; without it decisions are only logged.
	Decisions storage.DecisionLog

	Logger logrus.FieldLogger
	Now    func() time.Time
}

func (d Deps) withDefaults() Deps {
	if d.Guard == nil {
		d.Guard = defaultGuard{}
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	d.Logger = logging.OrDefault(d.Logger)
	return d
}

// resolveWallet returns the agent's active wallet for its current trading mode, or nil if it has none.
func (d Deps) resolveWallet(ctx context.Context, agentID string) (*domain.Wallet, error) {
	mode, err := d.Agents.GetTradingMode(ctx, agentID)
	if err != nil {
		return nil, fmt.Errorf("trading mode of %s: %w", agentID, err)
	}

	w, err := d.Wallets.FindWalletByAgent(ctx, agentID, mode)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("wallet of %s (%s): %w", agentID, mode, err)
	}
	return w, nil
}
