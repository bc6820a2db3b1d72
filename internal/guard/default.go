package guard

import (
	"context"
	"sync"

	"autotrade-coordinator/internal/domain"
	"autotrade-coordinator/internal/logging"
)

var (
	defaultMu    sync.RWMutex
	defaultGuard *Guard
)

// SetDefault installs the guard used by the package-level helpers.
// cmd/coordinator calls it once at startup.
func SetDefault(g *Guard) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultGuard = g
}

// EvaluateAutoTradeMarketCapGuard evaluates bounds with the default guard.
// Without a default guard every bounded token is denied as metrics_unavailable.
func EvaluateAutoTradeMarketCapGuard(ctx context.Context, tokenAddress string, bounds domain.TokenMarketCapBounds) domain.GuardResult {
	defaultMu.RLock()
	g := defaultGuard
	defaultMu.RUnlock()

	if g == nil {
		g = New(noMetrics{}, logging.Discard())
	}
	return g.Evaluate(ctx, tokenAddress, bounds)
}

// HasAutoTradeMarketCapBounds reports whether bounds restrict anything.
func HasAutoTradeMarketCapBounds(bounds domain.TokenMarketCapBounds) bool {
	return HasBounds(bounds)
}

type noMetrics struct{}

func (noMetrics) Fetch(context.Context, string) *domain.TokenMetrics { return nil }
