// Package guard decides whether a token's market cap permits an automated purchase.
// It fails closed: when bounds are configured and the market cap cannot be resolved,
// the purchase is denied.
package guard

import (
	"context"

	"github.com/sirupsen/logrus"

	"autotrade-coordinator/internal/domain"
	"autotrade-coordinator/internal/logging"
	"autotrade-coordinator/internal/observability"
)

// MetricsSource returns a token's metrics or nil when unavailable.
// *marketdata.MetricsCache satisfies it.
type MetricsSource interface {
	Fetch(ctx context.Context, tokenAddress string) *domain.TokenMetrics
}

// Guard evaluates market-cap bounds against cached market metrics.
type Guard struct {
	metrics MetricsSource
	log     logrus.FieldLogger
}

// New creates a guard reading metrics from source.
func New(source MetricsSource, log logrus.FieldLogger) *Guard {
	return &Guard{metrics: source, log: logging.OrDefault(log)}
}

// HasBounds reports whether at least one of min and max is set.
func HasBounds(b domain.TokenMarketCapBounds) bool {
	return b.MarketCapMin != nil || b.MarketCapMax != nil
}

// Evaluate decides whether tokenAddress may be bought under bounds.
// Without bounds no metrics are fetched.
func (g *Guard) Evaluate(ctx context.Context, tokenAddress string, bounds domain.TokenMarketCapBounds) domain.GuardResult {
	result := g.evaluate(ctx, tokenAddress, bounds)
	observability.RecordGuardDecision(string(result.Reason))

	entry := g.log.WithFields(logrus.Fields{
		logging.FieldToken:  domain.NormalizeAddress(tokenAddress),
		logging.FieldReason: result.Reason,
	})
	if result.MarketCap != nil {
		entry = entry.WithField("market_cap", *result.MarketCap)
	}
	entry.Debug("market-cap guard evaluated")

	return result
}

func (g *Guard) evaluate(ctx context.Context, tokenAddress string, bounds domain.TokenMarketCapBounds) domain.GuardResult {
	if !HasBounds(bounds) {
		return domain.GuardResult{Allowed: true, Reason: domain.GuardReasonNoBounds}
	}

	m := g.metrics.Fetch(ctx, tokenAddress)
	if m == nil || m.Mcap == nil {
		return domain.GuardResult{Allowed: false, Reason: domain.GuardReasonMetricsUnavailable}
	}

	mcap := *m.Mcap
	if bounds.MarketCapMin != nil && mcap < *bounds.MarketCapMin {
		return domain.GuardResult{Allowed: false, Reason: domain.GuardReasonBelowMin, MarketCap: &mcap}
	}
	if bounds.MarketCapMax != nil && mcap > *bounds.MarketCapMax {
		return domain.GuardResult{Allowed: false, Reason: domain.GuardReasonAboveMax, MarketCap: &mcap}
	}
	return domain.GuardResult{Allowed: true, Reason: domain.GuardReasonInRange, MarketCap: &mcap}
}
