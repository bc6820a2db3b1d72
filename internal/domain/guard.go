package domain

// GuardReason is the machine-readable reason of a market-cap guard decision.
type GuardReason string

const (
	GuardReasonNoBounds           GuardReason = "no_bounds_configured"
	GuardReasonMetricsUnavailable GuardReason = "metrics_unavailable"
	GuardReasonBelowMin           GuardReason = "below_min"
	GuardReasonAboveMax           GuardReason = "above_max"
	GuardReasonInRange            GuardReason = "in_range"
)

// Allows reports whether the reason permits a purchase.
func (r GuardReason) Allows() bool {
	return r == GuardReasonNoBounds || r == GuardReasonInRange
}

// GuardResult is the outcome of a market-cap guard evaluation.
// MarketCap is non-nil only when metrics were actually retrieved.
type GuardResult struct {
	Allowed   bool        `json:"allowed"`
	Reason    GuardReason `json:"reason"`
	MarketCap *float64    `json:"marketCap"`
}
