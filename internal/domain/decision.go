package domain

// Trigger identifies the path that attempted an automated purchase.
type Trigger string

const (
	TriggerReentry   Trigger = "reentry"
	TriggerReconcile Trigger = "reconcile"
	TriggerImmediate Trigger = "immediate"
)

// Outcome of a single trigger attempt.
type Outcome string

const (
	OutcomePurchased Outcome = "purchased"
	OutcomeDenied    Outcome = "denied"    // market-cap guard said no
	OutcomeGuardrail Outcome = "guardrail" // executor refused with a known code
	OutcomeFailed    Outcome = "failed"    // unexpected executor or infrastructure error
	OutcomeSkipped   Outcome = "skipped"   // nothing to do (position exists, disabled, no wallet)
	OutcomeDuplicate Outcome = "duplicate" // idempotency gate already held
)

// TriggerDecision is an audit row of what a trigger path decided for one token.
// Corresponds to trigger_decisions table in ClickHouse.
type TriggerDecision struct {
	DecisionID    string   `json:"decisionId"`
	Trigger       Trigger  `json:"trigger"`
	AgentID       string   `json:"agentId"`
	WalletAddress string   `json:"walletAddress,omitempty"`
	TokenAddress  string   `json:"tokenAddress"`
	Outcome       Outcome  `json:"outcome"`
	Reason        string   `json:"reason,omitempty"`
	MarketCap     *float64 `json:"marketCap,omitempty"`
	ErrorCode     string   `json:"errorCode,omitempty"`
	PositionID    string   `json:"positionId,omitempty"`
	DecidedAt     int64    `json:"decidedAt"` // ms
}
