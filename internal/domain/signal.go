package domain

// Signal kinds.
const (
	SignalKindBuy = "BUY"
)

// Signal is the auxiliary record linked to an automated purchase.
type Signal struct {
	ID           string
	AgentID      string
	TokenAddress string
	TokenSymbol  *string
	Kind         string
	Source       string // trigger that produced the signal
	CreatedAt    int64  // ms
}
