package domain

// CloseSource explains why a position was closed.
type CloseSource string

const (
	CloseSourceStopLoss     CloseSource = "stop_loss"
	CloseSourceTakeProfit   CloseSource = "take_profit"
	CloseSourceManual       CloseSource = "manual"
	CloseSourceStrategyExit CloseSource = "strategy_exit"
	// CloseSourceWalletReset closes positions as part of a wallet reset.
	// It only drives cleanup listeners and must never cause a repurchase.
	CloseSourceWalletReset CloseSource = "wallet_reset"
)

// PositionClosedEvent is published when a position closes.
type PositionClosedEvent struct {
	AgentID       string      `json:"agentId"`
	PositionID    string      `json:"positionId"`
	WalletAddress string      `json:"walletAddress,omitempty"`
	TokenAddress  string      `json:"tokenAddress"`
	TokenSymbol   *string     `json:"tokenSymbol,omitempty"`
	Source        CloseSource `json:"source"`
	ClosedAt      int64       `json:"closedAt"` // ms
}
