package domain

// PositionStatus is the lifecycle state of a position.
type PositionStatus string

const (
	PositionStatusOpen   PositionStatus = "open"
	PositionStatusClosed PositionStatus = "closed"
)

// PositionRecord is a trading position of an agent.
// Corresponds to the positions table in PostgreSQL; the position cache holds JSON copies.
type PositionRecord struct {
	ID            string         `json:"id"`
	AgentID       string         `json:"agentId"`
	WalletAddress string         `json:"walletAddress"`
	TokenAddress  string         `json:"tokenAddress"`
	TokenSymbol   *string        `json:"tokenSymbol,omitempty"`
	Status        PositionStatus `json:"status"`
	AmountTokens  float64        `json:"amountTokens"`
	CostBasisUSD  float64        `json:"costBasisUsd"`
	EntryPriceUSD *float64       `json:"entryPriceUsd,omitempty"`
	OpenedAt      int64          `json:"openedAt"`           // ms
	UpdatedAt     int64          `json:"updatedAt"`          // ms
	ClosedAt      *int64         `json:"closedAt,omitempty"` // ms, nil while open
}

// Ref returns the identity of the position.
func (p *PositionRecord) Ref() PositionRef {
	return PositionRef{
		ID:            p.ID,
		AgentID:       p.AgentID,
		WalletAddress: p.WalletAddress,
		TokenAddress:  p.TokenAddress,
	}
}

// PositionRef identifies a position without its numeric fields.
type PositionRef struct {
	ID            string
	AgentID       string
	WalletAddress string
	TokenAddress  string
}

// Wallet is an agent's trading wallet for one trading mode.
type Wallet struct {
	AgentID     string
	Address     string
	TradingMode TradingMode
	Active      bool
	CreatedAt   int64 // ms
}
