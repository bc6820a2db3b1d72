package domain

import "strings"

// TradingMode selects which wallet an agent trades from.
type TradingMode string

const (
	TradingModePaper TradingMode = "paper"
	TradingModeLive  TradingMode = "live"
)

// IsValid checks if the trading mode is a known value.
func (m TradingMode) IsValid() bool {
	return m == TradingModePaper || m == TradingModeLive
}

// TokenMarketCapBounds is the optional market-cap policy of an auto-trade token.
// Both fields nil means no restriction.
type TokenMarketCapBounds struct {
	MarketCapMin *float64 `json:"marketCapMin,omitempty"`
	MarketCapMax *float64 `json:"marketCapMax,omitempty"`
}

// AutoTradeToken is one token entry of an agent's auto-trade configuration.
type AutoTradeToken struct {
	Address      string   `json:"address"`
	Symbol       string   `json:"symbol"`
	Enabled      bool     `json:"enabled"`
	MarketCapMin *float64 `json:"marketCapMin,omitempty"`
	MarketCapMax *float64 `json:"marketCapMax,omitempty"`
}

// Bounds returns the token's market-cap policy.
func (t AutoTradeToken) Bounds() TokenMarketCapBounds {
	return TokenMarketCapBounds{MarketCapMin: t.MarketCapMin, MarketCapMax: t.MarketCapMax}
}

// SymbolPtr returns the symbol or nil when unset.
func (t AutoTradeToken) SymbolPtr() *string {
	if strings.TrimSpace(t.Symbol) == "" {
		return nil
	}
	s := t.Symbol
	return &s
}

// AutoTradeConfig is the auto-trade section of an agent's trading config.
type AutoTradeConfig struct {
	Enabled bool             `json:"enabled"`
	Tokens  []AutoTradeToken `json:"tokens"`
}

// AgentTradingConfig is the trading configuration of a single agent.
type AgentTradingConfig struct {
	AgentID     string          `json:"agentId"`
	TradingMode TradingMode     `json:"tradingMode"`
	AutoTrade   AutoTradeConfig `json:"autoTrade"`
}

// EnabledTokens returns the enabled auto-trade tokens, or nil when auto-trade is off.
func (c *AgentTradingConfig) EnabledTokens() []AutoTradeToken {
	if c == nil || !c.AutoTrade.Enabled {
		return nil
	}
	var out []AutoTradeToken
	for _, t := range c.AutoTrade.Tokens {
		if t.Enabled {
			out = append(out, t)
		}
	}
	return out
}

// FindEnabledToken finds an enabled token by case-insensitive address match.
func (c *AgentTradingConfig) FindEnabledToken(address string) (AutoTradeToken, bool) {
	if c == nil {
		return AutoTradeToken{}, false
	}
	for _, t := range c.AutoTrade.Tokens {
		if t.Enabled && SameAddress(t.Address, address) {
			return t, true
		}
	}
	return AutoTradeToken{}, false
}
