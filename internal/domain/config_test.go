package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func ptr[T any](v T) *T {
	return &v
}

func TestAgentTradingConfig_EnabledTokens(t *testing.T) {
	cfg := &AgentTradingConfig{
		AgentID: "agent-1",
		AutoTrade: AutoTradeConfig{
			Enabled: true,
			Tokens: []AutoTradeToken{
				{Address: "TokenA", Enabled: true},
				{Address: "TokenB", Enabled: false},
				{Address: "TokenC", Enabled: true, MarketCapMin: ptr(1000.0)},
			},
		},
	}

	tokens := cfg.EnabledTokens()
	assert.Len(t, tokens, 2)
	assert.Equal(t, "TokenA", tokens[0].Address)
	assert.Equal(t, "TokenC", tokens[1].Address)
	assert.Equal(t, 1000.0, *tokens[1].Bounds().MarketCapMin)

	cfg.AutoTrade.Enabled = false
	assert.Empty(t, cfg.EnabledTokens())

	var nilCfg *AgentTradingConfig
	assert.Empty(t, nilCfg.EnabledTokens())
}

func TestAgentTradingConfig_FindEnabledToken(t *testing.T) {
	cfg := &AgentTradingConfig{
		AutoTrade: AutoTradeConfig{
			Enabled: true,
			Tokens: []AutoTradeToken{
				{Address: "0xAbC0000000000000000000000000000000000001", Symbol: "ABC", Enabled: true},
				{Address: "0xDeF0000000000000000000000000000000000002", Symbol: "DEF", Enabled: false},
			},
		},
	}

	tok, ok := cfg.FindEnabledToken("0xabc0000000000000000000000000000000000001")
	assert.True(t, ok)
	assert.Equal(t, "ABC", tok.Symbol)

	_, ok = cfg.FindEnabledToken("0xdef0000000000000000000000000000000000002")
	assert.False(t, ok, "disabled token must not match")

	_, ok = cfg.FindEnabledToken("0x0000000000000000000000000000000000000003")
	assert.False(t, ok)
}

func TestAutoTradeToken_SymbolPtr(t *testing.T) {
	assert.Nil(t, AutoTradeToken{Symbol: " "}.SymbolPtr())
	assert.Equal(t, "BONK", *AutoTradeToken{Symbol: "BONK"}.SymbolPtr())
}
