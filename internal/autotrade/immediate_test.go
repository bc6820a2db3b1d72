package autotrade_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autotrade-coordinator/internal/autotrade"
	"autotrade-coordinator/internal/domain"
)

func tradingConfig(global bool, tokens ...domain.AutoTradeToken) *domain.AgentTradingConfig {
	return &domain.AgentTradingConfig{
		AgentID:     "agent-1",
		TradingMode: domain.TradingModePaper,
		AutoTrade:   domain.AutoTradeConfig{Enabled: global, Tokens: tokens},
	}
}

func disabledToken(addr string) domain.AutoTradeToken {
	return domain.AutoTradeToken{Address: addr, Enabled: false}
}

func addresses(tokens []domain.AutoTradeToken) []string {
	out := make([]string, 0, len(tokens))
	for _, t := range tokens {
		out = append(out, t.Address)
	}
	return out
}

func TestNewlyEnabledTokens(t *testing.T) {
	tests := []struct {
		name     string
		previous *domain.AgentTradingConfig
		saved    *domain.AgentTradingConfig
		want     []string
	}{
		{
			name:  "first save with auto-trade on",
			saved: tradingConfig(true, enabled(tokenBonk, ""), disabledToken(tokenWif)),
			want:  []string{tokenBonk},
		},
		{
			name:     "global switched on",
			previous: tradingConfig(false, enabled(tokenBonk, ""), enabled(tokenWif, "")),
			saved:    tradingConfig(true, enabled(tokenBonk, ""), enabled(tokenWif, "")),
			want:     []string{tokenBonk, tokenWif},
		},
		{
			name:     "token switched on",
			previous: tradingConfig(true, enabled(tokenBonk, ""), disabledToken(tokenWif)),
			saved:    tradingConfig(true, enabled(tokenBonk, ""), enabled(tokenWif, "")),
			want:     []string{tokenWif},
		},
		{
			name:     "token added",
			previous: tradingConfig(true, enabled(tokenBonk, "")),
			saved:    tradingConfig(true, enabled(tokenBonk, ""), enabled(tokenPopc, "")),
			want:     []string{tokenPopc},
		},
		{
			name:     "address casing changed only",
			previous: tradingConfig(true, enabled(tokenBonk, "")),
			saved:    tradingConfig(true, enabled("  dezxaz8z7pnrnrjjz3wxborgixca6xjnb7yab1ppb263 ", "")),
			want:     []string{},
		},
		{
			name:     "global switched off",
			previous: tradingConfig(true, enabled(tokenBonk, "")),
			saved:    tradingConfig(false, enabled(tokenBonk, ""), enabled(tokenWif, "")),
			want:     []string{},
		},
		{
			name:     "nothing changed",
			previous: tradingConfig(true, enabled(tokenBonk, "")),
			saved:    tradingConfig(true, enabled(tokenBonk, "")),
			want:     []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := addresses(autotrade.NewlyEnabledTokens(tt.previous, tt.saved))
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestImmediateTrigger_BuysOnlyTransitioningTokens(t *testing.T) {
	h := newHarness(t)
	wallet := h.addWallet(t, "agent-1")
	h.provider.SetMarketCap(tokenPopc, 100_000)

	previous := tradingConfig(true, enabled(tokenBonk, "BONK"), disabledToken(tokenWif))
	saved := tradingConfig(true,
		enabled(tokenBonk, "BONK"),
		enabled(tokenWif, "WIF"),
		bounded(tokenPopc, "POPCAT", ptr(1_000_000.0), nil),
	)
	require.NoError(t, h.agents.SaveAgentConfig(context.Background(), saved))

	trigger, err := autotrade.NewImmediateTrigger(h.deps())
	require.NoError(t, err)

	outs := trigger.OnConfigSaved(context.Background(), "agent-1", previous, saved)
	require.Len(t, outs, 2)

	assert.Equal(t, domain.NormalizeAddress(tokenWif), outs[0].TokenAddress)
	assert.Equal(t, domain.OutcomePurchased, outs[0].Outcome)
	assert.Equal(t, domain.TriggerImmediate, outs[0].Trigger)
	assert.Equal(t, wallet, outs[0].WalletAddress)

	assert.Equal(t, domain.OutcomeDenied, outs[1].Outcome)
	assert.Equal(t, string(domain.GuardReasonBelowMin), outs[1].Reason)

	reqs := h.exec.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, domain.NormalizeAddress(tokenWif), reqs[0].TokenAddress)
	assert.Nil(t, reqs[0].SignalID)

	// A repeated save has no idempotency gate, but nothing transitions.
	assert.Empty(t, trigger.OnConfigSaved(context.Background(), "agent-1", saved, saved))
	assert.Equal(t, 0, h.idem.Len())
}

func TestImmediateTrigger_NoWallet(t *testing.T) {
	h := newHarness(t)
	saved := tradingConfig(true, enabled(tokenBonk, "BONK"))
	require.NoError(t, h.agents.SaveAgentConfig(context.Background(), saved))

	trigger, err := autotrade.NewImmediateTrigger(h.deps())
	require.NoError(t, err)

	outs := trigger.OnConfigSaved(context.Background(), "agent-1", nil, saved)
	require.Len(t, outs, 1)
	assert.Equal(t, domain.OutcomeSkipped, outs[0].Outcome)
	assert.Equal(t, autotrade.ReasonNoWallet, outs[0].Reason)
	assert.Equal(t, 0, h.exec.Count())
}

func TestImmediateTrigger_GuardrailIsNotEscalated(t *testing.T) {
	h := newHarness(t)
	h.addWallet(t, "agent-1")
	saved := tradingConfig(true, enabled(tokenBonk, "BONK"))
	require.NoError(t, h.agents.SaveAgentConfig(context.Background(), saved))
	h.exec.FailWith(tokenBonk, &domain.PurchaseError{Code: domain.CodeMaxPositionsExceeded, Message: "limit 5"})

	trigger, err := autotrade.NewImmediateTrigger(h.deps())
	require.NoError(t, err)

	outs := trigger.OnConfigSaved(context.Background(), "agent-1", nil, saved)
	require.Len(t, outs, 1)
	assert.Equal(t, domain.OutcomeGuardrail, outs[0].Outcome)
	assert.Equal(t, domain.CodeMaxPositionsExceeded, outs[0].ErrorCode)
}

func TestClassifyPurchaseError(t *testing.T) {
	for _, code := range []string{
		domain.CodeInsufficientBalance,
		domain.CodeBelowMinimum,
		domain.CodePositionExists,
		domain.CodeMaxPositionsExceeded,
		domain.CodePriceImpactTooHigh,
	} {
		outcome, got := autotrade.ClassifyPurchaseError(&domain.PurchaseError{Code: code})
		if outcome != domain.OutcomeGuardrail || got != code {
			t.Errorf("%s: got (%s, %s)", code, outcome, got)
		}
	}

	outcome, code := autotrade.ClassifyPurchaseError(&domain.PurchaseError{Code: "RPC_TIMEOUT"})
	if outcome != domain.OutcomeFailed || code != "RPC_TIMEOUT" {
		t.Errorf("unknown code: got (%s, %s)", outcome, code)
	}
}
