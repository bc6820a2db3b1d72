package autotrade

import (
	"context"
	"errors"

	"autotrade-coordinator/internal/domain"
)

// ImmediateTrigger buys tokens the moment a configuration save enables them.
// It has no idempotency gate: each save is a distinct user action.
type ImmediateTrigger struct {
	deps Deps
}

// NewImmediateTrigger creates the trigger.
func NewImmediateTrigger(deps Deps) (*ImmediateTrigger, error) {
	if deps.Agents == nil || deps.Wallets == nil || deps.Executor == nil {
		return nil, errors.New("immediate: agents, wallets and executor are required")
	}
	return &ImmediateTrigger{deps: deps.withDefaults()}, nil
}

// NewlyEnabledTokens returns the tokens of saved that transitioned into the
// enabled auto-trade state: auto-trade on and token enabled now, and before
// either auto-trade was off or the token was absent or disabled.
// previous may be nil for a first save.
func NewlyEnabledTokens(previous, saved *domain.AgentTradingConfig) []domain.AutoTradeToken {
	if saved == nil || !saved.AutoTrade.Enabled {
		return nil
	}
	wasGlobal := previous != nil && previous.AutoTrade.Enabled

	var out []domain.AutoTradeToken
	for _, tok := range saved.AutoTrade.Tokens {
		if !tok.Enabled {
			continue
		}
		if !wasGlobal {
			out = append(out, tok)
			continue
		}
		if _, wasEnabled := previous.FindEnabledToken(tok.Address); !wasEnabled {
			out = append(out, tok)
		}
	}
	return out
}

// OnConfigSaved guards and buys every newly enabled token synchronously.
func (t *ImmediateTrigger) OnConfigSaved(ctx context.Context, agentID string, previous, saved *domain.AgentTradingConfig) []TokenOutcome {
	tokens := NewlyEnabledTokens(previous, saved)
	if len(tokens) == 0 {
		return nil
	}

	outs := make([]TokenOutcome, 0, len(tokens))

	wallet, err := t.deps.resolveWallet(ctx, agentID)
	if err != nil || wallet == nil {
		outcome, reason := domain.OutcomeSkipped, ReasonNoWallet
		if err != nil {
			outcome, reason = domain.OutcomeFailed, ReasonLookupFailed+": "+err.Error()
		}
		for _, tok := range tokens {
			outs = append(outs, t.deps.finish(ctx, TokenOutcome{
				Trigger:      domain.TriggerImmediate,
				AgentID:      agentID,
				TokenAddress: domain.NormalizeAddress(tok.Address),
				Outcome:      outcome,
				Reason:       reason,
			}))
		}
		return outs
	}

	for _, tok := range tokens {
		out := TokenOutcome{
			Trigger:       domain.TriggerImmediate,
			AgentID:       agentID,
			WalletAddress: wallet.Address,
			TokenAddress:  domain.NormalizeAddress(tok.Address),
		}

		verdict := t.deps.Guard.Evaluate(ctx, tok.Address, tok.Bounds())
		out.MarketCap = verdict.MarketCap
		if !verdict.Allowed {
			out.Outcome, out.Reason = domain.OutcomeDenied, string(verdict.Reason)
			outs = append(outs, t.deps.finish(ctx, out))
			continue
		}

		walletAddr := wallet.Address
		out = t.deps.purchase(ctx, out, domain.PurchaseRequest{
			AgentID:       agentID,
			WalletAddress: &walletAddr,
			TokenAddress:  domain.NormalizeAddress(tok.Address),
			TokenSymbol:   tok.SymbolPtr(),
		})
		outs = append(outs, t.deps.finish(ctx, out))
	}
	return outs
}
