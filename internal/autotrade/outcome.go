package autotrade

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	"autotrade-coordinator/internal/domain"
	"autotrade-coordinator/internal/idhash"
	"autotrade-coordinator/internal/logging"
	"autotrade-coordinator/internal/observability"
)

// TokenOutcome is what one trigger path decided for one token.
type TokenOutcome struct {
	Trigger       domain.Trigger `json:"trigger"`
	AgentID       string         `json:"agentId"`
	WalletAddress string         `json:"walletAddress,omitempty"`
	TokenAddress  string         `json:"tokenAddress"`
	Outcome       domain.Outcome `json:"outcome"`
	Reason        string         `json:"reason,omitempty"`
	MarketCap     *float64       `json:"marketCap,omitempty"`
	ErrorCode     string         `json:"errorCode,omitempty"`
	PositionID    string         `json:"positionId,omitempty"`
}

// ClassifyPurchaseError maps an executor error to an outcome and error code.
// Known guardrail refusals are expected; everything else is a failure.
func ClassifyPurchaseError(err error) (domain.Outcome, string) {
	if code, ok := domain.GuardrailCode(err); ok {
		return domain.OutcomeGuardrail, code
	}
	var pe *domain.PurchaseError
	if errors.As(err, &pe) {
		return domain.OutcomeFailed, pe.Code
	}
	return domain.OutcomeFailed, ""
}

// purchase invokes the executor and fills the outcome from its result.
func (d Deps) purchase(ctx context.Context, out TokenOutcome, req domain.PurchaseRequest) TokenOutcome {
	res, err := d.Executor.ExecutePurchase(ctx, req)
	if err != nil {
		out.Outcome, out.ErrorCode = ClassifyPurchaseError(err)
		out.Reason = err.Error()
		if out.Outcome == domain.OutcomeFailed && out.ErrorCode == "" {
			out.Reason = ReasonExecutorError + ": " + err.Error()
		}
		return out
	}

	out.Outcome = domain.OutcomePurchased
	out.PositionID = res.PositionID
	return out
}

// finish logs the outcome at its level, counts it and appends it to the decision log.
// Decision log failures are logged and swallowed.
func (d Deps) finish(ctx context.Context, out TokenOutcome) TokenOutcome {
	observability.RecordTriggerOutcome(string(out.Trigger), string(out.Outcome))

	entry := d.Logger.WithFields(logrus.Fields{
		logging.FieldTrigger: out.Trigger,
		logging.FieldAgent:   out.AgentID,
		logging.FieldToken:   out.TokenAddress,
		"outcome":            out.Outcome,
	})
	if out.WalletAddress != "" {
		entry = entry.WithField(logging.FieldWallet, out.WalletAddress)
	}
	if out.Reason != "" {
		entry = entry.WithField(logging.FieldReason, out.Reason)
	}
	if out.ErrorCode != "" {
		entry = entry.WithField(logging.FieldCode, out.ErrorCode)
	}
	if out.MarketCap != nil {
		entry = entry.WithField("market_cap", *out.MarketCap)
	}

	switch out.Outcome {
	case domain.OutcomePurchased:
		entry.WithField(logging.FieldPosition, out.PositionID).Info("auto-trade purchase executed")
	case domain.OutcomeGuardrail:
		entry.Info("auto-trade purchase refused by executor guardrail")
	case domain.OutcomeDenied:
		entry.Info("auto-trade purchase denied by market-cap guard")
	case domain.OutcomeFailed:
		entry.Warn("auto-trade purchase failed")
	default:
		entry.Debug("auto-trade trigger skipped")
	}

	d.recordDecision(ctx, out)
	return out
}

func (d Deps) recordDecision(ctx context.Context, out TokenOutcome) {
	if d.Decisions == nil {
		return
	}

	decidedAt := d.Now().UnixMilli()
	dec := &domain.TriggerDecision{
		DecisionID:    idhash.ComputeDecisionID(out.Trigger, out.AgentID, out.WalletAddress, out.TokenAddress, out.Outcome, decidedAt),
		Trigger:       out.Trigger,
		AgentID:       out.AgentID,
		WalletAddress: out.WalletAddress,
		TokenAddress:  out.TokenAddress,
		Outcome:       out.Outcome,
		Reason:        out.Reason,
		MarketCap:     out.MarketCap,
		ErrorCode:     out.ErrorCode,
		PositionID:    out.PositionID,
		DecidedAt:     decidedAt,
	}
	if err := d.Decisions.Record(ctx, dec); err != nil {
		d.Logger.WithField(logging.FieldAgent, out.AgentID).WithError(err).Warn("record trigger decision")
	}
}
