package domain

import (
	"errors"
	"fmt"
)

// PurchaseRequest asks the trade executor to open a position.
type PurchaseRequest struct {
	AgentID       string  `json:"agentId"`
	WalletAddress *string `json:"walletAddress,omitempty"`
	TokenAddress  string  `json:"tokenAddress"`
	TokenSymbol   *string `json:"tokenSymbol,omitempty"`
	SignalID      *string `json:"signalId,omitempty"`
}

// PurchaseResult is returned by a successful purchase.
type PurchaseResult struct {
	TransactionID string `json:"transactionId"`
	PositionID    string `json:"positionId"`
}

// Guardrail codes returned by the trade executor when it refuses a purchase.
const (
	CodeInsufficientBalance  = "INSUFFICIENT_BALANCE"
	CodeBelowMinimum         = "BELOW_MINIMUM"
	CodePositionExists       = "POSITION_EXISTS"
	CodeMaxPositionsExceeded = "MAX_POSITIONS_EXCEEDED"
	CodePriceImpactTooHigh   = "PRICE_IMPACT_TOO_HIGH"
)

var guardrailCodes = map[string]bool{
	CodeInsufficientBalance:  true,
	CodeBelowMinimum:         true,
	CodePositionExists:       true,
	CodeMaxPositionsExceeded: true,
	CodePriceImpactTooHigh:   true,
}

// PurchaseError is a typed executor failure carrying a machine-readable code.
type PurchaseError struct {
	Code    string
	Message string
}

func (e *PurchaseError) Error() string {
	return fmt.Sprintf("purchase failed [%s]: %s", e.Code, e.Message)
}

// IsGuardrail reports whether the error is one of the expected executor refusals.
func (e *PurchaseError) IsGuardrail() bool {
	return guardrailCodes[e.Code]
}

// GuardrailCode returns the guardrail code of err, if err wraps an expected refusal.
func GuardrailCode(err error) (string, bool) {
	var pe *PurchaseError
	if errors.As(err, &pe) && pe.IsGuardrail() {
		return pe.Code, true
	}
	return "", false
}
