package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGuardrailCode(t *testing.T) {
	for _, code := range []string{
		CodeInsufficientBalance,
		CodeBelowMinimum,
		CodePositionExists,
		CodeMaxPositionsExceeded,
		CodePriceImpactTooHigh,
	} {
		wrapped := fmt.Errorf("execute: %w", &PurchaseError{Code: code, Message: "refused"})
		got, ok := GuardrailCode(wrapped)
		assert.True(t, ok, code)
		assert.Equal(t, code, got)
	}

	_, ok := GuardrailCode(&PurchaseError{Code: "RPC_TIMEOUT"})
	assert.False(t, ok)

	_, ok = GuardrailCode(errors.New("boom"))
	assert.False(t, ok)
}

func TestGuardReason_Allows(t *testing.T) {
	assert.True(t, GuardReasonNoBounds.Allows())
	assert.True(t, GuardReasonInRange.Allows())
	assert.False(t, GuardReasonMetricsUnavailable.Allows())
	assert.False(t, GuardReasonBelowMin.Allows())
	assert.False(t, GuardReasonAboveMax.Allows())
}
