// Package executor talks to the trade executor that opens positions.
package executor

import (
	"context"

	"autotrade-coordinator/internal/domain"
)

// Executor opens positions on behalf of agents.
// Expected refusals are returned as *domain.PurchaseError with a guardrail code.
type Executor interface {
	ExecutePurchase(ctx context.Context, req domain.PurchaseRequest) (*domain.PurchaseResult, error)
}
