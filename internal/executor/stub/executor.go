// Package stub provides a scripted executor for tests and dry runs.
package stub

import (
	"context"
	"fmt"
	"sync"

	"autotrade-coordinator/internal/domain"
)

// Executor records purchase requests and answers from a script.
// Errors are keyed by normalized token address; other tokens succeed.
type Executor struct {
	mu       sync.Mutex
	requests []domain.PurchaseRequest
	errors   map[string]error
	seq      int
}

// NewExecutor creates an executor where every purchase succeeds.
func NewExecutor() *Executor {
	return &Executor{errors: make(map[string]error)}
}

// FailWith makes purchases of token fail with err. A nil err clears the failure.
func (e *Executor) FailWith(token string, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	key := domain.NormalizeAddress(token)
	if err == nil {
		delete(e.errors, key)
		return
	}
	e.errors[key] = err
}

// ExecutePurchase records req and returns the scripted outcome.
func (e *Executor) ExecutePurchase(_ context.Context, req domain.PurchaseRequest) (*domain.PurchaseResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.requests = append(e.requests, req)
	if err, ok := e.errors[domain.NormalizeAddress(req.TokenAddress)]; ok {
		return nil, err
	}

	e.seq++
	return &domain.PurchaseResult{
		TransactionID: fmt.Sprintf("tx-%d", e.seq),
		PositionID:    fmt.Sprintf("pos-%d", e.seq),
	}, nil
}

// Requests returns a copy of the recorded requests.
func (e *Executor) Requests() []domain.PurchaseRequest {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]domain.PurchaseRequest, len(e.requests))
	copy(out, e.requests)
	return out
}

// Count returns the number of recorded requests.
func (e *Executor) Count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.requests)
}
