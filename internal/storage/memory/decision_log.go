package memory

import (
	"context"
	"sort"
	"sync"

	"autotrade-coordinator/internal/domain"
	"autotrade-coordinator/internal/storage"
)

// DecisionLog is an in-memory implementation of storage.DecisionLog.
type DecisionLog struct {
	mu   sync.RWMutex
	rows []domain.TriggerDecision
}

// NewDecisionLog creates a new in-memory decision log.
func NewDecisionLog() *DecisionLog {
	return &DecisionLog{}
}

// Record appends a decision.
func (l *DecisionLog) Record(_ context.Context, d *domain.TriggerDecision) error {
	if d == nil || d.DecisionID == "" {
		return storage.ErrInvalidInput
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.rows = append(l.rows, *d)
	return nil
}

// GetByAgent returns up to limit decisions of the agent, newest first.
// A non-positive limit returns all of them.
func (l *DecisionLog) GetByAgent(_ context.Context, agentID string, limit int) ([]*domain.TriggerDecision, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var result []*domain.TriggerDecision
	for i := range l.rows {
		if l.rows[i].AgentID == agentID {
			d := l.rows[i]
			result = append(result, &d)
		}
	}

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].DecidedAt > result[j].DecidedAt
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// All returns a copy of every recorded decision in insertion order.
func (l *DecisionLog) All() []domain.TriggerDecision {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]domain.TriggerDecision(nil), l.rows...)
}

var _ storage.DecisionLog = (*DecisionLog)(nil)
