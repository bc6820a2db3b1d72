package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autotrade-coordinator/internal/domain"
)

func TestDecisionLog_GetByAgent(t *testing.T) {
	log := NewDecisionLog()
	ctx := context.Background()

	for i, agent := range []string{"a1", "a2", "a1", "a1"} {
		require.NoError(t, log.Record(ctx, &domain.TriggerDecision{
			DecisionID: string(rune('a' + i)),
			Trigger:    domain.TriggerReconcile,
			AgentID:    agent,
			Outcome:    domain.OutcomeSkipped,
			DecidedAt:  int64(1000 + i),
		}))
	}

	got, err := log.GetByAgent(ctx, "a1", 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, int64(1003), got[0].DecidedAt)
	assert.Equal(t, int64(1002), got[1].DecidedAt)

	all, err := log.GetByAgent(ctx, "a1", 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
	assert.Len(t, log.All(), 4)
}
