package clickhouse

import (
	"context"
	"fmt"

	"autotrade-coordinator/internal/domain"
	"autotrade-coordinator/internal/storage"
)

// DecisionLog implements storage.DecisionLog using ClickHouse.
// Rows are append-only; MergeTree does not deduplicate decision_id.
type DecisionLog struct {
	conn *Conn
}

// NewDecisionLog creates a new DecisionLog.
func NewDecisionLog(conn *Conn) *DecisionLog {
	return &DecisionLog{conn: conn}
}

// Compile-time interface check.
var _ storage.DecisionLog = (*DecisionLog)(nil)

// Record appends a decision.
func (l *DecisionLog) Record(ctx context.Context, d *domain.TriggerDecision) error {
	if d == nil || d.DecisionID == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO trigger_decisions (
			decision_id, trigger_path, agent_id, wallet_address, token_address,
			outcome, reason, market_cap, error_code, position_id, decided_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	err := l.conn.Exec(ctx, query,
		d.DecisionID, string(d.Trigger), d.AgentID, d.WalletAddress, d.TokenAddress,
		string(d.Outcome), d.Reason, d.MarketCap, d.ErrorCode, d.PositionID, d.DecidedAt,
	)
	if err != nil {
		return fmt.Errorf("insert trigger decision: %w", err)
	}
	return nil
}

// GetByAgent returns up to limit decisions of the agent, newest first.
func (l *DecisionLog) GetByAgent(ctx context.Context, agentID string, limit int) ([]*domain.TriggerDecision, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT decision_id, trigger_path, agent_id, wallet_address, token_address,
		       outcome, reason, market_cap, error_code, position_id, decided_at
		FROM trigger_decisions
		WHERE agent_id = ?
		ORDER BY decided_at DESC, decision_id DESC
		LIMIT ?
	`

	rows, err := l.conn.Query(ctx, query, agentID, limit)
	if err != nil {
		return nil, fmt.Errorf("query trigger decisions: %w", err)
	}
	defer rows.Close()

	var result []*domain.TriggerDecision
	for rows.Next() {
		var d domain.TriggerDecision
		var trigger, outcome string
		if err := rows.Scan(
			&d.DecisionID, &trigger, &d.AgentID, &d.WalletAddress, &d.TokenAddress,
			&outcome, &d.Reason, &d.MarketCap, &d.ErrorCode, &d.PositionID, &d.DecidedAt,
		); err != nil {
			return nil, fmt.Errorf("scan trigger decision: %w", err)
		}
		d.Trigger = domain.Trigger(trigger)
		d.Outcome = domain.Outcome(outcome)
		result = append(result, &d)
	}
	return result, rows.Err()
}
