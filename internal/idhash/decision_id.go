package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"autotrade-coordinator/internal/domain"
)

// ComputeDecisionID computes a deterministic decision_id using SHA256.
// Formula: SHA256(trigger|agent_id|wallet|token|outcome|decided_at)
// Wallet and token are normalized first. Returns hex-encoded hash (64 characters).
func ComputeDecisionID(
	trigger domain.Trigger,
	agentID string,
	walletAddress string,
	tokenAddress string,
	outcome domain.Outcome,
	decidedAt int64,
) string {
	data := fmt.Sprintf("%s|%s|%s|%s|%s|%d",
		string(trigger),
		agentID,
		domain.NormalizeAddress(walletAddress),
		domain.NormalizeAddress(tokenAddress),
		string(outcome),
		decidedAt,
	)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
