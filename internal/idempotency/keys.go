package idempotency

import (
	"strings"

	"autotrade-coordinator/internal/domain"
)

// Namespace separates the keys of different trigger paths.
type Namespace string

const (
	NamespaceReentry   Namespace = "reentry"
	NamespaceReconcile Namespace = "reconcile"
)

const keyPrefix = "autotrade"

// Key joins namespace and parts into autotrade:<namespace>:<part>:...
// Parts are trimmed; address parts must be normalized by the caller.
func Key(ns Namespace, parts ...string) string {
	var b strings.Builder
	b.WriteString(keyPrefix)
	b.WriteByte(':')
	b.WriteString(string(ns))
	for _, p := range parts {
		b.WriteByte(':')
		b.WriteString(strings.TrimSpace(p))
	}
	return b.String()
}

// ReentryKey identifies one re-entry attempt per closed position.
func ReentryKey(agentID, positionID string) string {
	return Key(NamespaceReentry, agentID, positionID)
}

// ReconcileKey identifies one reconciliation attempt per agent, wallet and token.
func ReconcileKey(agentID, walletAddress, tokenAddress string) string {
	return Key(NamespaceReconcile, agentID, domain.NormalizeAddress(walletAddress), domain.NormalizeAddress(tokenAddress))
}

// NamespaceOf extracts the namespace of a key built by Key, or "" if key has another shape.
func NamespaceOf(key string) Namespace {
	parts := strings.SplitN(key, ":", 3)
	if len(parts) < 2 || parts[0] != keyPrefix {
		return ""
	}
	return Namespace(parts[1])
}
