// Package idempotency collapses duplicate auto-trade triggers into one execution.
package idempotency

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"autotrade-coordinator/internal/logging"
	"autotrade-coordinator/internal/observability"
	"autotrade-coordinator/internal/storage"
)

// Gate is a short-lived lock keyed by trigger identity, backed by a shared store.
// Keys are never released explicitly; they expire after their TTL.
type Gate struct {
	store storage.IdempotencyStore
	log   logrus.FieldLogger
}

// NewGate creates a gate over store.
func NewGate(store storage.IdempotencyStore, log logrus.FieldLogger) *Gate {
	return &Gate{store: store, log: logging.OrDefault(log)}
}

// CheckAndSet claims key for ttl. It returns true if this caller claimed it and
// false if a live claim already exists. A store error yields false and the wrapped error.
func (g *Gate) CheckAndSet(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ns := string(NamespaceOf(key))
	if ns == "" {
		ns = "other"
	}

	ok, err := g.store.CheckAndSet(ctx, key, ttl)
	switch {
	case err != nil:
		observability.RecordIdempotencyCheck(ns, "error")
		return false, fmt.Errorf("idempotency check %s: %w", key, err)
	case ok:
		observability.RecordIdempotencyCheck(ns, "acquired")
	default:
		observability.RecordIdempotencyCheck(ns, "held")
		g.log.WithField("key", key).Debug("idempotency key already held")
	}
	return ok, nil
}

// Purger is implemented by stores that keep expired keys until swept.
type Purger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

// PurgeExpired sweeps expired keys when the store keeps them. Stores that
// expire keys on their own report zero.
func (g *Gate) PurgeExpired(ctx context.Context) (int64, error) {
	p, ok := g.store.(Purger)
	if !ok {
		return 0, nil
	}
	n, err := p.PurgeExpired(ctx)
	if err != nil {
		return 0, fmt.Errorf("purge idempotency keys: %w", err)
	}
	return n, nil
}
