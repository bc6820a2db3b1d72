package poscache

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"autotrade-coordinator/internal/domain"
	"autotrade-coordinator/internal/logging"
	"autotrade-coordinator/internal/storage"
)

// Publisher receives position-closed events. *events.Bus satisfies it.
type Publisher interface {
	Publish(ctx context.Context, evt domain.PositionClosedEvent) error
}

// WriteThroughStore wraps the authoritative position store and keeps the cache
// in step: inserts and updates are written through, closes evict the position
// and publish a PositionClosedEvent.
// Cache failures are logged; the authoritative write has already happened.
type WriteThroughStore struct {
	storage.PositionStore
	cache     *Cache
	publisher Publisher
	log       logrus.FieldLogger
}

// NewWriteThroughStore creates a decorator over store. publisher may be nil.
func NewWriteThroughStore(store storage.PositionStore, cache *Cache, publisher Publisher, log logrus.FieldLogger) *WriteThroughStore {
	return &WriteThroughStore{
		PositionStore: store,
		cache:         cache,
		publisher:     publisher,
		log:           logging.OrDefault(log),
	}
}

// Insert implements storage.PositionStore.
func (s *WriteThroughStore) Insert(ctx context.Context, p *domain.PositionRecord) error {
	if err := s.PositionStore.Insert(ctx, p); err != nil {
		return err
	}
	s.writeThrough(ctx, p)
	return nil
}

// Update implements storage.PositionStore.
func (s *WriteThroughStore) Update(ctx context.Context, p *domain.PositionRecord) error {
	if err := s.PositionStore.Update(ctx, p); err != nil {
		return err
	}
	s.writeThrough(ctx, p)
	return nil
}

// Close implements storage.PositionStore. The event source is manual.
func (s *WriteThroughStore) Close(ctx context.Context, id string, closedAt int64) (*domain.PositionRecord, error) {
	return s.CloseWithSource(ctx, id, closedAt, domain.CloseSourceManual)
}

// CloseWithSource closes the position, evicts it from the cache and publishes the close.
func (s *WriteThroughStore) CloseWithSource(ctx context.Context, id string, closedAt int64, source domain.CloseSource) (*domain.PositionRecord, error) {
	rec, err := s.PositionStore.Close(ctx, id, closedAt)
	if err != nil {
		return nil, err
	}

	if err := s.cache.Delete(ctx, rec.Ref()); err != nil {
		s.log.WithField(logging.FieldPosition, id).WithError(err).Warn("evict closed position from cache")
	}

	if s.publisher != nil {
		evt := domain.PositionClosedEvent{
			AgentID:       rec.AgentID,
			PositionID:    rec.ID,
			WalletAddress: rec.WalletAddress,
			TokenAddress:  rec.TokenAddress,
			TokenSymbol:   rec.TokenSymbol,
			Source:        source,
			ClosedAt:      closedAt,
		}
		if err := s.publisher.Publish(ctx, evt); err != nil {
			return rec, fmt.Errorf("publish close of %s: %w", id, err)
		}
	}
	return rec, nil
}

func (s *WriteThroughStore) writeThrough(ctx context.Context, p *domain.PositionRecord) {
	if p.Status == domain.PositionStatusClosed {
		if err := s.cache.Delete(ctx, p.Ref()); err != nil {
			s.log.WithField(logging.FieldPosition, p.ID).WithError(err).Warn("evict position from cache")
		}
		return
	}
	if err := s.cache.Set(ctx, p); err != nil {
		s.log.WithField(logging.FieldPosition, p.ID).WithError(err).Warn("write position to cache")
	}
}

// HandlePositionClosed keeps the cache in step with close events from the bus.
// A wallet reset purges every cached position of the agent's wallet.
func (c *Cache) HandlePositionClosed(ctx context.Context, evt domain.PositionClosedEvent) {
	log := c.log.WithFields(logrus.Fields{
		logging.FieldAgent:    evt.AgentID,
		logging.FieldPosition: evt.PositionID,
	})

	if evt.Source == domain.CloseSourceWalletReset && evt.WalletAddress != "" {
		n, err := c.DeleteAllForWallet(ctx, evt.AgentID, evt.WalletAddress)
		if err != nil {
			log.WithError(err).Warn("purge wallet positions from cache")
			return
		}
		log.WithField("deleted", n).Info("purged wallet positions from cache")
		return
	}

	ref := domain.PositionRef{
		ID:            evt.PositionID,
		AgentID:       evt.AgentID,
		WalletAddress: evt.WalletAddress,
		TokenAddress:  evt.TokenAddress,
	}
	if err := c.Delete(ctx, ref); err != nil {
		log.WithError(err).Warn("evict closed position from cache")
	}
}
