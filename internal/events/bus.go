// Package events carries position-closed notifications from the components
// that close positions to the listeners that react to them.
package events

import (
	"context"
	"errors"
	"runtime/debug"
	"sync"

	"github.com/sirupsen/logrus"

	"autotrade-coordinator/internal/domain"
	"autotrade-coordinator/internal/logging"
	"autotrade-coordinator/internal/observability"
)

// ErrClosed is returned by Publish after Close.
var ErrClosed = errors.New("event bus closed")

// DefaultBuffer is the subscriber channel capacity used when Subscribe gets a non-positive buffer.
const DefaultBuffer = 64

// Handler processes one event.
type Handler func(ctx context.Context, evt domain.PositionClosedEvent)

type subscriber struct {
	ch   chan domain.PositionClosedEvent
	done chan struct{}
}

// Bus is an in-process publish/subscribe bus of PositionClosedEvent.
// Each subscriber owns a bounded channel. Delivery is at-least-once to the
// subscribers attached at publish time, with no ordering across subscribers.
type Bus struct {
	mu     sync.RWMutex
	subs   map[uint64]*subscriber
	nextID uint64
	closed bool
	log    logrus.FieldLogger
}

// NewBus creates an empty bus.
func NewBus(log logrus.FieldLogger) *Bus {
	return &Bus{
		subs: make(map[uint64]*subscriber),
		log:  logging.OrDefault(log),
	}
}

// Subscribe attaches a subscriber and returns its id and channel.
// The channel is never closed; use Consume or watch for Unsubscribe.
func (b *Bus) Subscribe(buffer int) (uint64, <-chan domain.PositionClosedEvent) {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	s := &subscriber{
		ch:   make(chan domain.PositionClosedEvent, buffer),
		done: make(chan struct{}),
	}
	if b.closed {
		close(s.done)
	} else {
		b.subs[b.nextID] = s
	}
	return b.nextID, s.ch
}

// Unsubscribe detaches a subscriber. Unknown ids are ignored.
func (b *Bus) Unsubscribe(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if s, ok := b.subs[id]; ok {
		close(s.done)
		delete(b.subs, id)
	}
}

// Publish delivers evt to every attached subscriber. It blocks until each
// subscriber accepted the event or detached, or ctx is done.
func (b *Bus) Publish(ctx context.Context, evt domain.PositionClosedEvent) error {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return ErrClosed
	}
	targets := make([]*subscriber, 0, len(b.subs))
	for _, s := range b.subs {
		targets = append(targets, s)
	}
	b.mu.RUnlock()

	for _, s := range targets {
		select {
		case s.ch <- evt:
		case <-s.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	observability.RecordEventPublished()
	return nil
}

// Consume runs fn for every event on ch until ctx is done or the subscriber
// detaches. A panicking handler is logged and the next event is processed.
func (b *Bus) Consume(ctx context.Context, id uint64, ch <-chan domain.PositionClosedEvent, fn Handler) {
	b.mu.RLock()
	s, ok := b.subs[id]
	b.mu.RUnlock()
	if !ok {
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case evt := <-ch:
			b.dispatch(ctx, evt, fn)
		}
	}
}

func (b *Bus) dispatch(ctx context.Context, evt domain.PositionClosedEvent, fn Handler) {
	defer func() {
		if r := recover(); r != nil {
			observability.RecordHandlerPanic()
			b.log.WithFields(logrus.Fields{
				logging.FieldAgent:    evt.AgentID,
				logging.FieldPosition: evt.PositionID,
				"panic":               r,
				"stack":               string(debug.Stack()),
			}).Error("event handler panicked")
		}
	}()
	fn(ctx, evt)
}

// Subscribers returns the number of attached subscribers.
func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close detaches all subscribers. Later publishes fail with ErrClosed.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for id, s := range b.subs {
		close(s.done)
		delete(b.subs, id)
	}
}
