package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"autotrade-coordinator/internal/domain"
	"autotrade-coordinator/internal/logging"
	"autotrade-coordinator/internal/observability"
)

// MessageTypePositionClosed is the envelope type of a close notification.
const MessageTypePositionClosed = "position_closed"

// WSFeedConfig configures the websocket feed.
type WSFeedConfig struct {
	// ReconnectDelay is initial delay before reconnect attempt.
	ReconnectDelay time.Duration
	// MaxReconnectDelay caps the exponential backoff.
	MaxReconnectDelay time.Duration
	// PingInterval is interval for sending ping frames.
	PingInterval time.Duration
	// ReadTimeout is timeout for reading messages.
	ReadTimeout time.Duration
	// WriteTimeout is timeout for writing control frames.
	WriteTimeout time.Duration
	// PublishTimeout bounds how long a notification may wait on slow subscribers.
	PublishTimeout time.Duration
}

// DefaultWSFeedConfig returns default feed configuration.
func DefaultWSFeedConfig() WSFeedConfig {
	return WSFeedConfig{
		ReconnectDelay:    1 * time.Second,
		MaxReconnectDelay: 30 * time.Second,
		PingInterval:      30 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      10 * time.Second,
		PublishTimeout:    30 * time.Second,
	}
}

// feedMessage is the envelope sent by the position service.
type feedMessage struct {
	Type string                     `json:"type"`
	Data domain.PositionClosedEvent `json:"data"`
}

// WSFeed reads position-closed notifications from a remote position service
// over a websocket and publishes them on a Bus. It reconnects with exponential
// backoff until closed.
type WSFeed struct {
	endpoint string
	config   WSFeedConfig
	bus      *Bus
	log      logrus.FieldLogger

	conn   *websocket.Conn
	connMu sync.Mutex
	closed atomic.Bool

	received atomic.Int64

	done chan struct{}
	wg   sync.WaitGroup
}

// NewWSFeed creates a feed. config may be nil for defaults.
func NewWSFeed(endpoint string, bus *Bus, config *WSFeedConfig, log logrus.FieldLogger) *WSFeed {
	cfg := DefaultWSFeedConfig()
	if config != nil {
		cfg = *config
	}
	return &WSFeed{
		endpoint: endpoint,
		config:   cfg,
		bus:      bus,
		log:      logging.OrDefault(log).WithField("component", "ws_feed"),
		done:     make(chan struct{}),
	}
}

// Start connects and starts the read and ping loops.
// The first connection must succeed; later drops are retried.
func (f *WSFeed) Start(ctx context.Context) error {
	if f.closed.Load() {
		return fmt.Errorf("feed closed")
	}
	if err := f.connect(ctx); err != nil {
		return err
	}

	f.wg.Add(2)
	go f.readLoop()
	go f.pingLoop()
	return nil
}

// Received returns the number of notifications published so far.
func (f *WSFeed) Received() int64 {
	return f.received.Load()
}

func (f *WSFeed) connect(ctx context.Context) error {
	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, f.endpoint, nil)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}

	f.connMu.Lock()
	defer f.connMu.Unlock()
	if f.closed.Load() {
		conn.Close()
		return fmt.Errorf("feed closed")
	}
	f.conn = conn
	return nil
}

// Close stops the feed and waits for its goroutines.
func (f *WSFeed) Close() error {
	if f.closed.Swap(true) {
		return nil
	}
	close(f.done)

	f.connMu.Lock()
	if f.conn != nil {
		_ = f.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		f.conn.Close()
	}
	f.connMu.Unlock()

	f.wg.Wait()
	return nil
}

func (f *WSFeed) readLoop() {
	defer f.wg.Done()

	delay := f.config.ReconnectDelay
	for !f.closed.Load() {
		f.connMu.Lock()
		conn := f.conn
		f.connMu.Unlock()

		if conn == nil {
			if !f.reconnect(delay) {
				return
			}
			delay = min(delay*2, f.config.MaxReconnectDelay)
			continue
		}

		_ = conn.SetReadDeadline(time.Now().Add(f.config.ReadTimeout))
		_, message, err := conn.ReadMessage()
		if err != nil {
			if f.closed.Load() {
				return
			}
			f.log.WithError(err).Warn("feed connection lost")
			f.connMu.Lock()
			if f.conn == conn {
				f.conn.Close()
				f.conn = nil
			}
			f.connMu.Unlock()
			continue
		}

		delay = f.config.ReconnectDelay
		f.handleMessage(message)
	}
}

// reconnect waits delay and dials again. Returns false once the feed is closed.
func (f *WSFeed) reconnect(delay time.Duration) bool {
	select {
	case <-f.done:
		return false
	case <-time.After(delay):
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	observability.RecordFeedReconnect()
	if err := f.connect(ctx); err != nil {
		f.log.WithError(err).WithField("retry_in", delay.String()).Warn("feed reconnect failed")
		return !f.closed.Load()
	}
	f.log.Info("feed reconnected")
	return true
}

func (f *WSFeed) handleMessage(message []byte) {
	var msg feedMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		f.log.WithError(err).Warn("malformed feed message")
		return
	}
	if msg.Type != MessageTypePositionClosed {
		return
	}
	if msg.Data.AgentID == "" || msg.Data.PositionID == "" {
		f.log.Warn("feed message without agent or position id")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), f.config.PublishTimeout)
	defer cancel()

	go func() {
		select {
		case <-f.done:
			cancel()
		case <-ctx.Done():
		}
	}()

	if err := f.bus.Publish(ctx, msg.Data); err != nil {
		f.log.WithFields(logrus.Fields{
			logging.FieldAgent:    msg.Data.AgentID,
			logging.FieldPosition: msg.Data.PositionID,
		}).WithError(err).Warn("publish feed notification")
		return
	}
	f.received.Add(1)
}

func (f *WSFeed) pingLoop() {
	defer f.wg.Done()

	ticker := time.NewTicker(f.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-f.done:
			return
		case <-ticker.C:
			f.connMu.Lock()
			if f.conn != nil {
				_ = f.conn.SetWriteDeadline(time.Now().Add(f.config.WriteTimeout))
				// A dead connection surfaces as a read error.
				_ = f.conn.WriteMessage(websocket.PingMessage, nil)
			}
			f.connMu.Unlock()
		}
	}
}
