package autotrade

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"autotrade-coordinator/internal/domain"
	"autotrade-coordinator/internal/events"
	"autotrade-coordinator/internal/idempotency"
	"autotrade-coordinator/internal/logging"
	"autotrade-coordinator/internal/storage"
)

// DefaultReentryLockTTL is how long a position close stays claimed.
// A position closes once, so the key only has to outlive redelivery.
const DefaultReentryLockTTL = time.Hour

// ReentryOptions configures a ReentryHandler.
type ReentryOptions struct {
	Deps

	Bus     *events.Bus
	LockTTL time.Duration // Default: 1h
	Buffer  int           // Default: events.DefaultBuffer

	// NewID generates signal ids. Default: uuid.NewString.
	NewID func() string
}

// ReentryHandler buys a token back after one of its positions closes,
// if the token is still enabled for auto-trade and passes the market-cap guard.
type ReentryHandler struct {
	deps    Deps
	bus     *events.Bus
	lockTTL time.Duration
	buffer  int
	newID   func() string

	mu      sync.Mutex
	running bool
	subID   uint64
	wg      sync.WaitGroup
}

// NewReentryHandler creates a handler. It does not listen until Initialize.
func NewReentryHandler(opts ReentryOptions) (*ReentryHandler, error) {
	if opts.Agents == nil || opts.Executor == nil || opts.Gate == nil {
		return nil, errors.New("reentry: agents, executor and gate are required")
	}

	lockTTL := opts.LockTTL
	if lockTTL <= 0 {
		lockTTL = DefaultReentryLockTTL
	}
	newID := opts.NewID
	if newID == nil {
		newID = uuid.NewString
	}

	return &ReentryHandler{
		deps:    opts.Deps.withDefaults(),
		bus:     opts.Bus,
		lockTTL: lockTTL,
		buffer:  opts.Buffer,
		newID:   newID,
	}, nil
}

// Initialize subscribes to the bus and starts consuming close events.
func (h *ReentryHandler) Initialize(ctx context.Context) error {
	if h.bus == nil {
		return errors.New("reentry: no event bus")
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.running {
		return errors.New("reentry: already initialized")
	}

	id, ch := h.bus.Subscribe(h.buffer)
	h.subID = id
	h.running = true

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		h.bus.Consume(ctx, id, ch, h.HandleEvent)
	}()

	h.deps.Logger.WithField("subscription", id).Info("re-entry handler listening")
	return nil
}

// Shutdown detaches from the bus and waits for the event in flight.
func (h *ReentryHandler) Shutdown() {
	h.mu.Lock()
	if !h.running {
		h.mu.Unlock()
		return
	}
	h.running = false
	h.bus.Unsubscribe(h.subID)
	h.mu.Unlock()

	h.wg.Wait()
}

// HandleEvent is the bus handler.
func (h *ReentryHandler) HandleEvent(ctx context.Context, evt domain.PositionClosedEvent) {
	h.Handle(ctx, evt)
}

// Handle processes one close event and returns its outcome, or nil when the
// event is not eligible for re-entry at all (wallet reset).
func (h *ReentryHandler) Handle(ctx context.Context, evt domain.PositionClosedEvent) *TokenOutcome {
	log := h.deps.Logger.WithFields(logrus.Fields{
		logging.FieldTrigger:  domain.TriggerReentry,
		logging.FieldAgent:    evt.AgentID,
		logging.FieldPosition: evt.PositionID,
	})

	if evt.Source == domain.CloseSourceWalletReset {
		log.Debug("ignoring wallet reset close")
		return nil
	}

	out := TokenOutcome{
		Trigger:       domain.TriggerReentry,
		AgentID:       evt.AgentID,
		WalletAddress: evt.WalletAddress,
		TokenAddress:  domain.NormalizeAddress(evt.TokenAddress),
	}

	acquired, err := h.deps.Gate.CheckAndSet(ctx, idempotency.ReentryKey(evt.AgentID, evt.PositionID), h.lockTTL)
	if err != nil {
		out.Outcome, out.Reason = domain.OutcomeFailed, ReasonLockUnavailable+": "+err.Error()
		return h.done(ctx, out)
	}
	if !acquired {
		out.Outcome, out.Reason = domain.OutcomeDuplicate, ReasonLockHeld
		return h.done(ctx, out)
	}

	cfg, err := h.deps.Agents.LoadAgentConfig(ctx, evt.AgentID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			out.Outcome, out.Reason = domain.OutcomeSkipped, ReasonConfigUnavailable
		} else {
			out.Outcome, out.Reason = domain.OutcomeFailed, ReasonConfigUnavailable+": "+err.Error()
		}
		return h.done(ctx, out)
	}
	if !cfg.AutoTrade.Enabled {
		out.Outcome, out.Reason = domain.OutcomeSkipped, ReasonAutoTradeDisabled
		return h.done(ctx, out)
	}

	tok, ok := cfg.FindEnabledToken(evt.TokenAddress)
	if !ok {
		out.Outcome, out.Reason = domain.OutcomeSkipped, ReasonTokenNotEnabled
		return h.done(ctx, out)
	}

	verdict := h.deps.Guard.Evaluate(ctx, tok.Address, tok.Bounds())
	out.MarketCap = verdict.MarketCap
	if !verdict.Allowed {
		out.Outcome, out.Reason = domain.OutcomeDenied, string(verdict.Reason)
		return h.done(ctx, out)
	}

	symbol := evt.TokenSymbol
	if symbol == nil {
		symbol = tok.SymbolPtr()
	}
	req := domain.PurchaseRequest{
		AgentID:      evt.AgentID,
		TokenAddress: domain.NormalizeAddress(tok.Address),
		TokenSymbol:  symbol,
		SignalID:     h.createSignal(ctx, log, evt.AgentID, tok, symbol),
	}
	if evt.WalletAddress != "" {
		w := evt.WalletAddress
		req.WalletAddress = &w
	}

	out = h.deps.purchase(ctx, out, req)
	return h.done(ctx, out)
}

// createSignal records the auxiliary buy signal. Failure leaves the purchase unlinked.
func (h *ReentryHandler) createSignal(ctx context.Context, log logrus.FieldLogger, agentID string, tok domain.AutoTradeToken, symbol *string) *string {
	if h.deps.Signals == nil {
		return nil
	}

	sig := &domain.Signal{
		ID:           h.newID(),
		AgentID:      agentID,
		TokenAddress: domain.NormalizeAddress(tok.Address),
		TokenSymbol:  symbol,
		Kind:         domain.SignalKindBuy,
		Source:       string(domain.TriggerReentry),
		CreatedAt:    h.deps.Now().UnixMilli(),
	}
	if err := h.deps.Signals.Insert(ctx, sig); err != nil {
		log.WithError(fmt.Errorf("insert signal: %w", err)).Warn("purchasing without signal")
		return nil
	}
	return &sig.ID
}

func (h *ReentryHandler) done(ctx context.Context, out TokenOutcome) *TokenOutcome {
	out = h.deps.finish(ctx, out)
	return &out
}
