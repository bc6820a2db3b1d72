package autotrade

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sourcegraph/conc/panics"
	"github.com/sourcegraph/conc/pool"

	"autotrade-coordinator/internal/domain"
	"autotrade-coordinator/internal/idempotency"
	"autotrade-coordinator/internal/logging"
	"autotrade-coordinator/internal/observability"
	"autotrade-coordinator/internal/storage"
)

// Default reconciliation settings.
const (
	DefaultReconcileInterval = 10 * time.Minute
	DefaultReconcileLockTTL  = 5 * time.Minute
	DefaultReconcileWorkers  = 4
)

// ErrLockOutlivesInterval rejects a lock TTL that would make every later cycle skip the token.
var ErrLockOutlivesInterval = errors.New("reconcile lock TTL must be shorter than the interval")

// ReconcileOptions configures a Reconciler.
type ReconcileOptions struct {
	Deps

	Interval   time.Duration // Default: 10m
	LockTTL    time.Duration // Default: 5m, must be < Interval
	Workers    int           // Default: 4 agents in parallel
	RunOnStart bool          // Run one cycle as soon as the scheduler starts
}

// CycleReport summarizes one reconciliation cycle.
type CycleReport struct {
	StartedAt   time.Time         `json:"startedAt"`
	Duration    time.Duration     `json:"duration"`
	Agents      int               `json:"agents"`
	Outcomes    []TokenOutcome    `json:"outcomes"`
	AgentErrors map[string]string `json:"agentErrors,omitempty"`
	Err         string            `json:"error,omitempty"`
}

// Count returns the number of token outcomes of kind o.
func (r *CycleReport) Count(o domain.Outcome) int {
	n := 0
	for _, out := range r.Outcomes {
		if out.Outcome == o {
			n++
		}
	}
	return n
}

// Reconciler periodically buys enabled auto-trade tokens that agents do not hold.
type Reconciler struct {
	deps       Deps
	interval   time.Duration
	lockTTL    time.Duration
	workers    int
	runOnStart bool

	mu      sync.Mutex
	running bool
	stop    chan struct{}
	wg      sync.WaitGroup

	reportMu sync.RWMutex
	last     *CycleReport
}

// NewReconciler creates a reconciler. Returns ErrLockOutlivesInterval if LockTTL >= Interval.
func NewReconciler(opts ReconcileOptions) (*Reconciler, error) {
	if opts.Agents == nil || opts.Wallets == nil || opts.Positions == nil || opts.Executor == nil || opts.Gate == nil {
		return nil, errors.New("reconcile: agents, wallets, positions, executor and gate are required")
	}

	interval := opts.Interval
	if interval <= 0 {
		interval = DefaultReconcileInterval
	}
	lockTTL := opts.LockTTL
	if lockTTL <= 0 {
		lockTTL = DefaultReconcileLockTTL
	}
	if lockTTL >= interval {
		return nil, fmt.Errorf("%w: ttl=%s interval=%s", ErrLockOutlivesInterval, lockTTL, interval)
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = DefaultReconcileWorkers
	}

	return &Reconciler{
		deps:       opts.Deps.withDefaults(),
		interval:   interval,
		lockTTL:    lockTTL,
		workers:    workers,
		runOnStart: opts.RunOnStart,
	}, nil
}

// Interval returns the scheduling interval.
func (r *Reconciler) Interval() time.Duration { return r.interval }

// Initialize starts the ticker.
func (r *Reconciler) Initialize(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return errors.New("reconcile: already initialized")
	}
	r.running = true
	r.stop = make(chan struct{})

	r.wg.Add(1)
	go r.loop(ctx, r.stop)

	r.deps.Logger.WithFields(logrus.Fields{
		"interval": r.interval.String(),
		"lock_ttl": r.lockTTL.String(),
		"workers":  r.workers,
	}).Info("reconciliation scheduler started")
	return nil
}

// Shutdown stops scheduling new cycles and waits for the cycle in flight.
func (r *Reconciler) Shutdown() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	close(r.stop)
	r.mu.Unlock()

	r.wg.Wait()
}

func (r *Reconciler) loop(ctx context.Context, stop <-chan struct{}) {
	defer r.wg.Done()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	// In-flight cycles are not cut short by cancellation.
	cycleCtx := context.WithoutCancel(ctx)

	if r.runOnStart {
		r.RunCycle(cycleCtx)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			r.RunCycle(cycleCtx)
		}
	}
}

// LastReport returns the most recent cycle report, or nil before the first cycle.
func (r *Reconciler) LastReport() *CycleReport {
	r.reportMu.RLock()
	defer r.reportMu.RUnlock()
	return r.last
}

// RunCycle reconciles every active agent once. Agents are independent:
// a failing or panicking agent is reported and the others continue.
func (r *Reconciler) RunCycle(ctx context.Context) *CycleReport {
	started := r.deps.Now()
	report := &CycleReport{StartedAt: started}

	defer func() {
		report.Duration = r.deps.Now().Sub(started)
		status := "ok"
		switch {
		case report.Err != "":
			status = "error"
		case len(report.AgentErrors) > 0:
			status = "partial"
		}
		observability.RecordReconcileCycle(status, report.Duration)

		r.reportMu.Lock()
		r.last = report
		r.reportMu.Unlock()
	}()

	r.purgeLocks(ctx)

	agentIDs, err := r.deps.Agents.GetActiveAgentIDs(ctx)
	if err != nil {
		report.Err = fmt.Sprintf("list active agents: %v", err)
		r.deps.Logger.WithError(err).Warn("reconciliation cycle aborted")
		return report
	}
	report.Agents = len(agentIDs)

	var mu sync.Mutex
	p := pool.New().WithMaxGoroutines(r.workers)
	for _, agentID := range agentIDs {
		p.Go(func() {
			var outs []TokenOutcome
			var agentErr error

			var pc panics.Catcher
			pc.Try(func() { outs, agentErr = r.reconcileAgent(ctx, agentID) })
			if rec := pc.Recovered(); rec != nil {
				agentErr = rec.AsError()
				r.deps.Logger.WithFields(logrus.Fields{
					logging.FieldAgent: agentID,
					"stack":            string(rec.Stack),
				}).Error("agent reconciliation panicked")
			}

			mu.Lock()
			defer mu.Unlock()
			report.Outcomes = append(report.Outcomes, outs...)
			if agentErr != nil {
				if report.AgentErrors == nil {
					report.AgentErrors = make(map[string]string)
				}
				report.AgentErrors[agentID] = agentErr.Error()
			}
		})
	}
	p.Wait()

	sort.Slice(report.Outcomes, func(i, j int) bool {
		a, b := report.Outcomes[i], report.Outcomes[j]
		if a.AgentID != b.AgentID {
			return a.AgentID < b.AgentID
		}
		return a.TokenAddress < b.TokenAddress
	})

	r.deps.Logger.WithFields(logrus.Fields{
		"agents":    report.Agents,
		"purchased": report.Count(domain.OutcomePurchased),
		"failed":    report.Count(domain.OutcomeFailed),
		"errors":    len(report.AgentErrors),
	}).Info("reconciliation cycle finished")
	return report
}

// purgeLocks sweeps expired idempotency keys once per cycle. A failed sweep
// leaves dead rows behind and the cycle carries on.
func (r *Reconciler) purgeLocks(ctx context.Context) {
	n, err := r.deps.Gate.PurgeExpired(ctx)
	if err != nil {
		r.deps.Logger.WithError(err).Warn("idempotency purge failed")
		return
	}
	if n > 0 {
		r.deps.Logger.WithField("purged", n).Debug("expired idempotency keys purged")
	}
}

func (r *Reconciler) reconcileAgent(ctx context.Context, agentID string) ([]TokenOutcome, error) {
	log := r.deps.Logger.WithFields(logrus.Fields{
		logging.FieldTrigger: domain.TriggerReconcile,
		logging.FieldAgent:   agentID,
	})

	cfg, err := r.deps.Agents.LoadAgentConfig(ctx, agentID)
	if errors.Is(err, storage.ErrNotFound) {
		log.Debug("agent has no trading config")
		return nil, nil
	}
	if err != nil {
		log.WithError(err).Warn("load agent config")
		return nil, fmt.Errorf("load config: %w", err)
	}

	tokens := cfg.EnabledTokens()
	if len(tokens) == 0 {
		return nil, nil
	}

	wallet, err := r.deps.resolveWallet(ctx, agentID)
	if err != nil {
		log.WithError(err).Warn("resolve agent wallet")
		return nil, err
	}
	if wallet == nil {
		log.Warn("agent has no active wallet for its trading mode, skipping")
		return nil, nil
	}

	outs := make([]TokenOutcome, 0, len(tokens))
	for _, tok := range tokens {
		outs = append(outs, r.reconcileToken(ctx, agentID, wallet, tok))
	}
	return outs, nil
}

func (r *Reconciler) reconcileToken(ctx context.Context, agentID string, wallet *domain.Wallet, tok domain.AutoTradeToken) TokenOutcome {
	out := TokenOutcome{
		Trigger:       domain.TriggerReconcile,
		AgentID:       agentID,
		WalletAddress: wallet.Address,
		TokenAddress:  domain.NormalizeAddress(tok.Address),
	}

	key := idempotency.ReconcileKey(agentID, wallet.Address, tok.Address)
	acquired, err := r.deps.Gate.CheckAndSet(ctx, key, r.lockTTL)
	if err != nil {
		out.Outcome, out.Reason = domain.OutcomeFailed, ReasonLockUnavailable+": "+err.Error()
		return r.deps.finish(ctx, out)
	}
	if !acquired {
		out.Outcome, out.Reason = domain.OutcomeDuplicate, ReasonLockHeld
		return r.deps.finish(ctx, out)
	}

	existing, err := r.deps.Positions.FindActivePosition(ctx, agentID, wallet.Address, tok.Address)
	switch {
	case err == nil:
		out.Outcome, out.Reason, out.PositionID = domain.OutcomeSkipped, ReasonPositionExists, existing.ID
		return r.deps.finish(ctx, out)
	case !errors.Is(err, storage.ErrNotFound):
		out.Outcome, out.Reason = domain.OutcomeFailed, ReasonLookupFailed+": "+err.Error()
		return r.deps.finish(ctx, out)
	}

	verdict := r.deps.Guard.Evaluate(ctx, tok.Address, tok.Bounds())
	out.MarketCap = verdict.MarketCap
	if !verdict.Allowed {
		out.Outcome, out.Reason = domain.OutcomeDenied, string(verdict.Reason)
		return r.deps.finish(ctx, out)
	}

	walletAddr := wallet.Address
	out = r.deps.purchase(ctx, out, domain.PurchaseRequest{
		AgentID:       agentID,
		WalletAddress: &walletAddr,
		TokenAddress:  domain.NormalizeAddress(tok.Address),
		TokenSymbol:   tok.SymbolPtr(),
	})
	return r.deps.finish(ctx, out)
}
