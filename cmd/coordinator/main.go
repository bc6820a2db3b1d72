// Package main runs the auto-trade coordinator:
// - Re-entry: buys back enabled tokens when positions close
// - Reconciliation (scheduled): buys enabled tokens agents do not hold
// - Admin API: config saves with immediate buys, guard checks, status, metrics
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/sirupsen/logrus"

	"autotrade-coordinator/internal/api"
	"autotrade-coordinator/internal/autotrade"
	"autotrade-coordinator/internal/config"
	"autotrade-coordinator/internal/domain"
	"autotrade-coordinator/internal/events"
	"autotrade-coordinator/internal/executor"
	"autotrade-coordinator/internal/executor/stub"
	"autotrade-coordinator/internal/guard"
	"autotrade-coordinator/internal/idempotency"
	"autotrade-coordinator/internal/logging"
	"autotrade-coordinator/internal/marketdata"
	"autotrade-coordinator/internal/poscache"
	"autotrade-coordinator/internal/storage"
	"autotrade-coordinator/internal/storage/memory"
	"autotrade-coordinator/internal/storage/migrations"
	chstore "autotrade-coordinator/internal/storage/clickhouse"
	pgstore "autotrade-coordinator/internal/storage/postgres"
	redisstore "autotrade-coordinator/internal/storage/redis"
)

const shutdownTimeout = 30 * time.Second

// stores holds the storage implementations selected by configuration.
type stores struct {
	agents       storage.AgentStore
	wallets      storage.WalletStore
	positions    storage.PositionStore
	signals      storage.SignalStore
	idempotency  storage.IdempotencyStore
	cacheBackend storage.CacheBackend
	decisions    storage.DecisionLog
}

func main() {
	configPath := flag.String("config", os.Getenv("COORDINATOR_CONFIG"), "Path to YAML config (optional)")
	once := flag.Bool("once", false, "Run a single reconciliation cycle, print it and exit")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "setup logging: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, cleanup, err := createStores(ctx, cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("create stores")
	}
	defer cleanup()

	if *once {
		if err := runOnce(ctx, cfg, st, logger); err != nil {
			logger.WithError(err).Error("reconciliation failed")
			cleanup()
			os.Exit(1)
		}
		return
	}

	if err := run(ctx, cancel, cfg, st, logger); err != nil {
		logger.WithError(err).Error("coordinator stopped with error")
		cleanup()
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}

func run(ctx context.Context, cancel context.CancelFunc, cfg *config.Config, st *stores, logger *logrus.Logger) error {
	bus := events.NewBus(logger)
	defer bus.Close()

	cache := poscache.New(st.cacheBackend, logger)
	positions := poscache.NewWriteThroughStore(st.positions, cache, bus, logger)
	warmCache(ctx, st.positions, cache, logger)

	deps := buildDeps(cfg, st, positions, logger)

	reentry, err := autotrade.NewReentryHandler(autotrade.ReentryOptions{
		Deps:    deps,
		Bus:     bus,
		LockTTL: cfg.Reentry.LockTTL,
		Buffer:  cfg.Reentry.Buffer,
	})
	if err != nil {
		return err
	}
	reconciler, err := newReconciler(cfg, deps)
	if err != nil {
		return err
	}
	immediate, err := autotrade.NewImmediateTrigger(deps)
	if err != nil {
		return err
	}

	// Cache upkeep listens on its own subscription so a slow purchase never delays eviction.
	cacheSub, cacheCh := bus.Subscribe(cfg.Reentry.Buffer)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		bus.Consume(ctx, cacheSub, cacheCh, cache.HandlePositionClosed)
	}()

	if err := reentry.Initialize(ctx); err != nil {
		return err
	}
	if err := reconciler.Initialize(ctx); err != nil {
		return err
	}

	var feed *events.WSFeed
	if cfg.Feed.URL != "" {
		feed = events.NewWSFeed(cfg.Feed.URL, bus, nil, logger)
		if err := feed.Start(ctx); err != nil {
			return fmt.Errorf("start position feed: %w", err)
		}
	}

	server := api.NewServer(api.Options{
		Agents:     st.agents,
		Guard:      deps.Guard,
		Immediate:  immediate,
		Reconciler: reconciler,
		Decisions:  st.decisions,
		Cache:      cache,
		Positions:  positions,
		Logger:     logger,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start(cfg.HTTP.Addr)
	}()

	logger.WithFields(logrus.Fields{
		"addr":       cfg.HTTP.Addr,
		"storage":    cfg.Storage.Mode,
		"interval":   reconciler.Interval().String(),
		"dry_run":    cfg.Executor.DryRun,
		"feed":       cfg.Feed.URL != "",
		"redis":      cfg.Storage.RedisAddr != "",
		"clickhouse": cfg.Storage.ClickhouseDSN != "",
	}).Info("coordinator started")

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	var runErr error
	select {
	case sig := <-sigCh:
		logger.WithField("signal", sig.String()).Info("received signal, initiating graceful shutdown")
	case runErr = <-errCh:
		logger.WithError(runErr).Error("admin API stopped")
	}

	// Wait for second signal for immediate shutdown
	go func() {
		sig := <-sigCh
		logger.WithField("signal", sig.String()).Warn("received second signal, forcing immediate shutdown")
		os.Exit(1)
	}()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("admin API shutdown")
	}
	if feed != nil {
		_ = feed.Close()
	}
	reconciler.Shutdown()
	reentry.Shutdown()
	bus.Unsubscribe(cacheSub)
	cancel()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-shutdownCtx.Done():
		logger.Warn("shutdown timeout exceeded, forcing exit")
	}
	return runErr
}

// buildDeps wires the market-cap guard, executor and idempotency gate shared by all trigger paths.
func buildDeps(cfg *config.Config, st *stores, positions storage.PositionStore, logger *logrus.Logger) autotrade.Deps {
	if cfg.MarketData.BaseURL != "" {
		provider := marketdata.NewHTTPProvider(cfg.MarketData.BaseURL,
			marketdata.WithAPIKey(cfg.MarketData.APIKey),
			marketdata.WithRateLimit(cfg.MarketData.RateLimit, cfg.MarketData.Burst),
		)
		metrics := marketdata.NewMetricsCache(provider, marketdata.CacheOptions{
			TTL:          cfg.MarketData.CacheTTL,
			FetchTimeout: cfg.MarketData.FetchTimeout,
			Logger:       logger,
		})
		guard.SetDefault(guard.New(metrics, logger))
	} else {
		logger.Warn("no market data provider configured; bounded tokens will be denied")
	}

	return autotrade.Deps{
		Agents:    st.agents,
		Wallets:   st.wallets,
		Positions: positions,
		Executor:  newExecutor(cfg, logger),
		Gate:      idempotency.NewGate(st.idempotency, logger),
		Signals:   st.signals,
		Decisions: st.decisions,
		Logger:    logger,
	}
}

func newExecutor(cfg *config.Config, logger *logrus.Logger) executor.Executor {
	if cfg.Executor.DryRun {
		logger.Warn("executor dry run: purchases are recorded, not executed")
		return stub.NewExecutor()
	}
	opts := []executor.ClientOption{
		executor.WithTimeout(cfg.Executor.Timeout),
		executor.WithAPIKey(cfg.Executor.APIKey),
	}
	if cfg.Executor.MaxRetries > 0 {
		opts = append(opts, executor.WithMaxRetries(cfg.Executor.MaxRetries))
	}
	return executor.NewHTTPClient(cfg.Executor.BaseURL, opts...)
}

func newReconciler(cfg *config.Config, deps autotrade.Deps) (*autotrade.Reconciler, error) {
	return autotrade.NewReconciler(autotrade.ReconcileOptions{
		Deps:       deps,
		Interval:   cfg.Reconcile.Interval,
		LockTTL:    cfg.Reconcile.LockTTL,
		Workers:    cfg.Reconcile.Workers,
		RunOnStart: cfg.Reconcile.RunOnStart,
	})
}

func warmCache(ctx context.Context, positions storage.PositionStore, cache *poscache.Cache, logger *logrus.Logger) {
	open, err := positions.ListOpen(ctx)
	if err != nil {
		logger.WithError(err).Warn("list open positions; cache starts cold")
		return
	}
	n := cache.Warm(ctx, open)
	logger.WithField("positions", n).Info("position cache warmed")
}

// runOnce runs one reconciliation cycle and prints the outcomes as a table.
func runOnce(ctx context.Context, cfg *config.Config, st *stores, logger *logrus.Logger) error {
	deps := buildDeps(cfg, st, st.positions, logger)
	reconciler, err := newReconciler(cfg, deps)
	if err != nil {
		return err
	}

	report := reconciler.RunCycle(ctx)

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Agent", "Token", "Outcome", "Reason", "Market Cap", "Position")
	for _, out := range report.Outcomes {
		mcap := "-"
		if out.MarketCap != nil {
			mcap = fmt.Sprintf("%.0f", *out.MarketCap)
		}
		reason := out.Reason
		if out.ErrorCode != "" {
			reason = out.ErrorCode
		}
		table.Append(out.AgentID, out.TokenAddress, string(out.Outcome), reason, mcap, out.PositionID)
	}
	table.Render()

	fmt.Printf("\n%d agents, %d purchased, %d denied, %d failed in %s\n",
		report.Agents,
		report.Count(domain.OutcomePurchased),
		report.Count(domain.OutcomeDenied),
		report.Count(domain.OutcomeFailed),
		report.Duration.Round(time.Millisecond))

	if report.Err != "" {
		return fmt.Errorf("%s", report.Err)
	}
	return nil
}

// createStores creates storage implementations based on configuration.
func createStores(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (*stores, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
		closers = nil
	}

	st := &stores{
		agents:       memory.NewAgentStore(),
		wallets:      memory.NewWalletStore(),
		positions:    memory.NewPositionStore(),
		signals:      memory.NewSignalStore(),
		idempotency:  memory.NewIdempotencyStore(),
		cacheBackend: memory.NewCacheBackend(),
		decisions:    memory.NewDecisionLog(),
	}

	if cfg.Storage.Mode == config.StoragePostgres {
		pool, err := pgstore.NewPool(ctx, cfg.Storage.PostgresDSN,
			pgstore.WithMaxConns(cfg.Storage.MaxConns),
			pgstore.WithConnLifetime(cfg.Storage.ConnMaxLifetime),
		)
		if err != nil {
			return nil, nil, err
		}
		closers = append(closers, pool.Close)

		if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("postgres migrations: %w", err)
		}

		st.agents = pgstore.NewAgentStore(pool)
		st.wallets = pgstore.NewWalletStore(pool)
		st.positions = pgstore.NewPositionStore(pool)
		st.signals = pgstore.NewSignalStore(pool)
		st.idempotency = pgstore.NewIdempotencyStore(pool)
		logger.Info("using postgres storage")
	} else {
		logger.Warn("using in-memory storage; state is lost on restart")
	}

	if cfg.Storage.RedisAddr != "" {
		client, err := redisstore.NewClient(ctx, cfg.Storage.RedisAddr, cfg.Storage.RedisPassword)
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		st.idempotency = redisstore.NewIdempotencyStore(client)
		st.cacheBackend = redisstore.NewCacheBackend(client)
		logger.WithField("addr", cfg.Storage.RedisAddr).Info("using redis for idempotency locks and position cache")
	}

	if cfg.Storage.ClickhouseDSN != "" {
		conn, err := migrations.RunClickhouseMigrations(ctx, cfg.Storage.ClickhouseDSN)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("clickhouse migrations: %w", err)
		}
		closers = append(closers, func() { _ = conn.Close() })
		st.decisions = chstore.NewDecisionLog(conn)
		logger.Info("using clickhouse decision log")
	}

	return st, cleanup, nil
}
