package autotrade_test

import (
	"context"
	"crypto/ed25519"
	"errors"
	"testing"
	"time"

	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/require"

	"autotrade-coordinator/internal/autotrade"
	"autotrade-coordinator/internal/domain"
	"autotrade-coordinator/internal/executor/stub"
	"autotrade-coordinator/internal/guard"
	"autotrade-coordinator/internal/idempotency"
	"autotrade-coordinator/internal/logging"
	"autotrade-coordinator/internal/marketdata"
	mdstub "autotrade-coordinator/internal/marketdata/stub"
	"autotrade-coordinator/internal/storage/memory"
)

const (
	tokenBonk = "DezXAZ8z7PnrnRJjz3wXBoRgixCa6xjnB7YaB1pPB263"
	tokenWif  = "EKpQGSJtjMFqKZ9KQanSqYXRcF8fBopzLHYxdM65zcjm"
	tokenPopc = "7GCihgDB8fe6KNjn2MYtkzZcRjQy3t9GHdC8uHYmW2hr"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func ptr[T any](v T) *T { return &v }

type harness struct {
	agents    *memory.AgentStore
	wallets   *memory.WalletStore
	positions *memory.PositionStore
	signals   *memory.SignalStore
	decisions *memory.DecisionLog
	idem      *memory.IdempotencyStore
	exec      *stub.Executor
	provider  *mdstub.Provider
	metrics   *marketdata.MetricsCache
	clock     time.Time
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		agents:    memory.NewAgentStore(),
		wallets:   memory.NewWalletStore(),
		positions: memory.NewPositionStore(),
		signals:   memory.NewSignalStore(),
		decisions: memory.NewDecisionLog(),
		exec:      stub.NewExecutor(),
		provider:  mdstub.NewProvider(),
		clock:     fixedNow,
	}
	h.idem = memory.NewIdempotencyStore().WithClock(h.now)
	h.metrics = marketdata.NewMetricsCache(h.provider, marketdata.CacheOptions{
		Now:    h.now,
		Logger: logging.Discard(),
	})
	return h
}

func (h *harness) now() time.Time { return h.clock }

func (h *harness) advance(d time.Duration) { h.clock = h.clock.Add(d) }

func (h *harness) deps() autotrade.Deps {
	return autotrade.Deps{
		Agents:    h.agents,
		Wallets:   h.wallets,
		Positions: h.positions,
		Executor:  h.exec,
		Gate:      idempotency.NewGate(h.idem, logging.Discard()),
		Guard:     guard.New(h.metrics, logging.Discard()),
		Signals:   h.signals,
		Decisions: h.decisions,
		Logger:    logging.Discard(),
		Now:       h.now,
	}
}

// addAgent saves a paper-mode agent with auto-trade on and the given tokens.
func (h *harness) addAgent(t *testing.T, agentID string, tokens ...domain.AutoTradeToken) *domain.AgentTradingConfig {
	t.Helper()
	cfg := &domain.AgentTradingConfig{
		AgentID:     agentID,
		TradingMode: domain.TradingModePaper,
		AutoTrade:   domain.AutoTradeConfig{Enabled: true, Tokens: tokens},
	}
	require.NoError(t, h.agents.SaveAgentConfig(context.Background(), cfg))
	return cfg
}

// addWallet registers an active paper wallet for the agent and returns its address.
func (h *harness) addWallet(t *testing.T, agentID string) string {
	t.Helper()
	pub, _, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	addr := base58.Encode(pub)
	require.NoError(t, h.wallets.Insert(context.Background(), &domain.Wallet{
		AgentID:     agentID,
		Address:     addr,
		TradingMode: domain.TradingModePaper,
		Active:      true,
		CreatedAt:   fixedNow.UnixMilli(),
	}))
	return addr
}

func enabled(addr, symbol string) domain.AutoTradeToken {
	return domain.AutoTradeToken{Address: addr, Symbol: symbol, Enabled: true}
}

func bounded(addr, symbol string, min, max *float64) domain.AutoTradeToken {
	tok := enabled(addr, symbol)
	tok.MarketCapMin, tok.MarketCapMax = min, max
	return tok
}

// failingSignals rejects every insert.
type failingSignals struct{ *memory.SignalStore }

func (failingSignals) Insert(context.Context, *domain.Signal) error {
	return errors.New("signals table unavailable")
}
