package postgres_test

import (
	"context"
	"crypto/ed25519"
	"errors"
	"testing"

	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autotrade-coordinator/internal/domain"
	"autotrade-coordinator/internal/storage"
	"autotrade-coordinator/internal/storage/postgres"
)

func TestAgentStore_SaveAndLoad(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := postgres.NewAgentStore(pool)
	ctx := context.Background()

	cfg := &domain.AgentTradingConfig{
		AgentID:     "agent-b",
		TradingMode: domain.TradingModePaper,
		AutoTrade: domain.AutoTradeConfig{
			Enabled: true,
			Tokens: []domain.AutoTradeToken{
				{Address: "MintXyz", Symbol: "XYZ", Enabled: true, MarketCapMin: ptr(200000.0), MarketCapMax: ptr(5000000.0)},
				{Address: "MintOff", Symbol: "OFF", Enabled: false},
			},
		},
	}
	require.NoError(t, store.SaveAgentConfig(ctx, cfg))
	require.NoError(t, store.SaveAgentConfig(ctx, &domain.AgentTradingConfig{AgentID: "agent-a", TradingMode: domain.TradingModeLive}))

	loaded, err := store.LoadAgentConfig(ctx, "agent-b")
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)

	mode, err := store.GetTradingMode(ctx, "agent-a")
	require.NoError(t, err)
	assert.Equal(t, domain.TradingModeLive, mode)

	ids, err := store.GetActiveAgentIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"agent-a", "agent-b"}, ids)

	require.NoError(t, store.SetActive(ctx, "agent-a", false))
	ids, err = store.GetActiveAgentIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"agent-b"}, ids)

	assert.True(t, errors.Is(store.SetActive(ctx, "nobody", true), storage.ErrNotFound))
	_, err = store.LoadAgentConfig(ctx, "nobody")
	assert.True(t, errors.Is(err, storage.ErrNotFound))
}

func TestWalletStore_FindWalletByAgent(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := postgres.NewWalletStore(pool)
	ctx := context.Background()

	pub1, _, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	pub2, _, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	older, newer := base58.Encode(pub1), base58.Encode(pub2)

	require.NoError(t, store.Insert(ctx, &domain.Wallet{AgentID: "agent-1", Address: older, TradingMode: domain.TradingModePaper, Active: true, CreatedAt: 1}))
	require.NoError(t, store.Insert(ctx, &domain.Wallet{AgentID: "agent-1", Address: newer, TradingMode: domain.TradingModePaper, Active: true, CreatedAt: 2}))

	err = store.Insert(ctx, &domain.Wallet{AgentID: "agent-2", Address: newer, TradingMode: domain.TradingModeLive, Active: true, CreatedAt: 3})
	assert.True(t, errors.Is(err, storage.ErrDuplicateKey), "expected ErrDuplicateKey, got %v", err)

	w, err := store.FindWalletByAgent(ctx, "agent-1", domain.TradingModePaper)
	require.NoError(t, err)
	assert.Equal(t, newer, w.Address, "address case must be preserved")

	_, err = store.FindWalletByAgent(ctx, "agent-1", domain.TradingModeLive)
	assert.True(t, errors.Is(err, storage.ErrNotFound))
}

func TestSignalStore_InsertAndGet(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := postgres.NewSignalStore(pool)
	ctx := context.Background()

	sig := &domain.Signal{ID: "sig-1", AgentID: "agent-1", TokenAddress: "MintXyz", TokenSymbol: ptr("XYZ"), Kind: domain.SignalKindBuy, Source: "reentry", CreatedAt: 1000}
	require.NoError(t, store.Insert(ctx, sig))
	assert.True(t, errors.Is(store.Insert(ctx, sig), storage.ErrDuplicateKey))

	got, err := store.GetByID(ctx, "sig-1")
	require.NoError(t, err)
	assert.Equal(t, sig, got)
}
