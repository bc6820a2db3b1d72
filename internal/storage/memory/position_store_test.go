package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autotrade-coordinator/internal/domain"
	"autotrade-coordinator/internal/storage"
)

func openPosition(id, agent, wallet, token string, openedAt int64) *domain.PositionRecord {
	return &domain.PositionRecord{
		ID:            id,
		AgentID:       agent,
		WalletAddress: wallet,
		TokenAddress:  token,
		Status:        domain.PositionStatusOpen,
		AmountTokens:  1000,
		CostBasisUSD:  25,
		OpenedAt:      openedAt,
		UpdatedAt:     openedAt,
	}
}

func TestPositionStore_InsertGetDuplicate(t *testing.T) {
	store := NewPositionStore()
	ctx := context.Background()

	p := openPosition("p1", "a1", "WalletA", "TokenX", 1000)
	require.NoError(t, store.Insert(ctx, p))

	err := store.Insert(ctx, p)
	assert.True(t, errors.Is(err, storage.ErrDuplicateKey), "expected ErrDuplicateKey, got %v", err)

	got, err := store.GetByID(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "TokenX", got.TokenAddress)

	// Mutating the returned copy must not touch the store.
	got.TokenAddress = "changed"
	again, _ := store.GetByID(ctx, "p1")
	assert.Equal(t, "TokenX", again.TokenAddress)
}

func TestPositionStore_FindActivePosition_CaseInsensitive(t *testing.T) {
	store := NewPositionStore()
	ctx := context.Background()

	require.NoError(t, store.Insert(ctx, openPosition("p1", "a1", "WalletA", "TokenX", 1000)))

	ref, err := store.FindActivePosition(ctx, "a1", "walleta", "TOKENX")
	require.NoError(t, err)
	assert.Equal(t, "p1", ref.ID)

	_, err = store.FindActivePosition(ctx, "a2", "walleta", "tokenx")
	assert.True(t, errors.Is(err, storage.ErrNotFound))
}

func TestPositionStore_CloseHidesFromActive(t *testing.T) {
	store := NewPositionStore()
	ctx := context.Background()

	require.NoError(t, store.Insert(ctx, openPosition("p1", "a1", "w", "t", 1000)))

	closed, err := store.Close(ctx, "p1", 2000)
	require.NoError(t, err)
	assert.Equal(t, domain.PositionStatusClosed, closed.Status)
	require.NotNil(t, closed.ClosedAt)
	assert.Equal(t, int64(2000), *closed.ClosedAt)

	again, err := store.Close(ctx, "p1", 3000)
	require.NoError(t, err)
	assert.Equal(t, int64(2000), *again.ClosedAt, "second close keeps the first close time")

	_, err = store.FindActivePosition(ctx, "a1", "w", "t")
	assert.True(t, errors.Is(err, storage.ErrNotFound))

	_, err = store.Close(ctx, "missing", 1)
	assert.True(t, errors.Is(err, storage.ErrNotFound))
}

func TestPositionStore_ListOpen_Sorted(t *testing.T) {
	store := NewPositionStore()
	ctx := context.Background()

	require.NoError(t, store.Insert(ctx, openPosition("p2", "a1", "w", "t2", 2000)))
	require.NoError(t, store.Insert(ctx, openPosition("p1", "a1", "w", "t1", 1000)))
	require.NoError(t, store.Insert(ctx, openPosition("p3", "a1", "w", "t3", 3000)))
	_, err := store.Close(ctx, "p3", 4000)
	require.NoError(t, err)

	open, err := store.ListOpen(ctx)
	require.NoError(t, err)
	require.Len(t, open, 2)
	assert.Equal(t, "p1", open[0].ID)
	assert.Equal(t, "p2", open[1].ID)
}

func TestPositionStore_Update(t *testing.T) {
	store := NewPositionStore()
	ctx := context.Background()

	err := store.Update(ctx, openPosition("p1", "a1", "w", "t", 1))
	assert.True(t, errors.Is(err, storage.ErrNotFound))

	p := openPosition("p1", "a1", "w", "t", 1)
	require.NoError(t, store.Insert(ctx, p))
	p.AmountTokens = 42
	require.NoError(t, store.Update(ctx, p))

	got, err := store.GetByID(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 42.0, got.AmountTokens)
}
