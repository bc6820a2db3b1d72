package memory

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"autotrade-coordinator/internal/storage"
)

func TestIdempotencyStore_CheckAndSet(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	store := NewIdempotencyStore().WithClock(func() time.Time { return now })
	ctx := context.Background()

	ok, err := store.CheckAndSet(ctx, "autotrade:reentry:a1:p1", time.Minute)
	if err != nil || !ok {
		t.Fatalf("first CheckAndSet = %v, %v; want true, nil", ok, err)
	}

	ok, err = store.CheckAndSet(ctx, "autotrade:reentry:a1:p1", time.Minute)
	if err != nil || ok {
		t.Fatalf("second CheckAndSet = %v, %v; want false, nil", ok, err)
	}

	now = now.Add(time.Minute)
	ok, err = store.CheckAndSet(ctx, "autotrade:reentry:a1:p1", time.Minute)
	if err != nil || !ok {
		t.Fatalf("CheckAndSet after expiry = %v, %v; want true, nil", ok, err)
	}
}

func TestIdempotencyStore_InvalidInput(t *testing.T) {
	store := NewIdempotencyStore()
	ctx := context.Background()

	if _, err := store.CheckAndSet(ctx, "", time.Minute); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("empty key: expected ErrInvalidInput, got %v", err)
	}
	if _, err := store.CheckAndSet(ctx, "k", 0); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("zero ttl: expected ErrInvalidInput, got %v", err)
	}
}

func TestIdempotencyStore_ConcurrentSingleWinner(t *testing.T) {
	store := NewIdempotencyStore()
	ctx := context.Background()

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := store.CheckAndSet(ctx, "autotrade:reconcile:a:w:t", time.Minute)
			if err == nil && ok {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	if got := wins.Load(); got != 1 {
		t.Errorf("expected exactly one winner, got %d", got)
	}
}

func TestIdempotencyStore_EvictsExpired(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	store := NewIdempotencyStore().WithClock(func() time.Time { return now })
	ctx := context.Background()

	for i := 0; i < 1100; i++ {
		_, _ = store.CheckAndSet(ctx, "k"+strconv.Itoa(i), time.Second)
	}
	now = now.Add(2 * time.Second)
	_, _ = store.CheckAndSet(ctx, "fresh", time.Second)

	if got := store.Len(); got != 1 {
		t.Errorf("expected only the fresh key to survive eviction, got %d keys", got)
	}
}

func TestIdempotencyStore_PurgeExpired(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	store := NewIdempotencyStore().WithClock(func() time.Time { return now })
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := store.CheckAndSet(ctx, "short-"+strconv.Itoa(i), time.Second); err != nil {
			t.Fatalf("CheckAndSet: %v", err)
		}
	}
	if _, err := store.CheckAndSet(ctx, "long", time.Hour); err != nil {
		t.Fatalf("CheckAndSet: %v", err)
	}

	now = now.Add(time.Second)
	n, err := store.PurgeExpired(ctx)
	if err != nil {
		t.Fatalf("PurgeExpired: %v", err)
	}
	if n != 3 {
		t.Errorf("expected 3 purged, got %d", n)
	}
	if store.Len() != 1 {
		t.Errorf("expected 1 key left, got %d", store.Len())
	}
}
