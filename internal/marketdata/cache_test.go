package marketdata_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autotrade-coordinator/internal/domain"
	"autotrade-coordinator/internal/logging"
	"autotrade-coordinator/internal/marketdata"
	"autotrade-coordinator/internal/marketdata/stub"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newCache(p marketdata.Provider, clock *fakeClock) *marketdata.MetricsCache {
	return marketdata.NewMetricsCache(p, marketdata.CacheOptions{
		TTL:    30 * time.Second,
		Now:    clock.Now,
		Logger: logging.Discard(),
	})
}

func TestMetricsCache_HitWithinTTL(t *testing.T) {
	provider := stub.NewProvider()
	provider.SetMarketCap("MintXyz", 1_500_000)
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	cache := newCache(provider, clock)
	ctx := context.Background()

	m := cache.Fetch(ctx, "MintXyz")
	require.NotNil(t, m)
	assert.Equal(t, 1_500_000.0, *m.Mcap)
	assert.Equal(t, "mintxyz", m.TokenAddress)

	// Differently cased address hits the same entry.
	clock.Advance(29 * time.Second)
	m = cache.Fetch(ctx, "MINTXYZ")
	require.NotNil(t, m)
	assert.Equal(t, 1, provider.Calls("MintXyz"))

	clock.Advance(time.Second)
	cache.Fetch(ctx, "MintXyz")
	assert.Equal(t, 2, provider.Calls("MintXyz"), "expired entry should refetch")
}

func TestMetricsCache_CachesFailures(t *testing.T) {
	provider := stub.NewProvider()
	provider.Errors["MintBad"] = errors.New("provider down")
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	cache := newCache(provider, clock)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		assert.Nil(t, cache.Fetch(ctx, "MintBad"))
	}
	assert.Equal(t, 1, provider.Calls("MintBad"), "failure must be cached for the TTL")

	// Recovery is only seen after expiry.
	delete(provider.Errors, "MintBad")
	provider.SetMarketCap("MintBad", 10)
	assert.Nil(t, cache.Fetch(ctx, "MintBad"))

	clock.Advance(31 * time.Second)
	m := cache.Fetch(ctx, "MintBad")
	require.NotNil(t, m)
	assert.Equal(t, 10.0, *m.Mcap)
}

func TestMetricsCache_ProviderReceivesAddressAsGiven(t *testing.T) {
	const mint = "EKpQGSJtjMFqKZ9KQanSqYXRcF8fBopzLHYxdM65zcjm"

	var asked []string
	provider := marketdata.ProviderFunc(func(_ context.Context, addr string) (*domain.TokenMetrics, error) {
		asked = append(asked, addr)
		if addr != mint {
			return nil, marketdata.ErrTokenNotFound
		}
		return &domain.TokenMetrics{Mcap: ptr(2_000_000.0)}, nil
	})
	cache := newCache(provider, &fakeClock{now: time.Unix(0, 0)})

	m := cache.Fetch(context.Background(), "  "+mint+" ")
	require.NotNil(t, m)
	assert.Equal(t, []string{mint}, asked)
	assert.Equal(t, domain.NormalizeAddress(mint), m.TokenAddress)
}

func TestMetricsCache_CancelledCallerDoesNotPoisonEntry(t *testing.T) {
	provider := marketdata.ProviderFunc(func(ctx context.Context, _ string) (*domain.TokenMetrics, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return &domain.TokenMetrics{Mcap: ptr(7.0)}, nil
	})
	cache := newCache(provider, &fakeClock{now: time.Unix(0, 0)})

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()

	m := cache.Fetch(cancelled, "MintGone")
	require.NotNil(t, m, "a cancelled caller must not turn the fetch into a failure")

	m = cache.Fetch(context.Background(), "MintGone")
	require.NotNil(t, m)
	assert.Equal(t, 7.0, *m.Mcap)
}

func TestMetricsCache_NullMarketCapIsUnavailable(t *testing.T) {
	provider := stub.NewProvider()
	provider.Metrics["mintnull"] = &domain.TokenMetrics{Liquidity: ptr(5000.0)}
	cache := newCache(provider, &fakeClock{now: time.Unix(0, 0)})

	assert.Nil(t, cache.Fetch(context.Background(), "mintnull"))
	assert.Nil(t, cache.Fetch(context.Background(), "mintnull"))
	assert.Equal(t, 1, provider.Calls("mintnull"))
}

func TestMetricsCache_Timeout(t *testing.T) {
	calls := 0
	slow := marketdata.ProviderFunc(func(ctx context.Context, _ string) (*domain.TokenMetrics, error) {
		calls++
		<-ctx.Done()
		return nil, ctx.Err()
	})
	cache := marketdata.NewMetricsCache(slow, marketdata.CacheOptions{
		FetchTimeout: 20 * time.Millisecond,
		Logger:       logging.Discard(),
	})

	start := time.Now()
	assert.Nil(t, cache.Fetch(context.Background(), "mintslow"))
	assert.Less(t, time.Since(start), 2*time.Second)

	assert.Nil(t, cache.Fetch(context.Background(), "mintslow"))
	assert.Equal(t, 1, calls, "timeout must be cached as a failure")
}

func TestMetricsCache_Clear(t *testing.T) {
	provider := stub.NewProvider()
	provider.SetMarketCap("minta", 1)
	cache := newCache(provider, &fakeClock{now: time.Unix(0, 0)})
	ctx := context.Background()

	cache.Fetch(ctx, "minta")
	assert.Equal(t, 1, cache.Len())

	cache.Clear()
	assert.Equal(t, 0, cache.Len())

	cache.Fetch(ctx, "minta")
	assert.Equal(t, 2, provider.Calls("minta"))
}

func TestMetricsCache_ConcurrentMissesShareOneCall(t *testing.T) {
	release := make(chan struct{})
	var mu sync.Mutex
	calls := 0
	blocking := marketdata.ProviderFunc(func(ctx context.Context, _ string) (*domain.TokenMetrics, error) {
		mu.Lock()
		calls++
		mu.Unlock()
		<-release
		return &domain.TokenMetrics{Mcap: ptr(42.0)}, nil
	})
	cache := marketdata.NewMetricsCache(blocking, marketdata.CacheOptions{Logger: logging.Discard()})

	var wg sync.WaitGroup
	results := make([]*domain.TokenMetrics, 10)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = cache.Fetch(context.Background(), "minthot")
		}(i)
	}

	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	for _, m := range results {
		require.NotNil(t, m)
		assert.Equal(t, 42.0, *m.Mcap)
	}
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, calls)
}

func ptr[T any](v T) *T {
	return &v
}
