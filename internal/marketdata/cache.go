package marketdata

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/zeromicro/go-zero/core/syncx"

	"autotrade-coordinator/internal/domain"
	"autotrade-coordinator/internal/logging"
	"autotrade-coordinator/internal/observability"
)

// Default cache settings.
const (
	DefaultTTL          = 30 * time.Second
	DefaultFetchTimeout = 8 * time.Second
)

// cachedMetrics is a cache entry. A nil metrics value is a cached failure.
type cachedMetrics struct {
	metrics   *domain.TokenMetrics
	expiresAt time.Time
}

// CacheOptions configures MetricsCache.
type CacheOptions struct {
	TTL          time.Duration
	FetchTimeout time.Duration
	Now          func() time.Time
	Logger       logrus.FieldLogger
}

// MetricsCache caches provider results, including failures, per normalized token address.
// A token is fetched at most once per TTL; concurrent misses on the same token share one call.
type MetricsCache struct {
	provider Provider
	ttl      time.Duration
	timeout  time.Duration
	now      func() time.Time
	log      logrus.FieldLogger

	mu      sync.Mutex
	entries map[string]cachedMetrics
	flight  syncx.SingleFlight
}

// NewMetricsCache creates a cache in front of provider.
func NewMetricsCache(provider Provider, opts CacheOptions) *MetricsCache {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = DefaultFetchTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &MetricsCache{
		provider: provider,
		ttl:      opts.TTL,
		timeout:  opts.FetchTimeout,
		now:      opts.Now,
		log:      logging.OrDefault(opts.Logger),
		entries:  make(map[string]cachedMetrics),
		flight:   syncx.NewSingleFlight(),
	}
}

// Fetch returns the token's metrics, or nil when they are unavailable.
// Unavailable covers provider errors, timeouts, unknown tokens and a missing market cap.
func (c *MetricsCache) Fetch(ctx context.Context, tokenAddress string) *domain.TokenMetrics {
	key := domain.NormalizeAddress(tokenAddress)

	if m, ok := c.lookup(key); ok {
		observability.RecordCacheLookup(true)
		return m
	}
	observability.RecordCacheLookup(false)

	v, _ := c.flight.Do(key, func() (any, error) {
		// Another caller may have filled the entry while we waited for the flight.
		if m, ok := c.lookup(key); ok {
			return m, nil
		}
		m := c.fetch(ctx, key, strings.TrimSpace(tokenAddress))
		c.store(key, m)
		return m, nil
	})

	m, _ := v.(*domain.TokenMetrics)
	return m
}

// Clear drops every entry.
func (c *MetricsCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]cachedMetrics)
}

// Len returns the number of entries, live or expired.
func (c *MetricsCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *MetricsCache) lookup(key string) (*domain.TokenMetrics, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok || !c.now().Before(e.expiresAt) {
		return nil, false
	}
	return e.metrics, true
}

func (c *MetricsCache) store(key string, m *domain.TokenMetrics) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cachedMetrics{metrics: m, expiresAt: c.now().Add(c.ttl)}
}

// fetch calls the provider with the address as given, since mints are case-sensitive,
// and maps every failure to nil. Only the fetch timeout bounds the call: its result
// is shared by every caller on the flight.
func (c *MetricsCache) fetch(ctx context.Context, key, address string) *domain.TokenMetrics {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
	defer cancel()

	start := time.Now()
	m, err := c.provider.FetchTokenMetrics(ctx, address)
	elapsed := time.Since(start)

	switch {
	case err != nil:
		kind := "error"
		switch {
		case errors.Is(err, context.DeadlineExceeded):
			kind = "timeout"
		case errors.Is(err, ErrTokenNotFound):
			kind = "not_found"
		}
		observability.RecordProviderCall(elapsed, kind)
		c.log.WithFields(logrus.Fields{logging.FieldToken: key, "kind": kind}).
			WithError(err).Warn("market metrics unavailable")
		return nil
	case m == nil || m.Mcap == nil:
		observability.RecordProviderCall(elapsed, "no_mcap")
		c.log.WithField(logging.FieldToken, key).Warn("market metrics have no market cap")
		return nil
	}

	observability.RecordProviderCall(elapsed, "")
	out := *m
	out.TokenAddress = key
	if out.FetchedAt == 0 {
		out.FetchedAt = c.now().UnixMilli()
	}
	return &out
}
