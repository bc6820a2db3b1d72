package marketdata

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"autotrade-coordinator/internal/domain"
)

// Default HTTP provider settings.
const (
	DefaultRequestsPerSecond = 5.0
	DefaultBurst             = 5
	DefaultMaxRetries        = 1
	DefaultRetryDelay        = 250 * time.Millisecond
)

// HTTPProvider fetches token metrics from a REST endpoint:
// GET <base>/tokens/<address> → {"mcap": .., "liquidity": .., "holderCount": .., "priceUsd": ..}.
// Numeric fields may be JSON numbers, numeric strings or null.
type HTTPProvider struct {
	baseURL    string
	apiKey     string
	client     *http.Client
	limiter    *rate.Limiter
	maxRetries int
	retryDelay time.Duration
}

// ProviderOption configures HTTPProvider.
type ProviderOption func(*HTTPProvider)

// WithHTTPClient sets custom http.Client.
func WithHTTPClient(client *http.Client) ProviderOption {
	return func(p *HTTPProvider) {
		p.client = client
	}
}

// WithRateLimit sets the client-side request rate. A non-positive rps disables limiting.
func WithRateLimit(rps float64, burst int) ProviderOption {
	return func(p *HTTPProvider) {
		if rps <= 0 {
			p.limiter = rate.NewLimiter(rate.Inf, 0)
			return
		}
		if burst < 1 {
			burst = 1
		}
		p.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithMaxRetries sets retry attempts for 429 and 5xx responses.
func WithMaxRetries(n int) ProviderOption {
	return func(p *HTTPProvider) {
		p.maxRetries = n
	}
}

// WithRetryDelay sets the delay between retries.
func WithRetryDelay(d time.Duration) ProviderOption {
	return func(p *HTTPProvider) {
		p.retryDelay = d
	}
}

// WithAPIKey sends key in the X-API-Key header.
func WithAPIKey(key string) ProviderOption {
	return func(p *HTTPProvider) {
		p.apiKey = key
	}
}

// NewHTTPProvider creates a provider for baseURL.
func NewHTTPProvider(baseURL string, opts ...ProviderOption) *HTTPProvider {
	p := &HTTPProvider{
		baseURL:    strings.TrimRight(baseURL, "/"),
		client:     &http.Client{Timeout: DefaultFetchTimeout},
		limiter:    rate.NewLimiter(rate.Limit(DefaultRequestsPerSecond), DefaultBurst),
		maxRetries: DefaultMaxRetries,
		retryDelay: DefaultRetryDelay,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// metricsResponse is the provider payload.
type metricsResponse struct {
	Mcap        decimal.NullDecimal `json:"mcap"`
	Liquidity   decimal.NullDecimal `json:"liquidity"`
	HolderCount decimal.NullDecimal `json:"holderCount"`
	PriceUSD    decimal.NullDecimal `json:"priceUsd"`
}

// FetchTokenMetrics implements Provider.
func (p *HTTPProvider) FetchTokenMetrics(ctx context.Context, tokenAddress string) (*domain.TokenMetrics, error) {
	endpoint := p.baseURL + "/tokens/" + url.PathEscape(tokenAddress)

	var lastErr error
	for attempt := 0; attempt <= p.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(p.retryDelay):
			}
		}

		if err := p.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}

		body, status, err := p.get(ctx, endpoint)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err
			continue
		}

		switch {
		case status == http.StatusNotFound:
			return nil, ErrTokenNotFound
		case status == http.StatusTooManyRequests || status >= 500:
			lastErr = fmt.Errorf("%w %d", ErrProviderStatus, status)
			continue
		case status < 200 || status > 299:
			return nil, fmt.Errorf("%w %d: %s", ErrProviderStatus, status, truncate(body, 200))
		}

		return decodeMetrics(body)
	}

	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}

func (p *HTTPProvider) get(ctx context.Context, endpoint string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if p.apiKey != "" {
		req.Header.Set("X-API-Key", p.apiKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("read response: %w", err)
	}
	return body, resp.StatusCode, nil
}

func decodeMetrics(body []byte) (*domain.TokenMetrics, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) || bytes.Equal(trimmed, []byte("{}")) {
		return nil, ErrEmptyPayload
	}

	var resp metricsResponse
	if err := json.Unmarshal(trimmed, &resp); err != nil {
		return nil, fmt.Errorf("unmarshal metrics: %w", err)
	}

	m := &domain.TokenMetrics{
		Mcap:      floatPtr(resp.Mcap),
		Liquidity: floatPtr(resp.Liquidity),
		PriceUSD:  floatPtr(resp.PriceUSD),
	}
	if resp.HolderCount.Valid {
		n := resp.HolderCount.Decimal.IntPart()
		m.HolderCount = &n
	}
	return m, nil
}

func floatPtr(d decimal.NullDecimal) *float64 {
	if !d.Valid {
		return nil
	}
	f, _ := d.Decimal.Float64()
	return &f
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
