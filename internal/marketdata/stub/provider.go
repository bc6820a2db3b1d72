package stub

import (
	"context"
	"sync"

	"autotrade-coordinator/internal/domain"
	"autotrade-coordinator/internal/marketdata"
)

// Provider implements marketdata.Provider for testing.
// Lookups match the address exactly, as a real provider does for case-sensitive
// mints. Unknown tokens return marketdata.ErrTokenNotFound.
type Provider struct {
	mu      sync.Mutex
	Metrics map[string]*domain.TokenMetrics
	Errors  map[string]error
	calls   map[string]int
}

// NewProvider creates a new stub provider.
func NewProvider() *Provider {
	return &Provider{
		Metrics: make(map[string]*domain.TokenMetrics),
		Errors:  make(map[string]error),
		calls:   make(map[string]int),
	}
}

// SetMarketCap registers a token with only a market cap.
func (p *Provider) SetMarketCap(tokenAddress string, mcap float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Metrics[tokenAddress] = &domain.TokenMetrics{Mcap: &mcap}
}

// FetchTokenMetrics returns the registered metrics or error.
func (p *Provider) FetchTokenMetrics(_ context.Context, tokenAddress string) (*domain.TokenMetrics, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.calls[tokenAddress]++
	if err, ok := p.Errors[tokenAddress]; ok {
		return nil, err
	}
	m, ok := p.Metrics[tokenAddress]
	if !ok {
		return nil, marketdata.ErrTokenNotFound
	}
	cp := *m
	return &cp, nil
}

// Calls returns how many times tokenAddress was fetched.
func (p *Provider) Calls(tokenAddress string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[tokenAddress]
}

// TotalCalls returns the number of fetches across all tokens.
func (p *Provider) TotalCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	total := 0
	for _, n := range p.calls {
		total += n
	}
	return total
}

var _ marketdata.Provider = (*Provider)(nil)
