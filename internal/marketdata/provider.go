// Package marketdata fetches token market metrics and caches them briefly.
package marketdata

import (
	"context"
	"errors"

	"autotrade-coordinator/internal/domain"
)

// Provider fetches market metrics of a token from an external source.
type Provider interface {
	// FetchTokenMetrics returns the token's metrics. Returns ErrTokenNotFound
	// if the provider does not know the token.
	FetchTokenMetrics(ctx context.Context, tokenAddress string) (*domain.TokenMetrics, error)
}

// Provider errors.
var (
	ErrTokenNotFound  = errors.New("token not found")
	ErrEmptyPayload   = errors.New("empty metrics payload")
	ErrProviderStatus = errors.New("unexpected provider status")
)

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context, tokenAddress string) (*domain.TokenMetrics, error)

// FetchTokenMetrics calls f.
func (f ProviderFunc) FetchTokenMetrics(ctx context.Context, tokenAddress string) (*domain.TokenMetrics, error) {
	return f(ctx, tokenAddress)
}
