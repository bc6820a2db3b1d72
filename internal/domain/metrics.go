package domain

// TokenMetrics is the market data snapshot of a token from the external provider.
type TokenMetrics struct {
	TokenAddress string   // normalized token address
	Mcap         *float64 // market cap in USD (nullable)
	Liquidity    *float64 // pool liquidity in USD (nullable)
	HolderCount  *int64   // holder count (nullable)
	PriceUSD     *float64 // last price in USD (nullable)
	FetchedAt    int64    // when metrics were fetched (ms)
}
