package policy

// DefaultEntries is the built-in policy table. Operators extend or
// replace it with [[policy.pairs]] entries in the config file; entries
// here are the pairs the strategy has been validated against.
func DefaultEntries() []Entry {
	const hour = int64(60 * 60)
	return []Entry{
		{
			Market: "bybit_perpetual", Base: "ENA", Quote: "USDT",
			Info: MarketPairInfo{FundingInterval: 4 * hour, Volatility: VolatilityLow, PriceType: PriceTypeAvgEntry},
		},
		{
			Market: "bybit_perpetual", Base: "ENA", Quote: "USDC",
			Info: MarketPairInfo{FundingInterval: 8 * hour, Volatility: VolatilityLow, PriceType: PriceTypeSettlement},
		},
		{
			Market: "bybit_perpetual", Base: "ONDO", Quote: "USDT",
			Info: MarketPairInfo{FundingInterval: 4 * hour, Volatility: VolatilityLow, PriceType: PriceTypeAvgEntry},
		},
		{
			Market: "bybit_perpetual", Base: "ONDO", Quote: "USDC",
			Info: MarketPairInfo{FundingInterval: 8 * hour, Volatility: VolatilityLow, PriceType: PriceTypeSettlement},
		},
		{
			Market: "hyperliquid_perpetual", Base: "ENA", Quote: "USD",
			Info: MarketPairInfo{FundingInterval: 1 * hour, Volatility: VolatilityLow, PriceType: PriceTypeMark},
		},
		{
			Market: "hyperliquid_perpetual", Base: "ONDO", Quote: "USD",
			Info: MarketPairInfo{FundingInterval: 1 * hour, Volatility: VolatilityLow, PriceType: PriceTypeMark},
		},
	}
}

// Default returns a Map built from DefaultEntries.
func Default() *Map {
	return NewMap(DefaultEntries())
}
