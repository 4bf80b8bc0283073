package domain

import "strings"

// ConnectorPair identifies one leg of an arbitrage trade: a market
// (exchange connector name) plus a trading pair on that market, e.g.
// {"bybit_perpetual", "ENA-USDT"}.
type ConnectorPair struct {
	Market string
	Pair   string
}

// String returns the canonical "market:pair" form used in log lines and
// cache keys.
func (cp ConnectorPair) String() string {
	return cp.Market + ":" + cp.Pair
}

// Base returns the base token of the trading pair, or "" if the pair is
// not in BASE-QUOTE form.
func (cp ConnectorPair) Base() string {
	base, _, ok := strings.Cut(cp.Pair, "-")
	if !ok {
		return ""
	}
	return base
}

// Quote returns the quote token of the trading pair, or "" if the pair is
// not in BASE-QUOTE form.
func (cp ConnectorPair) Quote() string {
	_, quote, ok := strings.Cut(cp.Pair, "-")
	if !ok {
		return ""
	}
	return quote
}
