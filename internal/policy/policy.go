// Package policy holds the static market-pair authorization table. It
// restricts which (market, trading pair) combinations a controller may
// trade and carries per-pair risk metadata: funding interval, volatility
// rating, and the price type the venue settles funding against. The table
// is built once at startup and never mutated afterwards.
package policy

import (
	"fmt"

	"github.com/warkittens-chef/fundingarb/internal/domain"
)

// VolatilityRating is the operator-assigned risk rating for a pair.
// DNU is a hard override that removes the pair from candidate generation
// regardless of any threshold comparison.
type VolatilityRating int

const (
	VolatilityDNU    VolatilityRating = -1
	VolatilityLow    VolatilityRating = 1
	VolatilityMedium VolatilityRating = 2
	VolatilityHigh   VolatilityRating = 3
)

// String returns the config-file spelling of the rating.
func (v VolatilityRating) String() string {
	switch v {
	case VolatilityDNU:
		return "dnu"
	case VolatilityLow:
		return "low"
	case VolatilityMedium:
		return "medium"
	case VolatilityHigh:
		return "high"
	default:
		return fmt.Sprintf("volatility(%d)", int(v))
	}
}

// ParseVolatility maps a config-file spelling to a rating.
func ParseVolatility(s string) (VolatilityRating, error) {
	switch s {
	case "dnu":
		return VolatilityDNU, nil
	case "low":
		return VolatilityLow, nil
	case "medium":
		return VolatilityMedium, nil
	case "high":
		return VolatilityHigh, nil
	default:
		return 0, fmt.Errorf("policy: unknown volatility rating %q", s)
	}
}

// PriceType is the price a venue marks funding payments against.
type PriceType string

const (
	PriceTypeUnknown    PriceType = "unknown"
	PriceTypeAvgEntry   PriceType = "avg_entry"
	PriceTypeMark       PriceType = "mark"
	PriceTypeSettlement PriceType = "settlement"
)

// MarketPairInfo is the metadata attached to one authorized pair.
type MarketPairInfo struct {
	FundingInterval int64 // seconds between funding payments
	Volatility      VolatilityRating
	PriceType       PriceType
}

// Entry is one row of the policy table.
type Entry struct {
	Market string
	Base   string
	Quote  string
	Info   MarketPairInfo
}

func key(market, base, quote string) string {
	return market + "|" + base + "|" + quote
}

// Map is the immutable policy table. Iteration order for candidate
// generation is entry insertion order; callers must not assume any other
// ranking.
type Map struct {
	entries []Entry
	index   map[string]MarketPairInfo
}

// NewMap builds a Map from entries. A duplicate (market, base, quote) key
// keeps its original position but takes the later info.
func NewMap(entries []Entry) *Map {
	m := &Map{index: make(map[string]MarketPairInfo, len(entries))}
	for _, e := range entries {
		k := key(e.Market, e.Base, e.Quote)
		if _, seen := m.index[k]; !seen {
			m.entries = append(m.entries, e)
		} else {
			for i := range m.entries {
				if key(m.entries[i].Market, m.entries[i].Base, m.entries[i].Quote) == k {
					m.entries[i].Info = e.Info
					break
				}
			}
		}
		m.index[k] = e.Info
	}
	return m
}

// PairInfo looks up the metadata for (market, base, quote). Absence at
// any level means the pair is not authorized; ok is false and the zero
// value is returned.
func (m *Map) PairInfo(market, base, quote string) (MarketPairInfo, bool) {
	info, ok := m.index[key(market, base, quote)]
	return info, ok
}

// Len returns the number of authorized entries.
func (m *Map) Len() int {
	return len(m.entries)
}

// ValidConnectorPairs returns every authorized connector pair for token
// whose market is in markets and whose quote is in quotes. A nil or empty
// quotes slice admits all quotes. Pairs rated DNU are excluded. Results
// follow table insertion order.
func (m *Map) ValidConnectorPairs(token string, markets []string, quotes []string) []domain.ConnectorPair {
	marketSet := make(map[string]bool, len(markets))
	for _, mk := range markets {
		marketSet[mk] = true
	}
	quoteSet := make(map[string]bool, len(quotes))
	for _, q := range quotes {
		quoteSet[q] = true
	}

	var pairs []domain.ConnectorPair
	for _, e := range m.entries {
		if !marketSet[e.Market] || e.Base != token {
			continue
		}
		if len(quoteSet) > 0 && !quoteSet[e.Quote] {
			continue
		}
		if e.Info.Volatility == VolatilityDNU {
			continue
		}
		pairs = append(pairs, domain.ConnectorPair{
			Market: e.Market,
			Pair:   e.Base + "-" + e.Quote,
		})
	}
	return pairs
}

// TradeLegs is one ordered candidate: a long leg and a short leg.
type TradeLegs struct {
	Long  domain.ConnectorPair
	Short domain.ConnectorPair
}

// AllValidTradesForToken returns every ordered (long, short) permutation
// of the valid connector pairs for token: exactly n*(n-1) candidates for
// n valid pairs, with no pair paired with itself. When crossExchangeOnly
// is set, permutations whose legs share a market are dropped.
func (m *Map) AllValidTradesForToken(token string, markets []string, quotes []string, crossExchangeOnly bool) []TradeLegs {
	pairs := m.ValidConnectorPairs(token, markets, quotes)
	var trades []TradeLegs
	for i, long := range pairs {
		for j, short := range pairs {
			if i == j {
				continue
			}
			if crossExchangeOnly && long.Market == short.Market {
				continue
			}
			trades = append(trades, TradeLegs{Long: long, Short: short})
		}
	}
	return trades
}
