package domain

// FundingTrade is the persistent record of one funding-rate arbitrage
// trade: a long leg and a short leg active over [StartTime, EndTime].
// EndTime is nil while the trade is still open; an open window extends to
// +infinity for overlap purposes.
//
// Uniqueness invariant: for a given connector pair appearing on either
// leg, no two FundingTrade records may have overlapping windows. The
// matcher enforces this at insert time and fails loudly if a read ever
// observes a violation.
type FundingTrade struct {
	ID           string
	ControllerID string
	StartTime    int64
	EndTime      *int64

	LongMarket  string
	LongPair    string
	ShortMarket string
	ShortPair   string
}

// LongLeg returns the long-side connector pair.
func (ft FundingTrade) LongLeg() ConnectorPair {
	return ConnectorPair{Market: ft.LongMarket, Pair: ft.LongPair}
}

// ShortLeg returns the short-side connector pair.
func (ft FundingTrade) ShortLeg() ConnectorPair {
	return ConnectorPair{Market: ft.ShortMarket, Pair: ft.ShortPair}
}

// HasLeg reports whether either leg of the trade is (market, pair).
func (ft FundingTrade) HasLeg(market, pair string) bool {
	return (ft.LongMarket == market && ft.LongPair == pair) ||
		(ft.ShortMarket == market && ft.ShortPair == pair)
}

// ActiveAt reports whether the timestamp falls inside the trade's window,
// treating a nil EndTime as open-ended.
func (ft FundingTrade) ActiveAt(ts int64) bool {
	if ft.StartTime > ts {
		return false
	}
	return ft.EndTime == nil || *ft.EndTime >= ts
}

// ActiveFrom reports whether any part of the trade's window lies at or
// after ts. An open-ended trade always does.
func (ft FundingTrade) ActiveFrom(ts int64) bool {
	return ft.EndTime == nil || *ft.EndTime >= ts
}
