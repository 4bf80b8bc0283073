// Package funding maintains funding-trade records and the estimators the
// controller uses to rank and gate trades. A funding trade pairs one long
// leg with one short leg over a time window; for any connector pair the
// windows of its trades must never overlap, so that a funding payment at
// a given timestamp can always be attributed to exactly one trade.
package funding

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/warkittens-chef/fundingarb/internal/domain"
)

// Matcher enforces the window-uniqueness invariant over the funding trade
// store: at insert time by refusing overlapping windows, and at read time
// by failing loudly if a lookup ever observes more than one match.
type Matcher struct {
	store  domain.FundingTradeStore
	logger *slog.Logger
}

// NewMatcher creates a Matcher backed by the given store.
func NewMatcher(store domain.FundingTradeStore, logger *slog.Logger) *Matcher {
	return &Matcher{
		store:  store,
		logger: logger.With(slog.String("component", "funding_matcher")),
	}
}

// Find resolves the single funding trade owning (market, pair) at the
// given timestamp, matching on either leg with open-ended window support.
// Zero matches returns (nil, nil). More than one match means the insert
// side let overlapping windows through; that is a data-integrity bug and
// is surfaced as domain.ErrTradeOverlap rather than silently picking one.
func (m *Matcher) Find(ctx context.Context, ts int64, market, pair string) (*domain.FundingTrade, error) {
	trades, err := m.store.FindInWindow(ctx, ts, market, pair)
	if err != nil {
		return nil, fmt.Errorf("funding: find trade %s %s at %d: %w", market, pair, ts, err)
	}
	if len(trades) > 1 {
		return nil, fmt.Errorf("funding: %d trades match %s %s at %d: %w",
			len(trades), market, pair, ts, domain.ErrTradeOverlap)
	}
	if len(trades) == 0 {
		return nil, nil
	}
	return &trades[0], nil
}

// Open records a new funding trade starting at startTime. The new
// trade's window is [startTime, +inf) until it is sealed, so both legs
// are checked against every stored trade whose window reaches startTime
// or beyond, backdated starts included. That keeps the uniqueness
// invariant holding by construction.
func (m *Matcher) Open(ctx context.Context, long, short domain.ConnectorPair, controllerID string, startTime int64) (domain.FundingTrade, error) {
	for _, leg := range []domain.ConnectorPair{long, short} {
		existing, err := m.store.FindActiveFrom(ctx, startTime, leg.Market, leg.Pair)
		if err != nil {
			return domain.FundingTrade{}, fmt.Errorf("funding: open trade: check %s: %w", leg, err)
		}
		if len(existing) > 0 {
			return domain.FundingTrade{}, fmt.Errorf("funding: %s already belongs to trade %s: %w",
				leg, existing[0].ID, domain.ErrTradeOverlap)
		}
	}

	ft := domain.FundingTrade{
		ID:           uuid.NewString(),
		ControllerID: controllerID,
		StartTime:    startTime,
		LongMarket:   long.Market,
		LongPair:     long.Pair,
		ShortMarket:  short.Market,
		ShortPair:    short.Pair,
	}
	if err := m.store.Create(ctx, ft); err != nil {
		return domain.FundingTrade{}, fmt.Errorf("funding: create trade: %w", err)
	}
	m.logger.Info("funding trade opened",
		slog.String("id", ft.ID),
		slog.String("long", long.String()),
		slog.String("short", short.String()),
		slog.Int64("start_time", startTime),
	)
	return ft, nil
}

// ListOpen returns every funding trade with no end time yet.
func (m *Matcher) ListOpen(ctx context.Context) ([]domain.FundingTrade, error) {
	trades, err := m.store.ListOpen(ctx)
	if err != nil {
		return nil, fmt.Errorf("funding: list open trades: %w", err)
	}
	return trades, nil
}

// CloseTrade seals the trade's window at endTime. A trade that already
// has an end time is never mutated again.
func (m *Matcher) CloseTrade(ctx context.Context, id string, endTime int64) error {
	if err := m.store.SetEndTime(ctx, id, endTime); err != nil {
		return fmt.Errorf("funding: close trade %s: %w", id, err)
	}
	m.logger.Info("funding trade closed",
		slog.String("id", id),
		slog.Int64("end_time", endTime),
	)
	return nil
}
