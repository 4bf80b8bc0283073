// Package position computes open-position aggregates from the immutable
// executor record history. All arithmetic is exact decimal; the store is
// only ever asked for scalar sums so the algorithm stays independent of
// the storage technology.
package position

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/warkittens-chef/fundingarb/internal/domain"
)

// Aggregator answers position-size and average-entry-price queries for a
// (market, pair, time window) against the executor record store.
type Aggregator struct {
	store  domain.ExecutorStore
	logger *slog.Logger
}

// New creates an Aggregator backed by the given store.
func New(store domain.ExecutorStore, logger *slog.Logger) *Aggregator {
	return &Aggregator{
		store:  store,
		logger: logger.With(slog.String("component", "position_aggregator")),
	}
}

func orZero(n decimal.NullDecimal) decimal.Decimal {
	if !n.Valid {
		return decimal.Zero
	}
	return n.Decimal
}

// PositionSize returns the net open size for (market, pair) from closed
// executors whose close timestamp falls in [start, end], end == nil
// meaning unbounded above. A connector pair can appear as the buy leg in
// some executors and the sell leg in others as the position flips over
// time, so the result is |net buys - net sells|, with both sums taken
// from one snapshot. Fully failed executors carry zero executed size and
// contribute nothing. No matching records yields zero, not an error.
func (a *Aggregator) PositionSize(ctx context.Context, start int64, end *int64, market, pair string) (decimal.Decimal, error) {
	sums, err := a.store.SumNetExecuted(ctx, domain.ExecutorSumFilter{
		Type:       domain.ExecutorTypeArbitrage,
		Market:     market,
		Pair:       pair,
		CloseTypes: domain.SuccessfulCloseTypes,
		StartTime:  start,
		EndTime:    end,
	})
	if err != nil {
		return decimal.Zero, fmt.Errorf("position: sum net size %s %s: %w", market, pair, err)
	}

	return orZero(sums.Buy).Sub(orZero(sums.Sell)).Abs(), nil
}

// AvgEntryPrice returns the volume-weighted average entry price for the
// given side of (market, pair) over the window: sum(size*price) /
// sum(size) across closed executors with a positive executed size on
// that side, both sums taken from one snapshot so a fill landing
// mid-read cannot skew the ratio. The positive-size filter keeps
// zero-fill close attempts out of the average, and downscale orders
// never appear because they match on the opposite side's leg. A zero
// denominator yields zero.
func (a *Aggregator) AvgEntryPrice(ctx context.Context, start int64, end *int64, market, pair string, side domain.PositionSide) (decimal.Decimal, error) {
	if !side.Valid() {
		return decimal.Zero, fmt.Errorf("position: avg entry price for %q: %w", side, domain.ErrInvalidSide)
	}

	sums, err := a.store.SumExecuted(ctx, domain.ExecutorSumFilter{
		Type:             domain.ExecutorTypeArbitrage,
		Side:             side,
		Market:           market,
		Pair:             pair,
		CloseTypes:       domain.SuccessfulCloseTypes,
		StartTime:        start,
		EndTime:          end,
		PositiveSizeOnly: true,
	})
	if err != nil {
		return decimal.Zero, fmt.Errorf("position: sum executed %s %s: %w", market, pair, err)
	}

	qty := orZero(sums.Size)
	if qty.IsZero() {
		return decimal.Zero, nil
	}
	return orZero(sums.Notional).Div(qty), nil
}
