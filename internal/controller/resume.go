package controller

import (
	"context"
	"fmt"
	"log/slog"
)

// Resume rebuilds runtime trade state from open funding-trade records
// after a restart. Each open trade's sizes and entry prices are restored
// from the executor history over its window, its funding PnL from the
// payments already attributed to it; a trade that is still below its
// value cap resumes in SCALING_IN, otherwise the set resumes in
// ACTIVE_TRADE. Must be called before the first Tick.
func (c *Controller) Resume(ctx context.Context) error {
	open, err := c.deps.Matcher.ListOpen(ctx)
	if err != nil {
		return fmt.Errorf("controller: resume: %w", err)
	}
	if len(open) == 0 {
		return nil
	}

	var trades []*Trade
	for _, ft := range open {
		if ft.ControllerID != c.cfg.ControllerID {
			continue
		}
		t := NewTrade(ft, c.cfg.IncrementalOrderAmount, c.cfg.MaxTradeAllocation, c.deps.Notifier, c.logger)
		if err := t.Reload(ctx, c.deps.Aggregator, nil); err != nil {
			return err
		}
		funding, err := c.deps.Payments.SumForTrade(ctx, ft.ID)
		if err != nil {
			return fmt.Errorf("controller: resume funding pnl for %s: %w", ft.ID, err)
		}
		if funding.Valid {
			t.CumPnLFundingFees = funding.Decimal
		}
		trades = append(trades, t)
		c.logger.InfoContext(ctx, "resumed trade",
			slog.String("funding_trade_id", t.FundingTradeID),
			slog.String("long_size", t.LongSize.String()),
			slog.String("short_size", t.ShortSize.String()),
			slog.String("funding_pnl", t.CumPnLFundingFees.String()),
		)
	}
	if len(trades) == 0 {
		return nil
	}

	// A single under-cap trade was mid build-out; pick it back up there.
	if len(trades) == 1 && trades[0].CanAddIncrement() {
		c.setState(ctx, stateScalingIn{opening: trades[0]})
		return nil
	}
	c.setState(ctx, stateActiveTrade{active: trades})
	return nil
}
