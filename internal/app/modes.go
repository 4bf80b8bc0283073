package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/warkittens-chef/fundingarb/internal/controller"
)

// RunMode drives the controller: resume open trades from storage, then
// tick at the configured interval until the context is cancelled. A
// failed tick is logged and the loop keeps going; only resume failures
// are fatal.
func (a *App) RunMode(ctx context.Context, deps *Dependencies) error {
	ctrl := controller.New(ControllerConfig(a.cfg), controller.Deps{
		Policies:   deps.Policies,
		Aggregator: deps.Aggregator,
		Matcher:    deps.Matcher,
		Revenue:    deps.Revenue,
		Cost:       deps.Cost,
		Executors:  deps.ExecutorStore,
		Payments:   deps.FundingPaymentStore,
		Placer:     deps.Placer,
		Funds:      deps.Funds,
		Notifier:   deps.Notifier,
		Logger:     a.logger,
	})

	if err := ctrl.Resume(ctx); err != nil {
		return err
	}
	a.logger.InfoContext(ctx, "controller ready",
		slog.String("state", ctrl.State()),
		slog.Duration("tick_interval", a.cfg.Controller.TickInterval.Duration),
	)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		ticker := time.NewTicker(a.cfg.Controller.TickInterval.Duration)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
				if err := ctrl.Tick(ctx); err != nil {
					a.logger.WarnContext(ctx, "tick failed",
						slog.String("state", ctrl.State()),
						slog.Any("error", err),
					)
				}
			}
		}
	})

	err := g.Wait()
	if err == context.Canceled {
		return nil
	}
	return err
}

// MonitorMode periodically reports the aggregate position of every open
// funding trade without placing any orders. Useful for watching a
// controller run from a second process.
func (a *App) MonitorMode(ctx context.Context, deps *Dependencies) error {
	interval := a.cfg.Controller.TickInterval.Duration
	if interval < 10*time.Second {
		interval = 10 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if ctx.Err() == context.Canceled {
				return nil
			}
			return ctx.Err()
		case <-ticker.C:
			if err := a.reportOpenTrades(ctx, deps); err != nil {
				a.logger.WarnContext(ctx, "monitor report failed", slog.Any("error", err))
			}
		}
	}
}

func (a *App) reportOpenTrades(ctx context.Context, deps *Dependencies) error {
	open, err := deps.Matcher.ListOpen(ctx)
	if err != nil {
		return err
	}
	if len(open) == 0 {
		a.logger.InfoContext(ctx, "no open funding trades")
		return nil
	}

	for _, ft := range open {
		longSize, err := deps.Aggregator.PositionSize(ctx, ft.StartTime, nil, ft.LongMarket, ft.LongPair)
		if err != nil {
			return err
		}
		shortSize, err := deps.Aggregator.PositionSize(ctx, ft.StartTime, nil, ft.ShortMarket, ft.ShortPair)
		if err != nil {
			return err
		}
		funding, err := deps.FundingPaymentStore.SumForTrade(ctx, ft.ID)
		if err != nil {
			return err
		}
		fundingPnL := decimal.Zero
		if funding.Valid {
			fundingPnL = funding.Decimal
		}
		a.logger.InfoContext(ctx, "open funding trade",
			slog.String("funding_trade_id", ft.ID),
			slog.String("controller_id", ft.ControllerID),
			slog.String("long_leg", ft.LongLeg().String()),
			slog.String("short_leg", ft.ShortLeg().String()),
			slog.String("long_size", longSize.String()),
			slog.String("short_size", shortSize.String()),
			slog.String("funding_pnl", fundingPnL.String()),
		)
	}
	return nil
}
