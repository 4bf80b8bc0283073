package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/warkittens-chef/fundingarb/internal/domain"
)

// dryRunPlacer stands in for the external execution subsystem. Instead
// of routing orders to an exchange it records an immediately-completed
// executor so the controller's reconciliation loop sees the fill on its
// next tick. Fills are simulated at the requested notional with no
// price impact and no fees.
type dryRunPlacer struct {
	store  domain.ExecutorStore
	prices domain.MarkPriceCache
	logger *slog.Logger
}

func newDryRunPlacer(store domain.ExecutorStore, prices domain.MarkPriceCache, logger *slog.Logger) *dryRunPlacer {
	return &dryRunPlacer{
		store:  store,
		prices: prices,
		logger: logger.With(slog.String("component", "dry_run_placer")),
	}
}

var _ domain.OrderPlacer = (*dryRunPlacer)(nil)

func (p *dryRunPlacer) PlaceArbitrageOrder(ctx context.Context, req domain.OrderRequest) (string, error) {
	buyMark, _, err := p.prices.Price(ctx, req.BuyLeg)
	if err != nil {
		return "", fmt.Errorf("dry run: mark price %s: %w", req.BuyLeg, err)
	}
	sellMark, _, err := p.prices.Price(ctx, req.SellLeg)
	if err != nil {
		return "", fmt.Errorf("dry run: mark price %s: %w", req.SellLeg, err)
	}
	if buyMark.IsZero() || sellMark.IsZero() {
		return "", fmt.Errorf("dry run: zero mark price for %s or %s", req.BuyLeg, req.SellLeg)
	}

	now := time.Now().Unix()
	size := req.Amount.Div(buyMark)
	closeType := domain.CloseTypeCompleted

	rec := domain.ExecutorRecord{
		ID:             uuid.NewString(),
		Timestamp:      now,
		Type:           domain.ExecutorTypeArbitrage,
		CloseType:      &closeType,
		CloseTimestamp: &now,
		Status:         domain.ExecutorTerminated,

		BuyMarket:  req.BuyLeg.Market,
		BuyPair:    req.BuyLeg.Pair,
		SellMarket: req.SellLeg.Market,
		SellPair:   req.SellLeg.Pair,

		BuyExecutedSize:  size,
		BuyAvgPrice:      buyMark,
		SellExecutedSize: size,
		SellAvgPrice:     sellMark,
	}
	if err := p.store.Create(ctx, rec); err != nil {
		return "", fmt.Errorf("dry run: record executor: %w", err)
	}

	p.logger.Info("simulated arbitrage order",
		slog.String("executor_id", rec.ID),
		slog.String("buy_leg", req.BuyLeg.String()),
		slog.String("sell_leg", req.SellLeg.String()),
		slog.String("amount", req.Amount.String()),
		slog.String("size", size.String()),
	)
	return rec.ID, nil
}

// staticFunds reports a fixed available balance. It replaces the
// exchange balance feed when running without an execution subsystem
// attached.
type staticFunds struct {
	available decimal.Decimal
}

var _ domain.BalanceChecker = staticFunds{}

func (f staticFunds) AvailableFunds(ctx context.Context) (decimal.Decimal, error) {
	return f.available, nil
}
