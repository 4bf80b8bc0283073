// Package controller owns the runtime state of funding-rate arbitrage
// trades and the state machine that scales them in and out. All state in
// this package is mutated only from the controller's tick goroutine.
package controller

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/warkittens-chef/fundingarb/internal/domain"
	"github.com/warkittens-chef/fundingarb/internal/position"
)

// Notifier is the slice of the notification system the controller needs.
// Satisfied by *notify.Notifier.
type Notifier interface {
	TradeOpened(ctx context.Context, long, short domain.ConnectorPair, projectedAPR decimal.Decimal) error
	TradeUnwinding(ctx context.Context, tradeID string, projectedAPR decimal.Decimal) error
	TradeSwapping(ctx context.Context, outgoingID string, long, short domain.ConnectorPair, improvement decimal.Decimal) error
	TradeClosed(ctx context.Context, tradeID string, tradingFees, priceGaps, fundingFees decimal.Decimal, failures int) error
	ExecutorFailed(ctx context.Context, tradeID, executorID string, closeType int, buy, sell domain.ConnectorPair) error
	FundingPayment(ctx context.Context, tradeID string, amount decimal.Decimal) error
}

// Trade is the transient state of one active arbitrage trade. It tracks
// per-side size and average entry price, cumulative PnL components, and
// the single-flight order flag. The controller defers per-trade decisions
// to this object; actual order placement stays with the controller.
type Trade struct {
	// FundingTradeID links back to the persistent funding trade record.
	FundingTradeID string

	LongPair  domain.ConnectorPair
	ShortPair domain.ConnectorPair

	IncrementalOrderAmount  decimal.Decimal
	MaxTotalValueInvestable decimal.Decimal

	LongSize           decimal.Decimal
	ShortSize          decimal.Decimal
	LongAvgEntryPrice  decimal.Decimal
	ShortAvgEntryPrice decimal.Decimal

	CumPnLTradingFees decimal.Decimal
	CumPnLPriceGaps   decimal.Decimal
	CumPnLFundingFees decimal.Decimal

	// OrderInProgress is the single-flight flag: at most one order may
	// be in flight for a trade at any time. Cleared only when the
	// matching executor reaches a terminal outcome.
	OrderInProgress bool

	// FailureCount counts executors that closed with any outcome other
	// than fully completed. Consumed by the execution layer's
	// retry/abort policy.
	FailureCount int

	StartTime int64

	logger   *slog.Logger
	notifier Notifier
}

// NewTrade creates the runtime object for a freshly opened funding trade.
func NewTrade(ft domain.FundingTrade, incOrderAmount, maxInvestable decimal.Decimal, notifier Notifier, logger *slog.Logger) *Trade {
	return &Trade{
		FundingTradeID:          ft.ID,
		LongPair:                ft.LongLeg(),
		ShortPair:               ft.ShortLeg(),
		IncrementalOrderAmount:  incOrderAmount,
		MaxTotalValueInvestable: maxInvestable,
		StartTime:               ft.StartTime,
		logger: logger.With(
			slog.String("component", "trade"),
			slog.String("funding_trade_id", ft.ID),
		),
		notifier: notifier,
	}
}

// BelongsToTrade reports whether the executor's configured buy and sell
// legs are exactly this trade's two legs, in either order. An opening
// order buys the long leg; a downscale order buys the short leg.
func (t *Trade) BelongsToTrade(rec domain.ExecutorRecord) bool {
	buy, sell := rec.BuyLeg(), rec.SellLeg()
	if buy == t.LongPair && sell == t.ShortPair {
		return true
	}
	return buy == t.ShortPair && sell == t.LongPair
}

// CurrentTotalValueInvested is the capital currently committed to the
// trade. Trading fees and price-gap PnL are realized costs already paid,
// so they reduce net invested capital.
func (t *Trade) CurrentTotalValueInvested() decimal.Decimal {
	return t.LongSize.Mul(t.LongAvgEntryPrice).
		Add(t.ShortSize.Mul(t.ShortAvgEntryPrice)).
		Sub(t.CumPnLTradingFees).
		Sub(t.CumPnLPriceGaps)
}

// CanAddIncrement reports whether one more incremental order fits under
// the trade's value cap.
func (t *Trade) CanAddIncrement() bool {
	next := t.CurrentTotalValueInvested().Add(t.IncrementalOrderAmount)
	return next.LessThan(t.MaxTotalValueInvestable)
}

// UpdateOrderStatus folds one executor update into the trade. Records for
// other trades are ignored. A terminal record is added to the trade's
// metrics and clears the single-flight flag; a live record raises it.
func (t *Trade) UpdateOrderStatus(ctx context.Context, rec domain.ExecutorRecord) {
	if !t.BelongsToTrade(rec) {
		return
	}
	if !rec.IsDone() {
		t.OrderInProgress = true
		return
	}
	t.addFinalizedOrder(ctx, rec)
	t.OrderInProgress = false
}

// addFinalizedOrder applies a closed executor's fills to the per-side
// sizes, entry prices, and PnL components. A record with zero executed
// size and zero price on both sides is a valid nothing-happened outcome.
func (t *Trade) addFinalizedOrder(ctx context.Context, rec domain.ExecutorRecord) {
	if rec.CloseType == nil || *rec.CloseType != domain.CloseTypeCompleted {
		t.FailureCount++
		closeType := -1
		if rec.CloseType != nil {
			closeType = int(*rec.CloseType)
		}
		t.logger.WarnContext(ctx, "executor closed abnormally",
			slog.String("executor_id", rec.ID),
			slog.Int("close_type", closeType),
			slog.String("buy_leg", rec.BuyLeg().String()),
			slog.String("sell_leg", rec.SellLeg().String()),
		)
		_ = t.notifier.ExecutorFailed(ctx, t.FundingTradeID, rec.ID, closeType, rec.BuyLeg(), rec.SellLeg())
	}
	if !rec.Succeeded() {
		// Fully failed legs record zero size; nothing to fold in.
		return
	}

	opening := rec.BuyLeg() == t.LongPair
	if opening {
		t.LongAvgEntryPrice = weightedPrice(t.LongSize, t.LongAvgEntryPrice, rec.BuyExecutedSize, rec.BuyAvgPrice)
		t.ShortAvgEntryPrice = weightedPrice(t.ShortSize, t.ShortAvgEntryPrice, rec.SellExecutedSize, rec.SellAvgPrice)
		t.LongSize = t.LongSize.Add(rec.BuyExecutedSize)
		t.ShortSize = t.ShortSize.Add(rec.SellExecutedSize)
	} else {
		// Downscale: the buy leg reduces the short side and the sell leg
		// reduces the long side. Entry prices are untouched.
		t.ShortSize = t.ShortSize.Sub(rec.BuyExecutedSize)
		t.LongSize = t.LongSize.Sub(rec.SellExecutedSize)
		if t.ShortSize.IsNegative() {
			t.ShortSize = decimal.Zero
		}
		if t.LongSize.IsNegative() {
			t.LongSize = decimal.Zero
		}
	}

	t.CumPnLTradingFees = t.CumPnLTradingFees.Add(rec.CumFeesQuote)
	// Price-gap PnL of a two-leg fill is what the sell leg brought in
	// minus what the buy leg cost.
	gap := rec.SellExecutedSize.Mul(rec.SellAvgPrice).Sub(rec.BuyExecutedSize.Mul(rec.BuyAvgPrice))
	t.CumPnLPriceGaps = t.CumPnLPriceGaps.Add(gap)
}

// AddFundingPayment accrues one funding payment (positive = received)
// against the trade.
func (t *Trade) AddFundingPayment(amount decimal.Decimal) {
	t.CumPnLFundingFees = t.CumPnLFundingFees.Add(amount)
}

// FullyClosed reports whether both sides have been scaled to zero.
func (t *Trade) FullyClosed() bool {
	return t.LongSize.IsZero() && t.ShortSize.IsZero()
}

// NextScaleUpOrder proposes the next incremental opening order, or nil
// when the single-flight flag is up or the value cap leaves no room.
func (t *Trade) NextScaleUpOrder() *domain.OrderRequest {
	if t.OrderInProgress || !t.CanAddIncrement() {
		return nil
	}
	return &domain.OrderRequest{
		BuyLeg:  t.LongPair,
		SellLeg: t.ShortPair,
		Amount:  t.IncrementalOrderAmount,
	}
}

// NextScaleDownOrder proposes the next incremental closing order, or nil
// when an order is in flight or the trade is already flat.
func (t *Trade) NextScaleDownOrder() *domain.OrderRequest {
	if t.OrderInProgress || t.FullyClosed() {
		return nil
	}
	return &domain.OrderRequest{
		BuyLeg:  t.ShortPair,
		SellLeg: t.LongPair,
		Amount:  t.IncrementalOrderAmount,
	}
}

// Reload restores per-side size and entry price from the executor record
// history over the trade's window, for picking an in-progress trade back
// up after a restart.
func (t *Trade) Reload(ctx context.Context, agg *position.Aggregator, end *int64) error {
	longSize, err := agg.PositionSize(ctx, t.StartTime, end, t.LongPair.Market, t.LongPair.Pair)
	if err != nil {
		return fmt.Errorf("controller: reload long size: %w", err)
	}
	shortSize, err := agg.PositionSize(ctx, t.StartTime, end, t.ShortPair.Market, t.ShortPair.Pair)
	if err != nil {
		return fmt.Errorf("controller: reload short size: %w", err)
	}
	longAvg, err := agg.AvgEntryPrice(ctx, t.StartTime, end, t.LongPair.Market, t.LongPair.Pair, domain.SideLong)
	if err != nil {
		return fmt.Errorf("controller: reload long avg price: %w", err)
	}
	shortAvg, err := agg.AvgEntryPrice(ctx, t.StartTime, end, t.ShortPair.Market, t.ShortPair.Pair, domain.SideShort)
	if err != nil {
		return fmt.Errorf("controller: reload short avg price: %w", err)
	}

	t.LongSize, t.ShortSize = longSize, shortSize
	t.LongAvgEntryPrice, t.ShortAvgEntryPrice = longAvg, shortAvg
	return nil
}

// weightedPrice folds an increment into a volume-weighted average price.
// A zero-size increment leaves the average untouched, so half-failed legs
// with no fill cannot skew it.
func weightedPrice(oldSize, oldPrice, addSize, addPrice decimal.Decimal) decimal.Decimal {
	if addSize.IsZero() {
		return oldPrice
	}
	total := oldSize.Add(addSize)
	if total.IsZero() {
		return decimal.Zero
	}
	return oldSize.Mul(oldPrice).Add(addSize.Mul(addPrice)).Div(total)
}
