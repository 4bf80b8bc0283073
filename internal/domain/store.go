package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// ExecutorSumFilter describes one scalar sum over executor records. Side
// selects which leg the market/pair equality, size sum, and positive-size
// predicate apply to. A nil EndTime leaves the close-timestamp range
// unbounded above. Only records with a non-null close timestamp are ever
// considered.
type ExecutorSumFilter struct {
	Type             string
	Side             PositionSide
	Market           string
	Pair             string
	CloseTypes       []CloseType
	StartTime        int64
	EndTime          *int64
	PositiveSizeOnly bool
}

// ExecutorSums carries both aggregates of one side filter. The pair is
// always produced by a single query so both figures reflect the same
// snapshot of the records.
type ExecutorSums struct {
	Size     decimal.NullDecimal
	Notional decimal.NullDecimal
}

// NetExecutorSums carries the buy-leg and sell-leg size sums of one
// snapshot of the records.
type NetExecutorSums struct {
	Buy  decimal.NullDecimal
	Sell decimal.NullDecimal
}

// ExecutorStore is the query interface over the append-only executor
// record repository. The core never updates records through it; Create
// exists for the execution subsystem and for backfilling test fixtures.
// Records land concurrently with reads, so every aggregate method
// returns all of its figures from one statement rather than splitting a
// decision's inputs across snapshots.
type ExecutorStore interface {
	Create(ctx context.Context, rec ExecutorRecord) error
	// SumExecuted sums the filtered side's executed base size and its
	// notional (executed_size * avg_price) in a single query. Absence
	// of any matching row yields invalid NullDecimals.
	SumExecuted(ctx context.Context, f ExecutorSumFilter) (ExecutorSums, error)
	// SumNetExecuted sums the buy-leg and the sell-leg executed size for
	// (Market, Pair) in a single query, each sum matching the record's
	// own leg columns. The filter's Side and PositiveSizeOnly fields are
	// ignored here.
	SumNetExecuted(ctx context.Context, f ExecutorSumFilter) (NetExecutorSums, error)
	// ListOpen returns records of the given type with no close timestamp.
	ListOpen(ctx context.Context, execType string) ([]ExecutorRecord, error)
	// ListClosedSince returns records of the given type whose close
	// timestamp is >= since, in close-timestamp order.
	ListClosedSince(ctx context.Context, execType string, since int64) ([]ExecutorRecord, error)
}

// FundingTradeStore persists funding trades. Closed trades are never
// mutated; SetEndTime is the only write after Create and must fail once
// an end time is already present.
type FundingTradeStore interface {
	Create(ctx context.Context, ft FundingTrade) error
	SetEndTime(ctx context.Context, id string, endTime int64) error
	// FindInWindow returns every trade where (market, pair) matches
	// either leg and ts falls inside the trade's window, with open-ended
	// window support. Uniqueness is the caller's concern.
	FindInWindow(ctx context.Context, ts int64, market, pair string) ([]FundingTrade, error)
	// FindActiveFrom returns every trade where (market, pair) matches
	// either leg and the trade's window intersects [from, +inf): still
	// open, or closed at or after from.
	FindActiveFrom(ctx context.Context, from int64, market, pair string) ([]FundingTrade, error)
	ListOpen(ctx context.Context) ([]FundingTrade, error)
}

// FundingPaymentStore persists funding payments written by the external
// execution subsystem. Attributing a payment to its funding trade is the
// only write this module makes; Create exists for the execution
// subsystem and for backfilling test fixtures.
type FundingPaymentStore interface {
	Create(ctx context.Context, fp FundingPayment) error
	// ListUnattributed returns payments with no trade assigned yet, in
	// timestamp order.
	ListUnattributed(ctx context.Context) ([]FundingPayment, error)
	// Attribute assigns the payment to a funding trade. Attributing an
	// already-attributed payment is an error.
	Attribute(ctx context.Context, id, tradeID string) error
	// SumForTrade sums the attributed payment amounts of one trade.
	// Absence of any payment yields an invalid NullDecimal.
	SumForTrade(ctx context.Context, tradeID string) (decimal.NullDecimal, error)
}

// FundingRateCache exposes the most recent funding rate per connector
// pair. Rates are produced by an external market-data collector.
type FundingRateCache interface {
	SetRate(ctx context.Context, pair ConnectorPair, rate decimal.Decimal, ts time.Time) error
	// Rate returns ErrNotFound when no rate has been published.
	Rate(ctx context.Context, pair ConnectorPair) (decimal.Decimal, time.Time, error)
}

// MarkPriceCache exposes the most recent mark price per connector pair.
type MarkPriceCache interface {
	SetPrice(ctx context.Context, pair ConnectorPair, price decimal.Decimal, ts time.Time) error
	// Price returns ErrNotFound when no price has been published.
	Price(ctx context.Context, pair ConnectorPair) (decimal.Decimal, time.Time, error)
}

// OrderRequest asks the external execution subsystem for one incremental
// two-leg order. Amount is quote-denominated.
type OrderRequest struct {
	BuyLeg           ConnectorPair
	SellLeg          ConnectorPair
	Amount           decimal.Decimal
	MinProfitability decimal.Decimal
}

// OrderPlacer is implemented by the external execution subsystem. It
// returns the ID of the executor record that will track the order.
type OrderPlacer interface {
	PlaceArbitrageOrder(ctx context.Context, req OrderRequest) (string, error)
}

// BalanceChecker reports the quote-denominated funds the account still
// has available for new exposure. Implemented by the exchange-facing
// layer.
type BalanceChecker interface {
	AvailableFunds(ctx context.Context) (decimal.Decimal, error)
}
