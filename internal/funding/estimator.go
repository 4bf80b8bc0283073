package funding

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/warkittens-chef/fundingarb/internal/domain"
	"github.com/warkittens-chef/fundingarb/internal/policy"
)

const secondsPerYear = int64(365 * 24 * 60 * 60)

// RevenueEstimator projects the annualized funding-rate differential of a
// candidate trade. Each leg's per-interval rate is annualized with that
// leg's own funding interval from the policy map, since venues pay on
// different schedules.
type RevenueEstimator struct {
	rates    domain.FundingRateCache
	policies *policy.Map
	logger   *slog.Logger
}

// NewRevenueEstimator creates a RevenueEstimator.
func NewRevenueEstimator(rates domain.FundingRateCache, policies *policy.Map, logger *slog.Logger) *RevenueEstimator {
	return &RevenueEstimator{
		rates:    rates,
		policies: policies,
		logger:   logger.With(slog.String("component", "revenue_estimator")),
	}
}

func (e *RevenueEstimator) annualizedRate(ctx context.Context, leg domain.ConnectorPair) (decimal.Decimal, error) {
	info, ok := e.policies.PairInfo(leg.Market, leg.Base(), leg.Quote())
	if !ok {
		return decimal.Zero, fmt.Errorf("funding: %s not in policy map: %w", leg, domain.ErrNotFound)
	}
	if info.FundingInterval <= 0 {
		return decimal.Zero, fmt.Errorf("funding: %s has no funding interval", leg)
	}
	rate, _, err := e.rates.Rate(ctx, leg)
	if err != nil {
		return decimal.Zero, fmt.Errorf("funding: rate for %s: %w", leg, err)
	}
	intervalsPerYear := decimal.NewFromInt(secondsPerYear).Div(decimal.NewFromInt(info.FundingInterval))
	return rate.Mul(intervalsPerYear), nil
}

// ProjectedRevenue returns the annualized rate differential for the
// candidate: shorts collect the short leg's funding, longs pay the long
// leg's, so the projection is shortAPR - longAPR.
func (e *RevenueEstimator) ProjectedRevenue(ctx context.Context, legs policy.TradeLegs) (decimal.Decimal, error) {
	longAPR, err := e.annualizedRate(ctx, legs.Long)
	if err != nil {
		return decimal.Zero, err
	}
	shortAPR, err := e.annualizedRate(ctx, legs.Short)
	if err != nil {
		return decimal.Zero, err
	}
	return shortAPR.Sub(longAPR), nil
}

// CostEstimator projects the cost of one incremental open or close order
// as a fraction of order notional: taker fees on both legs plus the
// current mark-price gap between the venues.
type CostEstimator struct {
	prices      domain.MarkPriceCache
	venueFeePct map[string]decimal.Decimal
	logger      *slog.Logger
}

// NewCostEstimator creates a CostEstimator. venueFeePct maps a market
// name to its taker fee as a fraction (e.g. 0.00055); unknown markets
// cost zero fees.
func NewCostEstimator(prices domain.MarkPriceCache, venueFeePct map[string]decimal.Decimal, logger *slog.Logger) *CostEstimator {
	return &CostEstimator{
		prices:      prices,
		venueFeePct: venueFeePct,
		logger:      logger.With(slog.String("component", "cost_estimator")),
	}
}

func (e *CostEstimator) feePct(market string) decimal.Decimal {
	return e.venueFeePct[market]
}

// ProjectedOrderCost returns feePct(long) + feePct(short) +
// |markLong - markShort| / markLong. The gap term is what crossing both
// books loses when the venues disagree on price; fees are always paid.
func (e *CostEstimator) ProjectedOrderCost(ctx context.Context, legs policy.TradeLegs) (decimal.Decimal, error) {
	longMark, _, err := e.prices.Price(ctx, legs.Long)
	if err != nil {
		return decimal.Zero, fmt.Errorf("funding: mark price for %s: %w", legs.Long, err)
	}
	shortMark, _, err := e.prices.Price(ctx, legs.Short)
	if err != nil {
		return decimal.Zero, fmt.Errorf("funding: mark price for %s: %w", legs.Short, err)
	}

	cost := e.feePct(legs.Long.Market).Add(e.feePct(legs.Short.Market))
	if !longMark.IsZero() {
		gap := longMark.Sub(shortMark).Abs().Div(longMark)
		cost = cost.Add(gap)
	}
	return cost, nil
}
