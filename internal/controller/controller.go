package controller

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warkittens-chef/fundingarb/internal/domain"
	"github.com/warkittens-chef/fundingarb/internal/funding"
	"github.com/warkittens-chef/fundingarb/internal/policy"
	"github.com/warkittens-chef/fundingarb/internal/position"
)

// Config holds the controller's risk limits and candidate universe.
// Amounts are quote-denominated; revenue thresholds are annualized
// fractions (0.10 = 10% APR); MaxOrderCostPct is a fraction of order
// notional.
type Config struct {
	ControllerID string

	Tokens            []string
	Markets           []string
	Quotes            []string
	CrossExchangeOnly bool

	MaxControllerAllocation decimal.Decimal
	MaxTradeAllocation      decimal.Decimal
	IncrementalOrderAmount  decimal.Decimal
	MaxOrderCostPct         decimal.Decimal

	MinProjectedRevenue  decimal.Decimal
	ExitProjectedRevenue decimal.Decimal
	SwapMinImprovement   decimal.Decimal
	MinProfitability     decimal.Decimal
}

// Deps bundles the collaborators a Controller needs.
type Deps struct {
	Policies   *policy.Map
	Aggregator *position.Aggregator
	Matcher    *funding.Matcher
	Revenue    *funding.RevenueEstimator
	Cost       *funding.CostEstimator
	Executors  domain.ExecutorStore
	Payments   domain.FundingPaymentStore
	Placer     domain.OrderPlacer
	Funds      domain.BalanceChecker
	Notifier   Notifier
	Logger     *slog.Logger
}

// Controller sequences one funding-rate arbitrage position through
// discovery, scale-in, steady state, and scale-out/swap. It is driven by
// a scheduler calling Tick; no two ticks for the same instance may run
// concurrently, which is how all Trade and funding-trade writes stay
// serialized.
type Controller struct {
	cfg  Config
	deps Deps

	logger *slog.Logger
	now    func() int64

	state         state
	lastCloseSeen int64
}

// New creates a Controller in the NO_ACTIVE_TRADES state.
func New(cfg Config, deps Deps) *Controller {
	return &Controller{
		cfg:  cfg,
		deps: deps,
		logger: deps.Logger.With(
			slog.String("component", "controller"),
			slog.String("controller_id", cfg.ControllerID),
		),
		now:           func() int64 { return time.Now().Unix() },
		state:         stateNoActiveTrades{},
		lastCloseSeen: time.Now().Unix(),
	}
}

// State returns the name of the current state, for logs and status.
func (c *Controller) State() string {
	return c.state.name()
}

// Tick runs one scheduler tick: absorb executor outcomes and funding
// payments, then act on the current state. An error aborts only this
// tick's decision; the caller is expected to log it and keep ticking.
func (c *Controller) Tick(ctx context.Context) error {
	if err := c.absorbExecutorUpdates(ctx); err != nil {
		return err
	}
	if err := c.absorbFundingPayments(ctx); err != nil {
		return err
	}

	switch st := c.state.(type) {
	case stateNoActiveTrades:
		return c.tickIdle(ctx)
	case stateScalingIn:
		return c.tickScalingIn(ctx, st)
	case stateActiveTrade:
		return c.tickActive(ctx, st)
	case stateScalingOut:
		return c.tickScalingOut(ctx, st)
	case stateSwappingTrade:
		return c.tickSwapping(ctx, st)
	default:
		return fmt.Errorf("controller: unhandled state %q", c.state.name())
	}
}

// absorbExecutorUpdates routes executor records to the trades they belong
// to. Open records raise the single-flight flag; records closed since the
// last tick fold their fills into trade metrics and clear it.
func (c *Controller) absorbExecutorUpdates(ctx context.Context) error {
	trades := stateTrades(c.state)
	if len(trades) == 0 {
		return nil
	}

	open, err := c.deps.Executors.ListOpen(ctx, domain.ExecutorTypeArbitrage)
	if err != nil {
		return fmt.Errorf("controller: list open executors: %w", err)
	}
	closed, err := c.deps.Executors.ListClosedSince(ctx, domain.ExecutorTypeArbitrage, c.lastCloseSeen)
	if err != nil {
		return fmt.Errorf("controller: list closed executors: %w", err)
	}

	for _, rec := range closed {
		for _, t := range trades {
			t.UpdateOrderStatus(ctx, rec)
		}
		if rec.CloseTimestamp != nil && *rec.CloseTimestamp >= c.lastCloseSeen {
			c.lastCloseSeen = *rec.CloseTimestamp + 1
		}
	}
	for _, rec := range open {
		for _, t := range trades {
			t.UpdateOrderStatus(ctx, rec)
		}
	}
	return nil
}

// absorbFundingPayments resolves newly recorded funding payments to the
// trades owning their (market, pair) windows and accrues them into
// funding PnL. Payments that land outside any trade's window stay
// unattributed; payments owned by another controller's trade are left
// for that controller to pick up.
func (c *Controller) absorbFundingPayments(ctx context.Context) error {
	pending, err := c.deps.Payments.ListUnattributed(ctx)
	if err != nil {
		return fmt.Errorf("controller: list funding payments: %w", err)
	}
	if len(pending) == 0 {
		return nil
	}

	trades := stateTrades(c.state)
	for _, fp := range pending {
		ft, err := c.deps.Matcher.Find(ctx, fp.Timestamp, fp.Market, fp.Pair)
		if err != nil {
			return err
		}
		if ft == nil {
			c.logger.DebugContext(ctx, "funding payment has no owning trade",
				slog.String("payment_id", fp.ID),
				slog.String("market", fp.Market),
				slog.String("pair", fp.Pair),
				slog.Int64("ts", fp.Timestamp),
			)
			continue
		}
		if ft.ControllerID != c.cfg.ControllerID {
			continue
		}
		if err := c.deps.Payments.Attribute(ctx, fp.ID, ft.ID); err != nil {
			return fmt.Errorf("controller: attribute funding payment %s: %w", fp.ID, err)
		}
		for _, t := range trades {
			if t.FundingTradeID == ft.ID {
				t.AddFundingPayment(fp.Amount)
				_ = c.deps.Notifier.FundingPayment(ctx, ft.ID, fp.Amount)
			}
		}
		c.logger.InfoContext(ctx, "funding payment attributed",
			slog.String("payment_id", fp.ID),
			slog.String("funding_trade_id", ft.ID),
			slog.String("amount", fp.Amount.String()),
		)
	}
	return nil
}

// totalAllocation sums the invested value of every trade the controller
// currently knows about.
func (c *Controller) totalAllocation() decimal.Decimal {
	total := decimal.Zero
	for _, t := range stateTrades(c.state) {
		total = total.Add(t.CurrentTotalValueInvested())
	}
	return total
}

// acceptingNewTradeProposals is the funds-available gate for opening a
// brand-new trade.
func (c *Controller) acceptingNewTradeProposals(ctx context.Context) (bool, error) {
	available, err := c.deps.Funds.AvailableFunds(ctx)
	if err != nil {
		return false, fmt.Errorf("controller: available funds: %w", err)
	}
	if available.LessThan(c.cfg.IncrementalOrderAmount) {
		return false, nil
	}
	next := c.totalAllocation().Add(c.cfg.IncrementalOrderAmount)
	return next.LessThan(c.cfg.MaxControllerAllocation), nil
}

// bestCandidate scans every ordered leg permutation for every configured
// token and returns the one with the single highest projected revenue.
// Ties keep the first-seen candidate, so ranking beyond revenue follows
// policy-map order. Candidates using a leg in exclude are skipped, as are
// candidates with no published funding rate.
func (c *Controller) bestCandidate(ctx context.Context, exclude []domain.ConnectorPair) (*policy.TradeLegs, decimal.Decimal, error) {
	excluded := make(map[domain.ConnectorPair]bool, len(exclude))
	for _, leg := range exclude {
		excluded[leg] = true
	}

	var best *policy.TradeLegs
	bestRev := decimal.Zero
	for _, token := range c.cfg.Tokens {
		for _, legs := range c.deps.Policies.AllValidTradesForToken(token, c.cfg.Markets, c.cfg.Quotes, c.cfg.CrossExchangeOnly) {
			if excluded[legs.Long] || excluded[legs.Short] {
				continue
			}
			rev, err := c.deps.Revenue.ProjectedRevenue(ctx, legs)
			if err != nil {
				c.logger.DebugContext(ctx, "candidate skipped",
					slog.String("long", legs.Long.String()),
					slog.String("short", legs.Short.String()),
					slog.String("reason", err.Error()),
				)
				continue
			}
			if best == nil || rev.GreaterThan(bestRev) {
				legs := legs
				best, bestRev = &legs, rev
			}
		}
	}
	return best, bestRev, nil
}

func (c *Controller) tickIdle(ctx context.Context) error {
	ok, err := c.acceptingNewTradeProposals(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	best, rev, err := c.bestCandidate(ctx, nil)
	if err != nil {
		return err
	}
	if best == nil || rev.LessThan(c.cfg.MinProjectedRevenue) {
		return nil
	}

	ft, err := c.deps.Matcher.Open(ctx, best.Long, best.Short, c.cfg.ControllerID, c.now())
	if err != nil {
		return err
	}
	t := NewTrade(ft, c.cfg.IncrementalOrderAmount, c.cfg.MaxTradeAllocation, c.deps.Notifier, c.logger)
	c.setState(ctx, stateScalingIn{opening: t})
	_ = c.deps.Notifier.TradeOpened(ctx, best.Long, best.Short, rev)
	return nil
}

func (c *Controller) tickScalingIn(ctx context.Context, st stateScalingIn) error {
	promoted, err := c.scaleInStep(ctx, st.opening)
	if err != nil {
		return err
	}
	if promoted {
		c.setState(ctx, stateActiveTrade{active: []*Trade{st.opening}})
	}
	return nil
}

// scaleInStep issues at most one incremental opening order. It reports
// promoted=true when the trade should move to steady state: the
// controller-wide cap or the per-trade cap leaves no room for the next
// increment, or the projected per-increment cost exceeds the configured
// maximum. In the cost-exceeded case the partially built trade is still
// promoted; it is never rolled back.
func (c *Controller) scaleInStep(ctx context.Context, t *Trade) (bool, error) {
	if t.OrderInProgress {
		return false, nil
	}

	next := c.totalAllocation().Add(c.cfg.IncrementalOrderAmount)
	if next.GreaterThanOrEqual(c.cfg.MaxControllerAllocation) {
		c.logger.InfoContext(ctx, "controller allocation cap reached",
			slog.String("funding_trade_id", t.FundingTradeID))
		return true, nil
	}
	if !t.CanAddIncrement() {
		c.logger.InfoContext(ctx, "trade allocation cap reached",
			slog.String("funding_trade_id", t.FundingTradeID))
		return true, nil
	}

	cost, err := c.deps.Cost.ProjectedOrderCost(ctx, policy.TradeLegs{Long: t.LongPair, Short: t.ShortPair})
	if err != nil {
		return false, err
	}
	if cost.GreaterThanOrEqual(c.cfg.MaxOrderCostPct) {
		c.logger.InfoContext(ctx, "order cost above maximum, promoting partial trade",
			slog.String("funding_trade_id", t.FundingTradeID),
			slog.String("cost_pct", cost.StringFixed(6)),
		)
		return true, nil
	}

	req := t.NextScaleUpOrder()
	if req == nil {
		return true, nil
	}
	return false, c.placeOrder(ctx, t, req)
}

func (c *Controller) tickActive(ctx context.Context, st stateActiveTrade) error {
	for i, t := range st.active {
		legs := policy.TradeLegs{Long: t.LongPair, Short: t.ShortPair}
		rev, err := c.deps.Revenue.ProjectedRevenue(ctx, legs)
		if err != nil {
			return err
		}

		if rev.LessThan(c.cfg.ExitProjectedRevenue) {
			rest := otherTrades(st.active, i)
			c.setState(ctx, stateScalingOut{closing: t, active: rest})
			_ = c.deps.Notifier.TradeUnwinding(ctx, t.FundingTradeID, rev)
			return nil
		}

		best, bestRev, err := c.bestCandidate(ctx, []domain.ConnectorPair{t.LongPair, t.ShortPair})
		if err != nil {
			return err
		}
		if best == nil || bestRev.Sub(rev).LessThan(c.cfg.SwapMinImprovement) {
			continue
		}
		ok, err := c.acceptingNewTradeProposals(ctx)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}

		ft, err := c.deps.Matcher.Open(ctx, best.Long, best.Short, c.cfg.ControllerID, c.now())
		if err != nil {
			return err
		}
		incoming := NewTrade(ft, c.cfg.IncrementalOrderAmount, c.cfg.MaxTradeAllocation, c.deps.Notifier, c.logger)
		c.setState(ctx, stateSwappingTrade{opening: incoming, closing: t})
		_ = c.deps.Notifier.TradeSwapping(ctx, t.FundingTradeID, best.Long, best.Short, bestRev.Sub(rev))
		return nil
	}
	return nil
}

func (c *Controller) tickScalingOut(ctx context.Context, st stateScalingOut) error {
	closed, err := c.scaleOutStep(ctx, st.closing)
	if err != nil {
		return err
	}
	if !closed {
		return nil
	}
	if len(st.active) > 0 {
		c.setState(ctx, stateActiveTrade{active: st.active})
	} else {
		c.setState(ctx, stateNoActiveTrades{})
	}
	return nil
}

// scaleOutStep issues at most one incremental closing order, gated the
// same way as scale-in by the single-flight flag and the cost threshold.
// It reports closed=true once the trade is flat and its funding-trade
// window has been sealed.
func (c *Controller) scaleOutStep(ctx context.Context, t *Trade) (bool, error) {
	if t.OrderInProgress {
		return false, nil
	}
	if t.FullyClosed() {
		if err := c.deps.Matcher.CloseTrade(ctx, t.FundingTradeID, c.now()); err != nil {
			return false, err
		}
		_ = c.deps.Notifier.TradeClosed(ctx, t.FundingTradeID,
			t.CumPnLTradingFees, t.CumPnLPriceGaps, t.CumPnLFundingFees, t.FailureCount)
		return true, nil
	}

	cost, err := c.deps.Cost.ProjectedOrderCost(ctx, policy.TradeLegs{Long: t.LongPair, Short: t.ShortPair})
	if err != nil {
		return false, err
	}
	if cost.GreaterThanOrEqual(c.cfg.MaxOrderCostPct) {
		// Unwinding waits for the gap to come back in; there is nothing
		// to promote on the way out.
		return false, nil
	}

	req := t.NextScaleDownOrder()
	if req == nil {
		return false, nil
	}
	return false, c.placeOrder(ctx, t, req)
}

func (c *Controller) tickSwapping(ctx context.Context, st stateSwappingTrade) error {
	inDone, err := c.scaleInStep(ctx, st.opening)
	if err != nil {
		return err
	}
	outDone, err := c.scaleOutStep(ctx, st.closing)
	if err != nil {
		return err
	}

	switch {
	case inDone && outDone:
		c.setState(ctx, stateActiveTrade{active: []*Trade{st.opening}})
	case outDone:
		c.setState(ctx, stateScalingIn{opening: st.opening})
	case inDone:
		c.setState(ctx, stateScalingOut{closing: st.closing, active: []*Trade{st.opening}})
	}
	return nil
}

func (c *Controller) placeOrder(ctx context.Context, t *Trade, req *domain.OrderRequest) error {
	req.MinProfitability = c.cfg.MinProfitability
	execID, err := c.deps.Placer.PlaceArbitrageOrder(ctx, *req)
	if err != nil {
		return fmt.Errorf("controller: place order for trade %s: %w", t.FundingTradeID, err)
	}
	t.OrderInProgress = true
	c.logger.InfoContext(ctx, "incremental order placed",
		slog.String("funding_trade_id", t.FundingTradeID),
		slog.String("executor_id", execID),
		slog.String("buy", req.BuyLeg.String()),
		slog.String("sell", req.SellLeg.String()),
		slog.String("amount", req.Amount.String()),
	)
	return nil
}

func (c *Controller) setState(ctx context.Context, next state) {
	c.logger.InfoContext(ctx, "state transition",
		slog.String("from", c.state.name()),
		slog.String("to", next.name()),
	)
	c.state = next
}

func otherTrades(trades []*Trade, skip int) []*Trade {
	out := make([]*Trade, 0, len(trades)-1)
	for i, t := range trades {
		if i != skip {
			out = append(out, t)
		}
	}
	return out
}
