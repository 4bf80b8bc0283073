package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/warkittens-chef/fundingarb/internal/cache/redis"
	"github.com/warkittens-chef/fundingarb/internal/config"
	"github.com/warkittens-chef/fundingarb/internal/controller"
	"github.com/warkittens-chef/fundingarb/internal/domain"
	"github.com/warkittens-chef/fundingarb/internal/funding"
	"github.com/warkittens-chef/fundingarb/internal/notify"
	"github.com/warkittens-chef/fundingarb/internal/policy"
	"github.com/warkittens-chef/fundingarb/internal/position"
	"github.com/warkittens-chef/fundingarb/internal/store/postgres"
)

// Dependencies bundles everything the application modes need to operate.
// It is constructed by Wire and torn down by the returned cleanup
// function.
type Dependencies struct {
	ExecutorStore       domain.ExecutorStore
	FundingTradeStore   domain.FundingTradeStore
	FundingPaymentStore domain.FundingPaymentStore

	FundingRates domain.FundingRateCache
	MarkPrices   domain.MarkPriceCache

	Policies   *policy.Map
	Aggregator *position.Aggregator
	Matcher    *funding.Matcher
	Revenue    *funding.RevenueEstimator
	Cost       *funding.CostEstimator

	Notifier *notify.Notifier

	// Placer and Funds are implemented by the external execution
	// subsystem; Wire installs dry-run stand-ins so the controller can
	// run without one attached.
	Placer domain.OrderPlacer
	Funds  domain.BalanceChecker
}

// policyEntries converts config policy overrides into table entries,
// falling back to the built-in table when none are configured.
func policyEntries(cfg config.PolicyConfig) ([]policy.Entry, error) {
	if len(cfg.Pairs) == 0 {
		return policy.DefaultEntries(), nil
	}
	entries := make([]policy.Entry, 0, len(cfg.Pairs))
	for i, p := range cfg.Pairs {
		vol, err := policy.ParseVolatility(p.Volatility)
		if err != nil {
			return nil, fmt.Errorf("policy pairs[%d]: %w", i, err)
		}
		entries = append(entries, policy.Entry{
			Market: p.Market,
			Base:   p.Base,
			Quote:  p.Quote,
			Info: policy.MarketPairInfo{
				FundingInterval: p.FundingInterval,
				Volatility:      vol,
				PriceType:       policy.PriceType(p.PriceType),
			},
		})
	}
	return entries, nil
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that
// should be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config) (*Dependencies, func(), error) {
	logger := slog.Default()

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- PostgreSQL ---
	pgClient, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:      cfg.Postgres.DSN,
		Host:     cfg.Postgres.Host,
		Port:     cfg.Postgres.Port,
		Database: cfg.Postgres.Database,
		User:     cfg.Postgres.User,
		Password: cfg.Postgres.Password,
		SSLMode:  cfg.Postgres.SSLMode,
		MaxConns: cfg.Postgres.PoolMaxConns,
		MinConns: cfg.Postgres.PoolMinConns,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: postgres: %w", err)
	}
	closers = append(closers, pgClient.Close)

	if cfg.Postgres.RunMigrations {
		if err := pgClient.RunMigrations(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
		}
	}

	pool := pgClient.Pool()
	deps.ExecutorStore = postgres.NewExecutorStore(pool)
	deps.FundingTradeStore = postgres.NewFundingTradeStore(pool)
	deps.FundingPaymentStore = postgres.NewFundingPaymentStore(pool)

	// --- Redis ---
	redisClient, err := redis.New(ctx, redis.ClientConfig{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   cfg.Redis.PoolSize,
		MaxRetries: cfg.Redis.MaxRetries,
		TLSEnabled: cfg.Redis.TLSEnabled,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: redis: %w", err)
	}
	closers = append(closers, func() { _ = redisClient.Close() })

	deps.FundingRates = redis.NewFundingRateCache(redisClient, cfg.Redis.StaleAfter.Duration)
	deps.MarkPrices = redis.NewMarkPriceCache(redisClient, cfg.Redis.StaleAfter.Duration)

	// --- Policy map ---
	entries, err := policyEntries(cfg.Policy)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: %w", err)
	}
	deps.Policies = policy.NewMap(entries)

	// --- Core components ---
	deps.Aggregator = position.New(deps.ExecutorStore, logger)
	deps.Matcher = funding.NewMatcher(deps.FundingTradeStore, logger)
	deps.Revenue = funding.NewRevenueEstimator(deps.FundingRates, deps.Policies, logger)

	venueFees := make(map[string]decimal.Decimal, len(cfg.Controller.PerVenueFeeBps))
	for market, bps := range cfg.Controller.PerVenueFeeBps {
		venueFees[market] = decimal.NewFromFloat(bps).Div(decimal.NewFromInt(10_000))
	}
	deps.Cost = funding.NewCostEstimator(deps.MarkPrices, venueFees, logger)

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	// --- External execution stand-ins ---
	deps.Placer = newDryRunPlacer(deps.ExecutorStore, deps.MarkPrices, logger)
	deps.Funds = staticFunds{available: decimal.NewFromFloat(cfg.Controller.MaxControllerAllocation)}

	return deps, cleanup, nil
}

// ControllerConfig converts the loaded config into the controller's
// decimal-typed configuration.
func ControllerConfig(cfg *config.Config) controller.Config {
	c := cfg.Controller
	return controller.Config{
		ControllerID:      c.ID,
		Tokens:            c.Tokens,
		Markets:           c.Markets,
		Quotes:            c.Quotes,
		CrossExchangeOnly: c.CrossExchangeOnly,

		MaxControllerAllocation: decimal.NewFromFloat(c.MaxControllerAllocation),
		MaxTradeAllocation:      decimal.NewFromFloat(c.MaxTradeAllocation),
		IncrementalOrderAmount:  decimal.NewFromFloat(c.IncrementalOrderAmount),
		MaxOrderCostPct:         decimal.NewFromFloat(c.MaxOrderCostPct),

		MinProjectedRevenue:  decimal.NewFromFloat(c.MinProjectedRevenue),
		ExitProjectedRevenue: decimal.NewFromFloat(c.ExitProjectedRevenue),
		SwapMinImprovement:   decimal.NewFromFloat(c.SwapMinImprovement),
		MinProfitability:     decimal.NewFromFloat(c.MinProfitability),
	}
}
