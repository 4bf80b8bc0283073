// Package config defines the top-level configuration for the funding
// arbitrage controller and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by FUNDARB_* environment
// variables.
type Config struct {
	Postgres   PostgresConfig   `toml:"postgres"`
	Redis      RedisConfig      `toml:"redis"`
	Controller ControllerConfig `toml:"controller"`
	Policy     PolicyConfig     `toml:"policy"`
	Notify     NotifyConfig     `toml:"notify"`
	Mode       string           `toml:"mode"`
	LogLevel   string           `toml:"log_level"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string   `toml:"addr"`
	Password   string   `toml:"password"`
	DB         int      `toml:"db"`
	PoolSize   int      `toml:"pool_size"`
	MaxRetries int      `toml:"max_retries"`
	TLSEnabled bool     `toml:"tls_enabled"`
	StaleAfter duration `toml:"stale_after"`
}

// ControllerConfig holds the controller's candidate universe, risk
// limits, and thresholds. Dollar amounts are quote-denominated; rates and
// cost limits are fractions (0.10 = 10%).
type ControllerConfig struct {
	ID                string   `toml:"id"`
	Tokens            []string `toml:"tokens"`
	Markets           []string `toml:"markets"`
	Quotes            []string `toml:"quotes"`
	CrossExchangeOnly bool     `toml:"cross_exchange_only"`

	MaxControllerAllocation float64 `toml:"max_controller_allocation"`
	MaxTradeAllocation      float64 `toml:"max_trade_allocation"`
	IncrementalOrderAmount  float64 `toml:"incremental_order_amount"`
	MaxOrderCostPct         float64 `toml:"max_order_cost_pct"`

	MinProjectedRevenue  float64 `toml:"min_projected_revenue"`
	ExitProjectedRevenue float64 `toml:"exit_projected_revenue"`
	SwapMinImprovement   float64 `toml:"swap_min_improvement"`
	MinProfitability     float64 `toml:"min_profitability"`

	// PerVenueFeeBps maps a market name to its taker fee in basis points.
	PerVenueFeeBps map[string]float64 `toml:"per_venue_fee_bps"`

	TickInterval duration `toml:"tick_interval"`
}

// PolicyConfig optionally replaces the built-in market-pair policy table.
type PolicyConfig struct {
	// Pairs, when non-empty, replaces the default table entirely.
	Pairs []PolicyPair `toml:"pairs"`
}

// PolicyPair is one [[policy.pairs]] entry.
type PolicyPair struct {
	Market          string `toml:"market"`
	Base            string `toml:"base"`
	Quote           string `toml:"quote"`
	FundingInterval int64  `toml:"funding_interval_seconds"`
	Volatility      string `toml:"volatility"` // low, medium, high, dnu
	PriceType       string `toml:"price_type"` // avg_entry, mark, settlement
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder
// can parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
func Defaults() Config {
	return Config{
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "fundingarb",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
			StaleAfter: duration{10 * time.Minute},
		},
		Controller: ControllerConfig{
			ID:                "funding_arb_1",
			Tokens:            []string{"ENA", "ONDO"},
			Markets:           []string{"bybit_perpetual", "hyperliquid_perpetual"},
			Quotes:            []string{"USDT", "USDC", "USD"},
			CrossExchangeOnly: false,

			MaxControllerAllocation: 500,
			MaxTradeAllocation:      200,
			IncrementalOrderAmount:  50,
			MaxOrderCostPct:         0.002,

			MinProjectedRevenue:  0.10,
			ExitProjectedRevenue: 0.02,
			SwapMinImprovement:   0.05,
			MinProfitability:     0.0005,

			PerVenueFeeBps: map[string]float64{
				"bybit_perpetual":       5.5,
				"hyperliquid_perpetual": 4.5,
			},

			TickInterval: duration{time.Second},
		},
		Notify: NotifyConfig{
			Events: []string{"trade_opened", "trade_closed", "trade_unwinding", "trade_swapping", "executor_failed", "funding_payment"},
		},
		Mode:     "run",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"run":     true,
	"monitor": true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and
// returns a combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: run, monitor)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Postgres
	if strings.TrimSpace(c.Postgres.DSN) == "" {
		if c.Postgres.Host == "" {
			errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
		}
		if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
			errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
		}
		if c.Postgres.Database == "" {
			errs = append(errs, "postgres: database must not be empty")
		}
	}
	if c.Postgres.PoolMaxConns < 1 {
		errs = append(errs, "postgres: pool_max_conns must be >= 1")
	}
	if c.Postgres.PoolMinConns < 0 {
		errs = append(errs, "postgres: pool_min_conns must be >= 0")
	}
	if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
		errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
	}

	// Redis
	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	// Controller
	if c.Controller.ID == "" {
		errs = append(errs, "controller: id must not be empty")
	}
	if len(c.Controller.Tokens) == 0 {
		errs = append(errs, "controller: at least one token is required")
	}
	if len(c.Controller.Markets) == 0 {
		errs = append(errs, "controller: at least one market is required")
	}
	if !c.Controller.CrossExchangeOnly && len(c.Controller.Quotes) < 2 && len(c.Controller.Markets) < 2 {
		errs = append(errs, "controller: same-exchange arbitrage needs at least two quotes")
	}
	if c.Controller.MaxControllerAllocation <= 0 {
		errs = append(errs, "controller: max_controller_allocation must be > 0")
	}
	if c.Controller.MaxTradeAllocation <= 0 {
		errs = append(errs, "controller: max_trade_allocation must be > 0")
	}
	if c.Controller.MaxTradeAllocation > c.Controller.MaxControllerAllocation {
		errs = append(errs, "controller: max_trade_allocation must not exceed max_controller_allocation")
	}
	if c.Controller.IncrementalOrderAmount <= 0 {
		errs = append(errs, "controller: incremental_order_amount must be > 0")
	}
	if c.Controller.MaxOrderCostPct < 0 {
		errs = append(errs, "controller: max_order_cost_pct must be >= 0")
	}
	if c.Controller.TickInterval.Duration <= 0 {
		errs = append(errs, "controller: tick_interval must be positive")
	}

	// Policy overrides
	for i, p := range c.Policy.Pairs {
		if p.Market == "" || p.Base == "" || p.Quote == "" {
			errs = append(errs, fmt.Sprintf("policy: pairs[%d]: market, base, and quote are all required", i))
		}
		if p.FundingInterval <= 0 {
			errs = append(errs, fmt.Sprintf("policy: pairs[%d]: funding_interval_seconds must be > 0", i))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
