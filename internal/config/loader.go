package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies FUNDARB_* environment variable overrides,
// and returns the final Config. The returned Config has NOT been
// validated; the caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known FUNDARB_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject secrets at deploy time without touching the TOML
// file.
func applyEnvOverrides(cfg *Config) {
	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "FUNDARB_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "FUNDARB_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "FUNDARB_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "FUNDARB_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "FUNDARB_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "FUNDARB_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "FUNDARB_POSTGRES_SSLMODE")
	setInt(&cfg.Postgres.PoolMaxConns, "FUNDARB_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "FUNDARB_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "FUNDARB_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "FUNDARB_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "FUNDARB_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "FUNDARB_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "FUNDARB_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "FUNDARB_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "FUNDARB_REDIS_TLS_ENABLED")
	setDuration(&cfg.Redis.StaleAfter, "FUNDARB_REDIS_STALE_AFTER")

	// ── Controller ──
	setStr(&cfg.Controller.ID, "FUNDARB_CONTROLLER_ID")
	setStringSlice(&cfg.Controller.Tokens, "FUNDARB_CONTROLLER_TOKENS")
	setStringSlice(&cfg.Controller.Markets, "FUNDARB_CONTROLLER_MARKETS")
	setStringSlice(&cfg.Controller.Quotes, "FUNDARB_CONTROLLER_QUOTES")
	setBool(&cfg.Controller.CrossExchangeOnly, "FUNDARB_CONTROLLER_CROSS_EXCHANGE_ONLY")
	setFloat64(&cfg.Controller.MaxControllerAllocation, "FUNDARB_CONTROLLER_MAX_CONTROLLER_ALLOCATION")
	setFloat64(&cfg.Controller.MaxTradeAllocation, "FUNDARB_CONTROLLER_MAX_TRADE_ALLOCATION")
	setFloat64(&cfg.Controller.IncrementalOrderAmount, "FUNDARB_CONTROLLER_INCREMENTAL_ORDER_AMOUNT")
	setFloat64(&cfg.Controller.MaxOrderCostPct, "FUNDARB_CONTROLLER_MAX_ORDER_COST_PCT")
	setFloat64(&cfg.Controller.MinProjectedRevenue, "FUNDARB_CONTROLLER_MIN_PROJECTED_REVENUE")
	setFloat64(&cfg.Controller.ExitProjectedRevenue, "FUNDARB_CONTROLLER_EXIT_PROJECTED_REVENUE")
	setFloat64(&cfg.Controller.SwapMinImprovement, "FUNDARB_CONTROLLER_SWAP_MIN_IMPROVEMENT")
	setFloat64(&cfg.Controller.MinProfitability, "FUNDARB_CONTROLLER_MIN_PROFITABILITY")
	setDuration(&cfg.Controller.TickInterval, "FUNDARB_CONTROLLER_TICK_INTERVAL")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "FUNDARB_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "FUNDARB_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "FUNDARB_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "FUNDARB_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "FUNDARB_MODE")
	setStr(&cfg.LogLevel, "FUNDARB_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
