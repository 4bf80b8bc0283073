package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefaultsAreValid(t *testing.T) {
	cfg := Defaults()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}
}

func TestLoadMergesOverDefaults(t *testing.T) {
	path := writeConfig(t, `
mode = "monitor"
log_level = "debug"

[postgres]
database = "fundingarb_test"

[redis]
stale_after = "5m"

[controller]
id = "arb_test"
tokens = ["ENA"]
cross_exchange_only = true
max_trade_allocation = 100.0

[[policy.pairs]]
market = "bybit_perpetual"
base = "ENA"
quote = "USDT"
funding_interval_seconds = 14400
volatility = "medium"
price_type = "avg_entry"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Mode != "monitor" || cfg.LogLevel != "debug" {
		t.Errorf("mode/log_level = %s/%s", cfg.Mode, cfg.LogLevel)
	}
	if cfg.Postgres.Database != "fundingarb_test" {
		t.Errorf("database = %s", cfg.Postgres.Database)
	}
	// Untouched fields keep their defaults.
	if cfg.Postgres.Host != "localhost" || cfg.Postgres.Port != 5432 {
		t.Errorf("postgres defaults lost: %+v", cfg.Postgres)
	}
	if cfg.Redis.StaleAfter.Duration != 5*time.Minute {
		t.Errorf("stale_after = %s", cfg.Redis.StaleAfter.Duration)
	}
	if !cfg.Controller.CrossExchangeOnly {
		t.Error("cross_exchange_only not applied")
	}
	if cfg.Controller.MaxTradeAllocation != 100 {
		t.Errorf("max_trade_allocation = %v", cfg.Controller.MaxTradeAllocation)
	}
	if cfg.Controller.MaxControllerAllocation != 500 {
		t.Errorf("default max_controller_allocation lost: %v", cfg.Controller.MaxControllerAllocation)
	}
	if len(cfg.Policy.Pairs) != 1 || cfg.Policy.Pairs[0].FundingInterval != 14400 {
		t.Errorf("policy pairs = %+v", cfg.Policy.Pairs)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("loaded config must validate: %v", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.toml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestEnvOverrides(t *testing.T) {
	path := writeConfig(t, `
[controller]
id = "from_file"
`)
	t.Setenv("FUNDARB_POSTGRES_PASSWORD", "s3cret")
	t.Setenv("FUNDARB_CONTROLLER_ID", "from_env")
	t.Setenv("FUNDARB_CONTROLLER_TOKENS", "ENA, ONDO ,SOL")
	t.Setenv("FUNDARB_CONTROLLER_TICK_INTERVAL", "750ms")
	t.Setenv("FUNDARB_REDIS_TLS_ENABLED", "true")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Postgres.Password != "s3cret" {
		t.Errorf("password = %q", cfg.Postgres.Password)
	}
	if cfg.Controller.ID != "from_env" {
		t.Errorf("env override must beat the file, id = %q", cfg.Controller.ID)
	}
	want := []string{"ENA", "ONDO", "SOL"}
	if len(cfg.Controller.Tokens) != len(want) {
		t.Fatalf("tokens = %v", cfg.Controller.Tokens)
	}
	for i := range want {
		if cfg.Controller.Tokens[i] != want[i] {
			t.Errorf("tokens[%d] = %q, want %q", i, cfg.Controller.Tokens[i], want[i])
		}
	}
	if cfg.Controller.TickInterval.Duration != 750*time.Millisecond {
		t.Errorf("tick_interval = %s", cfg.Controller.TickInterval.Duration)
	}
	if !cfg.Redis.TLSEnabled {
		t.Error("tls_enabled override not applied")
	}
}

func TestValidateCollectsAllProblems(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "paper"
	cfg.Controller.ID = ""
	cfg.Controller.IncrementalOrderAmount = 0
	cfg.Controller.MaxTradeAllocation = 900 // above controller allocation
	cfg.Redis.Addr = ""

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation errors")
	}
	for _, frag := range []string{
		"unknown mode",
		"controller: id",
		"incremental_order_amount",
		"max_trade_allocation must not exceed",
		"redis: addr",
	} {
		if !strings.Contains(err.Error(), frag) {
			t.Errorf("error is missing %q:\n%v", frag, err)
		}
	}
}

func TestValidateSameExchangeNeedsQuotes(t *testing.T) {
	cfg := Defaults()
	cfg.Controller.CrossExchangeOnly = false
	cfg.Controller.Markets = []string{"bybit_perpetual"}
	cfg.Controller.Quotes = []string{"USDT"}

	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "at least two quotes") {
		t.Fatalf("err = %v, want same-exchange quote complaint", err)
	}
}

func TestValidateBadPolicyPair(t *testing.T) {
	cfg := Defaults()
	cfg.Policy.Pairs = []PolicyPair{{Market: "bybit_perpetual", Base: "", Quote: "USDT", FundingInterval: 0}}

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation errors")
	}
	if !strings.Contains(err.Error(), "pairs[0]") {
		t.Errorf("err = %v", err)
	}
}

func TestDurationRoundTrip(t *testing.T) {
	var d duration
	if err := d.UnmarshalText([]byte("1h30m")); err != nil {
		t.Fatal(err)
	}
	if d.Duration != 90*time.Minute {
		t.Errorf("duration = %s", d.Duration)
	}
	text, err := d.MarshalText()
	if err != nil {
		t.Fatal(err)
	}
	if string(text) != "1h30m0s" {
		t.Errorf("text = %q", text)
	}
	if err := d.UnmarshalText([]byte("soon")); err == nil {
		t.Error("expected parse error for non-duration text")
	}
}
