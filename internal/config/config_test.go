package config

import (
	"strings"
	"testing"
	"time"
)

func validConfig() *Config {
	return &Config{
		Tickers:              []string{"AAPL", "MSFT", "SPY"},
		BenchmarkTicker:      "SPY",
		FeedProvider:         "eodhd",
		EODHDAPIKey:          "demo",
		LookbackYears:        2,
		RebalanceCadenceDays: 7,
		ScheduleAt:           "22:00",
		Timezone:             "UTC",
	}
}

func TestLoad_Defaults(t *testing.T) {
	for _, k := range []string{"TICKERS", "BENCHMARK_TICKER", "LOOKBACK_YEARS", "REBALANCE_CADENCE_DAYS", "RISK_FREE_RATE", "SCHEDULE_AT"} {
		t.Setenv(k, "")
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.Tickers) != 8 || cfg.BenchmarkTicker != "SPY" {
		t.Fatalf("unexpected universe defaults: %v / %s", cfg.Tickers, cfg.BenchmarkTicker)
	}
	if cfg.RebalanceCadenceDays != 7 {
		t.Fatalf("cadence default: got %d", cfg.RebalanceCadenceDays)
	}
	if cfg.RiskFreeRate != 0.02 {
		t.Fatalf("risk-free default: got %f", cfg.RiskFreeRate)
	}
	if cfg.ScheduleAt != "22:00" {
		t.Fatalf("schedule default: got %s", cfg.ScheduleAt)
	}
}

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("TICKERS", " aapl, msft ,AAPL,,qqq")
	t.Setenv("BENCHMARK_TICKER", "qqq")
	t.Setenv("REBALANCE_CADENCE_DAYS", "30")
	t.Setenv("RISK_FREE_RATE", "0.045")
	t.Setenv("LOOKBACK_YEARS", "not-a-number")

	cfg, _ := Load()
	if got := strings.Join(cfg.Tickers, ","); got != "AAPL,MSFT,QQQ" {
		t.Fatalf("tickers: got %s", got)
	}
	if cfg.BenchmarkTicker != "QQQ" {
		t.Fatalf("benchmark: got %s", cfg.BenchmarkTicker)
	}
	if cfg.RebalanceCadenceDays != 30 || cfg.RiskFreeRate != 0.045 {
		t.Fatalf("numeric env not applied: %+v", cfg)
	}
	if cfg.LookbackYears != 2 {
		t.Fatalf("invalid int should fall back to default, got %d", cfg.LookbackYears)
	}
}

func TestUniverseExcludesBenchmark(t *testing.T) {
	cfg := validConfig()
	got := cfg.Universe()
	if strings.Join(got, ",") != "AAPL,MSFT" {
		t.Fatalf("universe: got %v", got)
	}
}

func TestValidate(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	cases := map[string]func(c *Config){
		"single asset":     func(c *Config) { c.Tickers = []string{"AAPL", "SPY"} },
		"bad schedule":     func(c *Config) { c.ScheduleAt = "25:99" },
		"bad timezone":     func(c *Config) { c.Timezone = "Mars/Olympus" },
		"missing feed key": func(c *Config) { c.EODHDAPIKey = "" },
		"unknown feed":     func(c *Config) { c.FeedProvider = "yahoo" },
		"zero cadence":     func(c *Config) { c.RebalanceCadenceDays = 0 },
		"alphavantage key": func(c *Config) { c.FeedProvider = "alphavantage" },
	}
	for name, mutate := range cases {
		c := validConfig()
		mutate(c)
		if err := c.Validate(); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
}

func TestScheduleClock(t *testing.T) {
	c := validConfig()
	c.ScheduleAt = "06:30"
	h, m, err := c.ScheduleClock()
	if err != nil || h != 6 || m != 30 {
		t.Fatalf("ScheduleClock = %d:%d, %v", h, m, err)
	}
}

func TestDurations(t *testing.T) {
	c := validConfig()
	c.RunTimeoutSeconds = 90
	c.CacheTTLSeconds = 60
	if c.RunTimeout() != 90*time.Second || c.CacheTTL() != time.Minute {
		t.Fatalf("durations: %s %s", c.RunTimeout(), c.CacheTTL())
	}
}

func TestDSN(t *testing.T) {
	c := &Config{DBUser: "u", DBPassword: "p", DBHost: "h", DBPort: 5433, DBName: "n"}
	if got := c.DSN(); got != "postgres://u:p@h:5433/n?sslmode=disable" {
		t.Fatalf("DSN: got %s", got)
	}
}
