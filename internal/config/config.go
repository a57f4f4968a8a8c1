package config

import (
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Secrets (from .env)
	EODHDAPIKey        string
	AlphaVantageAPIKey string
	WebhookURL         string
	BotName            string
	APIKey             string
	CORSAllowOrigin    string

	// Database
	DBHost     string
	DBPort     int
	DBName     string
	DBUser     string
	DBPassword string

	// Cache
	RedisURL        string
	CacheTTLSeconds int

	// Universe
	Tickers         []string
	BenchmarkTicker string

	// Ingestion
	FeedProvider  string // "eodhd" or "alphavantage"
	LookbackYears int

	// Rebalancing
	RebalanceCadenceDays int
	RiskFreeRate         float64
	OptimizerURL         string

	// Timing
	ScheduleAt        string // HH:MM wall-clock time of the daily run
	Timezone          string
	RunTimeoutSeconds int

	// API
	APIPort int
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		// Secrets
		EODHDAPIKey:        envStr("EODHD_API_KEY", ""),
		AlphaVantageAPIKey: envStr("ALPHAVANTAGE_API_KEY", ""),
		WebhookURL:         envStr("WEBHOOK_URL", ""),
		BotName:            envStr("BOT_NAME", "HRPAllocator"),
		APIKey:             envStr("API_KEY", ""),
		CORSAllowOrigin:    envStr("CORS_ALLOW_ORIGIN", "*"),

		// Database
		DBHost:     envStr("DB_HOST", "localhost"),
		DBPort:     envInt("DB_PORT", 5432),
		DBName:     envStr("DB_NAME", "hrp_portfolio"),
		DBUser:     envStr("DB_USER", ""),
		DBPassword: envStr("DB_PASSWORD", ""),

		// Cache
		RedisURL:        envStr("REDIS_URL", ""),
		CacheTTLSeconds: envInt("CACHE_TTL_SECONDS", 3600),

		// Universe
		Tickers:         envList("TICKERS", []string{"AAPL", "MSFT", "GOOGL", "AMZN", "NVDA", "META", "TSLA", "SPY"}),
		BenchmarkTicker: strings.ToUpper(envStr("BENCHMARK_TICKER", "SPY")),

		// Ingestion
		FeedProvider:  strings.ToLower(envStr("FEED_PROVIDER", "eodhd")),
		LookbackYears: envInt("LOOKBACK_YEARS", 2),

		// Rebalancing
		RebalanceCadenceDays: envInt("REBALANCE_CADENCE_DAYS", 7),
		RiskFreeRate:         envFloat("RISK_FREE_RATE", 0.02),
		OptimizerURL:         envStr("OPTIMIZER_URL", ""),

		// Timing
		ScheduleAt:        envStr("SCHEDULE_AT", "22:00"),
		Timezone:          envStr("TIMEZONE", "UTC"),
		RunTimeoutSeconds: envInt("RUN_TIMEOUT_SECONDS", 300),

		// API
		APIPort: envInt("API_PORT", 8000),
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []string

	if len(c.Tickers) == 0 {
		errs = append(errs, "TICKERS must list at least one symbol")
	}
	if len(c.Universe()) < 2 {
		errs = append(errs, "TICKERS must contain at least two symbols besides BENCHMARK_TICKER")
	}
	if c.LookbackYears <= 0 {
		errs = append(errs, "LOOKBACK_YEARS must be positive")
	}
	if c.RebalanceCadenceDays <= 0 {
		errs = append(errs, "REBALANCE_CADENCE_DAYS must be positive")
	}
	if _, _, err := c.ScheduleClock(); err != nil {
		errs = append(errs, err.Error())
	}
	if _, err := c.Location(); err != nil {
		errs = append(errs, fmt.Sprintf("TIMEZONE %q: %v", c.Timezone, err))
	}

	switch c.FeedProvider {
	case "eodhd":
		if c.EODHDAPIKey == "" {
			errs = append(errs, "EODHD_API_KEY is required when FEED_PROVIDER=eodhd")
		}
	case "alphavantage":
		if c.AlphaVantageAPIKey == "" {
			errs = append(errs, "ALPHAVANTAGE_API_KEY is required when FEED_PROVIDER=alphavantage")
		}
	default:
		errs = append(errs, fmt.Sprintf("FEED_PROVIDER %q is not one of eodhd, alphavantage", c.FeedProvider))
	}

	if !slices.Contains(c.Tickers, c.BenchmarkTicker) {
		fmt.Printf("[WARN] BENCHMARK_TICKER %s is not in TICKERS - it will not be ingested and performance views will be empty\n", c.BenchmarkTicker)
	}
	if c.OptimizerURL == "" {
		fmt.Println("[WARN] OPTIMIZER_URL not set - falling back to the local equal-weight optimizer")
	}
	if c.RedisURL == "" {
		fmt.Println("[WARN] REDIS_URL not set - API responses will not be cached")
	}
	if c.APIKey == "" {
		fmt.Println("[WARN] API_KEY not set - REST API has no authentication")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  %s", strings.Join(errs, "\n  "))
	}
	return nil
}

func (c *Config) Print() {
	fmt.Println("=== HRP Allocator Configuration ===")
	fmt.Printf("Tickers: %s\n", strings.Join(c.Tickers, ", "))
	fmt.Printf("Benchmark: %s\n", c.BenchmarkTicker)
	fmt.Printf("Universe: %s\n", strings.Join(c.Universe(), ", "))
	fmt.Println("--------------------------------------")
	fmt.Println("Ingestion:")
	fmt.Printf("  Feed: %s\n", c.FeedProvider)
	fmt.Printf("  Lookback: %d years\n", c.LookbackYears)
	fmt.Println("--------------------------------------")
	fmt.Println("Rebalancing:")
	fmt.Printf("  Cadence: every %d days\n", c.RebalanceCadenceDays)
	fmt.Printf("  Risk-free rate: %.2f%%\n", c.RiskFreeRate*100)
	fmt.Printf("  Optimizer: %s\n", boolLabel(c.OptimizerURL != "", c.OptimizerURL, "local equal-weight"))
	fmt.Printf("  Daily run: %s %s\n", c.ScheduleAt, c.Timezone)
	fmt.Println("--------------------------------------")
	fmt.Printf("Cache: %s\n", boolLabel(c.RedisURL != "", "redis", "disabled"))
	fmt.Printf("Webhook: %s\n", boolLabel(c.WebhookURL != "", "configured", "not set"))
	fmt.Println("======================================")
}

func (c *Config) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName)
}

// Universe returns the tickers eligible for optimization: every tracked
// ticker except the benchmark.
func (c *Config) Universe() []string {
	out := make([]string, 0, len(c.Tickers))
	for _, t := range c.Tickers {
		if t != c.BenchmarkTicker {
			out = append(out, t)
		}
	}
	return out
}

func (c *Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.Timezone)
}

// ScheduleClock parses ScheduleAt into hour and minute.
func (c *Config) ScheduleClock() (hour, minute int, err error) {
	t, err := time.Parse("15:04", c.ScheduleAt)
	if err != nil {
		return 0, 0, fmt.Errorf("SCHEDULE_AT %q must be HH:MM", c.ScheduleAt)
	}
	return t.Hour(), t.Minute(), nil
}

func (c *Config) RunTimeout() time.Duration {
	return time.Duration(c.RunTimeoutSeconds) * time.Second
}

func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLSeconds) * time.Second
}

// --- helpers ---

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

// envList reads a comma separated list, upper-cased and de-duplicated.
func envList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		part = strings.ToUpper(strings.TrimSpace(part))
		if part != "" && !slices.Contains(out, part) {
			out = append(out, part)
		}
	}
	return out
}

func boolLabel(cond bool, ifTrue, ifFalse string) string {
	if cond {
		return ifTrue
	}
	return ifFalse
}
