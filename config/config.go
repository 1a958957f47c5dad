package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"krakenOrderTracker/internal/adapters/logger" // Import the logger package for LogLevel
)

// Reference price source selectors for REFERENCE_PRICE_SOURCE.
const (
	RefSourceNone    = "none"
	RefSourceBinance = "binance"
)

// Config holds all application configuration.
type Config struct {
	// Kraken feed
	WSURL                string        // Authenticated websocket endpoint
	WSToken              string        // Session token from the REST GetWebSocketsToken call
	ReconnectDelay       time.Duration // Initial backoff between reconnect attempts
	MaxReconnectAttempts int           // Consecutive failures tolerated before giving up

	// Fill journal
	DBPath string

	// Risk limits (a zero limit disables that rule)
	MaxDrawdownPct  decimal.Decimal // Fraction of peak PnL given back, e.g. 0.1 for 10%
	MaxPositionSize decimal.Decimal // Cumulative executed base volume per pair
	MaxDailyLoss    decimal.Decimal // Quote-currency loss within one UTC day

	// Reference prices
	ReferencePriceSource string // "none" or "binance"
	BinanceTestnet       bool

	// Order monitoring
	MonitorTimeout time.Duration // Default wait when watching an order to completion

	// Logging
	LogLevel logger.LogLevel // Use the LogLevel type from the logger adapter
}

// LoadConfig loads configuration from environment variables (.env file).
func LoadConfig() (*Config, error) {
	// Load .env file, but don't fail if it doesn't exist (allow pure env vars)
	_ = godotenv.Load()

	cfg := &Config{}
	var err error
	var errs []string // Collect validation errors

	// Kraken feed
	cfg.WSURL = getEnv("KRAKEN_WS_URL", "wss://ws-auth.kraken.com")
	if cfg.WSURL == "" {
		errs = append(errs, "KRAKEN_WS_URL must be set")
	}

	cfg.WSToken = getEnv("KRAKEN_WS_TOKEN", "")
	if cfg.WSToken == "" {
		errs = append(errs, "KRAKEN_WS_TOKEN must be set")
	}

	reconnectDelaySeconds := getEnvAsInt("RECONNECT_DELAY_SECONDS", 5)
	if reconnectDelaySeconds <= 0 {
		errs = append(errs, "RECONNECT_DELAY_SECONDS must be positive")
	}
	cfg.ReconnectDelay = time.Duration(reconnectDelaySeconds) * time.Second

	cfg.MaxReconnectAttempts = getEnvAsInt("MAX_RECONNECT_ATTEMPTS", 10)
	if cfg.MaxReconnectAttempts < 0 {
		errs = append(errs, "MAX_RECONNECT_ATTEMPTS cannot be negative")
	}

	// Fill journal
	cfg.DBPath = getEnv("DB_PATH", "./data/order_tracker.db")
	if cfg.DBPath == "" {
		errs = append(errs, "DB_PATH must be set")
	}

	// Risk limits
	cfg.MaxDrawdownPct, err = getEnvAsDecimalRequired("MAX_DRAWDOWN_PCT", decimal.Zero)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid MAX_DRAWDOWN_PCT: %v", err))
	} else if cfg.MaxDrawdownPct.IsNegative() || cfg.MaxDrawdownPct.GreaterThan(decimal.NewFromInt(1)) {
		errs = append(errs, "MAX_DRAWDOWN_PCT must be between 0.0 and 1.0")
	}

	cfg.MaxPositionSize, err = getEnvAsDecimalRequired("MAX_POSITION_SIZE", decimal.Zero)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid MAX_POSITION_SIZE: %v", err))
	} else if cfg.MaxPositionSize.IsNegative() {
		errs = append(errs, "MAX_POSITION_SIZE cannot be negative")
	}

	cfg.MaxDailyLoss, err = getEnvAsDecimalRequired("MAX_DAILY_LOSS", decimal.Zero)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid MAX_DAILY_LOSS: %v", err))
	} else if cfg.MaxDailyLoss.IsNegative() {
		errs = append(errs, "MAX_DAILY_LOSS cannot be negative")
	}

	// Reference prices
	cfg.ReferencePriceSource = strings.ToLower(getEnv("REFERENCE_PRICE_SOURCE", RefSourceNone))
	if cfg.ReferencePriceSource != RefSourceNone && cfg.ReferencePriceSource != RefSourceBinance {
		errs = append(errs, fmt.Sprintf("REFERENCE_PRICE_SOURCE must be %q or %q", RefSourceNone, RefSourceBinance))
	}
	cfg.BinanceTestnet = getEnvAsBool("BINANCE_TESTNET", false)

	// Order monitoring
	monitorTimeoutSeconds := getEnvAsInt("MONITOR_TIMEOUT_SECONDS", 60)
	if monitorTimeoutSeconds <= 0 {
		errs = append(errs, "MONITOR_TIMEOUT_SECONDS must be positive")
	}
	cfg.MonitorTimeout = time.Duration(monitorTimeoutSeconds) * time.Second

	// Logging
	logLevelStr := getEnv("LOG_LEVEL", "INFO")
	cfg.LogLevel = logger.ParseLevel(logLevelStr) // Use the parser from the logger package

	// Combine validation errors
	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}

	return cfg, nil
}

// --- Env Var Helpers ---

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		// For non-required fields, default is acceptable.
		return defaultValue
	}
	return value
}

func getEnvAsDecimalRequired(key string, defaultValue decimal.Decimal) (decimal.Decimal, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		// Use default if env var is not set at all
		return defaultValue, nil
	}
	value, err := decimal.NewFromString(valueStr)
	if err != nil {
		// Return error if env var is set but invalid
		return decimal.Zero, fmt.Errorf("invalid decimal value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
