package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"cryptoLifecycleBot/internal/adapters/logger" // Import the logger package for LogLevel
)

// Config holds all application configuration.
type Config struct {
	// Binance API
	APIKey    string
	SecretKey string
	IsTestnet bool

	// Market data
	ReferenceSymbol   string // Series every global evaluation runs on (e.g., BTCUSDT)
	ReferenceInterval string
	ReferenceLimit    int
	CandidateInterval string
	CandidateLimit    int

	// Candidate filter
	MoversLimit     int
	MinQuoteVolume  float64
	MaxCandidates   int
	Blacklist       []string
	CooldownMinutes int

	// Entry and exit parameters
	MaxOpenPositions int
	NotionalPerEntry float64 // Quote currency per entry (e.g., 6 USDT)
	EntrySpreadPct   float64 // Limit price offset from live price, percent
	StopLossPct      float64
	TakeProfitPct    float64
	MaxHoldBars      int
	BatchSize        int

	// Strategy Parameters
	StrategyEMAPeriod     int
	StrategyGlobalMode    string // candle, long, short or none
	StrategyRSIPeriod     int    // 0 disables the RSI guard
	StrategyRSIOverbought float64
	StrategyRSIOversold   float64
	RequireGlobalSignal   bool
	StrategyConfigPath    string

	// Timing
	CycleInterval    time.Duration
	CycleLead        time.Duration
	MisfireGrace     time.Duration
	StopPollInterval time.Duration
	SettleDelay      time.Duration
	ProtectiveDelay  time.Duration
	RunOnce          bool

	// Storage
	PositionsPath string
	JournalPath   string

	// Outbound
	WebhookURL        string
	MetricsAddr       string
	ExchangeRateLimit float64 // Requests per second towards the exchange

	// Logging
	LogLevel  logger.LogLevel // Use the LogLevel type from the logger adapter
	LogFormat logger.Format   // text or json
}

// LoadConfig loads configuration from environment variables (.env file),
// then applies the optional strategy YAML overlay.
func LoadConfig() (*Config, error) {
	// Load .env file, but don't fail if it doesn't exist (allow pure env vars)
	_ = godotenv.Load()

	cfg := &Config{}
	var err error
	var errs []string // Collect validation errors

	// Binance API
	cfg.APIKey = getEnv("BINANCE_API_KEY", "")
	cfg.SecretKey = getEnv("BINANCE_API_SECRET", "")
	cfg.IsTestnet = getEnvAsBool("IS_TESTNET", true) // Default to testnet for safety

	if cfg.APIKey == "" {
		errs = append(errs, "BINANCE_API_KEY must be set")
	}
	if cfg.SecretKey == "" {
		errs = append(errs, "BINANCE_API_SECRET must be set")
	}

	// Market data
	cfg.ReferenceSymbol = getEnv("REFERENCE_SYMBOL", "BTCUSDT")
	cfg.ReferenceInterval = getEnv("REFERENCE_INTERVAL", "5m")
	cfg.ReferenceLimit = getEnvAsInt("REFERENCE_LIMIT", 60)
	cfg.CandidateInterval = getEnv("CANDIDATE_INTERVAL", "5m")
	cfg.CandidateLimit = getEnvAsInt("CANDIDATE_LIMIT", 60)

	// Candidate filter
	cfg.MoversLimit = getEnvAsInt("MOVERS_LIMIT", 1000)
	cfg.MinQuoteVolume, err = getEnvAsFloatRequired("MIN_QUOTE_VOLUME", 30000000)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid MIN_QUOTE_VOLUME: %v", err))
	}
	cfg.MaxCandidates, err = getEnvAsIntRequired("MAX_CANDIDATES", 10)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid MAX_CANDIDATES: %v", err))
	}
	cfg.Blacklist = getEnvAsList("BLACKLIST")
	cfg.CooldownMinutes, err = getEnvAsIntRequired("COOLDOWN_MINUTES", 0)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid COOLDOWN_MINUTES: %v", err))
	}

	// Entry and exit parameters
	cfg.MaxOpenPositions, err = getEnvAsIntRequired("MAX_OPEN_POSITIONS", 1)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid MAX_OPEN_POSITIONS: %v", err))
	}
	cfg.NotionalPerEntry, err = getEnvAsFloatRequired("NOTIONAL_PER_ENTRY", 6)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid NOTIONAL_PER_ENTRY: %v", err))
	}
	cfg.EntrySpreadPct, err = getEnvAsFloatRequired("ENTRY_SPREAD_PCT", 3)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid ENTRY_SPREAD_PCT: %v", err))
	}
	cfg.StopLossPct, err = getEnvAsFloatRequired("STOP_LOSS_PCT", 10)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid STOP_LOSS_PCT: %v", err))
	}
	cfg.TakeProfitPct, err = getEnvAsFloatRequired("TAKE_PROFIT_PCT", 5)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid TAKE_PROFIT_PCT: %v", err))
	}
	cfg.MaxHoldBars, err = getEnvAsIntRequired("MAX_HOLD_BARS", 10)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid MAX_HOLD_BARS: %v", err))
	}
	cfg.BatchSize = getEnvAsInt("BATCH_SIZE", 5)

	// Strategy Parameters
	cfg.StrategyEMAPeriod = getEnvAsInt("STRATEGY_EMA_PERIOD", 20)
	cfg.StrategyGlobalMode = strings.ToLower(getEnv("STRATEGY_GLOBAL_MODE", "candle"))
	cfg.StrategyRSIPeriod = getEnvAsInt("STRATEGY_RSI_PERIOD", 0)
	cfg.StrategyRSIOverbought = getEnvAsFloat("STRATEGY_RSI_OVERBOUGHT", 70)
	cfg.StrategyRSIOversold = getEnvAsFloat("STRATEGY_RSI_OVERSOLD", 30)
	cfg.RequireGlobalSignal = getEnvAsBool("REQUIRE_GLOBAL_SIGNAL", true)
	cfg.StrategyConfigPath = getEnv("STRATEGY_CONFIG", "")

	// Timing
	cfg.CycleInterval = getEnvAsDuration("CYCLE_INTERVAL", 5*time.Minute)
	cfg.CycleLead = getEnvAsDuration("CYCLE_LEAD", 5*time.Second)
	cfg.MisfireGrace = getEnvAsDuration("MISFIRE_GRACE", 5*time.Second)
	cfg.StopPollInterval = getEnvAsDuration("STOP_POLL_INTERVAL", time.Second)
	cfg.SettleDelay = getEnvAsDuration("SETTLE_DELAY", 10*time.Second)
	cfg.ProtectiveDelay = getEnvAsDuration("PROTECTIVE_DELAY", time.Second)
	cfg.RunOnce = getEnvAsBool("RUN_ONCE", false)

	// Storage
	cfg.PositionsPath = getEnv("POSITIONS_PATH", "./data/positions.json")
	cfg.JournalPath = getEnv("JOURNAL_PATH", "./data/trades.db")

	// Outbound
	cfg.WebhookURL = getEnv("WEBHOOK_URL", "")
	cfg.MetricsAddr = getEnv("METRICS_ADDR", "")
	cfg.ExchangeRateLimit = getEnvAsFloat("EXCHANGE_RATE_LIMIT", 10)

	// Logging
	cfg.LogLevel = logger.ParseLevel(getEnv("LOG_LEVEL", "INFO"))
	cfg.LogFormat = logger.ParseFormat(getEnv("LOG_FORMAT", "text"))

	// Overlay strategy YAML before validating so file values are checked too
	if cfg.StrategyConfigPath != "" {
		if err := applyStrategyFile(cfg, cfg.StrategyConfigPath); err != nil {
			errs = append(errs, err.Error())
		}
	}

	errs = append(errs, cfg.validate()...)

	// Combine validation errors
	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}

	return cfg, nil
}

// validate checks cross-field constraints and returns one message per violation.
func (c *Config) validate() []string {
	var errs []string
	if c.ReferenceSymbol == "" {
		errs = append(errs, "REFERENCE_SYMBOL must be set")
	}
	if c.ReferenceLimit <= 0 || c.CandidateLimit <= 0 {
		errs = append(errs, "kline limits must be positive")
	}
	if c.MinQuoteVolume < 0 {
		errs = append(errs, "MIN_QUOTE_VOLUME cannot be negative")
	}
	if c.MaxCandidates <= 0 {
		errs = append(errs, "MAX_CANDIDATES must be positive")
	}
	if c.CooldownMinutes < 0 {
		errs = append(errs, "COOLDOWN_MINUTES cannot be negative")
	}
	if c.MaxOpenPositions <= 0 {
		errs = append(errs, "MAX_OPEN_POSITIONS must be positive")
	}
	if c.NotionalPerEntry <= 0 {
		errs = append(errs, "NOTIONAL_PER_ENTRY must be positive")
	}
	if c.EntrySpreadPct < 0 || c.EntrySpreadPct >= 100 {
		errs = append(errs, "ENTRY_SPREAD_PCT must be between 0 and 100")
	}
	// Reconciliation closes any position without a stop, so a stop is mandatory
	if c.StopLossPct <= 0 || c.StopLossPct >= 100 {
		errs = append(errs, "STOP_LOSS_PCT must be greater than 0 and below 100")
	}
	if c.TakeProfitPct < 0 {
		errs = append(errs, "TAKE_PROFIT_PCT cannot be negative")
	}
	if c.MaxHoldBars <= 0 {
		errs = append(errs, "MAX_HOLD_BARS must be positive")
	}
	if c.BatchSize <= 0 || c.BatchSize > 5 {
		errs = append(errs, "BATCH_SIZE must be between 1 and 5")
	}
	if c.StrategyEMAPeriod <= 0 {
		errs = append(errs, "STRATEGY_EMA_PERIOD must be positive")
	}
	if c.StrategyRSIPeriod < 0 {
		errs = append(errs, "STRATEGY_RSI_PERIOD cannot be negative")
	}
	if c.StrategyRSIOversold >= c.StrategyRSIOverbought {
		errs = append(errs, "STRATEGY_RSI_OVERSOLD must be below STRATEGY_RSI_OVERBOUGHT")
	}
	switch c.StrategyGlobalMode {
	case "candle", "long", "short", "none":
	default:
		errs = append(errs, fmt.Sprintf("unknown STRATEGY_GLOBAL_MODE %q", c.StrategyGlobalMode))
	}
	if c.CycleInterval <= 0 {
		errs = append(errs, "CYCLE_INTERVAL must be positive")
	}
	if c.CycleLead < 0 || c.CycleLead >= c.CycleInterval {
		errs = append(errs, "CYCLE_LEAD must be shorter than CYCLE_INTERVAL")
	}
	if c.PositionsPath == "" {
		errs = append(errs, "POSITIONS_PATH must be set")
	}
	if c.ExchangeRateLimit <= 0 {
		errs = append(errs, "EXCHANGE_RATE_LIMIT must be positive")
	}
	return errs
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
		return defaultValue
	}
	return value
}

func getEnvAsIntRequired(key string, defaultValue int) (int, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		// Use default if env var is not set at all
		return defaultValue, nil
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		// Return error if env var is set but invalid
		return 0, fmt.Errorf("invalid integer value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloatRequired(key string, defaultValue float64) (float64, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue, nil
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid float value '%s' for key %s: %w", valueStr, key, err)
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

// getEnvAsDuration accepts Go duration strings ("10s") or plain seconds ("10").
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(valueStr); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(valueStr); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}

// getEnvAsList splits a comma separated value, dropping blanks.
func getEnvAsList(key string) []string {
	return splitList(os.Getenv(key))
}

func splitList(raw string) []string {
	var out []string
	for _, item := range strings.Split(raw, ",") {
		item = strings.ToUpper(strings.TrimSpace(item))
		if item != "" {
			out = append(out, item)
		}
	}
	return out
}
