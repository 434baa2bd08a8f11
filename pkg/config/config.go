package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// DefaultSymbols is the tracked universe when neither SYMBOLS nor SYMBOLS_FILE is set
var DefaultSymbols = []string{
	"AAPL", "MSFT", "GOOGL", "AMZN", "META", "TSLA", "NVDA", "JPM",
	"JNJ", "V", "PG", "UNH", "HD", "BAC", "MA", "DIS", "NFLX", "ADBE",
	"CRM", "INTC", "VZ", "CSCO", "PFE", "KO", "PEP", "WMT", "MRK",
}

// Config holds all configuration for the application
// ⭐ SSOT: 모든 환경변수는 여기서만 읽음
type Config struct {
	// Server
	Port string
	Env  string // development, staging, production

	// Database (optional, price history store)
	Database DatabaseConfig

	// Redis (optional, L2 history cache + distributed rate limit)
	Redis RedisConfig

	// Recorder (sqlite audit log)
	Recorder RecorderConfig

	// Upstream quote/history provider
	Yahoo YahooConfig

	// Market data
	Market MarketConfig

	// Forecast
	Forecast ForecastConfig

	// Scheduler
	Scheduler SchedulerConfig

	// Logging
	LogLevel  string
	LogFormat string
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	Enabled  bool
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	URL string

	// Connection Pool
	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// Enabled reports whether a database URL was configured
func (d DatabaseConfig) Enabled() bool {
	return d.URL != ""
}

// RecorderConfig holds the sqlite recorder configuration
type RecorderConfig struct {
	Enabled bool
	Path    string
}

// YahooConfig holds upstream provider configuration
type YahooConfig struct {
	ChartURL   string
	SummaryURL string
	ProfileURL string
	RateLimit  float64 // requests per second
	Burst      int
	MaxRetries int
	Timeout    time.Duration
}

// MarketConfig holds snapshot/history cache settings
type MarketConfig struct {
	Symbols       []string
	SymbolsFile   string
	SnapshotTTL   time.Duration
	HistoryTTL    time.Duration
	LookbackYears float64
	OpTimeout     time.Duration
	Concurrency   int
	YieldUnit     string // fraction, percent
}

// ForecastConfig holds forecasting engine settings
type ForecastConfig struct {
	DefaultHorizon        int
	MinHorizon            int
	MaxHorizon            int
	MinHistory            int
	ChangepointPriorScale float64
	SeasonalityPriorScale float64
	IntervalWidth         float64
}

// SchedulerConfig holds cron schedules
type SchedulerConfig struct {
	SnapshotSchedule string
	WarmupSchedule   string
	PurgeSchedule    string
	MaxRetries       int
	RetryDelay       time.Duration
}

// Load reads configuration from environment variables
// ⭐ SSOT: 이 함수만 os.Getenv()를 호출함
func Load() (*Config, error) {
	// Try multiple paths for .env file
	loadEnvFile()

	cfg := &Config{
		// Server
		Port: getEnv("PORT", "8089"),
		Env:  getEnv("ENV", "development"),

		// Database
		Database: DatabaseConfig{
			URL:             getEnv("DATABASE_URL", ""),
			MaxConns:        getEnvAsInt("DB_MAX_CONNS", 10),
			MinConns:        getEnvAsInt("DB_MIN_CONNS", 2),
			MaxConnLifetime: getEnvAsDuration("DB_MAX_CONN_LIFETIME", "1h"),
			MaxConnIdleTime: getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", "30m"),
		},

		// Redis
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			Enabled:  getEnvAsBool("REDIS_ENABLED", false),
		},

		Recorder: RecorderConfig{
			Enabled: getEnvAsBool("RECORDER_ENABLED", false),
			Path:    getEnv("RECORDER_PATH", "marketlens.db"),
		},

		Yahoo: YahooConfig{
			ChartURL:   getEnv("YAHOO_CHART_URL", "https://query1.finance.yahoo.com/v8/finance/chart"),
			SummaryURL: getEnv("YAHOO_SUMMARY_URL", "https://query2.finance.yahoo.com/v10/finance/quoteSummary"),
			ProfileURL: getEnv("YAHOO_PROFILE_URL", "https://finance.yahoo.com/quote"),
			RateLimit:  getEnvAsFloat("YAHOO_RATE_LIMIT", 5),
			Burst:      getEnvAsInt("YAHOO_BURST", 5),
			MaxRetries: getEnvAsInt("YAHOO_MAX_RETRIES", 2),
			Timeout:    getEnvAsDuration("YAHOO_TIMEOUT", "10s"),
		},

		Market: MarketConfig{
			Symbols:       getEnvAsList("SYMBOLS", nil),
			SymbolsFile:   getEnv("SYMBOLS_FILE", ""),
			SnapshotTTL:   getEnvAsDuration("SNAPSHOT_TTL", "30s"),
			HistoryTTL:    getEnvAsDuration("HISTORY_TTL", "1h"),
			LookbackYears: getEnvAsFloat("HISTORY_LOOKBACK_YEARS", 2),
			OpTimeout:     getEnvAsDuration("OP_TIMEOUT", "20s"),
			Concurrency:   getEnvAsInt("FETCH_CONCURRENCY", 8),
			YieldUnit:     getEnv("YIELD_UNIT", "fraction"),
		},

		Forecast: ForecastConfig{
			DefaultHorizon:        getEnvAsInt("FORECAST_HORIZON", 365),
			MinHorizon:            getEnvAsInt("FORECAST_HORIZON_MIN", 30),
			MaxHorizon:            getEnvAsInt("FORECAST_HORIZON_MAX", 365),
			MinHistory:            getEnvAsInt("FORECAST_MIN_HISTORY", 60),
			ChangepointPriorScale: getEnvAsFloat("FORECAST_CHANGEPOINT_PRIOR_SCALE", 0.05),
			SeasonalityPriorScale: getEnvAsFloat("FORECAST_SEASONALITY_PRIOR_SCALE", 10),
			IntervalWidth:         getEnvAsFloat("FORECAST_INTERVAL_WIDTH", 0.95),
		},

		Scheduler: SchedulerConfig{
			SnapshotSchedule: getEnv("SCHEDULE_SNAPSHOT", "*/30 * * * * *"),
			WarmupSchedule:   getEnv("SCHEDULE_HISTORY_WARMUP", "0 30 6 * * 1-5"),
			PurgeSchedule:    getEnv("SCHEDULE_CACHE_PURGE", "0 */5 * * * *"),
			MaxRetries:       getEnvAsInt("SCHEDULER_MAX_RETRIES", 2),
			RetryDelay:       getEnvAsDuration("SCHEDULER_RETRY_DELAY", "30s"),
		},

		// Logging
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),
	}

	// Universe: SYMBOLS > SYMBOLS_FILE > default list
	if len(cfg.Market.Symbols) == 0 && cfg.Market.SymbolsFile != "" {
		symbols, err := LoadSymbolsFile(cfg.Market.SymbolsFile)
		if err != nil {
			return nil, fmt.Errorf("load symbols file: %w", err)
		}
		cfg.Market.Symbols = symbols
	}
	if len(cfg.Market.Symbols) == 0 {
		cfg.Market.Symbols = append([]string(nil), DefaultSymbols...)
	}

	// Validate configuration
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// validate checks if configuration values are consistent
func (c *Config) validate() error {
	// Validate environment
	if c.Env != "development" && c.Env != "staging" && c.Env != "production" {
		return fmt.Errorf("ENV must be one of: development, staging, production")
	}

	if c.Market.SnapshotTTL <= 0 || c.Market.HistoryTTL <= 0 {
		return fmt.Errorf("SNAPSHOT_TTL and HISTORY_TTL must be positive")
	}

	if c.Market.YieldUnit != "fraction" && c.Market.YieldUnit != "percent" {
		return fmt.Errorf("YIELD_UNIT must be one of: fraction, percent")
	}

	f := c.Forecast
	if f.MinHorizon <= 0 || f.MinHorizon > f.MaxHorizon {
		return fmt.Errorf("FORECAST_HORIZON_MIN must be positive and <= FORECAST_HORIZON_MAX")
	}
	if f.DefaultHorizon < f.MinHorizon || f.DefaultHorizon > f.MaxHorizon {
		return fmt.Errorf("FORECAST_HORIZON must be within [%d, %d]", f.MinHorizon, f.MaxHorizon)
	}
	if f.IntervalWidth <= 0 || f.IntervalWidth >= 1 {
		return fmt.Errorf("FORECAST_INTERVAL_WIDTH must be in (0, 1)")
	}

	return nil
}

// Helper functions (private, only used within this file)

// loadEnvFile tries to load .env from multiple locations
func loadEnvFile() {
	paths := []string{".env"}

	// Also try relative to executable
	if exe, err := os.Executable(); err == nil {
		exeDir := filepath.Dir(exe)
		paths = append(paths,
			filepath.Join(exeDir, ".env"),
			filepath.Join(exeDir, "..", ".env"),
		)
	}

	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			_ = godotenv.Load(path)
			return
		}
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
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

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		valueStr = defaultValue
	}

	duration, err := time.ParseDuration(valueStr)
	if err != nil {
		// Fallback to default
		duration, _ = time.ParseDuration(defaultValue)
	}

	return duration
}

// getEnvAsList splits a comma separated value, dropping blanks
func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
