package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// Watchlist and indicator knobs
	Tickers       string
	RSIPeriod     int
	AlertLevel    float64
	BacktestBuy   float64
	BacktestSell  float64
	BarRange      string
	CacheTTLHours int

	// Storage
	SQLitePath  string
	DataDir     string
	PostgresDSN string

	// Infrastructure
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	HTTPAddr      string
	MetricsAddr   string

	// Market data providers
	AlpacaKeyID     string
	AlpacaSecretKey string
	YahooBaseURL    string

	// Notifiers
	TelegramBotToken string
	TelegramChatID   string
	WebhookURL       string
	LineAccessToken  string
	LineTargetUserID string

	// Gateway admin guard
	AdminTOTPSecret string

	// Schedules
	RefreshInterval time.Duration
	AlertInterval   time.Duration

	// Logging
	LogLevel string
	LogFile  string
}

// Load reads configuration from the environment with sensible defaults.
// A .env file in the working directory is merged in first when present.
func Load() *Config {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("[config] .env not loaded: %v", err)
	}

	return &Config{
		Tickers:       getEnv("TICKERS", "NVDA,AVGO,NBIS,MU,GOOG,SNDK,STX"),
		RSIPeriod:     getEnvInt("RSI_PERIOD", 14),
		AlertLevel:    getEnvFloat("RSI_ALERT_THRESHOLD", 40.0),
		BacktestBuy:   getEnvFloat("BACKTEST_BUY", 40.0),
		BacktestSell:  getEnvFloat("BACKTEST_SELL", 70.0),
		BarRange:      getEnv("BAR_RANGE", "1y"),
		CacheTTLHours: getEnvInt("CACHE_TTL_HOURS", 12),

		SQLitePath:  getEnv("SQLITE_PATH", "data/market.db"),
		DataDir:     getEnv("DATA_DIR", "data"),
		PostgresDSN: getEnv("POSTGRES_DSN", ""),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),
		HTTPAddr:      getEnv("HTTP_ADDR", ""),
		MetricsAddr:   getEnv("METRICS_ADDR", ""),

		AlpacaKeyID:     getEnv("ALPACA_KEY_ID", ""),
		AlpacaSecretKey: getEnv("ALPACA_SECRET_KEY", ""),
		YahooBaseURL:    getEnv("YAHOO_BASE_URL", ""),

		TelegramBotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramChatID:   getEnv("TELEGRAM_CHAT_ID", ""),
		WebhookURL:       getEnv("WEBHOOK_URL", ""),
		LineAccessToken:  getEnv("LINE_CHANNEL_ACCESS_TOKEN", ""),
		LineTargetUserID: getEnv("LINE_TARGET_USER_ID", ""),

		AdminTOTPSecret: getEnv("ADMIN_TOTP_SECRET", ""),

		RefreshInterval: getEnvDuration("REFRESH_INTERVAL", time.Hour),
		AlertInterval:   getEnvDuration("ALERT_INTERVAL", 6*time.Hour),

		LogLevel: getEnv("LOG_LEVEL", "info"),
		LogFile:  getEnv("LOG_FILE", ""),
	}
}

// Watchlist parses the Tickers string into an uppercased, de-duplicated
// slice, preserving order of first appearance.
func (c *Config) Watchlist() []string {
	parts := strings.Split(c.Tickers, ",")
	seen := make(map[string]bool, len(parts))
	tickers := make([]string, 0, len(parts))
	for _, p := range parts {
		t := strings.ToUpper(strings.TrimSpace(p))
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		tickers = append(tickers, t)
	}
	return tickers
}

// CacheTTL converts CacheTTLHours into a duration.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLHours) * time.Hour
}

// RulesPath is the alert-rule JSON file under DataDir.
func (c *Config) RulesPath() string {
	return strings.TrimRight(c.DataDir, "/") + "/alerts.json"
}

// PortfolioPath is the holdings JSON file under DataDir.
func (c *Config) PortfolioPath() string {
	return strings.TrimRight(c.DataDir, "/") + "/portfolio.json"
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("[config] %s: invalid int %q, using %d", key, v, fallback)
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Printf("[config] %s: invalid float %q, using %g", key, v, fallback)
		return fallback
	}
	return f
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		log.Printf("[config] %s: invalid duration %q, using %s", key, v, fallback)
		return fallback
	}
	return d
}
