package engine

import (
	"time"

	"momentum-systemv1/config"
	"momentum-systemv1/internal/marketdata"
)

// Config holds the engine service settings, derived from the shared env
// config.
type Config struct {
	Tickers         []string
	Period          int
	BarRange        marketdata.Range
	RefreshInterval time.Duration

	HTTPAddr    string
	MetricsAddr string

	SQLitePath string
	CacheTTL   time.Duration

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	AlpacaKeyID     string
	AlpacaSecretKey string
	YahooBaseURL    string

	PostgresDSN string
	RulesPath   string

	LogLevel string
	LogFile  string
}

// LoadConfig reads the environment and fills in the engine's defaults.
func LoadConfig() Config {
	app := config.Load()

	httpAddr := app.HTTPAddr
	if httpAddr == "" {
		httpAddr = ":8082"
	}
	metricsAddr := app.MetricsAddr
	if metricsAddr == "" {
		metricsAddr = ":9100"
	}

	return Config{
		Tickers:         app.Watchlist(),
		Period:          app.RSIPeriod,
		BarRange:        marketdata.ParseRange(app.BarRange),
		RefreshInterval: app.RefreshInterval,

		HTTPAddr:    httpAddr,
		MetricsAddr: metricsAddr,

		SQLitePath: app.SQLitePath,
		CacheTTL:   app.CacheTTL(),

		RedisAddr:     app.RedisAddr,
		RedisPassword: app.RedisPassword,
		RedisDB:       app.RedisDB,

		AlpacaKeyID:     app.AlpacaKeyID,
		AlpacaSecretKey: app.AlpacaSecretKey,
		YahooBaseURL:    app.YahooBaseURL,

		PostgresDSN: app.PostgresDSN,
		RulesPath:   app.RulesPath(),

		LogLevel: app.LogLevel,
		LogFile:  app.LogFile,
	}
}
