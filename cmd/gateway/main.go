// cmd/gateway serves the dashboard backend: REST over the rule, holding and
// reading stores plus a WebSocket feed of alert events. It owns no indicator
// state; everything live comes out of Redis, everything durable out of the
// JSON stores and the bar cache.
package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"momentum-systemv1/config"
	"momentum-systemv1/internal/fx"
	"momentum-systemv1/internal/gateway"
	"momentum-systemv1/internal/logger"
	"momentum-systemv1/internal/marketdata"
	"momentum-systemv1/internal/metrics"
	"momentum-systemv1/internal/portfolio"
	"momentum-systemv1/internal/rules"
	redisstore "momentum-systemv1/internal/store/redis"
	sqlitestore "momentum-systemv1/internal/store/sqlite"
)

const replayEvents = 50

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	app := config.Load()
	logger.Setup("gateway", app.LogLevel, app.LogFile)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		s := <-sig
		log.Printf("[gateway] received %v, shutting down", s)
		cancel()
	}()

	prom := metrics.NewMetrics()
	health := metrics.NewHealthStatus()
	health.SetWatchlist(app.Watchlist())

	// Rule and holding stores are the gateway's reason to exist; refuse to
	// start without them.
	ruleStore, err := rules.Open(ctx, app.PostgresDSN, app.RulesPath())
	if err != nil {
		log.Fatalf("[gateway] rule store: %v", err)
	}
	defer ruleStore.Close()

	holdingStore, err := portfolio.NewStore(app.PortfolioPath())
	if err != nil {
		log.Fatalf("[gateway] holding store: %v", err)
	}
	defer holdingStore.Close()

	store, err := sqlitestore.Open(app.SQLitePath)
	if err != nil {
		log.Printf("[gateway] sqlite open failed: %v (continuing without bar cache)", err)
		store = nil
	} else {
		defer store.Close()
		health.SetSQLiteOK(true)
	}

	yahoo := marketdata.NewYahooClient(app.YahooBaseURL)
	var provider marketdata.Provider
	alpaca := marketdata.NewAlpacaClient("", app.AlpacaKeyID, app.AlpacaSecretKey, "")
	if alpaca.Enabled() {
		provider = marketdata.NewChain(alpaca, yahoo)
	} else {
		provider = marketdata.NewChain(yahoo)
	}
	if store != nil {
		provider = marketdata.NewCache(provider, store, app.CacheTTL())
	}

	valuer := portfolio.NewValuer(holdingStore, provider, fx.NewConverter(yahoo, fx.DefaultTTL))

	// Live data is best-effort: without Redis the REST stores still serve
	// and the feed endpoints report unavailable.
	reader, err := redisstore.NewReader(redisstore.Config{
		Addr: app.RedisAddr, Password: app.RedisPassword, DB: app.RedisDB,
	})
	if err != nil {
		log.Printf("[gateway] redis unavailable: %v (live feed disabled)", err)
		reader = nil
	} else {
		defer reader.Close()
		health.SetRedisConnected(true)
	}

	var publisher *redisstore.BufferedPublisher
	rawPub, err := redisstore.NewPublisher(redisstore.Config{
		Addr: app.RedisAddr, Password: app.RedisPassword, DB: app.RedisDB,
	})
	if err != nil {
		log.Printf("[gateway] redis publisher unavailable: %v (rule changes will not be announced)", err)
	} else {
		breaker := redisstore.NewCircuitBreaker(5, 10*time.Second)
		breaker.OnStateChange = func(from, to redisstore.State) {
			log.Printf("[gateway] redis circuit breaker %s -> %s", from, to)
		}
		publisher = redisstore.NewBufferedPublisher(ctx, rawPub, breaker, 0)
		defer publisher.Close()
	}

	hub := gateway.NewHub(replayEvents, prom)
	if reader != nil {
		feed := gateway.NewFeed(hub, reader)
		feed.Seed(ctx, replayEvents)
		go feed.Run(ctx)
		go feed.RunReadings(ctx)
	}

	cfg := gateway.ServerConfig{
		Hub:          hub,
		Reader:       reader,
		Rules:        ruleStore,
		Holdings:     holdingStore,
		Valuer:       valuer,
		Bars:         provider,
		Watchlist:    app.Watchlist(),
		BacktestBuy:  app.BacktestBuy,
		BacktestSell: app.BacktestSell,
		Period:       app.RSIPeriod,
		TOTPSecret:   app.AdminTOTPSecret,
	}
	if publisher != nil {
		cfg.Publisher = publisher
	}
	if cfg.TOTPSecret == "" {
		log.Println("[gateway] ADMIN_TOTP_SECRET not set, mutating routes are unguarded")
	}

	mux := http.NewServeMux()
	gateway.NewServer(cfg).RegisterRoutes(mux)

	maddr := app.MetricsAddr
	if maddr == "" {
		maddr = ":9101"
	}
	msrv := metrics.NewServer(maddr, health)
	msrv.Start()
	defer func() {
		shutCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		msrv.Stop(shutCtx)
	}()

	var rdb *goredis.Client
	if reader != nil {
		rdb = reader.Client()
	}
	var db *sql.DB
	if store != nil {
		db = store.DB()
	}
	health.StartLivenessChecker(ctx, rdb, db, 30*time.Second)

	addr := app.HTTPAddr
	if addr == "" {
		addr = ":8081"
	}
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		log.Printf("[gateway] serving at http://localhost%s (metrics on %s)", addr, maddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("[gateway] server error: %v", err)
			cancel()
		}
	}()

	<-ctx.Done()

	shutCtx, shutCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutCancel()
	if err := srv.Shutdown(shutCtx); err != nil {
		log.Printf("[gateway] shutdown: %v", err)
	}
	log.Println("[gateway] stopped")
}
