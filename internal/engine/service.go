// Package engine runs the RSI refresh daemon: it keeps one streaming RSI
// per watched ticker fed from daily bars, publishes every fresh reading to
// Redis, snapshots indicator state to SQLite, and serves the latest values
// over HTTP.
package engine

import (
	"context"
	"log"
	"net/http"
	"sync"
	"time"

	"momentum-systemv1/internal/indicator"
	"momentum-systemv1/internal/marketdata"
	"momentum-systemv1/internal/metrics"
	"momentum-systemv1/internal/model"
	"momentum-systemv1/internal/rules"
	redisstore "momentum-systemv1/internal/store/redis"
	sqlitestore "momentum-systemv1/internal/store/sqlite"
)

// A snapshot older than this is discarded on startup and the registry is
// rebuilt from cached bars instead, so a long-stopped engine never resumes
// from a stream with silent gaps.
const snapshotFreshFor = 72 * time.Hour

// Service is the top-level orchestrator for the RSI engine.
// It wires all dependencies, manages lifecycle, and coordinates goroutines.
type Service struct {
	cfg Config

	store     *sqlitestore.Store
	provider  marketdata.Provider
	rawPub    *redisstore.Publisher
	publisher *redisstore.BufferedPublisher
	breaker   *redisstore.CircuitBreaker
	reader    *redisstore.Reader
	rules     model.RuleStore

	prom       *metrics.Metrics
	health     *metrics.HealthStatus
	metricsSrv *metrics.Server
	apiSrv     *http.Server

	// mu guards registry, latest and tickers; the refresh loop writes,
	// HTTP handlers and snapshots read.
	mu       sync.RWMutex
	registry *indicator.Registry
	latest   map[string]model.RSIResult
	tickers  []string

	refreshNow chan struct{}
}

// New creates a Service from the given Config. It connects to Redis and
// SQLite; a missing SQLite file degrades to no cache, a missing Redis is
// fatal since the engine exists to publish.
func New(cfg Config) (*Service, error) {
	svc := &Service{
		cfg:        cfg,
		prom:       metrics.NewMetrics(),
		health:     metrics.NewHealthStatus(),
		latest:     make(map[string]model.RSIResult, len(cfg.Tickers)),
		tickers:    cfg.Tickers,
		refreshNow: make(chan struct{}, 1),
	}
	svc.health.SetWatchlist(cfg.Tickers)

	// ---- Open SQLite (bar cache + snapshots) ----
	var err error
	svc.store, err = sqlitestore.Open(cfg.SQLitePath)
	if err != nil {
		log.Printf("[engine] WARNING: sqlite open failed: %v (continuing without cache)", err)
		svc.store = nil
	} else {
		svc.health.SetSQLiteOK(true)
	}

	// ---- Build the provider chain ----
	svc.provider = buildProvider(cfg, svc.store)

	// ---- Connect to Redis ----
	redisCfg := redisstore.Config{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB}
	svc.rawPub, err = redisstore.NewPublisher(redisCfg)
	if err != nil {
		if svc.store != nil {
			svc.store.Close()
		}
		return nil, err
	}
	svc.reader, err = redisstore.NewReader(redisCfg)
	if err != nil {
		svc.rawPub.Close()
		if svc.store != nil {
			svc.store.Close()
		}
		return nil, err
	}
	svc.health.SetRedisConnected(true)

	svc.breaker = redisstore.NewCircuitBreaker(5, 10*time.Second)
	svc.breaker.OnStateChange = func(from, to redisstore.State) {
		log.Printf("[engine] redis circuit breaker: %s -> %s", from, to)
		svc.prom.CircuitBreakerState.Set(float64(to))
		if to == redisstore.StateOpen {
			svc.prom.CircuitBreakerTrips.Inc()
		}
	}

	return svc, nil
}

// buildProvider assembles Alpaca-then-Yahoo fallback wrapped in the SQLite
// bar cache. Alpaca joins the chain only when credentials are configured.
func buildProvider(cfg Config, store *sqlitestore.Store) marketdata.Provider {
	yahoo := marketdata.NewYahooClient(cfg.YahooBaseURL)

	var chain marketdata.Provider
	alpaca := marketdata.NewAlpacaClient("", cfg.AlpacaKeyID, cfg.AlpacaSecretKey, "")
	if alpaca.Enabled() {
		log.Printf("[engine] alpaca credentials found, using alpaca -> yahoo fallback")
		chain = marketdata.NewChain(alpaca, yahoo)
	} else {
		chain = marketdata.NewChain(yahoo)
	}

	if store == nil {
		return chain
	}
	return marketdata.NewCache(chain, store, cfg.CacheTTL)
}

// Run starts all subsystems and blocks until ctx is cancelled.
func (svc *Service) Run(ctx context.Context) error {
	log.Println("[engine] starting RSI engine...")

	svc.publisher = redisstore.NewBufferedPublisher(ctx, svc.rawPub, svc.breaker, 0)
	svc.publisher.OnBuffer = func() { svc.prom.BufferedPublishes.Inc() }
	svc.publisher.OnFlush = func(count int) {
		log.Printf("[engine] replayed %d buffered publishes", count)
	}

	// ---- Rule store (optional, for watchlist merges) ----
	var err error
	svc.rules, err = rules.Open(ctx, svc.cfg.PostgresDSN, svc.cfg.RulesPath)
	if err != nil {
		log.Printf("[engine] WARNING: rule store unavailable: %v (watchlist is config only)", err)
		svc.rules = nil
	}

	// ---- Restore indicator state ----
	svc.restoreRegistry()
	svc.mergeRuleTickers(ctx)

	// ---- Warm-up refresh: always runs so the API has data even when the
	// engine comes up on a weekend ----
	svc.refreshAll(ctx)

	// ---- Start subsystems ----
	go svc.refreshLoop(ctx)
	svc.startRulesSubscriber(ctx)
	svc.startHTTP(ctx)

	svc.metricsSrv = metrics.NewServer(svc.cfg.MetricsAddr, svc.health)
	svc.metricsSrv.Start()
	if svc.store != nil {
		svc.health.StartLivenessChecker(ctx, svc.rawPub.Client(), svc.store.DB(), 30*time.Second)
	} else {
		svc.health.StartLivenessChecker(ctx, svc.rawPub.Client(), nil, 30*time.Second)
	}

	log.Printf("[engine] tracking %d tickers, period=%d, range=%s, refresh every %s",
		len(svc.watchlist()), svc.cfg.Period, svc.cfg.BarRange, svc.cfg.RefreshInterval)
	log.Printf("[engine] http=%s metrics=%s", svc.cfg.HTTPAddr, svc.cfg.MetricsAddr)
	log.Println("[engine] all systems running. Press Ctrl+C to stop.")

	// Block until context cancelled
	<-ctx.Done()

	svc.shutdown()
	return nil
}

// shutdown saves a final snapshot and closes connections.
func (svc *Service) shutdown() {
	log.Println("[engine] shutdown signal received, saving final snapshot...")

	svc.saveSnapshot()

	shutCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if svc.metricsSrv != nil {
		svc.metricsSrv.Stop(shutCtx)
	}
	svc.stopHTTP(shutCtx)

	if svc.rules != nil {
		svc.rules.Close()
	}
	svc.reader.Close()
	svc.rawPub.Close()
	if svc.store != nil {
		svc.store.Close()
	}

	log.Println("[engine] shutdown complete.")
}

// restoreRegistry loads the latest SQLite snapshot when it is fresh, then
// warms any cold tickers from cached bars so the API can serve before the
// first network refresh.
func (svc *Service) restoreRegistry() {
	var snap *indicator.RegistrySnapshot

	if svc.store != nil {
		raw, err := svc.store.ReadLatestSnapshotJSON()
		if err != nil {
			log.Printf("[engine] snapshot read: %v", err)
		} else if raw != nil {
			snap, err = indicator.UnmarshalRegistrySnapshot(raw)
			if err != nil {
				log.Printf("[engine] snapshot decode: %v", err)
				snap = nil
			}
		}
	}

	if snap != nil && time.Since(snap.TakenAt) > snapshotFreshFor {
		log.Printf("[engine] snapshot from %s is stale, rebuilding from cached bars",
			snap.TakenAt.Format(time.RFC3339))
		snap = nil
	}

	svc.mu.Lock()
	defer svc.mu.Unlock()

	svc.registry = indicator.RestoreRegistry(svc.cfg.Period, snap)
	if snap != nil {
		log.Printf("[engine] restored indicator state from snapshot taken %s",
			snap.TakenAt.Format(time.RFC3339))
	}

	if svc.store == nil {
		return
	}
	warmed := 0
	for _, t := range svc.tickers {
		if _, ok := svc.registry.Latest(t); ok {
			continue
		}
		bars, err := svc.store.ReadBars(t)
		if err != nil || len(bars) == 0 {
			continue
		}
		reading := svc.registry.Update(t, bars)
		if reading.Value.Valid {
			svc.latest[t] = readingResult(reading, svc.cfg.Period)
			warmed++
		}
	}
	if warmed > 0 {
		log.Printf("[engine] warmed %d tickers from cached bars", warmed)
	}
}

// mergeRuleTickers unions alert-rule tickers into the watchlist so rules
// added for off-watchlist tickers still get readings.
func (svc *Service) mergeRuleTickers(ctx context.Context) {
	if svc.rules == nil {
		return
	}
	ruleSet, err := svc.rules.List(ctx)
	if err != nil {
		log.Printf("[engine] rule list: %v", err)
		return
	}
	svc.setTickers(mergeTickers(svc.cfg.Tickers, ruleSet))
}

// watchlist returns the current ticker set.
func (svc *Service) watchlist() []string {
	svc.mu.RLock()
	defer svc.mu.RUnlock()
	out := make([]string, len(svc.tickers))
	copy(out, svc.tickers)
	return out
}

// setTickers swaps the watchlist and drops indicator state for tickers that
// fell off it.
func (svc *Service) setTickers(tickers []string) {
	svc.mu.Lock()
	defer svc.mu.Unlock()

	keep := make(map[string]bool, len(tickers))
	for _, t := range tickers {
		keep[t] = true
	}
	for _, t := range svc.tickers {
		if !keep[t] {
			svc.registry.Drop(t)
			delete(svc.latest, t)
			svc.prom.RSILatest.DeleteLabelValues(t)
		}
	}
	svc.tickers = tickers
	svc.health.SetWatchlist(tickers)
}

// mergeTickers unions the config watchlist with rule tickers, preserving
// config order and appending rule-only tickers in rule order.
func mergeTickers(base []string, ruleSet []model.AlertRule) []string {
	seen := make(map[string]bool, len(base))
	merged := make([]string, 0, len(base)+len(ruleSet))
	for _, t := range base {
		if !seen[t] {
			seen[t] = true
			merged = append(merged, t)
		}
	}
	for _, r := range ruleSet {
		if r.Ticker != "" && !seen[r.Ticker] {
			seen[r.Ticker] = true
			merged = append(merged, r.Ticker)
		}
	}
	return merged
}

// readingResult converts a registry reading into the published result shape.
func readingResult(r indicator.Reading, period int) model.RSIResult {
	return model.RSIResult{
		Ticker: r.Ticker,
		Period: period,
		Value:  r.Value.Value,
		Date:   r.Date,
		TS:     time.Now().UTC(),
	}
}
