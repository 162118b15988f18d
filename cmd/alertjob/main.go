// cmd/alertjob evaluates alert rules against the latest RSI readings and
// delivers one batched notification. One-shot by default so cron or a
// systemd timer owns the schedule; -loop turns it into a small daemon with
// an interval timer, a trading-day gate and a metrics endpoint.
//
// The exit code is 0 whether or not anything matched: a quiet market day
// is not a failure.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"momentum-systemv1/config"
	"momentum-systemv1/internal/alert"
	"momentum-systemv1/internal/logger"
	"momentum-systemv1/internal/markethours"
	"momentum-systemv1/internal/marketdata"
	"momentum-systemv1/internal/metrics"
	"momentum-systemv1/internal/model"
	"momentum-systemv1/internal/notification"
	"momentum-systemv1/internal/rules"
	redisstore "momentum-systemv1/internal/store/redis"
	sqlitestore "momentum-systemv1/internal/store/sqlite"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	app := config.Load()

	loop := flag.Bool("loop", false, "run forever on ALERT_INTERVAL instead of once")
	dryRun := flag.Bool("dry-run", false, "print the notification instead of sending it")
	flag.Parse()

	logger.Setup("alertjob", app.LogLevel, app.LogFile)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		s := <-sig
		log.Printf("[alertjob] received %v, shutting down", s)
		cancel()
	}()

	j := newJob(ctx, app, *dryRun)
	defer j.close()

	if !*loop {
		j.runOnce(ctx)
		return
	}
	j.runLoop(ctx)
}

// barSource adapts the provider chain to the evaluator's series interface.
type barSource struct {
	provider marketdata.Provider
	rng      marketdata.Range
}

func (s barSource) Series(ctx context.Context, ticker string) ([]model.Bar, error) {
	return s.provider.DailyBars(ctx, ticker, s.rng)
}

type job struct {
	cfg      *config.Config
	eval     *alert.Evaluator
	rules    model.RuleStore    // nil: evaluate the config watchlist only
	notifier notification.Notifier
	store    *sqlitestore.Store // nil: no bar cache

	// Event publication is best-effort: nil when Redis was unreachable at
	// startup, buffered behind the circuit breaker otherwise.
	rawPub    *redisstore.Publisher
	publisher *redisstore.BufferedPublisher

	// Loop mode only.
	prom   *metrics.Metrics
	health *metrics.HealthStatus

	dryRun bool
}

func newJob(ctx context.Context, app *config.Config, dryRun bool) *job {
	store, err := sqlitestore.Open(app.SQLitePath)
	if err != nil {
		log.Printf("[alertjob] sqlite open failed: %v (continuing without bar cache)", err)
		store = nil
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

	eval := alert.New(
		barSource{provider: provider, rng: marketdata.ParseRange(app.BarRange)},
		alert.Config{Period: app.RSIPeriod, DefaultThreshold: app.AlertLevel},
	)

	ruleStore, err := rules.Open(ctx, app.PostgresDSN, app.RulesPath())
	if err != nil {
		log.Printf("[alertjob] rule store unavailable: %v (falling back to the watchlist)", err)
		ruleStore = nil
	}

	j := &job{
		cfg:      app,
		eval:     eval,
		rules:    ruleStore,
		notifier: notification.Build(app.TelegramBotToken, app.TelegramChatID, app.LineAccessToken, app.LineTargetUserID, app.WebhookURL),
		store:    store,
		dryRun:   dryRun,
	}

	rawPub, err := redisstore.NewPublisher(redisstore.Config{
		Addr: app.RedisAddr, Password: app.RedisPassword, DB: app.RedisDB,
	})
	if err != nil {
		log.Printf("[alertjob] redis unavailable: %v (alert events will not be published)", err)
		return j
	}
	breaker := redisstore.NewCircuitBreaker(5, 10*time.Second)
	breaker.OnStateChange = func(from, to redisstore.State) {
		log.Printf("[alertjob] redis circuit breaker %s -> %s", from, to)
	}
	j.rawPub = rawPub
	j.publisher = redisstore.NewBufferedPublisher(ctx, rawPub, breaker, 0)
	return j
}

func (j *job) close() {
	if j.publisher != nil {
		j.publisher.Close()
	}
	if j.rules != nil {
		j.rules.Close()
	}
	if j.store != nil {
		j.store.Close()
	}
}

// runOnce performs one evaluation pass: resolve targets, evaluate, publish
// events for live dashboards, deliver the batched notification.
func (j *job) runOnce(ctx context.Context) {
	start := time.Now()

	tickers, thresholds := alert.Targets(j.loadRules(ctx), j.cfg.Watchlist())
	if len(tickers) == 0 {
		log.Println("[alertjob] nothing to evaluate: no rules and an empty watchlist")
		return
	}
	log.Printf("[alertjob] evaluating %d tickers (period %d, default threshold %.1f)",
		len(tickers), j.cfg.RSIPeriod, j.cfg.AlertLevel)

	matches, skipped := j.eval.Evaluate(ctx, tickers, thresholds)
	evaluated := len(tickers) - len(skipped)

	if j.prom != nil {
		j.prom.AlertsMatched.Add(float64(len(matches)))
	}
	if j.health != nil {
		j.health.SetProviderOK(evaluated > 0)
		j.health.SetLastRefreshTime(time.Now())
	}

	elapsed := time.Since(start).Round(time.Millisecond)
	if len(matches) == 0 {
		log.Printf("[alertjob] no alerts: %d evaluated, %d skipped in %s", evaluated, len(skipped), elapsed)
		return
	}

	msg := alert.FormatMessage(matches)
	if j.dryRun {
		log.Printf("[alertjob] dry run: %d matches, would send:", len(matches))
		fmt.Println(msg)
		return
	}

	j.publishEvents(ctx, matches)

	err := j.notifier.Send(ctx, notification.Alert{
		Level:   notification.AlertWarning,
		Title:   "RSI Alert",
		Message: msg,
	})
	if err != nil {
		log.Printf("[alertjob] notification delivery: %v", err)
		if j.prom != nil {
			j.prom.AlertSendErrors.Inc()
		}
		return
	}
	if j.prom != nil {
		j.prom.AlertsSent.Inc()
	}
	log.Printf("[alertjob] notified %d matches (%d skipped) in %s", len(matches), len(skipped), elapsed)
}

func (j *job) loadRules(ctx context.Context) []model.AlertRule {
	if j.rules == nil {
		return nil
	}
	list, err := j.rules.List(ctx)
	if err != nil {
		log.Printf("[alertjob] rule load failed: %v (falling back to the watchlist)", err)
		return nil
	}
	if j.prom != nil {
		j.prom.AlertRulesLoaded.Set(float64(len(list)))
	}
	return list
}

// publishEvents pushes matches onto the alert stream and pub/sub channel.
// Best-effort behind the circuit breaker: a down Redis must not hold up
// the notification.
func (j *job) publishEvents(ctx context.Context, matches []alert.Match) {
	if j.publisher == nil {
		return
	}
	now := time.Now().UTC()
	events := make([]model.AlertEvent, len(matches))
	for i, m := range matches {
		events[i] = model.AlertEvent{
			Ticker:    m.Ticker,
			Value:     m.RSI,
			Threshold: m.Threshold,
			Date:      m.Date,
			TS:        now,
		}
	}
	j.publisher.PublishAlerts(ctx, events)
}

// runLoop reruns the evaluation on the configured interval. Runs are
// skipped on weekends and market holidays so a Saturday pass does not
// renotify Friday's close.
func (j *job) runLoop(ctx context.Context) {
	j.prom = metrics.NewMetrics()
	j.health = metrics.NewHealthStatus()
	j.health.SetWatchlist(j.cfg.Watchlist())
	if j.store != nil {
		j.health.SetSQLiteOK(true)
	}
	if j.rawPub != nil {
		j.health.SetRedisConnected(true)
	}

	addr := j.cfg.MetricsAddr
	if addr == "" {
		addr = ":9102"
	}
	srv := metrics.NewServer(addr, j.health)
	srv.Start()
	defer func() {
		shutCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		srv.Stop(shutCtx)
	}()

	var rdb *goredis.Client
	if j.rawPub != nil {
		rdb = j.rawPub.Client()
	}
	var db *sql.DB
	if j.store != nil {
		db = j.store.DB()
	}
	j.health.StartLivenessChecker(ctx, rdb, db, 30*time.Second)

	log.Printf("[alertjob] loop mode: every %s, metrics on %s", j.cfg.AlertInterval, addr)

	if markethours.IsTradingDay(time.Now()) {
		j.runOnce(ctx)
	} else {
		log.Printf("[alertjob] %s, waiting for the next trading day", markethours.StatusString(time.Now()))
	}

	ticker := time.NewTicker(j.cfg.AlertInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Println("[alertjob] loop stopped")
			return
		case <-ticker.C:
			if !markethours.IsTradingDay(time.Now()) {
				log.Printf("[alertjob] %s, skipping run", markethours.StatusString(time.Now()))
				continue
			}
			j.runOnce(ctx)
		}
	}
}
