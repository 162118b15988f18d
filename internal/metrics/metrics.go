package metrics

import (
	"context"
	"database/sql"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the RSI services.
type Metrics struct {
	// Refresh loop
	RefreshCycles    prometheus.Counter
	TickersRefreshed prometheus.Counter
	RefreshErrors    *prometheus.CounterVec // labels: ticker
	RefreshDur       prometheus.Histogram
	LastRefreshUnix  prometheus.Gauge

	// Market data providers
	ProviderRequests *prometheus.CounterVec // labels: provider, outcome
	ProviderLatency  prometheus.Histogram

	// Indicator output
	RSILatest        *prometheus.GaugeVec // labels: ticker
	ResultsPublished prometheus.Counter
	SnapshotSaves    prometheus.Counter

	// Redis resilience
	RedisPublishDur     prometheus.Histogram
	CircuitBreakerState prometheus.Gauge // 0=closed, 1=open, 2=half-open
	CircuitBreakerTrips prometheus.Counter
	BufferedPublishes   prometheus.Counter

	// Alert job
	AlertRulesLoaded prometheus.Gauge
	AlertsMatched    prometheus.Counter
	AlertsSent       prometheus.Counter
	AlertSendErrors  prometheus.Counter

	// Gateway websocket fan-out
	WSClients        prometheus.Gauge
	WSMessagesSent   prometheus.Counter
	WSDroppedClients prometheus.Counter

	// Market session state
	MarketState prometheus.Gauge // 0=closed, 1=open
}

// NewMetrics registers and returns all Prometheus metrics.
func NewMetrics() *Metrics {
	m := &Metrics{
		RefreshCycles: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rsiengine_refresh_cycles_total",
			Help: "Completed watchlist refresh cycles",
		}),
		TickersRefreshed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rsiengine_tickers_refreshed_total",
			Help: "Tickers successfully refreshed across all cycles",
		}),
		RefreshErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rsiengine_refresh_errors_total",
			Help: "Per-ticker refresh failures",
		}, []string{"ticker"}),
		RefreshDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "rsiengine_refresh_duration_seconds",
			Help:    "Whole-watchlist refresh latency",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		LastRefreshUnix: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "rsiengine_last_refresh_timestamp_seconds",
			Help: "Unix time of the last successful refresh cycle",
		}),

		ProviderRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rsiengine_provider_requests_total",
			Help: "Bar fetches by provider and outcome (ok, error)",
		}, []string{"provider", "outcome"}),
		ProviderLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "rsiengine_provider_latency_seconds",
			Help:    "Daily-bar fetch latency",
			Buckets: prometheus.DefBuckets,
		}),

		RSILatest: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "rsiengine_rsi_latest",
			Help: "Latest RSI value per ticker",
		}, []string{"ticker"}),
		ResultsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rsiengine_results_published_total",
			Help: "RSI results published to Redis",
		}),
		SnapshotSaves: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rsiengine_snapshot_saves_total",
			Help: "Indicator snapshots written to SQLite",
		}),

		RedisPublishDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "rsiengine_redis_publish_duration_seconds",
			Help:    "Redis publish latency",
			Buckets: prometheus.DefBuckets,
		}),
		CircuitBreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "rsiengine_redis_circuit_breaker_state",
			Help: "Redis circuit breaker state (0=closed, 1=open, 2=half-open)",
		}),
		CircuitBreakerTrips: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rsiengine_redis_circuit_breaker_trips_total",
			Help: "Times the Redis circuit breaker tripped open",
		}),
		BufferedPublishes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rsiengine_redis_buffered_publishes_total",
			Help: "Publishes buffered locally while Redis was unavailable",
		}),

		AlertRulesLoaded: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "alertjob_rules_loaded",
			Help: "Alert rules loaded in the last evaluation",
		}),
		AlertsMatched: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "alertjob_alerts_matched_total",
			Help: "Tickers whose RSI crossed an alert threshold",
		}),
		AlertsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "alertjob_alerts_sent_total",
			Help: "Alert messages delivered to notifiers",
		}),
		AlertSendErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "alertjob_alert_send_errors_total",
			Help: "Notifier delivery failures",
		}),

		WSClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gateway_ws_clients",
			Help: "Currently connected websocket clients",
		}),
		WSMessagesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gateway_ws_messages_sent_total",
			Help: "Messages broadcast to websocket clients",
		}),
		WSDroppedClients: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gateway_ws_dropped_clients_total",
			Help: "Clients disconnected for not keeping up",
		}),

		MarketState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "rsiengine_market_state",
			Help: "Market session state (0=closed, 1=open)",
		}),
	}

	prometheus.MustRegister(
		m.RefreshCycles,
		m.TickersRefreshed,
		m.RefreshErrors,
		m.RefreshDur,
		m.LastRefreshUnix,
		m.ProviderRequests,
		m.ProviderLatency,
		m.RSILatest,
		m.ResultsPublished,
		m.SnapshotSaves,
		m.RedisPublishDur,
		m.CircuitBreakerState,
		m.CircuitBreakerTrips,
		m.BufferedPublishes,
		m.AlertRulesLoaded,
		m.AlertsMatched,
		m.AlertsSent,
		m.AlertSendErrors,
		m.WSClients,
		m.WSMessagesSent,
		m.WSDroppedClients,
		m.MarketState,
	)

	return m
}

// HealthStatus represents the system health.
type HealthStatus struct {
	mu sync.RWMutex

	ProviderOK      bool      `json:"provider_ok"`
	LastRefreshTime time.Time `json:"last_refresh_time"`
	RedisConnected  bool      `json:"redis_connected"`
	SQLiteOK        bool      `json:"sqlite_ok"`
	Watchlist       []string  `json:"watchlist"`

	// Liveness probe results
	RedisLatencyMs  float64   `json:"redis_latency_ms"`
	SQLiteLatencyMs float64   `json:"sqlite_latency_ms"`
	LastCheckAt     time.Time `json:"last_check_at"`
	StartedAt       time.Time `json:"started_at"`
}

// NewHealthStatus returns a default health status.
func NewHealthStatus() *HealthStatus {
	return &HealthStatus{
		StartedAt: time.Now(),
	}
}

func (h *HealthStatus) SetProviderOK(v bool) {
	h.mu.Lock()
	h.ProviderOK = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetLastRefreshTime(t time.Time) {
	h.mu.Lock()
	h.LastRefreshTime = t
	h.mu.Unlock()
}

func (h *HealthStatus) SetRedisConnected(v bool) {
	h.mu.Lock()
	h.RedisConnected = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetSQLiteOK(v bool) {
	h.mu.Lock()
	h.SQLiteOK = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetWatchlist(tickers []string) {
	h.mu.Lock()
	h.Watchlist = tickers
	h.mu.Unlock()
}

// CheckRedis pings Redis and records latency + connectivity.
func (h *HealthStatus) CheckRedis(ctx context.Context, rdb *goredis.Client) {
	start := time.Now()
	err := rdb.Ping(ctx).Err()
	latency := time.Since(start)

	h.mu.Lock()
	h.RedisConnected = err == nil
	h.RedisLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// CheckSQLite runs a trivial query and records latency + health.
func (h *HealthStatus) CheckSQLite(ctx context.Context, db *sql.DB) {
	start := time.Now()
	err := db.PingContext(ctx)
	latency := time.Since(start)

	h.mu.Lock()
	h.SQLiteOK = err == nil
	h.SQLiteLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// StartLivenessChecker runs periodic dependency checks.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, rdb *goredis.Client, sqlDB *sql.DB, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
				if rdb != nil {
					h.CheckRedis(probeCtx, rdb)
				}
				if sqlDB != nil {
					h.CheckSQLite(probeCtx, sqlDB)
				}
				cancel()
			}
		}
	}()
}

// ServeHTTP handles the /healthz endpoint.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	// Determine overall status
	overallStatus := "healthy"
	httpCode := http.StatusOK

	if !h.ProviderOK || !h.RedisConnected || !h.SQLiteOK {
		overallStatus = "degraded"
		httpCode = http.StatusServiceUnavailable
	}
	if !h.RedisConnected && !h.SQLiteOK {
		overallStatus = "unhealthy"
	}

	// Refresh age
	refreshAge := ""
	if !h.LastRefreshTime.IsZero() {
		refreshAge = time.Since(h.LastRefreshTime).Round(time.Second).String()
	}

	status := struct {
		Status          string   `json:"status"`
		Uptime          string   `json:"uptime"`
		ProviderOK      bool     `json:"provider_ok"`
		LastRefreshTime string   `json:"last_refresh_time"`
		RefreshAge      string   `json:"refresh_age"`
		RedisConnected  bool     `json:"redis_connected"`
		RedisLatencyMs  float64  `json:"redis_latency_ms"`
		SQLiteOK        bool     `json:"sqlite_ok"`
		SQLiteLatencyMs float64  `json:"sqlite_latency_ms"`
		Watchlist       []string `json:"watchlist"`
		LastCheckAt     string   `json:"last_check_at"`
	}{
		Status:          overallStatus,
		Uptime:          time.Since(h.StartedAt).Round(time.Second).String(),
		ProviderOK:      h.ProviderOK,
		LastRefreshTime: h.LastRefreshTime.Format(time.RFC3339),
		RefreshAge:      refreshAge,
		RedisConnected:  h.RedisConnected,
		RedisLatencyMs:  h.RedisLatencyMs,
		SQLiteOK:        h.SQLiteOK,
		SQLiteLatencyMs: h.SQLiteLatencyMs,
		Watchlist:       h.Watchlist,
		LastCheckAt:     h.LastCheckAt.Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	if httpCode != http.StatusOK {
		w.WriteHeader(httpCode)
	}
	json.NewEncoder(w).Encode(status)
}

// Server runs an HTTP server exposing /metrics and /healthz.
type Server struct {
	health *HealthStatus
	addr   string
	srv    *http.Server
}

// NewServer creates a metrics and health server.
func NewServer(addr string, health *HealthStatus) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", health.ServeHTTP)

	return &Server{
		health: health,
		addr:   addr,
		srv: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
	}
}

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		log.Printf("[metrics] server listening on %s", s.addr)
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Printf("[metrics] server error: %v", err)
		}
	}()
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) {
	s.srv.Shutdown(ctx)
}
