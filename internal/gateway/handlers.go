package gateway

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/pquerna/otp/totp"

	"momentum-systemv1/internal/backtest"
	"momentum-systemv1/internal/marketdata"
	"momentum-systemv1/internal/model"
	"momentum-systemv1/internal/portfolio"
	"momentum-systemv1/internal/rules"
	redisstore "momentum-systemv1/internal/store/redis"
)

// ServerConfig carries the REST surface's dependencies and defaults.
// Reader, Valuer and Publisher may be nil; the affected endpoints degrade
// instead of the whole gateway refusing to start.
type ServerConfig struct {
	Hub      *Hub
	Reader   *redisstore.Reader
	Rules    model.RuleStore
	Holdings model.HoldingStore
	Valuer   *portfolio.Valuer
	Bars     marketdata.Provider

	// Publisher announces rule mutations so the engine picks up new
	// tickers without waiting for its next refresh.
	Publisher model.ResultPublisher

	Watchlist    []string
	BacktestBuy  float64
	BacktestSell float64
	Period       int

	// TOTPSecret guards mutating routes via the X-Admin-Code header.
	// Empty disables the guard.
	TOTPSecret string
}

// Server implements the dashboard REST API.
type Server struct {
	cfg     ServerConfig
	started time.Time
}

func NewServer(cfg ServerConfig) *Server {
	return &Server{cfg: cfg, started: time.Now()}
}

// RegisterRoutes mounts every endpoint on the mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/ws", s.cfg.Hub.HandleWS)
	mux.HandleFunc("/api/v1/health", s.handleHealth)
	mux.HandleFunc("/api/v1/rsi", s.handleRSI)
	mux.HandleFunc("/api/v1/rsi/history", s.handleRSIHistory)
	mux.HandleFunc("/api/v1/alerts/recent", s.handleRecentAlerts)
	mux.HandleFunc("/api/v1/portfolio", s.handlePortfolio)
	mux.HandleFunc("/api/v1/rules", s.handleRules)
	mux.HandleFunc("/api/v1/rules/", s.handleRuleByID)
	mux.HandleFunc("/api/v1/holdings", s.handleHoldings)
	mux.HandleFunc("/api/v1/holdings/", s.handleHoldingByID)
	mux.HandleFunc("/api/v1/backtest", s.handleBacktest)
}

// setCORS sets the CORS headers for REST endpoints.
func setCORS(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Admin-Code")
}

// begin applies CORS, short-circuits preflight, and rejects methods the
// endpoint does not serve. Returns false when the request is already done.
func begin(w http.ResponseWriter, r *http.Request, methods ...string) bool {
	setCORS(w)
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return false
	}
	for _, m := range methods {
		if r.Method == m {
			w.Header().Set("Content-Type", "application/json")
			return true
		}
	}
	http.Error(w, `{"error":"method not allowed"}`, http.StatusMethodNotAllowed)
	return false
}

// requireAdmin enforces the TOTP guard on mutating routes. With no secret
// configured the guard is disabled.
func (s *Server) requireAdmin(w http.ResponseWriter, r *http.Request) bool {
	if s.cfg.TOTPSecret == "" {
		return true
	}
	code := r.Header.Get("X-Admin-Code")
	if code == "" || !totp.Validate(code, s.cfg.TOTPSecret) {
		http.Error(w, `{"error":"invalid admin code"}`, http.StatusUnauthorized)
		return false
	}
	return true
}

func (s *Server) notifyRulesChanged(r *http.Request) {
	if s.cfg.Publisher != nil {
		s.cfg.Publisher.NotifyRulesChanged(r.Context())
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !begin(w, r, http.MethodGet) {
		return
	}

	redisOK := false
	if s.cfg.Reader != nil {
		redisOK = s.cfg.Reader.Client().Ping(r.Context()).Err() == nil
	}

	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":     "ok",
		"redis":      redisOK,
		"ws_clients": s.cfg.Hub.ClientCount(),
		"uptime_sec": int64(time.Since(s.started).Seconds()),
		"ts":         time.Now().UTC().Format(time.RFC3339Nano),
	})
}

// handleRSI serves the latest reading per ticker, straight from the keys
// the engine maintains. ?ticker= narrows to one symbol.
func (s *Server) handleRSI(w http.ResponseWriter, r *http.Request) {
	if !begin(w, r, http.MethodGet) {
		return
	}
	if s.cfg.Reader == nil {
		http.Error(w, `{"error":"redis unavailable"}`, http.StatusServiceUnavailable)
		return
	}

	tickers := s.cfg.Watchlist
	if t := strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("ticker"))); t != "" {
		tickers = []string{t}
	}

	results, err := s.cfg.Reader.LatestResults(r.Context(), tickers)
	if err != nil {
		log.Printf("[gateway] latest readings: %v", err)
		http.Error(w, `{"error":"redis unavailable"}`, http.StatusBadGateway)
		return
	}
	if results == nil {
		results = []model.RSIResult{}
	}
	json.NewEncoder(w).Encode(map[string]interface{}{
		"count":   len(results),
		"results": results,
	})
}

// handleRSIHistory serves a ticker's reading history from its stream,
// oldest first, for dashboard charts.
func (s *Server) handleRSIHistory(w http.ResponseWriter, r *http.Request) {
	if !begin(w, r, http.MethodGet) {
		return
	}
	if s.cfg.Reader == nil {
		http.Error(w, `{"error":"redis unavailable"}`, http.StatusServiceUnavailable)
		return
	}

	ticker := strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("ticker")))
	if ticker == "" {
		http.Error(w, `{"error":"ticker query parameter is required"}`, http.StatusBadRequest)
		return
	}
	limit := parseLimit(r.URL.Query().Get("limit"), 0)

	results, err := s.cfg.Reader.History(r.Context(), ticker, limit)
	if err != nil {
		log.Printf("[gateway] history for %s: %v", ticker, err)
		http.Error(w, `{"error":"redis unavailable"}`, http.StatusBadGateway)
		return
	}
	if results == nil {
		results = []model.RSIResult{}
	}
	json.NewEncoder(w).Encode(map[string]interface{}{
		"ticker":  ticker,
		"count":   len(results),
		"results": results,
	})
}

// handleRecentAlerts serves the newest alert events from the alert stream.
func (s *Server) handleRecentAlerts(w http.ResponseWriter, r *http.Request) {
	if !begin(w, r, http.MethodGet) {
		return
	}
	if s.cfg.Reader == nil {
		http.Error(w, `{"error":"redis unavailable"}`, http.StatusServiceUnavailable)
		return
	}

	limit := parseLimit(r.URL.Query().Get("limit"), 50)
	events, err := s.cfg.Reader.RecentAlerts(r.Context(), limit)
	if err != nil {
		log.Printf("[gateway] recent alerts: %v", err)
		http.Error(w, `{"error":"redis unavailable"}`, http.StatusBadGateway)
		return
	}
	if events == nil {
		events = []model.AlertEvent{}
	}
	json.NewEncoder(w).Encode(map[string]interface{}{
		"count":  len(events),
		"events": events,
	})
}

func (s *Server) handlePortfolio(w http.ResponseWriter, r *http.Request) {
	if !begin(w, r, http.MethodGet) {
		return
	}
	if s.cfg.Valuer == nil {
		http.Error(w, `{"error":"portfolio valuation unavailable"}`, http.StatusServiceUnavailable)
		return
	}

	val, err := s.cfg.Valuer.Value(r.Context())
	if err != nil {
		log.Printf("[gateway] valuation: %v", err)
		http.Error(w, `{"error":"holdings unavailable"}`, http.StatusInternalServerError)
		return
	}
	json.NewEncoder(w).Encode(val)
}

func (s *Server) handleRules(w http.ResponseWriter, r *http.Request) {
	if !begin(w, r, http.MethodGet, http.MethodPost) {
		return
	}

	switch r.Method {
	case http.MethodGet:
		list, err := s.cfg.Rules.List(r.Context())
		if err != nil {
			log.Printf("[gateway] list rules: %v", err)
			http.Error(w, `{"error":"rule store unavailable"}`, http.StatusInternalServerError)
			return
		}
		if list == nil {
			list = []model.AlertRule{}
		}
		json.NewEncoder(w).Encode(list)

	case http.MethodPost:
		if !s.requireAdmin(w, r) {
			return
		}
		var rule model.AlertRule
		if err := json.NewDecoder(r.Body).Decode(&rule); err != nil {
			http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
			return
		}
		rule, err := rules.Normalize(rule)
		if err != nil {
			http.Error(w, `{"error":"ticker is required"}`, http.StatusBadRequest)
			return
		}
		if err := s.cfg.Rules.Put(r.Context(), rule); err != nil {
			log.Printf("[gateway] save rule: %v", err)
			http.Error(w, `{"error":"rule save failed"}`, http.StatusInternalServerError)
			return
		}
		log.Printf("[gateway] rule saved: %s %s threshold %.1f", rule.Ticker, rule.Type, rule.Threshold)
		s.notifyRulesChanged(r)
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(rule)
	}
}

func (s *Server) handleRuleByID(w http.ResponseWriter, r *http.Request) {
	if !begin(w, r, http.MethodDelete) {
		return
	}
	if !s.requireAdmin(w, r) {
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/api/v1/rules/")
	if id == "" || strings.Contains(id, "/") {
		http.Error(w, `{"error":"rule id is required"}`, http.StatusBadRequest)
		return
	}
	if err := s.cfg.Rules.Delete(r.Context(), id); err != nil {
		log.Printf("[gateway] delete rule %s: %v", id, err)
		http.Error(w, `{"error":"rule delete failed"}`, http.StatusInternalServerError)
		return
	}
	log.Printf("[gateway] rule deleted: %s", id)
	s.notifyRulesChanged(r)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleHoldings(w http.ResponseWriter, r *http.Request) {
	if !begin(w, r, http.MethodGet, http.MethodPost) {
		return
	}

	switch r.Method {
	case http.MethodGet:
		list, err := s.cfg.Holdings.List(r.Context())
		if err != nil {
			log.Printf("[gateway] list holdings: %v", err)
			http.Error(w, `{"error":"holding store unavailable"}`, http.StatusInternalServerError)
			return
		}
		if list == nil {
			list = []model.Holding{}
		}
		json.NewEncoder(w).Encode(list)

	case http.MethodPost:
		if !s.requireAdmin(w, r) {
			return
		}
		var req holdingRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
			return
		}
		holding, err := s.cfg.Holdings.Upsert(r.Context(), req.Ticker, req.Shares)
		if err != nil {
			http.Error(w, `{"error":"ticker and a positive share count are required"}`, http.StatusBadRequest)
			return
		}
		log.Printf("[gateway] holding saved: %s x%d", holding.Ticker, holding.Shares)
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(holding)
	}
}

func (s *Server) handleHoldingByID(w http.ResponseWriter, r *http.Request) {
	if !begin(w, r, http.MethodDelete) {
		return
	}
	if !s.requireAdmin(w, r) {
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/api/v1/holdings/")
	if id == "" || strings.Contains(id, "/") {
		http.Error(w, `{"error":"holding id is required"}`, http.StatusBadRequest)
		return
	}
	if err := s.cfg.Holdings.Delete(r.Context(), id); err != nil {
		log.Printf("[gateway] delete holding %s: %v", id, err)
		http.Error(w, `{"error":"holding delete failed"}`, http.StatusInternalServerError)
		return
	}
	log.Printf("[gateway] holding deleted: %s", id)
	w.WriteHeader(http.StatusNoContent)
}

// handleBacktest runs the threshold strategy over one ticker's bars and
// returns the result with its equity curve. Thresholds are validated here
// so a dashboard typo cannot start a nonsensical simulation.
func (s *Server) handleBacktest(w http.ResponseWriter, r *http.Request) {
	if !begin(w, r, http.MethodPost) {
		return
	}
	if s.cfg.Bars == nil {
		http.Error(w, `{"error":"price data unavailable"}`, http.StatusServiceUnavailable)
		return
	}

	var req backtestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}

	ticker := strings.ToUpper(strings.TrimSpace(req.Ticker))
	if ticker == "" {
		http.Error(w, `{"error":"ticker is required"}`, http.StatusBadRequest)
		return
	}

	buy, sell, period := req.Buy, req.Sell, req.Period
	if buy == 0 {
		buy = s.cfg.BacktestBuy
	}
	if sell == 0 {
		sell = s.cfg.BacktestSell
	}
	if period == 0 {
		period = s.cfg.Period
	}
	if buy >= sell {
		http.Error(w, `{"error":"buy threshold must be below sell"}`, http.StatusBadRequest)
		return
	}
	if period < 1 {
		http.Error(w, `{"error":"period must be at least 1"}`, http.StatusBadRequest)
		return
	}

	bars, err := s.cfg.Bars.DailyBars(r.Context(), ticker, marketdata.ParseRange(req.Range))
	if err != nil {
		log.Printf("[gateway] backtest bars for %s: %v", ticker, err)
		http.Error(w, `{"error":"price data unavailable"}`, http.StatusBadGateway)
		return
	}

	res, err := backtest.RunSeries(bars, backtest.Params{
		Ticker: ticker, Buy: buy, Sell: sell, Period: period,
	})
	if err != nil {
		http.Error(w, `{"error":"invalid parameters"}`, http.StatusBadRequest)
		return
	}
	if res == nil {
		http.Error(w, `{"error":"not enough history for `+ticker+`"}`, http.StatusUnprocessableEntity)
		return
	}

	log.Printf("[gateway] backtest %s: strategy %+.2f%% vs hold %+.2f%% (%d trades)",
		ticker, res.StrategyReturn*100, res.BuyHoldReturn*100, res.Trades)
	json.NewEncoder(w).Encode(res)
}

func parseLimit(s string, def int64) int64 {
	if s == "" {
		return def
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n <= 0 {
		return def
	}
	return n
}
