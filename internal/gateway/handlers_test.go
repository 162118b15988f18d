package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"

	"momentum-systemv1/internal/backtest"
	"momentum-systemv1/internal/marketdata"
	"momentum-systemv1/internal/model"
	"momentum-systemv1/internal/portfolio"
	"momentum-systemv1/internal/rules"
)

type recordingPublisher struct {
	rulesChanged int
}

func (p *recordingPublisher) PublishRSI(ctx context.Context, results []model.RSIResult)    {}
func (p *recordingPublisher) PublishAlerts(ctx context.Context, events []model.AlertEvent) {}
func (p *recordingPublisher) NotifyRulesChanged(ctx context.Context)                       { p.rulesChanged++ }
func (p *recordingPublisher) Close() error                                                 { return nil }

type stubBars struct {
	bars []model.Bar
	err  error
}

func (s stubBars) Name() string { return "stub" }

func (s stubBars) DailyBars(ctx context.Context, ticker string, rng marketdata.Range) ([]model.Bar, error) {
	return s.bars, s.err
}

type stubRates struct {
	rate float64
	err  error
}

func (s stubRates) USDJPY(ctx context.Context) (float64, error) { return s.rate, s.err }

func barSeries(closes ...float64) []model.Bar {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]model.Bar, len(closes))
	for i, c := range closes {
		bars[i] = model.Bar{Date: start.AddDate(0, 0, i), Close: c}
	}
	return bars
}

// newTestMux wires a Server over temp-dir stores, filling in anything the
// caller left nil.
func newTestMux(t *testing.T, cfg ServerConfig) (*http.ServeMux, *recordingPublisher) {
	t.Helper()
	dir := t.TempDir()

	if cfg.Hub == nil {
		cfg.Hub = NewHub(10, nil)
	}
	if cfg.Rules == nil {
		store, err := rules.NewFileStore(filepath.Join(dir, "alerts.json"))
		if err != nil {
			t.Fatalf("rule store: %v", err)
		}
		cfg.Rules = store
	}
	if cfg.Holdings == nil {
		store, err := portfolio.NewStore(filepath.Join(dir, "portfolio.json"))
		if err != nil {
			t.Fatalf("holding store: %v", err)
		}
		cfg.Holdings = store
	}
	pub := &recordingPublisher{}
	cfg.Publisher = pub
	if cfg.BacktestBuy == 0 {
		cfg.BacktestBuy = 40
	}
	if cfg.BacktestSell == 0 {
		cfg.BacktestSell = 70
	}
	if cfg.Period == 0 {
		cfg.Period = 14
	}

	mux := http.NewServeMux()
	NewServer(cfg).RegisterRoutes(mux)
	return mux, pub
}

func doJSON(t *testing.T, mux *http.ServeMux, method, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var raw []byte
	if body != nil {
		var err error
		raw, err = json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(raw))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestRulesLifecycle(t *testing.T) {
	mux, pub := newTestMux(t, ServerConfig{})

	rec := doJSON(t, mux, http.MethodPost, "/api/v1/rules",
		model.AlertRule{Ticker: "nvda", Threshold: 35}, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: status %d, body %s", rec.Code, rec.Body)
	}
	var created model.AlertRule
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("create response: %v", err)
	}
	if created.ID == "" || created.Ticker != "NVDA" || created.Type != model.RuleTypeRSIBelow {
		t.Errorf("created = %+v", created)
	}
	if pub.rulesChanged != 1 {
		t.Errorf("rulesChanged = %d, want 1", pub.rulesChanged)
	}

	rec = doJSON(t, mux, http.MethodGet, "/api/v1/rules", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list: status %d", rec.Code)
	}
	var list []model.AlertRule
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("list response: %v", err)
	}
	if len(list) != 1 || list[0].ID != created.ID {
		t.Errorf("list = %+v", list)
	}

	rec = doJSON(t, mux, http.MethodDelete, "/api/v1/rules/"+created.ID, nil, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete: status %d, body %s", rec.Code, rec.Body)
	}
	if pub.rulesChanged != 2 {
		t.Errorf("rulesChanged = %d, want 2", pub.rulesChanged)
	}

	rec = doJSON(t, mux, http.MethodGet, "/api/v1/rules", nil, nil)
	list = nil
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("list response: %v", err)
	}
	if len(list) != 0 {
		t.Errorf("after delete, list = %+v", list)
	}
}

func TestRuleValidation(t *testing.T) {
	mux, pub := newTestMux(t, ServerConfig{})

	rec := doJSON(t, mux, http.MethodPost, "/api/v1/rules",
		model.AlertRule{Threshold: 30}, nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("rule without ticker: status %d, want 400", rec.Code)
	}
	if pub.rulesChanged != 0 {
		t.Errorf("rejected rule must not announce a change")
	}

	rec = doJSON(t, mux, http.MethodDelete, "/api/v1/rules", nil, nil)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("DELETE on collection: status %d, want 405", rec.Code)
	}
}

func TestHoldingsLifecycle(t *testing.T) {
	mux, _ := newTestMux(t, ServerConfig{})

	rec := doJSON(t, mux, http.MethodPost, "/api/v1/holdings",
		holdingRequest{Ticker: "nvda", Shares: 12}, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: status %d, body %s", rec.Code, rec.Body)
	}
	var created model.Holding
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("create response: %v", err)
	}
	if created.ID == "" || created.Ticker != "NVDA" || created.Shares != 12 {
		t.Errorf("created = %+v", created)
	}

	// Same ticker again updates in place.
	rec = doJSON(t, mux, http.MethodPost, "/api/v1/holdings",
		holdingRequest{Ticker: "NVDA", Shares: 20}, nil)
	var updated model.Holding
	if err := json.Unmarshal(rec.Body.Bytes(), &updated); err != nil {
		t.Fatalf("update response: %v", err)
	}
	if updated.ID != created.ID || updated.Shares != 20 {
		t.Errorf("updated = %+v, want same ID with 20 shares", updated)
	}

	rec = doJSON(t, mux, http.MethodGet, "/api/v1/holdings", nil, nil)
	var list []model.Holding
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("list response: %v", err)
	}
	if len(list) != 1 || list[0].Shares != 20 {
		t.Errorf("list = %+v", list)
	}

	rec = doJSON(t, mux, http.MethodDelete, "/api/v1/holdings/"+created.ID, nil, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete: status %d", rec.Code)
	}

	rec = doJSON(t, mux, http.MethodPost, "/api/v1/holdings",
		holdingRequest{Ticker: "NVDA", Shares: -3}, nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("negative shares: status %d, want 400", rec.Code)
	}
}

func TestBacktestEndpoint(t *testing.T) {
	// Period 2 over 100,99,98,99,100,101: RSI hits 0 at 98 (buy) and 100
	// two rows later (sell), then stays flat.
	mux, _ := newTestMux(t, ServerConfig{
		Bars: stubBars{bars: barSeries(100, 99, 98, 99, 100, 101)},
	})

	rec := doJSON(t, mux, http.MethodPost, "/api/v1/backtest",
		backtestRequest{Ticker: "nvda", Buy: 40, Sell: 70, Period: 2}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d, body %s", rec.Code, rec.Body)
	}

	var res backtest.Result
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("response: %v", err)
	}
	if res.Ticker != "NVDA" {
		t.Errorf("ticker = %q, want NVDA", res.Ticker)
	}
	if res.Trades != 2 {
		t.Errorf("trades = %d, want 2 (one buy, one sell)", res.Trades)
	}
	if want := 100.0/98.0 - 1.0; math.Abs(res.StrategyReturn-want) > 1e-9 {
		t.Errorf("strategy return = %v, want %v", res.StrategyReturn, want)
	}
	if want := 101.0/98.0 - 1.0; math.Abs(res.BuyHoldReturn-want) > 1e-9 {
		t.Errorf("buy-hold return = %v, want %v", res.BuyHoldReturn, want)
	}
	if len(res.Curve) != 4 {
		t.Errorf("curve has %d points, want 4 defined rows", len(res.Curve))
	}
}

func TestBacktestValidation(t *testing.T) {
	mux, _ := newTestMux(t, ServerConfig{
		Bars: stubBars{bars: barSeries(100, 101)},
	})

	rec := doJSON(t, mux, http.MethodPost, "/api/v1/backtest",
		backtestRequest{Ticker: "NVDA", Buy: 70, Sell: 40}, nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("inverted thresholds: status %d, want 400", rec.Code)
	}

	rec = doJSON(t, mux, http.MethodPost, "/api/v1/backtest",
		backtestRequest{Buy: 40, Sell: 70}, nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing ticker: status %d, want 400", rec.Code)
	}

	// Two bars can never produce two defined readings.
	rec = doJSON(t, mux, http.MethodPost, "/api/v1/backtest",
		backtestRequest{Ticker: "NVDA", Buy: 40, Sell: 70, Period: 14}, nil)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("thin series: status %d, want 422", rec.Code)
	}
}

func TestAdminGuard(t *testing.T) {
	secret := "JBSWY3DPEHPK3PXP"
	mux, _ := newTestMux(t, ServerConfig{TOTPSecret: secret})
	rule := model.AlertRule{Ticker: "NVDA", Threshold: 35}

	rec := doJSON(t, mux, http.MethodPost, "/api/v1/rules", rule, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("no code: status %d, want 401", rec.Code)
	}

	// A five-digit code can never validate.
	rec = doJSON(t, mux, http.MethodPost, "/api/v1/rules", rule,
		map[string]string{"X-Admin-Code": "12345"})
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("bad code: status %d, want 401", rec.Code)
	}

	code, err := totp.GenerateCode(secret, time.Now())
	if err != nil {
		t.Fatalf("generate code: %v", err)
	}
	rec = doJSON(t, mux, http.MethodPost, "/api/v1/rules", rule,
		map[string]string{"X-Admin-Code": code})
	if rec.Code != http.StatusCreated {
		t.Errorf("valid code: status %d, want 201", rec.Code)
	}

	// Reads stay open.
	rec = doJSON(t, mux, http.MethodGet, "/api/v1/rules", nil, nil)
	if rec.Code != http.StatusOK {
		t.Errorf("guarded GET: status %d, want 200", rec.Code)
	}
}

func TestPortfolioEndpoint(t *testing.T) {
	dir := t.TempDir()
	holdings, err := portfolio.NewStore(filepath.Join(dir, "portfolio.json"))
	if err != nil {
		t.Fatalf("holding store: %v", err)
	}
	if _, err := holdings.Upsert(context.Background(), "NVDA", 10); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	valuer := portfolio.NewValuer(holdings, stubBars{bars: barSeries(50)}, stubRates{rate: 150})
	mux, _ := newTestMux(t, ServerConfig{Holdings: holdings, Valuer: valuer})

	rec := doJSON(t, mux, http.MethodGet, "/api/v1/portfolio", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d, body %s", rec.Code, rec.Body)
	}
	var val portfolio.Valuation
	if err := json.Unmarshal(rec.Body.Bytes(), &val); err != nil {
		t.Fatalf("response: %v", err)
	}
	if len(val.Positions) != 1 {
		t.Fatalf("positions = %+v", val.Positions)
	}
	if val.TotalUSD != 500 {
		t.Errorf("total usd = %v, want 500", val.TotalUSD)
	}
	if val.TotalJPY != 75000 {
		t.Errorf("total jpy = %v, want 75000", val.TotalJPY)
	}
	if val.Positions[0].Weight != 1.0 {
		t.Errorf("weight = %v, want 1", val.Positions[0].Weight)
	}
}

func TestHealthEndpoint(t *testing.T) {
	mux, _ := newTestMux(t, ServerConfig{})

	rec := doJSON(t, mux, http.MethodGet, "/api/v1/health", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	var body struct {
		Status    string `json:"status"`
		Redis     bool   `json:"redis"`
		WSClients int    `json:"ws_clients"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("response: %v", err)
	}
	if body.Status != "ok" {
		t.Errorf("status = %q, want ok", body.Status)
	}
	if body.Redis {
		t.Error("redis should report false with no reader wired")
	}
	if body.WSClients != 0 {
		t.Errorf("ws_clients = %d, want 0", body.WSClients)
	}
}

func TestReaderlessEndpointsDegrade(t *testing.T) {
	mux, _ := newTestMux(t, ServerConfig{})

	for _, path := range []string{
		"/api/v1/rsi",
		"/api/v1/rsi/history?ticker=NVDA",
		"/api/v1/alerts/recent",
		"/api/v1/portfolio",
	} {
		rec := doJSON(t, mux, http.MethodGet, path, nil, nil)
		if rec.Code != http.StatusServiceUnavailable {
			t.Errorf("%s: status %d, want 503", path, rec.Code)
		}
	}
}
