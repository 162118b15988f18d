package metrics

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func healthResponse(t *testing.T, h *HealthStatus) (int, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode healthz body: %v", err)
	}
	return rec.Code, body
}

func TestHealthzHealthy(t *testing.T) {
	h := NewHealthStatus()
	h.SetProviderOK(true)
	h.SetRedisConnected(true)
	h.SetSQLiteOK(true)
	h.SetWatchlist([]string{"NVDA", "AVGO"})
	h.SetLastRefreshTime(time.Now().Add(-2 * time.Minute))

	code, body := healthResponse(t, h)
	if code != http.StatusOK {
		t.Errorf("status code = %d, want 200", code)
	}
	if body["status"] != "healthy" {
		t.Errorf("status = %v, want healthy", body["status"])
	}
	if body["refresh_age"] == "" {
		t.Error("expected a refresh_age once a refresh has happened")
	}
}

func TestHealthzDegradedWhenProviderDown(t *testing.T) {
	h := NewHealthStatus()
	h.SetProviderOK(false)
	h.SetRedisConnected(true)
	h.SetSQLiteOK(true)

	code, body := healthResponse(t, h)
	if code != http.StatusServiceUnavailable {
		t.Errorf("status code = %d, want 503", code)
	}
	if body["status"] != "degraded" {
		t.Errorf("status = %v, want degraded", body["status"])
	}
}

func TestHealthzUnhealthyWhenBothStoresDown(t *testing.T) {
	h := NewHealthStatus()
	h.SetProviderOK(true)
	h.SetRedisConnected(false)
	h.SetSQLiteOK(false)

	code, body := healthResponse(t, h)
	if code != http.StatusServiceUnavailable {
		t.Errorf("status code = %d, want 503", code)
	}
	if body["status"] != "unhealthy" {
		t.Errorf("status = %v, want unhealthy", body["status"])
	}
}
