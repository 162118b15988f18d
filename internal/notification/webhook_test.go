package notification

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestWebhookNotifierPostsPayload(t *testing.T) {
	var got map[string]interface{}
	var contentType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		contentType = r.Header.Get("Content-Type")
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL)
	err := n.Send(context.Background(), Alert{
		Level:   AlertWarning,
		Title:   "RSI Alert",
		Message: "NVDA RSI 32.1",
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if contentType != "application/json" {
		t.Errorf("content type = %q", contentType)
	}
	if got["level"] != "WARNING" || got["title"] != "RSI Alert" || got["message"] != "NVDA RSI 32.1" {
		t.Errorf("payload = %v", got)
	}
	if got["ts"] == nil || got["source"] == nil {
		t.Errorf("payload missing ts/source: %v", got)
	}
}

func TestWebhookNotifierSurfacesRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL)
	err := n.Send(context.Background(), Alert{Level: AlertInfo, Message: "x"})
	if err == nil {
		t.Fatal("expected an error for a 429 response")
	}
	if !strings.Contains(err.Error(), "429") || !strings.Contains(err.Error(), "rate limited") {
		t.Errorf("error = %v, want the status and the body reason", err)
	}
}
