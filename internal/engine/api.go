package engine

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sort"
	"strings"

	"momentum-systemv1/internal/model"
)

// startHTTP launches the engine's read API.
func (svc *Service) startHTTP(ctx context.Context) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/rsi", svc.handleRSI)
	mux.HandleFunc("/api/v1/rsi/all", svc.handleRSIAll)
	mux.HandleFunc("/healthz", svc.health.ServeHTTP)

	svc.apiSrv = &http.Server{Addr: svc.cfg.HTTPAddr, Handler: mux}
	go func() {
		log.Printf("[engine] HTTP server on %s (/api/v1/rsi, /api/v1/rsi/all, /healthz)", svc.cfg.HTTPAddr)
		if err := svc.apiSrv.ListenAndServe(); err != http.ErrServerClosed {
			log.Printf("[engine] HTTP server error: %v", err)
		}
	}()
}

func (svc *Service) stopHTTP(ctx context.Context) {
	if svc.apiSrv != nil {
		svc.apiSrv.Shutdown(ctx)
	}
}

// handleRSI serves GET /api/v1/rsi?ticker=NVDA with the latest reading.
func (svc *Service) handleRSI(w http.ResponseWriter, r *http.Request) {
	setCORS(w)
	w.Header().Set("Content-Type", "application/json")

	ticker := strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("ticker")))
	if ticker == "" {
		http.Error(w, `{"error":"ticker query parameter is required"}`, http.StatusBadRequest)
		return
	}

	svc.mu.RLock()
	res, ok := svc.latest[ticker]
	svc.mu.RUnlock()

	if !ok {
		http.Error(w, `{"error":"no reading for `+ticker+`"}`, http.StatusNotFound)
		return
	}
	json.NewEncoder(w).Encode(res)
}

// handleRSIAll serves GET /api/v1/rsi/all with every tracked reading.
func (svc *Service) handleRSIAll(w http.ResponseWriter, r *http.Request) {
	setCORS(w)
	w.Header().Set("Content-Type", "application/json")

	svc.mu.RLock()
	results := make([]model.RSIResult, 0, len(svc.latest))
	for _, res := range svc.latest {
		results = append(results, res)
	}
	svc.mu.RUnlock()

	sort.Slice(results, func(i, j int) bool { return results[i].Ticker < results[j].Ticker })

	json.NewEncoder(w).Encode(map[string]interface{}{
		"count":   len(results),
		"period":  svc.cfg.Period,
		"results": results,
	})
}

func setCORS(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
}

// startRulesSubscriber listens on Redis pub/sub for rule changes and
// reloads the watchlist without a restart.
func (svc *Service) startRulesSubscriber(ctx context.Context) {
	go func() {
		pubsub := svc.reader.SubscribeChannel(ctx, model.RulesChangedChannel)
		if pubsub == nil {
			log.Printf("[engine] WARNING: could not subscribe to %s", model.RulesChangedChannel)
			return
		}
		defer pubsub.Close()
		log.Printf("[engine] subscribed to %s for watchlist reloads", model.RulesChangedChannel)

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-ch:
				if !ok {
					return
				}
				svc.mergeRuleTickers(ctx)
				log.Printf("[engine] rules changed, watchlist now %v", svc.watchlist())
				// Kick a refresh so new tickers get data right away.
				select {
				case svc.refreshNow <- struct{}{}:
				default:
				}
			}
		}
	}()
}
