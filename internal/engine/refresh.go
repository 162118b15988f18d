package engine

import (
	"context"
	"log"
	"time"

	"momentum-systemv1/internal/indicator"
	"momentum-systemv1/internal/markethours"
	"momentum-systemv1/internal/model"
)

// refreshLoop drives periodic refreshes. Scheduled ticks are skipped on
// weekends and market holidays; explicit refreshNow signals (watchlist
// changes) always run so a new rule gets data immediately.
func (svc *Service) refreshLoop(ctx context.Context) {
	ticker := time.NewTicker(svc.cfg.RefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := time.Now()
			if !markethours.IsTradingDay(now) {
				log.Printf("[engine] skipping refresh: %s", markethours.StatusString(now))
				svc.prom.MarketState.Set(0)
				continue
			}
			svc.refreshAll(ctx)
		case <-svc.refreshNow:
			svc.refreshAll(ctx)
		}
	}
}

// refreshAll runs one refresh cycle over the whole watchlist, publishes the
// fresh readings as a batch, and checkpoints indicator state.
func (svc *Service) refreshAll(ctx context.Context) {
	start := time.Now()
	tickers := svc.watchlist()

	if markethours.IsMarketOpen(start) {
		svc.prom.MarketState.Set(1)
	} else {
		svc.prom.MarketState.Set(0)
	}

	results := make([]model.RSIResult, 0, len(tickers))
	fetched := 0
	for _, t := range tickers {
		res, err := svc.refreshTicker(ctx, t)
		if err != nil {
			svc.prom.RefreshErrors.WithLabelValues(t).Inc()
			log.Printf("[engine] %s: refresh failed: %v", t, err)
			continue
		}
		fetched++
		if res != nil {
			results = append(results, *res)
		}
	}

	svc.prom.RefreshCycles.Inc()
	svc.prom.TickersRefreshed.Add(float64(fetched))
	svc.prom.RefreshDur.Observe(time.Since(start).Seconds())
	svc.health.SetProviderOK(fetched > 0 || len(tickers) == 0)
	if fetched > 0 {
		svc.prom.LastRefreshUnix.SetToCurrentTime()
		svc.health.SetLastRefreshTime(time.Now())
	}

	if len(results) > 0 {
		svc.publisher.PublishRSI(ctx, results)
		svc.prom.ResultsPublished.Add(float64(len(results)))
	}

	log.Printf("[engine] refresh done: %d/%d tickers, %d readings, %s",
		fetched, len(tickers), len(results), time.Since(start).Round(time.Millisecond))

	svc.saveSnapshot()
}

// refreshTicker fetches bars for one ticker and advances its streaming RSI.
// A nil result with nil error means the RSI is still undefined (too few
// bars), which is not a failure.
func (svc *Service) refreshTicker(ctx context.Context, ticker string) (*model.RSIResult, error) {
	fetchStart := time.Now()
	bars, err := svc.provider.DailyBars(ctx, ticker, svc.cfg.BarRange)
	svc.prom.ProviderLatency.Observe(time.Since(fetchStart).Seconds())
	if err != nil {
		svc.prom.ProviderRequests.WithLabelValues(svc.provider.Name(), "error").Inc()
		return nil, err
	}
	svc.prom.ProviderRequests.WithLabelValues(svc.provider.Name(), "ok").Inc()

	svc.mu.Lock()
	reading := svc.registry.Update(ticker, bars)
	if !reading.Value.Valid {
		svc.mu.Unlock()
		log.Printf("[engine] %s: rsi undefined (%d bars, need %d+1)", ticker, len(bars), svc.cfg.Period)
		return nil, nil
	}
	res := readingResult(reading, svc.cfg.Period)
	svc.latest[ticker] = res
	svc.mu.Unlock()

	svc.prom.RSILatest.WithLabelValues(ticker).Set(res.Value)
	return &res, nil
}

// saveSnapshot checkpoints the registry to SQLite.
func (svc *Service) saveSnapshot() {
	if svc.store == nil {
		return
	}

	svc.mu.RLock()
	snap := indicator.SnapshotRegistry(svc.registry)
	svc.mu.RUnlock()

	raw, err := snap.Marshal()
	if err != nil {
		log.Printf("[engine] snapshot marshal: %v", err)
		return
	}
	if err := svc.store.SaveSnapshotJSON(raw); err != nil {
		log.Printf("[engine] snapshot save: %v", err)
		return
	}
	svc.prom.SnapshotSaves.Inc()
}
