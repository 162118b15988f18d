package marketdata

import (
	"context"
	"fmt"
	"log"
	"time"

	"momentum-systemv1/internal/model"
)

// DefaultCacheTTL matches the refresh cadence of daily bars: twice a day is
// plenty for series that gain one row per session.
const DefaultCacheTTL = 12 * time.Hour

// Cache serves bars from the local store while the last fetch is fresh and
// covers the requested lookback, refreshing through the wrapped provider
// otherwise. When the provider is down, stale cached bars are served as the
// last resort rather than failing the caller.
type Cache struct {
	provider Provider
	store    model.BarStore
	ttl      time.Duration
}

// NewCache wraps a provider with the bar store.
func NewCache(provider Provider, store model.BarStore, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Cache{provider: provider, store: store, ttl: ttl}
}

func (c *Cache) Name() string { return c.provider.Name() + "+cache" }

func (c *Cache) DailyBars(ctx context.Context, ticker string, rng Range) ([]model.Bar, error) {
	meta, ok, err := c.store.Meta(ticker)
	if err != nil {
		log.Printf("[marketdata] %s: cache meta read failed: %v", ticker, err)
		ok = false
	}

	fresh := ok &&
		time.Since(meta.FetchedAt) <= c.ttl &&
		ParseRange(meta.Range).Days() >= rng.Days()

	if fresh {
		bars, err := c.store.ReadBars(ticker)
		if err != nil {
			log.Printf("[marketdata] %s: cache read failed: %v", ticker, err)
		} else if len(bars) > 0 {
			return clipToRange(bars, rng), nil
		}
	}

	bars, err := c.provider.DailyBars(ctx, ticker, rng)
	if err != nil || len(bars) == 0 {
		// Last resort: a stale cache beats no data at all.
		cached, cerr := c.store.ReadBars(ticker)
		if cerr == nil && len(cached) > 0 {
			log.Printf("[marketdata] %s: provider unavailable, serving stale cache (%d bars)", ticker, len(cached))
			return clipToRange(cached, rng), nil
		}
		if err == nil {
			err = fmt.Errorf("marketdata: no bars for %s", ticker)
		}
		return nil, err
	}

	if err := c.store.SaveBars(ticker, string(rng), bars); err != nil {
		log.Printf("[marketdata] %s: cache write failed: %v", ticker, err)
	}
	return bars, nil
}

// clipToRange trims a cached series that spans more history than requested.
func clipToRange(bars []model.Bar, rng Range) []model.Bar {
	cutoff := time.Now().UTC().AddDate(0, 0, -rng.Days())
	for i, b := range bars {
		if b.Date.After(cutoff) {
			return bars[i:]
		}
	}
	return nil
}
