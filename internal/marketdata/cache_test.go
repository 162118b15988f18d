package marketdata

import (
	"context"
	"errors"
	"testing"
	"time"

	"momentum-systemv1/internal/model"
)

type memStore struct {
	bars  map[string][]model.Bar
	meta  map[string]model.BarMeta
	saves int
}

func newMemStore() *memStore {
	return &memStore{bars: map[string][]model.Bar{}, meta: map[string]model.BarMeta{}}
}

func (m *memStore) SaveBars(ticker, rng string, bars []model.Bar) error {
	m.bars[ticker] = bars
	m.meta[ticker] = model.BarMeta{Ticker: ticker, FetchedAt: time.Now(), Range: rng}
	m.saves++
	return nil
}

func (m *memStore) ReadBars(ticker string) ([]model.Bar, error) {
	return m.bars[ticker], nil
}

func (m *memStore) Meta(ticker string) (model.BarMeta, bool, error) {
	meta, ok := m.meta[ticker]
	return meta, ok, nil
}

func (m *memStore) Close() error { return nil }

func (m *memStore) preload(ticker, rng string, fetchedAt time.Time, bars []model.Bar) {
	m.bars[ticker] = bars
	m.meta[ticker] = model.BarMeta{Ticker: ticker, FetchedAt: fetchedAt, Range: rng}
}

func TestCache_ServesFreshWithoutProviderHit(t *testing.T) {
	store := newMemStore()
	store.preload("NVDA", "1y", time.Now(), recentBars(10))
	provider := &stubProvider{name: "yahoo", bars: recentBars(30)}

	cache := NewCache(provider, store, 12*time.Hour)
	bars, err := cache.DailyBars(context.Background(), "NVDA", Range1Y)
	if err != nil {
		t.Fatal(err)
	}
	if len(bars) != 10 {
		t.Errorf("got %d bars, want the 10 cached ones", len(bars))
	}
	if provider.calls != 0 {
		t.Error("provider must not be hit while the cache is fresh")
	}
}

func TestCache_RefreshesWhenStale(t *testing.T) {
	store := newMemStore()
	store.preload("NVDA", "1y", time.Now().Add(-13*time.Hour), recentBars(10))
	provider := &stubProvider{name: "yahoo", bars: recentBars(11)}

	cache := NewCache(provider, store, 12*time.Hour)
	bars, err := cache.DailyBars(context.Background(), "NVDA", Range1Y)
	if err != nil {
		t.Fatal(err)
	}
	if provider.calls != 1 {
		t.Fatal("stale cache must refresh through the provider")
	}
	if len(bars) != 11 {
		t.Errorf("got %d bars, want the provider's 11", len(bars))
	}
	if store.saves != 1 {
		t.Error("refreshed bars must be written back to the store")
	}
}

func TestCache_RefreshesWhenCachedRangeTooNarrow(t *testing.T) {
	// A fresh 1mo fetch cannot answer a 1y request.
	store := newMemStore()
	store.preload("NVDA", "1mo", time.Now(), recentBars(20))
	provider := &stubProvider{name: "yahoo", bars: recentBars(250)}

	cache := NewCache(provider, store, 12*time.Hour)
	bars, err := cache.DailyBars(context.Background(), "NVDA", Range1Y)
	if err != nil {
		t.Fatal(err)
	}
	if provider.calls != 1 {
		t.Fatal("narrow cached range must trigger a refetch")
	}
	if len(bars) != 250 {
		t.Errorf("got %d bars, want 250", len(bars))
	}
}

func TestCache_ClipsWiderCachedRange(t *testing.T) {
	// 400 cached days against a 6mo request: only the trailing window comes
	// back, without a provider hit.
	store := newMemStore()
	store.preload("NVDA", "2y", time.Now(), recentBars(400))
	provider := &stubProvider{name: "yahoo"}

	cache := NewCache(provider, store, 12*time.Hour)
	bars, err := cache.DailyBars(context.Background(), "NVDA", Range6Mo)
	if err != nil {
		t.Fatal(err)
	}
	if provider.calls != 0 {
		t.Error("wider cache still answers a narrower request")
	}
	if len(bars) == 0 || len(bars) >= 400 {
		t.Fatalf("got %d bars, want a clipped trailing window", len(bars))
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -Range6Mo.Days())
	if !bars[0].Date.After(cutoff) {
		t.Errorf("first bar %v precedes the 6mo cutoff %v", bars[0].Date, cutoff)
	}
}

func TestCache_ServesStaleWhenProviderDown(t *testing.T) {
	store := newMemStore()
	store.preload("NVDA", "1y", time.Now().Add(-48*time.Hour), recentBars(10))
	provider := &stubProvider{name: "yahoo", err: errors.New("dns failure")}

	cache := NewCache(provider, store, 12*time.Hour)
	bars, err := cache.DailyBars(context.Background(), "NVDA", Range1Y)
	if err != nil {
		t.Fatalf("stale cache should have answered, got %v", err)
	}
	if len(bars) != 10 {
		t.Errorf("got %d bars, want the 10 stale ones", len(bars))
	}
}

func TestCache_ErrorWhenNothingAvailable(t *testing.T) {
	provider := &stubProvider{name: "yahoo", err: errors.New("dns failure")}
	cache := NewCache(provider, newMemStore(), 12*time.Hour)

	if _, err := cache.DailyBars(context.Background(), "NVDA", Range1Y); err == nil {
		t.Fatal("no cache and no provider must surface an error")
	}
}
