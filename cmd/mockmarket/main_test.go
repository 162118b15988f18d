package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"momentum-systemv1/internal/marketdata"
)

func TestSeriesIsDeterministic(t *testing.T) {
	m := &market{seed: 1}
	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC)

	ts1, cl1 := m.series("NVDA", from, to)
	ts2, cl2 := m.series("NVDA", from, to)
	if len(ts1) == 0 || len(ts1) != len(ts2) {
		t.Fatalf("lengths differ: %d vs %d", len(ts1), len(ts2))
	}
	for i := range cl1 {
		if ts1[i] != ts2[i] {
			t.Fatalf("timestamp %d differs", i)
		}
		if (cl1[i] == nil) != (cl2[i] == nil) {
			t.Fatalf("halt %d differs", i)
		}
		if cl1[i] != nil && *cl1[i] != *cl2[i] {
			t.Fatalf("close %d differs: %v vs %v", i, *cl1[i], *cl2[i])
		}
	}

	_, other := m.series("GOOG", from, to)
	same := len(other) == len(cl1)
	if same {
		for i := range cl1 {
			if cl1[i] == nil || other[i] == nil || *cl1[i] != *other[i] {
				same = false
				break
			}
		}
	}
	if same {
		t.Error("different symbols produced identical walks")
	}
}

// A date's close must not depend on the requested window, otherwise the bar
// cache and a direct fetch would disagree on history.
func TestSeriesAnchoredAcrossWindows(t *testing.T) {
	m := &market{seed: 1}
	to := time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC)

	longTS, longCl := m.series("NVDA", time.Date(2023, 7, 1, 0, 0, 0, 0, time.UTC), to)
	shortTS, shortCl := m.series("NVDA", time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), to)

	byTS := make(map[int64]*float64, len(longTS))
	for i, ts := range longTS {
		byTS[ts] = longCl[i]
	}
	if len(shortTS) == 0 {
		t.Fatal("short window returned no bars")
	}
	for i, ts := range shortTS {
		long, ok := byTS[ts]
		if !ok {
			t.Fatalf("date %d missing from the longer window", ts)
		}
		if (long == nil) != (shortCl[i] == nil) {
			t.Fatalf("halt disagrees at %d", ts)
		}
		if long != nil && *long != *shortCl[i] {
			t.Fatalf("close disagrees at %d: %v vs %v", ts, *long, *shortCl[i])
		}
	}
}

func TestChartHandlerServesYahooClient(t *testing.T) {
	m := &market{seed: 1}
	mux := http.NewServeMux()
	mux.HandleFunc("/v8/finance/chart/", m.chartHandler)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	y := marketdata.NewYahooClient(srv.URL)
	bars, err := y.DailyBars(context.Background(), "NVDA", marketdata.Range6Mo)
	if err != nil {
		t.Fatalf("DailyBars: %v", err)
	}
	if len(bars) < 80 {
		t.Fatalf("got %d bars, want a dense six months", len(bars))
	}
	for i, b := range bars {
		if b.Close <= 0 {
			t.Errorf("bar %d: non-positive close %v", i, b.Close)
		}
		if i > 0 && !bars[i-1].Date.Before(b.Date) {
			t.Errorf("bar %d: dates not ascending", i)
		}
	}
}
