// cmd/mockmarket - Development stand-in for the Yahoo chart endpoint.
// Point YAHOO_BASE_URL at it and every binary runs offline against a
// deterministic market: a symbol's walk is seeded by its name and anchored
// to a fixed epoch, so cached bars, backtests and live refreshes all agree
// on the close for any given date.
//
// Response JSON shape matches the chart API:
//
//	{"chart":{"result":[{"timestamp":[...],"indicators":{"quote":[{"close":[...]}]}}],"error":null}}
//
// Config (env vars):
//
//	MOCKMARKET_ADDR  - listen address (default ":8099")
//	MOCKMARKET_SEED  - universe seed; change it to reroll every series (default "1")
package main

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
	"log"
	"math/rand"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"momentum-systemv1/internal/markethours"
)

// walkAnchor is where every walk starts. Anchoring to a fixed date keeps a
// date's close independent of the requested window.
var walkAnchor = time.Date(2020, 1, 2, 0, 0, 0, 0, time.UTC)

// basePrices seeds familiar symbols near their real neighborhoods so dev
// dashboards look plausible. Anything else derives a base from its name.
var basePrices = map[string]float64{
	"NVDA":  120,
	"AVGO":  170,
	"NBIS":  40,
	"MU":    110,
	"GOOG":  180,
	"SNDK":  55,
	"STX":   100,
	"JPY=X": 150,
}

type chartResult struct {
	Timestamp  []int64 `json:"timestamp"`
	Indicators struct {
		Quote []struct {
			Close []*float64 `json:"close"`
		} `json:"quote"`
	} `json:"indicators"`
}

type chartResponse struct {
	Chart struct {
		Result []chartResult `json:"result"`
		Error  interface{}   `json:"error"`
	} `json:"chart"`
}

type market struct {
	seed int64
}

func symbolSeed(symbol string, universe int64) int64 {
	h := fnv.New64a()
	h.Write([]byte(strings.ToUpper(symbol)))
	return int64(h.Sum64()) ^ universe
}

func basePrice(symbol string, seed int64) float64 {
	if p, ok := basePrices[strings.ToUpper(symbol)]; ok {
		return p
	}
	if seed < 0 {
		seed = -seed
	}
	return 20 + float64(seed%400)
}

// series walks the symbol from the anchor through `to`, collecting trading
// days inside [from, to]. Roughly one session in eighty comes back with a
// null close, which exercises the client's halt handling.
func (m *market) series(symbol string, from, to time.Time) ([]int64, []*float64) {
	seed := symbolSeed(symbol, m.seed)
	rng := rand.New(rand.NewSource(seed))
	price := basePrice(symbol, seed)

	var timestamps []int64
	var closes []*float64
	for d := walkAnchor; !d.After(to); d = d.AddDate(0, 0, 1) {
		if !markethours.IsTradingDay(d) {
			continue
		}
		pct := (rng.Float64()*4 - 2) / 100
		price *= 1 + pct
		if price < 1 {
			price = 1
		}
		halted := rng.Intn(80) == 0

		if d.Before(from) {
			continue
		}
		// 14:30 UTC is the cash open; the client only keeps the date.
		timestamps = append(timestamps, time.Date(d.Year(), d.Month(), d.Day(), 14, 30, 0, 0, time.UTC).Unix())
		if halted {
			closes = append(closes, nil)
			continue
		}
		c := float64(int(price*100)) / 100
		closes = append(closes, &c)
	}
	return timestamps, closes
}

func (m *market) chartHandler(w http.ResponseWriter, r *http.Request) {
	symbol := strings.TrimPrefix(r.URL.Path, "/v8/finance/chart/")
	if symbol == "" || strings.Contains(symbol, "/") {
		http.NotFound(w, r)
		return
	}

	now := time.Now().UTC()
	from := now.AddDate(-1, 0, 0)
	to := now
	if v, err := strconv.ParseInt(r.URL.Query().Get("period1"), 10, 64); err == nil && v > 0 {
		from = time.Unix(v, 0).UTC()
	}
	if v, err := strconv.ParseInt(r.URL.Query().Get("period2"), 10, 64); err == nil && v > 0 {
		to = time.Unix(v, 0).UTC()
	}
	if to.After(now) {
		to = now
	}

	timestamps, closes := m.series(symbol, from, to)

	var resp chartResponse
	var res chartResult
	res.Timestamp = timestamps
	res.Indicators.Quote = []struct {
		Close []*float64 `json:"close"`
	}{{Close: closes}}
	resp.Chart.Result = []chartResult{res}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
	log.Printf("[mockmarket] %s: served %d bars (%s..%s)",
		symbol, len(timestamps), from.Format("2006-01-02"), to.Format("2006-01-02"))
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	log.Println("[mockmarket] starting mock chart server...")

	addr := envOrDefault("MOCKMARKET_ADDR", ":8099")
	seed := envInt64OrDefault("MOCKMARKET_SEED", 1)

	m := &market{seed: seed}

	http.HandleFunc("/v8/finance/chart/", m.chartHandler)
	http.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintln(w, `{"status":"ok","service":"mockmarket"}`)
	})

	log.Printf("[mockmarket] listening on %s (set YAHOO_BASE_URL=http://localhost%s)", addr, addr)
	if err := http.ListenAndServe(addr, nil); err != nil {
		log.Fatalf("[mockmarket] server error: %v", err)
	}
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt64OrDefault(key string, def int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return def
}
