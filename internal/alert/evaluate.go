// Package alert reduces latest RSI readings to notify / don't-notify
// decisions and formats the batched notification payload.
//
// One evaluation run is stateless: resolve the ticker set and thresholds,
// pull each ticker's series through the data source, compare the latest
// defined RSI against the ticker's threshold. A ticker that cannot be
// evaluated is reported and skipped, never allowed to abort the batch.
package alert

import (
	"context"
	"fmt"
	"log"
	"math"
	"sort"
	"strings"
	"time"

	"momentum-systemv1/internal/indicator"
	"momentum-systemv1/internal/model"
)

// DefaultThreshold is the global RSI alert threshold used when a ticker has
// no stored rule.
const DefaultThreshold = 40.0

// Reading is one ticker's latest defined RSI observation.
type Reading struct {
	Ticker string
	RSI    float64
	Date   time.Time
}

// Match is one ticker whose latest RSI sits at or below its threshold.
type Match struct {
	Ticker    string    `json:"ticker"`
	RSI       float64   `json:"rsi"`
	Threshold float64   `json:"threshold"`
	Date      time.Time `json:"date"`
}

// Unevaluable records a ticker skipped during a run and why.
type Unevaluable struct {
	Ticker string `json:"ticker"`
	Reason string `json:"reason"`
}

// SeriesSource supplies the daily close series for a ticker, oldest first.
type SeriesSource interface {
	Series(ctx context.Context, ticker string) ([]model.Bar, error)
}

// Config holds the knobs of an evaluation run.
type Config struct {
	Period           int     // RSI window, <= 0 means the conventional 14
	DefaultThreshold float64 // fallback threshold, 0 means DefaultThreshold
}

// Evaluator checks the latest RSI of each ticker against its threshold.
type Evaluator struct {
	source SeriesSource
	cfg    Config
}

// New builds an evaluator. Out-of-range config values are normalized rather
// than rejected: the evaluator runs unattended and a bad knob must not take
// the whole job down.
func New(source SeriesSource, cfg Config) *Evaluator {
	if cfg.Period <= 0 {
		cfg.Period = indicator.DefaultPeriod
	}
	if cfg.DefaultThreshold == 0 {
		cfg.DefaultThreshold = DefaultThreshold
	}
	return &Evaluator{source: source, cfg: cfg}
}

// Targets resolves which tickers a run evaluates and their per-ticker
// thresholds. When any stored rules exist their tickers replace the
// watchlist entirely; the watchlist only feeds runs with no rules. Tickers
// are uppercased, deduplicated and sorted.
func Targets(rules []model.AlertRule, watchlist []string) ([]string, map[string]float64) {
	thresholds := make(map[string]float64, len(rules))
	for _, r := range rules {
		if r.Type != "" && r.Type != model.RuleTypeRSIBelow {
			continue
		}
		t := strings.ToUpper(strings.TrimSpace(r.Ticker))
		if t == "" {
			continue
		}
		thresholds[t] = r.Threshold
	}

	if len(thresholds) > 0 {
		tickers := make([]string, 0, len(thresholds))
		for t := range thresholds {
			tickers = append(tickers, t)
		}
		sort.Strings(tickers)
		return tickers, thresholds
	}

	seen := make(map[string]struct{}, len(watchlist))
	tickers := make([]string, 0, len(watchlist))
	for _, t := range watchlist {
		u := strings.ToUpper(strings.TrimSpace(t))
		if u == "" {
			continue
		}
		if _, dup := seen[u]; dup {
			continue
		}
		seen[u] = struct{}{}
		tickers = append(tickers, u)
	}
	sort.Strings(tickers)
	return tickers, nil
}

// Evaluate runs one alert check over the given tickers. Matches come back in
// ticker order; tickers that could not be evaluated are returned separately.
func (e *Evaluator) Evaluate(ctx context.Context, tickers []string, thresholds map[string]float64) ([]Match, []Unevaluable) {
	var matches []Match
	var skipped []Unevaluable

	for _, ticker := range tickers {
		reading, reason := e.latestReading(ctx, ticker)
		if reason != "" {
			log.Printf("[alert] %s: %s", ticker, reason)
			skipped = append(skipped, Unevaluable{Ticker: ticker, Reason: reason})
			continue
		}

		m, matched := Classify(reading, thresholds, e.cfg.DefaultThreshold)
		if matched {
			log.Printf("[alert] %s: RSI %.1f at or below %.1f", ticker, m.RSI, m.Threshold)
			matches = append(matches, m)
		} else {
			log.Printf("[alert] %s: RSI %.1f above %.1f", ticker, m.RSI, m.Threshold)
		}
	}
	return matches, skipped
}

// Classify compares one reading against its resolved threshold. The returned
// Match always carries the resolved threshold; matched reports whether the
// reading sits at or below it. The boundary is inclusive: a reading exactly
// at its threshold matches.
func Classify(r Reading, thresholds map[string]float64, def float64) (Match, bool) {
	if def == 0 {
		def = DefaultThreshold
	}
	m := Match{
		Ticker:    r.Ticker,
		RSI:       r.RSI,
		Threshold: resolveThreshold(thresholds, r.Ticker, def),
		Date:      r.Date,
	}
	return m, r.RSI <= m.Threshold
}

func (e *Evaluator) latestReading(ctx context.Context, ticker string) (Reading, string) {
	series, err := e.source.Series(ctx, ticker)
	if err != nil {
		return Reading{}, fmt.Sprintf("price data unavailable: %v", err)
	}
	if len(series) == 0 {
		return Reading{}, "price data unavailable: empty series"
	}

	rows, err := indicator.Annotate(series, e.cfg.Period)
	if err != nil {
		return Reading{}, fmt.Sprintf("rsi computation failed: %v", err)
	}
	latest, ok := indicator.LatestDefined(rows)
	if !ok {
		return Reading{}, "rsi undefined: series shorter than the window"
	}
	return Reading{Ticker: ticker, RSI: latest.RSI.Value, Date: latest.Date}, ""
}

// resolveThreshold falls back to the default for tickers without a rule and
// for rules stored with a missing or nonsensical threshold.
func resolveThreshold(thresholds map[string]float64, ticker string, def float64) float64 {
	t, ok := thresholds[ticker]
	if !ok || math.IsNaN(t) || t <= 0 {
		return def
	}
	return t
}
