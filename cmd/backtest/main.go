// cmd/backtest replays daily bars through the long-only RSI threshold
// strategy and prints a per-ticker summary against buy-and-hold.
//
// Usage:
//
//	go run ./cmd/backtest -ticker NVDA,MU -range 3y -buy 40 -sell 70
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"momentum-systemv1/config"
	"momentum-systemv1/internal/backtest"
	"momentum-systemv1/internal/marketdata"
	"momentum-systemv1/internal/model"
	sqlitestore "momentum-systemv1/internal/store/sqlite"
)

func main() {
	log.SetFlags(0)

	app := config.Load()

	tickersFlag := flag.String("ticker", app.Tickers, "comma-separated tickers")
	rangeFlag := flag.String("range", "3y", "bar range: 1mo, 6mo, 1y, 2y, 3y, 5y")
	buy := flag.Float64("buy", app.BacktestBuy, "enter when RSI <= buy and flat")
	sell := flag.Float64("sell", app.BacktestSell, "exit when RSI >= sell and holding")
	period := flag.Int("period", app.RSIPeriod, "RSI window length")
	csvPath := flag.String("csv", "", "equity curve CSV path (gets a _TICKER suffix with multiple tickers)")
	journalFlag := flag.Bool("journal", false, "record simulated fills to the sim_trades table")
	dbPath := flag.String("db", app.SQLitePath, "SQLite path for the bar cache and trade journal")
	offline := flag.Bool("offline", false, "use cached bars only, no network")
	flag.Parse()

	if *buy >= *sell {
		log.Fatalf("[backtest] buy threshold must be below sell (got buy=%.1f sell=%.1f)", *buy, *sell)
	}
	if *period < 1 {
		log.Fatalf("[backtest] period must be at least 1, got %d", *period)
	}

	tickers := splitTickers(*tickersFlag)
	if len(tickers) == 0 {
		log.Fatal("[backtest] no tickers given")
	}
	rng := marketdata.ParseRange(*rangeFlag)

	store, err := sqlitestore.Open(*dbPath)
	if err != nil {
		if *offline {
			log.Fatalf("[backtest] sqlite open failed: %v (-offline needs the cache)", err)
		}
		log.Printf("[backtest] sqlite open failed: %v (continuing without cache)", err)
		store = nil
	}
	defer func() {
		if store != nil {
			store.Close()
		}
	}()

	fetch := buildFetcher(app, store, rng, *offline)

	var journal *backtest.Journal
	runID := uuid.NewString()
	if *journalFlag {
		journal, err = backtest.NewJournal(*dbPath)
		if err != nil {
			log.Fatalf("[backtest] journal open failed: %v", err)
		}
		defer journal.Close()
	}

	fmt.Printf("backtesting %d tickers over %s (period %d, buy %.0f, sell %.0f)\n\n",
		len(tickers), rng, *period, *buy, *sell)

	ctx := context.Background()
	var unevaluable, failed []string

	for _, ticker := range tickers {
		bars, err := fetch(ctx, ticker)
		if err != nil {
			log.Printf("[backtest] %s: %v", ticker, err)
			failed = append(failed, ticker)
			continue
		}

		res, err := backtest.RunSeries(bars, backtest.Params{
			Ticker: ticker, Buy: *buy, Sell: *sell, Period: *period,
		})
		if err != nil {
			log.Printf("[backtest] %s: %v", ticker, err)
			failed = append(failed, ticker)
			continue
		}
		if res == nil {
			unevaluable = append(unevaluable, ticker)
			continue
		}

		printResult(res)

		if *csvPath != "" {
			path := curvePath(*csvPath, ticker, len(tickers) > 1)
			if err := backtest.WriteEquityCSV(res.Curve, path); err != nil {
				log.Printf("[backtest] %s: equity csv: %v", ticker, err)
			} else {
				fmt.Printf("  equity curve written to %s\n", path)
			}
		}
		if journal != nil && len(res.Fills) > 0 {
			if err := journal.RecordRun(runID, res.Fills); err != nil {
				log.Printf("[backtest] %s: journal: %v", ticker, err)
			}
		}
		fmt.Println()
	}

	if len(unevaluable) > 0 {
		fmt.Printf("unevaluable (insufficient data): %s\n", strings.Join(unevaluable, ", "))
	}
	if len(failed) > 0 {
		fmt.Printf("failed to fetch: %s\n", strings.Join(failed, ", "))
	}
	if journal != nil {
		fmt.Printf("fills journaled under run %s\n", runID)
	}
}

// buildFetcher returns the bar source: the cached provider chain, or the
// local cache alone in offline mode.
func buildFetcher(app *config.Config, store *sqlitestore.Store, rng marketdata.Range, offline bool) func(context.Context, string) ([]model.Bar, error) {
	if offline {
		cut := time.Now().UTC().AddDate(0, 0, -rng.Days())
		return func(ctx context.Context, ticker string) ([]model.Bar, error) {
			bars, err := store.ReadBars(ticker)
			if err != nil {
				return nil, err
			}
			if len(bars) == 0 {
				return nil, fmt.Errorf("no cached bars for %s", ticker)
			}
			for i, b := range bars {
				if !b.Date.Before(cut) {
					return bars[i:], nil
				}
			}
			return nil, fmt.Errorf("cached bars for %s all predate the %s window", ticker, rng)
		}
	}

	yahoo := marketdata.NewYahooClient(app.YahooBaseURL)
	var chain marketdata.Provider
	alpaca := marketdata.NewAlpacaClient("", app.AlpacaKeyID, app.AlpacaSecretKey, "")
	if alpaca.Enabled() {
		chain = marketdata.NewChain(alpaca, yahoo)
	} else {
		chain = marketdata.NewChain(yahoo)
	}
	var provider marketdata.Provider = chain
	if store != nil {
		provider = marketdata.NewCache(chain, store, app.CacheTTL())
	}
	return func(ctx context.Context, ticker string) ([]model.Bar, error) {
		return provider.DailyBars(ctx, ticker, rng)
	}
}

func printResult(res *backtest.Result) {
	border := strings.Repeat("═", 46)
	row := func(format string, args ...interface{}) {
		fmt.Printf("║ %-44s ║\n", fmt.Sprintf(format, args...))
	}
	fmt.Printf("╔%s╗\n", border)
	row("%-8s %s → %s", res.Ticker,
		res.StartDate.Format("2006-01-02"), res.EndDate.Format("2006-01-02"))
	fmt.Printf("╠%s╣\n", border)
	row("strategy return:  %+9.2f%%", res.StrategyReturn*100)
	row("buy-hold return:  %+9.2f%%", res.BuyHoldReturn*100)
	row("trades:           %d", res.Trades)
	row("latest RSI:       %.1f", res.LatestRSI)
	fmt.Printf("╚%s╝\n", border)
}

func splitTickers(s string) []string {
	parts := strings.Split(s, ",")
	seen := make(map[string]bool, len(parts))
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		t := strings.ToUpper(strings.TrimSpace(p))
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

// curvePath suffixes the ticker into the CSV path when several tickers
// share one -csv flag.
func curvePath(path, ticker string, multi bool) string {
	if !multi {
		return path
	}
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + "_" + ticker + ext
}
