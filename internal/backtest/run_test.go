package backtest

import (
	"math"
	"testing"
	"time"

	"momentum-systemv1/internal/indicator"
	"momentum-systemv1/internal/model"
)

// series builds daily bars from closes, one calendar day apart.
func series(closes ...float64) []model.Bar {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]model.Bar, len(closes))
	for i, c := range closes {
		bars[i] = model.Bar{Date: start.AddDate(0, 0, i), Close: c}
	}
	return bars
}

func assertClose(t *testing.T, label string, got, want, tol float64) {
	t.Helper()
	if math.Abs(got-want) > tol {
		t.Errorf("%s: got %.6f, want %.6f (diff %.6f)", label, got, want, math.Abs(got-want))
	}
}

// ────────────────────────────────────────────────────────────────────────────
// Core fold semantics. Period 1 keeps the oscillator binary, which makes the
// trade placement fully predictable: a window of one difference yields RSI 0
// after a down day and RSI 100 after an up or flat day.
// ────────────────────────────────────────────────────────────────────────────

func TestRun_TwoTradeScenario(t *testing.T) {
	// Closes: 105, 100, 120, 125. With period 1, replay starts at the second
	// bar. Row-by-row:
	//   100 (down day, RSI 0):   0 <= 40, buy, shares = 1/100, equity 1.00
	//   120 (up day, RSI 100): 100 >= 70, sell, cash = 120/100,  equity 1.20
	//   125 (up day, RSI 100): flat, RSI too high to re-enter,   equity 1.20
	res, err := RunSeries(series(105, 100, 120, 125), Params{
		Ticker: "NVDA", Buy: 40, Sell: 70, Period: 1,
	})
	if err != nil {
		t.Fatal(err)
	}
	if res == nil {
		t.Fatal("expected a result")
	}

	if res.Trades != 2 {
		t.Errorf("trades = %d, want 2", res.Trades)
	}
	assertClose(t, "strategy return", res.StrategyReturn, 0.20, 0.0000001)
	assertClose(t, "buy-hold return", res.BuyHoldReturn, 0.25, 0.0000001) // 125/100 - 1
	assertClose(t, "latest rsi", res.LatestRSI, 100.0, 0.0000001)

	if len(res.Curve) != 3 {
		t.Fatalf("curve has %d points, want 3", len(res.Curve))
	}
	for i, want := range []float64{1.00, 1.20, 1.20} {
		assertClose(t, "equity", res.Curve[i].Equity, want, 0.0000001)
	}

	// Replay covers the second through fourth bars.
	if !res.StartDate.Equal(time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("start date %v", res.StartDate)
	}
	if !res.EndDate.Equal(time.Date(2024, 1, 4, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("end date %v", res.EndDate)
	}

	if len(res.Fills) != 2 {
		t.Fatalf("fills = %d, want 2", len(res.Fills))
	}
	buy, sell := res.Fills[0], res.Fills[1]
	if buy.Action != ActionBuy || sell.Action != ActionSell {
		t.Fatalf("fill actions %s, %s", buy.Action, sell.Action)
	}
	assertClose(t, "buy price", buy.Price, 100, 0.0000001)
	assertClose(t, "buy shares", buy.Shares, 0.01, 0.0000001)
	assertClose(t, "sell price", sell.Price, 120, 0.0000001)
}

func TestRun_OpenPositionMarkedToMarket(t *testing.T) {
	// Buy at 100, then the series ends while still holding. No forced
	// liquidation: the final equity is the mark at the last close.
	//   100 (RSI 0): buy, shares = 0.01
	//   95  (RSI 0): holding, no sell signal, equity = 0.01 * 95 = 0.95
	res, err := RunSeries(series(105, 100, 95), Params{
		Ticker: "MU", Buy: 40, Sell: 70, Period: 1,
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Trades != 1 {
		t.Errorf("trades = %d, want 1", res.Trades)
	}
	assertClose(t, "strategy return", res.StrategyReturn, -0.05, 0.0000001)
	if len(res.Fills) != 1 || res.Fills[0].Action != ActionBuy {
		t.Fatalf("expected a single open buy, got %v", res.Fills)
	}
}

func TestRun_ThresholdBoundariesInclusive(t *testing.T) {
	// Buy triggers at RSI <= threshold and sell at RSI >= threshold, both
	// inclusive. With thresholds at the oscillator's own extremes the binary
	// period-1 readings land exactly on them.
	res, err := RunSeries(series(105, 100, 120), Params{
		Ticker: "STX", Buy: 0, Sell: 100, Period: 1,
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Trades != 2 {
		t.Errorf("trades = %d, want 2 (boundaries must be inclusive)", res.Trades)
	}
	assertClose(t, "strategy return", res.StrategyReturn, 0.20, 0.0000001)
}

func TestRun_BuyHoldUsesAnnotatedRange(t *testing.T) {
	// Thresholds that never trigger isolate the benchmark. The warmup bar
	// (close 102) is excluded: buy-hold runs from the first row with a
	// defined RSI (close 100) to the last (close 150), exactly +50%.
	res, err := RunSeries(series(102, 100, 130, 150), Params{
		Ticker: "GOOG", Buy: -5, Sell: 200, Period: 1,
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Trades != 0 {
		t.Fatalf("trades = %d, want 0", res.Trades)
	}
	assertClose(t, "buy-hold return", res.BuyHoldReturn, 0.50, 0.0000001)
	assertClose(t, "strategy return", res.StrategyReturn, 0.0, 0.0000001)
}

func TestRun_Period5RealisticSeries(t *testing.T) {
	// Same closes as the indicator correctness series. Window RSI(5) per bar:
	//   bar 6 (44.83): 68.1223   bar 8 (45.42): 79.0393
	//   bar 7 (45.10): 67.1171   bar 9 (45.84): 100.0
	// With buy 67.5 / sell 79.0 the fold goes:
	//   bar 6: 68.1223 > 67.5, stay in cash
	//   bar 7: 67.1171 <= 67.5, buy at 45.10
	//   bar 8: 79.0393 >= 79.0, sell at 45.42, equity 45.42/45.10
	//   bar 9: flat
	res, err := RunSeries(
		series(44.00, 44.34, 44.09, 43.61, 44.33, 44.83, 45.10, 45.42, 45.84),
		Params{Ticker: "AVGO", Buy: 67.5, Sell: 79.0, Period: 5},
	)
	if err != nil {
		t.Fatal(err)
	}
	if res.Trades != 2 {
		t.Fatalf("trades = %d, want 2", res.Trades)
	}
	assertClose(t, "strategy return", res.StrategyReturn, 45.42/45.10-1, 0.0000001)
	assertClose(t, "buy-hold return", res.BuyHoldReturn, 45.84/44.83-1, 0.0000001)
	assertClose(t, "latest rsi", res.LatestRSI, 100.0, 0.0000001)
	if len(res.Curve) != 4 {
		t.Errorf("curve has %d points, want 4", len(res.Curve))
	}
}

// ────────────────────────────────────────────────────────────────────────────
// Structural invariants of the replay.
// ────────────────────────────────────────────────────────────────────────────

func TestRun_CurveParallelToAnnotatedRows(t *testing.T) {
	// Pseudo-random walk, fixed seed.
	closes := make([]float64, 60)
	price := 250.0
	seed := uint64(42)
	for i := range closes {
		seed = seed*6364136223846793005 + 1442695040888963407
		step := float64(int64(seed>>33)%400-200) / 100.0
		price += step
		if price < 50 {
			price = 50
		}
		closes[i] = price
	}
	bars := series(closes...)

	res, err := RunSeries(bars, Params{Ticker: "SNDK", Buy: 45, Sell: 55, Period: 5})
	if err != nil {
		t.Fatal(err)
	}
	if res == nil {
		t.Fatal("expected a result")
	}

	rows, err := indicator.Annotate(bars, 5)
	if err != nil {
		t.Fatal(err)
	}
	defined := indicator.Defined(rows)

	if len(res.Curve) != len(defined) {
		t.Fatalf("curve length %d, annotated rows %d", len(res.Curve), len(defined))
	}
	for i := range defined {
		if !res.Curve[i].Date.Equal(defined[i].Date) {
			t.Fatalf("curve date %v diverges from row date %v at %d",
				res.Curve[i].Date, defined[i].Date, i)
		}
		if res.Curve[i].Equity <= 0 {
			t.Fatalf("non-positive equity %.6f at %d", res.Curve[i].Equity, i)
		}
	}
}

func TestRun_AccountIsAllInOrAllOut(t *testing.T) {
	// Whipsaw with a flat stretch in the middle:
	//   100 buy, 120 sell, 121/122 flat in cash, 112 buy, 130 sell.
	res, err := RunSeries(series(105, 100, 120, 121, 122, 112, 130), Params{
		Ticker: "NBIS", Buy: 40, Sell: 70, Period: 1,
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Trades != 4 {
		t.Fatalf("trades = %d, want 4", res.Trades)
	}

	// Fills strictly alternate starting with a buy: the position gate makes
	// a second consecutive buy (or sell) impossible.
	for i, f := range res.Fills {
		want := ActionBuy
		if i%2 == 1 {
			want = ActionSell
		}
		if f.Action != want {
			t.Fatalf("fill %d action %s, want %s", i, f.Action, want)
		}
		// On a trade row the account sits entirely on one side, so the mark
		// equals shares times price whichever direction the fill went.
		var equity float64
		for _, p := range res.Curve {
			if p.Date.Equal(f.Date) {
				equity = p.Equity
			}
		}
		assertClose(t, "fill-row equity", equity, f.Shares*f.Price, 0.0000001)
	}

	// While flat, the mark cannot move: rows 2 and 3 of the curve sit between
	// the first sell and the second buy.
	assertClose(t, "flat equity", res.Curve[2].Equity, res.Curve[1].Equity, 0.0000001)
	assertClose(t, "flat equity", res.Curve[3].Equity, res.Curve[1].Equity, 0.0000001)

	// Final equity: 120/100 * 130/112.
	assertClose(t, "final equity", res.FinalEquity(), 1.2*130.0/112.0, 0.0000001)
}

func TestRun_InvertedThresholdsChurn(t *testing.T) {
	// Callers must keep Buy < Sell. When they do not, both gates overlap and
	// the position flips on every replayed row. The simulator does not
	// re-validate, so this pins the degenerate behavior down.
	res, err := RunSeries(series(105, 100, 120, 110, 130), Params{
		Ticker: "NVDA", Buy: 70, Sell: 40, Period: 1,
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Trades != 4 {
		t.Fatalf("trades = %d, want 4 (one per replayed row)", res.Trades)
	}
	// buy 100, sell 120, buy 110, sell 130: equity 1.2 * 130/110.
	assertClose(t, "churn equity", res.FinalEquity(), 1.2*130.0/110.0, 0.0000001)
}

// ────────────────────────────────────────────────────────────────────────────
// Unevaluable inputs and contract violations.
// ────────────────────────────────────────────────────────────────────────────

func TestRun_InsufficientDataReturnsNoResult(t *testing.T) {
	p := Params{Ticker: "NVDA", Buy: 40, Sell: 70, Period: 1}

	cases := []struct {
		name string
		run  func() (*Result, error)
	}{
		{"no rows", func() (*Result, error) { return Run(nil, p) }},
		{"all rows unparseable", func() (*Result, error) {
			return Run([]model.RawRow{
				{Date: "not a date", Close: "100"},
				{Date: "2024-01-02", Close: "n/a"},
			}, p)
		}},
		{"single bar", func() (*Result, error) { return RunSeries(series(100), p) }},
		{"window never fills", func() (*Result, error) {
			return RunSeries(series(100, 101, 102), Params{Ticker: "NVDA", Buy: 40, Sell: 70, Period: 14})
		}},
		{"single annotated row", func() (*Result, error) {
			return RunSeries(series(100, 101, 102), Params{Ticker: "NVDA", Buy: 40, Sell: 70, Period: 2})
		}},
	}
	for _, tc := range cases {
		res, err := tc.run()
		if err != nil {
			t.Errorf("%s: unexpected error %v", tc.name, err)
		}
		if res != nil {
			t.Errorf("%s: expected no result, got %+v", tc.name, res)
		}
	}
}

func TestRun_NegativePeriodRejected(t *testing.T) {
	res, err := RunSeries(series(100, 101, 102), Params{Ticker: "NVDA", Buy: 40, Sell: 70, Period: -1})
	if err == nil {
		t.Fatal("expected an error for a negative period")
	}
	if res != nil {
		t.Fatal("result must be nil on contract violation")
	}
}

func TestRun_DefaultPeriod(t *testing.T) {
	// 16 bars with period 0: the default window of 14 leaves exactly 2
	// annotated rows.
	closes := make([]float64, 16)
	for i := range closes {
		closes[i] = 100 + float64(i)
	}
	res, err := RunSeries(series(closes...), Params{Ticker: "NVDA", Buy: 40, Sell: 70})
	if err != nil {
		t.Fatal(err)
	}
	if res == nil {
		t.Fatal("expected a result")
	}
	if len(res.Curve) != 2 {
		t.Errorf("curve has %d points, want 2", len(res.Curve))
	}
	// Monotone rise: RSI pegs at 100, nothing dips to the buy gate.
	if res.Trades != 0 {
		t.Errorf("trades = %d, want 0", res.Trades)
	}
}
