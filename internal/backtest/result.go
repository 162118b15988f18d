package backtest

import (
	"time"
)

// DefaultPeriod is the rolling window length used when Params.Period is zero.
const DefaultPeriod = 14

// Action labels a simulated fill.
type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
)

// Params configures a single simulation run.
//
// Callers are expected to supply Buy < Sell. The simulator does not
// re-validate the ordering: with Buy >= Sell every replayed row satisfies
// one of the two gates and the position flips on each row (see run_test.go,
// which pins that behavior down).
type Params struct {
	Ticker string
	Buy    float64 // enter when RSI <= Buy and flat
	Sell   float64 // exit when RSI >= Sell and holding
	Period int     // rolling window length, 0 means DefaultPeriod
}

// Fill is one simulated trade execution.
type Fill struct {
	Ticker string    `json:"ticker"`
	Action Action    `json:"action"`
	Date   time.Time `json:"date"`
	Price  float64   `json:"price"`
	Shares float64   `json:"shares"`
	RSI    float64   `json:"rsi"`
}

// EquityPoint is one mark-to-market observation of the simulated account.
type EquityPoint struct {
	Date   time.Time `json:"date"`
	Equity float64   `json:"equity"`
}

// Result is the immutable outcome of one simulation run.
//
// StartDate/EndDate and the curve cover the rows that carried a defined RSI,
// not the full cleaned series: the warmup prefix never enters the replay.
// BuyHoldReturn uses the same boundary so the benchmark and the strategy
// see identical data.
type Result struct {
	Ticker         string        `json:"ticker"`
	StrategyReturn float64       `json:"strategy_return"`
	BuyHoldReturn  float64       `json:"buy_hold_return"`
	Trades         int           `json:"trades"`
	LatestRSI      float64       `json:"latest_rsi"`
	StartDate      time.Time     `json:"start_date"`
	EndDate        time.Time     `json:"end_date"`
	Curve          []EquityPoint `json:"equity_curve"`
	Fills          []Fill        `json:"fills,omitempty"`
}

// FinalEquity returns the last mark-to-market value, 1.0 for an empty curve.
func (r *Result) FinalEquity() float64 {
	if len(r.Curve) == 0 {
		return 1.0
	}
	return r.Curve[len(r.Curve)-1].Equity
}
