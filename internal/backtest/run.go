// Package backtest replays an RSI-annotated daily price series through a
// long-only threshold strategy.
//
// The simulation is a strict left-to-right fold: enter with all cash when the
// RSI dips to the buy threshold, exit to all cash when it reaches the sell
// threshold, mark the account to market at every row. The account is always
// fully in cash or fully in shares, never split.
package backtest

import (
	"momentum-systemv1/internal/indicator"
	"momentum-systemv1/internal/model"
)

// Run cleans raw rows and simulates the strategy over them.
//
// A nil Result with a nil error means the series cannot be evaluated:
// nothing parseable, fewer than two usable rows, or fewer than two rows
// with a defined RSI. That is an expected outcome for thin or freshly
// listed tickers, not an error. A non-nil error only signals a contract
// violation on Params (negative period).
func Run(rows []model.RawRow, p Params) (*Result, error) {
	return RunSeries(Clean(rows), p)
}

// RunSeries simulates over an already-parsed series. The input is sanitized
// and sorted before annotation, so callers may hand over provider output
// as-is. The same nil-Result convention as Run applies.
func RunSeries(series []model.Bar, p Params) (*Result, error) {
	period := p.Period
	if period == 0 {
		period = DefaultPeriod
	}

	bars := sanitize(series)
	if len(bars) < 2 {
		return nil, nil
	}

	rows, err := indicator.Annotate(bars, period)
	if err != nil {
		return nil, err
	}
	defined := indicator.Defined(rows)
	if len(defined) < 2 {
		return nil, nil
	}

	// Simulation state, local to this call.
	cash := 1.0
	shares := 0.0
	hasPosition := false
	trades := 0

	curve := make([]EquityPoint, 0, len(defined))
	var fills []Fill

	for _, row := range defined {
		rsi := row.RSI.Value

		// Signal check runs before the equity mark for the row.
		switch {
		case !hasPosition && rsi <= p.Buy:
			shares = cash / row.Close
			cash = 0.0
			hasPosition = true
			trades++
			fills = append(fills, Fill{
				Ticker: p.Ticker, Action: ActionBuy, Date: row.Date,
				Price: row.Close, Shares: shares, RSI: rsi,
			})
		case hasPosition && rsi >= p.Sell:
			cash = shares * row.Close
			sold := shares
			shares = 0.0
			hasPosition = false
			trades++
			fills = append(fills, Fill{
				Ticker: p.Ticker, Action: ActionSell, Date: row.Date,
				Price: row.Close, Shares: sold, RSI: rsi,
			})
		}

		curve = append(curve, EquityPoint{Date: row.Date, Equity: cash + shares*row.Close})
	}

	// An open position at the end of the series stays open: the final equity
	// is the mark at the last close, not a forced liquidation.
	first := defined[0]
	last := defined[len(defined)-1]

	return &Result{
		Ticker:         p.Ticker,
		StrategyReturn: curve[len(curve)-1].Equity - 1.0,
		BuyHoldReturn:  last.Close/first.Close - 1.0,
		Trades:         trades,
		LatestRSI:      last.RSI.Value,
		StartDate:      first.Date,
		EndDate:        last.Date,
		Curve:          curve,
		Fills:          fills,
	}, nil
}
