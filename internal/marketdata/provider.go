// Package marketdata retrieves daily price bars from external providers.
//
// Providers form an explicit fallback chain: each one is tried in order and
// the first non-empty series wins. A cache in front of the chain serves
// recent fetches and keeps the system usable when every provider is down.
package marketdata

import (
	"context"

	"momentum-systemv1/internal/model"
)

// Range is a named lookback window for daily bar retrieval.
type Range string

const (
	Range1Mo Range = "1mo"
	Range6Mo Range = "6mo"
	Range1Y  Range = "1y"
	Range2Y  Range = "2y"
	Range3Y  Range = "3y"
	Range5Y  Range = "5y"
)

// DefaultRange is used when callers do not pick a lookback.
const DefaultRange = Range1Y

// Days returns the calendar span of the range.
func (r Range) Days() int {
	switch r {
	case Range1Mo:
		return 31
	case Range6Mo:
		return 183
	case Range1Y:
		return 366
	case Range2Y:
		return 731
	case Range3Y:
		return 1096
	case Range5Y:
		return 1827
	default:
		return DefaultRange.Days()
	}
}

// ParseRange maps a config or flag value to a Range, falling back to the
// default for anything unknown.
func ParseRange(s string) Range {
	switch Range(s) {
	case Range1Mo, Range6Mo, Range1Y, Range2Y, Range3Y, Range5Y:
		return Range(s)
	default:
		return DefaultRange
	}
}

// Provider supplies daily close bars for a ticker, oldest first.
type Provider interface {
	Name() string
	DailyBars(ctx context.Context, ticker string, rng Range) ([]model.Bar, error)
}
