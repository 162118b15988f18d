package indicator

import (
	"fmt"

	"momentum-systemv1/internal/model"
)

// Annotate computes the RSI for every bar of a daily series and returns one
// IndicatorRow per input bar, in the same order. Rows before the trailing
// window fills carry RSI.Valid == false; a series shorter than period+1 bars
// yields no defined value at all. The input is never mutated.
//
// period < 1 is a contract violation and returns an error; data-quality
// problems never do (short series are an expected condition, not a failure).
func Annotate(series []model.Bar, period int) ([]model.IndicatorRow, error) {
	if period < 1 {
		return nil, fmt.Errorf("indicator: period must be >= 1, got %d", period)
	}

	rows := make([]model.IndicatorRow, len(series))
	r := NewRSI(period)
	for i, b := range series {
		r.Update(b.Close)
		rows[i] = model.IndicatorRow{Date: b.Date, Close: b.Close}
		if r.Ready() {
			rows[i].RSI = model.DefinedRSI(r.Value())
		}
	}
	return rows, nil
}

// Defined filters annotated rows down to those carrying a valid RSI,
// preserving order. Returns a new slice; the input is untouched.
func Defined(rows []model.IndicatorRow) []model.IndicatorRow {
	out := make([]model.IndicatorRow, 0, len(rows))
	for _, row := range rows {
		if row.RSI.Valid {
			out = append(out, row)
		}
	}
	return out
}

// LatestDefined returns the last row with a valid RSI, or ok == false when
// the series never produced one.
func LatestDefined(rows []model.IndicatorRow) (model.IndicatorRow, bool) {
	for i := len(rows) - 1; i >= 0; i-- {
		if rows[i].RSI.Valid {
			return rows[i], true
		}
	}
	return model.IndicatorRow{}, false
}
