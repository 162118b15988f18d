package backtest

import (
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"momentum-systemv1/internal/model"
)

const dateLayout = "2006-01-02"

// Clean parses raw (date, close) rows into bars, dropping every row whose
// date or close fails to parse, then sorts ascending by date. Partial data
// is the normal case for provider exports, so bad rows are discarded
// silently rather than reported per row.
func Clean(rows []model.RawRow) []model.Bar {
	bars := make([]model.Bar, 0, len(rows))
	for _, r := range rows {
		d, ok := parseDate(r.Date)
		if !ok {
			continue
		}
		c, err := strconv.ParseFloat(strings.TrimSpace(r.Close), 64)
		if err != nil {
			continue
		}
		bars = append(bars, model.Bar{Date: d, Close: c})
	}
	return sanitize(bars)
}

// sanitize drops bars whose close is not a positive finite number and sorts
// the rest ascending by date. A zero or negative close would blow up the
// all-in position sizing (shares = cash / close), so those rows are treated
// the same as unparseable ones.
func sanitize(series []model.Bar) []model.Bar {
	out := make([]model.Bar, 0, len(series))
	for _, b := range series {
		if math.IsNaN(b.Close) || math.IsInf(b.Close, 0) || b.Close <= 0 {
			continue
		}
		out = append(out, b)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}

// parseDate accepts calendar dates and full timestamps: daily exports carry
// plain dates, provider APIs return RFC 3339 bar timestamps.
func parseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(dateLayout, s); err == nil {
		return t, true
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, true
	}
	return time.Time{}, false
}
