package alert

import (
	"fmt"
	"strings"
)

// FormatMessage renders a batch of matches as one notification payload.
// All matches of a run coalesce into a single message so a bad market day
// produces one notification, not one per ticker.
//
// When every match shares the same observation date the header carries it
// and the lines stay short; when dates differ each line names its own.
func FormatMessage(matches []Match) string {
	dates := make(map[string]struct{}, len(matches))
	for _, m := range matches {
		dates[m.Date.Format("2006-01-02")] = struct{}{}
	}

	var b strings.Builder
	if len(dates) == 1 {
		fmt.Fprintf(&b, "RSI Alert (%s)", matches[0].Date.Format("2006-01-02"))
	} else {
		b.WriteString("RSI Alert")
	}

	for _, m := range matches {
		fmt.Fprintf(&b, "\n%s RSI %.1f (<= %.1f)", m.Ticker, m.RSI, m.Threshold)
		if len(dates) != 1 {
			fmt.Fprintf(&b, " on %s", m.Date.Format("2006-01-02"))
		}
	}
	return b.String()
}
