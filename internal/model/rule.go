package model

// RuleTypeRSIBelow is the only rule type the evaluator acts on today.
// Stored rules carry the field so other rule kinds can coexist later.
const RuleTypeRSIBelow = "rsi_below"

// AlertRule maps a ticker to the RSI level at or below which an alert fires.
// Threshold <= 0 (or unset) means "use the configured global default".
type AlertRule struct {
	ID        string  `json:"id"`
	Ticker    string  `json:"ticker"`
	Type      string  `json:"type"`
	Threshold float64 `json:"threshold"`
	Note      string  `json:"note,omitempty"`
}

// Holding is one portfolio position: a ticker and a whole-share count.
type Holding struct {
	ID     string `json:"id"`
	Ticker string `json:"ticker"`
	Shares int64  `json:"shares"`
}
