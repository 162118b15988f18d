package gateway

// holdingRequest is the POST /api/v1/holdings body.
type holdingRequest struct {
	Ticker string `json:"ticker"`
	Shares int64  `json:"shares"`
}

// backtestRequest is the POST /api/v1/backtest body. Zero thresholds and a
// zero period fall back to the server's configured defaults; an empty range
// falls back to the provider default.
type backtestRequest struct {
	Ticker string  `json:"ticker"`
	Range  string  `json:"range"`
	Buy    float64 `json:"buy"`
	Sell   float64 `json:"sell"`
	Period int     `json:"period"`
}
