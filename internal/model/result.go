package model

import (
	"encoding/json"
	"time"
)

// Shared Redis names for the alert and reading fan-out.
const (
	AlertStream         = "alerts:events"
	AlertChannel        = "pub:alerts"
	RulesChangedChannel = "pub:rules:changed"
	RSIChannelPattern   = "pub:rsi:*"
)

// RSIResult is the engine's published reading for one ticker: the latest
// defined RSI together with the bar date that produced it.
type RSIResult struct {
	Ticker string    `json:"ticker"`
	Period int       `json:"period"`
	Value  float64   `json:"value"`
	Date   time.Time `json:"date"` // bar date the value was computed from
	TS     time.Time `json:"ts"`   // wall-clock computation time
}

// StreamKey returns the Redis stream key: "rsi:history:{ticker}".
func (r *RSIResult) StreamKey() string { return "rsi:history:" + r.Ticker }

// LatestKey returns the Redis key holding the most recent reading.
func (r *RSIResult) LatestKey() string { return "rsi:latest:" + r.Ticker }

// PubSubChannel returns the channel live subscribers listen on.
func (r *RSIResult) PubSubChannel() string { return "pub:rsi:" + r.Ticker }

// JSON returns the JSON-encoded result (ignoring errors for hot-path usage).
func (r *RSIResult) JSON() []byte {
	b, _ := json.Marshal(r)
	return b
}

// AlertEvent records one threshold breach found by an alert run.
type AlertEvent struct {
	Ticker    string    `json:"ticker"`
	Value     float64   `json:"value"`
	Threshold float64   `json:"threshold"`
	Date      time.Time `json:"date"` // observation date of the breaching bar
	TS        time.Time `json:"ts"`   // evaluation time
}

// JSON returns the JSON-encoded event.
func (e *AlertEvent) JSON() []byte {
	b, _ := json.Marshal(e)
	return b
}
