package model

import "time"

// Bar is one daily observation for a ticker: calendar date plus closing price.
// Close is the only price field the signal pipeline reads; providers may carry
// full OHLCV but it is dropped at this boundary.
type Bar struct {
	Date  time.Time `json:"date"`
	Close float64   `json:"close"`
}

// RawRow is one unvalidated observation as delivered by a loosely typed source
// (CSV export, permissive JSON). Cleaning parses both fields and silently drops
// the row when either fails.
type RawRow struct {
	Date  string `json:"date"`
	Close string `json:"close"`
}

// RSIValue is an oscillator reading in [0, 100]. Valid is false while the
// rolling window is still filling; Value must not be read when Valid is false.
type RSIValue struct {
	Value float64 `json:"value"`
	Valid bool    `json:"valid"`
}

// DefinedRSI wraps a computed reading.
func DefinedRSI(v float64) RSIValue { return RSIValue{Value: v, Valid: true} }

// IndicatorRow is a Bar extended with its RSI reading.
type IndicatorRow struct {
	Date  time.Time `json:"date"`
	Close float64   `json:"close"`
	RSI   RSIValue  `json:"rsi"`
}
