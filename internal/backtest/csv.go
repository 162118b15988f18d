package backtest

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"strings"

	"momentum-systemv1/internal/model"
)

// LoadCSV reads (date, close) rows from a daily bar export. A header row is
// detected by a "date" column name; "date" and "close" columns are located
// by name when present, otherwise the first two columns are used. Values are
// returned raw, so malformed rows flow into Clean and are dropped there.
func LoadCSV(path string) ([]model.RawRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("backtest: open csv: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("backtest: read csv: %w", err)
	}
	if len(records) == 0 {
		return nil, nil
	}

	dateIdx, closeIdx, start := 0, 1, 0
	for i, name := range records[0] {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "date":
			dateIdx = i
			start = 1
		case "close":
			closeIdx = i
		}
	}

	rows := make([]model.RawRow, 0, len(records)-start)
	for _, rec := range records[start:] {
		if len(rec) <= dateIdx || len(rec) <= closeIdx {
			continue
		}
		rows = append(rows, model.RawRow{Date: rec[dateIdx], Close: rec[closeIdx]})
	}
	return rows, nil
}

// WriteFillsCSV exports the simulated trades of a run.
func WriteFillsCSV(fills []Fill, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	_ = w.Write([]string{"ticker", "action", "date", "price", "shares", "rsi"})
	for _, fl := range fills {
		_ = w.Write([]string{
			fl.Ticker, string(fl.Action), fl.Date.Format(dateLayout),
			formatF(fl.Price), formatF(fl.Shares), formatF(fl.RSI),
		})
	}
	return w.Error()
}

// WriteEquityCSV exports the mark-to-market curve of a run.
func WriteEquityCSV(curve []EquityPoint, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	_ = w.Write([]string{"date", "equity"})
	for _, p := range curve {
		_ = w.Write([]string{p.Date.Format(dateLayout), formatF(p.Equity)})
	}
	return w.Error()
}

func formatF(f float64) string { return strconv.FormatFloat(f, 'f', -1, 64) }
