package backtest

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	"momentum-systemv1/internal/model"
)

func TestClean_DropsUnparseableRows(t *testing.T) {
	rows := []model.RawRow{
		{Date: "2024-01-03", Close: "101.5"},
		{Date: "garbage", Close: "100"},       // bad date
		{Date: "2024-01-04", Close: "n/a"},    // bad close
		{Date: "2024-01-05", Close: "NaN"},    // parses but not a number
		{Date: "2024-01-06", Close: "-5"},     // negative price
		{Date: "2024-01-07", Close: "0"},      // zero price
		{Date: "", Close: ""},                 // empty row
		{Date: " 2024-01-08 ", Close: " 103"}, // survives trimming
	}

	bars := Clean(rows)
	if len(bars) != 2 {
		t.Fatalf("kept %d rows, want 2: %+v", len(bars), bars)
	}
	if bars[0].Close != 101.5 || bars[1].Close != 103 {
		t.Errorf("unexpected closes %v, %v", bars[0].Close, bars[1].Close)
	}
}

func TestClean_SortsAscendingByDate(t *testing.T) {
	rows := []model.RawRow{
		{Date: "2024-01-05", Close: "103"},
		{Date: "2024-01-03", Close: "101"},
		{Date: "2024-01-04", Close: "102"},
	}
	bars := Clean(rows)
	if len(bars) != 3 {
		t.Fatalf("kept %d rows, want 3", len(bars))
	}
	for i := 1; i < len(bars); i++ {
		if !bars[i-1].Date.Before(bars[i].Date) {
			t.Fatalf("rows out of order: %v then %v", bars[i-1].Date, bars[i].Date)
		}
	}
	if bars[0].Close != 101 {
		t.Errorf("first close %v, want 101", bars[0].Close)
	}
}

func TestClean_AcceptsBarTimestamps(t *testing.T) {
	// Provider APIs return full RFC 3339 timestamps for daily bars.
	rows := []model.RawRow{
		{Date: "2024-01-02T05:00:00Z", Close: "100.25"},
		{Date: "2024-01-03T05:00:00Z", Close: "101.75"},
	}
	bars := Clean(rows)
	if len(bars) != 2 {
		t.Fatalf("kept %d rows, want 2", len(bars))
	}
	if bars[0].Date.Year() != 2024 || bars[0].Date.Day() != 2 {
		t.Errorf("unexpected date %v", bars[0].Date)
	}
}

func TestLoadCSV_HeaderWithExtraColumns(t *testing.T) {
	// Typical daily export: OHLCV columns, close is not the second field.
	path := filepath.Join(t.TempDir(), "bars.csv")
	content := "Date,Open,High,Low,Close,Volume\n" +
		"2024-01-02,99,102,98,100.5,100000\n" +
		"2024-01-03,100,104,100,103.25,120000\n" +
		"bad row\n" +
		"2024-01-04,103,105,101,,90000\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	rows, err := LoadCSV(path)
	if err != nil {
		t.Fatal(err)
	}
	// The short row is skipped at load time, the empty close survives into
	// the raw rows and falls out during cleaning.
	if len(rows) != 3 {
		t.Fatalf("loaded %d rows, want 3", len(rows))
	}

	bars := Clean(rows)
	if len(bars) != 2 {
		t.Fatalf("cleaned to %d bars, want 2", len(bars))
	}
	if bars[0].Close != 100.5 || bars[1].Close != 103.25 {
		t.Errorf("unexpected closes %v, %v", bars[0].Close, bars[1].Close)
	}
}

func TestLoadCSV_NoHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plain.csv")
	content := "2024-01-02,100.5\n2024-01-03,103.25\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	rows, err := LoadCSV(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 {
		t.Fatalf("loaded %d rows, want 2", len(rows))
	}
	if rows[0].Close != "100.5" {
		t.Errorf("unexpected raw close %q", rows[0].Close)
	}
}

func TestWriteFillsCSV(t *testing.T) {
	res, err := RunSeries(series(105, 100, 120), Params{
		Ticker: "NVDA", Buy: 40, Sell: 70, Period: 1,
	})
	if err != nil {
		t.Fatal(err)
	}

	path := filepath.Join(t.TempDir(), "fills.csv")
	if err := WriteFillsCSV(res.Fills, path); err != nil {
		t.Fatal(err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatal(err)
	}

	// Header plus one row per fill.
	if len(records) != 3 {
		t.Fatalf("wrote %d records, want 3", len(records))
	}
	if records[1][0] != "NVDA" || records[1][1] != "BUY" || records[1][2] != "2024-01-02" {
		t.Errorf("unexpected buy row %v", records[1])
	}
	if records[2][1] != "SELL" || records[2][3] != "120" {
		t.Errorf("unexpected sell row %v", records[2])
	}
}
