package backtest

import (
	"database/sql"
	"log"
	"sync"

	_ "github.com/mattn/go-sqlite3"
)

// Journal persists simulated fills to SQLite so runs stay comparable over
// time. Each run is stored under a caller-supplied run id.
type Journal struct {
	mu sync.Mutex
	db *sql.DB
}

// NewJournal opens (or creates) a SQLite journal database.
func NewJournal(dbPath string) (*Journal, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal=WAL&_sync=NORMAL")
	if err != nil {
		return nil, err
	}

	schema := `
	CREATE TABLE IF NOT EXISTS sim_trades (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id      TEXT NOT NULL,
		ticker      TEXT NOT NULL,
		action      TEXT NOT NULL,
		trade_date  TEXT NOT NULL,
		price       REAL NOT NULL,
		shares      REAL NOT NULL,
		rsi         REAL NOT NULL,
		created_at  DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_sim_trades_run ON sim_trades(run_id);
	CREATE INDEX IF NOT EXISTS idx_sim_trades_ticker ON sim_trades(ticker);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}

	log.Printf("[journal] opened backtest journal at %s", dbPath)
	return &Journal{db: db}, nil
}

// RecordRun persists every fill of a completed simulation in one transaction.
func (j *Journal) RecordRun(runID string, fills []Fill) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	tx, err := j.db.Begin()
	if err != nil {
		return err
	}
	stmt, err := tx.Prepare(
		`INSERT INTO sim_trades (run_id, ticker, action, trade_date, price, shares, rsi)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, f := range fills {
		if _, err := stmt.Exec(runID, f.Ticker, string(f.Action),
			f.Date.Format(dateLayout), f.Price, f.Shares, f.RSI); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// TradeRecord represents a row from the sim_trades table.
type TradeRecord struct {
	ID        int64   `json:"id"`
	RunID     string  `json:"run_id"`
	Ticker    string  `json:"ticker"`
	Action    string  `json:"action"`
	TradeDate string  `json:"trade_date"`
	Price     float64 `json:"price"`
	Shares    float64 `json:"shares"`
	RSI       float64 `json:"rsi"`
	CreatedAt string  `json:"created_at"`
}

// RecentTrades returns the last N journaled fills, newest first.
func (j *Journal) RecentTrades(limit int) ([]TradeRecord, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	rows, err := j.db.Query(
		`SELECT id, run_id, ticker, action, trade_date, price, shares, rsi, created_at
		 FROM sim_trades ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trades []TradeRecord
	for rows.Next() {
		var t TradeRecord
		if err := rows.Scan(&t.ID, &t.RunID, &t.Ticker, &t.Action,
			&t.TradeDate, &t.Price, &t.Shares, &t.RSI, &t.CreatedAt); err != nil {
			continue
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// Close closes the journal database.
func (j *Journal) Close() error {
	return j.db.Close()
}
