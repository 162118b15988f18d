// Package sqlite persists the daily-bar cache and engine snapshots.
//
// One database file serves both: the engine service refreshes bars and
// snapshots through it, and the backtest CLI reads the same cache when
// running offline. WAL mode keeps the concurrent reader cheap.
package sqlite

import (
	"database/sql"
	"fmt"
	"log"
	"sync"
	"time"

	"momentum-systemv1/internal/model"

	_ "github.com/mattn/go-sqlite3"
)

// DefaultPath is the database location when none is configured.
const DefaultPath = "data/market.db"

const snapshotsKept = 10

// Store is the SQLite-backed bar cache and snapshot store. It satisfies
// model.BarStore and model.SnapshotStore.
type Store struct {
	mu sync.Mutex
	db *sql.DB
}

// Open opens (creating if needed) the database and ensures the schema.
func Open(dbPath string) (*Store, error) {
	if dbPath == "" {
		dbPath = DefaultPath
	}
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", dbPath, err)
	}

	// Single writer; the engine's refresh loop is the only heavy user.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: schema: %w", err)
	}

	log.Printf("[sqlite] opened bar cache at %s", dbPath)
	return &Store{db: db}, nil
}

// DB exposes the handle for health checks.
func (s *Store) DB() *sql.DB { return s.db }

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS bars (
			ticker TEXT NOT NULL,
			date   TEXT NOT NULL,
			close  REAL NOT NULL,
			PRIMARY KEY (ticker, date)
		);

		CREATE TABLE IF NOT EXISTS bar_meta (
			ticker     TEXT PRIMARY KEY,
			fetched_at INTEGER NOT NULL,
			lookback   TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS engine_snapshots (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			data       TEXT    NOT NULL,
			created_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
		);
	`)
	return err
}

// SaveBars replaces the cached series for a ticker and stamps the meta row.
// The whole swap runs in one transaction so readers never see a half series.
func (s *Store) SaveBars(ticker, rng string, bars []model.Bar) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("sqlite: begin: %w", err)
	}

	if _, err := tx.Exec(`DELETE FROM bars WHERE ticker = ?`, ticker); err != nil {
		tx.Rollback()
		return fmt.Errorf("sqlite: clear bars for %s: %w", ticker, err)
	}

	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO bars (ticker, date, close) VALUES (?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("sqlite: prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, b := range bars {
		if _, err := stmt.Exec(ticker, b.Date.Format("2006-01-02"), b.Close); err != nil {
			tx.Rollback()
			return fmt.Errorf("sqlite: insert bar: %w", err)
		}
	}

	_, err = tx.Exec(`
		INSERT INTO bar_meta (ticker, fetched_at, lookback) VALUES (?, ?, ?)
		ON CONFLICT(ticker) DO UPDATE SET
			fetched_at = excluded.fetched_at,
			lookback   = excluded.lookback`,
		ticker, time.Now().Unix(), rng)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("sqlite: upsert meta for %s: %w", ticker, err)
	}

	return tx.Commit()
}

// ReadBars returns the cached series sorted ascending by date. An uncached
// ticker reads as an empty slice.
func (s *Store) ReadBars(ticker string) ([]model.Bar, error) {
	rows, err := s.db.Query(`SELECT date, close FROM bars WHERE ticker = ? ORDER BY date ASC`, ticker)
	if err != nil {
		return nil, fmt.Errorf("sqlite: query bars for %s: %w", ticker, err)
	}
	defer rows.Close()

	var bars []model.Bar
	for rows.Next() {
		var dateStr string
		var b model.Bar
		if err := rows.Scan(&dateStr, &b.Close); err != nil {
			return nil, fmt.Errorf("sqlite: scan bar: %w", err)
		}
		date, err := time.Parse("2006-01-02", dateStr)
		if err != nil {
			continue
		}
		b.Date = date
		bars = append(bars, b)
	}
	return bars, rows.Err()
}

// Meta returns the fetch metadata for a ticker; ok is false when never cached.
func (s *Store) Meta(ticker string) (model.BarMeta, bool, error) {
	var fetchedAt int64
	meta := model.BarMeta{Ticker: ticker}
	err := s.db.QueryRow(
		`SELECT fetched_at, lookback FROM bar_meta WHERE ticker = ?`, ticker,
	).Scan(&fetchedAt, &meta.Range)
	if err == sql.ErrNoRows {
		return model.BarMeta{}, false, nil
	}
	if err != nil {
		return model.BarMeta{}, false, fmt.Errorf("sqlite: query meta for %s: %w", ticker, err)
	}
	meta.FetchedAt = time.Unix(fetchedAt, 0).UTC()
	return meta, true, nil
}

// SaveSnapshotJSON persists an engine snapshot, pruning to the last few.
func (s *Store) SaveSnapshotJSON(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.Exec(`INSERT INTO engine_snapshots (data) VALUES (?)`, string(data)); err != nil {
		return fmt.Errorf("sqlite: insert snapshot: %w", err)
	}

	_, err := s.db.Exec(`
		DELETE FROM engine_snapshots WHERE id NOT IN (
			SELECT id FROM engine_snapshots ORDER BY created_at DESC, id DESC LIMIT ?
		)`, snapshotsKept)
	if err != nil {
		log.Printf("[sqlite] prune snapshots warning: %v", err)
	}
	return nil
}

// ReadLatestSnapshotJSON loads the most recent snapshot, nil when none exists.
func (s *Store) ReadLatestSnapshotJSON() ([]byte, error) {
	var data string
	err := s.db.QueryRow(`
		SELECT data FROM engine_snapshots
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: read snapshot: %w", err)
	}
	return []byte(data), nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
