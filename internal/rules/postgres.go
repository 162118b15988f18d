package rules

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"momentum-systemv1/internal/model"
)

const rulesSchema = `
CREATE TABLE IF NOT EXISTS alert_rules (
	id         UUID PRIMARY KEY,
	ticker     TEXT NOT NULL,
	rule_type  TEXT NOT NULL DEFAULT 'rsi_below',
	threshold  DOUBLE PRECISION NOT NULL DEFAULT 0,
	note       TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_alert_rules_ticker ON alert_rules (ticker);
`

// PostgresStore persists alert rules in the hosted database that deployed
// services share. The schema is ensured at open.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects, pings, and ensures the schema.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("rules: parse postgres dsn: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("rules: ping postgres: %w", err)
	}

	if _, err := pool.Exec(ctx, rulesSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("rules: ensure schema: %w", err)
	}

	log.Printf("[rules] postgres store ready")
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) List(ctx context.Context) ([]model.AlertRule, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, ticker, rule_type, threshold, note
		FROM alert_rules
		ORDER BY ticker, created_at`)
	if err != nil {
		return nil, fmt.Errorf("rules: query rules: %w", err)
	}
	defer rows.Close()

	var rules []model.AlertRule
	for rows.Next() {
		var r model.AlertRule
		if err := rows.Scan(&r.ID, &r.Ticker, &r.Type, &r.Threshold, &r.Note); err != nil {
			return nil, fmt.Errorf("rules: scan rule: %w", err)
		}
		rules = append(rules, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rules: rows: %w", err)
	}
	return rules, nil
}

// Put inserts the rule, or replaces the stored rule with the same ID.
func (s *PostgresStore) Put(ctx context.Context, rule model.AlertRule) error {
	rule, err := Normalize(rule)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO alert_rules (id, ticker, rule_type, threshold, note)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			ticker    = EXCLUDED.ticker,
			rule_type = EXCLUDED.rule_type,
			threshold = EXCLUDED.threshold,
			note      = EXCLUDED.note`,
		rule.ID, rule.Ticker, rule.Type, rule.Threshold, rule.Note)
	if err != nil {
		return fmt.Errorf("rules: upsert rule: %w", err)
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM alert_rules WHERE id = $1`, id); err != nil {
		return fmt.Errorf("rules: delete rule: %w", err)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
