package model

import (
	"context"
	"time"
)

// ── Storage Port Interfaces ──
// These interfaces decouple pipeline code from concrete backends (SQLite,
// Redis, Postgres, local JSON files). Each backend satisfies one or more.

// BarMeta records when a ticker's cached bars were last refreshed.
type BarMeta struct {
	Ticker    string
	FetchedAt time.Time
	Range     string
}

// BarStore caches daily bars per ticker along with fetch metadata.
type BarStore interface {
	// SaveBars replaces the cached series for a ticker and stamps the meta row.
	SaveBars(ticker, rng string, bars []Bar) error

	// ReadBars returns the cached series sorted ascending by date.
	// Returns an empty slice when nothing is cached.
	ReadBars(ticker string) ([]Bar, error)

	// Meta returns the fetch metadata for a ticker. ok is false when the
	// ticker has never been cached.
	Meta(ticker string) (meta BarMeta, ok bool, err error)

	// Close releases underlying resources.
	Close() error
}

// SnapshotStore reads and writes engine snapshots as raw JSON.
// Using []byte avoids a model→engine import cycle.
type SnapshotStore interface {
	// SaveSnapshotJSON persists a JSON-encoded engine snapshot.
	SaveSnapshotJSON(data []byte) error

	// ReadLatestSnapshotJSON loads the most recent snapshot as raw JSON.
	// Returns nil, nil if no snapshot exists.
	ReadLatestSnapshotJSON() ([]byte, error)
}

// RuleStore persists alert definitions.
type RuleStore interface {
	List(ctx context.Context) ([]AlertRule, error)
	Put(ctx context.Context, rule AlertRule) error
	Delete(ctx context.Context, id string) error
	Close() error
}

// HoldingStore persists portfolio holdings.
type HoldingStore interface {
	List(ctx context.Context) ([]Holding, error)

	// Upsert updates the share count when the ticker is already held,
	// otherwise inserts a new holding. Returns the stored record.
	Upsert(ctx context.Context, ticker string, shares int64) (Holding, error)

	Delete(ctx context.Context, id string) error
	Close() error
}

// ResultPublisher pushes computed readings and alert events to live consumers.
// Implementations log and swallow delivery failures; a down bus must never
// block signal evaluation or notification.
type ResultPublisher interface {
	PublishRSI(ctx context.Context, results []RSIResult)
	PublishAlerts(ctx context.Context, events []AlertEvent)
	NotifyRulesChanged(ctx context.Context)
	Close() error
}
