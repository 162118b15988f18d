// Package portfolio stores holdings and values them in JPY.
//
// Holdings are whole-share positions keyed by ticker. The store is a local
// JSON file with the same atomic-rewrite discipline as the rules file store;
// valuation pulls latest closes through the market data layer and converts
// with the fx rate.
package portfolio

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"

	"momentum-systemv1/internal/model"
)

// DefaultFilePath is where holdings live when no path is configured.
const DefaultFilePath = "data/portfolio.json"

// Store keeps holdings in a single JSON file.
type Store struct {
	mu   sync.Mutex
	path string
}

// NewStore creates the store and its parent directory.
func NewStore(path string) (*Store, error) {
	if path == "" {
		path = DefaultFilePath
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("portfolio: create data dir: %w", err)
	}
	return &Store{path: path}, nil
}

func (s *Store) List(ctx context.Context) ([]model.Holding, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

// Upsert updates the share count when the ticker is already held, otherwise
// inserts a new holding.
func (s *Store) Upsert(ctx context.Context, ticker string, shares int64) (model.Holding, error) {
	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	if ticker == "" {
		return model.Holding{}, fmt.Errorf("portfolio: ticker is required")
	}
	if shares <= 0 {
		return model.Holding{}, fmt.Errorf("portfolio: shares must be positive, got %d", shares)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	holdings, err := s.load()
	if err != nil {
		return model.Holding{}, err
	}
	for i := range holdings {
		if holdings[i].Ticker == ticker {
			holdings[i].Shares = shares
			return holdings[i], s.save(holdings)
		}
	}
	holding := model.Holding{ID: uuid.NewString(), Ticker: ticker, Shares: shares}
	holdings = append(holdings, holding)
	return holding, s.save(holdings)
}

// Delete removes the holding with the given ID. Unknown IDs are not an error.
func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	holdings, err := s.load()
	if err != nil {
		return err
	}
	kept := holdings[:0]
	for _, h := range holdings {
		if h.ID != id {
			kept = append(kept, h)
		}
	}
	return s.save(kept)
}

func (s *Store) Close() error { return nil }

// load reads and normalizes the file: entries without a ticker or with a
// non-positive share count are dropped, missing IDs are minted. A corrupt
// file reads as empty with a log line.
func (s *Store) load() ([]model.Holding, error) {
	raw, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("portfolio: read %s: %w", s.path, err)
	}
	var holdings []model.Holding
	if err := json.Unmarshal(raw, &holdings); err != nil {
		log.Printf("[portfolio] %s is corrupt, starting empty: %v", s.path, err)
		return nil, nil
	}

	kept := holdings[:0]
	for _, h := range holdings {
		h.Ticker = strings.ToUpper(strings.TrimSpace(h.Ticker))
		if h.Ticker == "" || h.Shares <= 0 {
			continue
		}
		if h.ID == "" {
			h.ID = uuid.NewString()
		}
		kept = append(kept, h)
	}
	return kept, nil
}

func (s *Store) save(holdings []model.Holding) error {
	if holdings == nil {
		holdings = []model.Holding{}
	}
	payload, err := json.MarshalIndent(holdings, "", "  ")
	if err != nil {
		return fmt.Errorf("portfolio: encode: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".portfolio-*.json")
	if err != nil {
		return fmt.Errorf("portfolio: create temp file: %w", err)
	}
	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("portfolio: write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("portfolio: close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("portfolio: replace %s: %w", s.path, err)
	}
	return nil
}
