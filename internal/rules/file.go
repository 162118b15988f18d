package rules

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"

	"momentum-systemv1/internal/model"
)

// DefaultFilePath is where the file store keeps rules when no path is
// configured.
const DefaultFilePath = "data/alerts.json"

// FileStore keeps alert rules in a single JSON file. Writes go through a
// temp file and rename so a crash mid-write cannot truncate the rule set.
type FileStore struct {
	mu   sync.Mutex
	path string
}

// NewFileStore creates the store and its parent directory.
func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		path = DefaultFilePath
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("rules: create data dir: %w", err)
	}
	return &FileStore{path: path}, nil
}

func (s *FileStore) List(ctx context.Context) ([]model.AlertRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

// Put inserts the rule, or replaces the stored rule with the same ID.
func (s *FileStore) Put(ctx context.Context, rule model.AlertRule) error {
	rule, err := Normalize(rule)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stored, err := s.load()
	if err != nil {
		return err
	}
	replaced := false
	for i := range stored {
		if stored[i].ID == rule.ID {
			stored[i] = rule
			replaced = true
			break
		}
	}
	if !replaced {
		stored = append(stored, rule)
	}
	return s.save(stored)
}

// Delete removes the rule with the given ID. Unknown IDs are not an error.
func (s *FileStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, err := s.load()
	if err != nil {
		return err
	}
	kept := stored[:0]
	for _, r := range stored {
		if r.ID != id {
			kept = append(kept, r)
		}
	}
	return s.save(kept)
}

func (s *FileStore) Close() error { return nil }

// load reads the file. A missing file is an empty rule set; a corrupt one is
// logged and treated as empty so a damaged local cache cannot take alerting
// down.
func (s *FileStore) load() ([]model.AlertRule, error) {
	raw, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("rules: read %s: %w", s.path, err)
	}
	var rules []model.AlertRule
	if err := json.Unmarshal(raw, &rules); err != nil {
		log.Printf("[rules] %s is corrupt, starting empty: %v", s.path, err)
		return nil, nil
	}
	return rules, nil
}

func (s *FileStore) save(rules []model.AlertRule) error {
	if rules == nil {
		rules = []model.AlertRule{}
	}
	payload, err := json.MarshalIndent(rules, "", "  ")
	if err != nil {
		return fmt.Errorf("rules: encode: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".alerts-*.json")
	if err != nil {
		return fmt.Errorf("rules: create temp file: %w", err)
	}
	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("rules: write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("rules: close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("rules: replace %s: %w", s.path, err)
	}
	return nil
}
