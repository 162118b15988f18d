// Package rules stores alert definitions. A hosted Postgres backend is used
// when a DSN is configured and reachable; otherwise rules live in a local
// JSON file, which is also what development setups use.
package rules

import (
	"context"
	"fmt"
	"log"
	"math"
	"strings"

	"github.com/google/uuid"

	"momentum-systemv1/internal/model"
)

// Open picks the rule backend. A configured but unreachable Postgres falls
// back to the file store with a log line instead of failing startup.
func Open(ctx context.Context, postgresDSN, filePath string) (model.RuleStore, error) {
	if postgresDSN != "" {
		store, err := NewPostgresStore(ctx, postgresDSN)
		if err == nil {
			return store, nil
		}
		log.Printf("[rules] postgres unavailable, falling back to file store: %v", err)
	}
	return NewFileStore(filePath)
}

// Normalize prepares a rule for storage: ticker uppercased, ID minted when
// absent, rule type defaulted, non-finite thresholds zeroed so the global
// default applies at evaluation time. Callers that need the stored ID
// normalize before Put.
func Normalize(rule model.AlertRule) (model.AlertRule, error) {
	rule.Ticker = strings.ToUpper(strings.TrimSpace(rule.Ticker))
	if rule.Ticker == "" {
		return model.AlertRule{}, fmt.Errorf("rules: ticker is required")
	}
	if rule.ID == "" {
		rule.ID = uuid.NewString()
	}
	if rule.Type == "" {
		rule.Type = model.RuleTypeRSIBelow
	}
	if math.IsNaN(rule.Threshold) || math.IsInf(rule.Threshold, 0) {
		rule.Threshold = 0
	}
	return rule, nil
}
