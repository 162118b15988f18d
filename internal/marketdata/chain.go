package marketdata

import (
	"context"
	"fmt"
	"log"
	"strings"

	"momentum-systemv1/internal/model"
)

// Chain tries providers in order and returns the first non-empty series.
// Per-provider failures are logged and isolated; the chain only errors when
// every provider has failed or come back empty.
type Chain struct {
	providers []Provider
}

// NewChain builds a fallback chain. Order matters: the first provider is
// the preferred one.
func NewChain(providers ...Provider) *Chain {
	return &Chain{providers: providers}
}

func (c *Chain) Name() string { return "chain" }

func (c *Chain) DailyBars(ctx context.Context, ticker string, rng Range) ([]model.Bar, error) {
	var attempts []string
	for _, p := range c.providers {
		bars, err := p.DailyBars(ctx, ticker, rng)
		if err != nil {
			log.Printf("[marketdata] %s: %s failed: %v", ticker, p.Name(), err)
			attempts = append(attempts, fmt.Sprintf("%s: %v", p.Name(), err))
			continue
		}
		if len(bars) == 0 {
			log.Printf("[marketdata] %s: %s returned no bars", ticker, p.Name())
			attempts = append(attempts, fmt.Sprintf("%s: empty", p.Name()))
			continue
		}
		return bars, nil
	}
	if len(attempts) == 0 {
		return nil, fmt.Errorf("marketdata: no providers configured")
	}
	return nil, fmt.Errorf("marketdata: all providers failed for %s (%s)", ticker, strings.Join(attempts, "; "))
}
