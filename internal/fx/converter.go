// Package fx converts USD valuations to JPY through the market data layer's
// quote path. The rate is cached in-process; portfolio valuation is the only
// consumer and has no use for a tick-fresh rate.
package fx

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"
)

// PairUSDJPY is the Yahoo symbol for the USD to JPY spot rate.
const PairUSDJPY = "JPY=X"

// DefaultTTL is the refresh cadence for the cached rate.
const DefaultTTL = 30 * time.Minute

// QuoteSource is the slice of the market data layer the converter uses.
// *marketdata.YahooClient satisfies it.
type QuoteSource interface {
	Quote(ctx context.Context, symbol string) (float64, error)
}

// Converter caches the USD to JPY rate between refreshes.
type Converter struct {
	source QuoteSource
	ttl    time.Duration

	mu        sync.Mutex
	rate      float64
	fetchedAt time.Time
}

// NewConverter wraps a quote source. ttl <= 0 selects the default.
func NewConverter(source QuoteSource, ttl time.Duration) *Converter {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Converter{source: source, ttl: ttl}
}

// USDJPY returns the cached rate, refreshing through the quote source once
// the cache has expired. A failed refresh falls back to the previous rate;
// an error comes back only when no rate was ever fetched.
func (c *Converter) USDJPY(ctx context.Context) (float64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.rate > 0 && time.Since(c.fetchedAt) <= c.ttl {
		return c.rate, nil
	}

	rate, err := c.source.Quote(ctx, PairUSDJPY)
	if err == nil && rate <= 0 {
		err = fmt.Errorf("non-positive rate %v", rate)
	}
	if err != nil {
		if c.rate > 0 {
			log.Printf("[fx] usdjpy refresh failed, keeping previous rate %.2f: %v", c.rate, err)
			return c.rate, nil
		}
		return 0, fmt.Errorf("fx: usdjpy quote: %w", err)
	}

	c.rate = rate
	c.fetchedAt = time.Now()
	return c.rate, nil
}
