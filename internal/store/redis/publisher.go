// Package redis fans computed readings and alert events out to live
// consumers. Each reading lands three ways in one pipeline: a latest-value
// key with TTL, a trimmed history stream, and a pub/sub publish for
// dashboards. A circuit breaker plus local buffer keeps the signal pipeline
// alive while Redis is down.
package redis

import (
	"context"
	"fmt"
	"log"
	"time"

	"momentum-systemv1/internal/model"

	goredis "github.com/go-redis/redis/v8"
)

const (
	// Daily readings: ~1.5 years of history per ticker.
	historyMaxLen = 400
	alertsMaxLen  = 1000

	defaultLatestTTL = 30 * time.Minute
)

// Config locates the Redis server.
type Config struct {
	Addr     string
	Password string
	DB       int
}

// Publisher writes RSI readings and alert events to Redis.
type Publisher struct {
	client *goredis.Client
}

// Client returns the underlying client for health checks.
func (p *Publisher) Client() *goredis.Client { return p.client }

// NewPublisher connects and pings the server.
func NewPublisher(cfg Config) (*Publisher, error) {
	if cfg.Addr == "" {
		cfg.Addr = "localhost:6379"
	}
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis: ping: %w", err)
	}

	log.Printf("[redis] connected to %s", cfg.Addr)
	return &Publisher{client: client}, nil
}

// PublishRSI writes the batch and logs on failure; a down bus must never
// block signal evaluation.
func (p *Publisher) PublishRSI(ctx context.Context, results []model.RSIResult) {
	if err := p.publishRSI(ctx, results); err != nil {
		log.Printf("[redis] %v", err)
	}
}

// publishRSI batches SET latest + XADD history + PUBLISH per reading into a
// single pipeline roundtrip.
func (p *Publisher) publishRSI(ctx context.Context, results []model.RSIResult) error {
	if len(results) == 0 {
		return nil
	}

	pipe := p.client.Pipeline()
	for i := range results {
		r := &results[i]
		data := string(r.JSON())

		pipe.Set(ctx, r.LatestKey(), data, defaultLatestTTL)
		pipe.XAdd(ctx, &goredis.XAddArgs{
			Stream: r.StreamKey(),
			MaxLen: historyMaxLen,
			Approx: true,
			Values: map[string]interface{}{"data": data},
		})
		pipe.Publish(ctx, r.PubSubChannel(), data)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: rsi pipeline (%d results): %w", len(results), err)
	}
	return nil
}

// PublishAlerts writes the batch and logs on failure.
func (p *Publisher) PublishAlerts(ctx context.Context, events []model.AlertEvent) {
	if err := p.publishAlerts(ctx, events); err != nil {
		log.Printf("[redis] %v", err)
	}
}

func (p *Publisher) publishAlerts(ctx context.Context, events []model.AlertEvent) error {
	if len(events) == 0 {
		return nil
	}

	pipe := p.client.Pipeline()
	for i := range events {
		e := &events[i]
		data := string(e.JSON())

		pipe.XAdd(ctx, &goredis.XAddArgs{
			Stream: model.AlertStream,
			MaxLen: alertsMaxLen,
			Approx: true,
			Values: map[string]interface{}{"data": data},
		})
		pipe.Publish(ctx, model.AlertChannel, data)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: alert pipeline (%d events): %w", len(events), err)
	}
	return nil
}

// NotifyRulesChanged pings rule consumers so they reload without a restart.
func (p *Publisher) NotifyRulesChanged(ctx context.Context) {
	if err := p.notifyRulesChanged(ctx); err != nil {
		log.Printf("[redis] %v", err)
	}
}

func (p *Publisher) notifyRulesChanged(ctx context.Context) error {
	if err := p.client.Publish(ctx, model.RulesChangedChannel, "reload").Err(); err != nil {
		return fmt.Errorf("redis: publish rules changed: %w", err)
	}
	return nil
}

// Close closes the client.
func (p *Publisher) Close() error {
	return p.client.Close()
}
