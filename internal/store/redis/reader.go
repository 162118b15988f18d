package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"momentum-systemv1/internal/model"

	goredis "github.com/go-redis/redis/v8"
)

// Reader serves the read side: latest readings, stream history, recent
// alert events, and pub/sub subscriptions for the gateway and the engine.
type Reader struct {
	client *goredis.Client
}

// NewReader connects and pings the server.
func NewReader(cfg Config) (*Reader, error) {
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

	log.Printf("[redis-reader] connected to %s", cfg.Addr)
	return &Reader{client: client}, nil
}

// Client returns the underlying client for health checks.
func (r *Reader) Client() *goredis.Client { return r.client }

// LatestResults fetches the latest reading for each ticker in one MGET.
// Tickers without a stored reading are skipped.
func (r *Reader) LatestResults(ctx context.Context, tickers []string) ([]model.RSIResult, error) {
	if len(tickers) == 0 {
		return nil, nil
	}

	keys := make([]string, len(tickers))
	for i, t := range tickers {
		keys[i] = "rsi:latest:" + t
	}

	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: mget latest: %w", err)
	}

	results := make([]model.RSIResult, 0, len(values))
	for _, v := range values {
		data, ok := v.(string)
		if !ok {
			continue
		}
		var res model.RSIResult
		if err := json.Unmarshal([]byte(data), &res); err != nil {
			log.Printf("[redis-reader] unmarshal latest reading: %v", err)
			continue
		}
		results = append(results, res)
	}
	return results, nil
}

// History returns up to limit readings for a ticker, oldest first.
func (r *Reader) History(ctx context.Context, ticker string, limit int64) ([]model.RSIResult, error) {
	if limit <= 0 {
		limit = historyMaxLen
	}
	msgs, err := r.client.XRevRangeN(ctx, "rsi:history:"+ticker, "+", "-", limit).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: xrevrange history for %s: %w", ticker, err)
	}

	// XREVRANGE hands back newest first; flip to replay order.
	results := make([]model.RSIResult, 0, len(msgs))
	for i := len(msgs) - 1; i >= 0; i-- {
		data, ok := msgs[i].Values["data"].(string)
		if !ok {
			continue
		}
		var res model.RSIResult
		if err := json.Unmarshal([]byte(data), &res); err != nil {
			continue
		}
		results = append(results, res)
	}
	return results, nil
}

// RecentAlerts returns up to limit alert events, newest first.
func (r *Reader) RecentAlerts(ctx context.Context, limit int64) ([]model.AlertEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	msgs, err := r.client.XRevRangeN(ctx, model.AlertStream, "+", "-", limit).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: xrevrange alerts: %w", err)
	}

	events := make([]model.AlertEvent, 0, len(msgs))
	for _, msg := range msgs {
		data, ok := msg.Values["data"].(string)
		if !ok {
			continue
		}
		var ev model.AlertEvent
		if err := json.Unmarshal([]byte(data), &ev); err != nil {
			continue
		}
		events = append(events, ev)
	}
	return events, nil
}

// SubscribeChannel subscribes to one channel and waits for confirmation.
// Returns nil when the subscription cannot be established.
func (r *Reader) SubscribeChannel(ctx context.Context, channel string) *goredis.PubSub {
	pubsub := r.client.Subscribe(ctx, channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		log.Printf("[redis-reader] subscribe to %s failed: %v", channel, err)
		pubsub.Close()
		return nil
	}
	return pubsub
}

// PSubscribePattern subscribes to a channel pattern ("pub:rsi:*") and waits
// for confirmation. Returns nil when the subscription cannot be established.
func (r *Reader) PSubscribePattern(ctx context.Context, pattern string) *goredis.PubSub {
	pubsub := r.client.PSubscribe(ctx, pattern)
	if _, err := pubsub.Receive(ctx); err != nil {
		log.Printf("[redis-reader] psubscribe to %s failed: %v", pattern, err)
		pubsub.Close()
		return nil
	}
	return pubsub
}

// Close closes the client.
func (r *Reader) Close() error {
	return r.client.Close()
}
