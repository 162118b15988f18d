package gateway

import (
	"context"
	"log"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"momentum-systemv1/internal/model"
	redisstore "momentum-systemv1/internal/store/redis"
)

const resubscribeWait = 10 * time.Second

// Feed bridges the Redis alert channel and the per-ticker reading channels
// into the hub. When a subscription cannot be established or drops it keeps
// retrying until ctx is cancelled; a gateway without its feed serves stale
// dashboards.
type Feed struct {
	hub    *Hub
	reader *redisstore.Reader
}

func NewFeed(hub *Hub, reader *redisstore.Reader) *Feed {
	return &Feed{hub: hub, reader: reader}
}

// Seed preloads the replay buffer from the alert stream so clients that
// connect right after a gateway restart still see recent events.
func (f *Feed) Seed(ctx context.Context, limit int64) {
	events, err := f.reader.RecentAlerts(ctx, limit)
	if err != nil {
		log.Printf("[gateway] replay seed: %v", err)
		return
	}
	// RecentAlerts hands back newest first; replay wants oldest first.
	for i := len(events) - 1; i >= 0; i-- {
		f.hub.BroadcastEvent(events[i].JSON())
	}
	if len(events) > 0 {
		log.Printf("[gateway] replay buffer seeded with %d events", len(events))
	}
}

// Run consumes the alert channel until ctx is cancelled.
func (f *Feed) Run(ctx context.Context) {
	for {
		pubsub := f.reader.SubscribeChannel(ctx, model.AlertChannel)
		if pubsub == nil {
			select {
			case <-ctx.Done():
				return
			case <-time.After(resubscribeWait):
				continue
			}
		}

		log.Printf("[gateway] subscribed to %s", model.AlertChannel)
		f.consume(ctx, pubsub)
		pubsub.Close()

		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Second):
		}
	}
}

func (f *Feed) consume(ctx context.Context, pubsub *goredis.PubSub) {
	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				log.Printf("[gateway] alert subscription dropped, resubscribing")
				return
			}
			f.hub.BroadcastEvent([]byte(msg.Payload))
		}
	}
}

// RunReadings consumes the per-ticker reading channels until ctx is
// cancelled. The pattern subscription picks up tickers added after startup
// without a resubscribe.
func (f *Feed) RunReadings(ctx context.Context) {
	for {
		pubsub := f.reader.PSubscribePattern(ctx, model.RSIChannelPattern)
		if pubsub == nil {
			select {
			case <-ctx.Done():
				return
			case <-time.After(resubscribeWait):
				continue
			}
		}

		log.Printf("[gateway] subscribed to %s", model.RSIChannelPattern)
		f.consumeReadings(ctx, pubsub)
		pubsub.Close()

		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Second):
		}
	}
}

func (f *Feed) consumeReadings(ctx context.Context, pubsub *goredis.PubSub) {
	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				log.Printf("[gateway] reading subscription dropped, resubscribing")
				return
			}
			f.hub.BroadcastReading([]byte(msg.Payload))
		}
	}
}
