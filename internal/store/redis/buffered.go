package redis

import (
	"context"
	"encoding/json"
	"log"
	"sync"

	"momentum-systemv1/internal/model"
)

// publishSink is the error-returning publish surface the buffer drives.
// *Publisher satisfies it.
type publishSink interface {
	publishRSI(ctx context.Context, results []model.RSIResult) error
	publishAlerts(ctx context.Context, events []model.AlertEvent) error
	notifyRulesChanged(ctx context.Context) error
}

// pendingPublish is a batch held back while the circuit is open.
type pendingPublish struct {
	Kind string // "rsi", "alerts", "rules_changed"
	Data []byte // JSON-encoded batch
}

// BufferedPublisher wraps a Publisher with a circuit breaker. While the
// circuit is open, batches are buffered locally and replayed once the
// circuit closes, so readings survive a Redis outage instead of being lost.
// It satisfies model.ResultPublisher.
type BufferedPublisher struct {
	pub  *Publisher
	sink publishSink
	cb   *CircuitBreaker
	ctx  context.Context

	mu     sync.Mutex
	buffer []pendingPublish
	maxBuf int

	// Callbacks for metrics.
	OnBuffer func()
	OnFlush  func(count int)
}

// NewBufferedPublisher wraps pub. maxBuffered caps the local buffer; the
// oldest batch is dropped when it fills.
func NewBufferedPublisher(ctx context.Context, pub *Publisher, cb *CircuitBreaker, maxBuffered int) *BufferedPublisher {
	if maxBuffered <= 0 {
		maxBuffered = 1000
	}
	bp := &BufferedPublisher{
		pub:    pub,
		sink:   pub,
		cb:     cb,
		ctx:    ctx,
		buffer: make([]pendingPublish, 0, 16),
		maxBuf: maxBuffered,
	}

	prev := cb.OnStateChange
	cb.OnStateChange = func(from, to State) {
		if prev != nil {
			prev(from, to)
		}
		if to == StateClosed {
			go bp.flush()
		}
	}

	return bp
}

func (bp *BufferedPublisher) PublishRSI(ctx context.Context, results []model.RSIResult) {
	if len(results) == 0 {
		return
	}
	err := bp.cb.Execute(func() error { return bp.sink.publishRSI(ctx, results) })
	if err == ErrCircuitOpen {
		bp.bufferBatch("rsi", results)
		return
	}
	if err != nil {
		log.Printf("[redis] rsi publish failed: %v", err)
	}
}

func (bp *BufferedPublisher) PublishAlerts(ctx context.Context, events []model.AlertEvent) {
	if len(events) == 0 {
		return
	}
	err := bp.cb.Execute(func() error { return bp.sink.publishAlerts(ctx, events) })
	if err == ErrCircuitOpen {
		bp.bufferBatch("alerts", events)
		return
	}
	if err != nil {
		log.Printf("[redis] alert publish failed: %v", err)
	}
}

func (bp *BufferedPublisher) NotifyRulesChanged(ctx context.Context) {
	err := bp.cb.Execute(func() error { return bp.sink.notifyRulesChanged(ctx) })
	if err == ErrCircuitOpen {
		bp.bufferBatch("rules_changed", nil)
		return
	}
	if err != nil {
		log.Printf("[redis] rules changed publish failed: %v", err)
	}
}

func (bp *BufferedPublisher) bufferBatch(kind string, payload interface{}) {
	var data []byte
	if payload != nil {
		var err error
		data, err = json.Marshal(payload)
		if err != nil {
			log.Printf("[redis] buffer marshal error: %v", err)
			return
		}
	}

	bp.mu.Lock()
	defer bp.mu.Unlock()

	if len(bp.buffer) >= bp.maxBuf {
		// Buffer full: drop the oldest batch.
		bp.buffer = bp.buffer[1:]
	}
	bp.buffer = append(bp.buffer, pendingPublish{Kind: kind, Data: data})

	if bp.OnBuffer != nil {
		bp.OnBuffer()
	}
}

// flush replays buffered batches in arrival order.
func (bp *BufferedPublisher) flush() {
	bp.mu.Lock()
	if len(bp.buffer) == 0 {
		bp.mu.Unlock()
		return
	}
	toFlush := bp.buffer
	bp.buffer = make([]pendingPublish, 0, 16)
	bp.mu.Unlock()

	flushed := 0
	for _, pending := range toFlush {
		switch pending.Kind {
		case "rsi":
			var results []model.RSIResult
			if json.Unmarshal(pending.Data, &results) == nil {
				if err := bp.sink.publishRSI(bp.ctx, results); err != nil {
					log.Printf("[redis] flush rsi batch: %v", err)
				}
			}
		case "alerts":
			var events []model.AlertEvent
			if json.Unmarshal(pending.Data, &events) == nil {
				if err := bp.sink.publishAlerts(bp.ctx, events); err != nil {
					log.Printf("[redis] flush alert batch: %v", err)
				}
			}
		case "rules_changed":
			if err := bp.sink.notifyRulesChanged(bp.ctx); err != nil {
				log.Printf("[redis] flush rules changed: %v", err)
			}
		}
		flushed++
	}

	log.Printf("[redis] flushed %d buffered batches", flushed)
	if bp.OnFlush != nil {
		bp.OnFlush(flushed)
	}
}

// PendingCount returns the number of buffered batches.
func (bp *BufferedPublisher) PendingCount() int {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	return len(bp.buffer)
}

// Close closes the wrapped publisher.
func (bp *BufferedPublisher) Close() error {
	if bp.pub != nil {
		return bp.pub.Close()
	}
	return nil
}
