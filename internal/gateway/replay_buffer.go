package gateway

import "sync"

// replayEntry holds one broadcast envelope for replay.
type replayEntry struct {
	seq  int64
	data []byte
}

// ReplayBuffer is a fixed-size circular buffer of recent alert envelopes.
// New WebSocket clients drain it on connect so they see what fired while
// they were away.
//
// Safe for concurrent writers and readers.
type ReplayBuffer struct {
	mu   sync.RWMutex
	buf  []replayEntry
	cap  int
	pos  int // next write position
	full bool
}

// NewReplayBuffer creates a buffer holding up to capacity envelopes.
func NewReplayBuffer(capacity int) *ReplayBuffer {
	if capacity <= 0 {
		capacity = 50
	}
	return &ReplayBuffer{
		buf: make([]replayEntry, capacity),
		cap: capacity,
	}
}

// Push appends an envelope, overwriting the oldest entry when full.
func (rb *ReplayBuffer) Push(seq int64, data []byte) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	// Copy so the buffer never aliases the caller's slice.
	cp := make([]byte, len(data))
	copy(cp, data)

	rb.buf[rb.pos] = replayEntry{seq: seq, data: cp}
	rb.pos = (rb.pos + 1) % rb.cap
	if rb.pos == 0 && !rb.full {
		rb.full = true
	}
}

// Recent returns up to max envelopes, oldest first. max <= 0 returns
// everything buffered.
func (rb *ReplayBuffer) Recent(max int) [][]byte {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	count := rb.len()
	if max > 0 && max < count {
		count = max
	}
	skip := rb.len() - count

	out := make([][]byte, 0, count)
	for i := skip; i < rb.len(); i++ {
		out = append(out, rb.buf[rb.index(i)].data)
	}
	return out
}

// Len returns the number of buffered envelopes.
func (rb *ReplayBuffer) Len() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.len()
}

func (rb *ReplayBuffer) len() int {
	if rb.full {
		return rb.cap
	}
	return rb.pos
}

// index converts a logical index (0 = oldest) to a physical buffer index.
func (rb *ReplayBuffer) index(logical int) int {
	if rb.full {
		return (rb.pos + logical) % rb.cap
	}
	return logical
}
