// Package ringbuf provides a fixed-capacity circular window over float64
// observations, the storage behind trailing rolling means. Once the window is
// full, each push evicts the oldest value.
package ringbuf

// Window keeps the most recent Cap() values pushed into it.
// Not safe for concurrent use: indicator updates are a sequential fold and
// the caller owns any synchronization above it.
type Window struct {
	buf  []float64
	next int // index the next push writes to
	n    int // current fill, <= len(buf)
}

// New creates a window. Minimum capacity is 1.
func New(capacity int) *Window {
	if capacity < 1 {
		capacity = 1
	}
	return &Window{buf: make([]float64, capacity)}
}

// Push appends a value, evicting the oldest once the window is full.
func (w *Window) Push(v float64) {
	w.buf[w.next] = v
	w.next = (w.next + 1) % len(w.buf)
	if w.n < len(w.buf) {
		w.n++
	}
}

// Full reports whether the window holds Cap() values.
func (w *Window) Full() bool { return w.n == len(w.buf) }

// Len returns the current number of values held.
func (w *Window) Len() int { return w.n }

// Cap returns the window capacity.
func (w *Window) Cap() int { return len(w.buf) }

// Sum returns the sum of the held values. Summed on demand rather than kept
// incrementally so long-running streams cannot accumulate float drift.
func (w *Window) Sum() float64 {
	var s float64
	for i := 0; i < w.n; i++ {
		s += w.buf[i]
	}
	return s
}

// Mean returns Sum()/Len(), or 0 when empty.
func (w *Window) Mean() float64 {
	if w.n == 0 {
		return 0
	}
	return w.Sum() / float64(w.n)
}

// Values returns the held values oldest first. The slice is a copy.
func (w *Window) Values() []float64 {
	out := make([]float64, w.n)
	start := w.next - w.n
	if start < 0 {
		start += len(w.buf)
	}
	for i := 0; i < w.n; i++ {
		out[i] = w.buf[(start+i)%len(w.buf)]
	}
	return out
}

// Reset empties the window without reallocating.
func (w *Window) Reset() {
	w.next = 0
	w.n = 0
}
