// Package indicator computes the Relative Strength Index over daily close
// series. Averages use a simple moving mean over a trailing window of exactly
// `period` day-over-day differences, so a reading exists only once the window
// is full: the first `period` rows of any series carry no value.
package indicator

import "momentum-systemv1/internal/ringbuf"

// DefaultPeriod is the conventional RSI window length.
const DefaultPeriod = 14

// RSI is a streaming Relative Strength Index. Update is O(1) per bar apart
// from the window-mean scan, which is bounded by the period.
type RSI struct {
	period    int
	seen      int // bars consumed, including the first (diff-less) one
	prevClose float64
	gains     *ringbuf.Window
	losses    *ringbuf.Window
	current   float64
}

// NewRSI creates a streaming RSI with the given period (typically 14).
func NewRSI(period int) *RSI {
	if period < 1 {
		period = 1
	}
	return &RSI{
		period: period,
		gains:  ringbuf.New(period),
		losses: ringbuf.New(period),
	}
}

func (r *RSI) Name() string { return "RSI" }

// Period returns the configured window length.
func (r *RSI) Period() int { return r.period }

// Update feeds the next close in series order and recalculates.
func (r *RSI) Update(close float64) {
	r.seen++

	if r.seen == 1 {
		// First bar: record the close, no difference yet.
		r.prevClose = close
		return
	}

	delta := close - r.prevClose
	r.prevClose = close

	gain, loss := 0.0, 0.0
	if delta > 0 {
		gain = delta
	} else {
		loss = -delta
	}
	r.gains.Push(gain)
	r.losses.Push(loss)

	if !r.gains.Full() {
		return
	}
	r.current = rsiFrom(r.gains.Mean(), r.losses.Mean())
}

// Value returns the current reading. Returns 0 if not enough data;
// check Ready before trusting it.
func (r *RSI) Value() float64 { return r.current }

// Ready reports whether the trailing window holds period differences.
func (r *RSI) Ready() bool { return r.gains.Full() }

// Peek computes what Value() would be if a bar with this close were appended
// next, without mutating state. Returns the current value while even the
// hypothetical window would not be full.
func (r *RSI) Peek(close float64) float64 {
	if r.seen < r.period {
		return r.current
	}
	delta := close - r.prevClose
	gain, loss := 0.0, 0.0
	if delta > 0 {
		gain = delta
	} else {
		loss = -delta
	}
	return rsiFrom(peekMean(r.gains, gain), peekMean(r.losses, loss))
}

// rsiFrom maps the trailing averages to the [0, 100] oscillator. A window of
// pure gains has avgLoss == 0, where the ratio is undefined by division; that
// resolves to 100 exactly, never an error.
func rsiFrom(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 100.0
	}
	rs := avgGain / avgLoss
	return 100.0 - (100.0 / (1.0 + rs))
}

// peekMean is the window mean as if v were pushed, without mutating.
func peekMean(w *ringbuf.Window, v float64) float64 {
	vals := w.Values()
	if len(vals) == w.Cap() {
		vals = vals[1:] // the push would evict the oldest
	}
	sum := v
	for _, x := range vals {
		sum += x
	}
	return sum / float64(len(vals)+1)
}

// Snapshot serializes the RSI state for checkpoint persistence.
func (r *RSI) Snapshot() RSISnapshot {
	return RSISnapshot{
		Period:    r.period,
		Seen:      r.seen,
		PrevClose: r.prevClose,
		Gains:     r.gains.Values(),
		Losses:    r.losses.Values(),
		Current:   r.current,
	}
}

// RestoreFromSnapshot rebuilds RSI state from a checkpoint.
func (r *RSI) RestoreFromSnapshot(snap RSISnapshot) {
	r.period = snap.Period
	if r.period < 1 {
		r.period = 1
	}
	r.seen = snap.Seen
	r.prevClose = snap.PrevClose
	r.current = snap.Current
	r.gains = ringbuf.New(r.period)
	r.losses = ringbuf.New(r.period)
	for _, v := range snap.Gains {
		r.gains.Push(v)
	}
	for _, v := range snap.Losses {
		r.losses.Push(v)
	}
}
