package redis

import (
	"errors"
	"sync"
	"time"
)

// State is the circuit breaker state.
type State int

const (
	StateClosed   State = 0 // publishes pass through
	StateOpen     State = 1 // publishes rejected until the cooldown elapses
	StateHalfOpen State = 2 // single probe allowed through
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrCircuitOpen is returned while the breaker is rejecting calls.
var ErrCircuitOpen = errors.New("redis: circuit breaker is open")

// CircuitBreaker trips after a run of consecutive failures and rejects
// calls for a cooldown period. The first call after the cooldown runs as
// a probe: success closes the breaker, failure reopens it. It guards the
// publisher so a Redis outage degrades to local buffering instead of
// stalling the refresh loop.
type CircuitBreaker struct {
	mu        sync.Mutex
	state     State
	streak    int // consecutive failures
	threshold int
	cooldown  time.Duration
	openedAt  time.Time

	// OnStateChange, when set, observes transitions. It runs with the
	// breaker lock held and must not call back into the breaker.
	OnStateChange func(from, to State)
}

// NewCircuitBreaker builds a breaker that opens after threshold
// consecutive failures and probes again after cooldown.
func NewCircuitBreaker(threshold int, cooldown time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		threshold: threshold,
		cooldown:  cooldown,
		state:     StateClosed,
	}
}

// Execute runs fn unless the breaker is open. While open and inside the
// cooldown it returns ErrCircuitOpen without calling fn.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	if !cb.allow() {
		return ErrCircuitOpen
	}
	err := fn()
	cb.record(err)
	return err
}

// CurrentState returns the state at this instant.
func (cb *CircuitBreaker) CurrentState() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// allow reports whether a call may proceed, moving an expired open
// breaker to half-open first.
func (cb *CircuitBreaker) allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateOpen {
		if time.Since(cb.openedAt) <= cb.cooldown {
			return false
		}
		cb.transition(StateHalfOpen)
	}
	return true
}

func (cb *CircuitBreaker) record(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err == nil {
		if cb.state == StateHalfOpen {
			cb.transition(StateClosed)
		}
		cb.streak = 0
		return
	}

	cb.streak++
	switch {
	case cb.state == StateHalfOpen:
		// Probe failed: back to open for another cooldown.
		cb.transition(StateOpen)
	case cb.state == StateClosed && cb.streak >= cb.threshold:
		cb.transition(StateOpen)
	}
}

func (cb *CircuitBreaker) transition(to State) {
	from := cb.state
	cb.state = to
	switch to {
	case StateOpen:
		cb.openedAt = time.Now()
	case StateClosed:
		cb.streak = 0
	}
	if cb.OnStateChange != nil {
		cb.OnStateChange(from, to)
	}
}
