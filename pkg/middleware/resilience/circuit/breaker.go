// Package circuit provides a circuit breaker for LLM provider calls: after
// repeated failures the breaker rejects requests outright until the provider
// has had time to recover.
package circuit

import (
	"fmt"
	"sync"
	"time"
)

// State is the breaker's position in the failure lifecycle.
type State int

const (
	// Closed passes requests through and counts consecutive failures.
	Closed State = iota
	// Open rejects every request until the recovery timeout elapses.
	Open
	// HalfOpen lets probe requests through to test whether the provider
	// has recovered.
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Config tunes the breaker thresholds.
type Config struct {
	// FailureThreshold is how many consecutive failures open the circuit.
	FailureThreshold int `json:"failure_threshold"`
	// SuccessThreshold is how many probe successes close it again.
	SuccessThreshold int `json:"success_threshold"`
	// Timeout is how long an open circuit waits before probing.
	Timeout time.Duration `json:"timeout"`
}

// Error is returned when a request is rejected by an open circuit.
type Error struct {
	State State
}

func (e *Error) Error() string {
	return fmt.Sprintf("circuit breaker is %s", e.State)
}

// Breaker tracks request outcomes for one provider and decides whether the
// next request may proceed.
type Breaker struct {
	cfg Config

	mu        sync.Mutex
	state     State
	failures  int
	successes int
	openedAt  time.Time

	now func() time.Time // stubbed in tests
}

// New creates a closed breaker.
func New(cfg Config) *Breaker {
	return &Breaker{cfg: cfg, state: Closed, now: time.Now}
}

// Allow reports whether a request may proceed. An open breaker flips to
// half-open once the recovery timeout has elapsed since it opened.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == Open && b.now().Sub(b.openedAt) >= b.cfg.Timeout {
		b.moveTo(HalfOpen)
	}
	return b.state != Open
}

// Record feeds the outcome of a completed request into the state machine.
func (b *Breaker) Record(success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !success {
		b.failures++
		switch b.state {
		case Closed:
			if b.failures >= b.cfg.FailureThreshold {
				b.moveTo(Open)
			}
		case HalfOpen:
			// A failed probe reopens immediately.
			b.moveTo(Open)
		}
		return
	}

	switch b.state {
	case Closed:
		b.failures = 0
	case HalfOpen:
		b.successes++
		if b.successes >= b.cfg.SuccessThreshold {
			b.moveTo(Closed)
		}
	}
}

// GetState returns the current state.
func (b *Breaker) GetState() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Reset forces the breaker closed, clearing all counters.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.moveTo(Closed)
}

// moveTo transitions the state machine, resetting the counters that belong to
// the new state. Callers must hold b.mu.
func (b *Breaker) moveTo(to State) {
	b.state = to
	switch to {
	case Open:
		b.openedAt = b.now()
		b.successes = 0
	case Closed, HalfOpen:
		b.failures = 0
		b.successes = 0
	}
}
