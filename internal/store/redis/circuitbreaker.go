package redis

import (
	"errors"
	"sync"
	"time"
)

// BreakerState is the circuit breaker's position.
type BreakerState int

const (
	BreakerClosed   BreakerState = iota // writes pass through
	BreakerOpen                         // writes fast-fail locally
	BreakerHalfOpen                     // one probe write allowed
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half-open"
	}
	return "unknown"
}

// ErrCircuitOpen is returned when a write is rejected without touching
// Redis because the breaker is open.
var ErrCircuitOpen = errors.New("redis circuit open, write rejected")

// CircuitBreaker guards the hot-path Redis writes. A streak of threshold
// consecutive pipeline failures opens the circuit; bar and batch writes
// then fast-fail locally instead of stacking per-call timeouts. After
// cooldown one probe write is let through: success closes the circuit,
// failure reopens it.
type CircuitBreaker struct {
	threshold int
	cooldown  time.Duration

	mu       sync.Mutex
	state    BreakerState
	streak   int // consecutive write failures
	openedAt time.Time
	rejected uint64 // writes fast-failed while open

	// OnStateChange fires on every transition. Callers chain it: the
	// writer logs, the service records metrics, the buffered writer
	// triggers its flush.
	OnStateChange func(from, to BreakerState)
}

// NewCircuitBreaker creates a closed breaker that trips after threshold
// consecutive failures and probes again after cooldown.
func NewCircuitBreaker(threshold int, cooldown time.Duration) *CircuitBreaker {
	return &CircuitBreaker{threshold: threshold, cooldown: cooldown}
}

// Execute runs one Redis write through the breaker. While the circuit is
// open and the cooldown has not elapsed it returns ErrCircuitOpen
// without calling write.
func (cb *CircuitBreaker) Execute(write func() error) error {
	if err := cb.admit(); err != nil {
		return err
	}
	err := write()
	cb.settle(err)
	return err
}

// admit decides whether the write may proceed.
func (cb *CircuitBreaker) admit() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == BreakerOpen {
		if time.Since(cb.openedAt) <= cb.cooldown {
			cb.rejected++
			return ErrCircuitOpen
		}
		// Cooldown elapsed: let this write probe the connection.
		cb.transition(BreakerHalfOpen)
	}
	return nil
}

// settle records the write outcome and moves the state machine.
func (cb *CircuitBreaker) settle(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err == nil {
		if cb.state == BreakerHalfOpen {
			cb.transition(BreakerClosed)
		}
		cb.streak = 0
		return
	}

	cb.streak++
	cb.openedAt = time.Now()
	if cb.state == BreakerHalfOpen || cb.streak >= cb.threshold {
		cb.transition(BreakerOpen)
	}
}

// CurrentState returns the breaker's position.
func (cb *CircuitBreaker) CurrentState() BreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Rejected returns the cumulative count of writes fast-failed while the
// circuit was open.
func (cb *CircuitBreaker) Rejected() uint64 {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.rejected
}

// transition is called with cb.mu held.
func (cb *CircuitBreaker) transition(to BreakerState) {
	from := cb.state
	if from == to {
		return
	}
	cb.state = to
	if to == BreakerClosed {
		cb.streak = 0
	}
	if cb.OnStateChange != nil {
		cb.OnStateChange(from, to)
	}
}
