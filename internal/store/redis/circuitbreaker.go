package redis

import (
	"fmt"
	"sync"
	"time"
)

// State is the publish gate's state.
type State int

const (
	StateClosed   State = 0 // Redis healthy, publishes go through
	StateOpen     State = 1 // Redis failing, publishes fail fast and buffer
	StateHalfOpen State = 2 // one trial publish allowed to test recovery
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

// CircuitBreaker gates publishes so a dead Redis cannot stall the analysis
// loop on per-call timeouts. maxFailures consecutive publish errors open the
// gate; for resetTimeout every call fails fast with ErrCircuitOpen (the
// publisher buffers the result instead). After the timeout one trial publish
// goes through: success closes the gate, failure reopens it.
type CircuitBreaker struct {
	mu           sync.Mutex
	state        State
	failures     int
	maxFailures  int
	resetTimeout time.Duration
	lastFailure  time.Time

	// OnStateChange, when set, observes every transition. The publisher
	// feeds it to a metrics gauge.
	OnStateChange func(from, to State)
}

// NewCircuitBreaker creates a closed breaker. maxFailures is the consecutive
// error count that opens it, resetTimeout the cool-off before a trial call.
func NewCircuitBreaker(maxFailures int, resetTimeout time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		maxFailures:  maxFailures,
		resetTimeout: resetTimeout,
		state:        StateClosed,
	}
}

// Execute runs fn under the gate. While open and inside the cool-off it
// returns ErrCircuitOpen without calling fn.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	cb.mu.Lock()

	switch cb.state {
	case StateOpen:
		if time.Since(cb.lastFailure) > cb.resetTimeout {
			cb.transition(StateHalfOpen)
		} else {
			cb.mu.Unlock()
			return ErrCircuitOpen
		}

	case StateHalfOpen:
		// trial call proceeds; the mutex serializes entry
	}

	cb.mu.Unlock()

	err := fn()

	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err != nil {
		cb.failures++
		cb.lastFailure = time.Now()

		if cb.state == StateHalfOpen {
			cb.transition(StateOpen)
		} else if cb.failures >= cb.maxFailures {
			cb.transition(StateOpen)
		}
		return err
	}

	if cb.state == StateHalfOpen {
		cb.transition(StateClosed)
	}
	cb.failures = 0
	return nil
}

// CurrentState reports the gate's state.
func (cb *CircuitBreaker) CurrentState() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

func (cb *CircuitBreaker) transition(to State) {
	from := cb.state
	cb.state = to
	if to == StateClosed {
		cb.failures = 0
	}
	if cb.OnStateChange != nil {
		cb.OnStateChange(from, to)
	}
}

// ErrCircuitOpen fails a publish fast while Redis is considered down.
var ErrCircuitOpen = fmt.Errorf("circuit breaker is open")
