package marketdata

import (
	"context"
	"errors"
	"sync"
	"time"

	"market-terminal/internal/model"
)

// ErrCircuitOpen is returned when the feed breaker is open.
var ErrCircuitOpen = errors.New("marketdata: circuit breaker is open")

// State represents the circuit breaker state.
type State int

const (
	StateClosed   State = 0 // Normal operation, requests pass through
	StateOpen     State = 1 // Tripped, requests rejected immediately
	StateHalfOpen State = 2 // One trial request allowed through
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

// CircuitBreaker stops hammering a failing feed. After maxFailures
// consecutive failures it opens and rejects calls for resetTimeout, then lets
// one trial call through while everyone else keeps getting ErrCircuitOpen; a
// successful trial closes it, a failed one reopens it.
type CircuitBreaker struct {
	mu           sync.Mutex
	state        State
	failures     int
	maxFailures  int
	resetTimeout time.Duration
	lastFailure  time.Time
	trialing     bool
	now          func() time.Time

	// OnStateChange is called on state transitions (optional).
	OnStateChange func(from, to State)
}

// NewCircuitBreaker creates a circuit breaker.
// maxFailures: consecutive failures before opening (e.g., 5)
// resetTimeout: time to wait before the half-open trial (e.g., 30s)
func NewCircuitBreaker(maxFailures int, resetTimeout time.Duration) *CircuitBreaker {
	if maxFailures < 1 {
		maxFailures = 1
	}
	return &CircuitBreaker{
		maxFailures:  maxFailures,
		resetTimeout: resetTimeout,
		state:        StateClosed,
		now:          time.Now,
	}
}

// Execute runs fn through the circuit breaker. Errors that count as feed
// failures trip the breaker; ErrDataUnavailable from a healthy feed does not.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	cb.mu.Lock()
	trial := false
	switch cb.state {
	case StateOpen:
		if cb.now().Sub(cb.lastFailure) <= cb.resetTimeout {
			cb.mu.Unlock()
			return ErrCircuitOpen
		}
		cb.transition(StateHalfOpen)
		cb.trialing, trial = true, true
	case StateHalfOpen:
		if cb.trialing {
			cb.mu.Unlock()
			return ErrCircuitOpen
		}
		cb.trialing, trial = true, true
	}
	cb.mu.Unlock()

	err := fn()

	cb.mu.Lock()
	defer cb.mu.Unlock()
	if trial {
		cb.trialing = false
	} else if cb.state == StateHalfOpen {
		// a call admitted before the trip; only the trial call decides
		return err
	}

	if err != nil && !errors.Is(err, ErrDataUnavailable) {
		cb.failures++
		cb.lastFailure = cb.now()
		if cb.state == StateHalfOpen || cb.failures >= cb.maxFailures {
			cb.transition(StateOpen)
		}
		return err
	}

	if cb.state == StateHalfOpen {
		cb.transition(StateClosed)
	}
	cb.failures = 0
	return err
}

// CurrentState returns the current circuit breaker state.
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
	if cb.OnStateChange != nil && from != to {
		cb.OnStateChange(from, to)
	}
}

// Guarded wraps a provider with a circuit breaker.
type Guarded struct {
	next    Provider
	breaker *CircuitBreaker
}

// NewGuarded returns a provider whose calls go through cb.
func NewGuarded(next Provider, cb *CircuitBreaker) *Guarded {
	return &Guarded{next: next, breaker: cb}
}

// Breaker returns the underlying breaker.
func (g *Guarded) Breaker() *CircuitBreaker { return g.breaker }

func (g *Guarded) Fetch(ctx context.Context, symbol string, tf model.Timeframe) (model.PriceSeries, error) {
	var out model.PriceSeries
	err := g.breaker.Execute(func() error {
		s, err := g.next.Fetch(ctx, symbol, tf)
		out = s
		return err
	})
	return out, err
}
