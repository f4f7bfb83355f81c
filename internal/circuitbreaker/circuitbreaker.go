// Package circuitbreaker stops calling the climate API after repeated failures
// and lets probe calls through once the open timeout has elapsed.
package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrOpen is returned by Call while the circuit is open.
var ErrOpen = errors.New("circuit breaker open")

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

// State is the circuit breaker state (Closed, Open, HalfOpen).
type State int

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// Config holds circuit breaker parameters. Zero values take defaults.
type Config struct {
	FailureThreshold int
	SuccessThreshold int
	Timeout          time.Duration
	Component        string
	// OnStateChange is called outside the lock after every transition.
	OnStateChange func(component string, from, to State)
	// IsFailure decides whether an error counts against the circuit. Nil counts every error.
	IsFailure func(error) bool
	// Now overrides the clock. For tests.
	Now func() time.Time
}

// CircuitBreaker guards calls to one upstream component.
type CircuitBreaker struct {
	mu               sync.Mutex
	state            State
	failureCount     int
	successCount     int
	openedAt         time.Time
	failureThreshold int
	successThreshold int
	timeout          time.Duration
	component        string
	onStateChange    func(component string, from, to State)
	isFailure        func(error) bool
	now              func() time.Time
}

// New creates a CircuitBreaker in the closed state.
func New(cfg Config) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = 2
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &CircuitBreaker{
		state:            StateClosed,
		failureThreshold: cfg.FailureThreshold,
		successThreshold: cfg.SuccessThreshold,
		timeout:          cfg.Timeout,
		component:        cfg.Component,
		onStateChange:    cfg.OnStateChange,
		isFailure:        cfg.IsFailure,
		now:              cfg.Now,
	}
}

// Call runs fn when the circuit allows it. While open it returns ErrOpen until the
// timeout elapses, then moves to half-open and lets calls probe the upstream.
func (cb *CircuitBreaker) Call(ctx context.Context, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var changes []transition
	cb.mu.Lock()
	if cb.state == StateOpen {
		if cb.now().Sub(cb.openedAt) < cb.timeout {
			cb.mu.Unlock()
			return ErrOpen
		}
		changes = cb.transitionLocked(changes, StateHalfOpen)
	}
	cb.mu.Unlock()
	cb.emit(changes)

	err := fn()

	changes = nil
	cb.mu.Lock()
	if err != nil && (cb.isFailure == nil || cb.isFailure(err)) {
		cb.failureCount++
		cb.successCount = 0
		if cb.state == StateHalfOpen || cb.failureCount >= cb.failureThreshold {
			cb.openedAt = cb.now()
			cb.failureCount = 0
			changes = cb.transitionLocked(changes, StateOpen)
		}
	} else {
		cb.failureCount = 0
		if cb.state == StateHalfOpen {
			cb.successCount++
			if cb.successCount >= cb.successThreshold {
				cb.successCount = 0
				changes = cb.transitionLocked(changes, StateClosed)
			}
		}
	}
	cb.mu.Unlock()
	cb.emit(changes)
	return err
}

// State returns the current state.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

type transition struct{ from, to State }

func (cb *CircuitBreaker) transitionLocked(changes []transition, to State) []transition {
	if cb.state == to {
		return changes
	}
	changes = append(changes, transition{cb.state, to})
	cb.state = to
	return changes
}

// emit delivers transitions to OnStateChange; callers must not hold mu.
func (cb *CircuitBreaker) emit(changes []transition) {
	if cb.onStateChange == nil {
		return
	}
	for _, t := range changes {
		cb.onStateChange(cb.component, t.from, t.to)
	}
}
