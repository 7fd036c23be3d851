// breaker.go - Circuit breaker around storage backends.
//
// After repeated backend failures new uploads fail fast instead of each
// waiting on a dead backend. Nothing is retried.
package storage

import (
	"context"
	"errors"
	"sync"
	"time"

	"clip-drop/internal/logging"
	"clip-drop/internal/submission"
)

// CircuitState represents the current state of a circuit breaker.
type CircuitState int

const (
	// StateClosed: requests flow normally
	StateClosed CircuitState = iota
	// StateOpen: requests fail fast
	StateOpen
	// StateHalfOpen: one trial request is allowed through
	StateHalfOpen
)

func (s CircuitState) String() string {
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

var (
	// ErrCircuitOpen is returned when circuit breaker is open.
	ErrCircuitOpen = errors.New("storage backend unavailable (circuit open)")

	// ErrTooManyRequests is returned when the half-open trial slot is taken.
	ErrTooManyRequests = errors.New("storage backend recovering, try again shortly")
)

// CircuitBreaker counts consecutive failures and opens after maxFailures.
type CircuitBreaker struct {
	mu sync.Mutex

	name        string
	maxFailures uint32
	timeout     time.Duration
	now         func() time.Time

	state           CircuitState
	failures        uint32
	lastFailureTime time.Time
	probing         bool
}

// NewCircuitBreaker creates a closed breaker.
func NewCircuitBreaker(name string, maxFailures uint32, timeout time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		name:        name,
		maxFailures: maxFailures,
		timeout:     timeout,
		now:         time.Now,
		state:       StateClosed,
	}
}

// Execute runs fn unless the circuit is open. Context cancellation is the
// caller going away, not a backend fault, so it does not count as a failure.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	if err := cb.before(); err != nil {
		return err
	}

	err := fn()

	cb.after(err)
	return err
}

func (cb *CircuitBreaker) before() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateOpen:
		if cb.now().Sub(cb.lastFailureTime) <= cb.timeout {
			return ErrCircuitOpen
		}
		cb.state = StateHalfOpen
		cb.probing = false
		logging.Info("circuit_breaker_half_open", logging.Fields{"backend": cb.name})
		fallthrough
	case StateHalfOpen:
		if cb.probing {
			return ErrTooManyRequests
		}
		cb.probing = true
	}
	return nil
}

func (cb *CircuitBreaker) after(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	wasTrial := cb.state == StateHalfOpen
	if wasTrial {
		cb.probing = false
	}

	if err == nil || errors.Is(err, context.Canceled) {
		if wasTrial && err == nil {
			cb.state = StateClosed
			logging.Info("circuit_breaker_closed", logging.Fields{"backend": cb.name})
		}
		if err == nil {
			cb.failures = 0
		}
		return
	}

	cb.failures++
	cb.lastFailureTime = cb.now()

	if wasTrial || cb.failures >= cb.maxFailures {
		if cb.state != StateOpen {
			logging.Warn("circuit_breaker_opened", logging.Fields{
				"backend":      cb.name,
				"failures":     cb.failures,
				"max_failures": cb.maxFailures,
				"timeout":      cb.timeout.String(),
			})
		}
		cb.state = StateOpen
	}
}

// State returns the current circuit state.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Guarded wraps an Uploader with a CircuitBreaker.
type Guarded struct {
	Uploader
	cb *CircuitBreaker
}

// WithBreaker wraps u so that repeated failures open the circuit.
func WithBreaker(u Uploader, maxFailures uint32, timeout time.Duration) *Guarded {
	return &Guarded{Uploader: u, cb: NewCircuitBreaker(u.Name(), maxFailures, timeout)}
}

// Upload delegates to the wrapped backend through the breaker.
func (g *Guarded) Upload(ctx context.Context, sub *submission.Submission, storedName string) (Reference, error) {
	var ref Reference
	err := g.cb.Execute(func() error {
		var err error
		ref, err = g.Uploader.Upload(ctx, sub, storedName)
		return err
	})
	return ref, err
}

// Ping forwards to the wrapped backend when it supports health checks.
func (g *Guarded) Ping(ctx context.Context) error {
	if p, ok := g.Uploader.(Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

// Unwrap returns the wrapped backend.
func (g *Guarded) Unwrap() Uploader { return g.Uploader }

// Breaker exposes the breaker for health reporting.
func (g *Guarded) Breaker() *CircuitBreaker { return g.cb }
