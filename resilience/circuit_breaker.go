// Package resilience guards calls to remote collaborators so that a dead
// dependency fails fast instead of holding every chat request until timeout.
package resilience

import (
	"context"
	"errors"
	"sync"
	"time"
)

// State represents the state of a Breaker
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
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

var (
	// ErrCircuitOpen is returned while the breaker rejects calls.
	ErrCircuitOpen = errors.New("circuit breaker: circuit is open")
	// ErrTooManyRequests is returned when the half-open probe slot is taken.
	ErrTooManyRequests = errors.New("circuit breaker: too many requests in half-open state")
)

// Breaker opens after MaxFailures consecutive failures and lets a single
// probe through once Cooldown has elapsed.
type Breaker struct {
	name        string
	maxFailures int
	cooldown    time.Duration
	now         func() time.Time

	mu        sync.Mutex
	state     State
	failures  int
	openedAt  time.Time
	probing   bool
	onChange  func(name string, from, to State)
	isFailure func(error) bool
}

// Option configures a Breaker.
type Option func(*Breaker)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option { return func(b *Breaker) { b.now = now } }

// WithStateChange registers a callback invoked synchronously on transitions.
func WithStateChange(fn func(name string, from, to State)) Option {
	return func(b *Breaker) { b.onChange = fn }
}

// WithFailurePredicate decides which errors count against the breaker. By
// default every error except context cancellation counts.
func WithFailurePredicate(fn func(error) bool) Option { return func(b *Breaker) { b.isFailure = fn } }

// New creates a breaker named name.
func New(name string, maxFailures int, cooldown time.Duration, opts ...Option) *Breaker {
	if maxFailures < 1 {
		maxFailures = 1
	}
	b := &Breaker{
		name:        name,
		maxFailures: maxFailures,
		cooldown:    cooldown,
		now:         time.Now,
		isFailure:   func(err error) bool {
			return !errors.Is(err, context.Canceled)
		},
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Name identifies the guarded dependency.
func (b *Breaker) Name() string { return b.name }

// Execute runs fn when the breaker allows it and records the outcome.
func (b *Breaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	if b == nil {
		return fn(ctx)
	}
	if err := b.before(); err != nil {
		return err
	}
	err := fn(ctx)
	b.after(err)
	return err
}

func (b *Breaker) before() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case StateOpen:
		if b.now().Sub(b.openedAt) < b.cooldown {
			return ErrCircuitOpen
		}
		b.transition(StateHalfOpen)
		b.probing = true
		return nil
	case StateHalfOpen:
		if b.probing {
			return ErrTooManyRequests
		}
		b.probing = true
	}
	return nil
}

func (b *Breaker) after(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	failed := err != nil && b.isFailure(err)
	switch b.state {
	case StateHalfOpen:
		b.probing = false
		if failed {
			b.failures = b.maxFailures
			b.openedAt = b.now()
			b.transition(StateOpen)
			return
		}
		b.failures = 0
		b.transition(StateClosed)
	case StateClosed:
		if !failed {
			b.failures = 0
			return
		}
		b.failures++
		if b.failures >= b.maxFailures {
			b.openedAt = b.now()
			b.transition(StateOpen)
		}
	}
}

func (b *Breaker) transition(to State) {
	if b.state == to {
		return
	}
	from := b.state
	b.state = to
	if b.onChange != nil {
		b.onChange(b.name, from, to)
	}
}

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Reset closes the breaker.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
	b.probing = false
	b.transition(StateClosed)
}
