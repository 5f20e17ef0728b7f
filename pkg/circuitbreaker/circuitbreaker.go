// Package circuitbreaker short-circuits calls to a backend that keeps failing.
// The completion flow wraps the weekly league store with one and the
// standings handlers wrap Redis with another.
package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"time"
)

// State of a breaker.
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
	}
	return "unknown"
}

// ErrCircuitOpen is returned without calling the backend while the breaker is
// open or its half-open probe slots are taken.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// StateHook observes transitions. Metrics export it as a gauge.
type StateHook func(name string, from, to State)

// ══════════════════════════════════════════════════════════════════════════════
// OPTIONS
// ══════════════════════════════════════════════════════════════════════════════

type settings struct {
	tripAfter  int
	closeAfter int
	cooldown   time.Duration
	probes     int
	hook       StateHook
	counts     func(error) bool
	now        func() time.Time
}

// Option configures a breaker.
type Option func(*settings)

// WithFailureThreshold sets how many consecutive failures open the breaker.
func WithFailureThreshold(n int) Option {
	return func(s *settings) {
		if n > 0 {
			s.tripAfter = n
		}
	}
}

// WithSuccessThreshold sets how many half-open successes close it again.
func WithSuccessThreshold(n int) Option {
	return func(s *settings) {
		if n > 0 {
			s.closeAfter = n
		}
	}
}

// WithTimeout sets the cooldown before an open breaker lets a probe through.
func WithTimeout(d time.Duration) Option {
	return func(s *settings) {
		if d > 0 {
			s.cooldown = d
		}
	}
}

// WithMaxHalfOpenRequests caps concurrent probes while half-open.
func WithMaxHalfOpenRequests(n int) Option {
	return func(s *settings) {
		if n > 0 {
			s.probes = n
		}
	}
}

// WithOnStateChange sets the transition hook.
func WithOnStateChange(fn StateHook) Option {
	return func(s *settings) { s.hook = fn }
}

// WithIsFailure decides which errors count against the backend. By default
// every error counts except context cancellation by the caller.
func WithIsFailure(fn func(error) bool) Option {
	return func(s *settings) {
		if fn != nil {
			s.counts = fn
		}
	}
}

// WithClock replaces time.Now. Used by tests.
func WithClock(now func() time.Time) Option {
	return func(s *settings) {
		if now != nil {
			s.now = now
		}
	}
}

func countsByDefault(err error) bool {
	return !errors.Is(err, context.Canceled)
}

// ══════════════════════════════════════════════════════════════════════════════
// BREAKER
// ══════════════════════════════════════════════════════════════════════════════

// CircuitBreaker is safe for concurrent use.
type CircuitBreaker struct {
	name string
	cfg  settings

	mu        sync.Mutex
	state     State
	failures  int
	successes int
	inFlight  int
	openedAt  time.Time
}

// New creates a closed breaker. Defaults: 5 failures to trip, 30s cooldown,
// one probe, one success to close.
func New(name string, opts ...Option) *CircuitBreaker {
	cfg := settings{
		tripAfter:  5,
		closeAfter: 1,
		cooldown:   30 * time.Second,
		probes:     1,
		counts:     countsByDefault,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &CircuitBreaker{name: name, cfg: cfg}
}

// Name returns the breaker name used in metrics.
func (cb *CircuitBreaker) Name() string { return cb.name }

// State returns the current state. An open breaker past its cooldown is
// reported as half-open.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.coolDownLocked()
	return cb.state
}

// Execute calls fn unless the breaker is open.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	if err := cb.admit(); err != nil {
		return err
	}
	err := fn(ctx)
	cb.record(err)
	return err
}

func (cb *CircuitBreaker) admit() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.coolDownLocked()
	switch cb.state {
	case StateOpen:
		return ErrCircuitOpen
	case StateHalfOpen:
		if cb.inFlight >= cb.cfg.probes {
			return ErrCircuitOpen
		}
		cb.inFlight++
	}
	return nil
}

func (cb *CircuitBreaker) record(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateHalfOpen && cb.inFlight > 0 {
		cb.inFlight--
	}

	if err != nil && cb.cfg.counts(err) {
		cb.successes = 0
		cb.failures++
		if cb.state == StateHalfOpen || cb.failures >= cb.cfg.tripAfter {
			cb.openedAt = cb.cfg.now()
			cb.moveLocked(StateOpen)
		}
		return
	}

	cb.failures = 0
	if cb.state == StateHalfOpen {
		cb.successes++
		if cb.successes >= cb.cfg.closeAfter {
			cb.moveLocked(StateClosed)
		}
	}
}

func (cb *CircuitBreaker) coolDownLocked() {
	if cb.state == StateOpen && cb.cfg.now().Sub(cb.openedAt) >= cb.cfg.cooldown {
		cb.moveLocked(StateHalfOpen)
	}
}

func (cb *CircuitBreaker) moveLocked(to State) {
	from := cb.state
	if from == to {
		return
	}
	cb.state = to
	cb.failures, cb.successes, cb.inFlight = 0, 0, 0
	if cb.cfg.hook != nil {
		cb.cfg.hook(cb.name, from, to)
	}
}

// Reset closes the breaker and clears its counters.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.moveLocked(StateClosed)
	cb.failures, cb.successes, cb.inFlight = 0, 0, 0
}

// ══════════════════════════════════════════════════════════════════════════════
// PRESETS
// ══════════════════════════════════════════════════════════════════════════════

// LeagueStoreBreaker guards the best-effort weekly XP write.
func LeagueStoreBreaker(hook StateHook) *CircuitBreaker {
	return New("league-store",
		WithFailureThreshold(5),
		WithTimeout(30*time.Second),
		WithOnStateChange(hook),
	)
}

// CacheBreaker guards the Redis copy of the league tables.
func CacheBreaker(hook StateHook) *CircuitBreaker {
	return New("standings-cache",
		WithFailureThreshold(3),
		WithTimeout(10*time.Second),
		WithOnStateChange(hook),
	)
}
