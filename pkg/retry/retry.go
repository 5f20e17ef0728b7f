// Package retry re-runs idempotent operations with capped exponential backoff.
// Lesson content loads and optimistic hearts updates go through it. XP
// awards never do.
package retry

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"
)

type markedError struct {
	err   error
	retry bool
}

func (e *markedError) Error() string { return e.err.Error() }
func (e *markedError) Unwrap() error { return e.err }

// Retryable marks err as transient.
func Retryable(err error) error {
	if err == nil {
		return nil
	}
	return &markedError{err: err, retry: true}
}

// Permanent marks err as final. Do returns the unwrapped error at once.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &markedError{err: err}
}

func marked(err error) (*markedError, bool) {
	var m *markedError
	ok := errors.As(err, &m)
	return m, ok
}

// IsRetryable reports whether err was marked with Retryable.
func IsRetryable(err error) bool {
	m, ok := marked(err)
	return ok && m.retry
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	m, ok := marked(err)
	return ok && !m.retry
}

// OnRetryFunc is called before each wait.
type OnRetryFunc func(attempt int, err error, delay time.Duration)

type policy struct {
	attempts int
	base     time.Duration
	ceiling  time.Duration
	jitter   float64
	should   func(error) bool
	onRetry  OnRetryFunc
	wait     func(ctx context.Context, d time.Duration) error
}

// Option adjusts a Retrier.
type Option func(*policy)

// WithMaxAttempts counts the first call.
func WithMaxAttempts(n int) Option {
	return func(p *policy) {
		if n > 0 {
			p.attempts = n
		}
	}
}

// WithInitialDelay sets the first wait. Each later wait doubles.
func WithInitialDelay(d time.Duration) Option {
	return func(p *policy) {
		if d > 0 {
			p.base = d
		}
	}
}

// WithMaxDelay caps a single wait.
func WithMaxDelay(d time.Duration) Option {
	return func(p *policy) {
		if d > 0 {
			p.ceiling = d
		}
	}
}

// WithJitter spreads each wait by up to ±j of its length.
func WithJitter(j float64) Option {
	return func(p *policy) {
		if j >= 0 && j <= 1 {
			p.jitter = j
		}
	}
}

// WithRetryIf replaces the default classifier, which only retries errors
// marked with Retryable.
func WithRetryIf(fn func(error) bool) Option {
	return func(p *policy) {
		if fn != nil {
			p.should = fn
		}
	}
}

// WithOnRetry sets the retry hook.
func WithOnRetry(fn OnRetryFunc) Option {
	return func(p *policy) { p.onRetry = fn }
}

// WithWait replaces the timer between attempts. Used by tests.
func WithWait(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(p *policy) {
		if fn != nil {
			p.wait = fn
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Retrier is immutable and safe to share.
type Retrier struct {
	p policy
}

// New builds a Retrier. Defaults: 3 attempts, 100ms first wait, 5s cap, 10% jitter.
func New(opts ...Option) *Retrier {
	p := policy{
		attempts: 3,
		base:     100 * time.Millisecond,
		ceiling:  5 * time.Second,
		jitter:   0.1,
		should:   IsRetryable,
		wait:     sleep,
	}
	for _, opt := range opts {
		opt(&p)
	}
	return &Retrier{p: p}
}

// Do calls op until it succeeds, fails with a non-retryable error or runs out
// of attempts. Markers are stripped from the returned error. Cancelling ctx
// during a wait returns the last operation error.
func (r *Retrier) Do(ctx context.Context, op func(ctx context.Context) error) error {
	var last error
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			if last != nil {
				return last
			}
			return err
		}

		err := op(ctx)
		if err == nil {
			return nil
		}
		if m, ok := marked(err); ok {
			if !m.retry {
				return m.err
			}
			last = m.err
		} else {
			last = err
		}

		if attempt >= r.p.attempts || IsPermanent(err) || !r.p.should(err) {
			return last
		}

		delay := r.backoff(attempt)
		if r.p.onRetry != nil {
			r.p.onRetry(attempt, last, delay)
		}
		if r.p.wait(ctx, delay) != nil {
			return last
		}
	}
}

func (r *Retrier) backoff(attempt int) time.Duration {
	d := r.p.base << (attempt - 1)
	if d <= 0 || d > r.p.ceiling {
		d = r.p.ceiling
	}
	if r.p.jitter > 0 {
		spread := float64(d) * r.p.jitter
		d += time.Duration(spread * (2*rand.Float64() - 1))
	}
	return max(d, 0)
}

// ContentRetrier retries lesson content loads on any error not marked
// Permanent.
func ContentRetrier(onRetry OnRetryFunc, opts ...Option) *Retrier {
	base := []Option{
		WithMaxAttempts(3),
		WithInitialDelay(100 * time.Millisecond),
		WithMaxDelay(2 * time.Second),
		WithJitter(0.2),
		WithRetryIf(func(error) bool { return true }),
		WithOnRetry(onRetry),
	}
	return New(append(base, opts...)...)
}
