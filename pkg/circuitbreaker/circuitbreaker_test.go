package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errDown = errors.New("store down")

func fail(context.Context) error { return errDown }
func ok(context.Context) error   { return nil }

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	var transitions []State
	cb := New("test",
		WithFailureThreshold(2),
		WithTimeout(time.Hour),
		WithOnStateChange(func(_ string, _, to State) { transitions = append(transitions, to) }),
	)
	ctx := context.Background()

	assert.ErrorIs(t, cb.Execute(ctx, fail), errDown)
	assert.Equal(t, StateClosed, cb.State())
	assert.ErrorIs(t, cb.Execute(ctx, fail), errDown)
	assert.Equal(t, StateOpen, cb.State())

	called := false
	err := cb.Execute(ctx, func(context.Context) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)
	assert.Equal(t, []State{StateOpen}, transitions)
}

func TestCircuitBreaker_SuccessResetsFailureRun(t *testing.T) {
	cb := New("test", WithFailureThreshold(2))
	ctx := context.Background()

	_ = cb.Execute(ctx, fail)
	require.NoError(t, cb.Execute(ctx, ok))
	_ = cb.Execute(ctx, fail)
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreaker_HalfOpenProbe(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)}
	cb := New("test", WithFailureThreshold(1), WithTimeout(10*time.Second), WithClock(clock.now))
	ctx := context.Background()

	_ = cb.Execute(ctx, fail)
	require.Equal(t, StateOpen, cb.State())

	clock.t = clock.t.Add(10 * time.Second)
	assert.Equal(t, StateHalfOpen, cb.State())

	// a failed probe re-opens with a fresh cooldown
	_ = cb.Execute(ctx, fail)
	assert.Equal(t, StateOpen, cb.State())
	clock.t = clock.t.Add(5 * time.Second)
	assert.ErrorIs(t, cb.Execute(ctx, ok), ErrCircuitOpen)

	clock.t = clock.t.Add(5 * time.Second)
	require.NoError(t, cb.Execute(ctx, ok))
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreaker_CancellationDoesNotCount(t *testing.T) {
	cb := New("test", WithFailureThreshold(1))
	err := cb.Execute(context.Background(), func(context.Context) error { return context.Canceled })
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateClosed, cb.State())
}

func TestPresets(t *testing.T) {
	var seen []string
	hook := func(name string, _, _ State) { seen = append(seen, name) }

	league := LeagueStoreBreaker(hook)
	for i := 0; i < 5; i++ {
		_ = league.Execute(context.Background(), fail)
	}
	assert.Equal(t, StateOpen, league.State())

	cache := CacheBreaker(hook)
	for i := 0; i < 3; i++ {
		_ = cache.Execute(context.Background(), fail)
	}
	assert.Equal(t, StateOpen, cache.State())
	assert.Equal(t, []string{"league-store", "standings-cache"}, seen)

	cache.Reset()
	assert.Equal(t, StateClosed, cache.State())
}
