package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordWaits collects the requested waits without sleeping.
func recordWaits(waits *[]time.Duration) Option {
	return WithWait(func(_ context.Context, d time.Duration) error {
		*waits = append(*waits, d)
		return nil
	})
}

func TestRetrier_RetriesRetryableErrors(t *testing.T) {
	var waits []time.Duration
	calls := 0
	r := New(WithMaxAttempts(4), WithInitialDelay(10*time.Millisecond), WithJitter(0), recordWaits(&waits))

	err := r.Do(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return Retryable(errors.New("temporary"))
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{10 * time.Millisecond, 20 * time.Millisecond}, waits)
}

func TestRetrier_BackoffIsCapped(t *testing.T) {
	var waits []time.Duration
	r := New(WithMaxAttempts(5), WithInitialDelay(time.Second), WithMaxDelay(3*time.Second), WithJitter(0), recordWaits(&waits))

	sentinel := errors.New("still down")
	err := r.Do(context.Background(), func(context.Context) error { return Retryable(sentinel) })

	assert.Equal(t, sentinel, err)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 3 * time.Second, 3 * time.Second}, waits)
}

func TestRetrier_StopsOnPermanent(t *testing.T) {
	calls := 0
	sentinel := errors.New("lesson not found")

	err := ContentRetrier(nil, WithWait(func(context.Context, time.Duration) error { return nil })).
		Do(context.Background(), func(context.Context) error {
			calls++
			return Permanent(sentinel)
		})

	assert.Equal(t, sentinel, err)
	assert.Equal(t, 1, calls)
}

func TestRetrier_PlainErrorNotRetriedByDefault(t *testing.T) {
	calls := 0
	err := New().Do(context.Background(), func(context.Context) error {
		calls++
		return errors.New("plain")
	})

	assert.EqualError(t, err, "plain")
	assert.Equal(t, 1, calls)
}

func TestRetrier_CancelledWaitReturnsLastError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	r := New(WithWait(func(ctx context.Context, _ time.Duration) error {
		cancel()
		return ctx.Err()
	}))

	sentinel := errors.New("timeout")
	err := r.Do(ctx, func(context.Context) error { return Retryable(sentinel) })
	assert.Equal(t, sentinel, err)
}

func TestContentRetrier_RetriesUntilExhausted(t *testing.T) {
	var retries []int
	r := ContentRetrier(func(attempt int, _ error, _ time.Duration) {
		retries = append(retries, attempt)
	}, WithWait(func(context.Context, time.Duration) error { return nil }))

	err := r.Do(context.Background(), func(context.Context) error {
		return errors.New("content provider down")
	})
	assert.EqualError(t, err, "content provider down")
	assert.Equal(t, []int{1, 2}, retries)
}

func TestMarkers(t *testing.T) {
	assert.Nil(t, Retryable(nil))
	assert.Nil(t, Permanent(nil))
	assert.True(t, IsRetryable(Retryable(errors.New("x"))))
	assert.False(t, IsRetryable(Permanent(errors.New("x"))))
	assert.True(t, IsPermanent(Permanent(errors.New("x"))))
}
