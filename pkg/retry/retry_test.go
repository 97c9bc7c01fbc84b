package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var errBusy = errors.New("busy")

func TestDo_RetriesRetryableUntilSuccess(t *testing.T) {
	r := New(WithMaxAttempts(5), WithInitialDelay(time.Millisecond))
	calls := 0
	err := r.Do(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return Retryable(errBusy)
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_ExhaustedReturnsUnwrappedError(t *testing.T) {
	r := New(WithMaxAttempts(3), WithInitialDelay(time.Millisecond))
	calls := 0
	err := r.Do(context.Background(), func(context.Context) error {
		calls++
		return Retryable(errBusy)
	})
	assert.Equal(t, errBusy, err)
	assert.Equal(t, 3, calls)
}

func TestDo_PlainErrorsAreNotRetried(t *testing.T) {
	calls := 0
	err := New().Do(context.Background(), func(context.Context) error {
		calls++
		return errBusy
	})
	assert.ErrorIs(t, err, errBusy)
	assert.Equal(t, 1, calls)
}

func TestDo_RetryIf(t *testing.T) {
	r := New(WithMaxAttempts(2), WithInitialDelay(time.Millisecond), WithRetryIf(func(err error) bool {
		return errors.Is(err, errBusy)
	}))
	calls := 0
	_ = r.Do(context.Background(), func(context.Context) error {
		calls++
		return errBusy
	})
	assert.Equal(t, 2, calls)
}

func TestDo_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	r := New(WithMaxAttempts(10), WithInitialDelay(time.Hour))
	calls := 0
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	err := r.Do(ctx, func(context.Context) error {
		calls++
		return Retryable(errBusy)
	})
	assert.Equal(t, errBusy, err)
	assert.Equal(t, 1, calls)

	err = r.Do(ctx, func(context.Context) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDelay_GrowsAndCaps(t *testing.T) {
	r := New(WithInitialDelay(10*time.Millisecond), WithMaxDelay(25*time.Millisecond), WithJitter(0))
	assert.Equal(t, 10*time.Millisecond, r.delay(1))
	assert.Equal(t, 20*time.Millisecond, r.delay(2))
	assert.Equal(t, 25*time.Millisecond, r.delay(3))
}
