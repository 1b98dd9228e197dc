package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDo_StopsAfterMaxAttempts(t *testing.T) {
	calls := 0
	boom := errors.New("boom")

	err := Do(context.Background(), func(context.Context) error {
		calls++
		return boom
	}, WithMaxAttempts(3), WithInitialDelay(0), WithJitter(0))

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 3, calls)
}

func TestDo_SucceedsAfterRetry(t *testing.T) {
	calls := 0
	retries := 0

	err := Do(context.Background(), func(context.Context) error {
		calls++
		if calls < 2 {
			return errors.New("transient")
		}
		return nil
	}, WithInitialDelay(time.Millisecond), WithOnRetry(func(int, error, time.Duration) { retries++ }))

	assert.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Equal(t, 1, retries)
}

func TestDo_PermanentErrorIsNotRetried(t *testing.T) {
	calls := 0
	bad := errors.New("bad payload")

	err := Do(context.Background(), func(context.Context) error {
		calls++
		return Permanent(bad)
	}, WithMaxAttempts(5))

	assert.Equal(t, bad, err)
	assert.Equal(t, 1, calls)
}

func TestDo_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Do(ctx, func(context.Context) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}
