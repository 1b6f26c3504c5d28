package retrylimit

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdaptiveLimiter_FailureHalvesLimit(t *testing.T) {
	lim := NewAdaptiveLimiter(8, 1, 20)

	lim.Failure()
	assert.InDelta(t, 4, float64(lim.Limit()), 0.01)

	// Repeated failures bottom out at the floor.
	for range 10 {
		lim.Failure()
	}
	assert.InDelta(t, 1, float64(lim.Limit()), 0.01)
}

func TestAdaptiveLimiter_SuccessNeverExceedsCeiling(t *testing.T) {
	lim := NewAdaptiveLimiter(20, 1, 20)

	for range 10 {
		lim.Success()
	}
	assert.LessOrEqual(t, float64(lim.Limit()), 20.0)
}

func TestWithRetry_StopsAfterSuccess(t *testing.T) {
	lim := NewAdaptiveLimiter(100, 1, 100)

	calls := 0
	err := WithRetry(context.Background(), lim, 3, func() error {
		calls++
		if calls < 2 {
			return errors.New("transient")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestWithRetry_ExhaustsAttempts(t *testing.T) {
	lim := NewAdaptiveLimiter(100, 1, 100)

	boom := errors.New("permanent")
	calls := 0
	err := WithRetry(context.Background(), lim, 2, func() error {
		calls++
		return boom
	})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 2, calls)
}

func TestWithRetry_HonorsCancellation(t *testing.T) {
	lim := NewAdaptiveLimiter(100, 1, 100)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := WithRetry(ctx, lim, 3, func() error { return errors.New("never settles") })
	assert.ErrorIs(t, err, context.Canceled)
}
