package retries_test

import (
	"context"
	"testing"
	"time"

	"github.com/gokit/errors"
	"github.com/stretchr/testify/require"

	"github.com/gokit/streamkit/retries"
)

func TestDoUntil_StopsOnSuccess(t *testing.T) {
	boom := errors.New("not yet")

	var calls int
	err := retries.DoUntil(context.Background(), 5, retries.FixedBackOff(time.Millisecond), func(attempt int) error {
		calls++
		require.Equal(t, calls-1, attempt)
		if calls < 3 {
			return boom
		}
		return nil
	})

	require.NoError(t, err)
	require.Equal(t, 3, calls)
}

func TestDoUntil_ReturnsLastError(t *testing.T) {
	boom := errors.New("still broken")

	var calls int
	err := retries.DoUntil(context.Background(), 3, nil, func(_ int) error {
		calls++
		return boom
	})

	require.Equal(t, boom, err)
	require.Equal(t, 3, calls)
}

func TestDoUntil_ContextEndsSchedule(t *testing.T) {
	boom := errors.New("not yet")
	ctx, cancel := context.WithCancel(context.Background())

	var calls int
	err := retries.DoUntil(ctx, 5, retries.FixedBackOff(time.Second), func(_ int) error {
		calls++
		cancel()
		return boom
	})

	require.Error(t, err)
	require.True(t, errors.IsAny(err, context.Canceled))
	require.Equal(t, 1, calls)
}

func TestBackOffs(t *testing.T) {
	require.Equal(t, time.Second, retries.LinearBackOff(0))
	require.Equal(t, 3*time.Second, retries.LinearBackOff(2))

	require.Equal(t, time.Second, retries.ExponentialBackOff(0))
	require.Equal(t, 8*time.Second, retries.ExponentialBackOff(3))

	fixed := retries.FixedBackOff(250 * time.Millisecond)
	require.Equal(t, 250*time.Millisecond, fixed(0))
	require.Equal(t, 250*time.Millisecond, fixed(9))

	require.True(t, retries.JitterDuration(1) > 0)
	require.True(t, retries.LinearJitterBackOff(0) > 0)
	require.True(t, retries.ExponentialJitterBackOff(2) > 0)
}
