package retry

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func fastConfig(retries int) Config {
	return Config{MaxRetries: retries, InitialBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond, Multiplier: 2}
}

func TestDoSucceedsAfterTransientFailures(t *testing.T) {
	t.Parallel()

	calls := 0
	err := Do(context.Background(), fastConfig(3), func(int) error {
		calls++
		if calls < 3 {
			return Transient(errors.New("flaky"))
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 3, calls)
}

func TestDoStopsOnPermanentError(t *testing.T) {
	t.Parallel()

	permanent := errors.New("not found")
	calls := 0
	err := Do(context.Background(), fastConfig(5), func(int) error {
		calls++
		return Status(404, permanent)
	})
	require.ErrorIs(t, err, permanent)
	require.Equal(t, 1, calls)
}

func TestDoExhaustsAttempts(t *testing.T) {
	t.Parallel()

	calls := 0
	err := Do(context.Background(), fastConfig(2), func(int) error {
		calls++
		return Status(503, errors.New("unavailable"))
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "retry exhausted after 3 attempts")
	require.Equal(t, 3, calls)
}

func TestDoWithoutRetriesRunsOnce(t *testing.T) {
	t.Parallel()

	calls := 0
	err := Do(context.Background(), Config{}, func(int) error {
		calls++
		return Transient(errors.New("flaky"))
	})
	require.Error(t, err)
	require.Equal(t, 1, calls)
}

func TestDoHonorsCancellation(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cfg := Config{MaxRetries: 3, InitialBackoff: time.Hour, Multiplier: 2}
	err := Do(ctx, cfg, func(int) error {
		cancel()
		return Transient(errors.New("flaky"))
	})
	require.ErrorIs(t, err, context.Canceled)
}

func TestIsRetryableError(t *testing.T) {
	t.Parallel()

	require.False(t, IsRetryableError(nil))
	require.False(t, IsRetryableError(errors.New("plain")))
	require.True(t, IsRetryableError(&net.OpError{Op: "dial", Err: errors.New("refused")}))
	require.True(t, IsRetryableError(Status(502, errors.New("bad gateway"))))
	require.False(t, IsRetryableError(Status(400, errors.New("bad request"))))
	require.True(t, IsRetryableStatusCode(429))
}
