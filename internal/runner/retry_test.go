package runner

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jobsonar/jobsonar/internal/discovery"
)

func TestShouldRetryOnlyNetworkKind(t *testing.T) {
	t.Parallel()
	policy := NewExponentialRetryPolicy(2, time.Millisecond, 10*time.Millisecond)

	network := discovery.NewSourceError("remotive", discovery.SourceErrNetwork, errors.New("reset"))
	require.True(t, policy.ShouldRetry(network, 0))
	require.True(t, policy.ShouldRetry(network, 1))
	require.False(t, policy.ShouldRetry(network, 2))

	for _, kind := range []discovery.SourceErrorKind{
		discovery.SourceErrParse,
		discovery.SourceErrBlocked,
		discovery.SourceErrEmpty,
	} {
		err := discovery.NewSourceError("remotive", kind, errors.New("boom"))
		require.False(t, policy.ShouldRetry(err, 0), string(kind))
	}

	require.False(t, policy.ShouldRetry(nil, 0))
	require.False(t, policy.ShouldRetry(errors.New("untyped"), 0))
}

func TestShouldRetryTimeoutVsCancellation(t *testing.T) {
	t.Parallel()
	policy := NewExponentialRetryPolicy(2, time.Millisecond, 10*time.Millisecond)

	// A per-attempt deadline is a transient network condition.
	timeout := discovery.NewSourceError("remotive", discovery.SourceErrNetwork, context.DeadlineExceeded)
	require.True(t, policy.ShouldRetry(timeout, 0))

	cancelled := discovery.NewSourceError("remotive", discovery.SourceErrNetwork, context.Canceled)
	require.False(t, policy.ShouldRetry(cancelled, 0))
}

func TestBackoffGrowsAndCaps(t *testing.T) {
	t.Parallel()
	policy := NewExponentialRetryPolicy(5, 100*time.Millisecond, 400*time.Millisecond)

	for attempt := 0; attempt < 6; attempt++ {
		delay := policy.Backoff(attempt)
		require.Greater(t, delay, time.Duration(0))
		require.LessOrEqual(t, delay, 400*time.Millisecond)
	}
	// First backoff stays near the base delay.
	require.GreaterOrEqual(t, policy.Backoff(0), 50*time.Millisecond)
}
