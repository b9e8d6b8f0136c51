package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jobsonar/jobsonar/internal/discovery"
)

func TestAcquire_FirstTokenImmediate(t *testing.T) {
	t.Parallel()

	l := New(Config{DefaultPerMinute: 600, DefaultBurst: 1})
	src := discovery.SourceDescriptor{ID: "fast"}

	start := time.Now()
	require.NoError(t, l.Acquire(context.Background(), src))
	require.Less(t, time.Since(start), 50*time.Millisecond)
}

func TestAcquire_SecondTokenWaits(t *testing.T) {
	t.Parallel()

	// 600/min = one token every 100ms.
	l := New(Config{DefaultPerMinute: 600, DefaultBurst: 1})
	src := discovery.SourceDescriptor{ID: "paced"}
	ctx := context.Background()

	require.NoError(t, l.Acquire(ctx, src))
	start := time.Now()
	require.NoError(t, l.Acquire(ctx, src))
	require.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)
}

func TestAcquire_SourcesAreIndependent(t *testing.T) {
	t.Parallel()

	l := New(Config{DefaultPerMinute: 6, DefaultBurst: 1}) // one token per 10s
	ctx := context.Background()

	require.NoError(t, l.Acquire(ctx, discovery.SourceDescriptor{ID: "a"}))

	// A fresh bucket for a different source must not be drained by "a".
	start := time.Now()
	require.NoError(t, l.Acquire(ctx, discovery.SourceDescriptor{ID: "b"}))
	require.Less(t, time.Since(start), time.Second)
}

func TestAcquire_DescriptorPolicyOverridesDefault(t *testing.T) {
	t.Parallel()

	l := New(Config{DefaultPerMinute: 6, DefaultBurst: 1})
	src := discovery.SourceDescriptor{
		ID:   "override",
		Rate: discovery.RatePolicy{MaxPerMinute: 6000, Burst: 3},
	}
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 3; i++ {
		require.NoError(t, l.Acquire(ctx, src))
	}
	require.Less(t, time.Since(start), time.Second)
}

func TestAcquire_CanceledContext(t *testing.T) {
	t.Parallel()

	l := New(Config{DefaultPerMinute: 6, DefaultBurst: 1})
	src := discovery.SourceDescriptor{ID: "slow"}
	require.NoError(t, l.Acquire(context.Background(), src))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.Error(t, l.Acquire(ctx, src))
}

func TestAcquire_AppliesJitterWindow(t *testing.T) {
	t.Parallel()

	l := New(Config{DefaultPerMinute: 0})
	src := discovery.SourceDescriptor{
		ID: "jittered",
		Rate: discovery.RatePolicy{
			MaxPerMinute: 6000,
			MinJitter:    50 * time.Millisecond,
			MaxJitter:    60 * time.Millisecond,
		},
	}

	start := time.Now()
	require.NoError(t, l.Acquire(context.Background(), src))
	elapsed := time.Since(start)
	require.GreaterOrEqual(t, elapsed, 50*time.Millisecond)
	require.Less(t, elapsed, 500*time.Millisecond)
}

func TestJitterBetween_Bounds(t *testing.T) {
	t.Parallel()

	for i := 0; i < 100; i++ {
		d := jitterBetween(10*time.Millisecond, 20*time.Millisecond)
		require.GreaterOrEqual(t, d, 10*time.Millisecond)
		require.Less(t, d, 20*time.Millisecond)
	}
	require.Equal(t, 5*time.Millisecond, jitterBetween(5*time.Millisecond, 0))
	require.Equal(t, time.Duration(0), jitterBetween(0, 0))
}
