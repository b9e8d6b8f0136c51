// Package ratelimit implements per-source token bucket pacing with
// randomized jitter to avoid synchronized bursts against a platform.
package ratelimit

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/jobsonar/jobsonar/internal/discovery"
	"github.com/jobsonar/jobsonar/internal/telemetry"
)

// Limiter manages one independent token bucket per source instance.
type Limiter struct {
	mu           sync.Mutex
	limiters     map[string]*rate.Limiter
	defaultRate  rate.Limit
	defaultBurst int
}

// Config holds fallback pacing for sources without an explicit rate policy.
type Config struct {
	DefaultPerMinute int
	DefaultBurst     int
}

// New creates a Limiter.
func New(cfg Config) *Limiter {
	r := rate.Inf
	if cfg.DefaultPerMinute > 0 {
		r = rate.Limit(float64(cfg.DefaultPerMinute) / 60.0)
	}
	burst := cfg.DefaultBurst
	if burst <= 0 {
		burst = 1
	}
	return &Limiter{
		limiters:     make(map[string]*rate.Limiter),
		defaultRate:  r,
		defaultBurst: burst,
	}
}

// Acquire blocks until the source's bucket allows a request, then applies
// the descriptor's jitter delay. It blocks only the calling worker, never
// the pool, and returns early if ctx finishes.
func (l *Limiter) Acquire(ctx context.Context, src discovery.SourceDescriptor) error {
	limiter := l.limiterFor(src)

	start := time.Now()
	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait for %s: %w", src.ID, err)
	}
	if waited := time.Since(start); waited > time.Millisecond {
		telemetry.ObserveRateLimitDelay(src.ID, waited)
	}

	return sleepJitter(ctx, src.Rate.MinJitter, src.Rate.MaxJitter)
}

func (l *Limiter) limiterFor(src discovery.SourceDescriptor) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	if limiter, ok := l.limiters[src.ID]; ok {
		return limiter
	}
	r := l.defaultRate
	burst := l.defaultBurst
	if src.Rate.MaxPerMinute > 0 {
		r = rate.Limit(float64(src.Rate.MaxPerMinute) / 60.0)
	}
	if src.Rate.Burst > 0 {
		burst = src.Rate.Burst
	}
	limiter := rate.NewLimiter(r, burst)
	l.limiters[src.ID] = limiter
	return limiter
}

// sleepJitter pauses for a random duration in [minDelay, maxDelay],
// honoring context cancellation.
func sleepJitter(ctx context.Context, minDelay, maxDelay time.Duration) error {
	delay := jitterBetween(minDelay, maxDelay)
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("jitter delay: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}

func jitterBetween(minDelay, maxDelay time.Duration) time.Duration {
	if maxDelay <= minDelay {
		return minDelay
	}
	span := big.NewInt(int64(maxDelay - minDelay))
	n, err := rand.Int(rand.Reader, span)
	if err != nil {
		return minDelay + (maxDelay-minDelay)/2
	}
	return minDelay + time.Duration(n.Int64())
}
