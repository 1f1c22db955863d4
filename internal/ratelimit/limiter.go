package ratelimit

import (
	"context"
	"fmt"
	"time"
)

// Counter is the TTL-backed cache behind the fixed-window limiter. Incr
// bumps the counter for key, starting a fresh window (and its TTL) on the
// first hit, and reports the count plus the time left in the window.
type Counter interface {
	Incr(ctx context.Context, key string, window time.Duration) (count int64, remaining time.Duration, err error)
}

// Result reports the outcome of a rate-limit check. RetryAfter is the
// caller-facing cooldown in seconds for the budget that tripped.
type Result struct {
	Allowed    bool
	RetryAfter int
}

// Limiter enforces independent fixed-window budgets keyed by purpose and
// identity. Keys are namespaced to avoid cross-feature collisions.
type Limiter struct {
	counter Counter
}

func NewLimiter(counter Counter) *Limiter {
	return &Limiter{counter: counter}
}

// Key builds the namespaced cache key for a scope (e.g. "magic_link"),
// kind ("email" or "ip") and identity.
func Key(scope, kind, identity string) string {
	return fmt.Sprintf("rl:%s:%s:%s", scope, kind, identity)
}

// Allow consumes one unit of the budget for key. When the window's limit is
// exhausted the result carries the seconds until the window resets.
func (l *Limiter) Allow(ctx context.Context, key string, limit int64, window time.Duration) (Result, error) {
	count, remaining, err := l.counter.Incr(ctx, key, window)
	if err != nil {
		return Result{}, fmt.Errorf("rate limit counter failed: %w", err)
	}

	retryAfter := int(remaining.Round(time.Second).Seconds())
	if retryAfter < 1 {
		retryAfter = 1
	}

	if count > limit {
		return Result{Allowed: false, RetryAfter: retryAfter}, nil
	}
	return Result{Allowed: true, RetryAfter: retryAfter}, nil
}
