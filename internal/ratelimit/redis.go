package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCounter implements Counter on Redis. INCR and EXPIRE run in one
// pipelined round trip, so the increment is atomic and the limit is exact
// across instances.
type RedisCounter struct {
	client *redis.Client
}

func NewRedisCounter(client *redis.Client) *RedisCounter {
	return &RedisCounter{client: client}
}

func (c *RedisCounter) Incr(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	var incr *redis.IntCmd
	var ttl *redis.DurationCmd

	_, err := c.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		incr = p.Incr(ctx, key)
		// NX: only arm the TTL when this hit opened the window.
		p.ExpireNX(ctx, key, window)
		ttl = p.TTL(ctx, key)
		return nil
	})
	if err != nil {
		return 0, 0, fmt.Errorf("redis incr failed: %w", err)
	}

	remaining := ttl.Val()
	if remaining < 0 {
		remaining = window
	}
	return incr.Val(), remaining, nil
}
