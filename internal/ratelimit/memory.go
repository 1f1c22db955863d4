package ratelimit

import (
	"context"
	"sync"
	"time"
)

type memoryWindow struct {
	count     int64
	expiresAt time.Time
}

// MemoryCounter is an in-process Counter for development and tests. A
// single instance behind a mutex gives exact counts locally; it does not
// coordinate across instances.
type MemoryCounter struct {
	mu      sync.Mutex
	windows map[string]*memoryWindow
	now     func() time.Time
}

func NewMemoryCounter() *MemoryCounter {
	return &MemoryCounter{
		windows: make(map[string]*memoryWindow),
		now:     time.Now,
	}
}

func (c *MemoryCounter) Incr(_ context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()

	w, ok := c.windows[key]
	if !ok || now.After(w.expiresAt) {
		w = &memoryWindow{expiresAt: now.Add(window)}
		c.windows[key] = w
		c.cleanup(now)
	}

	w.count++
	return w.count, w.expiresAt.Sub(now), nil
}

// cleanup drops expired windows to keep the map from growing unbounded.
// Called with the mutex held.
func (c *MemoryCounter) cleanup(now time.Time) {
	for key, w := range c.windows {
		if now.After(w.expiresAt) {
			delete(c.windows, key)
		}
	}
}
