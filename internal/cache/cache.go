// Package cache provides the in-memory wrappers composed around expensive
// loaders: a single-value TTL cache and a mutual-exclusion guard.
package cache

import (
	"context"
	"sync"
	"time"
)

// Loader produces a value, typically by querying a remote API.
type Loader[T any] func(ctx context.Context) (T, error)

// TTL holds at most one value that expires after a fixed duration.
// It is safe for concurrent use.
type TTL[T any] struct {
	mu        sync.RWMutex
	ttl       time.Duration
	now       func() time.Time
	value     T
	expiresAt time.Time
	set       bool
}

// NewTTL creates an empty TTL cache. A zero ttl disables caching.
func NewTTL[T any](ttl time.Duration) *TTL[T] {
	return &TTL[T]{ttl: ttl, now: time.Now}
}

// SetClock replaces the time source, for tests.
func (c *TTL[T]) SetClock(now func() time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

// Get returns the cached value if one is present and not expired.
func (c *TTL[T]) Get() (T, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var zero T
	if !c.set || !c.now().Before(c.expiresAt) {
		return zero, false
	}
	return c.value, true
}

// Set stores a value for the configured TTL.
func (c *TTL[T]) Set(value T) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ttl <= 0 {
		return
	}
	c.value = value
	c.expiresAt = c.now().Add(c.ttl)
	c.set = true
}

// Invalidate drops the cached value.
func (c *TTL[T]) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero T
	c.value = zero
	c.set = false
}

// Cached wraps load so a fresh cached value is returned without calling it.
// Only successful results are stored.
func Cached[T any](c *TTL[T], load Loader[T]) Loader[T] {
	return func(ctx context.Context) (T, error) {
		if v, ok := c.Get(); ok {
			return v, nil
		}
		v, err := load(ctx)
		if err != nil {
			return v, err
		}
		c.Set(v)
		return v, nil
	}
}

// Serialized wraps load so at most one invocation runs at a time. Concurrent
// callers queue behind the running one.
func Serialized[T any](load Loader[T]) Loader[T] {
	var mu sync.Mutex
	return func(ctx context.Context) (T, error) {
		mu.Lock()
		defer mu.Unlock()
		return load(ctx)
	}
}
