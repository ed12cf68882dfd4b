// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package cache provides a small in-memory cache with TTL support.
package cache

import (
	"sync"
	"time"

	"github.com/ManuGH/chrono/internal/clock"
)

// Stats holds cache counters.
type Stats struct {
	Hits        int64
	Misses      int64
	Sets        int64
	Evictions   int64
	CurrentSize int
}

type entry[V any] struct {
	value      V
	expiration time.Time
}

// Memory is a thread-safe TTL cache. A zero TTL on Set means the entry
// never expires.
type Memory[K comparable, V any] struct {
	clock clock.Clock

	mu      sync.Mutex
	entries map[K]entry[V]
	stats   Stats

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// Option configures a Memory cache.
type Option func(*options)

type options struct {
	clock           clock.Clock
	cleanupInterval time.Duration
}

// WithClock sets the time source used for expiry.
func WithClock(c clock.Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithCleanup starts a janitor that removes expired entries every interval.
func WithCleanup(interval time.Duration) Option {
	return func(o *options) { o.cleanupInterval = interval }
}

// NewMemory creates a cache. Call Stop when a janitor was requested.
func NewMemory[K comparable, V any](opts ...Option) *Memory[K, V] {
	o := options{clock: clock.Real()}
	for _, opt := range opts {
		opt(&o)
	}
	c := &Memory[K, V]{
		clock:   o.clock,
		entries: make(map[K]entry[V]),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	if o.cleanupInterval > 0 {
		go c.janitor(o.cleanupInterval)
	} else {
		close(c.done)
	}
	return c
}

// Get returns the cached value for key.
func (c *Memory[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok || c.expired(e) {
		c.stats.Misses++
		var zero V
		return zero, false
	}
	c.stats.Hits++
	return e.value, true
}

// Set stores value under key for ttl.
func (c *Memory[K, V]) Set(key K, value V, ttl time.Duration) {
	var exp time.Time
	if ttl > 0 {
		exp = c.clock.Now().Add(ttl)
	}
	c.mu.Lock()
	c.entries[key] = entry[V]{value: value, expiration: exp}
	c.stats.Sets++
	c.mu.Unlock()
}

// GetOrLoad returns the cached value or calls load and caches its result.
// Errors are not cached.
func (c *Memory[K, V]) GetOrLoad(key K, ttl time.Duration, load func(K) (V, error)) (V, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}
	v, err := load(key)
	if err != nil {
		return v, err
	}
	c.Set(key, v, ttl)
	return v, nil
}

// Delete removes key.
func (c *Memory[K, V]) Delete(key K) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// Stats returns a copy of the counters.
func (c *Memory[K, V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.stats
	s.CurrentSize = len(c.entries)
	return s
}

// DeleteExpired removes expired entries and returns how many were removed.
func (c *Memory[K, V]) DeleteExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for k, e := range c.entries {
		if c.expired(e) {
			delete(c.entries, k)
			n++
		}
	}
	c.stats.Evictions += int64(n)
	return n
}

// Stop ends the janitor goroutine, if any.
func (c *Memory[K, V]) Stop() {
	c.stopOnce.Do(func() { close(c.stop) })
	<-c.done
}

func (c *Memory[K, V]) expired(e entry[V]) bool {
	return !e.expiration.IsZero() && !c.clock.Now().Before(e.expiration)
}

func (c *Memory[K, V]) janitor(interval time.Duration) {
	defer close(c.done)
	t := c.clock.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-t.C():
			c.DeleteExpired()
		case <-c.stop:
			return
		}
	}
}
