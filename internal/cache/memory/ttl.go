// Package memory provides in-process TTL caches and stores. Entries expire
// lazily on access and are also removed by an explicit Sweep.
package memory

import (
	"sync"
	"time"
)

type entry[T any] struct {
	value     T
	expiresAt time.Time
}

// TTL is a concurrency-safe map whose entries expire after a per-entry TTL.
type TTL[T any] struct {
	mu      sync.Mutex
	entries map[string]entry[T]
	ttl     time.Duration
	now     func() time.Time
}

// NewTTL creates a cache with a default entry lifetime. A nil clock uses
// time.Now.
func NewTTL[T any](ttl time.Duration, now func() time.Time) *TTL[T] {
	if now == nil {
		now = time.Now
	}
	return &TTL[T]{
		entries: make(map[string]entry[T]),
		ttl:     ttl,
		now:     now,
	}
}

// Get returns the live value for key. Expired entries are removed.
func (c *TTL[T]) Get(key string) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		var zero T
		return zero, false
	}
	if !c.now().Before(e.expiresAt) {
		delete(c.entries, key)
		var zero T
		return zero, false
	}
	return e.value, true
}

// Set stores value under key with the default TTL.
func (c *TTL[T]) Set(key string, value T) {
	c.SetUntil(key, value, c.now().Add(c.ttl))
}

// SetUntil stores value under key until the given time.
func (c *TTL[T]) SetUntil(key string, value T, until time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry[T]{value: value, expiresAt: until}
}

// Delete removes key.
func (c *TTL[T]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Sweep drops every expired entry and returns how many were removed.
func (c *TTL[T]) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	n := 0
	for k, e := range c.entries {
		if !now.Before(e.expiresAt) {
			delete(c.entries, k)
			n++
		}
	}
	return n
}

// Len returns the number of stored entries, expired or not.
func (c *TTL[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
