package resilience

import (
	"sync"
	"time"

	"github.com/alanyoungcy/marketscout/internal/domain"
)

// Cooldowns tracks, per source, the earliest time a new fetch is allowed.
type Cooldowns struct {
	mu    sync.Mutex
	until map[domain.Source]time.Time
	now   func() time.Time
}

// NewCooldowns creates an empty cooldown table. A nil clock uses time.Now.
func NewCooldowns(now func() time.Time) *Cooldowns {
	if now == nil {
		now = time.Now
	}
	return &Cooldowns{until: make(map[domain.Source]time.Time), now: now}
}

// Active reports whether src is cooling down and until when.
func (c *Cooldowns) Active(src domain.Source) (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	until, ok := c.until[src]
	if !ok {
		return time.Time{}, false
	}
	if !c.now().Before(until) {
		delete(c.until, src)
		return time.Time{}, false
	}
	return until, true
}

// Trip starts (or extends) a cooldown of d for src.
func (c *Cooldowns) Trip(src domain.Source, d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	until := c.now().Add(d)
	if cur, ok := c.until[src]; ok && cur.After(until) {
		return cur
	}
	c.until[src] = until
	return until
}

// Clear removes any cooldown for src.
func (c *Cooldowns) Clear(src domain.Source) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.until, src)
}

// Snapshot returns the active cooldowns.
func (c *Cooldowns) Snapshot() map[domain.Source]time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	out := make(map[domain.Source]time.Time, len(c.until))
	for src, until := range c.until {
		if now.Before(until) {
			out[src] = until
		}
	}
	return out
}
