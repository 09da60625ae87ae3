// Package suppress keeps the same market from being alerted twice within a
// cooldown window.
package suppress

import (
	"context"
	"fmt"
	"time"

	"github.com/alanyoungcy/marketscout/internal/domain"
)

// DefaultCooldown is how long a dispatched market stays suppressed.
const DefaultCooldown = 60 * time.Minute

// Gate checks and records alert cooldowns keyed by source and market id.
type Gate struct {
	store    domain.SuppressionStore
	cooldown time.Duration
	now      func() time.Time
}

// NewGate creates a Gate over store. A non-positive cooldown uses
// DefaultCooldown and a nil clock uses time.Now.
func NewGate(store domain.SuppressionStore, cooldown time.Duration, now func() time.Time) *Gate {
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	if now == nil {
		now = time.Now
	}
	return &Gate{store: store, cooldown: cooldown, now: now}
}

// Cooldown returns the configured suppression window.
func (g *Gate) Cooldown() time.Duration { return g.cooldown }

// Allow reports whether m may be dispatched now.
func (g *Gate) Allow(ctx context.Context, m *domain.Market) (bool, error) {
	suppressed, err := g.store.Suppressed(ctx, m.Key())
	if err != nil {
		return false, fmt.Errorf("suppress: check %s: %w", m.Key(), err)
	}
	return !suppressed, nil
}

// Record starts the cooldown for m after a successful dispatch and returns
// its expiry.
func (g *Gate) Record(ctx context.Context, m *domain.Market) (time.Time, error) {
	until := g.now().Add(g.cooldown)
	if err := g.store.Suppress(ctx, m.Key(), until); err != nil {
		return time.Time{}, fmt.Errorf("suppress: record %s: %w", m.Key(), err)
	}
	return until, nil
}

// Sweep drops expired cooldowns from stores that need it.
func (g *Gate) Sweep(ctx context.Context) (int, error) {
	n, err := g.store.Sweep(ctx)
	if err != nil {
		return 0, fmt.Errorf("suppress: sweep: %w", err)
	}
	return n, nil
}
