package domain

import (
	"context"
	"time"
)

// SuppressionStore remembers which market keys were alerted recently.
type SuppressionStore interface {
	// Suppressed reports whether key has a cooldown that has not expired.
	Suppressed(ctx context.Context, key string) (bool, error)
	// Suppress records a cooldown for key lasting until the given time.
	Suppress(ctx context.Context, key string, until time.Time) error
	// Sweep removes expired entries and returns how many were dropped.
	Sweep(ctx context.Context) (int, error)
}

// MarketCache holds normalized source responses keyed by request signature.
type MarketCache interface {
	Get(ctx context.Context, sig string) ([]Market, bool, error)
	Set(ctx context.Context, sig string, markets []Market) error
	// Sweep removes expired entries and returns how many were dropped.
	Sweep(ctx context.Context) int
}

// SignalBus fans messages out to every instance subscribed to a channel.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}

// LockManager hands out expiring exclusive locks shared across instances.
type LockManager interface {
	// Acquire returns ErrLockHeld when another holder owns key. The returned
	// unlock func is safe to call more than once.
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}
