package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/marketscout/internal/domain"
)

// SuppressionStore implements domain.SuppressionStore with expiring keys.
//
// Key schema:
//
//	marketscout:suppress:{source}:{marketID} - "1", expires with the cooldown
type SuppressionStore struct {
	rdb *redis.Client
	now func() time.Time
}

var _ domain.SuppressionStore = (*SuppressionStore)(nil)

// NewSuppressionStore creates a SuppressionStore backed by the given Client.
func NewSuppressionStore(c *Client) *SuppressionStore {
	return &SuppressionStore{rdb: c.Underlying(), now: time.Now}
}

// WithClock overrides the clock used to turn expiry times into TTLs.
func (s *SuppressionStore) WithClock(now func() time.Time) *SuppressionStore {
	s.now = now
	return s
}

func suppressKey(key string) string { return keyPrefix + "suppress:" + key }

// Suppressed reports whether key still has a live cooldown.
func (s *SuppressionStore) Suppressed(ctx context.Context, key string) (bool, error) {
	n, err := s.rdb.Exists(ctx, suppressKey(key)).Result()
	if err != nil {
		return false, fmt.Errorf("redis: check suppression %s: %w", key, err)
	}
	return n > 0, nil
}

// Suppress records a cooldown for key that Redis expires at until.
func (s *SuppressionStore) Suppress(ctx context.Context, key string, until time.Time) error {
	ttl := until.Sub(s.now())
	if ttl <= 0 {
		return nil
	}
	if err := s.rdb.Set(ctx, suppressKey(key), "1", ttl).Err(); err != nil {
		return fmt.Errorf("redis: suppress %s: %w", key, err)
	}
	return nil
}

// Sweep is a no-op: Redis expires keys itself.
func (s *SuppressionStore) Sweep(context.Context) (int, error) {
	return 0, nil
}
