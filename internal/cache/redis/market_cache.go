package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/marketscout/internal/domain"
)

// MarketCache implements domain.MarketCache by storing normalized source
// responses as JSON strings with a TTL.
//
// Key schema:
//
//	marketscout:cache:{signature} - JSON array of markets
type MarketCache struct {
	rdb *redis.Client
	ttl time.Duration
}

var _ domain.MarketCache = (*MarketCache)(nil)

// NewMarketCache creates a MarketCache whose entries live for ttl.
func NewMarketCache(c *Client, ttl time.Duration) *MarketCache {
	return &MarketCache{rdb: c.Underlying(), ttl: ttl}
}

func cacheKey(sig string) string { return keyPrefix + "cache:" + sig }

// Get returns the cached markets for a request signature.
func (mc *MarketCache) Get(ctx context.Context, sig string) ([]domain.Market, bool, error) {
	data, err := mc.rdb.Get(ctx, cacheKey(sig)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis: get cache %s: %w", sig, err)
	}
	var markets []domain.Market
	if err := json.Unmarshal(data, &markets); err != nil {
		return nil, false, fmt.Errorf("redis: decode cache %s: %w", sig, err)
	}
	return markets, true, nil
}

// Set stores markets under a request signature.
func (mc *MarketCache) Set(ctx context.Context, sig string, markets []domain.Market) error {
	data, err := json.Marshal(markets)
	if err != nil {
		return fmt.Errorf("redis: marshal cache %s: %w", sig, err)
	}
	if err := mc.rdb.Set(ctx, cacheKey(sig), data, mc.ttl).Err(); err != nil {
		return fmt.Errorf("redis: set cache %s: %w", sig, err)
	}
	return nil
}

// Sweep is a no-op: Redis expires keys itself.
func (mc *MarketCache) Sweep(context.Context) int { return 0 }
