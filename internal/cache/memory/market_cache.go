package memory

import (
	"context"
	"time"

	"github.com/alanyoungcy/marketscout/internal/domain"
)

// MarketCache is the in-process response cache in front of source fetches.
type MarketCache struct {
	entries *TTL[[]domain.Market]
}

var _ domain.MarketCache = (*MarketCache)(nil)

// NewMarketCache creates a cache whose entries live for ttl.
func NewMarketCache(ttl time.Duration, now func() time.Time) *MarketCache {
	return &MarketCache{entries: NewTTL[[]domain.Market](ttl, now)}
}

// Get returns a copy of the cached markets for sig.
func (c *MarketCache) Get(_ context.Context, sig string) ([]domain.Market, bool, error) {
	v, ok := c.entries.Get(sig)
	if !ok {
		return nil, false, nil
	}
	out := make([]domain.Market, len(v))
	copy(out, v)
	return out, true, nil
}

// Set stores a copy of markets under sig.
func (c *MarketCache) Set(_ context.Context, sig string, markets []domain.Market) error {
	v := make([]domain.Market, len(markets))
	copy(v, markets)
	c.entries.Set(sig, v)
	return nil
}

// Sweep removes expired responses.
func (c *MarketCache) Sweep(context.Context) int {
	return c.entries.Sweep()
}
