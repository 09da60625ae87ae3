package memory

import (
	"context"
	"time"

	"github.com/alanyoungcy/marketscout/internal/domain"
)

// SuppressionStore keeps alert cooldowns in process memory.
type SuppressionStore struct {
	entries *TTL[struct{}]
}

var _ domain.SuppressionStore = (*SuppressionStore)(nil)

// NewSuppressionStore creates an empty store. A nil clock uses time.Now.
func NewSuppressionStore(now func() time.Time) *SuppressionStore {
	return &SuppressionStore{entries: NewTTL[struct{}](0, now)}
}

// Suppressed reports whether key is still cooling down.
func (s *SuppressionStore) Suppressed(_ context.Context, key string) (bool, error) {
	_, ok := s.entries.Get(key)
	return ok, nil
}

// Suppress records a cooldown for key until the given time.
func (s *SuppressionStore) Suppress(_ context.Context, key string, until time.Time) error {
	s.entries.SetUntil(key, struct{}{}, until)
	return nil
}

// Sweep removes expired cooldowns.
func (s *SuppressionStore) Sweep(context.Context) (int, error) {
	return s.entries.Sweep(), nil
}
