package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/alanyoungcy/marketscout/internal/domain"
	"github.com/alanyoungcy/marketscout/internal/intel"
	"github.com/alanyoungcy/marketscout/internal/resilience"
	"github.com/alanyoungcy/marketscout/internal/suppress"
)

// State is the mutable memory shared across scans: the response cache,
// source cooldowns, market histories, alert cooldowns, and queued operational
// alerts. Each part is safe for concurrent use so Sweep may run alongside a
// scan.
type State struct {
	Cache     domain.MarketCache
	Cooldowns *resilience.Cooldowns
	Intel     *intel.Tracker
	Gate      *suppress.Gate
	Ops       *OpsAlerts
	now       func() time.Time
}

// NewState assembles a State. A nil clock uses time.Now.
func NewState(cache domain.MarketCache, cooldowns *resilience.Cooldowns, tracker *intel.Tracker, gate *suppress.Gate, ops *OpsAlerts, now func() time.Time) *State {
	if now == nil {
		now = time.Now
	}
	return &State{Cache: cache, Cooldowns: cooldowns, Intel: tracker, Gate: gate, Ops: ops, now: now}
}

// SweepStats counts what one Sweep removed.
type SweepStats struct {
	CacheEntries  int `json:"cache_entries"`
	Suppressions  int `json:"suppressions"`
	HistoryPoints int `json:"history_points"`
	OpsThrottles  int `json:"ops_throttles"`
}

// Sweep drops expired entries from every part of the state.
func (s *State) Sweep(ctx context.Context, logger *slog.Logger) SweepStats {
	var st SweepStats
	if s.Cache != nil {
		st.CacheEntries = s.Cache.Sweep(ctx)
	}
	if s.Gate != nil {
		n, err := s.Gate.Sweep(ctx)
		if err != nil {
			logger.WarnContext(ctx, "suppression sweep failed", slog.String("error", err.Error()))
		}
		st.Suppressions = n
	}
	if s.Intel != nil {
		st.HistoryPoints = s.Intel.Cleanup(s.now())
	}
	if s.Ops != nil {
		st.OpsThrottles = s.Ops.Sweep()
	}
	logger.DebugContext(ctx, "state swept",
		slog.Int("cache_entries", st.CacheEntries),
		slog.Int("suppressions", st.Suppressions),
		slog.Int("history_points", st.HistoryPoints),
		slog.Int("ops_throttles", st.OpsThrottles),
	)
	return st
}
