package intake

import (
	"context"
	"log/slog"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/marketscout/internal/domain"
	"github.com/alanyoungcy/marketscout/internal/resilience"
)

// Orchestrator fetches every source concurrently and merges the results.
type Orchestrator struct {
	sources   []*Source
	cooldowns *resilience.Cooldowns
	logger    *slog.Logger
}

// NewOrchestrator creates an Orchestrator over sources. cooldowns is the
// table the sources share and is only read for status reporting.
func NewOrchestrator(sources []*Source, cooldowns *resilience.Cooldowns, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{sources: sources, cooldowns: cooldowns, logger: logger.With(slog.String("component", "intake"))}
}

// Collect fetches all sources and returns the merged markets, priority
// markets first and then by time to resolve, along with one result per
// source in configuration order. The sources share no cancellation: a failing
// source never cuts another short.
func (o *Orchestrator) Collect(ctx context.Context) ([]domain.Market, []SourceResult) {
	results := make([]SourceResult, len(o.sources))

	var g errgroup.Group
	for i, s := range o.sources {
		g.Go(func() error {
			results[i] = s.Fetch(ctx)
			return nil
		})
	}
	_ = g.Wait()

	var merged []domain.Market
	for _, r := range results {
		merged = append(merged, r.Markets()...)
	}
	SortMarkets(merged)

	o.logger.InfoContext(ctx, "intake complete", slog.Int("markets", len(merged)), slog.Int("sources", len(results)))
	return merged, results
}

// SortMarkets orders priority markets first, then soonest to resolve.
func SortMarkets(ms []domain.Market) {
	slices.SortStableFunc(ms, func(a, b domain.Market) int {
		if a.Priority != b.Priority {
			if a.Priority {
				return -1
			}
			return 1
		}
		switch {
		case a.TimeToResolve < b.TimeToResolve:
			return -1
		case a.TimeToResolve > b.TimeToResolve:
			return 1
		}
		return 0
	})
}

// SourceStatus is the resilience state of one source.
type SourceStatus struct {
	Source        domain.Source              `json:"source"`
	Breaker       resilience.BreakerSnapshot `json:"breaker"`
	CooldownUntil *time.Time                 `json:"cooldown_until,omitempty"`
}

// Status reports the breaker and cooldown state of every source.
func (o *Orchestrator) Status() []SourceStatus {
	out := make([]SourceStatus, 0, len(o.sources))
	for _, s := range o.sources {
		st := SourceStatus{Source: s.Name(), Breaker: s.breaker.Snapshot()}
		if until, ok := o.cooldowns.Active(s.Name()); ok {
			st.CooldownUntil = &until
		}
		out = append(out, st)
	}
	return out
}

// AllFailed reports whether every source returned a Failed result.
func AllFailed(results []SourceResult) bool {
	if len(results) == 0 {
		return false
	}
	for _, r := range results {
		if r.Result.Status != resilience.StatusFailed {
			return false
		}
	}
	return true
}
