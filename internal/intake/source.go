// Package intake fans out to every market-data source once per scan. Each
// source is guarded by its own cooldown, response cache, and circuit breaker,
// so one source failing never affects another.
package intake

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/marketscout/internal/domain"
	"github.com/alanyoungcy/marketscout/internal/resilience"
)

// Adapter fetches and normalizes the open markets of one source. Errors are,
// or wrap, *domain.FetchError.
type Adapter interface {
	Source() domain.Source
	Fetch(ctx context.Context) ([]domain.Market, error)
}

// SourceConfig holds the per-source cooldowns applied after a failed fetch.
type SourceConfig struct {
	// RateLimitCooldown follows a transient (429/503) failure. A longer
	// Retry-After from the source wins.
	RateLimitCooldown time.Duration
	// ErrorCooldown follows any other failure. Zero disables it.
	ErrorCooldown time.Duration
}

// SourceResult is the outcome of one guarded fetch.
type SourceResult struct {
	Source   domain.Source
	Result   resilience.Result[[]domain.Market]
	Cached   bool
	Duration time.Duration
}

// Markets returns the fetched markets, empty unless the fetch succeeded.
func (r SourceResult) Markets() []domain.Market {
	if r.Result.Status != resilience.StatusOK {
		return nil
	}
	return r.Result.Value
}

// RateLimited reports whether the source was skipped or failed because of
// rate limiting.
func (r SourceResult) RateLimited() bool {
	return r.Result.Err != nil && (domain.IsTransient(r.Result.Err) || errors.Is(r.Result.Err, domain.ErrCooldown))
}

// Source wraps an Adapter with its resilience guards.
type Source struct {
	adapter   Adapter
	breaker   *resilience.Breaker
	cooldowns *resilience.Cooldowns
	cache     domain.MarketCache
	cfg       SourceConfig
	logger    *slog.Logger
	now       func() time.Time
}

// NewSource creates a guarded source. cache may be nil.
func NewSource(adapter Adapter, breaker *resilience.Breaker, cooldowns *resilience.Cooldowns, cache domain.MarketCache, cfg SourceConfig, logger *slog.Logger) *Source {
	return &Source{
		adapter:   adapter,
		breaker:   breaker,
		cooldowns: cooldowns,
		cache:     cache,
		cfg:       cfg,
		logger:    logger.With(slog.String("source", string(adapter.Source()))),
		now:       time.Now,
	}
}

// WithClock overrides the clock used for timing.
func (s *Source) WithClock(now func() time.Time) *Source {
	s.now = now
	return s
}

// Name returns the source identifier.
func (s *Source) Name() domain.Source { return s.adapter.Source() }

// Breaker returns the source's circuit breaker.
func (s *Source) Breaker() *resilience.Breaker { return s.breaker }

// cacheKeys name the cached full result of each source.
var cacheKeys = map[domain.Source]string{
	domain.SourcePolymarket: "polymarket:all-pages",
	domain.SourceKalshi:     "kalshi:markets",
}

// CacheKey returns the response-cache key for src.
func CacheKey(src domain.Source) string {
	if k, ok := cacheKeys[src]; ok {
		return k
	}
	return string(src) + ":markets"
}

func (s *Source) cacheKey() string { return CacheKey(s.Name()) }

// Fetch runs one guarded fetch: cooldown, then cache, then the adapter behind
// the breaker. Rate limiting and an open breaker degrade to no data; any
// other adapter error is a Failed result.
func (s *Source) Fetch(ctx context.Context) SourceResult {
	start := s.now()
	res := s.fetch(ctx)
	res.Source = s.Name()
	res.Duration = s.now().Sub(start)
	return res
}

func (s *Source) fetch(ctx context.Context) SourceResult {
	src := s.Name()

	if until, ok := s.cooldowns.Active(src); ok {
		s.logger.DebugContext(ctx, "source cooling down", slog.Time("until", until))
		return SourceResult{Result: resilience.Degraded[[]domain.Market](nil, fmt.Errorf("%s until %s: %w", src, until.Format(time.RFC3339), domain.ErrCooldown))}
	}

	if s.cache != nil {
		cached, ok, err := s.cache.Get(ctx, s.cacheKey())
		if err != nil {
			s.logger.WarnContext(ctx, "market cache read failed", slog.String("error", err.Error()))
		} else if ok {
			s.logger.DebugContext(ctx, "using cached markets", slog.Int("markets", len(cached)))
			return SourceResult{Result: resilience.Ok(cached), Cached: true}
		}
	}

	res := resilience.Execute(s.breaker, func() ([]domain.Market, error) {
		return s.adapter.Fetch(ctx)
	}, nil)

	switch res.Status {
	case resilience.StatusOK:
		if s.cache != nil && len(res.Value) > 0 {
			if err := s.cache.Set(ctx, s.cacheKey(), res.Value); err != nil {
				s.logger.WarnContext(ctx, "market cache write failed", slog.String("error", err.Error()))
			}
		}
		s.logger.InfoContext(ctx, "source fetched", slog.Int("markets", len(res.Value)))
	case resilience.StatusDegraded:
		s.logger.DebugContext(ctx, "circuit open, skipping source")
	case resilience.StatusFailed:
		if domain.IsTransient(res.Err) {
			until := s.cooldowns.Trip(src, s.rateLimitPause(res.Err))
			s.logger.WarnContext(ctx, "source rate limited", slog.Time("cooldown_until", until))
			return SourceResult{Result: resilience.Degraded[[]domain.Market](nil, res.Err)}
		}
		if s.cfg.ErrorCooldown > 0 {
			s.cooldowns.Trip(src, s.cfg.ErrorCooldown)
		}
		s.logger.ErrorContext(ctx, "source fetch failed", slog.String("error", res.Err.Error()))
	}
	return SourceResult{Result: res}
}

func (s *Source) rateLimitPause(err error) time.Duration {
	d := s.cfg.RateLimitCooldown
	if fe, ok := domain.AsFetchError(err); ok && fe.RetryAfter > d {
		d = fe.RetryAfter
	}
	return d
}
