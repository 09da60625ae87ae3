package polymarket

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/alanyoungcy/marketscout/internal/domain"
	"github.com/alanyoungcy/marketscout/internal/normalize"
	"github.com/alanyoungcy/marketscout/internal/platform"
	"github.com/alanyoungcy/marketscout/internal/resilience"
)

// DefaultScrapeURL is the public listing page used as the fallback.
const DefaultScrapeURL = "https://polymarket.com/markets"

// AdapterConfig bounds pagination.
type AdapterConfig struct {
	PageSize      int
	MaxPages      int
	TargetValid   int
	PageInterval  time.Duration
	MaxResolution time.Duration
}

// DefaultAdapterConfig returns the stock pagination settings.
func DefaultAdapterConfig() AdapterConfig {
	return AdapterConfig{
		PageSize:      1000,
		MaxPages:      5,
		TargetValid:   100,
		PageInterval:  500 * time.Millisecond,
		MaxResolution: 7 * 24 * time.Hour,
	}
}

// Adapter pages through the Gamma API and falls back to scraping when the API
// fails or yields nothing usable.
type Adapter struct {
	gamma   *GammaClient
	scraper *platform.Scraper
	retrier *resilience.Retrier
	limiter *rate.Limiter
	cfg     AdapterConfig
	logger  *slog.Logger
	now     func() time.Time
}

// NewAdapter creates the Polymarket source adapter. scraper may be nil to
// disable the fallback.
func NewAdapter(gamma *GammaClient, scraper *platform.Scraper, retrier *resilience.Retrier, cfg AdapterConfig, logger *slog.Logger) *Adapter {
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultAdapterConfig().PageSize
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 1
	}
	limit := rate.Inf
	if cfg.PageInterval > 0 {
		limit = rate.Every(cfg.PageInterval)
	}
	return &Adapter{
		gamma:   gamma,
		scraper: scraper,
		retrier: retrier,
		limiter: rate.NewLimiter(limit, 1),
		cfg:     cfg,
		logger:  logger.With(slog.String("source", string(domain.SourcePolymarket))),
		now:     time.Now,
	}
}

// WithClock overrides the clock used for normalization.
func (a *Adapter) WithClock(now func() time.Time) *Adapter {
	a.now = now
	return a
}

// Source implements intake.Adapter.
func (a *Adapter) Source() domain.Source { return domain.SourcePolymarket }

// Fetch returns the valid open markets resolving within MaxResolution.
func (a *Adapter) Fetch(ctx context.Context) ([]domain.Market, error) {
	now := a.now()
	var (
		raw     int
		valid   []domain.Market
		skipped int
		apiErr  error
	)

	for page := 0; page < a.cfg.MaxPages; page++ {
		if err := a.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		offset := page * a.cfg.PageSize
		recs, err := resilience.Retry(ctx, a.retrier, domain.SourcePolymarket, func(ctx context.Context) ([]normalize.Record, error) {
			return a.gamma.Page(ctx, a.cfg.PageSize, offset)
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if domain.IsTransient(err) {
				if raw == 0 {
					return nil, err
				}
				a.logger.WarnContext(ctx, "rate limited mid-pagination, using pages fetched so far",
					slog.Int("page", page+1))
				break
			}
			apiErr = err
			a.logger.WarnContext(ctx, "page fetch failed, continuing",
				slog.Int("page", page+1), slog.String("error", err.Error()))
			continue
		}
		if len(recs) == 0 {
			break
		}

		raw += len(recs)
		ms, n := normalize.Batch(recs, normalize.Polymarket, now)
		skipped += n
		valid = append(valid, a.withinHorizon(ms)...)

		if len(recs) < a.cfg.PageSize || (a.cfg.TargetValid > 0 && len(valid) >= a.cfg.TargetValid) {
			break
		}
	}

	a.logger.DebugContext(ctx, "gamma pagination done",
		slog.Int("raw", raw), slog.Int("valid", len(valid)), slog.Int("skipped", skipped))

	if len(valid) > 0 {
		return valid, nil
	}

	scraped, err := a.scrape(ctx, now)
	switch {
	case err == nil && len(scraped) > 0:
		a.logger.InfoContext(ctx, "using scrape fallback", slog.Int("markets", len(scraped)))
		return scraped, nil
	case err == nil:
		return valid, apiErrIfEmpty(raw, apiErr)
	case raw > 0:
		a.logger.WarnContext(ctx, "scrape fallback failed", slog.String("error", err.Error()))
		return valid, nil
	default:
		return nil, platform.JoinFetchErrors(domain.SourcePolymarket, apiErr, err)
	}
}

func (a *Adapter) scrape(ctx context.Context, now time.Time) ([]domain.Market, error) {
	if a.scraper == nil {
		return nil, nil
	}
	recs, err := resilience.Retry(ctx, a.retrier, domain.SourcePolymarket, a.scraper.Records)
	if err != nil {
		return nil, err
	}
	ms, _ := normalize.Batch(recs, normalize.Polymarket, now)
	return a.withinHorizon(ms), nil
}

func (a *Adapter) withinHorizon(ms []domain.Market) []domain.Market {
	if a.cfg.MaxResolution <= 0 {
		return ms
	}
	out := ms[:0]
	for _, m := range ms {
		if m.TimeToResolve > 0 && m.TimeToResolve <= a.cfg.MaxResolution {
			out = append(out, m)
		}
	}
	return out
}

// apiErrIfEmpty surfaces the API failure when nothing at all was fetched.
func apiErrIfEmpty(raw int, apiErr error) error {
	if raw == 0 {
		return apiErr
	}
	return nil
}
