package kalshi

import (
	"context"
	"log/slog"
	"time"

	"github.com/alanyoungcy/marketscout/internal/domain"
	"github.com/alanyoungcy/marketscout/internal/normalize"
	"github.com/alanyoungcy/marketscout/internal/platform"
	"github.com/alanyoungcy/marketscout/internal/resilience"
)

// DefaultScrapeURL is the public listing page.
const DefaultScrapeURL = "https://kalshi.com/markets"

// AdapterConfig bounds the API pagination.
type AdapterConfig struct {
	PageSize      int
	MaxPages      int
	MaxResolution time.Duration
}

// DefaultAdapterConfig returns the stock settings.
func DefaultAdapterConfig() AdapterConfig {
	return AdapterConfig{PageSize: 1000, MaxPages: 5, MaxResolution: 7 * 24 * time.Hour}
}

// Adapter fetches open Kalshi markets. With credentials it uses the signed
// API and scrapes only when the API fails; without them it only scrapes.
type Adapter struct {
	client  *Client
	scraper *platform.Scraper
	retrier *resilience.Retrier
	cfg     AdapterConfig
	logger  *slog.Logger
	now     func() time.Time
}

// NewAdapter creates the Kalshi source adapter. client may be nil.
func NewAdapter(client *Client, scraper *platform.Scraper, retrier *resilience.Retrier, cfg AdapterConfig, logger *slog.Logger) *Adapter {
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultAdapterConfig().PageSize
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 1
	}
	return &Adapter{
		client:  client,
		scraper: scraper,
		retrier: retrier,
		cfg:     cfg,
		logger:  logger.With(slog.String("source", string(domain.SourceKalshi))),
		now:     time.Now,
	}
}

// WithClock overrides the clock used for normalization.
func (a *Adapter) WithClock(now func() time.Time) *Adapter {
	a.now = now
	return a
}

// Source implements intake.Adapter.
func (a *Adapter) Source() domain.Source { return domain.SourceKalshi }

// Fetch returns the valid open markets resolving within MaxResolution.
func (a *Adapter) Fetch(ctx context.Context) ([]domain.Market, error) {
	now := a.now()

	var apiErr error
	if a.client != nil && a.client.HasCredentials() {
		recs, err := a.fetchAPI(ctx)
		if err == nil {
			ms, skipped := normalize.Batch(recs, normalize.Kalshi, now)
			a.logger.DebugContext(ctx, "kalshi api fetch done",
				slog.Int("raw", len(recs)), slog.Int("skipped", skipped))
			return a.withinHorizon(ms), nil
		}
		if ctx.Err() != nil || domain.IsTransient(err) || a.scraper == nil {
			return nil, err
		}
		apiErr = err
		a.logger.WarnContext(ctx, "kalshi api failed, scraping", slog.String("error", err.Error()))
	}

	if a.scraper == nil {
		return nil, nil
	}
	recs, err := resilience.Retry(ctx, a.retrier, domain.SourceKalshi, a.scraper.Records)
	if err != nil {
		return nil, platform.JoinFetchErrors(domain.SourceKalshi, apiErr, err)
	}
	ms, skipped := normalize.Batch(recs, normalize.Kalshi, now)
	a.logger.DebugContext(ctx, "kalshi scrape done",
		slog.Int("raw", len(recs)), slog.Int("skipped", skipped))
	return a.withinHorizon(ms), nil
}

func (a *Adapter) fetchAPI(ctx context.Context) ([]normalize.Record, error) {
	var (
		out    []normalize.Record
		cursor string
	)
	for page := 0; page < a.cfg.MaxPages; page++ {
		p, err := resilience.Retry(ctx, a.retrier, domain.SourceKalshi, func(ctx context.Context) (MarketsPage, error) {
			return a.client.GetMarkets(ctx, "open", a.cfg.PageSize, cursor)
		})
		if err != nil {
			if len(out) > 0 && domain.IsTransient(err) {
				a.logger.WarnContext(ctx, "rate limited mid-pagination, using pages fetched so far",
					slog.Int("page", page+1))
				return out, nil
			}
			return nil, err
		}
		out = append(out, p.Markets...)
		if p.Cursor == "" || len(p.Markets) == 0 {
			break
		}
		cursor = p.Cursor
	}
	return out, nil
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
