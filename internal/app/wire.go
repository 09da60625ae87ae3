package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sony/gobreaker"

	s3blob "github.com/alanyoungcy/marketscout/internal/blob/s3"
	"github.com/alanyoungcy/marketscout/internal/cache/memory"
	"github.com/alanyoungcy/marketscout/internal/cache/redis"
	"github.com/alanyoungcy/marketscout/internal/config"
	"github.com/alanyoungcy/marketscout/internal/domain"
	"github.com/alanyoungcy/marketscout/internal/engine"
	"github.com/alanyoungcy/marketscout/internal/intake"
	"github.com/alanyoungcy/marketscout/internal/intel"
	"github.com/alanyoungcy/marketscout/internal/metrics"
	"github.com/alanyoungcy/marketscout/internal/notify"
	"github.com/alanyoungcy/marketscout/internal/platform"
	"github.com/alanyoungcy/marketscout/internal/platform/kalshi"
	"github.com/alanyoungcy/marketscout/internal/platform/polymarket"
	"github.com/alanyoungcy/marketscout/internal/resilience"
	"github.com/alanyoungcy/marketscout/internal/scoring"
	"github.com/alanyoungcy/marketscout/internal/selection"
	"github.com/alanyoungcy/marketscout/internal/server/ws"
	"github.com/alanyoungcy/marketscout/internal/store/postgres"
	"github.com/alanyoungcy/marketscout/internal/suppress"
)

// Dependencies bundles everything the run modes need. It is constructed by
// Wire and torn down by the returned cleanup function.
type Dependencies struct {
	Engine   *engine.Engine
	Monitor  *metrics.Monitor
	Registry *prometheus.Registry
	Notifier *notify.Notifier

	// Optional infrastructure; nil when disabled.
	Hub        *ws.Hub
	AlertStore domain.AlertStore
	SignalBus  domain.SignalBus
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(err error) (*Dependencies, func(), error) {
		cleanup()
		return nil, nil, err
	}

	deps := &Dependencies{}

	// --- Redis (shared suppression, response cache, scan lock, live feed) ---
	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		c, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: redis: %w", err))
		}
		closers = append(closers, func() { _ = c.Close() })
		redisClient = c
		deps.SignalBus = redis.NewSignalBus(c)
	}

	// --- Shared state ---
	var marketCache domain.MarketCache
	if redisClient != nil {
		marketCache = redis.NewMarketCache(redisClient, cfg.Scan.CacheTTL.Duration)
	} else {
		marketCache = memory.NewMarketCache(cfg.Scan.CacheTTL.Duration, nil)
	}

	var suppressionStore domain.SuppressionStore
	if cfg.Suppression.Backend == "redis" && redisClient != nil {
		suppressionStore = redis.NewSuppressionStore(redisClient)
	} else {
		suppressionStore = memory.NewSuppressionStore(nil)
	}

	cooldowns := resilience.NewCooldowns(nil)
	state := engine.NewState(
		marketCache,
		cooldowns,
		intel.NewTracker(),
		suppress.NewGate(suppressionStore, cfg.Suppression.Window.Duration, nil),
		engine.NewOpsAlerts(cfg.Notify.OpsThrottle.Duration, nil),
		nil,
	)

	// --- Sources ---
	rc := platform.NewHTTPClient(platform.HTTPConfig{
		Timeout:   cfg.Fetch.Timeout.Duration,
		UserAgent: cfg.Fetch.UserAgent,
	})
	retrier := resilience.NewRetrier(resilience.RetryPolicy{
		Retries:           cfg.Fetch.Retries,
		BaseDelay:         cfg.Fetch.BaseDelay.Duration,
		RateLimitPause:    cfg.Fetch.RateLimitPause.Duration,
		MaxRateLimitWaits: cfg.Fetch.MaxRateLimitWaits,
		MaxRateLimitPause: cfg.Fetch.MaxRateLimitPause.Duration,
	}, logger.With(slog.String("component", "retry")))

	var sources []*intake.Source
	if cfg.Polymarket.Enabled {
		adapter := polymarket.NewAdapter(
			polymarket.NewGammaClient(rc, cfg.Polymarket.GammaURL, cfg.Polymarket.APIKey),
			scraperFor(domain.SourcePolymarket, rc, cfg.Polymarket.ScrapeURL),
			retrier,
			polymarket.AdapterConfig{
				PageSize:      cfg.Polymarket.PageSize,
				MaxPages:      cfg.Polymarket.MaxPages,
				TargetValid:   cfg.Polymarket.TargetValid,
				PageInterval:  cfg.Polymarket.PageInterval.Duration,
				MaxResolution: cfg.Thresholds.MaxResolution.Duration,
			},
			logger,
		)
		sources = append(sources, intake.NewSource(
			adapter,
			newBreaker(domain.SourcePolymarket, cfg.Polymarket.Breaker, logger),
			cooldowns,
			marketCache,
			intake.SourceConfig{
				RateLimitCooldown: cfg.Polymarket.RateLimitCooldown.Duration,
				ErrorCooldown:     cfg.Polymarket.ErrorCooldown.Duration,
			},
			logger,
		))
	}
	if cfg.Kalshi.Enabled {
		var client *kalshi.Client
		if cfg.Kalshi.HasCredentials() {
			client = kalshi.NewClient(rc, cfg.Kalshi.BaseURL, cfg.Kalshi.APIKeyID)
			pemBytes, err := kalshiKey(cfg.Kalshi)
			if err != nil {
				return fail(fmt.Errorf("wire: kalshi key: %w", err))
			}
			if err := client.SetRSAPrivateKey(pemBytes); err != nil {
				return fail(fmt.Errorf("wire: kalshi key: %w", err))
			}
		} else {
			logger.InfoContext(ctx, "kalshi credentials not set, scraping public listing only")
		}
		adapter := kalshi.NewAdapter(
			client,
			scraperFor(domain.SourceKalshi, rc, cfg.Kalshi.ScrapeURL),
			retrier,
			kalshi.AdapterConfig{
				PageSize:      cfg.Kalshi.PageSize,
				MaxPages:      cfg.Kalshi.MaxPages,
				MaxResolution: cfg.Thresholds.MaxResolution.Duration,
			},
			logger,
		)
		sources = append(sources, intake.NewSource(
			adapter,
			newBreaker(domain.SourceKalshi, cfg.Kalshi.Breaker, logger),
			cooldowns,
			marketCache,
			intake.SourceConfig{
				RateLimitCooldown: cfg.Kalshi.RateLimitCooldown.Duration,
				ErrorCooldown:     cfg.Kalshi.ErrorCooldown.Duration,
			},
			logger,
		))
	}
	orchestrator := intake.NewOrchestrator(sources, cooldowns, logger)

	// --- Monitoring ---
	deps.Registry = prometheus.NewRegistry()
	deps.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	deps.Monitor = metrics.NewMonitor(deps.Registry)

	// --- Notifications ---
	opts := []engine.Option{engine.WithObserver(deps.Monitor)}
	if senders := newSenders(rc, cfg.Notify); len(senders) > 0 {
		deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)
		opts = append(opts, engine.WithNotifier(deps.Notifier))
	} else {
		logger.WarnContext(ctx, "no notification channels configured, selected markets will only be logged")
	}
	if redisClient != nil {
		opts = append(opts, engine.WithScanLock(redis.NewLockManager(redisClient), cfg.Scan.LockTTL.Duration))
	}

	// --- PostgreSQL (alert history and scan reports) ---
	if cfg.Postgres.Enabled {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: postgres: %w", err))
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				return fail(fmt.Errorf("wire: postgres migrations: %w", err))
			}
		}

		alertStore := postgres.NewAlertStore(pgClient.Pool())
		deps.AlertStore = alertStore
		opts = append(opts,
			engine.WithAlertStore(alertStore),
			engine.WithReportSink(postgres.NewReportStore(pgClient.Pool())),
		)
	}

	// --- S3 report archive ---
	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: s3: %w", err))
		}
		writer := s3blob.NewWriter(s3Client, int64(cfg.S3.PartSizeMB)<<20)
		opts = append(opts, engine.WithReportSink(s3blob.NewReportArchiver(writer, cfg.S3.Prefix)))
	}

	// --- Live feed ---
	if cfg.Server.Enabled || cfg.Mode == "server" {
		deps.Hub = ws.NewHub(deps.SignalBus, logger)
		opts = append(opts, engine.WithReportSink(deps.Hub))
	}

	deps.Engine = engine.New(
		orchestrator,
		scoring.NewScorer(cfg.Scoring),
		state,
		engine.Config{
			Thresholds: selection.Thresholds{
				MinConfidence: cfg.Thresholds.MinConfidence,
				MinLiquidity:  cfg.Thresholds.MinLiquidity,
				MaxResolution: cfg.Thresholds.MaxResolution.Duration,
				MaxMarketAge:  cfg.Thresholds.MaxMarketAge.Duration,
			},
			Diversity: selection.DiversityConfig{
				Enabled:        cfg.Diversity.Enabled,
				MaxPerCategory: cfg.Diversity.MaxPerCategory,
				MaxTotal:       cfg.Diversity.MaxTotal,
			},
			SearchLimit: cfg.Scan.SearchLimit,
		},
		logger,
		opts...,
	)

	return deps, cleanup, nil
}

// scraperFor returns nil when pageURL is empty, which disables the scrape
// fallback for that source.
func scraperFor(src domain.Source, rc *resty.Client, pageURL string) *platform.Scraper {
	if pageURL == "" {
		return nil
	}
	return platform.NewScraper(src, rc, pageURL)
}

func newBreaker(src domain.Source, bc config.BreakerConfig, logger *slog.Logger) *resilience.Breaker {
	return resilience.NewBreaker(string(src), resilience.BreakerConfig{
		FailureThreshold: bc.FailureThreshold,
		ResetTimeout:     bc.ResetTimeout.Duration,
		MonitoringWindow: bc.MonitoringWindow.Duration,
	}, resilience.WithStateListener(func(name string, from, to gobreaker.State) {
		logger.Warn("circuit breaker state change",
			slog.String("source", name),
			slog.String("from", from.String()),
			slog.String("to", to.String()),
		)
	}))
}

// kalshiKey returns the PEM key, inline or read from disk.
func kalshiKey(kc config.KalshiConfig) ([]byte, error) {
	if kc.RSAPrivateKey != "" {
		return []byte(kc.RSAPrivateKey), nil
	}
	return os.ReadFile(kc.RSAPrivateKeyPath)
}

func newSenders(rc *resty.Client, nc config.NotifyConfig) []notify.Sender {
	var senders []notify.Sender
	if nc.TelegramToken != "" && nc.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(rc, nc.TelegramAPIURL, nc.TelegramToken, nc.TelegramChatID))
	}
	if nc.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(rc, nc.DiscordWebhookURL))
	}
	return senders
}

// sweepTimeout bounds one sweep of the shared state.
const sweepTimeout = 30 * time.Second
