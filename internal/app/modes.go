package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/marketscout/internal/engine"
	"github.com/alanyoungcy/marketscout/internal/server"
	"github.com/alanyoungcy/marketscout/internal/server/handler"
)

const shutdownTimeout = 10 * time.Second

// WatchMode scans on a fixed interval, sweeps the shared state, and serves the
// HTTP API when enabled.
func (a *App) WatchMode(ctx context.Context, deps *Dependencies) error {
	interval := a.cfg.Scan.EffectiveInterval()
	if interval != a.cfg.Scan.Interval.Duration {
		a.logger.WarnContext(ctx, "scan interval clamped",
			slog.Duration("configured", a.cfg.Scan.Interval.Duration),
			slog.Duration("effective", interval),
		)
	}
	a.logger.InfoContext(ctx, "starting watch mode", slog.Duration("interval", interval))

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if a.cfg.Scan.RunOnStart {
			a.scan(ctx, deps.Engine, "startup")
		}
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				a.scan(ctx, deps.Engine, "interval")
			}
		}
	})

	a.startSweeper(ctx, g, deps.Engine)

	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps)
	}

	return g.Wait()
}

// OnceMode runs a single scan and returns. It fails only when every source
// failed.
func (a *App) OnceMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting once mode")
	report, err := deps.Engine.RunCycle(ctx, "once")
	if errors.Is(err, engine.ErrScanLocked) {
		a.logger.InfoContext(ctx, "another instance is scanning, nothing to do")
		return nil
	}
	if err != nil {
		return fmt.Errorf("once mode: %w", err)
	}
	a.logger.InfoContext(ctx, "scan report",
		slog.String("scan_id", report.ID),
		slog.String("status", report.Status.String()),
		slog.Any("stats", report.Stats),
		slog.Any("sources", report.Sources),
	)
	return nil
}

// ServerMode serves the HTTP API and sweeps the shared state. Scans run only
// when requested through POST /api/scan.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting server mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startSweeper(ctx, g, deps.Engine)
	a.startHTTPServer(ctx, g, deps)
	return g.Wait()
}

// scan runs one cycle and logs its outcome. Cycle errors never stop the loop.
func (a *App) scan(ctx context.Context, eng *engine.Engine, trigger string) {
	report, err := eng.RunCycle(ctx, trigger)
	switch {
	case errors.Is(err, engine.ErrScanLocked):
		a.logger.DebugContext(ctx, "scan skipped, lock held elsewhere", slog.String("trigger", trigger))
	case err != nil:
		a.logger.ErrorContext(ctx, "scan failed",
			slog.String("trigger", trigger),
			slog.String("error", err.Error()),
		)
	default:
		a.logger.DebugContext(ctx, "scan done",
			slog.String("scan_id", report.ID),
			slog.Int("alerted", report.Stats.Alerted),
		)
	}
}

// startSweeper adds the periodic state sweep to g.
func (a *App) startSweeper(ctx context.Context, g *errgroup.Group, eng *engine.Engine) {
	g.Go(func() error {
		ticker := time.NewTicker(a.cfg.Scan.SweepInterval.Duration)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				sctx, cancel := context.WithTimeout(ctx, sweepTimeout)
				eng.State().Sweep(sctx, a.logger)
				cancel()
			}
		}
	})
}

// startHTTPServer adds the HTTP server and WebSocket hub goroutines to g. The
// server is shut down gracefully when the context is cancelled.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	handlers := server.Handlers{
		Health:  handler.NewHealthHandler(deps.Monitor),
		Scan:    handler.NewScanHandler(deps.Engine, a.logger),
		Markets: handler.NewMarketHandler(deps.Engine, a.logger),
		Alerts:  handler.NewAlertHandler(deps.AlertStore, a.logger),
		Metrics: promhttp.HandlerFor(deps.Registry, promhttp.HandlerOpts{}),
	}
	srv := server.NewServer(server.Config{
		Port:         a.cfg.Server.Port,
		Mode:         a.cfg.Mode,
		CORSOrigins:  a.cfg.Server.CORSOrigins,
		APIKey:       a.cfg.Server.APIKey,
		RateLimit:    a.cfg.Server.RateLimit,
		RateBurst:    a.cfg.Server.RateBurst,
		WriteTimeout: a.cfg.Server.WriteTimeout.Duration,
	}, handlers, deps.Hub, a.logger)

	if deps.Hub != nil {
		g.Go(func() error {
			if err := deps.Hub.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("ws hub: %w", err)
			}
			return nil
		})
	}

	g.Go(srv.Start)

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
}
