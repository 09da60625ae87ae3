// Package server exposes the scanner over HTTP: health, source state, manual
// scans, category search, alert history, Prometheus metrics, and a WebSocket
// feed of scan reports.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/marketscout/internal/server/handler"
	"github.com/alanyoungcy/marketscout/internal/server/middleware"
	"github.com/alanyoungcy/marketscout/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	Mode        string // run mode, tagged on request logs
	CORSOrigins []string
	APIKey      string // if empty, authentication is disabled
	RateLimit   float64
	RateBurst   int
	// WriteTimeout must exceed a full scan, since POST /api/scan waits for it.
	WriteTimeout time.Duration
}

// Handlers aggregates all HTTP handlers that the server needs to register.
type Handlers struct {
	Health  *handler.HealthHandler
	Scan    *handler.ScanHandler
	Markets *handler.MarketHandler
	Alerts  *handler.AlertHandler
	Metrics http.Handler
}

// Server is the HTTP + WebSocket API server.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer registers every route and wraps the mux in the middleware chain.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, logger *slog.Logger) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      NewHandler(cfg, handlers, wsHub, logger),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: max(cfg.WriteTimeout, 30*time.Second),
			IdleTimeout:  60 * time.Second,
		},
		logger: logger,
	}
}

// NewHandler builds the routed, middleware-wrapped handler.
func NewHandler(cfg Config, handlers Handlers, wsHub *ws.Hub, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)
	mux.HandleFunc("GET /api/sources", handlers.Scan.ListSources)
	mux.HandleFunc("POST /api/scan", handlers.Scan.TriggerScan)
	mux.HandleFunc("GET /api/markets/search", handlers.Markets.Search)
	mux.HandleFunc("GET /api/alerts/recent", handlers.Alerts.ListRecent)
	if handlers.Metrics != nil {
		mux.Handle("GET /metrics", handlers.Metrics)
	}
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	var h http.Handler = mux
	h = middleware.Auth(cfg.APIKey, "/api/health", "/metrics")(h)
	h = middleware.RateLimit(cfg.RateLimit, cfg.RateBurst)(h)
	h = middleware.Logging(logger, cfg.Mode, "/api/health", "/metrics")(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)
	return h
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
