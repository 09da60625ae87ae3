package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/marketscout/internal/domain"
	"github.com/alanyoungcy/marketscout/internal/engine"
	"github.com/alanyoungcy/marketscout/internal/intake"
)

// Scanner is the part of the engine the API drives. It is declared locally so
// handlers can be tested without a live engine.
type Scanner interface {
	RunCycle(ctx context.Context, trigger string) (*engine.Report, error)
	Search(ctx context.Context, category domain.Category, limit int) (*engine.SearchResult, error)
	Sources() []intake.SourceStatus
}

// ScanHandler serves scan and source endpoints.
type ScanHandler struct {
	scanner Scanner
	logger  *slog.Logger
}

// NewScanHandler creates a ScanHandler.
func NewScanHandler(scanner Scanner, logger *slog.Logger) *ScanHandler {
	return &ScanHandler{scanner: scanner, logger: logger}
}

// TriggerScan runs one scan, or waits for the one already running, and
// returns its report.
// POST /api/scan
func (h *ScanHandler) TriggerScan(w http.ResponseWriter, r *http.Request) {
	h.logger.InfoContext(r.Context(), "handler: scan requested")
	report, err := h.scanner.RunCycle(r.Context(), "api")
	switch {
	case errors.Is(err, engine.ErrScanLocked):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, engine.ErrAllSourcesFailed):
		writeJSON(w, http.StatusBadGateway, report)
	case err != nil:
		h.logger.ErrorContext(r.Context(), "handler: scan failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "scan failed")
	default:
		writeJSON(w, http.StatusOK, report)
	}
}

// ListSources returns breaker and cooldown state per source.
// GET /api/sources
func (h *ScanHandler) ListSources(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"sources": h.scanner.Sources()})
}
