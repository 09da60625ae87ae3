package handler

import (
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/marketscout/internal/domain"
)

// AlertHandler serves the dispatched-alert history.
type AlertHandler struct {
	store  domain.AlertStore
	logger *slog.Logger
}

// NewAlertHandler creates an AlertHandler. store may be nil when no history
// database is configured.
func NewAlertHandler(store domain.AlertStore, logger *slog.Logger) *AlertHandler {
	return &AlertHandler{store: store, logger: logger}
}

// ListRecent returns the most recently dispatched alerts, newest first.
// GET /api/alerts/recent?limit=50&offset=0
func (h *AlertHandler) ListRecent(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		writeError(w, http.StatusServiceUnavailable, "alert history is not configured")
		return
	}
	opts := parseListOpts(r)
	alerts, err := h.store.ListRecent(r.Context(), opts)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list alerts failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list alerts")
		return
	}
	if alerts == nil {
		alerts = []domain.AlertRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"alerts": alerts,
		"limit":  opts.Limit,
		"offset": opts.Offset,
	})
}
