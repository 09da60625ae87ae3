package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/marketscout/internal/domain"
	"github.com/alanyoungcy/marketscout/internal/engine"
)

// MarketHandler serves market search.
type MarketHandler struct {
	scanner Scanner
	logger  *slog.Logger
}

// NewMarketHandler creates a MarketHandler.
func NewMarketHandler(scanner Scanner, logger *slog.Logger) *MarketHandler {
	return &MarketHandler{scanner: scanner, logger: logger}
}

// Search returns the top eligible markets of one category. Nothing is
// dispatched.
// GET /api/markets/search?category=crypto&limit=10
func (h *MarketHandler) Search(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("category")
	category, ok := domain.ParseCategory(raw)
	if !ok {
		writeError(w, http.StatusBadRequest, "unknown category: "+raw)
		return
	}

	res, err := h.scanner.Search(r.Context(), category, queryInt(r, "limit", engine.DefaultSearchLimit, 100))
	if err != nil {
		if errors.Is(err, engine.ErrAllSourcesFailed) {
			writeError(w, http.StatusBadGateway, err.Error())
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: search failed",
			slog.String("category", raw),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "search failed")
		return
	}
	writeJSON(w, http.StatusOK, res)
}
