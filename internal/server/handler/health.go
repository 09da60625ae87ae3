package handler

import (
	"net/http"
	"time"

	"github.com/alanyoungcy/marketscout/internal/metrics"
)

// HealthReporter supplies the monitoring snapshot.
type HealthReporter interface {
	Health() metrics.Health
}

// HealthHandler serves the health-check endpoint.
type HealthHandler struct {
	monitor   HealthReporter
	startedAt time.Time
}

// NewHealthHandler creates a HealthHandler over monitor.
func NewHealthHandler(monitor HealthReporter) *HealthHandler {
	return &HealthHandler{monitor: monitor, startedAt: time.Now()}
}

type healthResponse struct {
	metrics.Health
	UptimeSeconds int64  `json:"uptime_seconds"`
	Timestamp     string `json:"timestamp"`
}

// HealthCheck reports source and scan health. It answers 503 once the last
// scan failed on every source.
// GET /api/health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	snap := h.monitor.Health()
	status := http.StatusOK
	if !snap.Healthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, healthResponse{
		Health:        snap,
		UptimeSeconds: int64(time.Since(h.startedAt).Seconds()),
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
	})
}
