// Package metrics exposes scan and source outcomes as Prometheus metrics and
// keeps an in-memory health snapshot for the API.
package metrics

import (
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/alanyoungcy/marketscout/internal/domain"
	"github.com/alanyoungcy/marketscout/internal/engine"
	"github.com/alanyoungcy/marketscout/internal/intake"
	"github.com/alanyoungcy/marketscout/internal/resilience"
)

const namespace = "marketscout"

// SourceHealth is the rolling view of one source.
type SourceHealth struct {
	Source      domain.Source `json:"source"`
	Status      string        `json:"status"`
	Requests    int64         `json:"requests"`
	Failures    int64         `json:"failures"`
	CacheHits   int64         `json:"cache_hits"`
	RateLimited int64         `json:"rate_limited"`
	SuccessRate float64       `json:"success_rate"`
	LastSuccess time.Time     `json:"last_success,omitzero"`
	LastFailure time.Time     `json:"last_failure,omitzero"`
	LastError   string        `json:"last_error,omitempty"`
}

// Health is the snapshot served by the health endpoint.
type Health struct {
	Status         string           `json:"status"`
	Healthy        bool             `json:"healthy"`
	Scans          int64            `json:"scans"`
	LastScanID     string           `json:"last_scan_id,omitempty"`
	LastScanStatus string           `json:"last_scan_status,omitempty"`
	LastScanAt     time.Time        `json:"last_scan_at,omitzero"`
	AlertsSent     int64            `json:"alerts_sent"`
	AlertsFailed   int64            `json:"alerts_failed"`
	Sources        []SourceHealth   `json:"sources"`
	Errors         map[string]int64 `json:"errors,omitempty"`
}

// Monitor records engine outcomes. It implements engine.Observer.
type Monitor struct {
	sourceFetches *prometheus.CounterVec
	sourceLatency *prometheus.HistogramVec
	sourceMarkets *prometheus.GaugeVec
	scans         *prometheus.CounterVec
	scanDuration  prometheus.Histogram
	scanMarkets   *prometheus.GaugeVec
	alerts        *prometheus.CounterVec
	rejected      *prometheus.CounterVec

	mu      sync.Mutex
	order   []domain.Source
	sources map[domain.Source]*SourceHealth
	health  Health
	errs    map[string]int64
}

var _ engine.Observer = (*Monitor)(nil)

// NewMonitor registers the metrics with reg.
func NewMonitor(reg prometheus.Registerer) *Monitor {
	f := promauto.With(reg)
	return &Monitor{
		sourceFetches: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_fetches_total",
			Help:      "Source fetches by outcome (ok, degraded, failed) and whether served from cache.",
		}, []string{"source", "status", "cached"}),
		sourceLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "source_fetch_duration_seconds",
			Help:      "Latency of source fetches, including retries.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"source"}),
		sourceMarkets: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "source_markets",
			Help:      "Markets returned by the most recent fetch of each source.",
		}, []string{"source"}),
		scans: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scans_total",
			Help:      "Completed scans by status.",
		}, []string{"status"}),
		scanDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "scan_duration_seconds",
			Help:      "Wall time of a full scan.",
			Buckets:   prometheus.DefBuckets,
		}),
		scanMarkets: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "scan_markets",
			Help:      "Markets at each stage of the most recent scan.",
		}, []string{"stage"}),
		alerts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_total",
			Help:      "Market alert dispatches by source and result.",
		}, []string{"source", "result"}),
		rejected: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "markets_rejected_total",
			Help:      "Markets rejected by eligibility gate.",
		}, []string{"reason"}),
		sources: make(map[domain.Source]*SourceHealth),
		errs:    make(map[string]int64),
	}
}

// ObserveSource records one guarded source fetch.
func (m *Monitor) ObserveSource(r intake.SourceResult) {
	status := r.Result.Status.String()
	cached := "false"
	if r.Cached {
		cached = "true"
	}
	src := string(r.Source)
	m.sourceFetches.WithLabelValues(src, status, cached).Inc()
	if !r.Cached && r.Duration > 0 {
		m.sourceLatency.WithLabelValues(src).Observe(r.Duration.Seconds())
	}
	m.sourceMarkets.WithLabelValues(src).Set(float64(len(r.Markets())))

	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.sources[r.Source]
	if !ok {
		h = &SourceHealth{Source: r.Source}
		m.sources[r.Source] = h
		m.order = append(m.order, r.Source)
	}
	h.Status = status
	h.Requests++
	if r.Cached {
		h.CacheHits++
	}
	if r.RateLimited() {
		h.RateLimited++
	}
	switch r.Result.Status {
	case resilience.StatusOK:
		h.LastSuccess = time.Now()
	case resilience.StatusFailed:
		h.Failures++
		h.LastFailure = time.Now()
	}
	if r.Result.Err != nil {
		m.errs[errorKind(r.Result.Err)]++
		h.LastError = r.Result.Err.Error()
	} else {
		h.LastError = ""
	}
	h.SuccessRate = float64(h.Requests-h.Failures) / float64(h.Requests)
}

// ObserveScan records a finished scan.
func (m *Monitor) ObserveScan(r *engine.Report) {
	m.scans.WithLabelValues(r.Status.String()).Inc()
	m.scanDuration.Observe(r.Duration().Seconds())
	m.scanMarkets.WithLabelValues("considered").Set(float64(r.Stats.Considered))
	m.scanMarkets.WithLabelValues("eligible").Set(float64(r.Stats.Eligible))
	m.scanMarkets.WithLabelValues("selected").Set(float64(r.Stats.Selected))
	m.scanMarkets.WithLabelValues("suppressed").Set(float64(r.Stats.Suppressed))
	for reason, n := range r.Stats.Rejected {
		m.rejected.WithLabelValues(string(reason)).Add(float64(n))
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.health.Scans++
	m.health.LastScanID = r.ID
	m.health.LastScanStatus = r.Status.String()
	m.health.LastScanAt = r.FinishedAt
}

// ObserveAlert records one market alert dispatch.
func (m *Monitor) ObserveAlert(src domain.Source, err error) {
	result := "sent"
	if err != nil {
		result = "failed"
	}
	m.alerts.WithLabelValues(string(src), result).Inc()

	m.mu.Lock()
	defer m.mu.Unlock()
	if err != nil {
		m.health.AlertsFailed++
	} else {
		m.health.AlertsSent++
	}
}

// Health returns a copy of the current snapshot. Status follows the last
// scan: ok is healthy, degraded is degraded, failed is unhealthy.
func (m *Monitor) Health() Health {
	m.mu.Lock()
	defer m.mu.Unlock()
	h := m.health
	switch h.LastScanStatus {
	case resilience.StatusFailed.String():
		h.Status = "unhealthy"
	case resilience.StatusDegraded.String():
		h.Status = "degraded"
	default:
		h.Status = "healthy"
	}
	h.Healthy = h.Status != "unhealthy"
	h.Errors = make(map[string]int64, len(m.errs))
	for k, v := range m.errs {
		h.Errors[k] = v
	}
	h.Sources = make([]SourceHealth, 0, len(m.order))
	for _, s := range m.order {
		h.Sources = append(h.Sources, *m.sources[s])
	}
	return h
}

func errorKind(err error) string {
	switch {
	case errors.Is(err, domain.ErrCircuitOpen):
		return "circuit_open"
	case errors.Is(err, domain.ErrCooldown):
		return "cooldown"
	}
	if fe, ok := domain.AsFetchError(err); ok {
		return fe.Kind.String()
	}
	return "other"
}
