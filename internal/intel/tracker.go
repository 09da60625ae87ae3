// Package intel keeps a short rolling history per market and derives trend,
// anomaly, and urgency signals from it.
package intel

import (
	"sync"
	"time"

	"github.com/alanyoungcy/marketscout/internal/domain"
)

const (
	// PriceHistoryCap bounds the per-market price history.
	PriceHistoryCap = 50
	// VolumeHistoryCap bounds the per-market volume baseline.
	VolumeHistoryCap = 100
	// MaxHistoryAge is how long a price point survives Cleanup.
	MaxHistoryAge = 7 * 24 * time.Hour
)

// Point is one observation of a market.
type Point struct {
	Price     float64
	Volume    float64
	Liquidity float64
	Time      time.Time
}

// Tracker holds price and volume histories for every market it has seen.
// It is safe for concurrent use.
type Tracker struct {
	mu      sync.Mutex
	prices  map[string]*ring[Point]
	volumes map[string]*ring[float64]
}

// NewTracker creates an empty Tracker.
func NewTracker() *Tracker {
	return &Tracker{
		prices:  make(map[string]*ring[Point]),
		volumes: make(map[string]*ring[float64]),
	}
}

// Observe records m at now and returns its insights. The volume baseline is
// updated only after anomaly detection so a spike is measured against the
// history that preceded it.
func (t *Tracker) Observe(m domain.Market, now time.Time) domain.Insights {
	t.mu.Lock()
	defer t.mu.Unlock()

	h, ok := t.prices[m.ID]
	if !ok {
		h = newRing[Point](PriceHistoryCap)
		t.prices[m.ID] = h
	}
	h.push(Point{Price: m.LastPrice, Volume: m.Volume24h, Liquidity: m.Liquidity, Time: now})

	trend := DetectTrend(h.items())
	anomalies := DetectAnomalies(m, trend, t.averageVolume(m.ID))
	urgency := CalculateUrgency(m, trend, anomalies)

	v, ok := t.volumes[m.ID]
	if !ok {
		v = newRing[float64](VolumeHistoryCap)
		t.volumes[m.ID] = v
	}
	v.push(m.Volume24h)

	return domain.Insights{
		Trend:     trend,
		Anomalies: anomalies,
		Urgency:   urgency,
		Summary:   Summarize(trend, anomalies, urgency),
	}
}

// Peek computes the insights m would get from Observe at now without
// recording anything.
func (t *Tracker) Peek(m domain.Market, now time.Time) domain.Insights {
	t.mu.Lock()
	defer t.mu.Unlock()

	var pts []Point
	if h, ok := t.prices[m.ID]; ok {
		pts = h.items()
		if len(pts) == PriceHistoryCap {
			pts = pts[1:]
		}
	}
	pts = append(pts, Point{Price: m.LastPrice, Volume: m.Volume24h, Liquidity: m.Liquidity, Time: now})

	trend := DetectTrend(pts)
	anomalies := DetectAnomalies(m, trend, t.averageVolume(m.ID))
	urgency := CalculateUrgency(m, trend, anomalies)
	return domain.Insights{
		Trend:     trend,
		Anomalies: anomalies,
		Urgency:   urgency,
		Summary:   Summarize(trend, anomalies, urgency),
	}
}

// History returns a copy of the price history of a market, oldest first.
func (t *Tracker) History(id string) []Point {
	t.mu.Lock()
	defer t.mu.Unlock()
	h, ok := t.prices[id]
	if !ok {
		return nil
	}
	return h.items()
}

// Len returns the number of markets with price history.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.prices)
}

func (t *Tracker) averageVolume(id string) float64 {
	v, ok := t.volumes[id]
	if !ok || v.len() == 0 {
		return 0
	}
	var sum float64
	for _, x := range v.items() {
		sum += x
	}
	return sum / float64(v.len())
}

// Cleanup drops price points older than MaxHistoryAge. Markets left without
// price history lose their volume baseline too.
func (t *Tracker) Cleanup(now time.Time) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	cutoff := now.Add(-MaxHistoryAge)
	removed := 0
	for id, h := range t.prices {
		pts := h.items()
		keep := pts[:0]
		for _, p := range pts {
			if p.Time.After(cutoff) {
				keep = append(keep, p)
			}
		}
		removed += len(pts) - len(keep)
		if len(keep) == 0 {
			delete(t.prices, id)
			delete(t.volumes, id)
			continue
		}
		h.reset(keep)
	}
	return removed
}
