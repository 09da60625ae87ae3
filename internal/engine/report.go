package engine

import (
	"time"

	"github.com/alanyoungcy/marketscout/internal/domain"
	"github.com/alanyoungcy/marketscout/internal/intake"
	"github.com/alanyoungcy/marketscout/internal/resilience"
	"github.com/alanyoungcy/marketscout/internal/selection"
)

// Stats counts what happened to markets during one scan.
type Stats struct {
	Considered     int                      `json:"considered"`
	Eligible       int                      `json:"eligible"`
	Selected       int                      `json:"selected"`
	Suppressed     int                      `json:"suppressed"`
	Alerted        int                      `json:"alerted"`
	DispatchFailed int                      `json:"dispatch_failed"`
	Rejected       map[selection.Reason]int `json:"rejected,omitempty"`
}

// SourceSummary is the per-source part of a report.
type SourceSummary struct {
	Source      domain.Source     `json:"source"`
	Status      resilience.Status `json:"status"`
	Markets     int               `json:"markets"`
	Cached      bool              `json:"cached"`
	RateLimited bool              `json:"rate_limited"`
	Error       string            `json:"error,omitempty"`
	DurationMs  int64             `json:"duration_ms"`
}

// Report is the result of one scan. Markets holds the selected markets that
// were not suppressed, in dispatch order.
type Report struct {
	ID         string                  `json:"id"`
	Trigger    string                  `json:"trigger"`
	Status     resilience.Status       `json:"status"`
	StartedAt  time.Time               `json:"started_at"`
	FinishedAt time.Time               `json:"finished_at"`
	Stats      Stats                   `json:"stats"`
	Sources    []SourceSummary         `json:"sources"`
	Categories map[domain.Category]int `json:"categories,omitempty"`
	Markets    []domain.Market         `json:"markets"`
}

// Duration is how long the scan took.
func (r *Report) Duration() time.Duration { return r.FinishedAt.Sub(r.StartedAt) }

func summarize(results []intake.SourceResult) []SourceSummary {
	out := make([]SourceSummary, 0, len(results))
	for _, res := range results {
		s := SourceSummary{
			Source:      res.Source,
			Status:      res.Result.Status,
			Markets:     len(res.Markets()),
			Cached:      res.Cached,
			RateLimited: res.RateLimited(),
			DurationMs:  res.Duration.Milliseconds(),
		}
		if res.Result.Err != nil {
			s.Error = res.Result.Err.Error()
		}
		out = append(out, s)
	}
	return out
}
