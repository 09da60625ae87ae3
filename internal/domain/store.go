package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
}

// AlertRecord is the persisted trace of one dispatched market alert.
type AlertRecord struct {
	ID           int64     `json:"id"`
	ScanID       string    `json:"scan_id"`
	Source       Source    `json:"source"`
	MarketID     string    `json:"market_id"`
	Title        string    `json:"title"`
	URL          string    `json:"url"`
	Category     Category  `json:"category"`
	Bucket       Bucket    `json:"bucket"`
	Confidence   int       `json:"confidence"`
	Urgency      int       `json:"urgency"`
	Explanations []string  `json:"explanations"`
	ResolvesAt   time.Time `json:"resolves_at"`
	DispatchedAt time.Time `json:"dispatched_at"`
}

// NewAlertRecord captures the dispatch-time view of m.
func NewAlertRecord(scanID string, m Market, at time.Time) AlertRecord {
	return AlertRecord{
		ScanID:       scanID,
		Source:       m.Source,
		MarketID:     m.ID,
		Title:        m.Title,
		URL:          m.URL,
		Category:     m.Category,
		Bucket:       m.Bucket,
		Confidence:   m.Confidence,
		Urgency:      m.Urgency,
		Explanations: m.Explanations,
		ResolvesAt:   m.ResolvesAt,
		DispatchedAt: at,
	}
}

// AlertStore persists dispatched alerts.
type AlertStore interface {
	Record(ctx context.Context, rec AlertRecord) error
	ListRecent(ctx context.Context, opts ListOpts) ([]AlertRecord, error)
}
