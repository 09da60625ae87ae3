package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/marketscout/internal/engine"
)

// ReportStore keeps one summary row per scan in scan_reports. It implements
// engine.ReportSink.
type ReportStore struct {
	pool *pgxpool.Pool
}

var _ engine.ReportSink = (*ReportStore)(nil)

// NewReportStore creates a ReportStore backed by the given connection pool.
func NewReportStore(pool *pgxpool.Pool) *ReportStore {
	return &ReportStore{pool: pool}
}

// PublishReport upserts the summary of r.
func (s *ReportStore) PublishReport(ctx context.Context, r *engine.Report) error {
	sources, err := json.Marshal(r.Sources)
	if err != nil {
		return fmt.Errorf("postgres: marshal report sources: %w", err)
	}

	const query = `
		INSERT INTO scan_reports (
			id, trigger, status, started_at, finished_at,
			considered, eligible, selected, alerted, suppressed, sources
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO NOTHING`
	_, err = s.pool.Exec(ctx, query,
		r.ID, r.Trigger, r.Status.String(), r.StartedAt, r.FinishedAt,
		r.Stats.Considered, r.Stats.Eligible, r.Stats.Selected, r.Stats.Alerted, r.Stats.Suppressed,
		sources,
	)
	if err != nil {
		return fmt.Errorf("postgres: record scan %s: %w", r.ID, err)
	}
	return nil
}
