package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/marketscout/internal/domain"
)

// AlertStore implements domain.AlertStore on the market_alerts table.
type AlertStore struct {
	pool *pgxpool.Pool
}

var _ domain.AlertStore = (*AlertStore)(nil)

// NewAlertStore creates an AlertStore backed by the given connection pool.
func NewAlertStore(pool *pgxpool.Pool) *AlertStore {
	return &AlertStore{pool: pool}
}

// Record inserts one dispatched alert.
func (s *AlertStore) Record(ctx context.Context, rec domain.AlertRecord) error {
	explanations, err := json.Marshal(rec.Explanations)
	if err != nil {
		return fmt.Errorf("postgres: marshal explanations: %w", err)
	}

	const query = `
		INSERT INTO market_alerts (
			scan_id, source, market_id, title, url, category, bucket,
			confidence, urgency, explanations, resolves_at, dispatched_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`
	_, err = s.pool.Exec(ctx, query,
		rec.ScanID, string(rec.Source), rec.MarketID, rec.Title, rec.URL,
		string(rec.Category), string(rec.Bucket), rec.Confidence, rec.Urgency,
		explanations, rec.ResolvesAt, rec.DispatchedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: record alert %s: %w", rec.MarketID, err)
	}
	return nil
}

// listRecentQuery builds the paginated history query.
func listRecentQuery(opts domain.ListOpts) (string, []any) {
	query := `
		SELECT id, scan_id, source, market_id, title, url, category, bucket,
		       confidence, urgency, explanations, resolves_at, dispatched_at
		FROM market_alerts WHERE 1=1`
	args := []any{}
	argIdx := 1

	if opts.Since != nil {
		query += fmt.Sprintf(" AND dispatched_at >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}

	query += " ORDER BY dispatched_at DESC, id DESC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}
	return query, args
}

// ListRecent returns alerts newest first.
func (s *AlertStore) ListRecent(ctx context.Context, opts domain.ListOpts) ([]domain.AlertRecord, error) {
	query, args := listRecentQuery(opts)
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list alerts: %w", err)
	}
	defer rows.Close()

	var out []domain.AlertRecord
	for rows.Next() {
		var (
			rec                      domain.AlertRecord
			source, category, bucket string
			explanations             []byte
		)
		if err := rows.Scan(
			&rec.ID, &rec.ScanID, &source, &rec.MarketID, &rec.Title, &rec.URL,
			&category, &bucket, &rec.Confidence, &rec.Urgency, &explanations,
			&rec.ResolvesAt, &rec.DispatchedAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan alert: %w", err)
		}
		rec.Source = domain.Source(source)
		rec.Category = domain.Category(category)
		rec.Bucket = domain.Bucket(bucket)
		if len(explanations) > 0 {
			if err := json.Unmarshal(explanations, &rec.Explanations); err != nil {
				return nil, fmt.Errorf("postgres: unmarshal explanations: %w", err)
			}
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list alerts rows: %w", err)
	}
	return out, nil
}
