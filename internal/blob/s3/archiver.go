package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"

	"github.com/alanyoungcy/marketscout/internal/domain"
	"github.com/alanyoungcy/marketscout/internal/engine"
)

// DefaultReportPrefix is the key prefix of archived reports.
const DefaultReportPrefix = "reports"

// ReportArchiver writes every scan report as JSON to
// <prefix>/YYYY/MM/DD/<scan-id>.json. It implements engine.ReportSink.
type ReportArchiver struct {
	writer domain.BlobWriter
	prefix string
}

var _ engine.ReportSink = (*ReportArchiver)(nil)

// NewReportArchiver creates an archiver. An empty prefix uses
// DefaultReportPrefix.
func NewReportArchiver(writer domain.BlobWriter, prefix string) *ReportArchiver {
	if prefix == "" {
		prefix = DefaultReportPrefix
	}
	return &ReportArchiver{writer: writer, prefix: prefix}
}

// ReportPath returns the object key of r.
func (a *ReportArchiver) ReportPath(r *engine.Report) string {
	return path.Join(a.prefix, r.StartedAt.UTC().Format("2006/01/02"), r.ID+".json")
}

// PublishReport uploads r.
func (a *ReportArchiver) PublishReport(ctx context.Context, r *engine.Report) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("s3blob: marshal report %s: %w", r.ID, err)
	}
	if err := a.writer.Put(ctx, a.ReportPath(r), bytes.NewReader(data), "application/json"); err != nil {
		return fmt.Errorf("s3blob: archive report %s: %w", r.ID, err)
	}
	return nil
}
