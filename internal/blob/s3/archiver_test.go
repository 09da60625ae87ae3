package s3blob

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/marketscout/internal/engine"
)

type memWriter struct {
	path, contentType string
	body              []byte
	err               error
}

func (m *memWriter) Put(_ context.Context, path string, data io.Reader, contentType string) error {
	if m.err != nil {
		return m.err
	}
	b, err := io.ReadAll(data)
	m.path, m.contentType, m.body = path, contentType, b
	return err
}

func TestReportArchiver(t *testing.T) {
	w := &memWriter{}
	a := NewReportArchiver(w, "")
	r := &engine.Report{
		ID:        "0f6c",
		Trigger:   "schedule",
		StartedAt: time.Date(2026, 3, 7, 23, 30, 0, 0, time.FixedZone("EST", -5*3600)),
	}

	require.NoError(t, a.PublishReport(context.Background(), r))
	assert.Equal(t, "reports/2026/03/08/0f6c.json", w.path)
	assert.Equal(t, "application/json", w.contentType)

	var got map[string]any
	require.NoError(t, json.Unmarshal(w.body, &got))
	assert.Equal(t, "schedule", got["trigger"])
}

func TestReportArchiverWrapsError(t *testing.T) {
	a := NewReportArchiver(&memWriter{err: errors.New("denied")}, "scans")
	err := a.PublishReport(context.Background(), &engine.Report{ID: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "archive report x")
}

func TestNormaliseEndpoint(t *testing.T) {
	assert.Equal(t, "https://minio:9000", normaliseEndpoint("minio:9000", true))
	assert.Equal(t, "http://minio:9000", normaliseEndpoint("minio:9000", false))
	assert.Equal(t, "https://r2.example", normaliseEndpoint("https://r2.example", false))
}
