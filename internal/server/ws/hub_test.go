package ws

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/marketscout/internal/domain"
	"github.com/alanyoungcy/marketscout/internal/engine"
)

func readEnvelope(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var env map[string]any
	require.NoError(t, json.Unmarshal(data, &env))
	return env
}

func TestHubStreamsReports(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := NewHub(nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	go hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()

	assert.Equal(t, "hello", readEnvelope(t, conn)["type"])

	r := &engine.Report{ID: "scan-1", Markets: []domain.Market{{ID: "polymarket-1", Title: "BTC"}}}
	require.NoError(t, hub.PublishReport(ctx, r))

	env := readEnvelope(t, conn)
	assert.Equal(t, "scan_report", env["type"])
	assert.Equal(t, "scan-1", env["payload"].(map[string]any)["id"])

	env = readEnvelope(t, conn)
	assert.Equal(t, "market_alert", env["type"])
	assert.Equal(t, "polymarket-1", env["payload"].(map[string]any)["id"])
}

type recordingBus struct{ channels []string }

func (b *recordingBus) Publish(_ context.Context, channel string, _ []byte) error {
	b.channels = append(b.channels, channel)
	return nil
}

func (b *recordingBus) Subscribe(context.Context, string) (<-chan []byte, error) {
	return make(chan []byte), nil
}

func TestHubPublishesThroughBus(t *testing.T) {
	bus := &recordingBus{}
	hub := NewHub(bus, slog.New(slog.NewTextHandler(io.Discard, nil)))

	r := &engine.Report{ID: "scan-1", Markets: []domain.Market{{ID: "a"}, {ID: "b"}}}
	require.NoError(t, hub.PublishReport(context.Background(), r))
	assert.Equal(t, []string{ChannelReports, ChannelAlerts, ChannelAlerts}, bus.channels)
}
