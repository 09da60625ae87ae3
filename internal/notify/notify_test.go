package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/marketscout/internal/domain"
	"github.com/alanyoungcy/marketscout/internal/engine"
)

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

type fakeSender struct {
	name string
	err  error

	mu     sync.Mutex
	titles []string
}

func (f *fakeSender) Send(_ context.Context, title, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.titles = append(f.titles, title)
	return f.err
}

func (f *fakeSender) Name() string { return f.name }

func sampleMarket() domain.Market {
	return domain.Market{
		Source:        domain.SourceKalshi,
		ID:            "kalshi-BTC",
		Title:         "Bitcoin above 100k",
		URL:           "https://kalshi.com/markets/btc",
		ResolvesAt:    time.Date(2026, 3, 1, 14, 0, 0, 0, time.UTC),
		TimeToResolve: 2*time.Hour + 5*time.Minute,
		LastPrice:     0.62,
		Volume24h:     25000,
		Liquidity:     800,
		Confidence:    71,
		Urgency:       40,
		Bucket:        domain.Bucket24H,
		Category:      domain.CategoryCrypto,
		Explanations:  []string{"solid liquidity", "approaching resolution"},
		Insights:      &domain.Insights{Summary: "up trend (80% confidence)"},
	}
}

func TestFormatMarket(t *testing.T) {
	title, body := FormatMarket(sampleMarket())
	assert.Equal(t, "[24H] Bitcoin above 100k", title)
	assert.Contains(t, body, "Source: kalshi | Category: crypto")
	assert.Contains(t, body, "Confidence: 71/100 | Urgency: 40")
	assert.Contains(t, body, "Price: 62.0% | 24h volume: $25.0K | Liquidity: $800")
	assert.Contains(t, body, "Resolves in 2h 5m")
	assert.Contains(t, body, "Why: solid liquidity, approaching resolution")
	assert.Contains(t, body, "Intel: up trend (80% confidence)")
	assert.Contains(t, body, "https://kalshi.com/markets/btc")
}

func TestHumanDuration(t *testing.T) {
	assert.Equal(t, "now", humanDuration(-time.Minute))
	assert.Equal(t, "45m", humanDuration(45*time.Minute))
	assert.Equal(t, "3d 4h", humanDuration(76*time.Hour))
}

func TestNotifierPartialFailureSucceeds(t *testing.T) {
	good := &fakeSender{name: "good"}
	bad := &fakeSender{name: "bad", err: errors.New("boom")}
	n := NewNotifier([]Sender{bad, good}, nil, discard())

	require.NoError(t, n.NotifyMarket(context.Background(), sampleMarket()))
	assert.Len(t, good.titles, 1)
	assert.Len(t, bad.titles, 1)
}

func TestNotifierAllFailed(t *testing.T) {
	n := NewNotifier([]Sender{&fakeSender{name: "a", err: errors.New("x")}}, nil, discard())
	err := n.NotifyMarket(context.Background(), sampleMarket())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "a: x")

	assert.ErrorIs(t, NewNotifier(nil, nil, discard()).NotifyMarket(context.Background(), sampleMarket()), ErrNoSenders)
}

func TestNotifierEventFilter(t *testing.T) {
	s := &fakeSender{name: "s"}
	n := NewNotifier([]Sender{s}, []string{" operational "}, discard())

	require.NoError(t, n.NotifyMarket(context.Background(), sampleMarket()))
	require.NoError(t, n.NotifyOperational(context.Background(), engine.OpsAlert{Source: "kalshi-api", Message: "down"}))
	require.Len(t, s.titles, 1)
	assert.Equal(t, "Operational alert: kalshi-api", s.titles[0])
}

func TestDiscordSender(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	d := NewDiscordSender(resty.New(), srv.URL)
	require.NoError(t, d.Send(context.Background(), "Title", "body"))
	assert.Equal(t, "**Title**\nbody", got["content"])
}

func TestDiscordSenderErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad webhook", http.StatusNotFound)
	}))
	defer srv.Close()

	err := NewDiscordSender(resty.New(), srv.URL).Send(context.Background(), "t", "m")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status 404")
}

func TestTelegramSender(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/botTOKEN/sendMessage", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	s := NewTelegramSender(resty.New(), srv.URL, "TOKEN", "42")
	require.NoError(t, s.Send(context.Background(), "Title", "body"))
	assert.Equal(t, "42", got["chat_id"])
	assert.Equal(t, "Title\nbody", got["text"])
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 5))
	assert.Equal(t, "ab…", truncate("abcdef", 3))
}
