package polymarket

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/marketscout/internal/domain"
	"github.com/alanyoungcy/marketscout/internal/platform"
	"github.com/alanyoungcy/marketscout/internal/resilience"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func retrier() *resilience.Retrier {
	policy := resilience.RetryPolicy{Retries: 0, BaseDelay: time.Millisecond, MaxRateLimitWaits: 0, MaxRateLimitPause: time.Second}
	return resilience.NewRetrier(policy, discard()).WithSleep(func(context.Context, time.Duration) error { return nil })
}

func record(id int, ttr time.Duration) string {
	return fmt.Sprintf(`{"id":"%d","question":"Market %d","endDate":%q,"liquidity":"2500","bestBid":0.48,"bestAsk":0.52}`,
		id, id, testNow.Add(ttr).Format(time.RFC3339))
}

func newAdapter(srvURL string, cfg AdapterConfig) *Adapter {
	rc := platform.NewHTTPClient(platform.HTTPConfig{Timeout: time.Second})
	gamma := NewGammaClient(rc, srvURL+"/markets", "")
	scraper := platform.NewScraper(domain.SourcePolymarket, rc, srvURL+"/page")
	return NewAdapter(gamma, scraper, retrier(), cfg, discard()).WithClock(func() time.Time { return testNow })
}

func TestAdapterPaginatesUntilShortPage(t *testing.T) {
	var pages atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/markets", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "id", q.Get("order"))
		assert.Equal(t, "false", q.Get("ascending"))
		assert.Equal(t, "false", q.Get("closed"))
		assert.Equal(t, "2", q.Get("limit"))
		pages.Add(1)

		offset, _ := strconv.Atoi(q.Get("offset"))
		switch offset {
		case 0:
			// The second record resolves beyond the horizon.
			fmt.Fprintf(w, "[%s,%s]", record(1, time.Hour), record(2, 30*24*time.Hour))
		case 2:
			fmt.Fprintf(w, "[%s]", record(3, 2*time.Hour))
		default:
			t.Errorf("unexpected offset %d", offset)
		}
	}))
	defer srv.Close()

	cfg := AdapterConfig{PageSize: 2, MaxPages: 5, TargetValid: 100, MaxResolution: 7 * 24 * time.Hour}
	got, err := newAdapter(srv.URL, cfg).Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "polymarket-1", got[0].ID)
	assert.Equal(t, "polymarket-3", got[1].ID)
	assert.Equal(t, int32(2), pages.Load())
}

func TestAdapterStopsAtTargetValid(t *testing.T) {
	var pages atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		n := int(pages.Add(1))
		fmt.Fprintf(w, "[%s,%s]", record(n*10, time.Hour), record(n*10+1, time.Hour))
	}))
	defer srv.Close()

	cfg := AdapterConfig{PageSize: 2, MaxPages: 5, TargetValid: 3}
	got, err := newAdapter(srv.URL, cfg).Fetch(context.Background())
	require.NoError(t, err)
	assert.Len(t, got, 4)
	assert.Equal(t, int32(2), pages.Load())
}

func TestAdapterFallsBackToScrape(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/page" {
			fmt.Fprintf(w, `<html><script id="__NEXT_DATA__">{"props":{"pageProps":{"dehydratedState":{"queries":[{"state":{"data":{"markets":[%s]}}}]}}}}</script></html>`,
				record(7, 3*time.Hour))
			return
		}
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	cfg := AdapterConfig{PageSize: 2, MaxPages: 2}
	got, err := newAdapter(srv.URL, cfg).Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "polymarket-7", got[0].ID)
}

func TestAdapterReportsBothFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := newAdapter(srv.URL, AdapterConfig{PageSize: 2, MaxPages: 1}).Fetch(context.Background())
	fe, ok := domain.AsFetchError(err)
	require.True(t, ok)
	assert.Equal(t, domain.FetchNetwork, fe.Kind)
	assert.False(t, domain.IsTransient(err))
}

func TestAdapterRateLimitSkipsFallback(t *testing.T) {
	var scraped atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/page" {
			scraped.Add(1)
		}
		w.Header().Set("Retry-After", "120")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := newAdapter(srv.URL, AdapterConfig{PageSize: 2, MaxPages: 3}).Fetch(context.Background())
	require.Error(t, err)
	assert.True(t, domain.IsTransient(err))
	assert.Zero(t, scraped.Load())
}

func TestDecodePageWrapped(t *testing.T) {
	recs, err := decodePage([]byte(`{"data":[{"id":"1"},{"id":"2"}]}`))
	require.NoError(t, err)
	assert.Len(t, recs, 2)

	recs, err = decodePage([]byte(`{"unrelated":1}`))
	require.NoError(t, err)
	assert.Empty(t, recs)

	_, err = decodePage([]byte(`not json`))
	assert.Error(t, err)
}
