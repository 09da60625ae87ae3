package platform

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/marketscout/internal/domain"
)

func get(t *testing.T, status int, header map[string]string) error {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		for k, v := range header {
			w.Header().Set(k, v)
		}
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{"error":"nope"}`))
	}))
	defer srv.Close()

	rc := NewHTTPClient(HTTPConfig{Timeout: time.Second})
	resp, err := rc.R().Get(srv.URL)
	return CheckResponse(domain.SourceKalshi, resp, err)
}

func TestCheckResponseClassifies(t *testing.T) {
	assert.NoError(t, get(t, http.StatusOK, nil))

	err := get(t, http.StatusTooManyRequests, map[string]string{"Retry-After": "12"})
	fe, ok := domain.AsFetchError(err)
	require.True(t, ok)
	assert.Equal(t, domain.FetchTransient, fe.Kind)
	assert.Equal(t, 12*time.Second, fe.RetryAfter)
	assert.ErrorIs(t, err, domain.ErrRateLimited)
	assert.True(t, domain.IsTransient(err))

	fe, _ = domain.AsFetchError(get(t, http.StatusServiceUnavailable, nil))
	assert.Equal(t, domain.FetchTransient, fe.Kind)
	assert.Zero(t, fe.RetryAfter)

	err = get(t, http.StatusForbidden, nil)
	fe, _ = domain.AsFetchError(err)
	assert.Equal(t, domain.FetchClient, fe.Kind)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	err = get(t, http.StatusNotFound, nil)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	fe, _ = domain.AsFetchError(get(t, http.StatusInternalServerError, nil))
	assert.Equal(t, domain.FetchNetwork, fe.Kind)
	assert.Equal(t, http.StatusInternalServerError, fe.Status)
	assert.Contains(t, fe.Error(), "nope")
}

func TestCheckResponseTransportError(t *testing.T) {
	rc := NewHTTPClient(HTTPConfig{Timeout: 200 * time.Millisecond})
	resp, err := rc.R().Get("http://127.0.0.1:1")
	fe, ok := domain.AsFetchError(CheckResponse(domain.SourcePolymarket, resp, err))
	require.True(t, ok)
	assert.Equal(t, domain.FetchNetwork, fe.Kind)
	assert.Zero(t, fe.Status)
}

func TestParseRetryAfter(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, 30*time.Second, ParseRetryAfter("30", now))
	assert.Equal(t, 90*time.Second, ParseRetryAfter(now.Add(90*time.Second).Format(http.TimeFormat), now))
	assert.Zero(t, ParseRetryAfter(now.Add(-time.Minute).Format(http.TimeFormat), now))
	assert.Zero(t, ParseRetryAfter("", now))
	assert.Zero(t, ParseRetryAfter("soon", now))
	assert.Zero(t, ParseRetryAfter("-5", now))
}

const nextDataPage = `<!DOCTYPE html><html><head><title>Markets</title></head><body>
<div id="__next"></div>
<script id="__NEXT_DATA__" type="application/json">
{"props":{"pageProps":{"dehydratedState":{"queries":[
  {"state":{"data":{"markets":[{"id":"a"},{"id":"b"}]}}},
  {"state":{"data":{"other":true}}},
  {"state":{"data":{"markets":[{"id":"c"},"junk"]}}}
]}}}}
</script></body></html>`

func TestExtractNextData(t *testing.T) {
	recs, err := ExtractNextData(strings.NewReader(nextDataPage))
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.Equal(t, "a", recs[0].String("id"))
	assert.Equal(t, "c", recs[2].String("id"))
}

func TestExtractNextDataMissingScript(t *testing.T) {
	_, err := ExtractNextData(strings.NewReader("<html><body>nothing</body></html>"))
	assert.ErrorIs(t, err, domain.ErrNoData)
}

func TestScraperRecords(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "text/html", r.Header.Get("Accept"))
		assert.Equal(t, DefaultUserAgent, r.Header.Get("User-Agent"))
		_, _ = w.Write([]byte(nextDataPage))
	}))
	defer srv.Close()

	s := NewScraper(domain.SourcePolymarket, NewHTTPClient(HTTPConfig{}), srv.URL)
	recs, err := s.Records(context.Background())
	require.NoError(t, err)
	assert.Len(t, recs, 3)
}

func TestJoinFetchErrors(t *testing.T) {
	hard := &domain.FetchError{Source: domain.SourceKalshi, Kind: domain.FetchClient, Status: 401, Err: errors.New("bad key")}
	limited := &domain.FetchError{Source: domain.SourceKalshi, Kind: domain.FetchTransient, Status: 429, RetryAfter: time.Minute, Err: domain.ErrRateLimited}

	assert.Same(t, hard, JoinFetchErrors(domain.SourceKalshi, nil, hard))
	assert.Same(t, hard, JoinFetchErrors(domain.SourceKalshi, hard, nil))

	joined := JoinFetchErrors(domain.SourceKalshi, hard, limited)
	fe, ok := domain.AsFetchError(joined)
	require.True(t, ok)
	assert.Equal(t, domain.FetchTransient, fe.Kind)
	assert.Equal(t, time.Minute, fe.RetryAfter)
	assert.Contains(t, joined.Error(), "bad key")

	fe, _ = domain.AsFetchError(JoinFetchErrors(domain.SourceKalshi, hard, errors.New("html")))
	assert.Equal(t, domain.FetchClient, fe.Kind)
	assert.Equal(t, 401, fe.Status)
}
