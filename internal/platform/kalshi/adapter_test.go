package kalshi

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
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
	policy := resilience.RetryPolicy{Retries: 0, BaseDelay: time.Millisecond, MaxRateLimitPause: time.Second}
	return resilience.NewRetrier(policy, discard()).WithSleep(func(context.Context, time.Duration) error { return nil })
}

func market(ticker, status string, ttr time.Duration) string {
	return fmt.Sprintf(`{"ticker":%q,"title":"Market %s","status":%q,"close_time":%q,"yes_bid":40,"yes_ask":44,"last_price":42,"open_interest":900}`,
		ticker, ticker, status, testNow.Add(ttr).Format(time.RFC3339))
}

func testKey(t *testing.T) (*rsa.PrivateKey, []byte) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	der, err := x509.MarshalPKCS8PrivateKey(key)
	require.NoError(t, err)
	return key, pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})
}

func TestAdapterSignedPagination(t *testing.T) {
	key, pemBytes := testKey(t)

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "/trade-api/v2/markets", r.URL.Path)
		assert.Equal(t, "open", r.URL.Query().Get("status"))
		assert.Equal(t, "key-1", r.Header.Get("KALSHI-ACCESS-KEY"))

		ts := r.Header.Get("KALSHI-ACCESS-TIMESTAMP")
		_, err := strconv.ParseInt(ts, 10, 64)
		assert.NoError(t, err)
		sig, err := base64.StdEncoding.DecodeString(r.Header.Get("KALSHI-ACCESS-SIGNATURE"))
		assert.NoError(t, err)
		digest := sha256.Sum256([]byte(ts + "GET" + "/trade-api/v2/markets"))
		assert.NoError(t, rsa.VerifyPSS(&key.PublicKey, crypto.SHA256, digest[:], sig,
			&rsa.PSSOptions{SaltLength: rsa.PSSSaltLengthEqualsHash}))

		switch r.URL.Query().Get("cursor") {
		case "":
			fmt.Fprintf(w, `{"markets":[%s,%s],"cursor":"c2"}`, market("AAA", "open", time.Hour), market("OLD", "settled", time.Hour))
		case "c2":
			fmt.Fprintf(w, `{"markets":[%s],"cursor":""}`, market("BBB", "active", 48*time.Hour))
		}
	}))
	defer srv.Close()

	rc := platform.NewHTTPClient(platform.HTTPConfig{Timeout: time.Second})
	client := NewClient(rc, srv.URL+"/trade-api/v2", "key-1")
	require.NoError(t, client.SetRSAPrivateKey(pemBytes))
	require.True(t, client.HasCredentials())

	a := NewAdapter(client, nil, retrier(), DefaultAdapterConfig(), discard()).WithClock(func() time.Time { return testNow })
	got, err := a.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
	require.Len(t, got, 2)
	assert.Equal(t, "kalshi-AAA", got[0].ID)
	assert.True(t, got[0].Priority)
	assert.InDelta(t, 0.42, got[0].LastPrice, 1e-9)
	assert.InDelta(t, 0.04, got[0].Spread, 1e-9)
	assert.Equal(t, "kalshi-BBB", got[1].ID)
}

func TestAdapterScrapesWithoutCredentials(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/markets", r.URL.Path)
		fmt.Fprintf(w, `<html><script id="__NEXT_DATA__" type="application/json">{"props":{"pageProps":{"dehydratedState":{"queries":[{"state":{"data":{"markets":[%s,%s]}}}]}}}}</script></html>`,
			market("NEAR", "open", 2*time.Hour), market("FAR", "open", 20*24*time.Hour))
	}))
	defer srv.Close()

	rc := platform.NewHTTPClient(platform.HTTPConfig{Timeout: time.Second})
	scraper := platform.NewScraper(domain.SourceKalshi, rc, srv.URL+"/markets")
	a := NewAdapter(NewClient(rc, "", ""), scraper, retrier(), DefaultAdapterConfig(), discard()).
		WithClock(func() time.Time { return testNow })

	got, err := a.Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "kalshi-NEAR", got[0].ID)
}

func TestAdapterScrapeRateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	rc := platform.NewHTTPClient(platform.HTTPConfig{Timeout: time.Second})
	scraper := platform.NewScraper(domain.SourceKalshi, rc, srv.URL)
	a := NewAdapter(nil, scraper, retrier(), DefaultAdapterConfig(), discard())

	_, err := a.Fetch(context.Background())
	assert.True(t, domain.IsTransient(err))
}

func TestSetRSAPrivateKeyAcceptsEscapedNewlines(t *testing.T) {
	_, pemBytes := testKey(t)
	escaped := `"` + string(pemBytes[:len(pemBytes)-1]) + `"`
	escaped = replaceNewlines(escaped)

	c := NewClient(platform.NewHTTPClient(platform.HTTPConfig{}), "", "k")
	require.NoError(t, c.SetRSAPrivateKey([]byte(escaped)))
	assert.True(t, c.HasCredentials())

	assert.Error(t, c.SetRSAPrivateKey([]byte("not a key")))
}

func replaceNewlines(s string) string {
	out := make([]byte, 0, len(s)+32)
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			out = append(out, '\\', 'n')
			continue
		}
		out = append(out, s[i])
	}
	return string(out)
}

func TestGetMarketsRequiresCredentials(t *testing.T) {
	c := NewClient(platform.NewHTTPClient(platform.HTTPConfig{}), "http://127.0.0.1:1", "")
	_, err := c.GetMarkets(context.Background(), "open", 10, "")
	fe, ok := domain.AsFetchError(err)
	require.True(t, ok)
	assert.Equal(t, domain.FetchClient, fe.Kind)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}
