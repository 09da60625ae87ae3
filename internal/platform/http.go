// Package platform holds the HTTP plumbing shared by the market-data source
// adapters: a configured resty client, response classification into
// *domain.FetchError, and the embedded-page-data scraper.
package platform

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/alanyoungcy/marketscout/internal/domain"
)

const (
	// DefaultTimeout is the per-request timeout for source calls.
	DefaultTimeout = 10 * time.Second
	// DefaultUserAgent identifies the scanner to upstream sites.
	DefaultUserAgent = "marketscout/1.0 (+https://github.com/alanyoungcy/marketscout)"

	maxErrorBody = 256
)

// HTTPConfig configures the shared resty client.
type HTTPConfig struct {
	Timeout   time.Duration
	UserAgent string
}

// NewHTTPClient builds a resty client with a fixed timeout. Retries are not
// enabled here; callers wrap requests in resilience.Retry so rate limits and
// backoff are accounted for in one place.
func NewHTTPClient(cfg HTTPConfig) *resty.Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	return resty.New().
		SetTimeout(cfg.Timeout).
		SetHeader("User-Agent", cfg.UserAgent).
		SetRetryCount(0)
}

// CheckResponse converts a resty outcome into nil or a *domain.FetchError.
// 429 and 503 are transient and carry any Retry-After hint; other 4xx are
// client errors; transport failures and remaining statuses are network
// errors.
func CheckResponse(src domain.Source, resp *resty.Response, err error) error {
	if err != nil {
		return &domain.FetchError{Source: src, Kind: domain.FetchNetwork, Err: err}
	}
	if resp.IsSuccess() {
		return nil
	}

	status := resp.StatusCode()
	fe := &domain.FetchError{Source: src, Status: status}
	detail := fmt.Errorf("%s %s: %s", resp.Request.Method, resp.Request.URL, snippet(resp.Body()))

	switch {
	case status == http.StatusTooManyRequests || status == http.StatusServiceUnavailable:
		fe.Kind = domain.FetchTransient
		fe.RetryAfter = ParseRetryAfter(resp.Header().Get("Retry-After"), time.Now())
		fe.Err = errors.Join(domain.ErrRateLimited, detail)
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		fe.Kind = domain.FetchClient
		fe.Err = errors.Join(domain.ErrUnauthorized, detail)
	case status == http.StatusNotFound:
		fe.Kind = domain.FetchClient
		fe.Err = errors.Join(domain.ErrNotFound, detail)
	case status >= 400 && status < 500:
		fe.Kind = domain.FetchClient
		fe.Err = detail
	default:
		fe.Kind = domain.FetchNetwork
		fe.Err = detail
	}
	return fe
}

// ParseRetryAfter reads a Retry-After header given in seconds or as an HTTP
// date. Missing or unparseable values yield zero.
func ParseRetryAfter(v string, now time.Time) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil {
		if d := at.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}

func snippet(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > maxErrorBody {
		s = s[:maxErrorBody] + "..."
	}
	if s == "" {
		return "empty body"
	}
	return s
}

// JoinFetchErrors combines a primary failure with a failed fallback. The
// result is transient if either side was, so the caller backs off instead of
// counting a hard failure.
func JoinFetchErrors(src domain.Source, primary, fallback error) error {
	if primary == nil {
		return fallback
	}
	if fallback == nil {
		return primary
	}
	out := &domain.FetchError{Source: src, Kind: domain.FetchNetwork, Err: errors.Join(primary, fallback)}
	for _, err := range []error{primary, fallback} {
		fe, ok := domain.AsFetchError(err)
		if !ok {
			continue
		}
		if fe.Kind == domain.FetchTransient {
			out.Kind = domain.FetchTransient
			out.Status = fe.Status
			out.RetryAfter = max(out.RetryAfter, fe.RetryAfter)
		} else if out.Kind != domain.FetchTransient && out.Status == 0 {
			out.Kind = fe.Kind
			out.Status = fe.Status
		}
	}
	return out
}
