// Package polymarket fetches open markets from the Polymarket Gamma API, with
// a scrape of the public markets page as the fallback.
package polymarket

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/go-resty/resty/v2"

	"github.com/alanyoungcy/marketscout/internal/domain"
	"github.com/alanyoungcy/marketscout/internal/normalize"
	"github.com/alanyoungcy/marketscout/internal/platform"
)

// DefaultGammaURL is the Gamma markets listing endpoint.
const DefaultGammaURL = "https://gamma-api.polymarket.com/markets"

// GammaClient is the REST client for the Gamma markets listing.
type GammaClient struct {
	rc      *resty.Client
	baseURL string
	apiKey  string
}

// NewGammaClient creates a Gamma client. baseURL is the markets endpoint,
// e.g. DefaultGammaURL. apiKey is optional and sent as a bearer token.
func NewGammaClient(rc *resty.Client, baseURL, apiKey string) *GammaClient {
	if baseURL == "" {
		baseURL = DefaultGammaURL
	}
	return &GammaClient{rc: rc, baseURL: baseURL, apiKey: apiKey}
}

// Page returns one page of open markets, newest first.
func (g *GammaClient) Page(ctx context.Context, limit, offset int) ([]normalize.Record, error) {
	req := g.rc.R().
		SetContext(ctx).
		SetHeader("Accept", "application/json").
		SetQueryParams(map[string]string{
			"order":     "id",
			"ascending": "false",
			"closed":    "false",
			"limit":     strconv.Itoa(limit),
			"offset":    strconv.Itoa(offset),
		})
	if g.apiKey != "" {
		req.SetAuthToken(g.apiKey)
	}

	resp, err := req.Get(g.baseURL)
	if err := platform.CheckResponse(domain.SourcePolymarket, resp, err); err != nil {
		return nil, err
	}

	recs, err := decodePage(resp.Body())
	if err != nil {
		return nil, &domain.FetchError{Source: domain.SourcePolymarket, Kind: domain.FetchNetwork, Status: resp.StatusCode(), Err: err}
	}
	return recs, nil
}

// decodePage accepts either a bare array or an object wrapping one under a
// common key.
func decodePage(body []byte) ([]normalize.Record, error) {
	var arr []any
	if err := json.Unmarshal(body, &arr); err == nil {
		return normalize.Records(arr), nil
	}
	var obj map[string]any
	if err := json.Unmarshal(body, &obj); err != nil {
		return nil, fmt.Errorf("polymarket/gamma: decode markets: %w", err)
	}
	for _, key := range []string{"data", "markets", "events", "results"} {
		if recs := normalize.Record(obj).Objects(key); recs != nil {
			return recs, nil
		}
	}
	return nil, nil
}
