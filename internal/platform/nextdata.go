package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"

	"github.com/alanyoungcy/marketscout/internal/domain"
	"github.com/alanyoungcy/marketscout/internal/normalize"
)

// ExtractNextData pulls the market records embedded in a Next.js page's
// __NEXT_DATA__ script (props.pageProps.dehydratedState.queries[].state.data.markets).
func ExtractNextData(r io.Reader) ([]normalize.Record, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("platform: parse html: %w", err)
	}
	script := doc.Find("script#__NEXT_DATA__").First()
	if script.Length() == 0 {
		return nil, fmt.Errorf("platform: __NEXT_DATA__ script: %w", domain.ErrNoData)
	}

	var payload map[string]any
	if err := json.Unmarshal([]byte(script.Text()), &payload); err != nil {
		return nil, fmt.Errorf("platform: decode __NEXT_DATA__: %w", err)
	}

	var out []normalize.Record
	for _, q := range normalize.Record(payload).Objects("props.pageProps.dehydratedState.queries") {
		out = append(out, q.Objects("state.data.markets")...)
	}
	return out, nil
}

// Scraper fetches a listing page and extracts its embedded market records.
type Scraper struct {
	source domain.Source
	rc     *resty.Client
	url    string
}

// NewScraper creates a Scraper for pageURL.
func NewScraper(source domain.Source, rc *resty.Client, pageURL string) *Scraper {
	return &Scraper{source: source, rc: rc, url: pageURL}
}

// URL returns the scraped page address.
func (s *Scraper) URL() string { return s.url }

// Records downloads the page and returns its market records. Failures are
// reported as *domain.FetchError.
func (s *Scraper) Records(ctx context.Context) ([]normalize.Record, error) {
	resp, err := s.rc.R().
		SetContext(ctx).
		SetHeader("Accept", "text/html").
		Get(s.url)
	if err := CheckResponse(s.source, resp, err); err != nil {
		return nil, err
	}
	recs, err := ExtractNextData(bytes.NewReader(resp.Body()))
	if err != nil {
		return nil, &domain.FetchError{Source: s.source, Kind: domain.FetchNetwork, Status: resp.StatusCode(), Err: err}
	}
	return recs, nil
}
