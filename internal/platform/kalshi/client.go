// Package kalshi fetches open markets from Kalshi, through the signed trade
// API when credentials are configured and by scraping the public markets page
// otherwise.
package kalshi

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/alanyoungcy/marketscout/internal/domain"
	"github.com/alanyoungcy/marketscout/internal/normalize"
	"github.com/alanyoungcy/marketscout/internal/platform"
)

// DefaultBaseURL is the trade API root.
const DefaultBaseURL = "https://api.elections.kalshi.com/trade-api/v2"

// Client is the REST client for the Kalshi trade API.
type Client struct {
	rc         *resty.Client
	baseURL    string
	apiKeyID   string
	privateKey *rsa.PrivateKey
	now        func() time.Time
}

// NewClient creates a new Kalshi REST client.
//
// baseURL is the API root, e.g. DefaultBaseURL.
// apiKeyID is the Kalshi API key identifier.
func NewClient(rc *resty.Client, baseURL, apiKeyID string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		rc:       rc,
		baseURL:  strings.TrimSuffix(baseURL, "/"),
		apiKeyID: apiKeyID,
		now:      time.Now,
	}
}

// SetRSAPrivateKey loads an RSA private key from PEM-encoded bytes and
// configures the client for RSA-signed authentication. Keys pasted into
// environment variables with literal "\n" sequences are accepted.
func (c *Client) SetRSAPrivateKey(pemBytes []byte) error {
	pemBytes = []byte(strings.ReplaceAll(strings.Trim(strings.TrimSpace(string(pemBytes)), `"'`), `\n`, "\n"))
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return fmt.Errorf("kalshi: no PEM block found in private key")
	}

	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		pkcs1Key, pkcs1Err := x509.ParsePKCS1PrivateKey(block.Bytes)
		if pkcs1Err != nil {
			return fmt.Errorf("kalshi: parse private key: %w (pkcs1: %v)", err, pkcs1Err)
		}
		c.privateKey = pkcs1Key
		return nil
	}

	rsaKey, ok := key.(*rsa.PrivateKey)
	if !ok {
		return fmt.Errorf("kalshi: expected RSA private key, got %T", key)
	}
	c.privateKey = rsaKey
	return nil
}

// HasCredentials reports whether requests can be signed.
func (c *Client) HasCredentials() bool {
	return c.apiKeyID != "" && c.privateKey != nil
}

// MarketsPage is one page of the markets listing.
type MarketsPage struct {
	Markets []normalize.Record
	Cursor  string
}

// GetMarkets returns one page of markets with the given status.
func (c *Client) GetMarkets(ctx context.Context, status string, limit int, cursor string) (MarketsPage, error) {
	params := map[string]string{"limit": strconv.Itoa(limit)}
	if status != "" {
		params["status"] = status
	}
	if cursor != "" {
		params["cursor"] = cursor
	}

	fullURL := c.baseURL + "/markets"
	headers, err := c.sign("GET", fullURL)
	if err != nil {
		return MarketsPage{}, &domain.FetchError{Source: domain.SourceKalshi, Kind: domain.FetchClient, Err: err}
	}

	resp, err := c.rc.R().
		SetContext(ctx).
		SetHeader("Accept", "application/json").
		SetHeaders(headers).
		SetQueryParams(params).
		Get(fullURL)
	if err := platform.CheckResponse(domain.SourceKalshi, resp, err); err != nil {
		return MarketsPage{}, err
	}

	var body map[string]any
	if err := json.Unmarshal(resp.Body(), &body); err != nil {
		return MarketsPage{}, &domain.FetchError{
			Source: domain.SourceKalshi,
			Kind:   domain.FetchNetwork,
			Status: resp.StatusCode(),
			Err:    fmt.Errorf("kalshi: decode markets: %w", err),
		}
	}
	rec := normalize.Record(body)
	return MarketsPage{Markets: rec.Objects("markets"), Cursor: rec.String("cursor")}, nil
}

// sign builds the authentication headers for a request. Kalshi signs
// timestamp + method + path (without query) with RSA-PSS-SHA256.
func (c *Client) sign(method, fullURL string) (map[string]string, error) {
	if !c.HasCredentials() {
		return nil, fmt.Errorf("kalshi: %w: API key or RSA private key not configured", domain.ErrUnauthorized)
	}
	u, err := url.Parse(fullURL)
	if err != nil {
		return nil, fmt.Errorf("kalshi: parse url: %w", err)
	}

	ts := strconv.FormatInt(c.now().UnixMilli(), 10)
	hash := sha256.Sum256([]byte(ts + method + u.Path))
	signature, err := rsa.SignPSS(rand.Reader, c.privateKey, crypto.SHA256, hash[:], &rsa.PSSOptions{
		SaltLength: rsa.PSSSaltLengthEqualsHash,
	})
	if err != nil {
		return nil, fmt.Errorf("kalshi: RSA sign: %w", err)
	}

	return map[string]string{
		"KALSHI-ACCESS-KEY":       c.apiKeyID,
		"KALSHI-ACCESS-SIGNATURE": base64.StdEncoding.EncodeToString(signature),
		"KALSHI-ACCESS-TIMESTAMP": ts,
	}, nil
}
