package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/i474232898/teleconnection-forecast/internal/teleconnection"
	"github.com/sony/gobreaker"
)

const (
	// acceptHeader matches what the provider serves forecast files as.
	acceptHeader = "text/csv, text/html"
	breakerName  = "model-data"
)

// Config identifies the provider endpoint and credentials.
type Config struct {
	// BaseURL is scheme and host, e.g. https://api.example.com. A bare host
	// is treated as https.
	BaseURL    string
	APIVersion string
	APIKey     string
	Backoff    BackoffConfig
}

// Client fetches teleconnection forecast files from the model-data API.
// It is safe for concurrent use; all requests share one *http.Client.
type Client struct {
	baseURL    string
	apiVersion string
	apiKey     string
	httpCfg    HTTPClientConfig
	circuit    *gobreaker.CircuitBreaker
}

// NewClient validates cfg and returns a Client using httpClient for transport.
func NewClient(httpClient *http.Client, cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("provider api key is not configured")
	}
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("provider host is not configured")
	}
	if strings.Trim(cfg.APIVersion, "/") == "" {
		return nil, fmt.Errorf("provider api version is not configured")
	}

	base := cfg.BaseURL
	if !strings.Contains(base, "://") {
		base = "https://" + base
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("invalid provider url: %w", err)
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: 5,
		Interval:    1 * time.Minute,
		Timeout:     2 * time.Minute,
	})

	return &Client{
		baseURL:    strings.TrimRight(base, "/"),
		apiVersion: strings.Trim(cfg.APIVersion, "/"),
		apiKey:     cfg.APIKey,
		httpCfg: HTTPClientConfig{
			Client:  httpClient,
			Backoff: cfg.Backoff,
		},
		circuit: cb,
	}, nil
}

// URL returns the full request URL for q, including the API key.
func (c *Client) URL(q teleconnection.ModelQuery) string {
	values := url.Values{}
	values.Set("apikey", c.apiKey)
	return fmt.Sprintf("%s%s?%s", c.baseURL, q.Path(c.apiVersion), values.Encode())
}

// Fetch retrieves the raw CSV payload for q.
func (c *Client) Fetch(ctx context.Context, q teleconnection.ModelQuery) ([]byte, error) {
	buildRequest := func() (*http.Request, error) {
		req, err := http.NewRequest(http.MethodGet, c.URL(q), nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", acceptHeader)
		return req, nil
	}

	resp, err := doRequestWithResilience(ctx, c.httpCfg, c.circuit, buildRequest)
	if err != nil {
		var se *statusError
		if errors.As(err, &se) {
			return nil, &teleconnection.ProviderError{Model: q.Model, Query: q, StatusCode: se.code}
		}
		return nil, &teleconnection.TransportError{Model: q.Model, Query: q, Err: c.redact(q, err)}
	}

	if resp.status < 200 || resp.status >= 300 {
		return nil, &teleconnection.ProviderError{Model: q.Model, Query: q, StatusCode: resp.status}
	}
	if resp.oversized {
		return nil, &teleconnection.SchemaError{
			Row:    -1,
			Column: -1,
			Reason: fmt.Sprintf("payload exceeds %s", humanize.IBytes(maxPayloadBytes)),
		}
	}
	return resp.body, nil
}

// redact strips the API key from URLs embedded in transport errors.
func (c *Client) redact(q teleconnection.ModelQuery, err error) error {
	var ue *url.Error
	if errors.As(err, &ue) {
		ue.URL = c.baseURL + q.Path(c.apiVersion)
	}
	return err
}

var _ teleconnection.Fetcher = (*Client)(nil)
