// Package debrid exchanges long-lived link-host references for short-lived
// authorized fetch URLs.
package debrid

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// DefaultEndpoint is the 1fichier token-exchange endpoint.
const DefaultEndpoint = "https://api.1fichier.com/v1/download/get_token.cgi"

const defaultHTTPTimeout = 30 * time.Second

// ErrNotConfigured is returned when no API key is available.
var ErrNotConfigured = errors.New("debrid: api key is not configured")

// UnlockResult is a resolved, time-limited fetch URL plus the file name the
// upstream suggests for it (may be empty).
type UnlockResult struct {
	URL      string
	FileName string
}

// Client resolves a source reference into a fetch URL.
type Client interface {
	// Unlock exchanges sourceURL for a time-limited download URL.
	// Any failure is fatal to the job being resolved.
	Unlock(ctx context.Context, sourceURL string) (*UnlockResult, error)
}

// httpClient implements Client against a 1fichier-style API.
type httpClient struct {
	endpoint string
	apiKey   string
	http     *http.Client
	logger   zerolog.Logger
}

// Option is a functional option for configuring the client.
type Option func(*httpClient)

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *httpClient) {
		c.logger = logger
	}
}

// WithHTTPClient overrides the HTTP client. Used in tests.
func WithHTTPClient(h *http.Client) Option {
	return func(c *httpClient) {
		c.http = h
	}
}

// New creates a token-exchange client. The API key is required; a missing
// key fails construction so the gap surfaces at startup rather than on the
// first job.
func New(endpoint, apiKey string, opts ...Option) (Client, error) {
	if apiKey == "" {
		return nil, ErrNotConfigured
	}
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}

	c := &httpClient{
		endpoint: endpoint,
		apiKey:   apiKey,
		http: &http.Client{
			Timeout: defaultHTTPTimeout,
		},
		logger: zerolog.Nop(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// tokenRequest is the upstream request payload.
type tokenRequest struct {
	URL string `json:"url"`
}

// tokenResponse is the upstream response payload.
type tokenResponse struct {
	Status   string `json:"status"`
	URL      string `json:"url"`
	FileName string `json:"filename"`
	Message  string `json:"message"`
}

// Unlock exchanges a source reference for a fetch URL. Trailing ancillary
// parameters (everything from the first "&") are stripped from the
// reference before it is sent upstream.
func (c *httpClient) Unlock(ctx context.Context, sourceURL string) (*UnlockResult, error) {
	ref := sourceURL
	if i := strings.Index(ref, "&"); i >= 0 {
		ref = ref[:i]
	}

	body, err := json.Marshal(tokenRequest{URL: ref})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token exchange request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("token exchange returned status %d", resp.StatusCode)
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return nil, fmt.Errorf("token exchange returned invalid response: %w", err)
	}

	if tr.Status != "OK" {
		if tr.Message != "" {
			return nil, fmt.Errorf("token exchange error: %s (%s)", tr.Status, tr.Message)
		}
		return nil, fmt.Errorf("token exchange error: %s", tr.Status)
	}

	c.logger.Debug().Str("url", ref).Str("filename", tr.FileName).Msg("resolved fetch url")

	return &UnlockResult{
		URL:      tr.URL,
		FileName: tr.FileName,
	}, nil
}
