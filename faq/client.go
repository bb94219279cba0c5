package faq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

// ErrNotConfigured is returned by a Client without a base URL.
var ErrNotConfigured = errors.New("dashboard URL is not configured")

// StatusError is returned when the dashboard answers with a non-2xx status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("dashboard error %d: %s", e.StatusCode, e.Body)
}

// Client fetches dashboard context for a called number.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// ClientConfig configures the dashboard client.
type ClientConfig struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
}

// NewClient creates a dashboard client. An empty BaseURL falls back to the
// DASHBOARD_URL environment variable; a client without a URL returns
// ErrNotConfigured from Fetch.
func NewClient(cfg *ClientConfig) *Client {
	if cfg == nil {
		cfg = &ClientConfig{}
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = os.Getenv("DASHBOARD_URL")
	}
	token := cfg.Token
	if token == "" {
		token = os.Getenv("DASHBOARD_TOKEN")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 5 * time.Second}
	}

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: httpClient,
	}
}

// Fetch retrieves the context configured for toNumber. A 404 yields a nil
// context and no error.
func (c *Client) Fetch(ctx context.Context, toNumber string) (*Context, error) {
	if c.baseURL == "" {
		return nil, ErrNotConfigured
	}

	endpoint := fmt.Sprintf("%s/context?to=%s", c.baseURL, url.QueryEscape(toNumber))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("dashboard request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode >= 300 {
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var out Context
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("failed to parse dashboard context: %w", err)
	}
	return &out, nil
}
