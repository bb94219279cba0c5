package ticket

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

// ErrNotConfigured is returned by a Client without an ingestion URL.
var ErrNotConfigured = errors.New("ticket ingestion URL is not configured")

// StatusError is returned when ingestion answers with a non-2xx status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("ticket ingestion error %d: %s", e.StatusCode, e.Body)
}

// Client posts tickets to the ingestion endpoint as JSON.
type Client struct {
	url        string
	token      string
	httpClient *http.Client
}

// ClientConfig configures the ingestion client.
type ClientConfig struct {
	URL        string
	Token      string
	HTTPClient *http.Client
}

// NewClient creates an ingestion client. Empty fields fall back to the
// TICKET_URL and TICKET_TOKEN environment variables.
func NewClient(cfg *ClientConfig) *Client {
	if cfg == nil {
		cfg = &ClientConfig{}
	}

	u := cfg.URL
	if u == "" {
		u = os.Getenv("TICKET_URL")
	}
	token := cfg.Token
	if token == "" {
		token = os.Getenv("TICKET_TOKEN")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}

	return &Client{url: u, token: token, httpClient: httpClient}
}

// Submit posts t. It is not retried; callers log the error.
func (c *Client) Submit(ctx context.Context, t *Ticket) error {
	if c.url == "" {
		return ErrNotConfigured
	}

	payload, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("failed to marshal ticket: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if t.ID != "" {
		req.Header.Set("Idempotency-Key", t.ID)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("ticket ingestion request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}
	return nil
}
