// Package client provides a Telnyx Call Control API client for internal use.
package client

import (
	"bytes"
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

	"golang.org/x/time/rate"

	intake "github.com/agentplexus/omnivoice-intake"
)

// ErrMissingAPIKey is returned by New when no API key is configured.
var ErrMissingAPIKey = errors.New("TELNYX_API_KEY is required")

// Default outbound request budget.
const (
	DefaultRateLimit = 20
	DefaultBurst     = 40
)

// Client is a Telnyx Call Control client.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// Config configures the Telnyx client.
type Config struct {
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client
	// RateLimit is the sustained number of actions per second. Zero uses
	// DefaultRateLimit; a negative value disables limiting.
	RateLimit float64
	Burst     int
}

// New creates a new Telnyx client.
func New(cfg *Config) (*Client, error) {
	if cfg == nil {
		cfg = &Config{}
	}

	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("TELNYX_API_KEY")
	}
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}

	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = intake.DefaultAPIBaseURL
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout: 15 * time.Second,
		}
	}

	var limiter *rate.Limiter
	if cfg.RateLimit >= 0 {
		limit := cfg.RateLimit
		if limit == 0 {
			limit = DefaultRateLimit
		}
		burst := cfg.Burst
		if burst <= 0 {
			burst = DefaultBurst
		}
		limiter = rate.NewLimiter(rate.Limit(limit), burst)
	}

	return &Client{
		apiKey:     apiKey,
		baseURL:    baseURL,
		httpClient: httpClient,
		limiter:    limiter,
	}, nil
}

// BaseURL returns the API base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// AnswerParams are parameters for the answer action.
type AnswerParams struct {
	ClientState string `json:"client_state,omitempty"`
}

// SpeakParams are parameters for the speak action.
type SpeakParams struct {
	Payload     string `json:"payload"`
	Voice       string `json:"voice"`
	Language    string `json:"language,omitempty"`
	PayloadType string `json:"payload_type,omitempty"`
}

// StreamingStartParams are parameters for the streaming_start action.
type StreamingStartParams struct {
	StreamURL   string `json:"stream_url"`
	StreamTrack string `json:"stream_track,omitempty"`
}

// ActionResult is the data envelope returned by a call action.
type ActionResult struct {
	Result string `json:"result"`
}

type actionResponse struct {
	Data ActionResult `json:"data"`
}

// SendAction issues a call control action for callID. body may be nil.
func (c *Client) SendAction(ctx context.Context, callID, action string, body any) (*ActionResult, error) {
	if callID == "" {
		return nil, fmt.Errorf("call id is required for action %s", action)
	}
	endpoint := fmt.Sprintf("%s/calls/%s/actions/%s", c.baseURL, url.PathEscape(callID), action)

	if body == nil {
		body = struct{}{}
	}
	var resp actionResponse
	if err := c.post(ctx, endpoint, body, &resp); err != nil {
		return nil, fmt.Errorf("%s action failed: %w", action, err)
	}
	return &resp.Data, nil
}

// Speak plays synthesized speech on the call.
func (c *Client) Speak(ctx context.Context, callID string, params *SpeakParams) error {
	_, err := c.SendAction(ctx, callID, intake.ActionSpeak, params)
	return err
}

// ErrorDetail is a single Telnyx API error.
type ErrorDetail struct {
	Code   string `json:"code"`
	Title  string `json:"title"`
	Detail string `json:"detail"`
}

// Error represents a Telnyx API error response.
type Error struct {
	Status int           `json:"-"`
	Errors []ErrorDetail `json:"errors"`
	Body   string        `json:"-"`
}

func (e *Error) Error() string {
	if len(e.Errors) > 0 {
		d := e.Errors[0]
		msg := d.Title
		if d.Detail != "" {
			msg = d.Detail
		}
		return fmt.Sprintf("telnyx error %d (%s): %s", e.Status, d.Code, msg)
	}
	return fmt.Sprintf("telnyx error %d: %s", e.Status, e.Body)
}

// post performs a POST request with a JSON body.
func (c *Client) post(ctx context.Context, url string, body any, result any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, result)
}

// do executes a request with authentication.
func (c *Client) do(req *http.Request, result any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(req.Context()); err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}
	}

	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode >= 400 {
		apiErr := &Error{Status: resp.StatusCode, Body: strings.TrimSpace(string(body))}
		_ = json.Unmarshal(body, apiErr)
		return apiErr
	}

	if result != nil && len(bytes.TrimSpace(body)) > 0 {
		if err := json.Unmarshal(body, result); err != nil {
			return fmt.Errorf("failed to parse response: %w", err)
		}
	}

	return nil
}
