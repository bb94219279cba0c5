// Package stt provides a streaming speech-to-text client for the Deepgram
// live transcription websocket.
//
// Caller audio arrives from the telephony provider as 8 kHz mu-law and is
// forwarded verbatim; the stream is opened with matching encoding
// parameters so no transcoding happens in this process.
package stt

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	intake "github.com/agentplexus/omnivoice-intake"
)

// Verify interface compliance at compile time.
var _ Stream = (*Conn)(nil)

// ErrMissingAPIKey is returned by New when no API key is configured.
var ErrMissingAPIKey = errors.New("DEEPGRAM_API_KEY is required")

// ErrClosed is returned by SendAudio after the stream was closed.
var ErrClosed = errors.New("transcription stream closed")

// Stream is a live transcription session for one call.
type Stream interface {
	// SendAudio forwards raw audio bytes.
	SendAudio(audio []byte) error
	// Results delivers parsed result records. It is closed when the
	// stream ends.
	Results() <-chan Result
	Close() error
}

// Provider opens live transcription streams.
type Provider struct {
	apiKey     string
	baseURL    string
	model      string
	language   string
	encoding   string
	sampleRate int
	dialer     *websocket.Dialer
}

// Option configures the Provider.
type Option func(*options)

type options struct {
	apiKey     string
	baseURL    string
	model      string
	language   string
	encoding   string
	sampleRate int
	dialer     *websocket.Dialer
}

// WithAPIKey sets the API key. Defaults to DEEPGRAM_API_KEY.
func WithAPIKey(key string) Option {
	return func(o *options) {
		o.apiKey = key
	}
}

// WithBaseURL overrides the websocket endpoint.
func WithBaseURL(u string) Option {
	return func(o *options) {
		o.baseURL = u
	}
}

// WithModel sets the recognition model.
func WithModel(model string) Option {
	return func(o *options) {
		o.model = model
	}
}

// WithLanguage sets the recognition language.
func WithLanguage(language string) Option {
	return func(o *options) {
		o.language = language
	}
}

// WithEncoding sets the audio encoding and sample rate sent to the engine.
func WithEncoding(encoding string, sampleRate int) Option {
	return func(o *options) {
		o.encoding = encoding
		o.sampleRate = sampleRate
	}
}

// WithDialer sets the websocket dialer.
func WithDialer(d *websocket.Dialer) Option {
	return func(o *options) {
		o.dialer = d
	}
}

// New creates a new Deepgram live transcription provider.
func New(opts ...Option) (*Provider, error) {
	cfg := &options{
		baseURL:    intake.DefaultTranscriptionURL,
		model:      "nova-2-phonecall",
		language:   "en-US",
		encoding:   intake.AudioEncodingMulaw,
		sampleRate: intake.DefaultSampleRate,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.apiKey == "" {
		cfg.apiKey = os.Getenv("DEEPGRAM_API_KEY")
	}
	if strings.TrimSpace(cfg.apiKey) == "" {
		return nil, ErrMissingAPIKey
	}
	if cfg.dialer == nil {
		cfg.dialer = &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 10 * time.Second,
		}
	}

	return &Provider{
		apiKey:     strings.TrimSpace(cfg.apiKey),
		baseURL:    cfg.baseURL,
		model:      cfg.model,
		language:   cfg.language,
		encoding:   cfg.encoding,
		sampleRate: cfg.sampleRate,
		dialer:     cfg.dialer,
	}, nil
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return "deepgram"
}

// StreamURL returns the websocket URL including the encoding parameters.
func (p *Provider) StreamURL() (string, error) {
	u, err := url.Parse(p.baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid transcription url: %w", err)
	}
	q := u.Query()
	q.Set("encoding", p.encoding)
	q.Set("sample_rate", strconv.Itoa(p.sampleRate))
	q.Set("channels", "1")
	q.Set("model", p.model)
	q.Set("language", p.language)
	q.Set("punctuate", "true")
	q.Set("interim_results", "true")
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Open dials a live transcription stream.
func (p *Provider) Open(ctx context.Context) (Stream, error) {
	wsURL, err := p.StreamURL()
	if err != nil {
		return nil, err
	}
	header := http.Header{}
	header.Set("Authorization", "Token "+p.apiKey)

	ws, resp, err := p.dialer.DialContext(ctx, wsURL, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("transcription dial failed with status %d: %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("transcription dial failed: %w", err)
	}
	return newConn(ws), nil
}

// keepAliveInterval stays under the engine's ten second idle timeout.
const keepAliveInterval = 8 * time.Second

const writeTimeout = 5 * time.Second

// Conn is a live transcription websocket.
type Conn struct {
	ws *websocket.Conn

	writeMu   sync.Mutex
	results   chan Result
	closed    chan struct{}
	closeOnce sync.Once
}

func newConn(ws *websocket.Conn) *Conn {
	c := &Conn{
		ws:      ws,
		results: make(chan Result, 64),
		closed:  make(chan struct{}),
	}
	go c.readLoop()
	go c.keepAliveLoop()
	return c
}

// SendAudio writes audio as a binary frame.
func (c *Conn) SendAudio(audio []byte) error {
	select {
	case <-c.closed:
		return ErrClosed
	default:
	}
	return c.write(websocket.BinaryMessage, audio)
}

// Results delivers parsed result records.
func (c *Conn) Results() <-chan Result {
	return c.results
}

// Close asks the engine to flush and closes the socket. Safe to call more
// than once.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		_ = c.write(websocket.TextMessage, []byte(`{"type":"CloseStream"}`))
		close(c.closed)
		err = c.ws.Close()
	})
	return err
}

func (c *Conn) write(messageType int, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.ws.WriteMessage(messageType, data)
}

func (c *Conn) readLoop() {
	defer close(c.results)
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			return
		}
		res, err := ParseResult(data)
		if err != nil {
			continue
		}
		select {
		case c.results <- res:
		case <-c.closed:
			return
		}
	}
}

func (c *Conn) keepAliveLoop() {
	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.closed:
			return
		case <-ticker.C:
			if err := c.write(websocket.TextMessage, []byte(`{"type":"KeepAlive"}`)); err != nil {
				return
			}
		}
	}
}
