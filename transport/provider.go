// Package transport accepts the telephony provider's media stream websocket
// and decodes inbound caller audio.
package transport

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Provider upgrades media stream requests into Connections.
type Provider struct {
	upgrader websocket.Upgrader
}

// Option configures the Provider.
type Option func(*options)

type options struct {
	checkOrigin func(r *http.Request) bool
	bufferSize  int
}

// WithCheckOrigin sets the origin check. By default every origin is
// accepted since the peer is the telephony provider, not a browser.
func WithCheckOrigin(fn func(r *http.Request) bool) Option {
	return func(o *options) {
		o.checkOrigin = fn
	}
}

// WithBufferSize sets the websocket read and write buffer sizes.
func WithBufferSize(n int) Option {
	return func(o *options) {
		o.bufferSize = n
	}
}

// New creates a media stream transport provider.
func New(opts ...Option) *Provider {
	cfg := &options{
		checkOrigin: func(r *http.Request) bool { return true },
		bufferSize:  4096,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	return &Provider{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  cfg.bufferSize,
			WriteBufferSize: cfg.bufferSize,
			CheckOrigin:     cfg.checkOrigin,
		},
	}
}

// Name returns the transport name.
func (p *Provider) Name() string {
	return "telnyx-media-streams"
}

// CallIDFromRequest extracts the call identifier from the media stream
// request: the {callID} path segment or the call_id query parameter.
func CallIDFromRequest(r *http.Request) string {
	if id := strings.TrimSpace(r.PathValue("callID")); id != "" {
		return id
	}
	return strings.TrimSpace(r.URL.Query().Get("call_id"))
}

// Accept upgrades the request. On error the response has already been
// written.
func (p *Provider) Accept(w http.ResponseWriter, r *http.Request) (*Connection, error) {
	ws, err := p.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, fmt.Errorf("websocket upgrade failed: %w", err)
	}
	return &Connection{
		callID:     CallIDFromRequest(r),
		ws:         ws,
		remoteAddr: ws.RemoteAddr(),
	}, nil
}

// Connection is one media stream websocket.
type Connection struct {
	callID     string
	ws         *websocket.Conn
	remoteAddr net.Addr

	mu        sync.Mutex
	streamID  string
	closeOnce sync.Once
}

// CallID returns the call identifier the connection was opened for.
func (c *Connection) CallID() string {
	return c.callID
}

// StreamID returns the provider stream id once the start frame arrived.
func (c *Connection) StreamID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.streamID
}

// RemoteAddr returns the remote address.
func (c *Connection) RemoteAddr() net.Addr {
	return c.remoteAddr
}

// Run reads frames until the peer stops the stream or the socket closes,
// passing every decoded inbound audio payload to onAudio. Malformed frames
// are skipped. A stop frame or a normal close returns nil.
func (c *Connection) Run(onAudio func(audio []byte)) error {
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) ||
				errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}

		frame, err := ParseFrame(data)
		if err != nil {
			continue
		}

		switch frame.Event {
		case EventStart:
			if frame.StreamID != "" {
				c.mu.Lock()
				c.streamID = frame.StreamID
				c.mu.Unlock()
			}
		case EventMedia:
			audio, ok, err := frame.Audio()
			if err != nil || !ok {
				continue
			}
			onAudio(audio)
		case EventStop:
			return nil
		}
	}
}

// Close closes the socket with a normal closure. Safe to call more than once.
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		err = c.ws.Close()
	})
	return err
}
