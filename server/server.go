// Package server exposes the call session engine over HTTP: the telephony
// webhook, the media stream websocket, health and metrics.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	intake "github.com/agentplexus/omnivoice-intake"
	"github.com/agentplexus/omnivoice-intake/callsystem"
	"github.com/agentplexus/omnivoice-intake/internal/logger"
	"github.com/agentplexus/omnivoice-intake/transport"
)

// Route paths.
const (
	WebhookPath = "/webhooks/telephony"
	MediaPath   = "/media"
	HealthPath  = "/healthz"
	MetricsPath = "/metrics"
)

const maxWebhookBody = 1 << 20

// Server routes HTTP requests to the engine.
type Server struct {
	engine   *callsystem.Engine
	media    *transport.Provider
	gatherer prometheus.Gatherer
	log      *slog.Logger
	mux      *http.ServeMux
}

// Option configures the Server.
type Option func(*Server)

// WithGatherer sets the metrics source. Defaults to the Prometheus default
// registry.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) {
		s.gatherer = g
	}
}

// New creates a server for engine.
func New(engine *callsystem.Engine, media *transport.Provider, opts ...Option) *Server {
	s := &Server{
		engine:   engine,
		media:    media,
		gatherer: prometheus.DefaultGatherer,
		log:      logger.Default().With("component", "server"),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.mux = http.NewServeMux()
	s.mux.HandleFunc("POST "+WebhookPath, s.handleWebhook)
	s.mux.HandleFunc("GET "+MediaPath+"/{callID}", s.handleMedia)
	s.mux.HandleFunc("GET "+MediaPath, s.handleMedia)
	s.mux.HandleFunc("GET "+HealthPath, s.handleHealth)
	s.mux.Handle("GET "+MetricsPath, promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// webhookEnvelope is the call control webhook body.
type webhookEnvelope struct {
	Data struct {
		EventType string `json:"event_type"`
		ID        string `json:"id"`
		Payload   struct {
			CallControlID string `json:"call_control_id"`
			To            string `json:"to"`
			From          string `json:"from"`
		} `json:"payload"`
	} `json:"data"`
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}
	var env webhookEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		s.log.Warn("malformed webhook dropped", "error", err)
		http.Error(w, "malformed webhook", http.StatusBadRequest)
		return
	}

	ev := callsystem.Event{
		Type:   env.Data.EventType,
		CallID: env.Data.Payload.CallControlID,
		To:     env.Data.Payload.To,
		From:   env.Data.Payload.From,
	}
	if err := s.engine.HandleEvent(r.Context(), ev); err != nil {
		// Acknowledged anyway; a retry would carry the same payload.
		s.log.Warn("webhook event rejected", "event_type", ev.Type, "event_id", env.Data.ID, "error", err)
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleMedia(w http.ResponseWriter, r *http.Request) {
	conn, err := s.media.Accept(w, r)
	if err != nil {
		s.log.Warn("media stream upgrade failed", "error", err)
		return
	}

	err = s.engine.Serve(context.WithoutCancel(r.Context()), conn)
	switch {
	case err == nil:
	case errors.Is(err, callsystem.ErrMissingCallID),
		errors.Is(err, callsystem.ErrNoTranscriber),
		errors.Is(err, callsystem.ErrDuplicateSession),
		errors.Is(err, callsystem.ErrCallEnded):
		s.log.Debug("media stream closed", "reason", err)
	default:
		s.log.Error("media session failed", "call_id", conn.CallID(), "error", err)
	}
}

type healthResponse struct {
	Status   string `json:"status"`
	Service  string `json:"service"`
	Version  string `json:"version"`
	Calls    int    `json:"active_calls"`
	Sessions int    `json:"active_sessions"`
	Time     string `json:"time"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(healthResponse{
		Status:   "ok",
		Service:  intake.ServiceName,
		Version:  intake.Version,
		Calls:    s.engine.ActiveCalls(),
		Sessions: s.engine.ActiveSessions(),
		Time:     time.Now().UTC().Format(time.RFC3339),
	})
}
