// Package callsystem is the call session engine. It owns one actor per
// active call, relays media stream audio to the transcription engine and
// routes final transcripts into the intake flow or the FAQ matcher.
package callsystem

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	intake "github.com/agentplexus/omnivoice-intake"
	"github.com/agentplexus/omnivoice-intake/faq"
	"github.com/agentplexus/omnivoice-intake/flow"
	"github.com/agentplexus/omnivoice-intake/internal/client"
	"github.com/agentplexus/omnivoice-intake/internal/clock"
	"github.com/agentplexus/omnivoice-intake/internal/logger"
	"github.com/agentplexus/omnivoice-intake/internal/metrics"
	"github.com/agentplexus/omnivoice-intake/store"
	"github.com/agentplexus/omnivoice-intake/stt"
	"github.com/agentplexus/omnivoice-intake/ticket"
)

// Verify interface compliance at compile time.
var (
	_ ActionSender    = (*client.Client)(nil)
	_ ContextFetcher  = (*faq.Client)(nil)
	_ TicketSubmitter = (*ticket.Client)(nil)
	_ Transcriber     = (*stt.Provider)(nil)
)

var (
	// ErrMissingCallID is returned for events and media connections that
	// do not identify their call.
	ErrMissingCallID = errors.New("call id missing")
	// ErrNoTranscriber is returned by Serve when no transcription engine is
	// configured.
	ErrNoTranscriber = errors.New("transcription engine not configured")
	// ErrDuplicateSession is returned by Serve when the call already has a
	// media session.
	ErrDuplicateSession = errors.New("media session already exists for call")
	// ErrCallEnded is returned for events and media connections that
	// arrive after their call was torn down.
	ErrCallEnded = errors.New("call already ended")
)

// stopWait bounds how long Teardown waits for a call actor's in-flight
// task to return.
const stopWait = 5 * time.Second

// RepromptText is spoken when the caller stays silent after answer.
const RepromptText = "How can I help you today?"

// ActionSender issues call control actions.
type ActionSender interface {
	SendAction(ctx context.Context, callID, action string, body any) (*client.ActionResult, error)
}

// Speaker speaks text on a call.
type Speaker interface {
	Say(ctx context.Context, callID, text string) error
}

// ContextFetcher loads the dashboard context of the called number.
type ContextFetcher interface {
	Fetch(ctx context.Context, toNumber string) (*faq.Context, error)
}

// TicketSubmitter hands a finished intake to ticket ingestion.
type TicketSubmitter interface {
	Submit(ctx context.Context, t *ticket.Ticket) error
}

// Transcriber opens live transcription streams.
type Transcriber interface {
	Open(ctx context.Context) (stt.Stream, error)
}

// MediaConn is an accepted media stream connection.
type MediaConn interface {
	CallID() string
	Run(onAudio func(audio []byte)) error
	Close() error
}

// Config holds engine behavior settings.
type Config struct {
	// Mode is intake.ModeIntake or intake.ModeFAQ.
	Mode string
	// ReplyTimeout is the silence after answer before the reprompt.
	ReplyTimeout time.Duration
	// Timing configures the intake transcript finalizer.
	Timing flow.Timing
	// Script is the intake questionnaire. Nil uses the embedded one.
	Script *flow.Script
	// StreamURL is the public base URL of the media stream endpoint. The
	// call id is appended as a path segment.
	StreamURL string
	// ActionTimeout bounds each outbound call control action.
	ActionTimeout time.Duration
	// FetchTimeout bounds the dashboard context fetch.
	FetchTimeout time.Duration
	// TicketTimeout bounds ticket submission.
	TicketTimeout time.Duration
	// EndedRetention is how long a torn down call id is remembered so
	// late lifecycle events for it are ignored.
	EndedRetention time.Duration
}

// DefaultConfig returns the production engine settings.
func DefaultConfig() Config {
	return Config{
		Mode:           intake.ModeIntake,
		ReplyTimeout:   9000 * time.Millisecond,
		Timing:         flow.DefaultTiming(),
		ActionTimeout:  10 * time.Second,
		FetchTimeout:   5 * time.Second,
		TicketTimeout:  15 * time.Second,
		EndedRetention: 10 * time.Minute,
	}
}

func (c *Config) applyDefaults() {
	d := DefaultConfig()
	if c.Mode == "" {
		c.Mode = d.Mode
	}
	if c.ReplyTimeout <= 0 {
		c.ReplyTimeout = d.ReplyTimeout
	}
	if c.Timing.FinalizeSilence <= 0 {
		c.Timing.FinalizeSilence = d.Timing.FinalizeSilence
	}
	if c.Timing.MaxListen <= 0 {
		c.Timing.MaxListen = d.Timing.MaxListen
	}
	if c.Timing.DuplicateWindow <= 0 {
		c.Timing.DuplicateWindow = d.Timing.DuplicateWindow
	}
	if c.ActionTimeout <= 0 {
		c.ActionTimeout = d.ActionTimeout
	}
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = d.FetchTimeout
	}
	if c.TicketTimeout <= 0 {
		c.TicketTimeout = d.TicketTimeout
	}
	if c.EndedRetention <= 0 {
		c.EndedRetention = d.EndedRetention
	}
}

// Option configures the Engine's collaborators. Every collaborator is
// optional: a missing one is logged and its work skipped.
type Option func(*options)

type options struct {
	actions     ActionSender
	speaker     Speaker
	fetcher     ContextFetcher
	tickets     TicketSubmitter
	transcriber Transcriber
	cache       store.ContextCache
	clock       clock.Clock
}

// WithActions sets the call control client.
func WithActions(a ActionSender) Option {
	return func(o *options) {
		o.actions = a
	}
}

// WithSpeaker sets the speech output.
func WithSpeaker(s Speaker) Option {
	return func(o *options) {
		o.speaker = s
	}
}

// WithContextFetcher sets the dashboard client.
func WithContextFetcher(f ContextFetcher) Option {
	return func(o *options) {
		o.fetcher = f
	}
}

// WithTicketSubmitter sets the ticket ingestion client.
func WithTicketSubmitter(t TicketSubmitter) Option {
	return func(o *options) {
		o.tickets = t
	}
}

// WithTranscriber sets the transcription engine.
func WithTranscriber(t Transcriber) Option {
	return func(o *options) {
		o.transcriber = t
	}
}

// WithContextCache sets the cache holding dashboard context between answer
// and media connect. Defaults to an in-memory cache.
func WithContextCache(c store.ContextCache) Option {
	return func(o *options) {
		o.cache = c
	}
}

// WithClock sets the clock driving all call timers.
func WithClock(c clock.Clock) Option {
	return func(o *options) {
		o.clock = c
	}
}

// Engine is the call session engine.
type Engine struct {
	cfg Config

	actions     ActionSender
	speaker     Speaker
	fetcher     ContextFetcher
	tickets     TicketSubmitter
	transcriber Transcriber
	cache       store.ContextCache
	clock       clock.Clock

	calls    *store.Registry[*Call]
	sessions *store.Registry[*Session]
	// ended maps torn down call ids to their teardown time.
	ended     *store.Registry[time.Time]
	sweepMu   sync.Mutex
	lastSweep time.Time

	// base outlives individual calls so ticket submission survives hangup.
	base   context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates an engine.
func New(cfg Config, opts ...Option) *Engine {
	cfg.applyDefaults()
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if o.cache == nil {
		o.cache = store.NewMemoryContextCache()
	}
	if o.clock == nil {
		o.clock = clock.Real()
	}

	base, cancel := context.WithCancel(context.Background())
	return &Engine{
		cfg:         cfg,
		actions:     o.actions,
		speaker:     o.speaker,
		fetcher:     o.fetcher,
		tickets:     o.tickets,
		transcriber: o.transcriber,
		cache:       o.cache,
		clock:       o.clock,
		calls:       store.NewRegistry[*Call](),
		sessions:    store.NewRegistry[*Session](),
		ended:       store.NewRegistry[time.Time](),
		base:        base,
		cancel:      cancel,
	}
}

// Config returns the effective configuration.
func (e *Engine) Config() Config {
	return e.cfg
}

// ActiveCalls returns the number of calls with a live actor.
func (e *Engine) ActiveCalls() int {
	return e.calls.Len()
}

// ActiveSessions returns the number of connected media sessions.
func (e *Engine) ActiveSessions() int {
	return e.sessions.Len()
}

// call returns the actor for callID, creating it when absent. It reports
// false when the call was already torn down.
func (e *Engine) call(callID, to, from string) (*Call, bool) {
	if c, ok := e.calls.Get(callID); ok {
		c.setNumbers(to, from)
		return c, true
	}
	if e.hasEnded(callID) {
		return nil, false
	}
	c := newCall(e, callID, to, from)
	cur, stored := e.calls.PutIfAbsent(callID, c)
	if !stored {
		c.cancel()
		cur.setNumbers(to, from)
		return cur, true
	}
	metrics.CallStarted()
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		c.run()
	}()

	// Teardown marks the call ended before it looks for the actor, so an
	// actor inserted after that lookup is caught here.
	if e.hasEnded(callID) {
		e.Teardown(callID, "late_event")
		return nil, false
	}
	return c, true
}

// markEnded remembers callID as torn down and sweeps records older than
// EndedRetention.
func (e *Engine) markEnded(callID string) {
	now := e.clock.Now()
	e.ended.Put(callID, now)

	e.sweepMu.Lock()
	defer e.sweepMu.Unlock()
	if now.Sub(e.lastSweep) < e.cfg.EndedRetention/2 {
		return
	}
	e.lastSweep = now
	cutoff := now.Add(-e.cfg.EndedRetention)
	e.ended.DeleteFunc(func(_ string, at time.Time) bool {
		return at.Before(cutoff)
	})
}

func (e *Engine) hasEnded(callID string) bool {
	at, ok := e.ended.Get(callID)
	return ok && e.clock.Now().Sub(at) < e.cfg.EndedRetention
}

// Teardown ends everything held for callID: the media session and its
// transcription stream, the call actor with its flow and timers, and the
// cached context. It is idempotent and reports whether anything was
// released. Lifecycle events for callID are ignored afterwards.
// Teardown must not be called from a call actor task.
func (e *Engine) Teardown(callID, reason string) bool {
	e.markEnded(callID)
	released := false

	if s, ok := e.sessions.Delete(callID); ok {
		s.close()
		metrics.SessionClosed()
		released = true
	}

	if c, ok := e.calls.Delete(callID); ok {
		c.stop()
		metrics.CallEnded(reason)
		released = true

		// The actor drops the cached context after its last task.
		t := time.NewTimer(stopWait)
		select {
		case <-c.Done():
		case <-t.C:
			logger.ForCall(callID).Warn("call actor still busy after teardown")
		}
		t.Stop()
	} else {
		e.forgetContext(callID)
	}

	if released {
		logger.ForCall(callID).Info("call torn down", "reason", reason)
	}
	return released
}

// Close tears down every call and waits for call actors and in-flight
// ticket submissions until ctx is done.
func (e *Engine) Close(ctx context.Context) error {
	for _, id := range e.sessions.Keys() {
		e.Teardown(id, "shutdown")
	}
	for _, id := range e.calls.Keys() {
		e.Teardown(id, "shutdown")
	}

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		e.cancel()
		return nil
	case <-ctx.Done():
		e.cancel()
		return fmt.Errorf("engine shutdown: %w", ctx.Err())
	}
}

func (e *Engine) forgetContext(callID string) {
	ctx, cancel := context.WithTimeout(e.base, time.Second)
	defer cancel()
	if err := e.cache.Delete(ctx, callID); err != nil {
		logger.ForCall(callID).Warn("failed to delete cached context", "error", err)
	}
}

// lookupContext returns the dashboard context for the call: the session's
// copy, then the cache, then the fallback.
func (e *Engine) lookupContext(ctx context.Context, callID string) *faq.Context {
	if s, ok := e.sessions.Get(callID); ok {
		if c := s.faqContext(); c != nil {
			return c
		}
	}
	c, err := e.cache.Get(ctx, callID)
	if err == nil && c != nil {
		return c
	}
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		logger.ForCall(callID).Warn("failed to read cached context", "error", err)
	}
	return faq.Fallback()
}

func (e *Engine) submitTicket(t *ticket.Ticket) {
	log := logger.ForCall(t.CallID).With("ticket_id", t.ID)
	if e.tickets == nil {
		log.Warn("ticket ingestion not configured, ticket dropped")
		metrics.RecordTicket(metrics.StatusSkipped, t.IsEmergency)
		return
	}

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		ctx, cancel := context.WithTimeout(e.base, e.cfg.TicketTimeout)
		defer cancel()

		if err := e.tickets.Submit(ctx, t); err != nil {
			if errors.Is(err, ticket.ErrNotConfigured) {
				log.Warn("ticket ingestion not configured, ticket dropped")
				metrics.RecordTicket(metrics.StatusSkipped, t.IsEmergency)
				return
			}
			log.Error("ticket submission failed", "error", err)
			metrics.RecordTicket(metrics.StatusError, t.IsEmergency)
			return
		}
		log.Info("ticket submitted", "emergency", t.IsEmergency)
		metrics.RecordTicket(metrics.StatusSuccess, t.IsEmergency)
	}()
}
