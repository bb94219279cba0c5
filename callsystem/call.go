package callsystem

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	intake "github.com/agentplexus/omnivoice-intake"
	"github.com/agentplexus/omnivoice-intake/faq"
	"github.com/agentplexus/omnivoice-intake/flow"
	"github.com/agentplexus/omnivoice-intake/internal/client"
	"github.com/agentplexus/omnivoice-intake/internal/clock"
	"github.com/agentplexus/omnivoice-intake/internal/logger"
	"github.com/agentplexus/omnivoice-intake/internal/metrics"
	"github.com/agentplexus/omnivoice-intake/ticket"
	"github.com/agentplexus/omnivoice-intake/tts"
)

// task is a unit of work run on a call's actor goroutine.
type task func(ctx context.Context)

// Call is the actor owning one call's state. Webhook events, final
// transcripts and timer firings are posted to its mailbox and run one at a
// time in arrival order, so the flow and the reply timer need no locking.
type Call struct {
	id     string
	engine *Engine
	log    *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	queue    []task
	closed   bool
	to, from string
	wake     chan struct{}
	done     chan struct{}
	ended    atomic.Bool

	// Owned by the actor goroutine.
	flow        *flow.Machine
	reply       *replyTimer
	wasAnswered bool
}

type replyTimer struct {
	timer clock.Timer
}

func newCall(e *Engine, callID, to, from string) *Call {
	ctx, cancel := context.WithCancel(e.base)
	return &Call{
		id:     callID,
		engine: e,
		log:    logger.ForCall(callID).With("component", "callsystem"),
		ctx:    ctx,
		cancel: cancel,
		to:     to,
		from:   from,
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

// ID returns the call identifier.
func (c *Call) ID() string {
	return c.id
}

// Done is closed once the actor stopped and released its timers.
func (c *Call) Done() <-chan struct{} {
	return c.done
}

func (c *Call) setNumbers(to, from string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if to != "" {
		c.to = to
	}
	if from != "" {
		c.from = from
	}
}

func (c *Call) numbers() (to, from string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.to, c.from
}

// post enqueues t. It returns false once the call has ended.
func (c *Call) post(t task) bool {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return false
	}
	c.queue = append(c.queue, t)
	c.mu.Unlock()

	select {
	case c.wake <- struct{}{}:
	default:
	}
	return true
}

func (c *Call) next() (task, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.queue) == 0 {
		return nil, c.closed
	}
	t := c.queue[0]
	c.queue[0] = nil
	c.queue = c.queue[1:]
	return t, false
}

// run drains the mailbox until the call is stopped.
func (c *Call) run() {
	defer c.cleanup()
	for {
		t, closed := c.next()
		if closed {
			return
		}
		if t == nil {
			<-c.wake
			continue
		}
		if c.ended.Load() {
			continue
		}
		t(c.ctx)
	}
}

// stop ends the call. Queued tasks are discarded.
func (c *Call) stop() {
	c.ended.Store(true)
	c.cancel()

	c.mu.Lock()
	c.closed = true
	c.queue = nil
	c.mu.Unlock()

	select {
	case c.wake <- struct{}{}:
	default:
	}
}

func (c *Call) cleanup() {
	c.cancelReply("call_ended")
	if c.flow != nil {
		c.flow.Stop()
	}
	c.engine.forgetContext(c.id)
	close(c.done)
}

// answered runs the call-answered sequence: context fetch, reply timer,
// streaming request and the greeting or intake flow.
func (c *Call) answered(ctx context.Context) {
	if c.wasAnswered {
		c.log.Debug("duplicate answered event ignored")
		return
	}
	c.wasAnswered = true
	e := c.engine
	to, from := c.numbers()

	fctx := c.fetchContext(ctx, to)
	if ctx.Err() != nil {
		c.log.Debug("call ended during context fetch")
		return
	}
	if s, ok := e.sessions.Get(c.id); ok {
		s.setFAQContext(fctx)
	} else {
		cctx, cancel := context.WithTimeout(ctx, time.Second)
		if err := e.cache.Put(cctx, c.id, fctx); err != nil {
			c.log.Warn("failed to cache context", "error", err)
		}
		cancel()
	}

	c.scheduleReply()
	c.startStreaming(ctx)

	c.say(ctx, fctx.GreetingOrDefault())
	if e.cfg.Mode != intake.ModeIntake {
		return
	}
	if c.flow == nil {
		c.flow = flow.New(e.cfg.Script, e.cfg.Timing, &callHost{call: c}, c.id, to, from)
	}
	c.cancelReply("flow_started")
	c.flow.Start(ctx)
}

func (c *Call) fetchContext(ctx context.Context, to string) *faq.Context {
	e := c.engine
	if e.fetcher == nil {
		c.log.Debug("dashboard not configured, using fallback context")
		return faq.Fallback()
	}
	fctx, cancel := context.WithTimeout(ctx, e.cfg.FetchTimeout)
	defer cancel()

	got, err := e.fetcher.Fetch(fctx, to)
	switch {
	case errors.Is(err, faq.ErrNotConfigured):
		c.log.Debug("dashboard not configured, using fallback context")
		return faq.Fallback()
	case err != nil:
		c.log.Warn("dashboard context fetch failed, using fallback", "to", to, "error", err)
		return faq.Fallback()
	case got == nil:
		c.log.Info("no dashboard context for number, using fallback", "to", to)
		return faq.Fallback()
	}
	c.log.Debug("dashboard context loaded", "faqs", len(got.FAQs))
	return got
}

func (c *Call) startStreaming(ctx context.Context) {
	e := c.engine
	if e.transcriber == nil {
		c.log.Warn("transcription not configured, media streaming not requested")
		return
	}
	if e.cfg.StreamURL == "" {
		c.log.Warn("public stream url not configured, media streaming not requested")
		return
	}
	c.action(ctx, intake.ActionStreamingStart, &client.StreamingStartParams{
		StreamURL:   StreamURL(e.cfg.StreamURL, c.id),
		StreamTrack: "inbound_track",
	})
}

// StreamURL returns the media stream URL for callID under base.
func StreamURL(base, callID string) string {
	return strings.TrimRight(base, "/") + "/" + url.PathEscape(callID)
}

// transcript routes one final transcript.
func (c *Call) transcript(ctx context.Context, text string) {
	c.cancelReply("transcript")

	if c.flow != nil {
		if c.flow.Done() {
			metrics.RecordTranscript("dropped")
			return
		}
		metrics.RecordTranscript("flow")
		c.flow.Advance(ctx, text)
		return
	}

	metrics.RecordTranscript("faq")
	fctx := c.engine.lookupContext(ctx, c.id)
	reply, matched := faq.Respond(text, fctx.FAQs)
	if matched {
		metrics.RecordFAQOutcome("answer")
	} else {
		metrics.RecordFAQOutcome("callback")
	}
	c.log.Info("faq reply", "matched", matched)
	c.say(ctx, reply)
}

// scheduleReply arms the reprompt timer unless one is pending.
func (c *Call) scheduleReply() {
	if c.reply != nil {
		return
	}
	h := &replyTimer{}
	h.timer = c.engine.clock.AfterFunc(c.engine.cfg.ReplyTimeout, func() {
		c.post(func(ctx context.Context) {
			if c.reply != h {
				return
			}
			c.reply = nil
			metrics.RecordReprompt()
			c.log.Info("no reply from caller, reprompting")
			c.say(ctx, RepromptText)
		})
	})
	c.reply = h
}

// cancelReply stops a pending reprompt timer. No-op when none is pending.
func (c *Call) cancelReply(reason string) {
	if c.reply == nil {
		return
	}
	c.reply.timer.Stop()
	c.reply = nil
	c.log.Debug("reply timer canceled", "reason", reason)
}

func (c *Call) say(ctx context.Context, text string) {
	e := c.engine
	if e.speaker == nil {
		c.log.Warn("speech not configured, utterance skipped", "text", text)
		metrics.RecordAction(intake.ActionSpeak, metrics.StatusSkipped)
		return
	}
	actx, cancel := context.WithTimeout(ctx, e.cfg.ActionTimeout)
	defer cancel()

	err := e.speaker.Say(actx, c.id, text)
	switch {
	case errors.Is(err, tts.ErrNotConfigured):
		c.log.Warn("speech not configured, utterance skipped", "text", text)
		metrics.RecordAction(intake.ActionSpeak, metrics.StatusSkipped)
	case err != nil:
		c.log.Error("call control action failed", "action", intake.ActionSpeak, "error", err)
		metrics.RecordAction(intake.ActionSpeak, metrics.StatusError)
	default:
		metrics.RecordAction(intake.ActionSpeak, metrics.StatusSuccess)
	}
}

func (c *Call) action(ctx context.Context, name string, body any) {
	e := c.engine
	if e.actions == nil {
		c.log.Warn("call control not configured, action skipped", "action", name)
		metrics.RecordAction(name, metrics.StatusSkipped)
		return
	}
	actx, cancel := context.WithTimeout(ctx, e.cfg.ActionTimeout)
	defer cancel()

	if _, err := e.actions.SendAction(actx, c.id, name, body); err != nil {
		c.log.Error("call control action failed", "action", name, "error", err)
		metrics.RecordAction(name, metrics.StatusError)
		return
	}
	metrics.RecordAction(name, metrics.StatusSuccess)
}

// callHost adapts a Call to flow.Host.
type callHost struct {
	call *Call
}

func (h *callHost) Say(ctx context.Context, text string) {
	h.call.say(ctx, text)
}

func (h *callHost) AfterFunc(d time.Duration, f func(ctx context.Context)) clock.Timer {
	return h.call.engine.clock.AfterFunc(d, func() {
		h.call.post(f)
	})
}

func (h *callHost) Now() time.Time {
	return h.call.engine.clock.Now()
}

func (h *callHost) Submit(t *ticket.Ticket) {
	h.call.engine.submitTicket(t)
}

func (h *callHost) Complete() {
	if s, ok := h.call.engine.sessions.Get(h.call.id); ok {
		s.terminal.Store(true)
	}
	h.call.log.Info("intake complete, session terminal")
}
