package callsystem

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/agentplexus/omnivoice-intake/faq"
	"github.com/agentplexus/omnivoice-intake/internal/logger"
	"github.com/agentplexus/omnivoice-intake/internal/metrics"
	"github.com/agentplexus/omnivoice-intake/store"
	"github.com/agentplexus/omnivoice-intake/stt"
)

// Session relays one call's media stream to its transcription stream.
type Session struct {
	callID string
	conn   MediaConn
	log    *slog.Logger

	mu     sync.Mutex
	stream stt.Stream
	closed bool

	terminal atomic.Bool
	finals   atomic.Int64
	context  atomic.Pointer[faq.Context]
}

func newSession(callID string, conn MediaConn) *Session {
	return &Session{
		callID: callID,
		conn:   conn,
		log:    logger.ForCall(callID).With("component", "session"),
	}
}

// CallID returns the call identifier.
func (s *Session) CallID() string {
	return s.callID
}

// Terminal reports whether the call's interaction finished.
func (s *Session) Terminal() bool {
	return s.terminal.Load()
}

// FinalTranscripts returns the number of final transcripts received.
func (s *Session) FinalTranscripts() int64 {
	return s.finals.Load()
}

func (s *Session) faqContext() *faq.Context {
	return s.context.Load()
}

func (s *Session) setFAQContext(c *faq.Context) {
	s.context.Store(c)
}

// attach binds the transcription stream. It returns false when the session
// was closed meanwhile; the stream is then closed too.
func (s *Session) attach(stream stt.Stream) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		_ = stream.Close()
		return false
	}
	s.stream = stream
	return true
}

func (s *Session) transcription() stt.Stream {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	return s.stream
}

// close shuts the transcription stream and the media socket. Safe to call
// more than once.
func (s *Session) close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	stream := s.stream
	s.mu.Unlock()

	if stream != nil {
		if err := stream.Close(); err != nil {
			s.log.Debug("transcription stream close", "error", err)
		}
	}
	if err := s.conn.Close(); err != nil {
		s.log.Debug("media socket close", "error", err)
	}
}

// Serve runs the media session for conn until the media stream ends, then
// tears the call down. It returns early with ErrMissingCallID,
// ErrNoTranscriber, ErrCallEnded or ErrDuplicateSession after closing conn.
func (e *Engine) Serve(ctx context.Context, conn MediaConn) error {
	callID := conn.CallID()
	if callID == "" {
		logger.Warn("media stream without call id rejected")
		_ = conn.Close()
		return ErrMissingCallID
	}
	log := logger.ForCall(callID).With("component", "session")

	if e.transcriber == nil {
		log.Warn("transcription not configured, media stream rejected")
		_ = conn.Close()
		return ErrNoTranscriber
	}

	if e.hasEnded(callID) {
		log.Info("media stream for ended call rejected")
		_ = conn.Close()
		return ErrCallEnded
	}

	s := newSession(callID, conn)
	if _, stored := e.sessions.PutIfAbsent(callID, s); !stored {
		if _, known := e.calls.Get(callID); known {
			log.Debug("duplicate media stream closed, existing session kept")
		} else {
			log.Warn("duplicate media stream for unknown call closed")
		}
		_ = conn.Close()
		return ErrDuplicateSession
	}
	metrics.SessionOpened()

	if cached, err := e.cache.Get(ctx, callID); err == nil && cached != nil {
		s.setFAQContext(cached)
	} else if err != nil && !errors.Is(err, store.ErrNotFound) {
		log.Warn("failed to read cached context", "error", err)
	}

	call, ok := e.call(callID, "", "")
	if !ok {
		e.Teardown(callID, "late_event")
		return ErrCallEnded
	}

	stream, err := e.transcriber.Open(ctx)
	if err != nil {
		log.Error("failed to open transcription stream", "error", err)
		e.Teardown(callID, "transcription_error")
		return fmt.Errorf("open transcription stream: %w", err)
	}
	if !s.attach(stream) || e.hasEnded(callID) {
		// Torn down while dialing; release what was created in between.
		e.Teardown(callID, "media_closed")
		return nil
	}
	log.Info("media session active")

	relayDone := make(chan struct{})
	go func() {
		defer close(relayDone)
		s.relayResults(call, stream)
	}()

	runErr := conn.Run(func(audio []byte) {
		if s.terminal.Load() {
			return
		}
		st := s.transcription()
		if st == nil {
			return
		}
		if err := st.SendAudio(audio); err != nil {
			log.Debug("audio frame dropped", "error", err)
		}
	})

	reason := "media_closed"
	if runErr != nil {
		reason = "media_error"
		log.Warn("media stream error", "error", runErr)
	}
	e.Teardown(callID, reason)
	<-relayDone
	return nil
}

// relayResults forwards final transcripts to the call actor until the
// transcription stream ends.
func (s *Session) relayResults(call *Call, stream stt.Stream) {
	for res := range stream.Results() {
		if !res.Final() {
			continue
		}
		if s.terminal.Load() {
			s.log.Debug("transcript after completion dropped")
			metrics.RecordTranscript("dropped")
			continue
		}
		n := s.finals.Add(1)
		s.log.Info("final transcript", "confidence", res.Confidence, "seq", n)

		text := res.Transcript
		call.post(func(ctx context.Context) {
			call.transcript(ctx, text)
		})
	}
}
