package callsystem

import (
	"context"
	"strings"

	intake "github.com/agentplexus/omnivoice-intake"
	"github.com/agentplexus/omnivoice-intake/internal/client"
	"github.com/agentplexus/omnivoice-intake/internal/logger"
)

// Event is a call lifecycle event from the telephony provider.
type Event struct {
	Type   string
	CallID string
	To     string
	From   string
}

// HandleEvent dispatches a lifecycle event. Work for a call is queued on
// its actor; HandleEvent does not wait for it. Unknown event types are
// ignored. Events without a call id return ErrMissingCallID; events for a
// call that was already torn down return ErrCallEnded.
func (e *Engine) HandleEvent(_ context.Context, ev Event) error {
	callID := strings.TrimSpace(ev.CallID)
	switch ev.Type {
	case intake.EventCallInitiated, intake.EventCallAnswered, intake.EventCallHangup:
	default:
		logger.Debug("ignoring call event", "event_type", ev.Type, "call_id", callID)
		return nil
	}
	if callID == "" {
		logger.Warn("call event without call id rejected", "event_type", ev.Type)
		return ErrMissingCallID
	}

	log := logger.ForCall(callID)
	switch ev.Type {
	case intake.EventCallInitiated:
		log.Info("call initiated", "to", ev.To, "from", ev.From)
		c, ok := e.call(callID, ev.To, ev.From)
		if !ok {
			log.Info("event for ended call ignored", "event_type", ev.Type)
			return ErrCallEnded
		}
		c.post(func(ctx context.Context) {
			c.action(ctx, intake.ActionAnswer, &client.AnswerParams{})
		})

	case intake.EventCallAnswered:
		log.Info("call answered", "to", ev.To, "from", ev.From)
		c, ok := e.call(callID, ev.To, ev.From)
		if !ok {
			log.Info("event for ended call ignored", "event_type", ev.Type)
			return ErrCallEnded
		}
		c.post(c.answered)

	case intake.EventCallHangup:
		log.Info("call hangup")
		e.Teardown(callID, "hangup")
	}
	return nil
}
