// Package flow implements the intake questionnaire: a strictly ordered,
// data-driven step machine with a timer-driven transcript finalizer for
// free-text answers.
//
// A Machine is not safe for concurrent use. The Host must run every timer
// callback serialized with Start and Advance, which the call session
// engine does by posting them to the call's mailbox.
package flow

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/agentplexus/omnivoice-intake/classify"
	"github.com/agentplexus/omnivoice-intake/internal/clock"
	"github.com/agentplexus/omnivoice-intake/internal/logger"
	"github.com/agentplexus/omnivoice-intake/ticket"
)

// Field names read when building the ticket.
const (
	FieldUnitNumber        = "unit_number"
	FieldIssueDescription  = "issue_description"
	FieldIsEmergency       = "is_emergency"
	FieldPermissionToEnter = "permission_to_enter"
	FieldPetsPresent       = "pets_present"
)

// Host is the per-call environment a Machine drives.
type Host interface {
	// Say speaks text on the call. Failures are handled by the host.
	Say(ctx context.Context, text string)
	// AfterFunc schedules f; f must run serialized with Advance.
	AfterFunc(d time.Duration, f func(ctx context.Context)) clock.Timer
	Now() time.Time
	// Submit hands a ticket to ingestion without waiting for the result.
	Submit(t *ticket.Ticket)
	// Complete marks the call's session terminal.
	Complete()
}

// Timing holds the transcript finalizer durations.
type Timing struct {
	// FinalizeSilence is the silence after the last chunk that ends an answer.
	FinalizeSilence time.Duration
	// MaxListen is the listening ceiling for an accumulated answer.
	MaxListen time.Duration
	// DuplicateWindow drops a chunk identical to the previous one within it.
	DuplicateWindow time.Duration
	// AnchorMaxListen anchors MaxListen to step entry instead of rearming
	// it on every accepted chunk.
	AnchorMaxListen bool
}

// DefaultTiming returns the production finalizer durations.
func DefaultTiming() Timing {
	return Timing{
		FinalizeSilence: 2000 * time.Millisecond,
		MaxListen:       20000 * time.Millisecond,
		DuplicateWindow: 800 * time.Millisecond,
	}
}

// Fields is the append-only map of captured answers.
type Fields map[string]any

// Bool returns a tri-state field; nil when absent or unknown.
func (f Fields) Bool(key string) *bool {
	v, _ := f[key].(*bool)
	return v
}

// Text returns a text field.
func (f Fields) Text(key string) string {
	v, _ := f[key].(string)
	return v
}

// State is the flow state of one call.
type State struct {
	CallID     string
	ToNumber   string
	FromNumber string
	Step       StepID
	Fields     Fields
	Retries    map[StepID]int
	Submitted  bool

	issue accumulator
}

// accumulator is the transcript-accumulation sub-state of an accumulate step.
type accumulator struct {
	buffer      string
	lastChunk   string
	lastChunkAt time.Time

	finalizeTimer  clock.Timer
	maxListenTimer clock.Timer
	finalizeGen    int
	maxListenGen   int

	listening bool
}

// Machine runs the questionnaire for one call.
type Machine struct {
	script *Script
	timing Timing
	host   Host
	log    *slog.Logger

	state State
	index int
}

// New creates a machine positioned before the first step.
func New(script *Script, timing Timing, host Host, callID, toNumber, fromNumber string) *Machine {
	if script == nil {
		script = DefaultScript()
	}
	return &Machine{
		script: script,
		timing: timing,
		host:   host,
		log:    logger.ForCall(callID).With("component", "flow"),
		state: State{
			CallID:     callID,
			ToNumber:   toNumber,
			FromNumber: fromNumber,
			Step:       StepGreeting,
			Fields:     make(Fields),
			Retries:    make(map[StepID]int),
		},
		index: -1,
	}
}

// Step returns the current step.
func (m *Machine) Step() StepID {
	return m.state.Step
}

// Done reports whether the flow reached the terminal step.
func (m *Machine) Done() bool {
	return m.state.Step == StepComplete
}

// Fields returns a copy of the captured fields.
func (m *Machine) Fields() Fields {
	out := make(Fields, len(m.state.Fields))
	for k, v := range m.state.Fields {
		out[k] = v
	}
	return out
}

// Start enters the first step and speaks its prompt.
func (m *Machine) Start(ctx context.Context) {
	if m.index >= 0 {
		return
	}
	m.log.Info("flow started", "to", m.state.ToNumber, "from", m.state.FromNumber)
	m.enter(ctx, 0)
}

// Stop cancels outstanding finalizer timers.
func (m *Machine) Stop() {
	m.stopIssueTimers()
	m.state.issue.listening = false
}

// Advance feeds one final transcript into the current step.
func (m *Machine) Advance(ctx context.Context, transcript string) {
	step, ok := m.current()
	if !ok {
		return
	}

	switch step.Input {
	case InputText:
		text := classify.NormalizeFreeText(transcript)
		if text == "" {
			return
		}
		m.capture(step.Field, text)
		m.next(ctx)

	case InputAccumulate:
		m.accumulate(transcript)

	case InputYesNo:
		answer := classify.ParseYesNo(transcript)
		if answer == classify.Unknown && m.state.Retries[step.ID] < step.MaxRetries {
			m.state.Retries[step.ID]++
			m.log.Info("unrecognized yes/no answer, re-prompting",
				"step", step.ID, "retry", m.state.Retries[step.ID])
			m.host.Say(ctx, step.Prompt)
			return
		}
		m.capture(step.Field, answer.Bool())
		m.next(ctx)
	}
}

func (m *Machine) current() (Step, bool) {
	if m.index < 0 || m.index >= len(m.script.Steps) {
		return Step{}, false
	}
	return m.script.Steps[m.index], true
}

func (m *Machine) capture(field string, value any) {
	m.state.Fields[field] = value
	m.log.Debug("field captured", "field", field)
}

func (m *Machine) enter(ctx context.Context, index int) {
	m.index = index
	step := m.script.Steps[index]
	m.state.Step = step.ID

	if step.Input == InputAccumulate {
		m.stopIssueTimers()
		prev := m.state.issue
		m.state.issue = accumulator{
			listening:    true,
			finalizeGen:  prev.finalizeGen,
			maxListenGen: prev.maxListenGen,
		}
		m.armMaxListen()
	}
	m.host.Say(ctx, step.Prompt)
}

func (m *Machine) next(ctx context.Context) {
	if m.index+1 < len(m.script.Steps) {
		m.enter(ctx, m.index+1)
		return
	}
	m.complete(ctx)
}

func (m *Machine) accumulate(transcript string) {
	is := &m.state.issue
	if !is.listening {
		return
	}

	chunk := classify.NormalizeFreeText(transcript)
	if chunk == "" {
		return
	}

	now := m.host.Now()
	if is.lastChunk != "" && chunk == is.lastChunk && now.Sub(is.lastChunkAt) <= m.timing.DuplicateWindow {
		m.log.Debug("duplicate transcript chunk dropped", "chunk", chunk)
		return
	}
	is.lastChunk = chunk
	is.lastChunkAt = now

	if is.buffer == "" {
		is.buffer = chunk
	} else {
		is.buffer += " " + chunk
	}

	m.armFinalize()
	if !m.timing.AnchorMaxListen {
		// Rearmed per chunk: a caller who keeps talking extends listening past MaxListen.
		m.armMaxListen()
	}
}

func (m *Machine) armFinalize() {
	is := &m.state.issue
	if is.finalizeTimer != nil {
		is.finalizeTimer.Stop()
	}
	is.finalizeGen++
	gen := is.finalizeGen
	is.finalizeTimer = m.host.AfterFunc(m.timing.FinalizeSilence, func(ctx context.Context) {
		if m.state.issue.finalizeGen != gen {
			return
		}
		m.finalizeIssue(ctx, "silence")
	})
}

func (m *Machine) armMaxListen() {
	is := &m.state.issue
	if is.maxListenTimer != nil {
		is.maxListenTimer.Stop()
	}
	is.maxListenGen++
	gen := is.maxListenGen
	is.maxListenTimer = m.host.AfterFunc(m.timing.MaxListen, func(ctx context.Context) {
		if m.state.issue.maxListenGen != gen {
			return
		}
		m.finalizeIssue(ctx, "max_listen")
	})
}

func (m *Machine) stopIssueTimers() {
	is := &m.state.issue
	if is.finalizeTimer != nil {
		is.finalizeTimer.Stop()
		is.finalizeTimer = nil
	}
	if is.maxListenTimer != nil {
		is.maxListenTimer.Stop()
		is.maxListenTimer = nil
	}
}

// finalizeIssue closes the accumulated answer. It runs at most once per
// step entry.
func (m *Machine) finalizeIssue(ctx context.Context, trigger string) {
	step, ok := m.current()
	if !ok || step.Input != InputAccumulate || !m.state.issue.listening {
		return
	}
	m.state.issue.listening = false
	m.stopIssueTimers()

	text := classify.NormalizeFreeText(m.state.issue.buffer)
	m.capture(step.Field, text)
	if classify.IsTooShortIssue(text) {
		m.log.Warn("issue description looks too short", "length", len(text))
	}
	m.log.Info("answer finalized", "step", step.ID, "trigger", trigger)

	if step.DetectEmergency {
		emergency := classify.DetectEmergency(text, m.script.Emergency.Keywords)
		m.capture(m.script.Emergency.Field, emergency)
		if emergency {
			m.log.Warn("emergency detected")
			m.host.Say(ctx, m.script.Emergency.Acknowledgement)
		}
	}

	m.next(ctx)
}

func (m *Machine) complete(ctx context.Context) {
	m.host.Say(ctx, m.script.Confirmation)
	m.host.Say(ctx, m.script.Goodbye)

	t := m.buildTicket()
	if !m.state.Submitted {
		m.state.Submitted = true
		m.host.Submit(t)
	}
	m.host.Complete()

	m.index = len(m.script.Steps)
	m.state.Step = StepComplete
	m.log.Info("flow complete", "ticket_id", t.ID, "emergency", t.IsEmergency)
}

func (m *Machine) buildTicket() *ticket.Ticket {
	f := m.state.Fields
	emergency, _ := f[FieldIsEmergency].(bool)
	t := &ticket.Ticket{
		ID:                uuid.NewString(),
		CallID:            m.state.CallID,
		ToNumber:          m.state.ToNumber,
		FromNumber:        m.state.FromNumber,
		UnitNumber:        f.Text(FieldUnitNumber),
		IssueDescription:  f.Text(FieldIssueDescription),
		IsEmergency:       emergency,
		PermissionToEnter: f.Bool(FieldPermissionToEnter),
		PetsPresent:       f.Bool(FieldPetsPresent),
		CreatedAt:         m.host.Now().UTC().Format(time.RFC3339),
	}
	t.Transcript = ticket.Summary(t)
	return t
}
