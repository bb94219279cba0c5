// Package tts speaks text on a live call through the telephony provider's
// speak action.
//
// Synthesis happens on the provider side, so the Provider only builds the
// speak payload for the configured voice and hands it to a Sender.
package tts

import (
	"context"
	"errors"
	"strings"

	"github.com/agentplexus/omnivoice-intake/internal/client"
)

// Verify interface compliance at compile time.
var _ Sender = (*client.Client)(nil)

// ErrNotConfigured is returned by Say when no Sender is available.
var ErrNotConfigured = errors.New("speak action sender is not configured")

// ErrEmptyText is returned by Say for blank text.
var ErrEmptyText = errors.New("nothing to speak")

// Sender delivers a speak action for a call.
type Sender interface {
	Speak(ctx context.Context, callID string, params *client.SpeakParams) error
}

// Provider speaks text on calls.
type Provider struct {
	sender   Sender
	voice    string
	language string
}

// Option configures the Provider.
type Option func(*options)

type options struct {
	voice    string
	language string
}

// WithVoice sets the voice, e.g. "female", "male" or "Polly.Joanna".
func WithVoice(voice string) Option {
	return func(o *options) {
		o.voice = voice
	}
}

// WithLanguage sets the language.
func WithLanguage(language string) Option {
	return func(o *options) {
		o.language = language
	}
}

// New creates a Provider. A nil sender yields a Provider whose Say always
// returns ErrNotConfigured.
func New(sender Sender, opts ...Option) *Provider {
	cfg := &options{
		voice:    "female",
		language: "en-US",
	}
	for _, opt := range opts {
		opt(cfg)
	}

	return &Provider{
		sender:   sender,
		voice:    cfg.voice,
		language: cfg.language,
	}
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return "telnyx"
}

// Configured reports whether Say can reach the provider.
func (p *Provider) Configured() bool {
	return p.sender != nil
}

// Params builds the speak payload for text.
func (p *Provider) Params(text string) *client.SpeakParams {
	return &client.SpeakParams{
		Payload:     text,
		Voice:       p.voice,
		Language:    p.language,
		PayloadType: "text",
	}
}

// Say speaks text on the call.
func (p *Provider) Say(ctx context.Context, callID, text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyText
	}
	if p.sender == nil {
		return ErrNotConfigured
	}
	return p.sender.Speak(ctx, callID, p.Params(text))
}
