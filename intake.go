// Package intake answers inbound maintenance calls, streams caller audio to a
// speech-to-text engine and drives a per-call interaction from the recognized
// transcripts.
//
// The repository is organized as:
//   - callsystem: the call session engine (per-call actors, reply timer, audio relay)
//   - flow: the data-driven intake questionnaire and transcript finalizer
//   - faq: dashboard context fetch and FAQ matching
//   - classify: text normalization and yes/no, emergency and length classifiers
//   - transport: the telephony media stream websocket
//   - stt: the streaming transcription websocket client
//   - tts: speak action payloads
//   - ticket: ticket records and the ingestion client
//   - store: keyed registries and the dashboard context cache
//
// # Environment Variables
//
//	TELNYX_API_KEY    - Call control API key (actions are skipped when absent)
//	DEEPGRAM_API_KEY  - Transcription key (streaming is skipped when absent)
//	PUBLIC_STREAM_URL - Public wss:// base URL of the media endpoint
//	DASHBOARD_URL     - Dashboard context API base URL
//	TICKET_URL        - Ticket ingestion endpoint
//	REDIS_URL         - Optional Redis URL for the context cache
//
// # Quick Start
//
//	intake-voice serve --config intake.yaml
package intake

// Version is the service version.
const Version = "0.1.0"

// ServiceName identifies this service in logs and metrics.
const ServiceName = "omnivoice-intake"

// Call control API constants.
const (
	// DefaultAPIBaseURL is the call control REST API base URL.
	DefaultAPIBaseURL = "https://api.telnyx.com/v2"

	// DefaultTranscriptionURL is the live transcription websocket URL.
	DefaultTranscriptionURL = "wss://api.deepgram.com/v1/listen"
)

// Audio format constants for media streams.
const (
	// AudioEncodingMulaw is the μ-law encoding (8-bit, 8kHz) used on the PSTN leg.
	AudioEncodingMulaw = "mulaw"

	// DefaultSampleRate is the default telephony sample rate (8kHz).
	DefaultSampleRate = 8000
)

// Call lifecycle event types delivered by the telephony webhook.
const (
	EventCallInitiated = "call.initiated"
	EventCallAnswered  = "call.answered"
	EventCallHangup    = "call.hangup"
)

// Call control action names.
const (
	ActionAnswer         = "answer"
	ActionSpeak          = "speak"
	ActionStreamingStart = "streaming_start"
)

// Deployment modes.
const (
	// ModeIntake runs the maintenance questionnaire on every call.
	ModeIntake = "intake"

	// ModeFAQ answers free-form questions from the dashboard FAQ set.
	ModeFAQ = "faq"
)
