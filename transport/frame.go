package transport

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// Media stream event names.
const (
	EventConnected = "connected"
	EventStart     = "start"
	EventMedia     = "media"
	EventStop      = "stop"
)

// Frame is a media stream message.
type Frame struct {
	Event    string       `json:"event"`
	StreamID string       `json:"stream_id,omitempty"`
	Start    *StartFrame  `json:"start,omitempty"`
	Media    *MediaFrame  `json:"media,omitempty"`
	Stop     *StopPayload `json:"stop,omitempty"`
}

// StartFrame describes the stream when it begins.
type StartFrame struct {
	CallControlID string      `json:"call_control_id"`
	MediaFormat   MediaFormat `json:"media_format"`
}

// MediaFormat is the encoding of the streamed audio.
type MediaFormat struct {
	Encoding   string `json:"encoding"`
	SampleRate int    `json:"sample_rate"`
	Channels   int    `json:"channels"`
}

// MediaFrame carries one base64 audio chunk.
type MediaFrame struct {
	Track     string `json:"track,omitempty"`
	Chunk     string `json:"chunk,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Payload   string `json:"payload"`
}

// StopPayload is sent when the provider ends the stream.
type StopPayload struct {
	CallControlID string `json:"call_control_id,omitempty"`
}

// ParseFrame decodes a media stream message.
func ParseFrame(data []byte) (Frame, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return Frame{}, fmt.Errorf("malformed media frame: %w", err)
	}
	return f, nil
}

// Audio decodes the media payload. ok is false for non-media frames,
// outbound track frames and empty payloads.
func (f Frame) Audio() (audio []byte, ok bool, err error) {
	if f.Event != EventMedia || f.Media == nil || f.Media.Payload == "" {
		return nil, false, nil
	}
	if f.Media.Track != "" && f.Media.Track != "inbound" {
		return nil, false, nil
	}
	audio, err = base64.StdEncoding.DecodeString(f.Media.Payload)
	if err != nil {
		return nil, false, fmt.Errorf("invalid media payload: %w", err)
	}
	return audio, true, nil
}
