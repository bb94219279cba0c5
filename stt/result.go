package stt

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrNotResult is returned by ParseResult for metadata and other non-result
// messages.
var ErrNotResult = errors.New("not a transcription result")

// Result is a single transcription result record.
type Result struct {
	Transcript  string
	Confidence  float64
	IsFinal     bool
	SpeechFinal bool
}

// Final reports whether the result is final and carries text.
func (r Result) Final() bool {
	return r.IsFinal && strings.TrimSpace(r.Transcript) != ""
}

type resultMessage struct {
	Type        string `json:"type"`
	IsFinal     bool   `json:"is_final"`
	SpeechFinal bool   `json:"speech_final"`
	Channel     *struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
		} `json:"alternatives"`
	} `json:"channel"`
}

// ParseResult decodes a result record, using the first alternative.
func ParseResult(data []byte) (Result, error) {
	var msg resultMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return Result{}, fmt.Errorf("malformed transcription message: %w", err)
	}
	if msg.Type != "" && msg.Type != "Results" {
		return Result{}, ErrNotResult
	}
	if msg.Channel == nil {
		return Result{}, ErrNotResult
	}

	res := Result{IsFinal: msg.IsFinal, SpeechFinal: msg.SpeechFinal}
	if len(msg.Channel.Alternatives) > 0 {
		alt := msg.Channel.Alternatives[0]
		res.Transcript = alt.Transcript
		res.Confidence = alt.Confidence
	}
	return res, nil
}
