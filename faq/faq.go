// Package faq holds the dashboard context of a called number and matches
// caller utterances against its FAQ entries.
package faq

import (
	"strings"

	"github.com/agentplexus/omnivoice-intake/classify"
)

// MinScore is the lowest score accepted as a match.
const MinScore = 3

// Fixed utterances.
const (
	FallbackGreeting = "Thanks for calling. How can I help you today?"
	CallbackOffer    = "Would you like someone to call you back?"
)

// Entry is a single FAQ from the dashboard.
type Entry struct {
	Question string   `json:"question"`
	Keywords []string `json:"keywords,omitempty"`
	Answer   string   `json:"answer"`
}

// Context is the dashboard context fetched once when a call is answered.
type Context struct {
	Greeting string  `json:"greeting,omitempty"`
	FAQs     []Entry `json:"faqs,omitempty"`
}

// Fallback returns the context used when the dashboard is unavailable.
func Fallback() *Context {
	return &Context{Greeting: FallbackGreeting}
}

// GreetingOrDefault returns the configured greeting or the fallback one.
func (c *Context) GreetingOrDefault() string {
	if c == nil || strings.TrimSpace(c.Greeting) == "" {
		return FallbackGreeting
	}
	return c.Greeting
}

// Match is the outcome of scoring a transcript.
type Match struct {
	Entry Entry
	Index int
	Score int
}

// Score rates how well transcript matches a single entry. The transcript
// must already be normalized and tokenized.
func Score(normalized string, tokens map[string]bool, e Entry) int {
	score := 0
	q := classify.Normalize(e.Question)
	if q != "" && strings.Contains(normalized, q) {
		score += 5
	} else {
		for _, tok := range strings.Fields(q) {
			if tokens[tok] {
				score++
			}
		}
	}
	for _, kw := range e.Keywords {
		k := classify.Normalize(kw)
		if k != "" && strings.Contains(normalized, k) {
			score += 2
		}
	}
	return score
}

// Find returns the best scoring entry. Ties keep the earliest entry. ok is
// false for an empty transcript, an empty entry list or a best score below
// MinScore.
func Find(transcript string, entries []Entry) (Match, bool) {
	normalized := classify.Normalize(transcript)
	if normalized == "" || len(entries) == 0 {
		return Match{}, false
	}

	tokens := make(map[string]bool)
	for _, tok := range strings.Fields(normalized) {
		tokens[tok] = true
	}

	best := Match{Index: -1}
	for i, e := range entries {
		s := Score(normalized, tokens, e)
		if best.Index < 0 || s > best.Score {
			best = Match{Entry: e, Index: i, Score: s}
		}
	}
	if best.Score < MinScore {
		return Match{}, false
	}
	return best, true
}

// Respond returns the utterance for a recognized transcript: the matched
// answer when it is short enough to speak, otherwise the callback offer.
// matched reports whether an entry's answer was used.
func Respond(transcript string, entries []Entry) (reply string, matched bool) {
	m, ok := Find(transcript, entries)
	if ok && m.Entry.Answer != "" && classify.IsShortAnswer(m.Entry.Answer) {
		return m.Entry.Answer, true
	}
	return CallbackOffer, false
}
