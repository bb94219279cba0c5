// Package classify provides the text normalizers and the small classifiers
// used to interpret caller transcripts.
package classify

import (
	"strings"
)

// MaxShortAnswerLength is the longest answer spoken inline. Longer answers
// are replaced by a callback offer.
const MaxShortAnswerLength = 280

// EmergencyKeywords is the canonical emergency keyword list. Matching is a
// normalized substring test, not a word-boundary test.
var EmergencyKeywords = []string{
	"fire",
	"smoke",
	"gas",
	"flood",
	"leak",
	"water leak",
	"no heat",
	"sparks",
}

var (
	affirmativeTokens = map[string]bool{
		"yes": true, "yeah": true, "yep": true, "sure": true,
		"ok": true, "okay": true, "affirmative": true,
	}
	negativeTokens = map[string]bool{
		"no": true, "nope": true, "nah": true, "negative": true,
	}
)

// Answer is the tri-state result of a yes/no question.
type Answer int

const (
	Unknown Answer = iota
	Yes
	No
)

// String returns the lowercase name of the answer.
func (a Answer) String() string {
	switch a {
	case Yes:
		return "yes"
	case No:
		return "no"
	default:
		return "unknown"
	}
}

// Bool returns the answer as a nullable boolean; Unknown maps to nil.
func (a Answer) Bool() *bool {
	switch a {
	case Yes:
		v := true
		return &v
	case No:
		v := false
		return &v
	default:
		return nil
	}
}

// Normalize lowercases text, drops everything except ASCII letters, digits
// and whitespace, collapses whitespace runs and trims.
func Normalize(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range strings.ToLower(text) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == '\v' || r == '\f':
			b.WriteByte(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// NormalizeFreeText trims and collapses internal whitespace, preserving case
// and punctuation. Used for text that is read back to a person.
func NormalizeFreeText(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// ParseYesNo matches affirmative or negative tokens as whole words. An
// affirmative token anywhere in the utterance takes precedence.
func ParseYesNo(text string) Answer {
	toks := strings.Fields(Normalize(text))
	for _, tok := range toks {
		if affirmativeTokens[tok] {
			return Yes
		}
	}
	for _, tok := range toks {
		if negativeTokens[tok] {
			return No
		}
	}
	return Unknown
}

// IsShortAnswer reports whether text can be spoken inline.
func IsShortAnswer(text string) bool {
	return text != "" && len(text) <= MaxShortAnswerLength
}

// IsTooShortIssue reports whether an issue description is likely noise:
// fewer than two words or fewer than ten characters after normalization.
func IsTooShortIssue(text string) bool {
	n := Normalize(text)
	return len(strings.Fields(n)) < 2 || len(n) < 10
}

// DetectEmergency reports whether any normalized keyword occurs in the
// normalized text.
func DetectEmergency(text string, keywords []string) bool {
	n := Normalize(text)
	if n == "" {
		return false
	}
	for _, kw := range keywords {
		k := Normalize(kw)
		if k != "" && strings.Contains(n, k) {
			return true
		}
	}
	return false
}
