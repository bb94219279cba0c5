package classify

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"lowercases", "Hello World", "hello world"},
		{"strips punctuation", "It's   leaking!!", "its leaking"},
		{"collapses whitespace", "  a \t b\n\nc  ", "a b c"},
		{"drops non ascii", "café 204", "caf 204"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.in))
		})
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	inputs := []string{
		"", "   ", "Yes, please!", "Water is LEAKING under the sink...",
		"unit #204-B", "ÀÉÎ mixed 123 \t tabs", "no\nheat",
	}
	for _, in := range inputs {
		once := Normalize(in)
		assert.Equal(t, once, Normalize(once), "input %q", in)
	}
}

func TestNormalizeFreeText(t *testing.T) {
	assert.Equal(t, "Water is leaking, badly!", NormalizeFreeText("  Water  is\tleaking,\n badly! "))
	assert.Equal(t, "", NormalizeFreeText(" \n "))
}

func TestParseYesNo(t *testing.T) {
	tests := []struct {
		in   string
		want Answer
	}{
		{"Yes please", Yes},
		{"yeah sure", Yes},
		{"OK.", Yes},
		{"nope", No},
		{"No, thank you", No},
		{"nah", No},
		{"maybe", Unknown},
		{"", Unknown},
		{"yesterday", Unknown},
		{"nobody", Unknown},
		{"no, yes", Yes},
		{"nope, okay then", Yes},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseYesNo(tt.in), "input %q", tt.in)
	}
}

func TestAnswer_Bool(t *testing.T) {
	require.NotNil(t, Yes.Bool())
	assert.True(t, *Yes.Bool())
	require.NotNil(t, No.Bool())
	assert.False(t, *No.Bool())
	assert.Nil(t, Unknown.Bool())
	assert.Equal(t, "unknown", Unknown.String())
}

func TestIsShortAnswer(t *testing.T) {
	assert.False(t, IsShortAnswer(""))
	assert.True(t, IsShortAnswer("We are open 9 to 5."))
	assert.True(t, IsShortAnswer(strings.Repeat("a", MaxShortAnswerLength)))
	assert.False(t, IsShortAnswer(strings.Repeat("a", MaxShortAnswerLength+1)))
}

func TestIsTooShortIssue(t *testing.T) {
	assert.True(t, IsTooShortIssue(""))
	assert.True(t, IsTooShortIssue("leak"))
	assert.True(t, IsTooShortIssue("a b"))
	assert.False(t, IsTooShortIssue("water is leaking"))
}

func TestDetectEmergency(t *testing.T) {
	assert.True(t, DetectEmergency("there's a gas smell", EmergencyKeywords))
	assert.False(t, DetectEmergency("my sink is slow", EmergencyKeywords))
	assert.True(t, DetectEmergency("Water leak under the sink", EmergencyKeywords))
	assert.True(t, DetectEmergency("there is NO HEAT!", EmergencyKeywords))
	// substring, not word boundary
	assert.True(t, DetectEmergency("the fireplace is broken", EmergencyKeywords))
	assert.False(t, DetectEmergency("", EmergencyKeywords))
	assert.False(t, DetectEmergency("gas", nil))
}
