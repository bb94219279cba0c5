package faq

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var hours = Entry{
	Question: "what are your hours",
	Keywords: []string{"hours", "open"},
	Answer:   "We are open 9 to 5.",
}

func TestFind_HoursExample(t *testing.T) {
	m, ok := Find("what time are you open today", []Entry{hours})
	require.True(t, ok)
	assert.GreaterOrEqual(t, m.Score, MinScore)
	assert.Equal(t, hours.Answer, m.Entry.Answer)

	reply, matched := Respond("what time are you open today", []Entry{hours})
	assert.True(t, matched)
	assert.Equal(t, "We are open 9 to 5.", reply)
}

func TestFind_QuestionSubstringScoresFive(t *testing.T) {
	e := Entry{Question: "Where do I park?", Answer: "Lot B."}
	m, ok := Find("hi, where do i park tonight", []Entry{e})
	require.True(t, ok)
	assert.Equal(t, 5, m.Score)
}

func TestFind_TiesKeepFirst(t *testing.T) {
	a := Entry{Question: "pool", Keywords: []string{"swim"}, Answer: "first"}
	b := Entry{Question: "pool", Keywords: []string{"swim"}, Answer: "second"}
	m, ok := Find("can I swim in the pool", []Entry{a, b})
	require.True(t, ok)
	assert.Equal(t, 0, m.Index)
	assert.Equal(t, "first", m.Entry.Answer)
}

func TestFind_Rejects(t *testing.T) {
	_, ok := Find("", []Entry{hours})
	assert.False(t, ok)

	_, ok = Find("what are your hours", nil)
	assert.False(t, ok)

	// "what" only: one question token, below threshold
	_, ok = Find("what", []Entry{hours})
	assert.False(t, ok)
}

func TestRespond_LongAnswerOffersCallback(t *testing.T) {
	long := hours
	long.Answer = strings.Repeat("x", 281)
	reply, matched := Respond("what are your hours", []Entry{long})
	assert.False(t, matched)
	assert.Equal(t, CallbackOffer, reply)
}

func TestRespond_NoMatchOffersCallback(t *testing.T) {
	reply, matched := Respond("my toilet is broken", []Entry{hours})
	assert.False(t, matched)
	assert.Equal(t, CallbackOffer, reply)
}

func TestContext_GreetingOrDefault(t *testing.T) {
	var nilCtx *Context
	assert.Equal(t, FallbackGreeting, nilCtx.GreetingOrDefault())
	assert.Equal(t, FallbackGreeting, (&Context{Greeting: "  "}).GreetingOrDefault())
	assert.Equal(t, "Hi there", (&Context{Greeting: "Hi there"}).GreetingOrDefault())
	assert.Equal(t, FallbackGreeting, Fallback().Greeting)
}
