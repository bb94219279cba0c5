package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_RequiresAPIKey(t *testing.T) {
	t.Setenv("TELNYX_API_KEY", "")
	_, err := New(nil)
	assert.ErrorIs(t, err, ErrMissingAPIKey)

	t.Setenv("TELNYX_API_KEY", "from-env")
	c, err := New(nil)
	require.NoError(t, err)
	assert.Equal(t, "https://api.telnyx.com/v2", c.BaseURL())
}

func TestSendAction(t *testing.T) {
	var gotPath, gotAuth string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotBody = nil
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":{"result":"ok"}}`))
	}))
	defer srv.Close()

	c, err := New(&Config{APIKey: "key", BaseURL: srv.URL + "/", RateLimit: -1})
	require.NoError(t, err)

	err = c.Speak(context.Background(), "v3:abc", &SpeakParams{Payload: "Hello", Voice: "female", Language: "en-US"})
	require.NoError(t, err)
	assert.Equal(t, "/calls/v3:abc/actions/speak", gotPath)
	assert.Equal(t, "Bearer key", gotAuth)
	assert.Equal(t, "Hello", gotBody["payload"])
	assert.Equal(t, "female", gotBody["voice"])

	res, err := c.SendAction(context.Background(), "c1", "answer", nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", res.Result)
	assert.Empty(t, gotBody)
}

func TestSendAction_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"errors":[{"code":"90018","title":"Call has already ended","detail":"This call is no longer active."}]}`))
	}))
	defer srv.Close()

	c, err := New(&Config{APIKey: "key", BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = c.SendAction(context.Background(), "c1", "answer", &AnswerParams{})
	require.Error(t, err)
	var apiErr *Error
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnprocessableEntity, apiErr.Status)
	assert.Equal(t, "90018", apiErr.Errors[0].Code)
	assert.Contains(t, err.Error(), "no longer active")
}

func TestSendAction_NonJSONError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	defer srv.Close()

	c, err := New(&Config{APIKey: "key", BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = c.SendAction(context.Background(), "c1", "answer", nil)
	var apiErr *Error
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "bad gateway", apiErr.Body)
}

func TestSendAction_RequiresCallID(t *testing.T) {
	c, err := New(&Config{APIKey: "key"})
	require.NoError(t, err)
	_, err = c.SendAction(context.Background(), "", "speak", nil)
	assert.Error(t, err)
}
