package faq

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_Fetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/context", r.URL.Path)
		assert.Equal(t, "+15551234567", r.URL.Query().Get("to"))
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"greeting":"Welcome to Elm Street","faqs":[{"question":"what are your hours","keywords":["open"],"answer":"9 to 5"}]}`))
	}))
	defer srv.Close()

	c := NewClient(&ClientConfig{BaseURL: srv.URL + "/", Token: "secret"})
	got, err := c.Fetch(context.Background(), "+15551234567")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Welcome to Elm Street", got.Greeting)
	require.Len(t, got.FAQs, 1)
	assert.Equal(t, []string{"open"}, got.FAQs[0].Keywords)
}

func TestClient_FetchNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	got, err := NewClient(&ClientConfig{BaseURL: srv.URL}).Fetch(context.Background(), "+1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestClient_FetchError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("upstream down"))
	}))
	defer srv.Close()

	_, err := NewClient(&ClientConfig{BaseURL: srv.URL}).Fetch(context.Background(), "+1")
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusBadGateway, se.StatusCode)
	assert.Equal(t, "upstream down", se.Body)
}

func TestClient_NotConfigured(t *testing.T) {
	t.Setenv("DASHBOARD_URL", "")
	_, err := NewClient(nil).Fetch(context.Background(), "+1")
	assert.ErrorIs(t, err, ErrNotConfigured)
}
