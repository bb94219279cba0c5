package ticket

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr(b bool) *bool { return &b }

func TestSummary(t *testing.T) {
	tk := &Ticket{
		UnitNumber:        "204",
		IssueDescription:  "water leak under the sink",
		IsEmergency:       true,
		PermissionToEnter: ptr(true),
	}
	want := "Unit: 204\n" +
		"Issue: water leak under the sink\n" +
		"Emergency: yes\n" +
		"Permission to enter: yes\n" +
		"Pets present: unknown"
	assert.Equal(t, want, Summary(tk))
}

func TestTicket_NullTriState(t *testing.T) {
	data, err := json.Marshal(&Ticket{CallID: "c1", PetsPresent: ptr(false)})
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Contains(t, raw, "permission_to_enter")
	assert.Nil(t, raw["permission_to_enter"])
	assert.Equal(t, false, raw["pets_present"])
	assert.Equal(t, false, raw["is_emergency"])
}

func TestClient_Submit(t *testing.T) {
	var got Ticket
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.Equal(t, "t-1", r.Header.Get("Idempotency-Key"))
		body, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(body, &got))
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	c := NewClient(&ClientConfig{URL: srv.URL, Token: "tok"})
	err := c.Submit(context.Background(), &Ticket{ID: "t-1", CallID: "call-1", UnitNumber: "204"})
	require.NoError(t, err)
	assert.Equal(t, "204", got.UnitNumber)
}

func TestClient_SubmitError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	err := NewClient(&ClientConfig{URL: srv.URL}).Submit(context.Background(), &Ticket{})
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusUnprocessableEntity, se.StatusCode)
}

func TestClient_NotConfigured(t *testing.T) {
	t.Setenv("TICKET_URL", "")
	err := NewClient(nil).Submit(context.Background(), &Ticket{})
	assert.ErrorIs(t, err, ErrNotConfigured)
}
