package transport

import (
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrame_Audio(t *testing.T) {
	payload := base64.StdEncoding.EncodeToString([]byte{0x01, 0x02, 0x03})

	f, err := ParseFrame([]byte(`{"event":"media","media":{"track":"inbound","payload":"` + payload + `"}}`))
	require.NoError(t, err)
	audio, ok, err := f.Audio()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte{0x01, 0x02, 0x03}, audio)

	f, _ = ParseFrame([]byte(`{"event":"media","media":{"payload":""}}`))
	_, ok, err = f.Audio()
	assert.NoError(t, err)
	assert.False(t, ok)

	f, _ = ParseFrame([]byte(`{"event":"media","media":{"track":"outbound","payload":"` + payload + `"}}`))
	_, ok, _ = f.Audio()
	assert.False(t, ok)

	f, _ = ParseFrame([]byte(`{"event":"media","media":{"payload":"***"}}`))
	_, ok, err = f.Audio()
	assert.Error(t, err)
	assert.False(t, ok)

	f, _ = ParseFrame([]byte(`{"event":"start","stream_id":"s1"}`))
	_, ok, _ = f.Audio()
	assert.False(t, ok)

	_, err = ParseFrame([]byte(`{`))
	assert.Error(t, err)
}

func TestCallIDFromRequest(t *testing.T) {
	mux := http.NewServeMux()
	var got string
	mux.HandleFunc("/media/{callID}", func(w http.ResponseWriter, r *http.Request) {
		got = CallIDFromRequest(r)
	})
	mux.HandleFunc("/media", func(w http.ResponseWriter, r *http.Request) {
		got = CallIDFromRequest(r)
	})

	mux.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/media/v3:abc", nil))
	assert.Equal(t, "v3:abc", got)

	mux.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/media?call_id=c2", nil))
	assert.Equal(t, "c2", got)

	mux.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/media", nil))
	assert.Equal(t, "", got)
}

func TestConnection_Run(t *testing.T) {
	p := New()
	assert.Equal(t, "telnyx-media-streams", p.Name())

	type outcome struct {
		callID   string
		streamID string
		audio    [][]byte
		err      error
	}
	done := make(chan outcome, 1)

	mux := http.NewServeMux()
	mux.HandleFunc("/media/{callID}", func(w http.ResponseWriter, r *http.Request) {
		conn, err := p.Accept(w, r)
		if err != nil {
			done <- outcome{err: err}
			return
		}
		defer conn.Close()
		var got [][]byte
		err = conn.Run(func(audio []byte) { got = append(got, audio) })
		done <- outcome{callID: conn.CallID(), streamID: conn.StreamID(), audio: got, err: err}
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/media/call-9"
	client, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer client.Close()

	frames := []string{
		`{"event":"connected"}`,
		`{"event":"start","stream_id":"st-1","start":{"call_control_id":"call-9","media_format":{"encoding":"PCMU","sample_rate":8000,"channels":1}}}`,
		`{"event":"media","media":{"track":"inbound","payload":"` + base64.StdEncoding.EncodeToString([]byte("abc")) + `"}}`,
		`not json`,
		`{"event":"media","media":{"payload":""}}`,
		`{"event":"media","media":{"payload":"` + base64.StdEncoding.EncodeToString([]byte("de")) + `"}}`,
		`{"event":"stop"}`,
	}
	for _, f := range frames {
		require.NoError(t, client.WriteMessage(websocket.TextMessage, []byte(f)))
	}

	select {
	case out := <-done:
		require.NoError(t, out.err)
		assert.Equal(t, "call-9", out.callID)
		assert.Equal(t, "st-1", out.streamID)
		assert.Equal(t, [][]byte{[]byte("abc"), []byte("de")}, out.audio)
	case <-time.After(5 * time.Second):
		t.Fatal("media stream did not finish")
	}
}

func TestConnection_RunNormalClose(t *testing.T) {
	p := New()
	done := make(chan error, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := p.Accept(w, r)
		if err != nil {
			done <- err
			return
		}
		defer conn.Close()
		done <- conn.Run(func([]byte) {})
	}))
	defer srv.Close()

	client, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/?call_id=x", nil)
	require.NoError(t, err)
	require.NoError(t, client.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
	_ = client.Close()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("run did not return")
	}
}
