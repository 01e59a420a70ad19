package asr

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

type deepgramServer struct {
	t        *testing.T
	srv      *httptest.Server
	requests chan *http.Request
	received chan []byte
	script   func(conn *websocket.Conn)
}

func newDeepgramServer(t *testing.T, script func(conn *websocket.Conn)) *deepgramServer {
	t.Helper()

	ds := &deepgramServer{
		t:        t,
		requests: make(chan *http.Request, 1),
		received: make(chan []byte, 16),
		script:   script,
	}
	upgrader := websocket.Upgrader{}
	ds.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Token secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		ds.requests <- r
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		ds.script(conn)
	}))
	t.Cleanup(ds.srv.Close)
	return ds
}

func (ds *deepgramServer) url() string {
	return "ws" + strings.TrimPrefix(ds.srv.URL, "http")
}

func results(text string, isFinal, speechFinal bool) map[string]any {
	return map[string]any{
		"type": "Results",
		"channel": map[string]any{
			"alternatives": []map[string]any{{"transcript": text}},
		},
		"is_final":     isFinal,
		"speech_final": speechFinal,
	}
}

func closeNormally(conn *websocket.Conn) {
	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

// waitForCloseStream consumes audio frames until the client asks to close.
func waitForCloseStream(conn *websocket.Conn, received chan<- []byte) {
	for {
		kind, payload, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if kind == websocket.TextMessage && strings.Contains(string(payload), "CloseStream") {
			return
		}
		received <- payload
	}
}

func TestDeepgramListenURL(t *testing.T) {
	d := NewDeepgram(DeepgramConfig{URL: "wss://example.test/v1/listen", Model: "nova-2", EndpointingMS: 300}, nil)

	raw, err := d.ListenURL(Config{
		Language:             "en-GB",
		InterimResults:       true,
		AutomaticPunctuation: true,
		Phrases:              []Phrase{{Phrase: "omirec", Boost: 2}, {Phrase: "Hyprland"}, {Phrase: " "}},
	})
	require.NoError(t, err)

	u, err := url.Parse(raw)
	require.NoError(t, err)
	require.Equal(t, "example.test", u.Host)
	q := u.Query()
	require.Equal(t, "linear16", q.Get("encoding"))
	require.Equal(t, "16000", q.Get("sample_rate"))
	require.Equal(t, "1", q.Get("channels"))
	require.Equal(t, "en-GB", q.Get("language"))
	require.Equal(t, "true", q.Get("interim_results"))
	require.Equal(t, "true", q.Get("punctuate"))
	require.Equal(t, "nova-2", q.Get("model"))
	require.Equal(t, "300", q.Get("endpointing"))
	require.Equal(t, []string{"omirec:2", "Hyprland"}, q["keywords"])

	raw, err = NewDeepgram(DeepgramConfig{Model: "nova-2"}, nil).ListenURL(Config{Model: "enhanced"})
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(raw, defaultDeepgramURL))
	require.Contains(t, raw, "model=enhanced")
	require.NotContains(t, raw, "endpointing")
}

func TestDeepgramDialRequiresAPIKey(t *testing.T) {
	_, err := NewDeepgram(DeepgramConfig{}, nil).Dial(context.Background(), Config{}, nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "api_key")
}

func TestDeepgramDialRejectedCarriesHTTPStatus(t *testing.T) {
	ds := newDeepgramServer(t, func(*websocket.Conn) {})
	d := NewDeepgram(DeepgramConfig{APIKey: "wrong", URL: ds.url()}, nil)

	_, err := d.Dial(context.Background(), Config{}, nil)
	require.Error(t, err)
	require.Equal(t, "401", ErrorCode(err))
}

func TestDeepgramStreamFoldsFragmentsIntoUtterances(t *testing.T) {
	var ds *deepgramServer
	ds = newDeepgramServer(t, func(conn *websocket.Conn) {
		_, _, _ = conn.ReadMessage()
		_ = conn.WriteJSON(results("hello", false, false))
		_ = conn.WriteJSON(results("hello there", true, false))
		_ = conn.WriteJSON(results("general", false, false))
		_ = conn.WriteJSON(results("general kenobi", true, true))
		_ = conn.WriteJSON(map[string]any{"type": "Metadata"})
		_ = conn.WriteMessage(websocket.TextMessage, []byte("not json"))
		_ = conn.WriteJSON(results("trailing words", true, false))
		waitForCloseStream(conn, ds.received)
		closeNormally(conn)
	})

	rec := &resultRecorder{}
	d := NewDeepgram(DeepgramConfig{APIKey: "secret", URL: ds.url()}, nil)
	stream, err := d.Dial(context.Background(), Config{InterimResults: true}, rec.handle)
	require.NoError(t, err)

	req := <-ds.requests
	require.Equal(t, "true", req.URL.Query().Get("interim_results"))

	require.NoError(t, stream.SendAudio([]byte{1, 2, 3, 4}))
	require.Eventually(t, func() bool { return len(rec.all()) >= 5 }, time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, stream.Close(ctx))
	require.ErrorIs(t, stream.SendAudio([]byte{5}), ErrStreamClosed)

	require.Equal(t, []Result{
		{Text: "hello"},
		{Text: "hello there"},
		{Text: "hello there general"},
		{Text: "hello there general kenobi", Final: true},
		{Text: "trailing words"},
		{Text: "trailing words", Final: true},
	}, rec.all())
}

func TestDeepgramUtteranceEndFlushes(t *testing.T) {
	var ds *deepgramServer
	ds = newDeepgramServer(t, func(conn *websocket.Conn) {
		_ = conn.WriteJSON(results("one", true, false))
		_ = conn.WriteJSON(map[string]any{"type": "UtteranceEnd"})
		waitForCloseStream(conn, ds.received)
		closeNormally(conn)
	})

	rec := &resultRecorder{}
	stream, err := NewDeepgram(DeepgramConfig{APIKey: "secret", URL: ds.url()}, nil).Dial(context.Background(), Config{}, rec.handle)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return len(rec.all()) == 2 }, time.Second, 5*time.Millisecond)
	require.NoError(t, stream.Close(context.Background()))
	require.Equal(t, []Result{{Text: "one"}, {Text: "one", Final: true}}, rec.all())
}

func TestDeepgramAbnormalCloseCarriesCode(t *testing.T) {
	ds := newDeepgramServer(t, func(conn *websocket.Conn) {
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(1011, "internal"))
	})

	stream, err := NewDeepgram(DeepgramConfig{APIKey: "secret", URL: ds.url()}, nil).Dial(context.Background(), Config{}, nil)
	require.NoError(t, err)

	select {
	case <-stream.Done():
	case <-time.After(time.Second):
		t.Fatal("receive loop did not finish")
	}
	require.Error(t, stream.Err())
	require.Equal(t, "1011", ErrorCode(stream.Err()))
}

func TestDeepgramCancelIsClean(t *testing.T) {
	release := make(chan struct{})
	ds := newDeepgramServer(t, func(conn *websocket.Conn) {
		<-release
	})
	defer close(release)

	stream, err := NewDeepgram(DeepgramConfig{APIKey: "secret", URL: ds.url()}, nil).Dial(context.Background(), Config{}, nil)
	require.NoError(t, err)
	require.NoError(t, stream.Cancel())

	select {
	case <-stream.Done():
	case <-time.After(time.Second):
		t.Fatal("receive loop did not finish")
	}
	require.NoError(t, stream.Err())
}
