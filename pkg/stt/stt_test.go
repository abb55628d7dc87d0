package stt

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/teslashibe/go-vocalix/internal/log"
)

// fakeAssembly is a minimal v3 streaming server.
type fakeAssembly struct {
	t        *testing.T
	mu       sync.Mutex
	query    map[string]string
	auth     string
	frames   int
	gotTerm  bool
	script   []string
	upgrader websocket.Upgrader
}

func (f *fakeAssembly) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("Authorization") != "good-key" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	f.mu.Lock()
	f.auth = r.Header.Get("Authorization")
	f.query = map[string]string{}
	for k := range r.URL.Query() {
		f.query[k] = r.URL.Query().Get(k)
	}
	f.mu.Unlock()

	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		f.t.Errorf("upgrade: %v", err)
		return
	}
	defer conn.Close()

	_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"Begin","id":"sess-1","expires_at":1700000000}`))
	for _, msg := range f.script {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(msg))
	}

	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if mt == websocket.BinaryMessage {
			f.mu.Lock()
			f.frames++
			f.mu.Unlock()
			continue
		}
		if strings.Contains(string(data), "Terminate") {
			f.mu.Lock()
			f.gotTerm = true
			f.mu.Unlock()
			_ = conn.WriteMessage(websocket.TextMessage,
				[]byte(`{"type":"Termination","audio_duration_seconds":4.5,"session_duration_seconds":6}`))
			_ = conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

type collector struct {
	mu     sync.Mutex
	begins []BeginEvent
	turns  []TurnEvent
	terms  []TerminationEvent
	errs   []error
}

func (c *collector) handlers() Handlers {
	return Handlers{
		OnBegin: func(e BeginEvent) {
			c.mu.Lock()
			c.begins = append(c.begins, e)
			c.mu.Unlock()
		},
		OnTurn: func(e TurnEvent) {
			c.mu.Lock()
			c.turns = append(c.turns, e)
			c.mu.Unlock()
		},
		OnTermination: func(e TerminationEvent) {
			c.mu.Lock()
			c.terms = append(c.terms, e)
			c.mu.Unlock()
		},
		OnError: func(err error) {
			c.mu.Lock()
			c.errs = append(c.errs, err)
			c.mu.Unlock()
		},
	}
}

func (c *collector) turnCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.turns)
}

func TestAssemblyAISession(t *testing.T) {
	fake := &fakeAssembly{
		t: t,
		script: []string{
			`{"type":"Turn","turn_order":0,"transcript":"hello","end_of_turn":false}`,
			`{"type":"Turn","turn_order":0,"transcript":"hello world","end_of_turn":true,"turn_is_formatted":false,` +
				`"words":[{"text":"hello","start":100,"end":400,"confidence":0.9,"word_is_final":true},` +
				`{"text":"world","start":450,"end":900,"confidence":0.8,"word_is_final":true}]}`,
			`{"type":"Turn","turn_order":0,"transcript":"Hello world.","end_of_turn":true,"turn_is_formatted":true}`,
		},
	}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	rec, err := NewAssemblyAI(
		WithAPIKey("good-key"),
		WithBaseURL(wsURL(srv)),
		WithLogger(log.Discard()),
	)
	if err != nil {
		t.Fatalf("NewAssemblyAI: %v", err)
	}

	c := &collector{}
	sess, err := rec.Open(context.Background(), c.handlers())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for c.turnCount() < 3 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	for i := 0; i < 3; i++ {
		if err := sess.SendAudio(make([]byte, 3200)); err != nil {
			t.Fatalf("SendAudio: %v", err)
		}
	}
	if err := sess.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	select {
	case <-sess.Done():
	case <-time.After(3 * time.Second):
		t.Fatal("read loop did not exit")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.begins) != 1 || c.begins[0].ID != "sess-1" {
		t.Errorf("begins = %+v", c.begins)
	}
	if len(c.turns) != 3 {
		t.Fatalf("turns = %d, want 3", len(c.turns))
	}
	if c.turns[0].EndOfTurn {
		t.Error("first turn event should be partial")
	}
	if d := c.turns[1].Duration(); d == nil || *d != 0.8 {
		t.Errorf("duration = %v, want 0.8", d)
	}
	if !c.turns[2].Formatted || c.turns[2].Transcript != "Hello world." {
		t.Errorf("formatted turn = %+v", c.turns[2])
	}
	if len(c.terms) != 1 || c.terms[0].AudioSeconds != 4.5 {
		t.Errorf("terminations = %+v", c.terms)
	}
	if len(c.errs) != 0 {
		t.Errorf("unexpected errors: %v", c.errs)
	}

	fake.mu.Lock()
	defer fake.mu.Unlock()
	if fake.frames != 3 {
		t.Errorf("server got %d audio frames, want 3", fake.frames)
	}
	if !fake.gotTerm {
		t.Error("server never received Terminate")
	}
	want := map[string]string{
		"sample_rate":                            "16000",
		"format_turns":                           "true",
		"end_of_turn_confidence_threshold":       "0.7",
		"min_end_of_turn_silence_when_confident": "800",
		"max_turn_silence":                       "1500",
	}
	for k, v := range want {
		if fake.query[k] != v {
			t.Errorf("query %s = %q, want %q", k, fake.query[k], v)
		}
	}
}

func TestAssemblyAIErrorEvent(t *testing.T) {
	fake := &fakeAssembly{t: t, script: []string{`{"error":"Invalid audio"}`}}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	rec, _ := NewAssemblyAI(WithAPIKey("good-key"), WithBaseURL(wsURL(srv)), WithLogger(log.Discard()))

	errs := make(chan error, 1)
	sess, err := rec.Open(context.Background(), Handlers{OnError: func(err error) { errs <- err }})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer sess.Close()

	select {
	case err := <-errs:
		var apiErr *APIError
		if !errors.As(err, &apiErr) || apiErr.Message != "Invalid audio" {
			t.Errorf("err = %v, want APIError(Invalid audio)", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no error event")
	}
}

func TestAssemblyAIUnauthorized(t *testing.T) {
	srv := httptest.NewServer(&fakeAssembly{t: t})
	defer srv.Close()

	rec, _ := NewAssemblyAI(WithAPIKey("bad-key"), WithBaseURL(wsURL(srv)), WithLogger(log.Discard()))
	_, err := rec.Open(context.Background(), Handlers{})

	var apiErr *APIError
	if !errors.As(err, &apiErr) || !apiErr.IsUnauthorized() {
		t.Fatalf("err = %v, want unauthorized APIError", err)
	}
	if IsRetryable(err) {
		t.Error("auth failures are not retryable")
	}
}

func TestAssemblyAIUnreachable(t *testing.T) {
	rec, _ := NewAssemblyAI(
		WithAPIKey("k"),
		WithBaseURL("ws://127.0.0.1:1/v3/ws"),
		WithHandshakeTimeout(500*time.Millisecond),
		WithLogger(log.Discard()),
	)
	_, err := rec.Open(context.Background(), Handlers{})

	var connErr *ConnectionError
	if !errors.As(err, &connErr) {
		t.Fatalf("err = %v, want ConnectionError", err)
	}
	if !IsRetryable(err) {
		t.Error("dial failures should be retryable")
	}
}

func TestNewAssemblyAIRequiresKey(t *testing.T) {
	if _, err := NewAssemblyAI(); !errors.Is(err, ErrMissingAPIKey) {
		t.Errorf("err = %v, want ErrMissingAPIKey", err)
	}
}

func TestTurnEventDuration(t *testing.T) {
	tests := []struct {
		name  string
		words []Word
		want  *float64
	}{
		{"no words", nil, nil},
		{"single word", []Word{{Start: 0, End: 250}}, ptr(0.25)},
		{"span", []Word{{Start: 1000, End: 1200}, {Start: 1300, End: 2500}}, ptr(1.5)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := TurnEvent{Words: tt.words}.Duration()
			switch {
			case tt.want == nil && got != nil:
				t.Errorf("got %v, want nil", *got)
			case tt.want != nil && (got == nil || *got != *tt.want):
				t.Errorf("got %v, want %v", got, *tt.want)
			}
		})
	}
}

func TestMockSession(t *testing.T) {
	m := NewMock()
	var got []string
	sess, _ := m.Open(context.Background(), Handlers{
		OnTurn: func(e TurnEvent) { got = append(got, e.Transcript) },
	})
	ms := <-m.Opened()

	ms.Turn("a", false)
	ms.Turn("a b", true)
	if len(got) != 2 || got[1] != "a b" {
		t.Errorf("turns = %v", got)
	}

	_ = sess.SendAudio([]byte{1, 2})
	_ = sess.Close()
	if !ms.Closed() || len(ms.Audio()) != 1 {
		t.Error("mock did not record audio and close")
	}
	if err := sess.SendAudio([]byte{3}); !errors.Is(err, ErrNotConnected) {
		t.Errorf("send after close = %v, want ErrNotConnected", err)
	}
}

func ptr(f float64) *float64 { return &f }
