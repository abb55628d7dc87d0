package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/teslashibe/go-vocalix/internal/log"
	"github.com/teslashibe/go-vocalix/pkg/assembler"
	"github.com/teslashibe/go-vocalix/pkg/audio"
	"github.com/teslashibe/go-vocalix/pkg/hub"
	"github.com/teslashibe/go-vocalix/pkg/inference"
	"github.com/teslashibe/go-vocalix/pkg/metrics"
	"github.com/teslashibe/go-vocalix/pkg/protocol"
	"github.com/teslashibe/go-vocalix/pkg/relay"
	"github.com/teslashibe/go-vocalix/pkg/stt"
	"github.com/teslashibe/go-vocalix/pkg/tts"
)

type fakeProviders struct {
	rec *stt.Mock

	mu   sync.Mutex
	keys []map[string]string
}

func (p *fakeProviders) Recognizer(keys map[string]string) (stt.Recognizer, error) {
	p.mu.Lock()
	p.keys = append(p.keys, keys)
	p.mu.Unlock()
	if keys[protocol.KeyAssemblyAI] == "" {
		return nil, relay.ErrMissingRecognizerKey
	}
	return p.rec, nil
}

func (p *fakeProviders) Synthesizer(map[string]string) (tts.Synthesizer, error) {
	header := audio.NewHeader(44100, 1, 16, 0).Bytes()
	return tts.NewMock(tts.Fragment{Audio: append(header, make([]byte, 64)...), Final: true}), nil
}

func (p *fakeProviders) Replier(map[string]string) (inference.Provider, error) {
	return inference.NewMock("Good evening, Sir."), nil
}

func (p *fakeProviders) Tools(map[string]string) []inference.Tool {
	return nil
}

type fakeVoices struct {
	voices []tts.Voice
	err    error
}

func (f fakeVoices) List(context.Context) ([]tts.Voice, error) {
	return f.voices, f.err
}

func newTestServer(t *testing.T, opts ...Option) (*Server, *fakeProviders) {
	t.Helper()
	p := &fakeProviders{rec: stt.NewMock()}
	asm, err := assembler.New(assembler.WithLogger(log.Discard()), assembler.WithIdleTimeout(200*time.Millisecond))
	if err != nil {
		t.Fatalf("assembler: %v", err)
	}
	r, err := relay.New(
		relay.WithProviders(p),
		relay.WithAssembler(asm),
		relay.WithLogger(log.Discard()),
	)
	if err != nil {
		t.Fatalf("relay.New: %v", err)
	}
	opts = append([]Option{WithLogger(log.Discard()), WithVersion("test")}, opts...)
	return New(r, opts...), p
}

func getJSON(t *testing.T, s *Server, path string) (int, map[string]any) {
	t.Helper()
	resp, err := s.App().Test(httptest.NewRequest("GET", path, nil))
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	defer resp.Body.Close()
	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode %s: %v", path, err)
	}
	return resp.StatusCode, body
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t, WithHub(hub.New(log.Discard())))
	status, body := getJSON(t, s, "/health")
	if status != 200 {
		t.Fatalf("status = %d", status)
	}
	if body["status"] != "ok" || body["version"] != "test" {
		t.Errorf("body = %v", body)
	}
	if body["sessions"] != float64(0) || body["monitors"] != float64(0) {
		t.Errorf("counts = %v", body)
	}
}

func TestVoices(t *testing.T) {
	tests := []struct {
		name   string
		voices VoiceLister
		status int
		count  int
	}{
		{
			name:   "catalog",
			voices: fakeVoices{voices: []tts.Voice{
				{VoiceID: "en-US-terrell", Name: "Terrell", Gender: "Male"},
				{VoiceID: "en-UK-hazel", Name: "Hazel", Gender: "Female"},
			}},
			status: 200,
			count:  2,
		},
		{name: "provider failure", voices: fakeVoices{err: errors.New("boom")}, status: 500},
		{name: "not configured", voices: nil, status: 500},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var opts []Option
			if tt.voices != nil {
				opts = append(opts, WithVoices(tt.voices))
			}
			s, _ := newTestServer(t, opts...)
			status, body := getJSON(t, s, "/voices")
			if status != tt.status {
				t.Fatalf("status = %d, want %d", status, tt.status)
			}
			if tt.status != 200 {
				if _, ok := body["error"]; !ok {
					t.Errorf("expected error field, got %v", body)
				}
				return
			}
			voices, _ := body["voices"].([]any)
			if len(voices) != tt.count {
				t.Fatalf("voices = %v", body["voices"])
			}
			first := voices[0].(map[string]any)
			labels := first["labels"].(map[string]any)
			if first["voice_id"] != "en-US-terrell" || first["name"] != "Terrell" || labels["gender"] != "Male" {
				t.Errorf("first voice = %v", first)
			}
		})
	}
}

func TestSessionsEndpoint(t *testing.T) {
	s, _ := newTestServer(t)
	status, body := getJSON(t, s, "/api/sessions")
	if status != 200 {
		t.Fatalf("status = %d", status)
	}
	if body["count"] != float64(0) {
		t.Errorf("count = %v", body["count"])
	}
	for _, k := range []string{"sessions", "admission", "audio"} {
		if _, ok := body[k]; !ok {
			t.Errorf("missing %q in %v", k, body)
		}
	}
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	m.SessionOpened(relay.Info{ID: "s1"})

	s, _ := newTestServer(t, WithGatherer(reg))
	resp, err := s.App().Test(httptest.NewRequest("GET", "/metrics", nil))
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "vocalix_active_sessions 1") {
		t.Errorf("metrics body missing gauge:\n%s", body)
	}
}

func TestIndex(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "index.html"), []byte("<h1>Vocalix</h1>"), 0o644); err != nil {
		t.Fatal(err)
	}
	s, _ := newTestServer(t, WithStaticDir(dir))

	resp, err := s.App().Test(httptest.NewRequest("GET", "/", nil))
	if err != nil {
		t.Fatalf("GET /: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != 200 || !strings.Contains(string(body), "Vocalix") {
		t.Errorf("index = %d %q", resp.StatusCode, body)
	}
}

func TestWebSocketRequiresUpgrade(t *testing.T) {
	s, _ := newTestServer(t)
	resp, err := s.App().Test(httptest.NewRequest("GET", "/ws", nil))
	if err != nil {
		t.Fatalf("GET /ws: %v", err)
	}
	if resp.StatusCode != 426 {
		t.Errorf("status = %d, want 426", resp.StatusCode)
	}
}

// listen serves s on a loopback port and returns the websocket URL.
func listen(t *testing.T, s *Server) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	go func() { _ = s.App().Listener(ln) }()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = s.Shutdown(ctx)
	})
	return "ws://" + ln.Addr().String() + "/ws"
}

func readMessage(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("decode %s: %v", data, err)
	}
	return m
}

func configure(t *testing.T, conn *websocket.Conn, keys map[string]string) {
	t.Helper()
	msg := protocol.ConfigureKeys{Type: protocol.TypeConfigureKeys, Keys: keys}
	if err := conn.WriteJSON(msg); err != nil {
		t.Fatalf("configure: %v", err)
	}
}

func TestWebSocketSession(t *testing.T) {
	s, p := newTestServer(t)
	url := listen(t, s)

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	configure(t, conn, map[string]string{protocol.KeyAssemblyAI: "aai", protocol.KeyMurf: "murf"})
	first := readMessage(t, conn)
	if first["type"] != string(protocol.TypeConnectionEstablished) {
		t.Fatalf("first message = %v", first)
	}

	var rec *stt.MockSession
	select {
	case rec = <-p.rec.Opened():
	case <-time.After(2 * time.Second):
		t.Fatal("recognizer not opened")
	}

	for i := 0; i < 3; i++ {
		if err := conn.WriteMessage(websocket.BinaryMessage, make([]byte, 320)); err != nil {
			t.Fatalf("send audio: %v", err)
		}
	}
	deadline := time.Now().Add(2 * time.Second)
	for len(rec.Audio()) < 3 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if n := len(rec.Audio()); n != 3 {
		t.Errorf("recognizer got %d frames, want 3", n)
	}

	rec.Turn("good evening", true)
	var types []string
	for {
		m := readMessage(t, conn)
		types = append(types, m["type"].(string))
		if m["type"] == string(protocol.TypeLLMStreamingComplete) {
			if m["full_response"] != "Good evening, Sir." {
				t.Errorf("full_response = %v", m["full_response"])
			}
			break
		}
	}
	want := []string{
		string(protocol.TypeTurnCompleted),
		string(protocol.TypeFinalTranscript),
		string(protocol.TypeLLMStreamingStart),
		string(protocol.TypeLLMChunk),
	}
	for i, w := range want {
		if i >= len(types) || types[i] != w {
			t.Fatalf("message order = %v", types)
		}
	}

	p.mu.Lock()
	keys := p.keys[0]
	p.mu.Unlock()
	if keys[protocol.KeyMurf] != "murf" {
		t.Errorf("keys = %v", keys)
	}

	conn.Close()
	deadline = time.Now().Add(3 * time.Second)
	for s.cfg.Relay.Count() != 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if n := s.cfg.Relay.Count(); n != 0 {
		t.Errorf("live sessions after disconnect = %d", n)
	}
	if !rec.Closed() {
		t.Error("recognizer session not closed on disconnect")
	}
}

func TestWebSocketRejectsBadFirstMessage(t *testing.T) {
	s, _ := newTestServer(t)
	url := listen(t, s)

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"hello"}`)); err != nil {
		t.Fatalf("write: %v", err)
	}
	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, _, err = conn.ReadMessage()

	var closeErr *websocket.CloseError
	if !errors.As(err, &closeErr) {
		t.Fatalf("err = %v, want close error", err)
	}
	if closeErr.Code != websocket.ClosePolicyViolation || closeErr.Text != configureCloseText {
		t.Errorf("close = %d %q", closeErr.Code, closeErr.Text)
	}
}

func TestWebSocketMissingRecognizerKey(t *testing.T) {
	s, _ := newTestServer(t)
	url := listen(t, s)

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	configure(t, conn, map[string]string{protocol.KeyGemini: "g"})
	m := readMessage(t, conn)
	if m["type"] != string(protocol.TypeError) || m["message"] != "AssemblyAI API key not provided." {
		t.Errorf("message = %v", m)
	}

	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, _, err = conn.ReadMessage()
	var closeErr *websocket.CloseError
	if !errors.As(err, &closeErr) || closeErr.Code != websocket.ClosePolicyViolation {
		t.Errorf("err = %v, want policy violation close", err)
	}
}
