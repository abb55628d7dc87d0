package relay_test

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/teslashibe/go-vocalix/internal/log"
	"github.com/teslashibe/go-vocalix/pkg/admission"
	"github.com/teslashibe/go-vocalix/pkg/assembler"
	"github.com/teslashibe/go-vocalix/pkg/audio"
	"github.com/teslashibe/go-vocalix/pkg/inference"
	"github.com/teslashibe/go-vocalix/pkg/protocol"
	"github.com/teslashibe/go-vocalix/pkg/relay"
	"github.com/teslashibe/go-vocalix/pkg/stt"
	"github.com/teslashibe/go-vocalix/pkg/tts"
	"github.com/teslashibe/go-vocalix/pkg/turn"
)

// clientConn records what the relay writes to the client.
type clientConn struct {
	mu        sync.Mutex
	msgs      []map[string]any
	closeCode int
}

func (c *clientConn) WriteMessage(mt int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if mt == websocket.CloseMessage {
		if len(data) >= 2 {
			c.closeCode = int(binary.BigEndian.Uint16(data))
		}
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	c.msgs = append(c.msgs, m)
	return nil
}

func (c *clientConn) SetWriteDeadline(time.Time) error { return nil }

func (c *clientConn) messages() []map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]map[string]any(nil), c.msgs...)
}

func (c *clientConn) types() []string {
	var out []string
	for _, m := range c.messages() {
		out = append(out, m["type"].(string))
	}
	return out
}

func (c *clientConn) ofType(t protocol.MessageType) []map[string]any {
	var out []map[string]any
	for _, m := range c.messages() {
		if m["type"] == string(t) {
			out = append(out, m)
		}
	}
	return out
}

func (c *clientConn) waitFor(t *testing.T, typ protocol.MessageType, n int) []map[string]any {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if got := c.ofType(typ); len(got) >= n {
			return got
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d %s messages; got %v", n, typ, c.types())
	return nil
}

type fakeProviders struct {
	rec        *stt.Mock
	recErr     error
	synth      tts.Synthesizer
	replier    inference.Provider
	replierErr error
}

func (p *fakeProviders) Recognizer(map[string]string) (stt.Recognizer, error) {
	if p.recErr != nil {
		return nil, p.recErr
	}
	return p.rec, nil
}

func (p *fakeProviders) Synthesizer(map[string]string) (tts.Synthesizer, error) {
	return p.synth, nil
}

func (p *fakeProviders) Replier(map[string]string) (inference.Provider, error) {
	if p.replierErr != nil {
		return nil, p.replierErr
	}
	return p.replier, nil
}

func (p *fakeProviders) Tools(map[string]string) []inference.Tool {
	return nil
}

// outcomes records ReplyFinished events.
type outcomes struct {
	mu   sync.Mutex
	seen map[int]relay.Outcome
	open int
}

func (o *outcomes) SessionOpened(relay.Info) {
	o.mu.Lock()
	o.open++
	o.mu.Unlock()
}

func (o *outcomes) SessionClosed(relay.Info) {
	o.mu.Lock()
	o.open--
	o.mu.Unlock()
}

func (o *outcomes) TurnClassified(string, turn.Decision)   {}
func (o *outcomes) AudioFinished(string, assembler.Result) {}

func (o *outcomes) ReplyFinished(_ string, seq int, out relay.Outcome, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.seen == nil {
		o.seen = map[int]relay.Outcome{}
	}
	o.seen[seq] = out
}

func (o *outcomes) live() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.open
}

func (o *outcomes) get(seq int) relay.Outcome {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.seen[seq]
}

func speech() *tts.Mock {
	header := audio.NewHeader(44100, 1, 16, 0).Bytes()
	return tts.NewMock(
		tts.Fragment{Audio: append(header, make([]byte, 100)...)},
		tts.Fragment{Audio: make([]byte, 60), Final: true},
	)
}

type harness struct {
	relay   *relay.Relay
	session *relay.Session
	conn    *clientConn
	rec     *stt.MockSession
	obs     *outcomes
}

func newHarness(t *testing.T, p *fakeProviders, opts ...relay.Option) *harness {
	t.Helper()
	if p.rec == nil {
		p.rec = stt.NewMock()
	}
	if p.synth == nil {
		p.synth = speech()
	}

	asm, err := assembler.New(assembler.WithLogger(log.Discard()), assembler.WithIdleTimeout(200*time.Millisecond))
	if err != nil {
		t.Fatalf("assembler: %v", err)
	}
	obs := &outcomes{}
	opts = append([]relay.Option{
		relay.WithProviders(p),
		relay.WithAssembler(asm),
		relay.WithObserver(obs),
		relay.WithLogger(log.Discard()),
		relay.WithAwaitTimeout(5 * time.Second),
	}, opts...)
	r, err := relay.New(opts...)
	if err != nil {
		t.Fatalf("relay.New: %v", err)
	}

	conn := &clientConn{}
	s, err := r.Open(context.Background(), conn, map[string]string{protocol.KeyAssemblyAI: "k"})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() {
		s.Close()
		s.Wait()
	})

	var ms *stt.MockSession
	select {
	case ms = <-p.rec.Opened():
	case <-time.After(time.Second):
		t.Fatal("recognizer not opened")
	}
	return &harness{relay: r, session: s, conn: conn, rec: ms, obs: obs}
}

// indexOf returns the position of the first message of typ for turn seq.
func indexOf(msgs []map[string]any, typ protocol.MessageType, seq int) int {
	for i, m := range msgs {
		if m["type"] != string(typ) {
			continue
		}
		if n, ok := m["turn_number"].(float64); ok && int(n) != seq {
			continue
		}
		return i
	}
	return -1
}

func TestTurnEndToEnd(t *testing.T) {
	replier := inference.NewMock("It is noon, Sir.")
	h := newHarness(t, &fakeProviders{replier: replier})

	h.rec.Begin("rec-1")
	h.rec.Turn("what time", false)
	h.rec.Turn("what time is it", true)
	h.rec.Turn("What time is it?", true)

	h.conn.waitFor(t, protocol.TypeLLMStreamingComplete, 1)
	msgs := h.conn.messages()

	if msgs[0]["type"] != string(protocol.TypeConnectionEstablished) {
		t.Errorf("first message = %v", msgs[0]["type"])
	}
	if msgs[0]["session_id"] != h.session.ID() {
		t.Errorf("session_id = %v, want %s", msgs[0]["session_id"], h.session.ID())
	}

	order := []protocol.MessageType{
		protocol.TypeTurnCompleted,
		protocol.TypeFinalTranscript,
		protocol.TypeLLMStreamingStart,
		protocol.TypeLLMChunk,
		protocol.TypeAudioChunk,
		protocol.TypeAudioStreamingComplete,
		protocol.TypeLLMStreamingComplete,
	}
	prev := -1
	for _, typ := range order {
		i := indexOf(msgs, typ, 1)
		if i < 0 {
			t.Fatalf("missing %s in %v", typ, h.conn.types())
		}
		if i <= prev {
			t.Errorf("%s out of order in %v", typ, h.conn.types())
		}
		prev = i
	}

	if n := len(h.conn.ofType(protocol.TypeTurnCompleted)); n != 1 {
		t.Errorf("turn_completed sent %d times, want 1", n)
	}
	updated := h.conn.ofType(protocol.TypeTurnUpdated)
	if len(updated) != 1 || updated[0]["final_transcript"] != "What time is it?" || updated[0]["turn_number"] != 1.0 {
		t.Errorf("turn_updated = %v", updated)
	}
	if len(h.conn.ofType(protocol.TypePartialTranscript)) != 1 {
		t.Error("expected one partial transcript")
	}
	if len(h.conn.ofType(protocol.TypeSessionBegin)) != 1 {
		t.Error("expected session_begin")
	}
	if n := len(h.conn.ofType(protocol.TypeAudioChunk)); n != 1 {
		t.Errorf("audio_chunk sent %d times, want 1", n)
	}
	if replier.CallCount("Reply") != 1 {
		t.Errorf("reply generated %d times, want 1", replier.CallCount("Reply"))
	}

	chunk := h.conn.ofType(protocol.TypeLLMChunk)[0]
	if chunk["chunk"] != "It is noon, Sir." {
		t.Errorf("llm_chunk = %v", chunk["chunk"])
	}
	done := h.conn.ofType(protocol.TypeAudioStreamingComplete)[0]
	if done["audio_bytes"] != float64(audio.HeaderSize+160) {
		t.Errorf("audio_bytes = %v", done["audio_bytes"])
	}

	h.session.Wait()
	if got := h.obs.get(1); got != relay.OutcomeReplied {
		t.Errorf("outcome = %s", got)
	}
	if len(h.session.History()) != 2 {
		t.Errorf("history = %d messages, want 2", len(h.session.History()))
	}
}

func TestHistoryCarriesAcrossTurns(t *testing.T) {
	replier := inference.NewMock("Noted.")
	h := newHarness(t, &fakeProviders{replier: replier})

	h.rec.Turn("my name is Ada", true)
	h.conn.waitFor(t, protocol.TypeLLMStreamingComplete, 1)
	h.session.Wait()

	h.rec.Turn("what is my name", true)
	h.conn.waitFor(t, protocol.TypeLLMStreamingComplete, 2)

	reqs := replier.Requests()
	if len(reqs) != 2 {
		t.Fatalf("got %d requests, want 2", len(reqs))
	}
	if len(reqs[0].History) != 0 || len(reqs[1].History) != 2 {
		t.Errorf("history lengths = %d, %d; want 0, 2", len(reqs[0].History), len(reqs[1].History))
	}
	if reqs[1].SessionID != h.session.ID() || reqs[1].Text != "what is my name" {
		t.Errorf("second request = %+v", reqs[1])
	}
}

func TestOpenURLDirective(t *testing.T) {
	tests := []struct {
		name   string
		reply  string
		spoken string
	}{
		{"with text", "Opening YouTube, Sir. ACTION_OPEN_URL::https://www.youtube.com", "Opening YouTube, Sir."},
		{"directive only", "ACTION_OPEN_URL::https://www.youtube.com", relay.Filler},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, &fakeProviders{replier: inference.NewMock(tt.reply)})
			h.rec.Turn("open youtube", true)
			h.conn.waitFor(t, protocol.TypeLLMStreamingComplete, 1)

			msgs := h.conn.messages()
			open := h.conn.ofType(protocol.TypeOpenURL)
			if len(open) != 1 || open[0]["url"] != "https://www.youtube.com" {
				t.Fatalf("open_url = %v", open)
			}
			if indexOf(msgs, protocol.TypeOpenURL, 1) > indexOf(msgs, protocol.TypeLLMChunk, 1) {
				t.Error("open_url should precede llm_chunk")
			}
			if got := h.conn.ofType(protocol.TypeLLMChunk)[0]["chunk"]; got != tt.spoken {
				t.Errorf("spoken = %q, want %q", got, tt.spoken)
			}
			full := h.conn.ofType(protocol.TypeLLMStreamingComplete)[0]["full_response"]
			if full != tt.reply {
				t.Errorf("full_response = %q", full)
			}
		})
	}
}

func TestQuotaExceeded(t *testing.T) {
	gate := admission.New(1, time.Hour)
	replier := inference.NewMock("Hello.")
	h := newHarness(t, &fakeProviders{replier: replier}, relay.WithGate(gate))

	h.rec.Turn("first", true)
	h.conn.waitFor(t, protocol.TypeLLMStreamingComplete, 1)
	h.session.Wait()

	h.rec.Turn("second", true)
	errs := h.conn.waitFor(t, protocol.TypeLLMError, 1)
	h.session.Wait()

	if errs[0]["error"] != relay.QuotaMessage || errs[0]["turn_number"] != 2.0 {
		t.Errorf("llm_error = %v", errs[0])
	}
	if indexOf(h.conn.messages(), protocol.TypeLLMStreamingStart, 2) >= 0 {
		t.Error("rejected turn should not start streaming")
	}
	if replier.CallCount("Reply") != 1 {
		t.Errorf("reply generated %d times, want 1", replier.CallCount("Reply"))
	}
	if h.obs.get(2) != relay.OutcomeRejected {
		t.Errorf("outcome = %s", h.obs.get(2))
	}
	if st := h.relay.Admission(); st.Used != 1 || st.Max != 1 {
		t.Errorf("admission = %+v", st)
	}
}

func TestReplyFailure(t *testing.T) {
	replier := inference.WithError(errors.New("model overloaded"))
	h := newHarness(t, &fakeProviders{replier: replier})

	h.rec.Turn("hello there", true)
	errs := h.conn.waitFor(t, protocol.TypeLLMError, 1)
	h.session.Wait()

	if errs[0]["error"] != relay.ReplyErrorMessage {
		t.Errorf("llm_error = %v", errs[0]["error"])
	}
	if len(h.conn.ofType(protocol.TypeAudioChunk)) != 0 || len(h.conn.ofType(protocol.TypeLLMStreamingComplete)) != 0 {
		t.Errorf("failed turn should not produce audio: %v", h.conn.types())
	}
	if len(h.session.History()) != 0 {
		t.Error("history must not change on failure")
	}

	// The session stays usable.
	if err := h.session.SendAudio([]byte{1, 2, 3}); err != nil {
		t.Errorf("SendAudio after failure: %v", err)
	}
}

func TestProviderRateLimitReportsQuota(t *testing.T) {
	limited := &inference.APIError{StatusCode: 429, Message: "quota", Provider: "gemini"}
	replier := inference.WithError(inference.WrapError("gemini", limited))
	h := newHarness(t, &fakeProviders{replier: replier})

	h.rec.Turn("hello there", true)
	errs := h.conn.waitFor(t, protocol.TypeLLMError, 1)
	h.session.Wait()

	if errs[0]["error"] != relay.QuotaMessage {
		t.Errorf("llm_error = %v", errs[0]["error"])
	}
	if h.obs.get(1) != relay.OutcomeRejected {
		t.Errorf("outcome = %s", h.obs.get(1))
	}
}

func TestMissingReplyKey(t *testing.T) {
	h := newHarness(t, &fakeProviders{replierErr: relay.ErrMissingReplyKey})

	h.rec.Turn("hello", true)
	errs := h.conn.waitFor(t, protocol.TypeLLMError, 1)
	if errs[0]["error"] != relay.ReplyErrorMessage {
		t.Errorf("llm_error = %v", errs[0]["error"])
	}
}

func TestSynthesisUnavailableUsesPlaceholder(t *testing.T) {
	h := newHarness(t, &fakeProviders{
		replier: inference.NewMock("Right away."),
		synth:   tts.WithError(tts.ErrProviderUnavailable),
	})

	h.rec.Turn("play something", true)
	h.conn.waitFor(t, protocol.TypeLLMStreamingComplete, 1)

	chunks := h.conn.ofType(protocol.TypeAudioChunk)
	done := h.conn.ofType(protocol.TypeAudioStreamingComplete)
	if len(chunks) != 1 || len(done) != 1 {
		t.Fatalf("audio messages = %d chunk, %d complete", len(chunks), len(done))
	}
	if done[0]["fallback"] != true {
		t.Errorf("completion = %v, want fallback", done[0])
	}
	if h.conn.ofType(protocol.TypeLLMError) != nil {
		t.Error("synthesis unavailability is not an error")
	}
}

func TestEmptyTranscriptIgnored(t *testing.T) {
	replier := inference.NewMock("x")
	h := newHarness(t, &fakeProviders{replier: replier})

	h.rec.Turn("   ", true)
	h.rec.Turn("", false)
	h.session.Wait()

	for _, typ := range h.conn.types() {
		if typ != string(protocol.TypeConnectionEstablished) {
			t.Errorf("unexpected %s", typ)
		}
	}
	if replier.CallCount("Reply") != 0 {
		t.Error("empty transcript should not reach the reply generator")
	}
}

func TestRecognizerEventsForwarded(t *testing.T) {
	h := newHarness(t, &fakeProviders{replier: inference.NewMock("x")})

	h.rec.Fail(&stt.APIError{Message: "Invalid audio"})
	h.rec.Terminate(12.5)

	errs := h.conn.waitFor(t, protocol.TypeError, 1)
	if errs[0]["message"] == "" {
		t.Error("error message is empty")
	}
	term := h.conn.waitFor(t, protocol.TypeSessionTerminated, 1)
	if term[0]["total_audio_duration"] != 12.5 {
		t.Errorf("session_terminated = %v", term[0])
	}
}

func TestCloseDropsPendingReply(t *testing.T) {
	release := make(chan struct{})
	replier := &inference.Mock{
		ReplyFunc: func(_ context.Context, req *inference.ReplyRequest) (*inference.ReplyResponse, error) {
			<-release
			return inference.Echo(req, "too late"), nil
		},
	}
	h := newHarness(t, &fakeProviders{replier: replier})

	h.rec.Turn("tell me a story", true)
	h.conn.waitFor(t, protocol.TypeLLMStreamingStart, 1)

	h.session.Close()
	close(release)
	h.session.Wait()

	if h.conn.ofType(protocol.TypeLLMChunk) != nil || h.conn.ofType(protocol.TypeAudioChunk) != nil {
		t.Errorf("closed session received reply output: %v", h.conn.types())
	}
	if h.obs.get(1) != relay.OutcomeAbandoned {
		t.Errorf("outcome = %s", h.obs.get(1))
	}
	if h.relay.Count() != 0 || h.obs.live() != 0 {
		t.Errorf("relay still tracks %d sessions (observer %d)", h.relay.Count(), h.obs.live())
	}
	if err := h.session.SendAudio([]byte{1}); !errors.Is(err, relay.ErrSessionClosed) {
		t.Errorf("SendAudio after close = %v", err)
	}
}

func TestMissingRecognizerKey(t *testing.T) {
	r, err := relay.New(
		relay.WithProviders(&fakeProviders{recErr: relay.ErrMissingRecognizerKey}),
		relay.WithLogger(log.Discard()),
	)
	if err != nil {
		t.Fatal(err)
	}
	conn := &clientConn{}
	_, err = r.Open(context.Background(), conn, map[string]string{})
	if !errors.Is(err, relay.ErrMissingRecognizerKey) {
		t.Fatalf("err = %v", err)
	}

	msgs := conn.messages()
	if len(msgs) != 1 || msgs[0]["type"] != "error" || msgs[0]["message"] != "AssemblyAI API key not provided." {
		t.Errorf("messages = %v", msgs)
	}
	if conn.closeCode != websocket.ClosePolicyViolation {
		t.Errorf("close code = %d, want %d", conn.closeCode, websocket.ClosePolicyViolation)
	}
	if r.Count() != 0 {
		t.Error("rejected connection registered a session")
	}
}

func TestRecognizerConnectFailure(t *testing.T) {
	rec := stt.WithError(stt.NewConnectionError("dial failed", errors.New("refused"), true))
	r, _ := relay.New(
		relay.WithProviders(&fakeProviders{rec: rec, synth: speech()}),
		relay.WithLogger(log.Discard()),
	)
	conn := &clientConn{}
	if _, err := r.Open(context.Background(), conn, map[string]string{protocol.KeyAssemblyAI: "k"}); err == nil {
		t.Fatal("expected error")
	}
	if len(conn.ofType(protocol.TypeError)) != 1 {
		t.Errorf("messages = %v", conn.types())
	}
	if r.Count() != 0 {
		t.Error("failed session still registered")
	}
}

func TestSessionsSnapshot(t *testing.T) {
	h := newHarness(t, &fakeProviders{replier: inference.NewMock("ok")})
	_ = h.session.SendAudio(make([]byte, 320))
	_ = h.session.SendAudio(make([]byte, 320))

	infos := h.relay.Sessions()
	if len(infos) != 1 || infos[0].ID != h.session.ID() || infos[0].AudioFrames != 2 {
		t.Errorf("sessions = %+v", infos)
	}
	if got, ok := h.relay.Get(h.session.ID()); !ok || got != h.session {
		t.Error("Get did not return the session")
	}
}

func TestNewRequiresProviders(t *testing.T) {
	if _, err := relay.New(); !errors.Is(err, relay.ErrNoProviders) {
		t.Errorf("err = %v", err)
	}
}
