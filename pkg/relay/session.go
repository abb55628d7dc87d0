package relay

import (
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/teslashibe/go-vocalix/pkg/bridge"
	"github.com/teslashibe/go-vocalix/pkg/inference"
	"github.com/teslashibe/go-vocalix/pkg/protocol"
	"github.com/teslashibe/go-vocalix/pkg/stt"
	"github.com/teslashibe/go-vocalix/pkg/tts"
	"github.com/teslashibe/go-vocalix/pkg/turn"
)

const (
	closePolicyViolation = websocket.ClosePolicyViolation
	closeInternalError   = websocket.CloseInternalServerErr

	// closeWait bounds how long a close frame may take to go out.
	closeWait = 2 * time.Second
)

// Session is one client connection. It is created by Relay.Open and
// destroyed by Close.
type Session struct {
	id      string
	relay   *Relay
	bridge  *bridge.Bridge
	ledger  *turn.Ledger
	synth   tts.Synthesizer
	replier inference.Provider
	tools   []inference.Tool
	logger  *slog.Logger
	created time.Time

	// replierErr explains a nil replier.
	replierErr error

	recogMu sync.Mutex
	recog   stt.Session

	historyMu sync.Mutex
	history   []inference.Message

	workers   sync.WaitGroup
	closeOnce sync.Once
	closed    atomic.Bool

	turns   atomic.Int64
	replies atomic.Int64
	frames  atomic.Int64
}

// Info is a snapshot of a session for status endpoints and the monitor.
type Info struct {
	ID          string       `json:"id"`
	Connected   time.Time    `json:"connected"`
	Turns       int          `json:"turns"`
	Replies     int          `json:"replies"`
	AudioFrames int64        `json:"audio_frames"`
	History     int          `json:"history"`
	Bridge      bridge.Stats `json:"bridge"`
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// Info returns a snapshot of the session.
func (s *Session) Info() Info {
	s.historyMu.Lock()
	history := len(s.history)
	s.historyMu.Unlock()

	return Info{
		ID:          s.id,
		Connected:   s.created,
		Turns:       int(s.turns.Load()),
		Replies:     int(s.replies.Load()),
		AudioFrames: s.frames.Load(),
		History:     history,
		Bridge:      s.bridge.Stats(),
	}
}

// History returns a copy of the conversation history.
func (s *Session) History() []inference.Message {
	s.historyMu.Lock()
	defer s.historyMu.Unlock()
	return append([]inference.Message(nil), s.history...)
}

func (s *Session) setHistory(h []inference.Message) {
	s.historyMu.Lock()
	s.history = h
	s.historyMu.Unlock()
}

// SendAudio forwards one binary frame of client audio to the recognizer.
func (s *Session) SendAudio(pcm []byte) error {
	if s.closed.Load() {
		return ErrSessionClosed
	}
	s.recogMu.Lock()
	recog := s.recog
	s.recogMu.Unlock()
	if recog == nil {
		return ErrSessionClosed
	}

	s.frames.Add(1)
	return recog.SendAudio(pcm)
}

// Done is closed when the session's bridge has stopped.
func (s *Session) Done() <-chan struct{} {
	return s.bridge.Done()
}

// Close terminates recognition, stops the bridge, and cancels pending
// audio jobs. Workers still waiting on a reply drop it when it arrives.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.closed.Store(true)

		s.recogMu.Lock()
		recog := s.recog
		s.recogMu.Unlock()
		if recog != nil {
			_ = recog.Close()
		}

		s.bridge.Close()
		s.relay.remove(s)

		if s.replier != nil {
			_ = s.replier.Close()
		}

		info := s.Info()
		s.relay.cfg.Observer.SessionClosed(info)
		s.logger.Info("session closed",
			"turns", info.Turns,
			"replies", info.Replies,
			"audio_frames", info.AudioFrames,
			"duration", time.Since(s.created),
		)
	})
}

// Wait blocks until every turn worker has returned.
func (s *Session) Wait() {
	s.workers.Wait()
}

func (s *Session) start(rec stt.Recognizer) error {
	s.bridge.Send(protocol.NewConnectionEstablished(s.id))

	sess, err := rec.Open(s.bridge.Context(), stt.Handlers{
		OnBegin:       s.onBegin,
		OnTurn:        s.onTurn,
		OnTermination: s.onTermination,
		OnError:       s.onError,
	})
	if err != nil {
		s.logger.Error("failed to start recognition", "error", err)
		s.bridge.Send(protocol.NewError("Failed to connect to speech recognition service: " + err.Error()))
		_, _ = s.bridge.CloseWith(closeInternalError, "recognition unavailable").Await(closeWait)
		return err
	}

	s.recogMu.Lock()
	s.recog = sess
	s.recogMu.Unlock()
	return nil
}

func (s *Session) onBegin(e stt.BeginEvent) {
	s.logger.Info("recognition began", "recognizer_session", e.ID)
	s.bridge.Send(protocol.NewSessionBegin(e.ID))
}

func (s *Session) onTermination(e stt.TerminationEvent) {
	s.bridge.Send(protocol.NewSessionTerminated(e.AudioSeconds))
}

func (s *Session) onError(err error) {
	s.bridge.Send(protocol.NewError(err.Error()))
}

// onTurn runs on the recognizer's read goroutine, which is the only
// caller of the ledger.
func (s *Session) onTurn(e stt.TurnEvent) {
	if strings.TrimSpace(e.Transcript) == "" {
		return
	}

	d := s.ledger.Classify(e.Transcript, e.EndOfTurn)
	s.relay.cfg.Observer.TurnClassified(s.id, d)

	switch d.Kind {
	case turn.Partial:
		s.bridge.Send(protocol.NewPartialTranscript(e.Transcript))

	case turn.Duplicate:
		s.logger.Debug("skipping identical transcript", "turn", d.Turn.Seq)

	case turn.Updated:
		s.logger.Info("turn amended", "turn", d.Turn.Seq, "text", e.Transcript)
		s.bridge.Send(protocol.NewTurnUpdated(d.Turn.Seq, e.Transcript, e.Duration()))

	case turn.New:
		s.turns.Add(1)
		s.logger.Info("turn completed", "turn", d.Turn.Seq, "text", e.Transcript)
		s.bridge.Send(protocol.NewTurnCompleted(d.Turn.Seq, e.Transcript, e.Duration()))
		s.bridge.Send(protocol.NewFinalTranscript(d.Turn.Seq, e.Transcript))

		if s.closed.Load() {
			return
		}
		s.workers.Add(1)
		go s.respond(d.Turn)
	}
}
