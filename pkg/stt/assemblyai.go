package stt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// terminateWait bounds how long Close waits for the provider's
// Termination event before dropping the connection.
const terminateWait = 2 * time.Second

// AssemblyAI implements Recognizer for AssemblyAI universal streaming (v3).
type AssemblyAI struct {
	config *Config
	logger *slog.Logger
}

// NewAssemblyAI creates a new AssemblyAI recognizer.
func NewAssemblyAI(opts ...Option) (*AssemblyAI, error) {
	cfg := DefaultConfig()
	cfg.Apply(opts...)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &AssemblyAI{
		config: cfg,
		logger: cfg.Logger.With("component", "stt.assemblyai"),
	}, nil
}

// streamURL builds the websocket URL with the session parameters.
func (a *AssemblyAI) streamURL() (string, error) {
	u, err := url.Parse(a.config.BaseURL)
	if err != nil {
		return "", fmt.Errorf("stt: invalid URL: %w", err)
	}
	q := u.Query()
	q.Set("sample_rate", strconv.Itoa(a.config.SampleRate))
	q.Set("encoding", a.config.Encoding)
	q.Set("format_turns", strconv.FormatBool(a.config.FormatTurns))
	q.Set("end_of_turn_confidence_threshold", strconv.FormatFloat(a.config.EndOfTurnConfidence, 'f', -1, 64))
	q.Set("min_end_of_turn_silence_when_confident", strconv.Itoa(a.config.MinEndOfTurnSilenceMs))
	q.Set("max_turn_silence", strconv.Itoa(a.config.MaxTurnSilenceMs))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Open connects and starts delivering events to h.
func (a *AssemblyAI) Open(ctx context.Context, h Handlers) (Session, error) {
	wsURL, err := a.streamURL()
	if err != nil {
		return nil, err
	}

	headers := http.Header{}
	headers.Set("Authorization", a.config.APIKey)

	dialer := websocket.Dialer{
		HandshakeTimeout: a.config.HandshakeTimeout,
	}

	a.logger.Info("connecting to AssemblyAI streaming",
		"sample_rate", a.config.SampleRate,
		"format_turns", a.config.FormatTurns,
	)

	conn, resp, err := dialer.DialContext(ctx, wsURL, headers)
	if err != nil {
		if resp != nil {
			if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
				return nil, &APIError{StatusCode: resp.StatusCode, Message: "authentication failed"}
			}
			return nil, NewConnectionError(
				fmt.Sprintf("dial failed with status %d", resp.StatusCode),
				err,
				resp.StatusCode >= 500,
			)
		}
		return nil, NewConnectionError("dial failed", err, true)
	}

	s := &assemblySession{
		conn:         conn,
		handlers:     h,
		logger:       a.logger,
		writeTimeout: a.config.WriteTimeout,
		done:         make(chan struct{}),
	}
	go s.readLoop()

	return s, nil
}

type assemblySession struct {
	conn         *websocket.Conn
	handlers     Handlers
	logger       *slog.Logger
	writeTimeout time.Duration

	writeMu sync.Mutex
	closing atomic.Bool
	once    sync.Once
	done    chan struct{}

	chunksSent atomic.Int64
}

// SendAudio forwards one binary audio frame.
func (s *assemblySession) SendAudio(pcm []byte) error {
	if s.closing.Load() {
		return ErrNotConnected
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	_ = s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
	if err := s.conn.WriteMessage(websocket.BinaryMessage, pcm); err != nil {
		return NewConnectionError("send audio failed", err, true)
	}
	s.chunksSent.Add(1)
	return nil
}

// Close sends Terminate, waits briefly for the Termination event and
// closes the connection.
func (s *assemblySession) Close() error {
	s.once.Do(func() {
		s.closing.Store(true)

		s.writeMu.Lock()
		_ = s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
		err := s.conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"Terminate"}`))
		s.writeMu.Unlock()

		if err == nil {
			select {
			case <-s.done:
			case <-time.After(terminateWait):
				s.logger.Debug("termination not acknowledged, closing")
			}
		}
		s.conn.Close()
		<-s.done

		s.logger.Info("recognition session closed", "chunks_sent", s.chunksSent.Load())
	})
	return nil
}

// Done is closed when the read loop exits.
func (s *assemblySession) Done() <-chan struct{} {
	return s.done
}

func (s *assemblySession) readLoop() {
	defer close(s.done)

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if s.closing.Load() || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return
			}
			var closeErr *websocket.CloseError
			if errors.As(err, &closeErr) {
				s.emitError(&APIError{Message: fmt.Sprintf("session closed (%d): %s", closeErr.Code, closeErr.Text)})
				return
			}
			s.emitError(NewConnectionError("read failed", err, true))
			return
		}

		var msg incoming
		if err := json.Unmarshal(data, &msg); err != nil {
			s.logger.Warn("failed to parse message", "error", err)
			continue
		}
		if s.handle(msg) {
			return
		}
	}
}

// handle dispatches one message. It reports true once the session ended.
func (s *assemblySession) handle(msg incoming) bool {
	if msg.Error != "" {
		s.emitError(&APIError{Message: msg.Error})
		return false
	}

	switch msg.Type {
	case "Begin":
		s.logger.Info("recognition session started", "id", msg.ID)
		if fn := s.handlers.OnBegin; fn != nil {
			fn(BeginEvent{ID: msg.ID, ExpiresAt: msg.ExpiresAt})
		}

	case "Turn":
		if fn := s.handlers.OnTurn; fn != nil {
			ev := TurnEvent{
				Order:      msg.TurnOrder,
				Transcript: msg.Transcript,
				EndOfTurn:  msg.EndOfTurn,
				Formatted:  msg.TurnIsFormatted,
				Confidence: msg.EndOfTurnConfidence,
			}
			for _, w := range msg.Words {
				ev.Words = append(ev.Words, Word{
					Text:       w.Text,
					Start:      w.Start,
					End:        w.End,
					Confidence: w.Confidence,
					Final:      w.WordIsFinal,
				})
			}
			fn(ev)
		}

	case "Termination":
		s.logger.Info("recognition session terminated", "audio_seconds", msg.AudioDurationSeconds)
		if fn := s.handlers.OnTermination; fn != nil {
			fn(TerminationEvent{
				AudioSeconds:   msg.AudioDurationSeconds,
				SessionSeconds: msg.SessionDurationSeconds,
			})
		}
		return true

	default:
		s.logger.Debug("unhandled message type", "type", msg.Type)
	}
	return false
}

func (s *assemblySession) emitError(err error) {
	s.logger.Error("recognition error", "error", err)
	if fn := s.handlers.OnError; fn != nil {
		fn(err)
	}
}

// Message types for the AssemblyAI v3 API

type incoming struct {
	Type  string `json:"type"`
	Error string `json:"error,omitempty"`

	// Begin
	ID        string `json:"id,omitempty"`
	ExpiresAt int64  `json:"expires_at,omitempty"`

	// Turn
	TurnOrder           int         `json:"turn_order,omitempty"`
	TurnIsFormatted     bool        `json:"turn_is_formatted,omitempty"`
	EndOfTurn           bool        `json:"end_of_turn,omitempty"`
	Transcript          string      `json:"transcript,omitempty"`
	EndOfTurnConfidence float64     `json:"end_of_turn_confidence,omitempty"`
	Words               []wordEvent `json:"words,omitempty"`

	// Termination
	AudioDurationSeconds   float64 `json:"audio_duration_seconds,omitempty"`
	SessionDurationSeconds float64 `json:"session_duration_seconds,omitempty"`
}

type wordEvent struct {
	Text        string  `json:"text"`
	Start       int     `json:"start"`
	End         int     `json:"end"`
	Confidence  float64 `json:"confidence"`
	WordIsFinal bool    `json:"word_is_final"`
}

// Ensure AssemblyAI implements Recognizer.
var (
	_ Recognizer = (*AssemblyAI)(nil)
	_ Session    = (*assemblySession)(nil)
)
