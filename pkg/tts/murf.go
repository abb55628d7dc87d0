package tts

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	murfStreamURL = "wss://api.murf.ai/v1/speech/stream-input"
	providerMurf  = "murf"
)

// Murf implements Synthesizer over the Murf stream-input websocket.
type Murf struct {
	config *Config
	logger *slog.Logger
}

// NewMurf creates a Murf synthesizer.
func NewMurf(opts ...Option) (*Murf, error) {
	cfg := DefaultConfig()
	cfg.Apply(opts...)

	if err := cfg.ValidateWithVoice(); err != nil {
		return nil, err
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Murf{
		config: cfg,
		logger: cfg.Logger.With("component", "tts.murf"),
	}, nil
}

type murfVoiceConfig struct {
	VoiceConfig struct {
		VoiceID   string `json:"voiceId"`
		Style     string `json:"style,omitempty"`
		Rate      int    `json:"rate"`
		Pitch     int    `json:"pitch"`
		Variation int    `json:"variation"`
	} `json:"voice_config"`
}

type murfText struct {
	Text string `json:"text"`
	End  bool   `json:"end"`
}

type murfResponse struct {
	Audio   string `json:"audio"`
	Final   bool   `json:"final"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (m *Murf) streamURL() (string, error) {
	u, err := url.Parse(m.config.BaseURL)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	q := u.Query()
	q.Set("api-key", m.config.APIKey)
	q.Set("sample_rate", strconv.Itoa(m.config.SampleRate))
	q.Set("channel_type", string(m.config.ChannelType))
	q.Set("format", string(m.config.OutputFormat))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Open dials the provider and sends the voice configuration.
func (m *Murf) Open(ctx context.Context) (Stream, error) {
	u, err := m.streamURL()
	if err != nil {
		return nil, WrapError(providerMurf, err)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: m.config.HandshakeTimeout,
	}
	conn, resp, err := dialer.DialContext(ctx, u, nil)
	if err != nil {
		if resp != nil {
			return nil, &APIError{
				StatusCode: resp.StatusCode,
				Message:    err.Error(),
				Provider:   providerMurf,
			}
		}
		return nil, WrapError(providerMurf, fmt.Errorf("%w: %v", ErrProviderUnavailable, err))
	}

	var vc murfVoiceConfig
	vc.VoiceConfig.VoiceID = m.config.VoiceID
	vc.VoiceConfig.Style = m.config.VoiceSettings.Style
	vc.VoiceConfig.Rate = m.config.VoiceSettings.Rate
	vc.VoiceConfig.Pitch = m.config.VoiceSettings.Pitch
	vc.VoiceConfig.Variation = m.config.VoiceSettings.Variation

	s := &murfStream{
		conn:         conn,
		logger:       m.logger,
		writeTimeout: m.config.WriteTimeout,
		frags:        make(chan Fragment, m.config.FragmentBuffer),
		closed:       make(chan struct{}),
	}
	if err := s.writeJSON(vc); err != nil {
		conn.Close()
		return nil, WrapError(providerMurf, fmt.Errorf("send voice config: %w", err))
	}

	m.logger.Debug("stream opened", "voice", m.config.VoiceID)
	go s.readLoop()
	return s, nil
}

type murfStream struct {
	conn         *websocket.Conn
	logger       *slog.Logger
	writeTimeout time.Duration

	writeMu sync.Mutex
	frags   chan Fragment

	closeOnce sync.Once
	closed    chan struct{}
}

func (s *murfStream) writeJSON(v any) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	select {
	case <-s.closed:
		return ErrStreamClosed
	default:
	}
	if s.writeTimeout > 0 {
		_ = s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
	}
	return s.conn.WriteJSON(v)
}

// SendText pushes a text chunk.
func (s *murfStream) SendText(text string, end bool) error {
	if err := s.writeJSON(murfText{Text: text, End: end}); err != nil {
		return WrapError(providerMurf, err)
	}
	s.logger.Debug("text sent", "chars", len(text), "end", end)
	return nil
}

// Fragments returns the audio channel.
func (s *murfStream) Fragments() <-chan Fragment {
	return s.frags
}

// readLoop decodes provider messages until the stream ends.
func (s *murfStream) readLoop() {
	defer close(s.frags)

	for {
		_, message, err := s.conn.ReadMessage()
		if err != nil {
			select {
			case <-s.closed:
			default:
				if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					s.logger.Warn("read error", "error", err)
				}
			}
			return
		}

		var resp murfResponse
		if err := json.Unmarshal(message, &resp); err != nil {
			s.logger.Warn("failed to parse response", "error", err)
			continue
		}
		if resp.Error != "" {
			s.logger.Warn("provider error", "error", resp.Error, "message", resp.Message)
			continue
		}

		var f Fragment
		if resp.Audio != "" {
			audio, err := base64.StdEncoding.DecodeString(resp.Audio)
			if err != nil {
				s.logger.Warn("failed to decode audio", "error", err)
				continue
			}
			f.Audio = audio
		}
		f.Final = resp.Final
		if len(f.Audio) == 0 && !f.Final {
			continue
		}

		select {
		case s.frags <- f:
		case <-s.closed:
			return
		}
		if f.Final {
			return
		}
	}
}

// Close terminates the websocket connection.
func (s *murfStream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.writeMu.Lock()
		close(s.closed)
		_ = s.conn.SetWriteDeadline(time.Now().Add(time.Second))
		_ = s.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		s.writeMu.Unlock()
		err = s.conn.Close()
	})
	return err
}

// Verify Murf implements Synthesizer at compile time.
var _ Synthesizer = (*Murf)(nil)
