// Package relay runs live voice sessions: it feeds client audio to a
// recognizer, turns finalized utterances into replies, and streams one
// synthesized audio payload per turn back to the client.
//
// Each connection gets a Session. All writes to the client go through the
// session's bridge; recognizer callbacks and per-turn workers never touch
// the connection directly.
package relay

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/teslashibe/go-vocalix/pkg/admission"
	"github.com/teslashibe/go-vocalix/pkg/assembler"
	"github.com/teslashibe/go-vocalix/pkg/bridge"
	"github.com/teslashibe/go-vocalix/pkg/protocol"
	"github.com/teslashibe/go-vocalix/pkg/turn"
)

// Defaults.
const (
	// DefaultAwaitTimeout bounds how long a worker waits for a turn's
	// audio before reporting the turn complete anyway.
	DefaultAwaitTimeout = 120 * time.Second

	// DefaultReplyTimeout bounds one reply generation.
	DefaultReplyTimeout = 120 * time.Second
)

// Client-facing texts.
const (
	QuotaMessage      = "Daily quota limit reached. Try again tomorrow!"
	ReplyErrorMessage = "I apologize, but I'm experiencing technical difficulties. Please try again."
)

// Config configures a Relay.
type Config struct {
	Providers    Providers
	Gate         *admission.Gate
	Assembler    *assembler.Assembler
	AmendWindow  time.Duration
	AwaitTimeout time.Duration
	ReplyTimeout time.Duration
	Observer     Observer
	Logger       *slog.Logger
}

// Option configures a Relay.
type Option func(*Config)

// WithProviders sets the per-session client factory.
func WithProviders(p Providers) Option {
	return func(c *Config) { c.Providers = p }
}

// WithGate sets the shared admission gate.
func WithGate(g *admission.Gate) Option {
	return func(c *Config) { c.Gate = g }
}

// WithAssembler sets the audio assembler.
func WithAssembler(a *assembler.Assembler) Option {
	return func(c *Config) { c.Assembler = a }
}

// WithAmendWindow sets the punctuation amendment window of new ledgers.
func WithAmendWindow(d time.Duration) Option {
	return func(c *Config) { c.AmendWindow = d }
}

// WithAwaitTimeout bounds the wait for a turn's audio.
func WithAwaitTimeout(d time.Duration) Option {
	return func(c *Config) { c.AwaitTimeout = d }
}

// WithReplyTimeout bounds one reply generation.
func WithReplyTimeout(d time.Duration) Option {
	return func(c *Config) { c.ReplyTimeout = d }
}

// WithObserver receives session and turn events.
func WithObserver(o Observer) Option {
	return func(c *Config) { c.Observer = o }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Config) { c.Logger = logger }
}

// Relay owns every live session of the process.
type Relay struct {
	cfg    Config
	logger *slog.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
}

// New creates a Relay.
func New(opts ...Option) (*Relay, error) {
	cfg := Config{
		AmendWindow:  turn.DefaultAmendWindow,
		AwaitTimeout: DefaultAwaitTimeout,
		ReplyTimeout: DefaultReplyTimeout,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Providers == nil {
		return nil, ErrNoProviders
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Gate == nil {
		cfg.Gate = admission.New(admission.DefaultMaxRequests, admission.DefaultWindow)
	}
	if cfg.Assembler == nil {
		a, err := assembler.New(assembler.WithLogger(cfg.Logger))
		if err != nil {
			return nil, err
		}
		cfg.Assembler = a
	}
	if cfg.Observer == nil {
		cfg.Observer = Observers(nil)
	}

	return &Relay{
		cfg:      cfg,
		logger:   cfg.Logger.With("component", "relay"),
		sessions: make(map[string]*Session),
	}, nil
}

// Open starts a session on conn with the credentials of the client's
// key-configuration message. It sends connection_established and starts
// recognition.
//
// Without a recognizer credential it sends an error message, closes the
// connection with a policy-violation code and returns
// ErrMissingRecognizerKey.
func (r *Relay) Open(ctx context.Context, conn bridge.Conn, keys map[string]string) (*Session, error) {
	id := uuid.NewString()
	logger := r.logger.With("session", id)
	b := bridge.New(ctx, conn, logger)

	recognizer, err := r.cfg.Providers.Recognizer(keys)
	if err != nil {
		logger.Warn("recognizer unavailable", "error", err)
		msg := "Failed to connect to speech recognition service: " + err.Error()
		if errors.Is(err, ErrMissingRecognizerKey) {
			msg = "AssemblyAI API key not provided."
		}
		b.Send(protocol.Error{Type: protocol.TypeError, Message: msg})
		_, _ = b.CloseWith(closePolicyViolation, "").Await(closeWait)
		b.Close()
		return nil, err
	}

	synth, err := r.cfg.Providers.Synthesizer(keys)
	if err != nil {
		logger.Warn("synthesizer unavailable, turns will use placeholder audio", "error", err)
		synth = unavailableSynth{err: err}
	}
	replier, err := r.cfg.Providers.Replier(keys)
	if err != nil {
		logger.Warn("reply generator unavailable", "error", err)
	}

	s := &Session{
		id:         id,
		relay:      r,
		bridge:     b,
		ledger:     turn.NewLedger(turn.WithAmendWindow(r.cfg.AmendWindow)),
		synth:      synth,
		replier:    replier,
		replierErr: err,
		tools:      r.cfg.Providers.Tools(keys),
		logger:     logger,
		created:    time.Now(),
	}

	r.mu.Lock()
	r.sessions[id] = s
	r.mu.Unlock()

	r.cfg.Observer.SessionOpened(s.Info())

	if err := s.start(recognizer); err != nil {
		s.Close()
		return nil, err
	}
	logger.Info("session opened")
	return s, nil
}

// Get returns the live session with id.
func (r *Relay) Get(id string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Count returns the number of live sessions.
func (r *Relay) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Sessions returns a snapshot of every live session, oldest first.
func (r *Relay) Sessions() []Info {
	r.mu.RLock()
	infos := make([]Info, 0, len(r.sessions))
	for _, s := range r.sessions {
		infos = append(infos, s.Info())
	}
	r.mu.RUnlock()

	sort.Slice(infos, func(i, j int) bool {
		return infos[i].Connected.Before(infos[j].Connected)
	})
	return infos
}

// Admission returns the shared gate usage.
func (r *Relay) Admission() admission.Stats {
	return r.cfg.Gate.Stats()
}

// AudioStats returns audio assembler counters.
func (r *Relay) AudioStats() assembler.Stats {
	return r.cfg.Assembler.Stats()
}

// Shutdown closes every live session.
func (r *Relay) Shutdown() {
	r.mu.RLock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.mu.RUnlock()

	for _, s := range sessions {
		s.Close()
	}
}

func (r *Relay) remove(s *Session) {
	r.mu.Lock()
	delete(r.sessions, s.id)
	r.mu.Unlock()
}
