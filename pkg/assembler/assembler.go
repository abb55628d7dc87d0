package assembler

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/teslashibe/go-vocalix/pkg/audio"
	"github.com/teslashibe/go-vocalix/pkg/tts"
)

// Defaults
const (
	DefaultIdleTimeout        = 1 * time.Second
	DefaultCompleteTimeout    = 90 * time.Second
	DefaultPlaceholderRate    = audio.PlaceholderSampleRate
	DefaultPlaceholderSeconds = audio.PlaceholderSeconds
)

// Config holds assembler settings.
type Config struct {
	// IdleTimeout ends a turn's audio once this long passes after the
	// most recent fragment.
	IdleTimeout time.Duration

	// CompleteTimeout bounds the whole job in Run.
	CompleteTimeout time.Duration

	PlaceholderRate    int
	PlaceholderSeconds float64

	Logger *slog.Logger
}

// Option configures an Assembler.
type Option func(*Config)

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		IdleTimeout:        DefaultIdleTimeout,
		CompleteTimeout:    DefaultCompleteTimeout,
		PlaceholderRate:    DefaultPlaceholderRate,
		PlaceholderSeconds: DefaultPlaceholderSeconds,
		Logger:             slog.Default(),
	}
}

// WithIdleTimeout sets the post-fragment idle window.
func WithIdleTimeout(d time.Duration) Option {
	return func(c *Config) {
		c.IdleTimeout = d
	}
}

// WithCompleteTimeout sets the overall job timeout.
func WithCompleteTimeout(d time.Duration) Option {
	return func(c *Config) {
		c.CompleteTimeout = d
	}
}

// WithPlaceholder sets the placeholder audio format.
func WithPlaceholder(sampleRate int, seconds float64) Option {
	return func(c *Config) {
		c.PlaceholderRate = sampleRate
		c.PlaceholderSeconds = seconds
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.IdleTimeout <= 0 {
		return errors.New("assembler: idle timeout must be positive")
	}
	if c.CompleteTimeout <= 0 {
		return errors.New("assembler: complete timeout must be positive")
	}
	if c.PlaceholderRate <= 0 || c.PlaceholderSeconds <= 0 {
		return errors.New("assembler: placeholder format must be positive")
	}
	return nil
}

// Stats counts finished jobs.
type Stats struct {
	Jobs      int
	Fallbacks int
	Timeouts  int
	Empty     int
}

// Assembler creates jobs that share one configuration.
type Assembler struct {
	cfg    Config
	logger *slog.Logger

	placeholderOnce sync.Once
	placeholder     []byte

	mu    sync.Mutex
	stats Stats
}

// New creates an Assembler.
func New(opts ...Option) (*Assembler, error) {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Assembler{
		cfg:    cfg,
		logger: cfg.Logger.With("component", "assembler"),
	}, nil
}

// Config returns the active configuration.
func (a *Assembler) Config() Config {
	return a.cfg
}

// NewJob prepares the audio job for turn. Nothing happens until Start.
func (a *Assembler) NewJob(turn int, synth tts.Synthesizer, out Sender) *Job {
	return &Job{
		turn:        turn,
		synth:       synth,
		out:         out,
		idle:        a.cfg.IdleTimeout,
		completeIn:  a.cfg.CompleteTimeout,
		placeholder: a.placeholderAudio,
		logger:      a.logger.With("turn", turn),
		onDone:      a.record,
		started:     time.Now(),
		state:       Connecting,
		done:        make(chan struct{}),
	}
}

// Stats returns counters over all finished jobs.
func (a *Assembler) Stats() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stats
}

func (a *Assembler) record(res Result) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stats.Jobs++
	switch {
	case res.Fallback:
		a.stats.Fallbacks++
	case res.Reason == ReasonTimeout:
		a.stats.Timeouts++
	}
	if res.AudioBytes == 0 && res.Reason != ReasonCancelled {
		a.stats.Empty++
	}
}

// placeholderAudio is generated once and shared by every fallback job.
func (a *Assembler) placeholderAudio() []byte {
	a.placeholderOnce.Do(func() {
		a.placeholder = audio.Placeholder(a.cfg.PlaceholderRate, a.cfg.PlaceholderSeconds)
	})
	return a.placeholder
}
