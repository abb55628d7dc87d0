package stt

import (
	"log/slog"
	"time"
)

// Default values for AssemblyAI streaming.
const (
	DefaultURL                   = "wss://streaming.assemblyai.com/v3/ws"
	DefaultSampleRate            = 16000
	DefaultEndOfTurnConfidence   = 0.7
	DefaultMinEndOfTurnSilenceMs = 800
	DefaultMaxTurnSilenceMs      = 1500
	DefaultHandshakeTimeout      = 10 * time.Second
	DefaultWriteTimeout          = 5 * time.Second
)

// Config holds recognizer settings.
type Config struct {
	APIKey  string
	BaseURL string

	SampleRate  int
	Encoding    string
	FormatTurns bool

	// Turn detection
	EndOfTurnConfidence   float64
	MinEndOfTurnSilenceMs int
	MaxTurnSilenceMs      int

	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration

	Logger *slog.Logger
}

// Option configures a recognizer.
type Option func(*Config)

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:               DefaultURL,
		SampleRate:            DefaultSampleRate,
		Encoding:              "pcm_s16le",
		FormatTurns:           true,
		EndOfTurnConfidence:   DefaultEndOfTurnConfidence,
		MinEndOfTurnSilenceMs: DefaultMinEndOfTurnSilenceMs,
		MaxTurnSilenceMs:      DefaultMaxTurnSilenceMs,
		HandshakeTimeout:      DefaultHandshakeTimeout,
		WriteTimeout:          DefaultWriteTimeout,
		Logger:                slog.Default(),
	}
}

// Apply applies options to the config.
func (c *Config) Apply(opts ...Option) {
	for _, opt := range opts {
		opt(c)
	}
}

// WithAPIKey sets the API key.
func WithAPIKey(key string) Option {
	return func(c *Config) {
		c.APIKey = key
	}
}

// WithBaseURL sets the streaming endpoint.
func WithBaseURL(url string) Option {
	return func(c *Config) {
		c.BaseURL = url
	}
}

// WithSampleRate sets the input sample rate.
func WithSampleRate(rate int) Option {
	return func(c *Config) {
		c.SampleRate = rate
	}
}

// WithFormatTurns enables punctuated and cased final transcripts.
func WithFormatTurns(enabled bool) Option {
	return func(c *Config) {
		c.FormatTurns = enabled
	}
}

// WithTurnDetection sets the end-of-turn thresholds.
func WithTurnDetection(confidence float64, minSilenceMs, maxSilenceMs int) Option {
	return func(c *Config) {
		c.EndOfTurnConfidence = confidence
		c.MinEndOfTurnSilenceMs = minSilenceMs
		c.MaxTurnSilenceMs = maxSilenceMs
	}
}

// WithHandshakeTimeout sets the websocket handshake timeout.
func WithHandshakeTimeout(d time.Duration) Option {
	return func(c *Config) {
		c.HandshakeTimeout = d
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}

// Validate checks that required fields are set.
func (c *Config) Validate() error {
	if c.APIKey == "" {
		return ErrMissingAPIKey
	}
	return nil
}
