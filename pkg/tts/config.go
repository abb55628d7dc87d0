package tts

import (
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Config holds TTS provider configuration.
// Use functional options (WithXxx) to set these values.
type Config struct {
	// Provider credentials
	APIKey  string
	BaseURL string

	// Voice configuration
	VoiceID       string
	VoiceSettings VoiceSettings

	// Audio output
	OutputFormat Encoding
	SampleRate   int
	ChannelType  ChannelType

	// Timeouts
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration

	// FragmentBuffer is the capacity of the Fragments channel.
	FragmentBuffer int

	// Observability
	Logger *slog.Logger
}

// Option is a functional option for configuring TTS providers.
type Option func(*Config)

// WithAPIKey sets the API key for the provider.
func WithAPIKey(key string) Option {
	return func(c *Config) {
		c.APIKey = key
	}
}

// WithBaseURL overrides the default API base URL.
func WithBaseURL(url string) Option {
	return func(c *Config) {
		c.BaseURL = url
	}
}

// WithVoice sets the voice ID.
func WithVoice(voiceID string) Option {
	return func(c *Config) {
		c.VoiceID = voiceID
	}
}

// WithVoiceSettings sets voice characteristics.
func WithVoiceSettings(settings VoiceSettings) Option {
	return func(c *Config) {
		c.VoiceSettings = settings
	}
}

// WithOutputFormat sets the audio output format.
func WithOutputFormat(format Encoding) Option {
	return func(c *Config) {
		c.OutputFormat = format
	}
}

// WithSampleRate sets the output sample rate in Hz.
func WithSampleRate(rate int) Option {
	return func(c *Config) {
		c.SampleRate = rate
	}
}

// WithChannelType sets mono or stereo output.
func WithChannelType(ct ChannelType) Option {
	return func(c *Config) {
		c.ChannelType = ct
	}
}

// WithHandshakeTimeout bounds the websocket handshake.
func WithHandshakeTimeout(timeout time.Duration) Option {
	return func(c *Config) {
		c.HandshakeTimeout = timeout
	}
}

// WithLogger sets the structured logger for the provider.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}

// DefaultConfig returns sensible default configuration.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:          murfStreamURL,
		VoiceID:          DefaultMurfVoice,
		VoiceSettings:    DefaultVoiceSettings(),
		OutputFormat:     EncodingWAV,
		SampleRate:       44100,
		ChannelType:      ChannelMono,
		HandshakeTimeout: 10 * time.Second,
		WriteTimeout:     10 * time.Second,
		FragmentBuffer:   64,
		Logger:           slog.Default(),
	}
}

// Apply applies functional options to the config.
func (c *Config) Apply(opts ...Option) {
	for _, opt := range opts {
		opt(c)
	}
}

// Validate checks that required configuration is present.
func (c *Config) Validate() error {
	if c.APIKey == "" {
		return ErrNoAPIKey
	}
	if !strings.EqualFold(string(c.OutputFormat), string(EncodingWAV)) {
		return fmt.Errorf("%w: %q", ErrUnsupportedFormat, c.OutputFormat)
	}
	return nil
}

// ValidateWithVoice checks that both API key and voice ID are present.
func (c *Config) ValidateWithVoice() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.VoiceID == "" {
		return ErrNoVoiceID
	}
	return nil
}
