package inference

import (
	"log/slog"
	"time"
)

// Defaults for the Gemini provider.
const (
	DefaultModel             = "gemini-2.5-flash"
	DefaultFallbackModel     = "gemini-2.0-flash"
	DefaultMaxToolIterations = 5
)

// Config holds provider configuration.
type Config struct {
	// Connection
	BaseURL string // API base URL; empty uses the SDK default
	APIKey  string

	// Model
	Model        string
	SystemPrompt string

	// Request defaults
	MaxTokens   int
	Temperature float64

	// MaxToolIterations bounds the tool-call loop. Once reached the model
	// is asked to answer without tools.
	MaxToolIterations int

	// Timeout bounds each generation request.
	Timeout time.Duration

	// Observability
	Logger *slog.Logger
}

// Option is a functional option for configuring providers.
type Option func(*Config)

// WithBaseURL sets the API base URL.
func WithBaseURL(url string) Option {
	return func(c *Config) { c.BaseURL = url }
}

// WithAPIKey sets the API key.
func WithAPIKey(key string) Option {
	return func(c *Config) { c.APIKey = key }
}

// WithModel sets the default model.
func WithModel(model string) Option {
	return func(c *Config) { c.Model = model }
}

// WithSystemPrompt sets the system instruction.
func WithSystemPrompt(prompt string) Option {
	return func(c *Config) { c.SystemPrompt = prompt }
}

// WithMaxTokens sets the default max tokens.
func WithMaxTokens(n int) Option {
	return func(c *Config) { c.MaxTokens = n }
}

// WithTemperature sets the default temperature.
func WithTemperature(t float64) Option {
	return func(c *Config) { c.Temperature = t }
}

// WithMaxToolIterations bounds the tool-call loop.
func WithMaxToolIterations(n int) Option {
	return func(c *Config) { c.MaxToolIterations = n }
}

// WithTimeout sets the request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Config) { c.Timeout = d }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

// DefaultConfig returns sensible defaults for Gemini.
func DefaultConfig() *Config {
	return &Config{
		Model:             DefaultModel,
		SystemPrompt:      Persona,
		MaxTokens:         1024,
		Temperature:       0.7,
		MaxToolIterations: DefaultMaxToolIterations,
		Timeout:           60 * time.Second,
		Logger:            slog.Default(),
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
	if c.Model == "" {
		return ErrNoModel
	}
	return nil
}
