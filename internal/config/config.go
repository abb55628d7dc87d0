package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete service configuration.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Log         LogConfig         `yaml:"log"`
	Admission   AdmissionConfig   `yaml:"admission"`
	Turn        TurnConfig        `yaml:"turn"`
	Recognition RecognitionConfig `yaml:"recognition"`
	Synthesis   SynthesisConfig   `yaml:"synthesis"`
	Reply       ReplyConfig       `yaml:"reply"`
	Catalog     CatalogConfig     `yaml:"catalog"`
}

// ServerConfig contains the HTTP/websocket listener configuration.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	StaticDir       string        `yaml:"static_dir"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	Debug           bool          `yaml:"debug"`
}

// LogConfig contains logging configuration.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file"`
}

// AdmissionConfig bounds how many replies the process generates per window.
type AdmissionConfig struct {
	MaxRequests int           `yaml:"max_requests"`
	Window      time.Duration `yaml:"window"`
}

// TurnConfig controls turn finalization.
type TurnConfig struct {
	// AmendWindow is how long after finalization a punctuation-only
	// re-emission is treated as an edit of the same turn.
	AmendWindow time.Duration `yaml:"amend_window"`
}

// RecognitionConfig holds streaming speech-recognition parameters.
type RecognitionConfig struct {
	URL                    string  `yaml:"url"`
	SampleRate             int     `yaml:"sample_rate"`
	FormatTurns            bool    `yaml:"format_turns"`
	EndOfTurnConfidence    float64 `yaml:"end_of_turn_confidence_threshold"`
	MinEndOfTurnSilenceMs  int     `yaml:"min_end_of_turn_silence_when_confident"`
	MaxTurnSilenceMs       int     `yaml:"max_turn_silence"`
	PunctuationLevel       string  `yaml:"punctuation_level"`
	EnableExtraSessionInfo bool    `yaml:"enable_extra_session_information"`
}

// SynthesisConfig holds streaming speech-synthesis parameters.
type SynthesisConfig struct {
	URL             string        `yaml:"url"`
	VoiceID         string        `yaml:"voice_id"`
	SampleRate      int           `yaml:"sample_rate"`
	ChannelType     string        `yaml:"channel_type"`
	Format          string        `yaml:"format"`
	Style           string        `yaml:"style"`
	Rate            int           `yaml:"rate"`
	Pitch           int           `yaml:"pitch"`
	Variation       int           `yaml:"variation"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	CompleteTimeout time.Duration `yaml:"complete_timeout"`
}

// ReplyConfig holds reply-generation parameters.
type ReplyConfig struct {
	Model             string        `yaml:"model"`
	FallbackModel     string        `yaml:"fallback_model"`
	AwaitTimeout      time.Duration `yaml:"await_timeout"`
	MaxToolIterations int           `yaml:"max_tool_iterations"`
}

// CatalogConfig configures the voice-catalog endpoint.
type CatalogConfig struct {
	URL        string `yaml:"url"`
	MurfAPIKey string `yaml:"murf_api_key"`
}

// Default returns the configuration used when no file is supplied.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            DefaultPort,
			StaticDir:       "static",
			ShutdownTimeout: 10 * time.Second,
		},
		Log: LogConfig{
			Level: DefaultLogLevel,
		},
		Admission: AdmissionConfig{
			MaxRequests: 40,
			Window:      24 * time.Hour,
		},
		Turn: TurnConfig{
			AmendWindow: 2 * time.Second,
		},
		Recognition: RecognitionConfig{
			URL:                    "wss://streaming.assemblyai.com/v3/ws",
			SampleRate:             16000,
			FormatTurns:            true,
			EndOfTurnConfidence:    0.7,
			MinEndOfTurnSilenceMs:  800,
			MaxTurnSilenceMs:       1500,
			PunctuationLevel:       "high",
			EnableExtraSessionInfo: true,
		},
		Synthesis: SynthesisConfig{
			URL:             "wss://api.murf.ai/v1/speech/stream-input",
			VoiceID:         DefaultVoiceID,
			SampleRate:      44100,
			ChannelType:     "MONO",
			Format:          "WAV",
			Style:           "Conversational",
			Variation:       1,
			IdleTimeout:     time.Second,
			CompleteTimeout: 90 * time.Second,
		},
		Reply: ReplyConfig{
			Model:             DefaultModel,
			FallbackModel:     DefaultFallbackModel,
			AwaitTimeout:      120 * time.Second,
			MaxToolIterations: 5,
		},
		Catalog: CatalogConfig{
			URL: "https://api.murf.ai/v1/speech/voices",
		},
	}
}

// Load reads path on top of the defaults. A missing file is not an error
// when path is empty.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	cfg.ApplyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// Validate checks every section.
func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server config: %w", err)
	}
	if err := c.Admission.Validate(); err != nil {
		return fmt.Errorf("admission config: %w", err)
	}
	if err := c.Turn.Validate(); err != nil {
		return fmt.Errorf("turn config: %w", err)
	}
	if err := c.Recognition.Validate(); err != nil {
		return fmt.Errorf("recognition config: %w", err)
	}
	if err := c.Synthesis.Validate(); err != nil {
		return fmt.Errorf("synthesis config: %w", err)
	}
	if err := c.Reply.Validate(); err != nil {
		return fmt.Errorf("reply config: %w", err)
	}
	if c.Reply.AwaitTimeout < c.Synthesis.CompleteTimeout {
		return fmt.Errorf("reply config: await_timeout %s must not be shorter than synthesis complete_timeout %s",
			c.Reply.AwaitTimeout, c.Synthesis.CompleteTimeout)
	}
	return nil
}

// Validate validates server configuration.
func (s *ServerConfig) Validate() error {
	if s.Port < 1 || s.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", s.Port)
	}
	return nil
}

// Validate validates admission configuration.
func (a *AdmissionConfig) Validate() error {
	if a.MaxRequests < 1 {
		return fmt.Errorf("max_requests must be at least 1, got %d", a.MaxRequests)
	}
	if a.Window <= 0 {
		return fmt.Errorf("window must be positive, got %s", a.Window)
	}
	return nil
}

// Validate validates turn configuration.
func (t *TurnConfig) Validate() error {
	if t.AmendWindow < 0 {
		return fmt.Errorf("amend_window cannot be negative, got %s", t.AmendWindow)
	}
	return nil
}

// Validate validates recognition configuration.
func (r *RecognitionConfig) Validate() error {
	if r.URL == "" {
		return errors.New("url cannot be empty")
	}
	if r.SampleRate <= 0 {
		return fmt.Errorf("sample_rate must be positive, got %d", r.SampleRate)
	}
	if r.EndOfTurnConfidence < 0 || r.EndOfTurnConfidence > 1 {
		return fmt.Errorf("end_of_turn_confidence_threshold must be between 0 and 1, got %f", r.EndOfTurnConfidence)
	}
	return nil
}

// Validate validates synthesis configuration.
func (s *SynthesisConfig) Validate() error {
	if s.URL == "" {
		return errors.New("url cannot be empty")
	}
	if s.VoiceID == "" {
		return errors.New("voice_id cannot be empty")
	}
	if !strings.EqualFold(s.Format, "WAV") {
		return fmt.Errorf("format must be WAV, got %q", s.Format)
	}
	if s.SampleRate <= 0 {
		return fmt.Errorf("sample_rate must be positive, got %d", s.SampleRate)
	}
	if s.IdleTimeout <= 0 {
		return fmt.Errorf("idle_timeout must be positive, got %s", s.IdleTimeout)
	}
	if s.CompleteTimeout <= 0 {
		return fmt.Errorf("complete_timeout must be positive, got %s", s.CompleteTimeout)
	}
	return nil
}

// Validate validates reply configuration.
func (r *ReplyConfig) Validate() error {
	if r.Model == "" {
		return errors.New("model cannot be empty")
	}
	if r.AwaitTimeout <= 0 {
		return fmt.Errorf("await_timeout must be positive, got %s", r.AwaitTimeout)
	}
	if r.MaxToolIterations < 1 {
		return fmt.Errorf("max_tool_iterations must be at least 1, got %d", r.MaxToolIterations)
	}
	return nil
}
