package relay

import (
	"context"
	"log/slog"

	"github.com/teslashibe/go-vocalix/internal/config"
	"github.com/teslashibe/go-vocalix/pkg/inference"
	"github.com/teslashibe/go-vocalix/pkg/protocol"
	"github.com/teslashibe/go-vocalix/pkg/stt"
	"github.com/teslashibe/go-vocalix/pkg/tools"
	"github.com/teslashibe/go-vocalix/pkg/tts"
)

// Providers builds the external clients of one session from the
// credentials the client sent in its key-configuration message.
type Providers interface {
	Recognizer(keys map[string]string) (stt.Recognizer, error)
	Synthesizer(keys map[string]string) (tts.Synthesizer, error)
	Replier(keys map[string]string) (inference.Provider, error)
	Tools(keys map[string]string) []inference.Tool
}

// ConfigProviders builds the production clients described by the service
// configuration: AssemblyAI, Murf and a Gemini chain.
type ConfigProviders struct {
	cfg    *config.Config
	logger *slog.Logger
}

// NewProviders creates providers from cfg.
func NewProviders(cfg *config.Config, logger *slog.Logger) *ConfigProviders {
	if logger == nil {
		logger = slog.Default()
	}
	return &ConfigProviders{cfg: cfg, logger: logger}
}

// Recognizer returns an AssemblyAI streaming recognizer.
func (p *ConfigProviders) Recognizer(keys map[string]string) (stt.Recognizer, error) {
	key := keys[protocol.KeyAssemblyAI]
	if key == "" {
		return nil, ErrMissingRecognizerKey
	}
	rc := p.cfg.Recognition
	return stt.NewAssemblyAI(
		stt.WithAPIKey(key),
		stt.WithBaseURL(rc.URL),
		stt.WithSampleRate(rc.SampleRate),
		stt.WithFormatTurns(rc.FormatTurns),
		stt.WithTurnDetection(rc.EndOfTurnConfidence, rc.MinEndOfTurnSilenceMs, rc.MaxTurnSilenceMs),
		stt.WithLogger(p.logger),
	)
}

// Synthesizer returns a Murf stream-input synthesizer.
func (p *ConfigProviders) Synthesizer(keys map[string]string) (tts.Synthesizer, error) {
	sc := p.cfg.Synthesis
	return tts.NewMurf(
		tts.WithAPIKey(keys[protocol.KeyMurf]),
		tts.WithBaseURL(sc.URL),
		tts.WithVoice(sc.VoiceID),
		tts.WithVoiceSettings(tts.VoiceSettings{
			Style:     sc.Style,
			Rate:      sc.Rate,
			Pitch:     sc.Pitch,
			Variation: sc.Variation,
		}),
		tts.WithSampleRate(sc.SampleRate),
		tts.WithChannelType(tts.ChannelType(sc.ChannelType)),
		tts.WithOutputFormat(tts.Encoding(sc.Format)),
		tts.WithLogger(p.logger),
	)
}

// Replier returns the primary Gemini model backed by the fallback model.
func (p *ConfigProviders) Replier(keys map[string]string) (inference.Provider, error) {
	key := keys[protocol.KeyGemini]
	if key == "" {
		return nil, ErrMissingReplyKey
	}
	rc := p.cfg.Reply

	models := []string{rc.Model}
	if rc.FallbackModel != "" && rc.FallbackModel != rc.Model {
		models = append(models, rc.FallbackModel)
	}

	providers := make([]inference.Provider, 0, len(models))
	for _, model := range models {
		g, err := inference.NewGemini(
			inference.WithAPIKey(key),
			inference.WithModel(model),
			inference.WithSystemPrompt(inference.Persona),
			inference.WithMaxToolIterations(rc.MaxToolIterations),
			inference.WithLogger(p.logger),
		)
		if err != nil {
			return nil, err
		}
		providers = append(providers, g)
	}
	return inference.NewChainWithLogger(p.logger, providers...)
}

// Tools returns the tool set for the supplied credentials.
func (p *ConfigProviders) Tools(keys map[string]string) []inference.Tool {
	return tools.Set(tools.FromKeys(keys, tools.WithLogger(p.logger)))
}

// unavailableSynth stands in when no synthesizer could be built. Every
// job it serves degrades to placeholder audio.
type unavailableSynth struct {
	err error
}

func (u unavailableSynth) Open(context.Context) (tts.Stream, error) {
	return nil, u.err
}

var _ Providers = (*ConfigProviders)(nil)
