package tts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/teslashibe/go-vocalix/internal/httpc"
)

const murfVoicesURL = "https://api.murf.ai/v1/speech/voices"

// MurfVoices maps friendly preset names to Murf voice IDs.
// Use ResolveVoice to look up a voice by name or pass through raw IDs.
var MurfVoices = map[string]string{
	"terrell": "en-US-terrell", // American male, warm
	"natalie": "en-US-natalie", // American female, clear
	"ken":     "en-US-ken",     // American male, conversational
	"julia":   "en-US-julia",   // American female, soft
	"hazel":   "en-UK-hazel",   // British female, calm
	"theo":    "en-UK-theo",    // British male, measured
}

// DefaultMurfVoice is the voice used when none is configured.
const DefaultMurfVoice = "en-US-terrell"

// ResolveVoice returns the voice ID for a preset name,
// or the input unchanged if it's already a voice ID.
func ResolveVoice(name string) string {
	if id, ok := MurfVoices[name]; ok {
		return id
	}
	return name
}

// Voice is one entry of the provider's voice catalog.
type Voice struct {
	VoiceID string
	Name    string
	Gender  string
	Locale  string
}

type murfVoice struct {
	VoiceID     string `json:"voiceId"`
	DisplayName string `json:"displayName"`
	Name        string `json:"name"`
	Gender      string `json:"gender"`
	Locale      string `json:"locale"`
}

// Catalog lists the voices available to an account.
type Catalog struct {
	apiKey string
	url    string
	client *http.Client
	logger *slog.Logger
}

// NewCatalog creates a catalog client. baseURL may be empty for the
// public endpoint.
func NewCatalog(apiKey, baseURL string, logger *slog.Logger) *Catalog {
	if baseURL == "" {
		baseURL = murfVoicesURL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Catalog{
		apiKey: apiKey,
		url:    baseURL,
		client: httpc.Client,
		logger: logger.With("component", "tts.catalog"),
	}
}

// List fetches the voice catalog.
func (c *Catalog) List(ctx context.Context) ([]Voice, error) {
	if c.apiKey == "" {
		return nil, ErrNoAPIKey
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, WrapError(providerMurf, err)
	}
	req.Header.Set("api-key", c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, WrapError(providerMurf, fmt.Errorf("%w: %v", ErrProviderUnavailable, err))
	}
	body, err := httpc.ReadBody(resp)
	if err != nil {
		var se *httpc.StatusError
		if errors.As(err, &se) {
			return nil, &APIError{StatusCode: se.StatusCode, Message: se.Body, Provider: providerMurf}
		}
		return nil, WrapError(providerMurf, err)
	}

	var raw []murfVoice
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, WrapError(providerMurf, fmt.Errorf("decode voices: %w", err))
	}

	voices := make([]Voice, 0, len(raw))
	for _, v := range raw {
		name := v.DisplayName
		if name == "" {
			name = v.Name
		}
		if name == "" {
			name = v.VoiceID
		}
		voices = append(voices, Voice{
			VoiceID: v.VoiceID,
			Name:    name,
			Gender:  v.Gender,
			Locale:  v.Locale,
		})
	}
	c.logger.Info("loaded voices", "count", len(voices))
	return voices, nil
}
