// Package tools implements the functions the reply generator may call
// while answering: web search, current weather, the clock, and opening a
// website on the client.
//
// Tools are built per session from the credentials the client supplied. A
// tool whose credential is missing is still offered to the model and
// answers with a short explanation, so the model can tell the user.
package tools

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/teslashibe/go-vocalix/internal/httpc"
	"github.com/teslashibe/go-vocalix/pkg/inference"
	"github.com/teslashibe/go-vocalix/pkg/protocol"
)

// Tool names.
const (
	NameWebSearch   = "web_search"
	NameWeather     = "get_current_weather"
	NameTime        = "get_current_time"
	NameOpenWebsite = "open_website_function"
)

// Provider endpoints.
const (
	DefaultTavilyURL  = "https://api.tavily.com/search"
	DefaultWeatherURL = "https://api.openweathermap.org/data/2.5/weather"
)

// Config holds credentials and endpoints for one session's tools.
type Config struct {
	TavilyKey       string
	OpenWeatherKey  string
	GoogleSearchKey string
	GoogleCX        string

	TavilyURL  string
	WeatherURL string

	// SearchEndpoint overrides the Programmable Search endpoint.
	SearchEndpoint string

	MaxResults int

	HTTPClient *http.Client
	Now        func() time.Time
	Logger     *slog.Logger
}

// Option configures tools.
type Option func(*Config)

// WithTavilyURL overrides the Tavily endpoint.
func WithTavilyURL(url string) Option {
	return func(c *Config) { c.TavilyURL = url }
}

// WithWeatherURL overrides the OpenWeather endpoint.
func WithWeatherURL(url string) Option {
	return func(c *Config) { c.WeatherURL = url }
}

// WithSearchEndpoint overrides the Programmable Search endpoint.
func WithSearchEndpoint(url string) Option {
	return func(c *Config) { c.SearchEndpoint = url }
}

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Config) { c.HTTPClient = client }
}

// WithClock sets the time source for the clock tool.
func WithClock(now func() time.Time) Option {
	return func(c *Config) { c.Now = now }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Config) { c.Logger = logger }
}

// FromKeys builds a Config from the credentials of a key-configuration
// message.
func FromKeys(keys map[string]string, opts ...Option) Config {
	cfg := Config{
		TavilyKey:       keys[protocol.KeyTavily],
		OpenWeatherKey:  keys[protocol.KeyOpenWeather],
		GoogleSearchKey: keys[protocol.KeyGoogleSearch],
		GoogleCX:        keys[protocol.KeyGoogleCX],
		TavilyURL:       DefaultTavilyURL,
		WeatherURL:      DefaultWeatherURL,
		MaxResults:      5,
		HTTPClient:      httpc.Client,
		Now:             time.Now,
		Logger:          slog.Default(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// Set returns every tool configured by cfg.
func Set(cfg Config) []inference.Tool {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "tools")

	s := &searcher{cfg: cfg, logger: logger}
	w := &weather{cfg: cfg, logger: logger}

	return []inference.Tool{
		{
			Name:        NameWebSearch,
			Description: "Search the internet for current information. Use for news, facts, sports, products and anything that may have changed recently.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"query": map[string]any{
						"type":        "string",
						"description": "The search query to look up",
					},
				},
				"required": []string{"query"},
			},
			Handler: s.handle,
		},
		{
			Name:        NameWeather,
			Description: "Get the current weather for a city.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"city": map[string]any{
						"type":        "string",
						"description": "City name, optionally with country code, e.g. 'London,UK'",
					},
				},
				"required": []string{"city"},
			},
			Handler: w.handle,
		},
		{
			Name:        NameTime,
			Description: "Get the current date and time. Use when someone asks what time or day it is.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"timezone": map[string]any{
						"type":        "string",
						"description": "Optional IANA time zone such as 'Europe/London'",
					},
				},
			},
			Handler: clock(cfg.Now),
		},
		{
			Name:        NameOpenWebsite,
			Description: "Open a website in the user's browser. Returns a command string that must be included verbatim in the reply.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"url": map[string]any{
						"type":        "string",
						"description": "Full URL or site name, e.g. 'https://www.netflix.com' or 'netflix'",
					},
				},
				"required": []string{"url"},
			},
			Handler: openWebsite,
		},
	}
}

// stringArg returns args[key] as a string, or "".
func stringArg(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return s
}

// send performs req with client and returns the body of a 2xx reply.
func send(client *http.Client, req *http.Request) ([]byte, error) {
	if client == nil {
		client = httpc.Client
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	return httpc.ReadBody(resp)
}
