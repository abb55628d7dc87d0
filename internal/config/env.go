// Package config provides configuration loading for vocalix commands.
package config

import (
	"os"
	"strconv"
)

// Environment variables understood by the server.
const (
	EnvConfigPath        = "VOCALIX_CONFIG"
	EnvPort              = "PORT"
	EnvLogLevel          = "LOG_LEVEL"
	EnvLogFile           = "LOG_FILE"
	EnvMurfAPIKey        = "MURF_API_KEY"
	EnvMurfVoiceID       = "MURF_DEFAULT_VOICE_ID"
	EnvGeminiModel       = "GEMINI_MODEL"
	EnvStaticDir         = "STATIC_DIR"
	EnvMaxRequests       = "VOCALIX_MAX_REQUESTS"
	DefaultPort          = 8000
	DefaultVoiceID       = "en-US-terrell"
	DefaultModel         = "gemini-2.5-flash"
	DefaultFallbackModel = "gemini-2.0-flash"
	DefaultLogLevel      = "info"
)

// Port returns the listen port from the PORT env var.
// Falls back to the provided default if unset or invalid.
func Port(defaultPort int) int {
	return envInt(EnvPort, defaultPort)
}

// MurfVoiceID returns the default synthesis voice from MURF_DEFAULT_VOICE_ID.
func MurfVoiceID(defaultID string) string {
	return envString(EnvMurfVoiceID, defaultID)
}

// ApplyEnv overlays environment variables on top of c.
func (c *Config) ApplyEnv() {
	c.Server.Port = envInt(EnvPort, c.Server.Port)
	c.Server.StaticDir = envString(EnvStaticDir, c.Server.StaticDir)
	c.Log.Level = envString(EnvLogLevel, c.Log.Level)
	c.Log.File = envString(EnvLogFile, c.Log.File)
	c.Synthesis.VoiceID = MurfVoiceID(c.Synthesis.VoiceID)
	c.Reply.Model = envString(EnvGeminiModel, c.Reply.Model)
	c.Catalog.MurfAPIKey = envString(EnvMurfAPIKey, c.Catalog.MurfAPIKey)
	c.Admission.MaxRequests = envInt(EnvMaxRequests, c.Admission.MaxRequests)
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
