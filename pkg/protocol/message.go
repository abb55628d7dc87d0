// Package protocol defines the websocket messages exchanged with voice
// clients. Every text frame is a flat JSON object with a "type"
// discriminator; audio from the client travels as binary frames.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// MessageType identifies the type of websocket message
type MessageType string

const (
	// Client → Server
	TypeConfigureKeys MessageType = "configure_api_keys"

	// Server → Client: session lifecycle
	TypeConnectionEstablished MessageType = "connection_established"
	TypeSessionBegin          MessageType = "session_begin"
	TypeSessionTerminated     MessageType = "session_terminated"
	TypeError                 MessageType = "error"

	// Server → Client: transcripts and turns
	TypePartialTranscript MessageType = "partial_transcript"
	TypeTurnCompleted     MessageType = "turn_completed"
	TypeTurnUpdated       MessageType = "turn_updated"
	TypeFinalTranscript   MessageType = "final_transcript"

	// Server → Client: reply generation
	TypeLLMStreamingStart    MessageType = "llm_streaming_start"
	TypeLLMChunk             MessageType = "llm_chunk"
	TypeLLMStreamingComplete MessageType = "llm_streaming_complete"
	TypeLLMError             MessageType = "llm_error"
	TypeOpenURL              MessageType = "open_url"

	// Server → Client: audio
	TypeAudioChunk             MessageType = "audio_chunk"
	TypeAudioStreamingComplete MessageType = "audio_streaming_complete"
)

// Credential names understood in a key-configuration message.
const (
	KeyAssemblyAI   = "assemblyai"
	KeyGemini       = "gemini"
	KeyMurf         = "murf"
	KeyTavily       = "tavily"
	KeyOpenWeather  = "openweather"
	KeyGoogleSearch = "google_search"
	KeyGoogleCX     = "google_cx"
)

// ErrNotConfigure is returned when a first message is not a key
// configuration.
var ErrNotConfigure = errors.New("protocol: first message must be API key configuration")

// Envelope is used to peek at the type of an inbound message.
type Envelope struct {
	Type MessageType `json:"type"`
}

// ConfigureKeys is the mandatory first client message.
type ConfigureKeys struct {
	Type MessageType       `json:"type"`
	Keys map[string]string `json:"keys"`
}

// ParseConfigureKeys decodes data and checks it is a key configuration.
func ParseConfigureKeys(data []byte) (*ConfigureKeys, error) {
	var msg ConfigureKeys
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotConfigure, err)
	}
	if msg.Type != TypeConfigureKeys {
		return nil, ErrNotConfigure
	}
	if msg.Keys == nil {
		msg.Keys = map[string]string{}
	}
	return &msg, nil
}

// Timestamp formats t the way every outbound message carries it.
func Timestamp(t time.Time) string {
	return t.Format(time.RFC3339Nano)
}

// ConnectionEstablished acknowledges a configured connection.
type ConnectionEstablished struct {
	Type      MessageType `json:"type"`
	Message   string      `json:"message"`
	SessionID string      `json:"session_id"`
	Timestamp string      `json:"timestamp"`
}

// SessionBegin is forwarded when the recognizer session starts.
type SessionBegin struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Message   string      `json:"message"`
	Timestamp string      `json:"timestamp"`
}

// SessionTerminated is forwarded when the recognizer session ends.
type SessionTerminated struct {
	Type               MessageType `json:"type"`
	Message            string      `json:"message"`
	TotalAudioDuration float64     `json:"total_audio_duration"`
	Timestamp          string      `json:"timestamp"`
}

// Error reports a provider or session error.
type Error struct {
	Type      MessageType `json:"type"`
	Message   string      `json:"message"`
	Timestamp string      `json:"timestamp,omitempty"`
}

// PartialTranscript is live text for a turn in progress.
type PartialTranscript struct {
	Type           MessageType `json:"type"`
	Text           string      `json:"text"`
	SpeakingStatus string      `json:"speaking_status"`
	Timestamp      string      `json:"timestamp"`
}

// TurnCompleted announces a newly finalized turn.
type TurnCompleted struct {
	Type            MessageType `json:"type"`
	TurnNumber      int         `json:"turn_number"`
	FinalTranscript string      `json:"final_transcript"`
	EndOfTurn       bool        `json:"end_of_turn"`
	Message         string      `json:"message"`
	Timestamp       string      `json:"timestamp"`
	AudioDuration   *float64    `json:"audio_duration"`
}

// TurnUpdated carries a punctuation-only amendment of a finalized turn.
type TurnUpdated struct {
	Type            MessageType `json:"type"`
	TurnNumber      int         `json:"turn_number"`
	FinalTranscript string      `json:"final_transcript"`
	Message         string      `json:"message"`
	Timestamp       string      `json:"timestamp"`
	AudioDuration   *float64    `json:"audio_duration"`
}

// FinalTranscript is the display copy of a finalized turn.
type FinalTranscript struct {
	Type       MessageType `json:"type"`
	Text       string      `json:"text"`
	TurnNumber int         `json:"turn_number"`
}

// LLMStreamingStart marks the start of reply generation for a turn.
type LLMStreamingStart struct {
	Type       MessageType `json:"type"`
	TurnNumber int         `json:"turn_number"`
	Message    string      `json:"message"`
	Timestamp  string      `json:"timestamp"`
}

// LLMChunk carries the text that will be spoken.
type LLMChunk struct {
	Type        MessageType `json:"type"`
	TurnNumber  int         `json:"turn_number"`
	Chunk       string      `json:"chunk"`
	Accumulated string      `json:"accumulated"`
	Timestamp   string      `json:"timestamp"`
}

// LLMStreamingComplete is the terminal message of an admitted turn.
type LLMStreamingComplete struct {
	Type         MessageType `json:"type"`
	TurnNumber   int         `json:"turn_number"`
	FullResponse string      `json:"full_response"`
	Message      string      `json:"message"`
	Timestamp    string      `json:"timestamp"`
}

// LLMError reports that a turn's reply could not be produced.
type LLMError struct {
	Type       MessageType `json:"type"`
	TurnNumber int         `json:"turn_number,omitempty"`
	Error      string      `json:"error"`
	Timestamp  string      `json:"timestamp"`
}

// OpenURL asks the client to navigate to URL.
type OpenURL struct {
	Type       MessageType `json:"type"`
	URL        string      `json:"url"`
	TurnNumber int         `json:"turn_number"`
	Timestamp  string      `json:"timestamp"`
}

// AudioChunk carries the single reconstructed audio payload of a turn.
type AudioChunk struct {
	Type       MessageType `json:"type"`
	TurnNumber int         `json:"turn_number"`
	AudioData  string      `json:"audio_data"` // base64
	Final      bool        `json:"final"`
	Timestamp  float64     `json:"timestamp"` // seconds since epoch
}

// AudioStreamingComplete acknowledges the end of a turn's audio.
type AudioStreamingComplete struct {
	Type           MessageType `json:"type"`
	TurnNumber     int         `json:"turn_number"`
	TotalChunks    int         `json:"total_chunks"`
	TotalAudioData int         `json:"total_audio_data"` // base64 length
	AudioBytes     int         `json:"audio_bytes"`
	Fragments      int         `json:"fragments"`
	Fallback       bool        `json:"fallback,omitempty"`
}
