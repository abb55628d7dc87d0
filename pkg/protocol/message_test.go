package protocol

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestParseConfigureKeys(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
		keys    int
	}{
		{
			name:  "valid",
			input: `{"type":"configure_api_keys","keys":{"assemblyai":"a","gemini":"g","murf":"m"}}`,
			keys:  3,
		},
		{
			name:  "no keys object",
			input: `{"type":"configure_api_keys"}`,
			keys:  0,
		},
		{
			name:    "wrong type",
			input:   `{"type":"hello"}`,
			wantErr: true,
		},
		{
			name:    "not json",
			input:   `RIFF....`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := ParseConfigureKeys([]byte(tt.input))
			if tt.wantErr {
				if !errors.Is(err, ErrNotConfigure) {
					t.Errorf("err = %v, want ErrNotConfigure", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(msg.Keys) != tt.keys {
				t.Errorf("got %d keys, want %d", len(msg.Keys), tt.keys)
			}
		})
	}
}

func TestOutboundMessagesCarryType(t *testing.T) {
	dur := 1.5
	tests := []struct {
		name string
		msg  any
		want MessageType
	}{
		{"connection", NewConnectionEstablished("s1"), TypeConnectionEstablished},
		{"session begin", NewSessionBegin("r1"), TypeSessionBegin},
		{"session terminated", NewSessionTerminated(12.5), TypeSessionTerminated},
		{"error", NewError("boom"), TypeError},
		{"partial", NewPartialTranscript("hel"), TypePartialTranscript},
		{"turn completed", NewTurnCompleted(1, "hello", &dur), TypeTurnCompleted},
		{"turn updated", NewTurnUpdated(1, "Hello.", nil), TypeTurnUpdated},
		{"final transcript", NewFinalTranscript(1, "hello"), TypeFinalTranscript},
		{"llm start", NewLLMStreamingStart(1), TypeLLMStreamingStart},
		{"llm chunk", NewLLMChunk(1, "hi"), TypeLLMChunk},
		{"llm complete", NewLLMStreamingComplete(1, "hi"), TypeLLMStreamingComplete},
		{"llm error", NewLLMError(1, "quota"), TypeLLMError},
		{"open url", NewOpenURL(1, "https://www.netflix.com"), TypeOpenURL},
		{"audio chunk", NewAudioChunk(1, "UklGRg=="), TypeAudioChunk},
		{"audio complete", NewAudioStreamingComplete(1, 1, 8, 4, 2, false), TypeAudioStreamingComplete},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(tt.msg)
			if err != nil {
				t.Fatalf("marshal: %v", err)
			}
			var env Envelope
			if err := json.Unmarshal(data, &env); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if env.Type != tt.want {
				t.Errorf("type = %q, want %q", env.Type, tt.want)
			}
		})
	}
}

func TestAudioChunkIsFinal(t *testing.T) {
	msg := NewAudioChunk(7, "AAAA")
	if !msg.Final || msg.TurnNumber != 7 || msg.AudioData != "AAAA" {
		t.Errorf("audio chunk = %+v", msg)
	}
}

func TestPartialTranscriptStatus(t *testing.T) {
	if got := NewPartialTranscript("x").SpeakingStatus; got != SpeakingStatusUser {
		t.Errorf("speaking_status = %q", got)
	}
}
