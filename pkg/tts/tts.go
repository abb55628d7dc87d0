// Package tts provides streaming text-to-speech sessions.
//
// A Synthesizer opens a Stream; the caller pushes text with SendText and
// drains audio fragments from Fragments until the channel closes. Murf
// stream-input is the production backend; Mock serves tests.
//
// Example usage:
//
//	synth, _ := tts.NewMurf(
//	    tts.WithAPIKey(os.Getenv("MURF_API_KEY")),
//	    tts.WithVoice("en-US-terrell"),
//	)
//
//	stream, _ := synth.Open(ctx)
//	defer stream.Close()
//
//	_ = stream.SendText("Hello world", true)
//	for f := range stream.Fragments() {
//	    // f.Audio holds provider-encoded bytes
//	}
package tts

import (
	"context"
)

// Synthesizer opens streaming synthesis sessions.
type Synthesizer interface {
	// Open connects to the provider and sends the voice configuration.
	Open(ctx context.Context) (Stream, error)
}

// Stream is one live synthesis session.
type Stream interface {
	// SendText pushes a text chunk. end marks the last chunk.
	SendText(text string, end bool) error

	// Fragments delivers audio as the provider produces it. The channel
	// is closed when the provider ends the stream or Close is called.
	Fragments() <-chan Fragment

	// Close terminates the session and releases the connection.
	Close() error
}

// Fragment is one unit of audio pushed by the provider.
type Fragment struct {
	// Audio is the decoded audio bytes. It may be empty on a final marker.
	Audio []byte

	// Final is set when the provider signals the end of speech.
	Final bool
}

// Encoding is the Murf format query parameter. Only WAV is accepted since
// the assembler splices RIFF headers.
type Encoding string

const EncodingWAV Encoding = "WAV"

// ChannelType is the Murf channel_type query parameter.
type ChannelType string

const (
	ChannelMono   ChannelType = "MONO"
	ChannelStereo ChannelType = "STEREO"
)

// VoiceSettings controls voice characteristics.
type VoiceSettings struct {
	// Style is a voice style such as "Conversational" or "Promo".
	Style string

	// Rate adjusts speed, -50 to 50.
	Rate int

	// Pitch adjusts pitch, -50 to 50.
	Pitch int

	// Variation controls pause, pitch and speed variety, 0 to 5.
	Variation int
}

// DefaultVoiceSettings returns sensible defaults for voice synthesis.
func DefaultVoiceSettings() VoiceSettings {
	return VoiceSettings{
		Style:     "Conversational",
		Rate:      0,
		Pitch:     0,
		Variation: 1,
	}
}
