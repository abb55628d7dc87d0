package protocol

import (
	"fmt"
	"time"
)

// =============================================================================
// Helper functions for creating messages
// =============================================================================

// SpeakingStatusUser marks a partial transcript produced while the user talks.
const SpeakingStatusUser = "user_speaking"

// NewConnectionEstablished creates the connection acknowledgment.
func NewConnectionEstablished(sessionID string) ConnectionEstablished {
	return ConnectionEstablished{
		Type:      TypeConnectionEstablished,
		Message:   "Connected to speech recognition with turn detection and chat history",
		SessionID: sessionID,
		Timestamp: Timestamp(time.Now()),
	}
}

// NewSessionBegin creates a recognizer session-begin notice.
func NewSessionBegin(recognizerSessionID string) SessionBegin {
	return SessionBegin{
		Type:      TypeSessionBegin,
		SessionID: recognizerSessionID,
		Message:   "Voice agent active - speak naturally!",
		Timestamp: Timestamp(time.Now()),
	}
}

// NewSessionTerminated creates a recognizer session-end notice.
func NewSessionTerminated(audioSeconds float64) SessionTerminated {
	return SessionTerminated{
		Type:               TypeSessionTerminated,
		Message:            fmt.Sprintf("Voice agent session ended - %g seconds processed", audioSeconds),
		TotalAudioDuration: audioSeconds,
		Timestamp:          Timestamp(time.Now()),
	}
}

// NewError creates an error message.
func NewError(msg string) Error {
	return Error{
		Type:      TypeError,
		Message:   msg,
		Timestamp: Timestamp(time.Now()),
	}
}

// NewPartialTranscript creates a live transcript message.
func NewPartialTranscript(text string) PartialTranscript {
	return PartialTranscript{
		Type:           TypePartialTranscript,
		Text:           text,
		SpeakingStatus: SpeakingStatusUser,
		Timestamp:      Timestamp(time.Now()),
	}
}

// NewTurnCompleted creates a new-turn announcement.
func NewTurnCompleted(seq int, transcript string, audioDuration *float64) TurnCompleted {
	return TurnCompleted{
		Type:            TypeTurnCompleted,
		TurnNumber:      seq,
		FinalTranscript: transcript,
		EndOfTurn:       true,
		Message:         fmt.Sprintf("Turn #%d completed - User stopped speaking", seq),
		Timestamp:       Timestamp(time.Now()),
		AudioDuration:   audioDuration,
	}
}

// NewTurnUpdated creates an amendment notice.
func NewTurnUpdated(seq int, transcript string, audioDuration *float64) TurnUpdated {
	return TurnUpdated{
		Type:            TypeTurnUpdated,
		TurnNumber:      seq,
		FinalTranscript: transcript,
		Message:         fmt.Sprintf("Turn #%d updated with punctuation", seq),
		Timestamp:       Timestamp(time.Now()),
		AudioDuration:   audioDuration,
	}
}

// NewFinalTranscript creates the display copy of a finalized turn.
func NewFinalTranscript(seq int, text string) FinalTranscript {
	return FinalTranscript{
		Type:       TypeFinalTranscript,
		Text:       text,
		TurnNumber: seq,
	}
}

// NewLLMStreamingStart creates a reply-start notice.
func NewLLMStreamingStart(seq int) LLMStreamingStart {
	return LLMStreamingStart{
		Type:       TypeLLMStreamingStart,
		TurnNumber: seq,
		Message:    fmt.Sprintf("AI responding to turn #%d...", seq),
		Timestamp:  Timestamp(time.Now()),
	}
}

// NewLLMChunk creates the spoken-text message.
func NewLLMChunk(seq int, text string) LLMChunk {
	return LLMChunk{
		Type:        TypeLLMChunk,
		TurnNumber:  seq,
		Chunk:       text,
		Accumulated: text,
		Timestamp:   Timestamp(time.Now()),
	}
}

// NewLLMStreamingComplete creates the terminal message of a turn.
func NewLLMStreamingComplete(seq int, full string) LLMStreamingComplete {
	return LLMStreamingComplete{
		Type:         TypeLLMStreamingComplete,
		TurnNumber:   seq,
		FullResponse: full,
		Message:      fmt.Sprintf("AI response complete for turn #%d", seq),
		Timestamp:    Timestamp(time.Now()),
	}
}

// NewLLMError creates a per-turn error message.
func NewLLMError(seq int, msg string) LLMError {
	return LLMError{
		Type:       TypeLLMError,
		TurnNumber: seq,
		Error:      msg,
		Timestamp:  Timestamp(time.Now()),
	}
}

// NewOpenURL creates a navigation instruction.
func NewOpenURL(seq int, url string) OpenURL {
	return OpenURL{
		Type:       TypeOpenURL,
		URL:        url,
		TurnNumber: seq,
		Timestamp:  Timestamp(time.Now()),
	}
}

// NewAudioChunk creates the audio-delivery message for a turn.
func NewAudioChunk(seq int, b64 string) AudioChunk {
	return AudioChunk{
		Type:       TypeAudioChunk,
		TurnNumber: seq,
		AudioData:  b64,
		Final:      true,
		Timestamp:  float64(time.Now().UnixNano()) / 1e9,
	}
}

// NewAudioStreamingComplete creates the audio completion acknowledgment.
func NewAudioStreamingComplete(seq, chunks, encodedLen, audioBytes, fragments int, fallback bool) AudioStreamingComplete {
	return AudioStreamingComplete{
		Type:           TypeAudioStreamingComplete,
		TurnNumber:     seq,
		TotalChunks:    chunks,
		TotalAudioData: encodedLen,
		AudioBytes:     audioBytes,
		Fragments:      fragments,
		Fallback:       fallback,
	}
}
