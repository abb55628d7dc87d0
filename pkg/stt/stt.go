// Package stt provides streaming speech recognition with turn detection.
//
// A Recognizer opens a Session; raw PCM16 audio is pushed with SendAudio and
// recognition events arrive on the callbacks registered in Handlers. The
// callbacks run on the session's read goroutine, one at a time, in the order
// the provider sent the events.
//
//	rec, _ := stt.NewAssemblyAI(stt.WithAPIKey(key))
//	sess, err := rec.Open(ctx, stt.Handlers{
//	    OnTurn: func(ev stt.TurnEvent) { ... },
//	})
//	if err != nil {
//	    return err
//	}
//	defer sess.Close()
//	sess.SendAudio(pcm)
package stt

import "context"

// Recognizer opens recognition sessions.
type Recognizer interface {
	Open(ctx context.Context, h Handlers) (Session, error)
}

// Session is one live recognition stream.
type Session interface {
	// SendAudio forwards a chunk of PCM16 mono audio.
	SendAudio(pcm []byte) error

	// Close asks the provider to terminate and releases the connection.
	// It is safe to call more than once but must not be called from a
	// handler.
	Close() error

	// Done is closed once the read goroutine has exited.
	Done() <-chan struct{}
}

// BeginEvent is delivered once the provider accepted the session.
type BeginEvent struct {
	ID        string
	ExpiresAt int64
}

// TurnEvent is one transcript update for the turn in progress.
type TurnEvent struct {
	Order      int
	Transcript string
	EndOfTurn  bool
	Formatted  bool
	Confidence float64
	Words      []Word
}

// Duration returns the audio span covered by the turn's words in seconds,
// or nil if no word timing is present.
func (e TurnEvent) Duration() *float64 {
	if len(e.Words) == 0 {
		return nil
	}
	first, last := e.Words[0], e.Words[len(e.Words)-1]
	d := float64(last.End-first.Start) / 1000
	if d < 0 {
		return nil
	}
	return &d
}

// Word is a recognized word with millisecond timing.
type Word struct {
	Text       string
	Start      int
	End        int
	Confidence float64
	Final      bool
}

// TerminationEvent is delivered when the provider ends the session.
type TerminationEvent struct {
	AudioSeconds   float64
	SessionSeconds float64
}

// Handlers are the session callbacks. Nil handlers are skipped.
type Handlers struct {
	OnBegin       func(BeginEvent)
	OnTurn        func(TurnEvent)
	OnTermination func(TerminationEvent)
	OnError       func(error)
}
