// Package assembler turns the stream of audio fragments a synthesizer
// pushes for one turn into exactly one well-formed audio payload.
//
// A Job moves through
//
//	Connecting → Streaming → IdleWait ⇄ Streaming → Finalizing → Complete
//
// or, when the synthesizer cannot be reached,
//
//	Connecting → Fallback → Complete
//
// End of speech is an explicit final marker, the end of the provider
// stream, or IdleTimeout without a new fragment. Speech that ends with no
// audio at all is replaced by placeholder audio. Finalization runs at most
// once and always emits a completion acknowledgment.
package assembler

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/teslashibe/go-vocalix/pkg/audio"
	"github.com/teslashibe/go-vocalix/pkg/bridge"
	"github.com/teslashibe/go-vocalix/pkg/protocol"
	"github.com/teslashibe/go-vocalix/pkg/tts"
)

// State is the lifecycle position of a Job.
type State int

const (
	Connecting State = iota
	Streaming
	IdleWait
	Finalizing
	Complete
	Fallback
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Streaming:
		return "streaming"
	case IdleWait:
		return "idle_wait"
	case Finalizing:
		return "finalizing"
	case Complete:
		return "complete"
	case Fallback:
		return "fallback"
	default:
		return "unknown"
	}
}

// Reason records what triggered finalization.
type Reason string

const (
	ReasonFinal     Reason = "final"
	ReasonIdle      Reason = "idle"
	ReasonStreamEnd Reason = "stream_end"
	ReasonTimeout   Reason = "timeout"
	ReasonFallback  Reason = "fallback"
	ReasonCancelled Reason = "cancelled"
)

// deliveryTimeout bounds how long finalization waits for its two messages
// to be written.
const deliveryTimeout = 10 * time.Second

// Sender delivers a message on the client connection.
type Sender interface {
	Send(v any) *bridge.Handle
}

// Result summarizes a finished job.
type Result struct {
	Turn         int
	Reason       Reason
	Fragments    int
	PayloadBytes int
	AudioBytes   int
	EncodedBytes int
	Delivered    bool
	Fallback     bool
	Duration     time.Duration
}

// Job assembles the audio of one turn.
type Job struct {
	turn        int
	synth       tts.Synthesizer
	out         Sender
	idle        time.Duration
	completeIn  time.Duration
	placeholder func() []byte
	logger      *slog.Logger
	onDone      func(Result)

	started time.Time

	mu        sync.Mutex
	state     State
	stream    tts.Stream
	sawFirst  bool
	header    []byte
	fragments [][]byte
	timer     *time.Timer
	gen       uint64
	finalized bool
	result    Result

	done chan struct{}
}

// Turn returns the turn sequence number the job serves.
func (j *Job) Turn() int {
	return j.turn
}

// State returns the current state.
func (j *Job) State() State {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.state
}

// Done is closed once the job is Complete.
func (j *Job) Done() <-chan struct{} {
	return j.done
}

// Run drives the whole job: connect, submit text, and wait up to the
// configured complete timeout for the audio to finish.
func (j *Job) Run(ctx context.Context, text string) (Result, error) {
	j.Start(ctx)
	defer j.closeStream()

	if err := j.Submit(text); err != nil {
		j.logger.Warn("submit failed", "error", err)
	}
	return j.WaitForComplete(ctx, j.completeIn)
}

// Start opens the synthesis stream. On failure the job switches to
// Fallback; this is not an error for the caller.
func (j *Job) Start(ctx context.Context) {
	stream, err := j.synth.Open(ctx)

	j.mu.Lock()
	defer j.mu.Unlock()

	if err != nil {
		var apiErr *tts.APIError
		if errors.As(err, &apiErr) && apiErr.IsUnauthorized() {
			j.logger.Error("synthesis key rejected, using placeholder audio", "status", apiErr.StatusCode)
		} else {
			j.logger.Warn("synthesizer unavailable, using placeholder audio", "error", err)
		}
		j.state = Fallback
		return
	}
	j.stream = stream
	j.state = Streaming
	go j.consume(stream)
}

// Submit sends the final text. In Fallback it produces placeholder audio
// and completes the job immediately.
func (j *Job) Submit(text string) error {
	j.mu.Lock()
	state, stream := j.state, j.stream
	j.mu.Unlock()

	if state == Fallback {
		j.finalizeWith(j.placeholder(), ReasonFallback, true)
		return nil
	}
	if stream == nil {
		return tts.ErrStreamClosed
	}

	if err := stream.SendText(text, true); err != nil {
		// Nothing will come back; degrade rather than wait out the timeout.
		j.mu.Lock()
		empty := !j.sawFirst
		j.mu.Unlock()
		if empty {
			j.logger.Warn("send failed, using placeholder audio", "error", err)
			j.finalizeWith(j.placeholder(), ReasonFallback, true)
		}
		return err
	}
	j.logger.Debug("text submitted", "chars", len(text))
	return nil
}

// WaitForComplete blocks until the job completes. If timeout passes first
// it forces finalization with whatever has been collected. A cancelled
// ctx abandons the job without emitting anything.
func (j *Job) WaitForComplete(ctx context.Context, timeout time.Duration) (Result, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-j.done:
	case <-timer.C:
		j.logger.Warn("audio timed out, forcing finalization", "timeout", timeout)
		j.finalize(ReasonTimeout)
	case <-ctx.Done():
		j.abandon()
		return j.Result(), ctx.Err()
	}
	<-j.done
	return j.Result(), nil
}

// Result returns the job summary. It is only meaningful after Done.
func (j *Job) Result() Result {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.result
}

func (j *Job) consume(stream tts.Stream) {
	for f := range stream.Fragments() {
		j.ingest(f)
		if f.Final {
			return
		}
	}
	j.finalize(ReasonStreamEnd)
}

// ingest appends one fragment and rearms the idle timer.
func (j *Job) ingest(f tts.Fragment) {
	j.mu.Lock()
	if j.finalized {
		j.mu.Unlock()
		return
	}

	if data := f.Audio; len(data) > 0 {
		if !j.sawFirst {
			j.sawFirst = true
			if len(data) >= audio.HeaderSize {
				j.header = append([]byte(nil), data[:audio.HeaderSize]...)
				data = data[audio.HeaderSize:]
			}
		}
		if len(data) > 0 {
			j.fragments = append(j.fragments, data)
		}
		j.armIdleLocked()
	}
	j.mu.Unlock()

	if f.Final {
		j.finalize(ReasonFinal)
	}
}

// armIdleLocked replaces any pending idle timer. Stale timers are
// recognized by their generation and ignored.
func (j *Job) armIdleLocked() {
	if j.timer != nil {
		j.timer.Stop()
	}
	j.gen++
	gen := j.gen
	j.state = IdleWait
	j.timer = time.AfterFunc(j.idle, func() {
		j.mu.Lock()
		stale := gen != j.gen || j.finalized
		j.mu.Unlock()
		if !stale {
			j.finalize(ReasonIdle)
		}
	})
}

// finalize concatenates the collected fragments and delivers them.
func (j *Job) finalize(reason Reason) {
	j.mu.Lock()
	if j.finalized {
		j.mu.Unlock()
		return
	}
	j.finalized = true
	j.state = Finalizing
	j.stopTimerLocked()
	header := j.header
	frags := j.fragments
	j.mu.Unlock()

	payload := bytes.Join(frags, nil)

	// A provider that ends speech without any audio still owes the client
	// one payload. A timeout keeps the empty result.
	if len(payload) == 0 && (reason == ReasonFinal || reason == ReasonStreamEnd) {
		j.logger.Warn("synthesis ended without audio, using placeholder audio", "reason", reason)
		data := j.placeholder()
		j.deliver(data, reason, true, 0, max(len(data)-audio.HeaderSize, 0))
		return
	}

	var data []byte
	if len(payload) > 0 {
		var err error
		data, err = audio.Assemble(header, payload)
		if err != nil {
			j.logger.Error("assemble failed, sending raw payload", "error", err)
			data = payload
		}
	}
	j.deliver(data, reason, false, len(frags), len(payload))
}

// finalizeWith delivers a ready-made container.
func (j *Job) finalizeWith(data []byte, reason Reason, fallback bool) {
	j.mu.Lock()
	if j.finalized {
		j.mu.Unlock()
		return
	}
	j.finalized = true
	j.stopTimerLocked()
	j.mu.Unlock()

	payload := len(data) - audio.HeaderSize
	if payload < 0 {
		payload = 0
	}
	j.deliver(data, reason, fallback, 0, payload)
}

func (j *Job) deliver(data []byte, reason Reason, fallback bool, fragments, payloadBytes int) {
	res := Result{
		Turn:         j.turn,
		Reason:       reason,
		Fragments:    fragments,
		PayloadBytes: payloadBytes,
		AudioBytes:   len(data),
		Fallback:     fallback,
	}

	chunks := 0
	var audioHandle *bridge.Handle
	if len(data) == 0 {
		j.logger.Warn("no audio collected", "reason", reason)
	} else {
		encoded := base64.StdEncoding.EncodeToString(data)
		res.EncodedBytes = len(encoded)
		audioHandle = j.out.Send(protocol.NewAudioChunk(j.turn, encoded))
		chunks = 1
	}
	doneHandle := j.out.Send(protocol.NewAudioStreamingComplete(
		j.turn, chunks, res.EncodedBytes, res.AudioBytes, fragments, fallback,
	))

	if audioHandle != nil {
		if _, err := audioHandle.Await(deliveryTimeout); err != nil {
			j.logger.Warn("audio delivery failed", "error", err)
		} else {
			res.Delivered = true
		}
	}
	if _, err := doneHandle.Await(deliveryTimeout); err != nil {
		j.logger.Warn("completion delivery failed", "error", err)
	}

	res.Duration = time.Since(j.started)
	j.logger.Info("audio complete",
		"reason", reason,
		"fragments", fragments,
		"bytes", res.AudioBytes,
		"fallback", fallback,
		"elapsed", res.Duration,
	)
	j.complete(res)
}

// abandon completes the job silently, as on session close.
func (j *Job) abandon() {
	j.mu.Lock()
	if j.finalized {
		j.mu.Unlock()
		return
	}
	j.finalized = true
	j.stopTimerLocked()
	j.mu.Unlock()

	j.complete(Result{Turn: j.turn, Reason: ReasonCancelled, Duration: time.Since(j.started)})
}

func (j *Job) complete(res Result) {
	j.mu.Lock()
	j.result = res
	j.state = Complete
	j.mu.Unlock()

	j.closeStream()
	if j.onDone != nil {
		j.onDone(res)
	}
	close(j.done)
}

func (j *Job) stopTimerLocked() {
	if j.timer != nil {
		j.timer.Stop()
		j.timer = nil
	}
	j.gen++
}

func (j *Job) closeStream() {
	j.mu.Lock()
	stream := j.stream
	j.stream = nil
	j.mu.Unlock()

	if stream != nil {
		if err := stream.Close(); err != nil {
			j.logger.Debug("close stream", "error", err)
		}
	}
}
