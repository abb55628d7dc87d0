package tts

import (
	"context"
	"sync"
	"time"
)

// Mock implements Synthesizer for testing.
type Mock struct {
	// OpenFunc is called when Open is invoked.
	// If nil, returns a new MockStream that replays Script on SendText(end).
	OpenFunc func(ctx context.Context) (Stream, error)

	// Script is replayed by the default stream once the final text chunk
	// arrives. Each fragment waits Delay before it is delivered.
	Script []Fragment
	Delay  time.Duration

	// Tracking
	mu      sync.Mutex
	calls   []MockCall
	streams []*MockStream
}

// MockCall records a method invocation for verification.
type MockCall struct {
	Method string
	Text   string
	Time   time.Time
}

// NewMock creates a mock that replays script after the final text chunk.
func NewMock(script ...Fragment) *Mock {
	return &Mock{Script: script}
}

// Open calls OpenFunc and records the call.
func (m *Mock) Open(ctx context.Context) (Stream, error) {
	m.recordCall("Open", "")
	if m.OpenFunc != nil {
		return m.OpenFunc(ctx)
	}

	s := NewMockStream()
	s.owner = m
	s.script = m.Script
	s.delay = m.Delay

	m.mu.Lock()
	m.streams = append(m.streams, s)
	m.mu.Unlock()
	return s, nil
}

// Streams returns the streams opened by the default OpenFunc.
func (m *Mock) Streams() []*MockStream {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*MockStream(nil), m.streams...)
}

// recordCall adds a call to the tracking list.
func (m *Mock) recordCall(method, text string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, MockCall{
		Method: method,
		Text:   text,
		Time:   time.Now(),
	})
}

// Calls returns all recorded method calls.
func (m *Mock) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]MockCall, len(m.calls))
	copy(result, m.calls)
	return result
}

// CallCount returns the number of times a method was called.
func (m *Mock) CallCount(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, c := range m.calls {
		if c.Method == method {
			count++
		}
	}
	return count
}

// Reset clears all recorded calls.
func (m *Mock) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
	m.streams = nil
}

// WithError returns a mock whose Open always fails with err.
func WithError(err error) *Mock {
	return &Mock{
		OpenFunc: func(ctx context.Context) (Stream, error) {
			return nil, err
		},
	}
}

// MockStream is a Stream driven by the test. Push and End feed the
// Fragments channel; SendText calls are recorded.
type MockStream struct {
	owner  *Mock
	script []Fragment
	delay  time.Duration

	frags chan Fragment

	mu     sync.Mutex
	texts  []string
	ended  bool
	closed bool
	once   sync.Once
}

// NewMockStream creates an empty stream.
func NewMockStream() *MockStream {
	return &MockStream{frags: make(chan Fragment, 256)}
}

// SendText records text. When end is set, the scripted fragments are
// replayed and the stream ends.
func (s *MockStream) SendText(text string, end bool) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrStreamClosed
	}
	s.texts = append(s.texts, text)
	s.mu.Unlock()

	if s.owner != nil {
		s.owner.recordCall("SendText", text)
	}
	if end && s.script != nil {
		go s.replay()
	}
	return nil
}

func (s *MockStream) replay() {
	for _, f := range s.script {
		if s.delay > 0 {
			time.Sleep(s.delay)
		}
		if !s.Push(f) {
			return
		}
	}
	s.End()
}

// Push delivers a fragment. It reports false once the stream is closed.
func (s *MockStream) Push(f Fragment) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.ended {
		return false
	}
	s.frags <- f
	return true
}

// End closes the Fragments channel as if the provider hung up.
func (s *MockStream) End() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.endLocked()
}

func (s *MockStream) endLocked() {
	s.once.Do(func() {
		s.ended = true
		close(s.frags)
	})
}

// Fragments returns the audio channel.
func (s *MockStream) Fragments() <-chan Fragment {
	return s.frags
}

// Texts returns every chunk passed to SendText.
func (s *MockStream) Texts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.texts...)
}

// Closed reports whether Close was called.
func (s *MockStream) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Close ends the stream.
func (s *MockStream) Close() error {
	if s.owner != nil {
		s.owner.recordCall("Close", "")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.endLocked()
	return nil
}

// Verify Mock implements Synthesizer at compile time.
var (
	_ Synthesizer = (*Mock)(nil)
	_ Stream      = (*MockStream)(nil)
)
