package stt

import (
	"context"
	"sync"
)

// Mock implements Recognizer for testing. Each Open returns a MockSession
// that the test drives by emitting events.
type Mock struct {
	// OpenFunc replaces the default behavior when set.
	OpenFunc func(ctx context.Context, h Handlers) (Session, error)

	mu       sync.Mutex
	sessions []*MockSession
	opened   chan *MockSession
}

// NewMock creates a mock recognizer.
func NewMock() *Mock {
	return &Mock{opened: make(chan *MockSession, 16)}
}

// WithError returns a mock whose Open always fails with err.
func WithError(err error) *Mock {
	m := NewMock()
	m.OpenFunc = func(context.Context, Handlers) (Session, error) {
		return nil, err
	}
	return m
}

// Open records the handlers and returns a new MockSession.
func (m *Mock) Open(ctx context.Context, h Handlers) (Session, error) {
	if m.OpenFunc != nil {
		return m.OpenFunc(ctx, h)
	}
	s := &MockSession{handlers: h, done: make(chan struct{})}

	m.mu.Lock()
	m.sessions = append(m.sessions, s)
	m.mu.Unlock()

	select {
	case m.opened <- s:
	default:
	}
	return s, nil
}

// Opened delivers each session as it is opened.
func (m *Mock) Opened() <-chan *MockSession {
	return m.opened
}

// Sessions returns every session opened so far.
func (m *Mock) Sessions() []*MockSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*MockSession(nil), m.sessions...)
}

// MockSession is a Session whose events are produced by the test.
// Emitting methods call the handlers synchronously, serialized with each
// other as the real read goroutine would be.
type MockSession struct {
	handlers Handlers

	emitMu sync.Mutex

	mu     sync.Mutex
	audio  [][]byte
	closed bool
	once   sync.Once
	done   chan struct{}
}

// SendAudio records pcm.
func (s *MockSession) SendAudio(pcm []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrNotConnected
	}
	s.audio = append(s.audio, append([]byte(nil), pcm...))
	return nil
}

// Close marks the session closed.
func (s *MockSession) Close() error {
	s.once.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		close(s.done)
	})
	return nil
}

// Done is closed by Close.
func (s *MockSession) Done() <-chan struct{} {
	return s.done
}

// Closed reports whether Close was called.
func (s *MockSession) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Audio returns the recorded audio frames.
func (s *MockSession) Audio() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]byte(nil), s.audio...)
}

// Begin emits a BeginEvent.
func (s *MockSession) Begin(id string) {
	s.emitMu.Lock()
	defer s.emitMu.Unlock()
	if fn := s.handlers.OnBegin; fn != nil {
		fn(BeginEvent{ID: id})
	}
}

// Turn emits a TurnEvent.
func (s *MockSession) Turn(transcript string, endOfTurn bool) {
	s.emitMu.Lock()
	defer s.emitMu.Unlock()
	if fn := s.handlers.OnTurn; fn != nil {
		fn(TurnEvent{Transcript: transcript, EndOfTurn: endOfTurn})
	}
}

// Terminate emits a TerminationEvent.
func (s *MockSession) Terminate(audioSeconds float64) {
	s.emitMu.Lock()
	defer s.emitMu.Unlock()
	if fn := s.handlers.OnTermination; fn != nil {
		fn(TerminationEvent{AudioSeconds: audioSeconds})
	}
}

// Fail emits an error.
func (s *MockSession) Fail(err error) {
	s.emitMu.Lock()
	defer s.emitMu.Unlock()
	if fn := s.handlers.OnError; fn != nil {
		fn(err)
	}
}

var (
	_ Recognizer = (*Mock)(nil)
	_ Session    = (*MockSession)(nil)
)
