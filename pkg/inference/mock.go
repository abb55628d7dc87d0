package inference

import (
	"context"
	"sync"
	"time"
)

// Mock implements Provider for testing.
type Mock struct {
	// ReplyFunc is called when Reply is invoked.
	ReplyFunc func(ctx context.Context, req *ReplyRequest) (*ReplyResponse, error)

	// CloseFunc is called when Close is invoked.
	CloseFunc func() error

	mu       sync.Mutex
	calls    []MockCall
	requests []ReplyRequest
}

// MockCall records a method invocation.
type MockCall struct {
	Method string
	Time   time.Time
}

// NewMock creates a mock that always answers with text.
func NewMock(text string) *Mock {
	return &Mock{
		ReplyFunc: func(ctx context.Context, req *ReplyRequest) (*ReplyResponse, error) {
			return Echo(req, text), nil
		},
	}
}

// Echo builds the response a provider returns for text, extending the
// request history the same way.
func Echo(req *ReplyRequest, text string) *ReplyResponse {
	history := append([]Message(nil), req.History...)
	history = append(history, NewUserMessage(req.Text), NewAssistantMessage(text))
	return &ReplyResponse{
		Text:    text,
		History: history,
		Model:   "mock",
		Usage:   Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
	}
}

// Reply calls ReplyFunc and records the call.
func (m *Mock) Reply(ctx context.Context, req *ReplyRequest) (*ReplyResponse, error) {
	m.record("Reply")
	m.mu.Lock()
	m.requests = append(m.requests, *req)
	m.mu.Unlock()

	if m.ReplyFunc != nil {
		return m.ReplyFunc(ctx, req)
	}
	return nil, WrapError("mock", ErrProviderUnavailable)
}

// Close calls CloseFunc and records the call.
func (m *Mock) Close() error {
	m.record("Close")
	if m.CloseFunc != nil {
		return m.CloseFunc()
	}
	return nil
}

// record adds a call to the tracking list.
func (m *Mock) record(method string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, MockCall{
		Method: method,
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

// Requests returns copies of every request received.
func (m *Mock) Requests() []ReplyRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ReplyRequest(nil), m.requests...)
}

// Reset clears all recorded calls.
func (m *Mock) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
	m.requests = nil
}

// WithError returns a mock that always returns the given error.
func WithError(err error) *Mock {
	return &Mock{
		ReplyFunc: func(ctx context.Context, req *ReplyRequest) (*ReplyResponse, error) {
			return nil, err
		},
	}
}

// Verify Mock implements Provider at compile time.
var _ Provider = (*Mock)(nil)
