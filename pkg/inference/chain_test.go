package inference

import (
	"context"
	"errors"
	"testing"
)

func TestChainFallback(t *testing.T) {
	ctx := context.Background()

	// First provider fails
	failing := WithError(&APIError{StatusCode: 503, Message: "overloaded", Provider: "test"})

	// Second provider succeeds
	working := NewMock("From working provider")

	chain, err := NewChain(failing, working)
	if err != nil {
		t.Fatalf("Failed to create chain: %v", err)
	}
	defer chain.Close()

	resp, err := chain.Reply(ctx, &ReplyRequest{Text: "test"})
	if err != nil {
		t.Fatalf("Chain reply failed: %v", err)
	}

	if resp.Text != "From working provider" {
		t.Errorf("Unexpected response: %s", resp.Text)
	}
	if working.CallCount("Reply") != 1 {
		t.Error("Expected fallback provider to be called once")
	}
}

func TestChainAllFail(t *testing.T) {
	ctx := context.Background()

	p1 := WithError(errors.New("provider 1 failed"))
	p2 := WithError(errors.New("provider 2 failed"))

	chain, _ := NewChain(p1, p2)
	defer chain.Close()

	_, err := chain.Reply(ctx, &ReplyRequest{Text: "test"})
	if err == nil {
		t.Fatal("Expected error when all providers fail")
	}

	var chainErr *ChainError
	if !errors.As(err, &chainErr) {
		t.Fatalf("Expected ChainError, got %T", err)
	}
	if len(chainErr.Errors) != 2 {
		t.Errorf("Expected 2 errors, got %d", len(chainErr.Errors))
	}
}

func TestChainStopsOnRejectedKey(t *testing.T) {
	p1 := WithError(&APIError{StatusCode: 403, Message: "bad key", Provider: "test"})
	p2 := NewMock("unreachable")

	chain, _ := NewChain(p1, p2)
	_, err := chain.Reply(context.Background(), &ReplyRequest{Text: "test"})
	if err == nil {
		t.Fatal("Expected error")
	}
	if p2.CallCount("Reply") != 0 {
		t.Error("Chain should not try other providers with a rejected key")
	}
}

func TestChainFallbackPolicy(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		fallback bool
	}{
		{"rate limited", &APIError{StatusCode: 429, Provider: "test"}, true},
		{"quota exhausted", &APIError{StatusCode: 400, Code: "RESOURCE_EXHAUSTED", Provider: "test"}, true},
		{"server error", &APIError{StatusCode: 500, Provider: "test"}, true},
		{"transport", errors.New("connection reset"), true},
		{"bad request", &APIError{StatusCode: 400, Code: "INVALID_ARGUMENT", Message: "bad schema", Provider: "test"}, false},
		{"bad key", &APIError{StatusCode: 400, Code: "INVALID_ARGUMENT", Message: "API key not valid", Provider: "test"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next := NewMock("ok")
			chain, _ := NewChain(WithError(tt.err), next)

			_, err := chain.Reply(context.Background(), &ReplyRequest{Text: "test"})
			if tt.fallback && err != nil {
				t.Fatalf("expected fallback to succeed, got %v", err)
			}
			if !tt.fallback && err == nil {
				t.Fatal("expected chain to stop with an error")
			}
			want := 0
			if tt.fallback {
				want = 1
			}
			if got := next.CallCount("Reply"); got != want {
				t.Errorf("fallback calls = %d, want %d", got, want)
			}
		})
	}
}

func TestChainEmpty(t *testing.T) {
	_, err := NewChain()
	if !errors.Is(err, ErrProviderUnavailable) {
		t.Errorf("Expected ErrProviderUnavailable, got %v", err)
	}
}

func TestChainProviders(t *testing.T) {
	chain, _ := NewChain(NewMock("a"), NewMock("b"))
	defer chain.Close()

	if len(chain.Providers()) != 2 {
		t.Errorf("Expected 2 providers, got %d", len(chain.Providers()))
	}
}
