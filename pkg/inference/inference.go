// Package inference generates conversational replies.
//
// A Provider takes the user's text plus the session's prior history and
// returns the reply together with the updated history. Providers run their
// own tool-call loop: when the model requests a Tool, the provider invokes
// its Handler and feeds the result back until the model answers in text.
//
// Example usage:
//
//	gemini, _ := inference.NewGemini(
//	    inference.WithAPIKey(keys["gemini"]),
//	    inference.WithSystemPrompt(inference.Persona),
//	)
//	defer gemini.Close()
//
//	resp, err := gemini.Reply(ctx, &inference.ReplyRequest{
//	    Text:    "What's the weather in Paris?",
//	    History: history,
//	    Tools:   toolset,
//	})
//	history = resp.History
package inference

import "context"

// Provider generates replies.
type Provider interface {
	// Reply produces the reply to req.Text, resolving any tool calls.
	Reply(ctx context.Context, req *ReplyRequest) (*ReplyResponse, error)

	// Close releases any resources held by the provider.
	Close() error
}

// ReplyRequest is one user turn.
type ReplyRequest struct {
	// SessionID is used for logging only.
	SessionID string

	// Text is the user's finalized utterance.
	Text string

	// History is the conversation so far. It is not modified.
	History []Message

	// Tools available for this turn.
	Tools []Tool

	// Model overrides the default model.
	Model string
}

// ReplyResponse is the outcome of a turn.
type ReplyResponse struct {
	// Text is the model's final answer.
	Text string

	// History is req.History extended with this turn's exchange. Callers
	// store it for the next turn.
	History []Message

	// ToolCalls lists the tools invoked while answering.
	ToolCalls []ToolCall

	// Usage tracks token consumption.
	Usage Usage

	// Model used for generation.
	Model string

	// LatencyMs is the response time in milliseconds.
	LatencyMs int64
}

// Usage tracks token consumption for billing and limits.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}
