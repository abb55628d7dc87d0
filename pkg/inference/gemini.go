package inference

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"google.golang.org/genai"
)

const providerGemini = "gemini"

// Gemini implements Provider on the Gemini API.
type Gemini struct {
	client *genai.Client
	config *Config
	logger *slog.Logger
}

// NewGemini creates a Gemini provider.
func NewGemini(opts ...Option) (*Gemini, error) {
	cfg := DefaultConfig()
	cfg.Apply(opts...)

	if err := cfg.Validate(); err != nil {
		return nil, WrapError(providerGemini, err)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	cc := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions.BaseURL = cfg.BaseURL
	}

	client, err := genai.NewClient(context.Background(), cc)
	if err != nil {
		return nil, WrapError(providerGemini, err)
	}

	return &Gemini{
		client: client,
		config: cfg,
		logger: cfg.Logger.With("component", "inference.gemini"),
	}, nil
}

// Reply runs the model with manual function calling. Tool handlers are
// invoked in the order the model requested them.
func (g *Gemini) Reply(ctx context.Context, req *ReplyRequest) (*ReplyResponse, error) {
	start := time.Now()

	model := req.Model
	if model == "" {
		model = g.config.Model
	}

	history := append([]Message(nil), req.History...)
	history = append(history, NewUserMessage(req.Text))
	contents := toContents(history)

	cfg := g.generateConfig(req.Tools)
	handlers := make(map[string]Tool, len(req.Tools))
	for _, t := range req.Tools {
		handlers[t.Name] = t
	}

	g.logger.Info("generating reply",
		"session", req.SessionID,
		"model", model,
		"history", len(req.History),
		"tools", len(req.Tools),
	)

	var (
		usage Usage
		calls []ToolCall
	)
	for iter := 0; ; iter++ {
		if iter == g.config.MaxToolIterations && len(cfg.Tools) > 0 {
			g.logger.Warn("tool iteration limit reached, answering without tools",
				"session", req.SessionID,
				"iterations", iter,
			)
			noTools := *cfg
			noTools.Tools = nil
			cfg = &noTools
		}

		resp, err := g.generate(ctx, model, contents, cfg)
		if err != nil {
			return nil, err
		}
		usage = addUsage(usage, resp)

		fcs := resp.FunctionCalls()
		if len(fcs) == 0 || len(cfg.Tools) == 0 {
			text := strings.TrimSpace(resp.Text())
			if text == "" {
				return nil, WrapError(providerGemini, ErrEmptyResponse)
			}
			history = append(history, NewAssistantMessage(text))

			g.logger.Info("reply generated",
				"session", req.SessionID,
				"chars", len(text),
				"tool_calls", len(calls),
				"latency", time.Since(start),
			)
			return &ReplyResponse{
				Text:      text,
				History:   history,
				ToolCalls: calls,
				Usage:     usage,
				Model:     model,
				LatencyMs: time.Since(start).Milliseconds(),
			}, nil
		}

		assistant := Message{Role: RoleAssistant}
		var results []*genai.Part
		var toolMsgs []Message
		for _, fc := range fcs {
			call := ToolCall{ID: fc.ID, Name: fc.Name, Arguments: fc.Args}
			assistant.ToolCalls = append(assistant.ToolCalls, call)
			calls = append(calls, call)

			result := g.runTool(ctx, handlers, call)
			results = append(results, genai.NewPartFromFunctionResponse(fc.Name, map[string]any{"result": result}))
			toolMsgs = append(toolMsgs, NewToolMessage(fc.Name, result))
		}

		history = append(history, assistant)
		history = append(history, toolMsgs...)
		contents = append(contents, functionCallContent(assistant.ToolCalls))
		contents = append(contents, genai.NewContentFromParts(results, genai.RoleUser))
	}
}

func (g *Gemini) generate(ctx context.Context, model string, contents []*genai.Content, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	if g.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.config.Timeout)
		defer cancel()
	}

	resp, err := g.client.Models.GenerateContent(ctx, model, contents, cfg)
	if err != nil {
		var apiErr genai.APIError
		if errors.As(err, &apiErr) {
			return nil, &APIError{
				StatusCode: apiErr.Code,
				Message:    apiErr.Message,
				Code:       apiErr.Status,
				Provider:   providerGemini,
			}
		}
		return nil, WrapError(providerGemini, err)
	}
	if len(resp.Candidates) == 0 {
		return nil, WrapError(providerGemini, ErrEmptyResponse)
	}
	return resp, nil
}

// runTool executes one call. Failures are reported back to the model as
// text rather than aborting the turn.
func (g *Gemini) runTool(ctx context.Context, tools map[string]Tool, call ToolCall) string {
	tool, ok := tools[call.Name]
	if !ok || tool.Handler == nil {
		g.logger.Warn("model called unknown tool", "tool", call.Name)
		return fmt.Sprintf("Error: Unknown function '%s' called.", call.Name)
	}

	start := time.Now()
	result, err := tool.Handler(ctx, call.Arguments)
	if err != nil {
		g.logger.Warn("tool failed", "tool", call.Name, "error", err)
		return fmt.Sprintf("Error: %v", err)
	}
	g.logger.Debug("tool completed",
		"tool", call.Name,
		"result_len", len(result),
		"latency", time.Since(start),
	)
	return result
}

func (g *Gemini) generateConfig(tools []Tool) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{
		Temperature:     ptr(float32(g.config.Temperature)),
		MaxOutputTokens: int32(g.config.MaxTokens),
	}
	if g.config.SystemPrompt != "" {
		cfg.SystemInstruction = genai.NewContentFromText(g.config.SystemPrompt, genai.RoleUser)
	}
	if len(tools) > 0 {
		decls := make([]*genai.FunctionDeclaration, 0, len(tools))
		for _, t := range tools {
			decls = append(decls, &genai.FunctionDeclaration{
				Name:                 t.Name,
				Description:          t.Description,
				ParametersJsonSchema: t.Parameters,
			})
		}
		cfg.Tools = []*genai.Tool{{FunctionDeclarations: decls}}
	}
	return cfg
}

// Close releases resources. The genai client holds none that need closing.
func (g *Gemini) Close() error {
	return nil
}

// toContents converts history into Gemini contents. Consecutive tool
// results are merged into a single user turn.
func toContents(history []Message) []*genai.Content {
	var out []*genai.Content
	for i := 0; i < len(history); i++ {
		m := history[i]
		switch m.Role {
		case RoleUser:
			out = append(out, genai.NewContentFromText(m.Content, genai.RoleUser))
		case RoleAssistant:
			if len(m.ToolCalls) > 0 {
				out = append(out, functionCallContent(m.ToolCalls))
			} else {
				out = append(out, genai.NewContentFromText(m.Content, genai.RoleModel))
			}
		case RoleTool:
			var parts []*genai.Part
			for ; i < len(history) && history[i].Role == RoleTool; i++ {
				parts = append(parts, genai.NewPartFromFunctionResponse(
					history[i].Name, map[string]any{"result": history[i].Content}))
			}
			i--
			out = append(out, genai.NewContentFromParts(parts, genai.RoleUser))
		}
	}
	return out
}

func functionCallContent(calls []ToolCall) *genai.Content {
	parts := make([]*genai.Part, 0, len(calls))
	for _, c := range calls {
		parts = append(parts, genai.NewPartFromFunctionCall(c.Name, c.Arguments))
	}
	return genai.NewContentFromParts(parts, genai.RoleModel)
}

func addUsage(u Usage, resp *genai.GenerateContentResponse) Usage {
	if md := resp.UsageMetadata; md != nil {
		u.PromptTokens += int(md.PromptTokenCount)
		u.CompletionTokens += int(md.CandidatesTokenCount)
		u.TotalTokens += int(md.TotalTokenCount)
	}
	return u
}

func ptr[T any](v T) *T {
	return &v
}

// Verify Gemini implements Provider at compile time.
var _ Provider = (*Gemini)(nil)
