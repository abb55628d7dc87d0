package inference

import "context"

// Role defines message roles in a conversation.
type Role string

const (
	// RoleUser is for user messages.
	RoleUser Role = "user"

	// RoleAssistant is for assistant responses.
	RoleAssistant Role = "assistant"

	// RoleTool is for tool/function results.
	RoleTool Role = "tool"
)

// Message represents a chat message in a conversation.
type Message struct {
	// Role identifies the message sender.
	Role Role

	// Content is the text content of the message.
	Content string

	// Name is the tool name, used for tool messages.
	Name string

	// ToolCalls are function calls requested by the assistant.
	ToolCalls []ToolCall
}

// ToolCall represents a function call request from the model.
type ToolCall struct {
	// ID identifies this call when the provider assigns one.
	ID string

	// Name of the function to call.
	Name string

	// Arguments decoded from the model's request.
	Arguments map[string]any
}

// Tool defines a callable function for the model.
type Tool struct {
	// Name of the function.
	Name string

	// Description explains what the function does (shown to the model).
	Description string

	// Parameters as JSON Schema.
	Parameters map[string]any

	// Handler runs the tool. Its result string is returned to the model.
	Handler func(ctx context.Context, args map[string]any) (string, error)
}

// NewUserMessage creates a user message.
func NewUserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// NewAssistantMessage creates an assistant message.
func NewAssistantMessage(content string) Message {
	return Message{Role: RoleAssistant, Content: content}
}

// NewToolMessage creates a tool result message.
func NewToolMessage(name, content string) Message {
	return Message{Role: RoleTool, Name: name, Content: content}
}

// NewTool creates a function tool definition.
func NewTool(name, description string, parameters map[string]any, handler func(ctx context.Context, args map[string]any) (string, error)) Tool {
	return Tool{
		Name:        name,
		Description: description,
		Parameters:  parameters,
		Handler:     handler,
	}
}
