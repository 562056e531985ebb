package llm

import (
	"encoding/json"
	"strings"
)

// Role identifies who produced a message in a conversation.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ContentKind is the discriminator tag for ContentPart.
type ContentKind string

const (
	ContentText       ContentKind = "text"
	ContentToolCall   ContentKind = "tool_call"
	ContentToolResult ContentKind = "tool_result"
)

// ContentPart is a tagged union representing one part of a message.
type ContentPart struct {
	Kind       ContentKind `json:"kind"`
	Text       string      `json:"text,omitempty"`
	ToolCall   *ToolCall   `json:"tool_call,omitempty"`
	ToolResult *ToolResult `json:"tool_result,omitempty"`
}

// TextPart creates a text ContentPart.
func TextPart(text string) ContentPart {
	return ContentPart{Kind: ContentText, Text: text}
}

// ToolCallPart creates a tool call ContentPart.
func ToolCallPart(call ToolCall) ContentPart {
	return ContentPart{Kind: ContentToolCall, ToolCall: &call}
}

// ToolResultPart creates a tool result ContentPart.
func ToolResultPart(result ToolResult) ContentPart {
	return ContentPart{Kind: ContentToolResult, ToolResult: &result}
}

// Message is the fundamental unit of conversation.
type Message struct {
	Role    Role          `json:"role"`
	Content []ContentPart `json:"content"`
}

// TextContent returns the concatenation of all text content parts.
func (m Message) TextContent() string {
	var sb strings.Builder
	for _, part := range m.Content {
		if part.Kind == ContentText {
			sb.WriteString(part.Text)
		}
	}
	return sb.String()
}

// ToolCalls extracts all tool calls from the message content.
func (m Message) ToolCalls() []ToolCall {
	var calls []ToolCall
	for _, part := range m.Content {
		if part.Kind == ContentToolCall && part.ToolCall != nil {
			calls = append(calls, *part.ToolCall)
		}
	}
	return calls
}

// SystemMessage creates a system Message.
func SystemMessage(text string) Message {
	return Message{Role: RoleSystem, Content: []ContentPart{TextPart(text)}}
}

// UserMessage creates a user Message with text content.
func UserMessage(text string) Message {
	return Message{Role: RoleUser, Content: []ContentPart{TextPart(text)}}
}

// AssistantMessage creates an assistant Message from the text and tool calls
// of one model turn. Either may be empty.
func AssistantMessage(text string, calls []ToolCall) Message {
	var content []ContentPart
	if text != "" {
		content = append(content, TextPart(text))
	}
	for _, call := range calls {
		content = append(content, ToolCallPart(call))
	}
	return Message{Role: RoleAssistant, Content: content}
}

// ToolResultMessage creates a tool result Message.
func ToolResultMessage(result ToolResult) Message {
	return Message{Role: RoleTool, Content: []ContentPart{ToolResultPart(result)}}
}

// ToolDefinition describes a tool the model may request (serializable
// metadata only; execution lives in the host's registry).
type ToolDefinition struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"input_schema"`
}

// ToolCall is one model-requested invocation of a tool with concrete input.
// ID is provider-assigned and must round-trip through the result message.
type ToolCall struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input"`
}

// ResultKind distinguishes successful tool output from a failure the model
// should react to.
type ResultKind string

const (
	ResultSuccess ResultKind = "success"
	ResultError   ResultKind = "error"
)

// ToolResult is produced by executing (or refusing) a tool call.
type ToolResult struct {
	ToolCallID string     `json:"tool_call_id"`
	Kind       ResultKind `json:"kind"`
	Payload    string     `json:"payload"`
}

// SuccessResult creates a success ToolResult for the given call.
func SuccessResult(toolCallID, payload string) ToolResult {
	return ToolResult{ToolCallID: toolCallID, Kind: ResultSuccess, Payload: payload}
}

// ErrorResult creates an error ToolResult for the given call.
func ErrorResult(toolCallID, payload string) ToolResult {
	return ToolResult{ToolCallID: toolCallID, Kind: ResultError, Payload: payload}
}

// IsError reports whether the result carries a failure.
func (r ToolResult) IsError() bool {
	return r.Kind == ResultError
}

// Usage tracks token consumption. Accumulated additively across turns.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// Add returns a new Usage that is the sum of u and other.
func (u Usage) Add(other Usage) Usage {
	return Usage{
		InputTokens:  u.InputTokens + other.InputTokens,
		OutputTokens: u.OutputTokens + other.OutputTokens,
		TotalTokens:  u.TotalTokens + other.TotalTokens,
	}
}

// Request is the canonical input for one model round trip.
type Request struct {
	Model           string                 `json:"model"`
	Provider        string                 `json:"provider,omitempty"`
	System          string                 `json:"system,omitempty"`
	Messages        []Message              `json:"messages"`
	Tools           []ToolDefinition       `json:"tools,omitempty"`
	MaxTokens       int                    `json:"max_tokens,omitempty"`
	Temperature     *float64               `json:"temperature,omitempty"`
	ProviderOptions map[string]interface{} `json:"provider_options,omitempty"`
}

// RawResponse is a provider's native response body. All parse-side adapter
// operations consume it, so a delegating adapter and the adapter it wraps
// see byte-identical input.
type RawResponse struct {
	Provider string          `json:"provider"`
	Body     json.RawMessage `json:"body"`
}
