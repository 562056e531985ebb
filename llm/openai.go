package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
)

const openaiBaseURL = "https://api.openai.com/v1"

// openaiErrorPrefix marks error tool results. Chat Completions has no native
// error flag on tool messages, so the prefix is the distinguishable encoding.
const openaiErrorPrefix = "ERROR: "

// OpenAIAdapter talks to any Chat Completions compatible server. The base
// URL is configurable so local gateways and hosted OpenAI-compatible
// providers route through the same adapter.
type OpenAIAdapter struct {
	name       string
	apiKey     string
	baseURL    string
	headers    map[string]string
	httpClient *http.Client
}

// OpenAIOption configures an OpenAIAdapter.
type OpenAIOption func(*OpenAIAdapter)

// WithBaseURL points the adapter at an OpenAI-compatible server.
func WithBaseURL(baseURL string) OpenAIOption {
	return func(a *OpenAIAdapter) {
		a.baseURL = baseURL
	}
}

// WithProviderName overrides the routing name (for gateways that share the
// wire format but register under their own identifier).
func WithProviderName(name string) OpenAIOption {
	return func(a *OpenAIAdapter) {
		a.name = name
	}
}

// WithExtraHeaders adds headers to every request (gateway attribution
// headers and the like).
func WithExtraHeaders(headers map[string]string) OpenAIOption {
	return func(a *OpenAIAdapter) {
		for k, v := range headers {
			a.headers[k] = v
		}
	}
}

// NewOpenAIAdapter creates an adapter for the Chat Completions API. An
// empty apiKey falls back to the OPENAI_API_KEY environment variable.
func NewOpenAIAdapter(apiKey string, opts ...OpenAIOption) *OpenAIAdapter {
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	a := &OpenAIAdapter{
		name:       "openai",
		apiKey:     apiKey,
		baseURL:    openaiBaseURL,
		headers:    make(map[string]string),
		httpClient: &http.Client{Timeout: defaultHTTPTimeout},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Name returns the provider identifier.
func (a *OpenAIAdapter) Name() string { return a.name }

type openaiToolCall struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

type openaiMessage struct {
	Role       string           `json:"role"`
	Content    string           `json:"content"`
	ToolCalls  []openaiToolCall `json:"tool_calls,omitempty"`
	ToolCallID string           `json:"tool_call_id,omitempty"`
}

type openaiRequest struct {
	Model       string          `json:"model"`
	Messages    []openaiMessage `json:"messages"`
	Tools       interface{}     `json:"tools,omitempty"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
	Temperature *float64        `json:"temperature,omitempty"`
}

type openaiResponse struct {
	ID      string `json:"id"`
	Choices []struct {
		Message      openaiMessage `json:"message"`
		FinishReason string        `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// Complete performs one Chat Completions round trip.
func (a *OpenAIAdapter) Complete(ctx context.Context, req Request) (*RawResponse, error) {
	body, err := a.buildRequest(req)
	if err != nil {
		return nil, err
	}

	headers := map[string]string{"authorization": "Bearer " + a.apiKey}
	for k, v := range a.headers {
		headers[k] = v
	}
	data, err := postJSON(ctx, a.httpClient, a.baseURL+"/chat/completions", headers, body, a.Name())
	if err != nil {
		return nil, err
	}
	return &RawResponse{Provider: a.Name(), Body: data}, nil
}

func (a *OpenAIAdapter) buildRequest(req Request) (*openaiRequest, error) {
	out := &openaiRequest{
		Model:       req.Model,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	}

	if req.System != "" {
		out.Messages = append(out.Messages, openaiMessage{Role: "system", Content: req.System})
	}

	if len(req.Tools) > 0 {
		tools, err := a.FormatTools(req.Tools)
		if err != nil {
			return nil, err
		}
		out.Tools = tools
	}

	for _, msg := range req.Messages {
		switch msg.Role {
		case RoleSystem:
			out.Messages = append(out.Messages, openaiMessage{Role: "system", Content: msg.TextContent()})
		case RoleUser:
			out.Messages = append(out.Messages, openaiMessage{Role: "user", Content: msg.TextContent()})
		case RoleAssistant:
			om := openaiMessage{Role: "assistant", Content: msg.TextContent()}
			for _, call := range msg.ToolCalls() {
				tc := openaiToolCall{ID: call.ID, Type: "function"}
				tc.Function.Name = call.Name
				tc.Function.Arguments = string(call.Input)
				if tc.Function.Arguments == "" {
					tc.Function.Arguments = "{}"
				}
				om.ToolCalls = append(om.ToolCalls, tc)
			}
			out.Messages = append(out.Messages, om)
		case RoleTool:
			var results []ToolResult
			for _, part := range msg.Content {
				if part.Kind == ContentToolResult && part.ToolResult != nil {
					results = append(results, *part.ToolResult)
				}
			}
			if len(results) == 0 {
				continue
			}
			formatted, err := a.FormatToolResults(results)
			if err != nil {
				return nil, err
			}
			out.Messages = append(out.Messages, formatted.([]openaiMessage)...)
		}
	}

	return out, nil
}

// FormatTools renders tool definitions in the tools[].function shape.
func (a *OpenAIAdapter) FormatTools(tools []ToolDefinition) (interface{}, error) {
	type openaiFunction struct {
		Name        string                 `json:"name"`
		Description string                 `json:"description"`
		Parameters  map[string]interface{} `json:"parameters"`
	}
	type openaiTool struct {
		Type     string         `json:"type"`
		Function openaiFunction `json:"function"`
	}
	out := make([]openaiTool, len(tools))
	for i, t := range tools {
		schema := t.InputSchema
		if schema == nil {
			schema = map[string]interface{}{"type": "object"}
		}
		out[i] = openaiTool{
			Type:     "function",
			Function: openaiFunction{Name: t.Name, Description: t.Description, Parameters: schema},
		}
	}
	return out, nil
}

// FormatToolResults renders tool results as role:"tool" messages. Errors
// are marked with a textual prefix since the protocol has no error flag.
func (a *OpenAIAdapter) FormatToolResults(results []ToolResult) (interface{}, error) {
	out := make([]openaiMessage, len(results))
	for i, r := range results {
		content := r.Payload
		if r.IsError() {
			content = openaiErrorPrefix + content
		}
		out[i] = openaiMessage{Role: "tool", Content: content, ToolCallID: r.ToolCallID}
	}
	return out, nil
}

// ParseToolCalls extracts message.tool_calls from a Chat Completions
// response.
func (a *OpenAIAdapter) ParseToolCalls(raw *RawResponse) ([]ToolCall, error) {
	resp, err := a.decode(raw)
	if err != nil {
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return nil, nil
	}
	var calls []ToolCall
	for i, tc := range resp.Choices[0].Message.ToolCalls {
		id := tc.ID
		if id == "" {
			id = fmt.Sprintf("call_%d", i)
		}
		args := tc.Function.Arguments
		if args == "" {
			args = "{}"
		}
		calls = append(calls, ToolCall{ID: id, Name: tc.Function.Name, Input: json.RawMessage(args)})
	}
	return calls, nil
}

// IsToolCallResponse reports whether the response requests tool use.
func (a *OpenAIAdapter) IsToolCallResponse(raw *RawResponse) bool {
	resp, err := a.decode(raw)
	if err != nil || len(resp.Choices) == 0 {
		return false
	}
	return len(resp.Choices[0].Message.ToolCalls) > 0 ||
		resp.Choices[0].FinishReason == "tool_calls"
}

// ExtractTextContent returns the assistant message content, or "".
func (a *OpenAIAdapter) ExtractTextContent(raw *RawResponse) string {
	resp, err := a.decode(raw)
	if err != nil || len(resp.Choices) == 0 {
		return ""
	}
	return resp.Choices[0].Message.Content
}

// ExtractTokenUsage returns the reported usage, zero-filled when absent.
func (a *OpenAIAdapter) ExtractTokenUsage(raw *RawResponse) Usage {
	resp, err := a.decode(raw)
	if err != nil {
		return Usage{}
	}
	total := resp.Usage.TotalTokens
	if total == 0 {
		total = resp.Usage.PromptTokens + resp.Usage.CompletionTokens
	}
	return Usage{
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
		TotalTokens:  total,
	}
}

func (a *OpenAIAdapter) decode(raw *RawResponse) (*openaiResponse, error) {
	if raw == nil || len(raw.Body) == 0 {
		return nil, &InvalidToolCallError{ClientError: ClientError{Message: "empty openai response"}}
	}
	var resp openaiResponse
	if err := json.Unmarshal(raw.Body, &resp); err != nil {
		return nil, &InvalidToolCallError{ClientError: ClientError{Message: "decode openai response", Cause: err}}
	}
	return &resp, nil
}
