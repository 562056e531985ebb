package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
)

const (
	anthropicBaseURL = "https://api.anthropic.com"
	anthropicVersion = "2023-06-01"
)

const defaultAnthropicMaxTokens = 8192

// AnthropicAdapter talks to the Claude Messages API. Tool calls arrive as
// tool_use content blocks and results go back as tool_result blocks with a
// native is_error flag.
type AnthropicAdapter struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// NewAnthropicAdapter creates an adapter for the Anthropic Messages API.
// An empty apiKey falls back to the ANTHROPIC_API_KEY environment variable;
// an empty baseURL uses the public endpoint.
func NewAnthropicAdapter(apiKey, baseURL string) *AnthropicAdapter {
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if baseURL == "" {
		baseURL = anthropicBaseURL
	}
	return &AnthropicAdapter{
		apiKey:     apiKey,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: defaultHTTPTimeout},
	}
}

// Name returns the provider identifier.
func (a *AnthropicAdapter) Name() string { return "anthropic" }

// anthropicContentBlock is one entry of a Messages API content array, on
// both the request and response sides.
type anthropicContentBlock struct {
	Type      string          `json:"type"`
	Text      string          `json:"text,omitempty"`
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Input     json.RawMessage `json:"input,omitempty"`
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   string          `json:"content,omitempty"`
	IsError   bool            `json:"is_error,omitempty"`
}

type anthropicMessage struct {
	Role    string                  `json:"role"`
	Content []anthropicContentBlock `json:"content"`
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	System      string             `json:"system,omitempty"`
	Messages    []anthropicMessage `json:"messages"`
	Tools       interface{}        `json:"tools,omitempty"`
	Temperature *float64           `json:"temperature,omitempty"`
}

type anthropicResponse struct {
	ID         string                  `json:"id"`
	Content    []anthropicContentBlock `json:"content"`
	StopReason string                  `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// Complete performs one Messages API round trip.
func (a *AnthropicAdapter) Complete(ctx context.Context, req Request) (*RawResponse, error) {
	body, err := a.buildRequest(req)
	if err != nil {
		return nil, err
	}

	headers := map[string]string{
		"x-api-key":         a.apiKey,
		"anthropic-version": anthropicVersion,
	}
	data, err := postJSON(ctx, a.httpClient, a.baseURL+"/v1/messages", headers, body, a.Name())
	if err != nil {
		return nil, err
	}
	return &RawResponse{Provider: a.Name(), Body: data}, nil
}

func (a *AnthropicAdapter) buildRequest(req Request) (*anthropicRequest, error) {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultAnthropicMaxTokens
	}

	out := &anthropicRequest{
		Model:       req.Model,
		MaxTokens:   maxTokens,
		System:      req.System,
		Temperature: req.Temperature,
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
			// The Messages API carries the system prompt as a top-level field.
			if out.System != "" {
				out.System += "\n"
			}
			out.System += msg.TextContent()
		case RoleUser:
			out.Messages = append(out.Messages, anthropicMessage{
				Role:    "user",
				Content: []anthropicContentBlock{{Type: "text", Text: msg.TextContent()}},
			})
		case RoleAssistant:
			var blocks []anthropicContentBlock
			for _, part := range msg.Content {
				switch part.Kind {
				case ContentText:
					if part.Text != "" {
						blocks = append(blocks, anthropicContentBlock{Type: "text", Text: part.Text})
					}
				case ContentToolCall:
					if part.ToolCall != nil {
						input := part.ToolCall.Input
						if len(input) == 0 {
							input = json.RawMessage(`{}`)
						}
						blocks = append(blocks, anthropicContentBlock{
							Type:  "tool_use",
							ID:    part.ToolCall.ID,
							Name:  part.ToolCall.Name,
							Input: input,
						})
					}
				}
			}
			if len(blocks) > 0 {
				out.Messages = append(out.Messages, anthropicMessage{Role: "assistant", Content: blocks})
			}
		case RoleTool:
			// Tool results travel back inside a user message.
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
			out.Messages = append(out.Messages, anthropicMessage{
				Role:    "user",
				Content: formatted.([]anthropicContentBlock),
			})
		}
	}

	return out, nil
}

// FormatTools renders tool definitions in the Messages API tools shape.
func (a *AnthropicAdapter) FormatTools(tools []ToolDefinition) (interface{}, error) {
	type anthropicTool struct {
		Name        string                 `json:"name"`
		Description string                 `json:"description"`
		InputSchema map[string]interface{} `json:"input_schema"`
	}
	out := make([]anthropicTool, len(tools))
	for i, t := range tools {
		schema := t.InputSchema
		if schema == nil {
			schema = map[string]interface{}{"type": "object"}
		}
		out[i] = anthropicTool{Name: t.Name, Description: t.Description, InputSchema: schema}
	}
	return out, nil
}

// FormatToolResults renders tool results as tool_result content blocks. The
// protocol has a native is_error flag, so error results use it.
func (a *AnthropicAdapter) FormatToolResults(results []ToolResult) (interface{}, error) {
	blocks := make([]anthropicContentBlock, len(results))
	for i, r := range results {
		blocks[i] = anthropicContentBlock{
			Type:      "tool_result",
			ToolUseID: r.ToolCallID,
			Content:   r.Payload,
			IsError:   r.IsError(),
		}
	}
	return blocks, nil
}

// ParseToolCalls extracts tool_use blocks from a Messages API response.
func (a *AnthropicAdapter) ParseToolCalls(raw *RawResponse) ([]ToolCall, error) {
	resp, err := a.decode(raw)
	if err != nil {
		return nil, err
	}
	var calls []ToolCall
	for i, block := range resp.Content {
		if block.Type != "tool_use" {
			continue
		}
		id := block.ID
		if id == "" {
			id = fmt.Sprintf("call_%d", i)
		}
		input := block.Input
		if len(input) == 0 {
			input = json.RawMessage(`{}`)
		}
		calls = append(calls, ToolCall{ID: id, Name: block.Name, Input: input})
	}
	return calls, nil
}

// IsToolCallResponse reports whether the response requests tool use.
func (a *AnthropicAdapter) IsToolCallResponse(raw *RawResponse) bool {
	resp, err := a.decode(raw)
	if err != nil {
		return false
	}
	if resp.StopReason == "tool_use" {
		return true
	}
	for _, block := range resp.Content {
		if block.Type == "tool_use" {
			return true
		}
	}
	return false
}

// ExtractTextContent concatenates all text blocks, or returns "".
func (a *AnthropicAdapter) ExtractTextContent(raw *RawResponse) string {
	resp, err := a.decode(raw)
	if err != nil {
		return ""
	}
	var sb strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	return sb.String()
}

// ExtractTokenUsage returns the reported usage, zero-filled when absent.
func (a *AnthropicAdapter) ExtractTokenUsage(raw *RawResponse) Usage {
	resp, err := a.decode(raw)
	if err != nil {
		return Usage{}
	}
	return Usage{
		InputTokens:  resp.Usage.InputTokens,
		OutputTokens: resp.Usage.OutputTokens,
		TotalTokens:  resp.Usage.InputTokens + resp.Usage.OutputTokens,
	}
}

func (a *AnthropicAdapter) decode(raw *RawResponse) (*anthropicResponse, error) {
	if raw == nil || len(raw.Body) == 0 {
		return nil, &InvalidToolCallError{ClientError: ClientError{Message: "empty anthropic response"}}
	}
	var resp anthropicResponse
	if err := json.Unmarshal(raw.Body, &resp); err != nil {
		return nil, &InvalidToolCallError{ClientError: ClientError{Message: "decode anthropic response", Cause: err}}
	}
	return &resp, nil
}
