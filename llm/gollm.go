package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/teilomillet/gollm"
)

// GollmAdapter is the text-mode fallback for providers without a native
// tool-calling API, built on gollm. Tool definitions are described in the
// prompt and tool calls are parsed back out of a fenced JSON block in the
// completion text.
type GollmAdapter struct {
	provider string
	llm      gollm.LLM
	model    string
}

// GollmOption configures a GollmAdapter.
type GollmOption func(*gollmConfig)

type gollmConfig struct {
	apiKey      string
	model       string
	maxTokens   int
	temperature float64
	extraOpts   []gollm.ConfigOption
}

// WithGollmAPIKey sets the API key for the adapter.
func WithGollmAPIKey(key string) GollmOption {
	return func(c *gollmConfig) {
		c.apiKey = key
	}
}

// WithGollmModel sets the default model for the adapter.
func WithGollmModel(model string) GollmOption {
	return func(c *gollmConfig) {
		c.model = model
	}
}

// WithGollmOptions adds extra gollm configuration options.
func WithGollmOptions(opts ...gollm.ConfigOption) GollmOption {
	return func(c *gollmConfig) {
		c.extraOpts = append(c.extraOpts, opts...)
	}
}

// NewGollmAdapter creates a text-mode adapter for the given provider. If no
// API key is supplied, gollm reads it from the provider's environment
// variable.
func NewGollmAdapter(provider string, opts ...GollmOption) (*GollmAdapter, error) {
	cfg := &gollmConfig{
		maxTokens:   4096,
		temperature: 0.7,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	model := cfg.model
	if model == "" {
		if infos := ListModels(provider); len(infos) > 0 {
			model = infos[0].ID
		}
	}

	gollmOpts := []gollm.ConfigOption{
		gollm.SetProvider(provider),
		gollm.SetModel(model),
		gollm.SetMaxTokens(cfg.maxTokens),
		gollm.SetTemperature(cfg.temperature),
		gollm.SetMaxRetries(0), // retry is client middleware, not the backend's job
		gollm.SetLogLevel(gollm.LogLevelWarn),
	}
	if cfg.apiKey != "" {
		gollmOpts = append(gollmOpts, gollm.SetAPIKey(cfg.apiKey))
	}
	gollmOpts = append(gollmOpts, cfg.extraOpts...)

	llm, err := gollm.NewLLM(gollmOpts...)
	if err != nil {
		return nil, &ConfigurationError{ClientError: ClientError{
			Message: fmt.Sprintf("create gollm backend for provider %s", provider),
			Cause:   err,
		}}
	}

	return &GollmAdapter{provider: provider, llm: llm, model: model}, nil
}

// NewGollmAdapterFromLLM wraps an existing gollm.LLM instance.
func NewGollmAdapterFromLLM(provider string, llm gollm.LLM) *GollmAdapter {
	return &GollmAdapter{provider: provider, llm: llm}
}

// Name returns the provider identifier.
func (a *GollmAdapter) Name() string { return a.provider }

// gollmEnvelope is the raw response body this adapter produces: the
// completion text plus estimated usage, since text-mode backends report
// neither structure nor token counts.
type gollmEnvelope struct {
	Text         string `json:"text"`
	InputTokens  int    `json:"input_tokens"`
	OutputTokens int    `json:"output_tokens"`
}

// Complete flattens the conversation into a single prompt, generates, and
// wraps the completion text in the adapter's envelope.
func (a *GollmAdapter) Complete(ctx context.Context, req Request) (*RawResponse, error) {
	prompt, inputEstimate, err := a.translateRequest(req)
	if err != nil {
		return nil, err
	}

	if req.Model != "" {
		a.llm.SetOption("model", req.Model)
	}
	if req.Temperature != nil {
		a.llm.SetOption("temperature", *req.Temperature)
	}
	if req.MaxTokens > 0 {
		a.llm.SetOption("max_tokens", req.MaxTokens)
	}

	text, err := a.llm.Generate(ctx, prompt)
	if err != nil {
		return nil, a.translateError(err)
	}

	body, err := json.Marshal(gollmEnvelope{
		Text:         text,
		InputTokens:  inputEstimate,
		OutputTokens: len(text) / 4, // rough approximation
	})
	if err != nil {
		return nil, &InvalidRequestError{ProviderError: ProviderError{
			ClientError: ClientError{Message: "marshal response envelope", Cause: err},
			Provider:    a.provider,
		}}
	}
	return &RawResponse{Provider: a.provider, Body: body}, nil
}

// translateRequest converts a canonical Request into a gollm Prompt. The
// second return is the estimated input token count.
func (a *GollmAdapter) translateRequest(req Request) (*gollm.Prompt, int, error) {
	systemPrompt := req.System
	var userParts []string

	for _, msg := range req.Messages {
		switch msg.Role {
		case RoleSystem:
			if systemPrompt != "" {
				systemPrompt += "\n"
			}
			systemPrompt += msg.TextContent()
		case RoleUser:
			userParts = append(userParts, msg.TextContent())
		case RoleAssistant:
			if text := msg.TextContent(); text != "" {
				userParts = append(userParts, "[Assistant]: "+text)
			}
			for _, call := range msg.ToolCalls() {
				userParts = append(userParts, fmt.Sprintf("[Assistant called tool %s]: %s", call.Name, string(call.Input)))
			}
		case RoleTool:
			for _, part := range msg.Content {
				if part.Kind == ContentToolResult && part.ToolResult != nil {
					prefix := "[Tool Result]"
					if part.ToolResult.IsError() {
						prefix = "[Tool Error]"
					}
					userParts = append(userParts, prefix+": "+part.ToolResult.Payload)
				}
			}
		}
	}

	promptText := strings.Join(userParts, "\n")
	if promptText == "" {
		promptText = "Hello"
	}

	if len(req.Tools) > 0 {
		toolsBlock, err := a.FormatTools(req.Tools)
		if err != nil {
			return nil, 0, err
		}
		if systemPrompt != "" {
			systemPrompt += "\n\n"
		}
		systemPrompt += toolsBlock.(string)
	}

	var promptOpts []gollm.PromptOption
	if systemPrompt != "" {
		promptOpts = append(promptOpts, gollm.WithSystemPrompt(strings.TrimSpace(systemPrompt), gollm.CacheTypeEphemeral))
	}
	if req.MaxTokens > 0 {
		promptOpts = append(promptOpts, gollm.WithMaxLength(req.MaxTokens))
	}

	estimate := (len(systemPrompt) + len(promptText)) / 4
	return gollm.NewPrompt(promptText, promptOpts...), estimate, nil
}

// FormatTools renders tool definitions as a prompt block instructing the
// model to call tools via a fenced JSON object.
func (a *GollmAdapter) FormatTools(tools []ToolDefinition) (interface{}, error) {
	var sb strings.Builder
	sb.WriteString("# Available Tools\n\n")
	sb.WriteString("To call one or more tools, respond with exactly one fenced JSON block:\n\n")
	sb.WriteString("```json\n{\"tool_calls\": [{\"name\": \"<tool name>\", \"input\": {}}]}\n```\n\n")
	sb.WriteString("Respond with plain text instead when no tool is needed.\n")
	for _, t := range tools {
		schema, err := json.Marshal(t.InputSchema)
		if err != nil {
			return nil, &InvalidRequestError{ProviderError: ProviderError{
				ClientError: ClientError{Message: fmt.Sprintf("marshal schema for tool %s", t.Name), Cause: err},
				Provider:    a.provider,
			}}
		}
		fmt.Fprintf(&sb, "\n## %s\n%s\nInput schema: %s\n", t.Name, t.Description, schema)
	}
	return sb.String(), nil
}

// FormatToolResults renders tool results as a textual block, errors marked
// with a prefix.
func (a *GollmAdapter) FormatToolResults(results []ToolResult) (interface{}, error) {
	var parts []string
	for _, r := range results {
		prefix := "[Tool Result]"
		if r.IsError() {
			prefix = "[Tool Error]"
		}
		parts = append(parts, fmt.Sprintf("%s (%s): %s", prefix, r.ToolCallID, r.Payload))
	}
	return strings.Join(parts, "\n"), nil
}

// gollmToolCallBlock is the fenced JSON shape the prompt asks for.
type gollmToolCallBlock struct {
	ToolCalls []struct {
		Name  string          `json:"name"`
		Input json.RawMessage `json:"input"`
	} `json:"tool_calls"`
}

// ParseToolCalls extracts tool calls from the completion text. Text-mode
// backends have no call IDs, so index-suffixed ones are fabricated.
func (a *GollmAdapter) ParseToolCalls(raw *RawResponse) ([]ToolCall, error) {
	env, err := a.decode(raw)
	if err != nil {
		return nil, err
	}
	block, found := extractFencedJSON(env.Text)
	if !found {
		return nil, nil
	}
	var parsed gollmToolCallBlock
	if err := json.Unmarshal([]byte(block), &parsed); err != nil {
		// Text that merely looks like a fenced block is not a tool call.
		return nil, nil
	}
	var calls []ToolCall
	for i, rc := range parsed.ToolCalls {
		if rc.Name == "" {
			continue
		}
		input := rc.Input
		if len(input) == 0 {
			input = json.RawMessage(`{}`)
		}
		calls = append(calls, ToolCall{
			ID:    fmt.Sprintf("call_%d", i),
			Name:  rc.Name,
			Input: input,
		})
	}
	return calls, nil
}

// IsToolCallResponse reports whether the completion carries a tool call
// block.
func (a *GollmAdapter) IsToolCallResponse(raw *RawResponse) bool {
	calls, err := a.ParseToolCalls(raw)
	return err == nil && len(calls) > 0
}

// ExtractTextContent returns the completion text with any tool call block
// removed.
func (a *GollmAdapter) ExtractTextContent(raw *RawResponse) string {
	env, err := a.decode(raw)
	if err != nil {
		return ""
	}
	if !a.IsToolCallResponse(raw) {
		return env.Text
	}
	return strings.TrimSpace(removeFencedJSON(env.Text))
}

// ExtractTokenUsage returns the estimated usage carried by the envelope.
func (a *GollmAdapter) ExtractTokenUsage(raw *RawResponse) Usage {
	env, err := a.decode(raw)
	if err != nil {
		return Usage{}
	}
	return Usage{
		InputTokens:  env.InputTokens,
		OutputTokens: env.OutputTokens,
		TotalTokens:  env.InputTokens + env.OutputTokens,
	}
}

func (a *GollmAdapter) decode(raw *RawResponse) (*gollmEnvelope, error) {
	if raw == nil || len(raw.Body) == 0 {
		return nil, &InvalidToolCallError{ClientError: ClientError{Message: "empty gollm response"}}
	}
	var env gollmEnvelope
	if err := json.Unmarshal(raw.Body, &env); err != nil {
		return nil, &InvalidToolCallError{ClientError: ClientError{Message: "decode gollm response", Cause: err}}
	}
	return &env, nil
}

// extractFencedJSON returns the contents of the first ```json fenced block,
// or of a bare JSON object containing "tool_calls".
func extractFencedJSON(text string) (string, bool) {
	for _, fence := range []string{"```json", "```"} {
		start := strings.Index(text, fence)
		if start == -1 {
			continue
		}
		rest := text[start+len(fence):]
		end := strings.Index(rest, "```")
		if end == -1 {
			continue
		}
		body := strings.TrimSpace(rest[:end])
		if strings.Contains(body, `"tool_calls"`) {
			return body, true
		}
	}
	if start := strings.Index(text, `{"tool_calls"`); start != -1 {
		return strings.TrimSpace(text[start:]), true
	}
	return "", false
}

// removeFencedJSON strips the tool call block from the completion text.
func removeFencedJSON(text string) string {
	for _, fence := range []string{"```json", "```"} {
		start := strings.Index(text, fence)
		if start == -1 {
			continue
		}
		rest := text[start+len(fence):]
		end := strings.Index(rest, "```")
		if end == -1 {
			continue
		}
		if strings.Contains(rest[:end], `"tool_calls"`) {
			return text[:start] + rest[end+3:]
		}
	}
	if start := strings.Index(text, `{"tool_calls"`); start != -1 {
		return text[:start]
	}
	return text
}

// translateError converts a gollm error into the error taxonomy by
// classifying the message content.
func (a *GollmAdapter) translateError(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	msgLower := strings.ToLower(msg)
	switch {
	case strings.Contains(msgLower, "401") || strings.Contains(msgLower, "unauthorized") || strings.Contains(msgLower, "invalid api key"):
		return &AuthenticationError{ProviderError: ProviderError{
			ClientError: ClientError{Message: msg, Cause: err}, Provider: a.provider, StatusCode: 401,
		}}
	case strings.Contains(msgLower, "403") || strings.Contains(msgLower, "forbidden"):
		return &AccessDeniedError{ProviderError: ProviderError{
			ClientError: ClientError{Message: msg, Cause: err}, Provider: a.provider, StatusCode: 403,
		}}
	case strings.Contains(msgLower, "404") || strings.Contains(msgLower, "not found"):
		return &NotFoundError{ProviderError: ProviderError{
			ClientError: ClientError{Message: msg, Cause: err}, Provider: a.provider, StatusCode: 404,
		}}
	case strings.Contains(msgLower, "429") || strings.Contains(msgLower, "rate limit"):
		return &RateLimitError{ProviderError: ProviderError{
			ClientError: ClientError{Message: msg, Cause: err}, Provider: a.provider, StatusCode: 429, Retryable: true,
		}}
	case strings.Contains(msgLower, "context length") || strings.Contains(msgLower, "too many tokens"):
		return &ContextLengthError{ProviderError: ProviderError{
			ClientError: ClientError{Message: msg, Cause: err}, Provider: a.provider, StatusCode: 413,
		}}
	case strings.Contains(msgLower, "500") || strings.Contains(msgLower, "internal server"):
		return &ServerError{ProviderError: ProviderError{
			ClientError: ClientError{Message: msg, Cause: err}, Provider: a.provider, StatusCode: 500, Retryable: true,
		}}
	case strings.Contains(msgLower, "timeout"):
		return &RequestTimeoutError{ClientError: ClientError{Message: msg, Cause: err}}
	default:
		return &ProviderError{
			ClientError: ClientError{Message: msg, Cause: err},
			Provider:    a.provider,
			Retryable:   true,
		}
	}
}
