package llm

import (
	"context"
	"os"
)

const openrouterBaseURL = "https://openrouter.ai/api/v1"

// OpenRouterAdapter routes through the OpenRouter gateway. The gateway
// speaks the Chat Completions wire format, so every method delegates to an
// embedded OpenAIAdapter; the loop cannot tell the two apart.
type OpenRouterAdapter struct {
	inner *OpenAIAdapter
}

// NewOpenRouterAdapter creates an adapter for the OpenRouter gateway. An
// empty apiKey falls back to the OPENROUTER_API_KEY environment variable.
func NewOpenRouterAdapter(apiKey string) *OpenRouterAdapter {
	if apiKey == "" {
		apiKey = os.Getenv("OPENROUTER_API_KEY")
	}
	return &OpenRouterAdapter{
		inner: NewOpenAIAdapter(apiKey,
			WithProviderName("openrouter"),
			WithBaseURL(openrouterBaseURL),
		),
	}
}

func (a *OpenRouterAdapter) Name() string { return "openrouter" }

func (a *OpenRouterAdapter) Complete(ctx context.Context, req Request) (*RawResponse, error) {
	return a.inner.Complete(ctx, req)
}

func (a *OpenRouterAdapter) FormatTools(tools []ToolDefinition) (interface{}, error) {
	return a.inner.FormatTools(tools)
}

func (a *OpenRouterAdapter) FormatToolResults(results []ToolResult) (interface{}, error) {
	return a.inner.FormatToolResults(results)
}

func (a *OpenRouterAdapter) ParseToolCalls(raw *RawResponse) ([]ToolCall, error) {
	return a.inner.ParseToolCalls(raw)
}

func (a *OpenRouterAdapter) IsToolCallResponse(raw *RawResponse) bool {
	return a.inner.IsToolCallResponse(raw)
}

func (a *OpenRouterAdapter) ExtractTextContent(raw *RawResponse) string {
	return a.inner.ExtractTextContent(raw)
}

func (a *OpenRouterAdapter) ExtractTokenUsage(raw *RawResponse) Usage {
	return a.inner.ExtractTokenUsage(raw)
}
