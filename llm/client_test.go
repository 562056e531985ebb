package llm

import (
	"context"
	"encoding/json"
	"testing"
)

// stubAdapter is a minimal test double for Adapter.
type stubAdapter struct {
	name string
	body string
	err  error
}

func (s *stubAdapter) Name() string { return s.name }

func (s *stubAdapter) Complete(ctx context.Context, req Request) (*RawResponse, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &RawResponse{Provider: s.name, Body: json.RawMessage(s.body)}, nil
}

func (s *stubAdapter) FormatTools(tools []ToolDefinition) (interface{}, error)      { return nil, nil }
func (s *stubAdapter) FormatToolResults(results []ToolResult) (interface{}, error)  { return nil, nil }
func (s *stubAdapter) ParseToolCalls(raw *RawResponse) ([]ToolCall, error)          { return nil, nil }
func (s *stubAdapter) IsToolCallResponse(raw *RawResponse) bool                     { return false }
func (s *stubAdapter) ExtractTextContent(raw *RawResponse) string                   { return "" }
func (s *stubAdapter) ExtractTokenUsage(raw *RawResponse) Usage                     { return Usage{} }

func TestClientComplete(t *testing.T) {
	stub := &stubAdapter{name: "test-provider", body: `{"ok":true}`}
	client := NewClient(WithAdapter(stub))

	raw, err := client.Complete(context.Background(), Request{
		Model:    "test-model",
		Messages: []Message{UserMessage("Hi")},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if raw.Provider != "test-provider" {
		t.Errorf("expected provider test-provider, got %q", raw.Provider)
	}
}

func TestClientProviderRouting(t *testing.T) {
	openai := &stubAdapter{name: "openai", body: `{"from":"openai"}`}
	anthropic := &stubAdapter{name: "anthropic", body: `{"from":"anthropic"}`}

	client := NewClient(
		WithAdapter(openai),
		WithAdapter(anthropic),
		WithDefaultProvider("openai"),
	)

	// Explicit provider wins.
	raw, err := client.Complete(context.Background(), Request{
		Model:    "gpt-5.2",
		Provider: "anthropic",
		Messages: []Message{UserMessage("Hi")},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if raw.Provider != "anthropic" {
		t.Errorf("expected anthropic, got %q", raw.Provider)
	}

	// Default provider otherwise.
	raw, err = client.Complete(context.Background(), Request{
		Model:    "claude-opus-4-6",
		Messages: []Message{UserMessage("Hi")},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if raw.Provider != "openai" {
		t.Errorf("expected default openai, got %q", raw.Provider)
	}
}

func TestClientCatalogInference(t *testing.T) {
	anthropic := &stubAdapter{name: "anthropic", body: `{}`}
	openai := &stubAdapter{name: "openai", body: `{}`}
	client := NewClient(WithAdapter(anthropic), WithAdapter(openai))

	// No default (two adapters registered), no explicit provider; the
	// catalog maps the model name to its provider.
	adapter, err := client.AdapterFor(Request{Model: "claude-sonnet-4-5"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if adapter.Name() != "anthropic" {
		t.Errorf("expected catalog inference to pick anthropic, got %q", adapter.Name())
	}
}

func TestClientNoProvider(t *testing.T) {
	client := NewClient()
	_, err := client.Complete(context.Background(), Request{
		Model:    "unknown-model",
		Messages: []Message{UserMessage("Hi")},
	})
	if err == nil {
		t.Fatal("expected error for no provider")
	}
	if _, ok := err.(*ConfigurationError); !ok {
		t.Errorf("expected ConfigurationError, got %T", err)
	}
}

func TestClientMiddlewareOrder(t *testing.T) {
	stub := &stubAdapter{name: "test", body: `{}`}

	var order []string
	first := func(ctx context.Context, req Request, next func(context.Context, Request) (*RawResponse, error)) (*RawResponse, error) {
		order = append(order, "first")
		return next(ctx, req)
	}
	second := func(ctx context.Context, req Request, next func(context.Context, Request) (*RawResponse, error)) (*RawResponse, error) {
		order = append(order, "second")
		return next(ctx, req)
	}

	client := NewClient(WithAdapter(stub), WithMiddleware(first, second))
	if _, err := client.Complete(context.Background(), Request{Model: "m"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(order) != 2 || order[0] != "first" || order[1] != "second" {
		t.Errorf("middleware ran out of order: %v", order)
	}
}

func TestRetryMiddleware(t *testing.T) {
	calls := 0
	flaky := func(ctx context.Context, req Request) (*RawResponse, error) {
		calls++
		if calls < 2 {
			return nil, &ServerError{ProviderError: ProviderError{
				ClientError: ClientError{Message: "boom"}, Retryable: true,
			}}
		}
		return &RawResponse{Provider: "test"}, nil
	}

	mw := RetryMiddleware(RetryPolicy{MaxRetries: 2, BaseDelay: 0.001, BackoffMultiplier: 1, MaxDelay: 0.001})
	raw, err := mw(context.Background(), Request{}, flaky)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if raw == nil || calls != 2 {
		t.Errorf("expected success on second call, calls=%d", calls)
	}
}
