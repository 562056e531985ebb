package llm

import (
	"encoding/json"
	"strings"
	"testing"
)

const openaiToolCallBody = `{
	"id": "chatcmpl-1",
	"choices": [{
		"message": {
			"role": "assistant",
			"content": "Reading the file now.",
			"tool_calls": [{
				"id": "call_abc",
				"type": "function",
				"function": {"name": "file_read", "arguments": "{\"path\":\"main.go\"}"}
			}]
		},
		"finish_reason": "tool_calls"
	}],
	"usage": {"prompt_tokens": 42, "completion_tokens": 17, "total_tokens": 59}
}`

const openaiTextBody = `{
	"id": "chatcmpl-2",
	"choices": [{
		"message": {"role": "assistant", "content": "All done."},
		"finish_reason": "stop"
	}],
	"usage": {"prompt_tokens": 50, "completion_tokens": 5, "total_tokens": 55}
}`

func openaiRaw(body string) *RawResponse {
	return &RawResponse{Provider: "openai", Body: json.RawMessage(body)}
}

func TestOpenAIParseToolCalls(t *testing.T) {
	a := NewOpenAIAdapter("test-key")

	calls, err := a.ParseToolCalls(openaiRaw(openaiToolCallBody))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(calls) != 1 {
		t.Fatalf("expected 1 tool call, got %d", len(calls))
	}
	if calls[0].ID != "call_abc" {
		t.Errorf("expected provider-sourced ID, got %q", calls[0].ID)
	}
	if calls[0].Name != "file_read" {
		t.Errorf("expected name file_read, got %q", calls[0].Name)
	}
}

func TestOpenAIParseToolCallsEmpty(t *testing.T) {
	a := NewOpenAIAdapter("test-key")

	calls, err := a.ParseToolCalls(openaiRaw(openaiTextBody))
	if err != nil {
		t.Fatalf("a response without tool calls is not an error: %v", err)
	}
	if len(calls) != 0 {
		t.Errorf("expected no tool calls, got %d", len(calls))
	}
}

func TestOpenAIFabricatesMissingCallIDs(t *testing.T) {
	a := NewOpenAIAdapter("test-key")

	body := `{
		"choices": [{
			"message": {"role": "assistant", "tool_calls": [
				{"type": "function", "function": {"name": "a", "arguments": "{}"}},
				{"type": "function", "function": {"name": "b", "arguments": "{}"}}
			]},
			"finish_reason": "tool_calls"
		}]
	}`
	calls, err := a.ParseToolCalls(openaiRaw(body))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(calls) != 2 {
		t.Fatalf("expected 2 calls, got %d", len(calls))
	}
	if calls[0].ID == calls[1].ID {
		t.Errorf("fabricated IDs must not collide within a response: %q", calls[0].ID)
	}
}

func TestOpenAIIsToolCallResponse(t *testing.T) {
	a := NewOpenAIAdapter("test-key")

	if !a.IsToolCallResponse(openaiRaw(openaiToolCallBody)) {
		t.Error("expected tool call response to be detected")
	}
	if a.IsToolCallResponse(openaiRaw(openaiTextBody)) {
		t.Error("expected text response not to be detected as tool call")
	}
}

func TestOpenAIExtractTextAndUsage(t *testing.T) {
	a := NewOpenAIAdapter("test-key")

	if got := a.ExtractTextContent(openaiRaw(openaiTextBody)); got != "All done." {
		t.Errorf("expected text content, got %q", got)
	}

	usage := a.ExtractTokenUsage(openaiRaw(openaiToolCallBody))
	if usage.InputTokens != 42 || usage.OutputTokens != 17 || usage.TotalTokens != 59 {
		t.Errorf("unexpected usage: %+v", usage)
	}

	usage = a.ExtractTokenUsage(openaiRaw(`{"choices":[]}`))
	if usage != (Usage{}) {
		t.Errorf("expected zero-filled usage, got %+v", usage)
	}
}

func TestOpenAIFormatToolResultsErrorPrefix(t *testing.T) {
	a := NewOpenAIAdapter("test-key")

	formatted, err := a.FormatToolResults([]ToolResult{
		SuccessResult("call_1", "ok"),
		ErrorResult("call_2", "denied by user"),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	msgs := formatted.([]openaiMessage)
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if msgs[0].Role != "tool" || msgs[0].ToolCallID != "call_1" {
		t.Errorf("tool message malformed: %+v", msgs[0])
	}
	if strings.HasPrefix(msgs[0].Content, openaiErrorPrefix) {
		t.Error("success result must not carry the error prefix")
	}
	// No native flag in this protocol; errors are distinguishable via prefix.
	if !strings.HasPrefix(msgs[1].Content, openaiErrorPrefix) {
		t.Errorf("error result missing prefix: %q", msgs[1].Content)
	}
}

func TestOpenAIFormatTools(t *testing.T) {
	a := NewOpenAIAdapter("test-key")

	formatted, err := a.FormatTools([]ToolDefinition{{
		Name:        "shell_exec",
		Description: "Run a shell command.",
		InputSchema: map[string]interface{}{"type": "object"},
	}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	data, _ := json.Marshal(formatted)
	var parsed []struct {
		Type     string `json:"type"`
		Function struct {
			Name       string                 `json:"name"`
			Parameters map[string]interface{} `json:"parameters"`
		} `json:"function"`
	}
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(parsed) != 1 || parsed[0].Type != "function" || parsed[0].Function.Name != "shell_exec" {
		t.Fatalf("tool definition did not round-trip: %s", data)
	}
}

// The OpenRouter adapter is pure delegation; given the same raw response it
// must produce identical tool calls, text, and usage.
func TestOpenRouterDelegatesToOpenAI(t *testing.T) {
	openai := NewOpenAIAdapter("test-key")
	gateway := NewOpenRouterAdapter("test-key")

	for _, body := range []string{openaiToolCallBody, openaiTextBody} {
		raw := openaiRaw(body)

		wantCalls, err := openai.ParseToolCalls(raw)
		if err != nil {
			t.Fatalf("openai parse: %v", err)
		}
		gotCalls, err := gateway.ParseToolCalls(raw)
		if err != nil {
			t.Fatalf("openrouter parse: %v", err)
		}
		if len(wantCalls) != len(gotCalls) {
			t.Fatalf("call counts differ: %d vs %d", len(wantCalls), len(gotCalls))
		}
		for i := range wantCalls {
			if wantCalls[i].ID != gotCalls[i].ID || wantCalls[i].Name != gotCalls[i].Name ||
				string(wantCalls[i].Input) != string(gotCalls[i].Input) {
				t.Errorf("call %d differs: %+v vs %+v", i, wantCalls[i], gotCalls[i])
			}
		}

		if openai.ExtractTextContent(raw) != gateway.ExtractTextContent(raw) {
			t.Error("text content differs between adapters")
		}
		if openai.ExtractTokenUsage(raw) != gateway.ExtractTokenUsage(raw) {
			t.Error("usage differs between adapters")
		}
		if openai.IsToolCallResponse(raw) != gateway.IsToolCallResponse(raw) {
			t.Error("tool call detection differs between adapters")
		}
	}
}
