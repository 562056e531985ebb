package llm

import (
	"encoding/json"
	"testing"
)

func gollmRaw(t *testing.T, text string, in, out int) *RawResponse {
	t.Helper()
	body, err := json.Marshal(gollmEnvelope{Text: text, InputTokens: in, OutputTokens: out})
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	return &RawResponse{Provider: "ollama", Body: body}
}

func TestGollmParseToolCallsFromFencedJSON(t *testing.T) {
	a := &GollmAdapter{provider: "ollama"}

	text := "I'll read the file.\n```json\n{\"tool_calls\": [{\"name\": \"file_read\", \"input\": {\"path\": \"main.go\"}}]}\n```"
	raw := gollmRaw(t, text, 10, 20)

	calls, err := a.ParseToolCalls(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(calls) != 1 {
		t.Fatalf("expected 1 call, got %d", len(calls))
	}
	if calls[0].Name != "file_read" {
		t.Errorf("expected file_read, got %q", calls[0].Name)
	}
	if calls[0].ID != "call_0" {
		t.Errorf("expected fabricated index ID, got %q", calls[0].ID)
	}
	if !a.IsToolCallResponse(raw) {
		t.Error("expected tool call detection")
	}
}

func TestGollmParseToolCallsPlainText(t *testing.T) {
	a := &GollmAdapter{provider: "ollama"}

	raw := gollmRaw(t, "Here is the answer you asked for.", 10, 8)
	calls, err := a.ParseToolCalls(raw)
	if err != nil {
		t.Fatalf("plain text is not an error: %v", err)
	}
	if len(calls) != 0 {
		t.Errorf("expected no calls, got %d", len(calls))
	}
	if a.IsToolCallResponse(raw) {
		t.Error("plain text must not be detected as tool call")
	}
}

func TestGollmExtractTextStripsToolBlock(t *testing.T) {
	a := &GollmAdapter{provider: "ollama"}

	text := "Running the search.\n```json\n{\"tool_calls\": [{\"name\": \"glob_search\", \"input\": {}}]}\n```"
	got := a.ExtractTextContent(gollmRaw(t, text, 5, 5))
	if got != "Running the search." {
		t.Errorf("expected tool block stripped, got %q", got)
	}
}

func TestGollmExtractTokenUsage(t *testing.T) {
	a := &GollmAdapter{provider: "ollama"}

	usage := a.ExtractTokenUsage(gollmRaw(t, "hi", 12, 3))
	if usage.InputTokens != 12 || usage.OutputTokens != 3 || usage.TotalTokens != 15 {
		t.Errorf("unexpected usage: %+v", usage)
	}
}

func TestGollmFormatToolResults(t *testing.T) {
	a := &GollmAdapter{provider: "ollama"}

	formatted, err := a.FormatToolResults([]ToolResult{
		SuccessResult("call_0", "listing"),
		ErrorResult("call_1", "no such file"),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	text := formatted.(string)
	if !contains(text, "[Tool Result] (call_0): listing") {
		t.Errorf("success result missing: %q", text)
	}
	if !contains(text, "[Tool Error] (call_1): no such file") {
		t.Errorf("error result missing distinguishable prefix: %q", text)
	}
}

func contains(s, sub string) bool {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return true
		}
	}
	return false
}
