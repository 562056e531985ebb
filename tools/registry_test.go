package tools

import (
	"context"
	"encoding/json"
	"testing"
)

func newTestTool(name string, policy Policy) RegisteredTool {
	return RegisteredTool{
		Definition: Definition{
			Name:          name,
			Description:   "test tool " + name,
			InputSchema:   map[string]interface{}{"type": "object"},
			DefaultPolicy: policy,
		},
		Executor: func(ctx context.Context, input json.RawMessage, env Environment) (string, error) {
			return "ok", nil
		},
	}
}

func TestRegistryRegisterAndGet(t *testing.T) {
	reg := NewRegistry()
	reg.Register(newTestTool("file_read", PolicyAllow))

	tool := reg.Get("file_read")
	if tool == nil {
		t.Fatal("expected registered tool")
	}
	if tool.Definition.DefaultPolicy != PolicyAllow {
		t.Errorf("expected allow policy, got %q", tool.Definition.DefaultPolicy)
	}
	if reg.Get("missing") != nil {
		t.Error("expected nil for unknown tool")
	}
}

func TestRegistryUnregister(t *testing.T) {
	reg := NewRegistry()
	reg.Register(newTestTool("shell_exec", PolicyAsk))
	reg.Unregister("shell_exec")
	if reg.Get("shell_exec") != nil {
		t.Error("expected tool removed")
	}
	if reg.Count() != 0 {
		t.Errorf("expected empty registry, got %d", reg.Count())
	}
}

func TestRegistryDefinitionsSorted(t *testing.T) {
	reg := NewRegistry()
	reg.Register(newTestTool("glob_search", PolicyAllow))
	reg.Register(newTestTool("dir_list", PolicyAllow))
	reg.Register(newTestTool("file_read", PolicyAllow))

	defs := reg.Definitions()
	if len(defs) != 3 {
		t.Fatalf("expected 3 definitions, got %d", len(defs))
	}
	for i := 1; i < len(defs); i++ {
		if defs[i-1].Name > defs[i].Name {
			t.Errorf("definitions not sorted: %q before %q", defs[i-1].Name, defs[i].Name)
		}
	}
}

func TestRegistryLLMDefinitions(t *testing.T) {
	reg := NewRegistry()
	reg.Register(newTestTool("file_read", PolicyAllow))

	defs := reg.LLMDefinitions()
	if len(defs) != 1 {
		t.Fatalf("expected 1 definition, got %d", len(defs))
	}
	if defs[0].Name != "file_read" || defs[0].InputSchema == nil {
		t.Errorf("llm definition malformed: %+v", defs[0])
	}
}

func TestRegistryCloneIsolation(t *testing.T) {
	reg := NewRegistry()
	reg.Register(newTestTool("file_read", PolicyAllow))

	clone := reg.Clone()
	clone.Register(newTestTool("file_write", PolicyAsk))

	if reg.Count() != 1 {
		t.Errorf("clone mutation leaked into original: %d tools", reg.Count())
	}
	if clone.Count() != 2 {
		t.Errorf("expected 2 tools in clone, got %d", clone.Count())
	}
}

func TestRegistryMergeFrom(t *testing.T) {
	a := NewRegistry()
	a.Register(newTestTool("file_read", PolicyAllow))

	b := NewRegistry()
	b.Register(newTestTool("file_read", PolicyAsk)) // latest wins
	b.Register(newTestTool("shell_exec", PolicyAsk))

	a.MergeFrom(b)
	if a.Count() != 2 {
		t.Fatalf("expected 2 tools after merge, got %d", a.Count())
	}
	if a.Get("file_read").Definition.DefaultPolicy != PolicyAsk {
		t.Error("expected merged tool to overwrite existing")
	}
}

func TestParseArguments(t *testing.T) {
	args, err := ParseArguments(json.RawMessage(`{"path": "main.go", "limit": 10, "all": true}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if s, ok := GetStringArg(args, "path"); !ok || s != "main.go" {
		t.Errorf("string arg: got %q, %v", s, ok)
	}
	if n, ok := GetIntArg(args, "limit"); !ok || n != 10 {
		t.Errorf("int arg: got %d, %v", n, ok)
	}
	if b, ok := GetBoolArg(args, "all"); !ok || !b {
		t.Errorf("bool arg: got %v, %v", b, ok)
	}
	if _, ok := GetStringArg(args, "missing"); ok {
		t.Error("expected missing key to report !ok")
	}
}

func TestParseArgumentsInvalid(t *testing.T) {
	if _, err := ParseArguments(json.RawMessage(`not json`)); err == nil {
		t.Error("expected error for invalid JSON")
	}
}
