package render

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/famulus-dev/famulus/engine"
)

func plainRenderer(buf *bytes.Buffer) *Renderer {
	return New(WithOutput(buf), WithPlain())
}

func TestHandleTextDeltaPlain(t *testing.T) {
	var buf bytes.Buffer
	r := plainRenderer(&buf)

	r.Handle(engine.Event{Kind: engine.EventTextDelta, Data: map[string]interface{}{
		"text": "# Answer\n\nDone.",
	}})

	// Plain mode passes markdown through untouched.
	assert.Contains(t, buf.String(), "# Answer")
}

func TestHandleToolEventsPlain(t *testing.T) {
	var buf bytes.Buffer
	r := plainRenderer(&buf)

	r.Handle(engine.Event{Kind: engine.EventToolStart, Data: map[string]interface{}{
		"tool_name": "file_read",
		"input":     `{"path":"main.go"}`,
	}})
	r.Handle(engine.Event{Kind: engine.EventToolResult, Data: map[string]interface{}{
		"output":   "1 | package main\n2 | ...",
		"is_error": false,
	}})
	r.Handle(engine.Event{Kind: engine.EventToolResult, Data: map[string]interface{}{
		"output":   "denied by user",
		"is_error": true,
	}})

	out := buf.String()
	assert.Contains(t, out, "* file_read")
	assert.Contains(t, out, `{"path":"main.go"}`)
	assert.Contains(t, out, "-> 1 | package main")
	assert.Contains(t, out, "!! denied by user")
}

func TestHandleErrorEventsPlain(t *testing.T) {
	var buf bytes.Buffer
	r := plainRenderer(&buf)

	r.Handle(engine.Event{Kind: engine.EventError, Data: map[string]interface{}{
		"error": "step limit exceeded",
	}})
	r.Handle(engine.Event{Kind: engine.EventDoomLoop, Data: map[string]interface{}{
		"tool_name": "glob_search",
	}})

	out := buf.String()
	assert.Contains(t, out, "error: step limit exceeded")
	assert.Contains(t, out, "repeating the same glob_search call")
}

func TestConsumeDrainsUntilClose(t *testing.T) {
	var buf bytes.Buffer
	r := plainRenderer(&buf)

	events := make(chan engine.Event, 4)
	events <- engine.Event{Kind: engine.EventTextDelta, Data: map[string]interface{}{"text": "hi"}}
	events <- engine.Event{Kind: engine.EventTurnComplete}
	close(events)

	r.Consume(events)
	assert.Contains(t, buf.String(), "hi")
}

func TestSpinnerNoopInPlainMode(t *testing.T) {
	var buf bytes.Buffer
	r := plainRenderer(&buf)

	r.StartSpinner("thinking")
	r.StopSpinner()
	assert.Empty(t, buf.String())
}

func TestSummarizeInput(t *testing.T) {
	assert.Equal(t, `{"a":1}`, summarizeInput("{\"a\":1}"))
	assert.Equal(t, `{ "a": 1 }`, summarizeInput("{\n  \"a\": 1\n}"))

	long := summarizeInput(string(bytes.Repeat([]byte("x"), 200)))
	assert.Len(t, long, 80)
	assert.Contains(t, long, "...")
}

func TestFirstLine(t *testing.T) {
	assert.Equal(t, "first", firstLine("first\nsecond"))
	assert.Equal(t, "(no output)", firstLine(""))

	long := firstLine(string(bytes.Repeat([]byte("y"), 300)))
	assert.Len(t, long, 120)
}
