// Package render turns the engine's event stream into terminal output:
// styled tool lines, markdown final answers, a spinner while the model is
// thinking, and a plain-text fallback when stdout is not a TTY or the
// user asked for simple mode.
package render

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/famulus-dev/famulus/engine"
)

// Renderer consumes engine events and writes terminal output.
type Renderer struct {
	out      io.Writer
	plain    bool
	renderer *glamour.TermRenderer
	spinner  *Spinner
	mu       sync.Mutex

	toolStyle   lipgloss.Style
	resultStyle lipgloss.Style
	errorStyle  lipgloss.Style
	dimStyle    lipgloss.Style
}

// Option configures a Renderer.
type Option func(*Renderer)

// WithOutput redirects output (stdout by default).
func WithOutput(out io.Writer) Option {
	return func(r *Renderer) { r.out = out }
}

// WithPlain forces the plain-text fallback regardless of TTY detection.
func WithPlain() Option {
	return func(r *Renderer) { r.plain = true }
}

// New creates a Renderer. Styling is enabled only when stdout is a
// terminal; simple mode callers pass WithPlain.
func New(opts ...Option) *Renderer {
	r := &Renderer{
		out: os.Stdout,

		toolStyle: lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#0066CC", Dark: "#5599FF"}).
			Bold(true),
		resultStyle: lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#008000", Dark: "#55FF55"}),
		errorStyle: lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#D00000", Dark: "#FF5555"}).
			Bold(true),
		dimStyle: lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#666666", Dark: "#888888"}),
	}
	for _, opt := range opts {
		opt(r)
	}

	if !r.plain && r.out == os.Stdout && !term.IsTerminal(int(os.Stdout.Fd())) {
		r.plain = true
	}
	if !r.plain {
		r.renderer, _ = glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(min(terminalWidth(), 100)),
		)
	}
	return r
}

// Consume processes events until the channel closes. Run it in its own
// goroutine alongside Engine.Run.
func (r *Renderer) Consume(events <-chan engine.Event) {
	for ev := range events {
		r.Handle(ev)
	}
	r.StopSpinner()
}

// Handle renders a single event.
func (r *Renderer) Handle(ev engine.Event) {
	switch ev.Kind {
	case engine.EventTextDelta:
		r.StopSpinner()
		text, _ := ev.Data["text"].(string)
		r.markdown(text)
	case engine.EventToolStart:
		r.StopSpinner()
		name, _ := ev.Data["tool_name"].(string)
		input, _ := ev.Data["input"].(string)
		r.toolLine(name, input)
	case engine.EventToolResult:
		output, _ := ev.Data["output"].(string)
		isError, _ := ev.Data["is_error"].(bool)
		r.resultLine(output, isError)
	case engine.EventPermissionRequest:
		r.StopSpinner()
	case engine.EventTurnComplete:
		r.StartSpinner("thinking")
	case engine.EventDoomLoop:
		r.StopSpinner()
		name, _ := ev.Data["tool_name"].(string)
		r.errorLine(fmt.Sprintf("stopped: the model kept repeating the same %s call", name))
	case engine.EventError:
		r.StopSpinner()
		msg, _ := ev.Data["error"].(string)
		r.errorLine(msg)
	}
}

// StartSpinner shows the thinking indicator. No-op in plain mode or when
// a spinner is already running.
func (r *Renderer) StartSpinner(message string) {
	if r.plain {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.spinner != nil {
		return
	}
	r.spinner = NewSpinner(r.out, message)
	r.spinner.Start()
}

// StopSpinner clears the thinking indicator if one is running.
func (r *Renderer) StopSpinner() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.spinner != nil {
		r.spinner.Stop()
		r.spinner = nil
	}
}

func (r *Renderer) markdown(text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.renderer == nil {
		fmt.Fprintln(r.out, text)
		return
	}
	rendered, err := r.renderer.Render(text)
	if err != nil {
		fmt.Fprintln(r.out, text)
		return
	}
	fmt.Fprint(r.out, rendered)
}

func (r *Renderer) toolLine(name, input string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	summary := summarizeInput(input)
	if r.plain {
		fmt.Fprintf(r.out, "* %s %s\n", name, summary)
		return
	}
	fmt.Fprintf(r.out, "%s %s\n", r.toolStyle.Render("● "+name), r.dimStyle.Render(summary))
}

func (r *Renderer) resultLine(output string, isError bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	preview := firstLine(output)
	if r.plain {
		marker := "  ->"
		if isError {
			marker = "  !!"
		}
		fmt.Fprintf(r.out, "%s %s\n", marker, preview)
		return
	}
	if isError {
		fmt.Fprintf(r.out, "  %s\n", r.errorStyle.Render("✗ "+preview))
		return
	}
	fmt.Fprintf(r.out, "  %s\n", r.resultStyle.Render("✓ "+preview))
}

func (r *Renderer) errorLine(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.plain {
		fmt.Fprintf(r.out, "error: %s\n", msg)
		return
	}
	fmt.Fprintln(r.out, r.errorStyle.Render("error: "+msg))
}

// summarizeInput compresses a JSON input blob to a single short line.
func summarizeInput(input string) string {
	s := strings.Join(strings.Fields(input), " ")
	if len(s) > 80 {
		s = s[:77] + "..."
	}
	return s
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	if len(s) > 120 {
		s = s[:117] + "..."
	}
	if s == "" {
		s = "(no output)"
	}
	return s
}

// terminalWidth returns the stdout width, defaulting to 80.
func terminalWidth() int {
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || width == 0 {
		return 80
	}
	return width
}
