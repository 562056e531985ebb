package render

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/famulus-dev/famulus/engine"
	"github.com/famulus-dev/famulus/risk"
)

// ConsolePrompter answers the engine's permission requests interactively:
// it shows the call (with a risk assessment for shell commands), reads
// y/n/a, and resolves the request.
type ConsolePrompter struct {
	in               io.Reader
	out              io.Writer
	plain            bool
	showExplanations bool
	skipConfirm      bool

	warnStyle lipgloss.Style
	highStyle lipgloss.Style
	boldStyle lipgloss.Style
}

// PrompterOption configures a ConsolePrompter.
type PrompterOption func(*ConsolePrompter)

// WithStreams replaces stdin/stdout, mainly for tests.
func WithStreams(in io.Reader, out io.Writer) PrompterOption {
	return func(p *ConsolePrompter) {
		p.in = in
		p.out = out
	}
}

// WithPlainPrompts disables styling.
func WithPlainPrompts() PrompterOption {
	return func(p *ConsolePrompter) { p.plain = true }
}

// WithExplanations toggles command explanations before the prompt.
func WithExplanations(show bool) PrompterOption {
	return func(p *ConsolePrompter) { p.showExplanations = show }
}

// WithSkipConfirm approves everything without prompting.
func WithSkipConfirm(skip bool) PrompterOption {
	return func(p *ConsolePrompter) { p.skipConfirm = skip }
}

// NewConsolePrompter creates a prompter on stdin/stdout.
func NewConsolePrompter(opts ...PrompterOption) *ConsolePrompter {
	p := &ConsolePrompter{
		in:               os.Stdin,
		out:              os.Stdout,
		showExplanations: true,

		warnStyle: lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#B8860B", Dark: "#FFAA00"}),
		highStyle: lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#D00000", Dark: "#FF5555"}).
			Bold(true),
		boldStyle: lipgloss.NewStyle().Bold(true),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Request implements engine.Requester.
func (p *ConsolePrompter) Request(req *engine.PermissionRequest) {
	if p.skipConfirm {
		req.Resolve(engine.DecisionApprove)
		return
	}

	p.showCall(req)

	fmt.Fprint(p.out, "Allow? [y]es / [n]o / [a]lways for this tool: ")
	reader := bufio.NewReader(p.in)
	line, err := reader.ReadString('\n')
	if err != nil {
		slog.Warn("could not read permission response, denying", "error", err)
		req.Resolve(engine.DecisionDeny)
		return
	}

	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		req.Resolve(engine.DecisionApprove)
	case "a", "always":
		req.Resolve(engine.DecisionSession)
	default:
		req.Resolve(engine.DecisionDeny)
	}
}

func (p *ConsolePrompter) showCall(req *engine.PermissionRequest) {
	call := req.ToolCall
	fmt.Fprintf(p.out, "\n%s wants to run %s\n", p.bold("famulus"), p.bold(call.Name))

	command := ""
	if call.Name == "shell_exec" {
		command = shellCommand(call.Input)
	}
	if command != "" {
		fmt.Fprintf(p.out, "  $ %s\n", command)
		p.showRisk(command)
	} else if len(call.Input) > 0 {
		fmt.Fprintf(p.out, "  %s\n", summarizeInput(string(call.Input)))
	}
}

func (p *ConsolePrompter) showRisk(command string) {
	assessment := risk.Classify(command)
	switch assessment.Level {
	case risk.LevelHigh:
		p.warn(p.highStyle, fmt.Sprintf("HIGH RISK: %s. This command may cause data loss.", assessment.Reason))
	case risk.LevelMedium:
		p.warn(p.warnStyle, fmt.Sprintf("MEDIUM RISK: %s. Use with caution.", assessment.Reason))
	}

	if p.showExplanations {
		for _, note := range risk.Explain(command) {
			fmt.Fprintf(p.out, "  - %s\n", note)
		}
	}
}

func (p *ConsolePrompter) warn(style lipgloss.Style, msg string) {
	if p.plain {
		fmt.Fprintf(p.out, "  %s\n", msg)
		return
	}
	fmt.Fprintf(p.out, "  %s\n", style.Render(msg))
}

func (p *ConsolePrompter) bold(s string) string {
	if p.plain {
		return s
	}
	return p.boldStyle.Render(s)
}

// shellCommand extracts the command argument from shell_exec input,
// returning "" for other tools.
func shellCommand(input json.RawMessage) string {
	var args struct {
		Command string `json:"command"`
	}
	if err := json.Unmarshal(input, &args); err != nil {
		return ""
	}
	return args.Command
}
