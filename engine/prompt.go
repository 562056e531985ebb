package engine

import (
	"fmt"
	"strings"
	"time"

	"github.com/famulus-dev/famulus/tools"
)

const basePrompt = `You are a capable assistant operating in a terminal. You help the user by
answering questions and by calling tools to inspect files, search, and run
commands in their working directory.

Guidelines:
- Prefer tools over guessing. Read files before describing them.
- Keep responses concise; the user is reading them in a terminal.
- When a command could modify or delete data, explain what it does before
  running it.
- When you have gathered enough information, answer directly instead of
  calling more tools.`

// BuildSystemPrompt assembles the per-run system prompt: base instructions,
// environment context, the tool inventory, and optional user instructions.
func BuildSystemPrompt(env tools.Environment, registry *tools.Registry, userInstructions string) string {
	var sb strings.Builder
	sb.WriteString(basePrompt)

	sb.WriteString("\n\n<environment>\n")
	fmt.Fprintf(&sb, "Working directory: %s\n", env.WorkingDirectory())
	fmt.Fprintf(&sb, "Platform: %s\n", env.Platform())
	fmt.Fprintf(&sb, "Shell: %s\n", env.Shell())
	fmt.Fprintf(&sb, "Today's date: %s\n", time.Now().Format("2006-01-02"))
	sb.WriteString("</environment>")

	defs := registry.Definitions()
	if len(defs) > 0 {
		sb.WriteString("\n\n# Available tools\n")
		for _, def := range defs {
			fmt.Fprintf(&sb, "- %s: %s\n", def.Name, def.Description)
		}
	}

	if userInstructions != "" {
		sb.WriteString("\n\n# User instructions\n\n")
		sb.WriteString(userInstructions)
	}

	return sb.String()
}
