// Package risk classifies shell commands by how much damage they can do,
// so the host can decide how loudly to ask before running them.
package risk

import (
	"regexp"
	"strings"

	"github.com/famulus-dev/famulus/tools"
)

// Level grades the worst plausible outcome of running a command.
type Level string

const (
	LevelLow    Level = "low"
	LevelMedium Level = "medium"
	LevelHigh   Level = "high"
)

// SafetyLevel is the user's configured appetite for confirmation prompts.
type SafetyLevel string

const (
	SafetyStrict     SafetyLevel = "strict"
	SafetyNormal     SafetyLevel = "normal"
	SafetyPermissive SafetyLevel = "permissive"
)

// Assessment is the result of classifying a command.
type Assessment struct {
	Level  Level
	Reason string
}

type pattern struct {
	re     *regexp.Regexp
	reason string
}

// highPatterns match commands that can destroy data or the system.
var highPatterns = []pattern{
	{regexp.MustCompile(`(?i)\brm\s+\S*-\S*r`), "recursive file deletion"},
	{regexp.MustCompile(`(?i)\bdd\s+`), "raw disk write"},
	{regexp.MustCompile(`(?i)\bmkfs\.`), "filesystem format"},
	{regexp.MustCompile(`(?i)\bfdisk\b`), "partition table edit"},
	{regexp.MustCompile(`(?i)\bshred\b`), "unrecoverable file destruction"},
	{regexp.MustCompile(`(?i)\bchmod\s+777`), "world-writable permissions"},
	{regexp.MustCompile(`(?i)\bchown\s+\S*root`), "ownership transfer to root"},
	{regexp.MustCompile(`(?i)>\s*/dev/`), "write to a device file"},
	{regexp.MustCompile(`(?i)\bcrontab\s+-r`), "crontab removal"},
	{regexp.MustCompile(`(?i)\biptables\s+-F`), "firewall rule flush"},
	{regexp.MustCompile(`:\(\)\s*\{.*\}\s*;?\s*:`), "fork bomb"},
}

// mediumPatterns match commands that overwrite or remove individual files.
var mediumPatterns = []pattern{
	{regexp.MustCompile(`(?i)\brm\s+.*/`), "directory removal"},
	{regexp.MustCompile(`(?i)\bmv\s+.*\s+/dev/null`), "move to the null device"},
	{regexp.MustCompile(`(?i)\btruncate\s+`), "file truncation"},
	{regexp.MustCompile(`>\s*[^|&;<>]*$`), "output redirection overwrites a file"},
}

// readOnlyPrefixes mark commands that only inspect state.
var readOnlyPrefixes = []string{
	"ls", "cat", "head", "tail", "grep", "find", "which", "file", "stat",
	"wc", "du", "df", "ps", "env", "pwd", "whoami", "echo",
	"git status", "git log", "git diff", "git show", "git branch",
}

// Classify grades a shell command. Matching is ordered high, then medium,
// then sudo escalation; anything else is low.
func Classify(command string) Assessment {
	trimmed := strings.TrimSpace(command)

	for _, p := range highPatterns {
		if p.re.MatchString(trimmed) {
			return Assessment{Level: LevelHigh, Reason: p.reason}
		}
	}
	for _, p := range mediumPatterns {
		if p.re.MatchString(trimmed) {
			return Assessment{Level: LevelMedium, Reason: p.reason}
		}
	}
	if strings.Contains(strings.ToLower(trimmed), "sudo") {
		return Assessment{Level: LevelMedium, Reason: "privilege escalation"}
	}

	for _, prefix := range readOnlyPrefixes {
		if trimmed == prefix || strings.HasPrefix(trimmed, prefix+" ") {
			return Assessment{Level: LevelLow, Reason: "read-only command"}
		}
	}
	return Assessment{Level: LevelLow, Reason: ""}
}

// SuggestPolicy maps an assessment and the configured safety level to a
// tool policy for shell commands. Strict asks for everything; normal asks
// for medium and above; permissive asks only for high.
func SuggestPolicy(level Level, safety SafetyLevel) tools.Policy {
	switch safety {
	case SafetyStrict:
		return tools.PolicyAsk
	case SafetyPermissive:
		if level == LevelHigh {
			return tools.PolicyAsk
		}
		return tools.PolicyAllow
	default:
		if level == LevelLow {
			return tools.PolicyAllow
		}
		return tools.PolicyAsk
	}
}

// Explain returns short human-readable notes about what a command does.
// Empty for commands with nothing notable.
func Explain(command string) []string {
	trimmed := strings.TrimSpace(command)
	base := strings.TrimPrefix(trimmed, "sudo ")
	var notes []string

	switch {
	case strings.HasPrefix(base, "find "):
		notes = append(notes, "Searches for files and directories")
	case strings.HasPrefix(base, "ls"):
		notes = append(notes, "Lists directory contents")
	case strings.HasPrefix(base, "grep "):
		notes = append(notes, "Searches for patterns in text")
	case strings.HasPrefix(base, "cat "):
		notes = append(notes, "Displays file contents")
	case strings.HasPrefix(base, "chmod "):
		notes = append(notes, "Changes file permissions")
	case strings.HasPrefix(base, "chown "):
		notes = append(notes, "Changes file ownership")
	}
	if strings.Contains(trimmed, "sudo") {
		notes = append(notes, "Requires administrator privileges")
	}

	fields := strings.Fields(trimmed)
	for _, f := range fields {
		if f == "-r" || f == "-R" || strings.HasPrefix(f, "-r") && len(f) <= 4 {
			notes = append(notes, "Operates recursively on directories")
			break
		}
	}
	for _, f := range fields {
		if f == "-f" || f == "-rf" || f == "-fr" {
			notes = append(notes, "Forces operation without confirmation")
			break
		}
	}
	return notes
}
