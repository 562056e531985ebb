package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// RegisterBuiltins registers the built-in tool set on a Registry. Read-only
// tools default to allow; side-effecting tools default to ask.
func RegisterBuiltins(reg *Registry, defaultTimeoutMs, maxTimeoutMs int) {
	registerFileRead(reg)
	registerFileWrite(reg)
	registerDirList(reg)
	registerGlobSearch(reg)
	registerShellExec(reg, defaultTimeoutMs, maxTimeoutMs)
}

func registerFileRead(reg *Registry) {
	reg.Register(RegisteredTool{
		Definition: Definition{
			Name:          "file_read",
			Description:   "Read a file from the filesystem. Returns line-numbered content.",
			DefaultPolicy: PolicyAllow,
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": map[string]interface{}{
						"type":        "string",
						"description": "Path to the file to read, relative to the working directory.",
					},
					"offset": map[string]interface{}{
						"type":        "integer",
						"description": "1-based line number to start reading from.",
					},
					"limit": map[string]interface{}{
						"type":        "integer",
						"description": "Maximum number of lines to read. Default: 2000.",
					},
				},
				"required": []string{"path"},
			},
		},
		Executor: func(ctx context.Context, input json.RawMessage, env Environment) (string, error) {
			args, err := ParseArguments(input)
			if err != nil {
				return "", err
			}
			path, ok := GetStringArg(args, "path")
			if !ok || path == "" {
				return "", fmt.Errorf("path is required")
			}
			offset, _ := GetIntArg(args, "offset")
			limit, _ := GetIntArg(args, "limit")
			if limit == 0 {
				limit = 2000
			}
			return env.ReadFile(path, offset, limit)
		},
	})
}

func registerFileWrite(reg *Registry) {
	reg.Register(RegisteredTool{
		Definition: Definition{
			Name:          "file_write",
			Description:   "Write content to a file. Creates the file and parent directories if needed.",
			DefaultPolicy: PolicyAsk,
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": map[string]interface{}{
						"type":        "string",
						"description": "Path to write to, relative to the working directory.",
					},
					"content": map[string]interface{}{
						"type":        "string",
						"description": "The full file content to write.",
					},
				},
				"required": []string{"path", "content"},
			},
		},
		Executor: func(ctx context.Context, input json.RawMessage, env Environment) (string, error) {
			args, err := ParseArguments(input)
			if err != nil {
				return "", err
			}
			path, ok := GetStringArg(args, "path")
			if !ok || path == "" {
				return "", fmt.Errorf("path is required")
			}
			content, ok := GetStringArg(args, "content")
			if !ok {
				return "", fmt.Errorf("content is required")
			}
			if err := env.WriteFile(path, content); err != nil {
				return "", err
			}
			return fmt.Sprintf("Successfully wrote %d bytes to %s", len(content), path), nil
		},
	})
}

func registerDirList(reg *Registry) {
	reg.Register(RegisteredTool{
		Definition: Definition{
			Name:          "dir_list",
			Description:   "List the entries of a directory with sizes.",
			DefaultPolicy: PolicyAllow,
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": map[string]interface{}{
						"type":        "string",
						"description": "Directory to list. Default: working directory.",
					},
				},
			},
		},
		Executor: func(ctx context.Context, input json.RawMessage, env Environment) (string, error) {
			args, err := ParseArguments(input)
			if err != nil {
				return "", err
			}
			path, _ := GetStringArg(args, "path")

			entries, err := env.ListDirectory(path)
			if err != nil {
				return "", err
			}
			if len(entries) == 0 {
				return "Directory is empty.", nil
			}
			var sb strings.Builder
			for _, entry := range entries {
				if entry.IsDir {
					fmt.Fprintf(&sb, "%s/\n", entry.Name)
				} else {
					fmt.Fprintf(&sb, "%s (%d bytes)\n", entry.Name, entry.Size)
				}
			}
			return sb.String(), nil
		},
	})
}

func registerGlobSearch(reg *Registry) {
	reg.Register(RegisteredTool{
		Definition: Definition{
			Name:          "glob_search",
			Description:   "Find files matching a glob pattern. Returns matching paths.",
			DefaultPolicy: PolicyAllow,
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"pattern": map[string]interface{}{
						"type":        "string",
						"description": "Glob pattern (e.g., \"*.go\").",
					},
					"path": map[string]interface{}{
						"type":        "string",
						"description": "Base directory. Default: working directory.",
					},
				},
				"required": []string{"pattern"},
			},
		},
		Executor: func(ctx context.Context, input json.RawMessage, env Environment) (string, error) {
			args, err := ParseArguments(input)
			if err != nil {
				return "", err
			}
			pattern, ok := GetStringArg(args, "pattern")
			if !ok || pattern == "" {
				return "", fmt.Errorf("pattern is required")
			}
			path, _ := GetStringArg(args, "path")

			matches, err := env.Glob(pattern, path)
			if err != nil {
				return "", err
			}
			if len(matches) == 0 {
				return "No files matched the pattern.", nil
			}
			return strings.Join(matches, "\n"), nil
		},
	})
}

func registerShellExec(reg *Registry, defaultTimeoutMs, maxTimeoutMs int) {
	reg.Register(RegisteredTool{
		Definition: Definition{
			Name:          "shell_exec",
			Description:   "Execute a shell command in the working directory. Returns stdout, stderr, and exit code.",
			DefaultPolicy: PolicyAsk,
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"command": map[string]interface{}{
						"type":        "string",
						"description": "The command to run.",
					},
					"timeout_ms": map[string]interface{}{
						"type":        "integer",
						"description": "Override the default command timeout in milliseconds.",
					},
				},
				"required": []string{"command"},
			},
		},
		Executor: func(ctx context.Context, input json.RawMessage, env Environment) (string, error) {
			args, err := ParseArguments(input)
			if err != nil {
				return "", err
			}
			command, ok := GetStringArg(args, "command")
			if !ok || command == "" {
				return "", fmt.Errorf("command is required")
			}
			timeoutMs, _ := GetIntArg(args, "timeout_ms")
			if timeoutMs <= 0 {
				timeoutMs = defaultTimeoutMs
			}
			if timeoutMs > maxTimeoutMs {
				timeoutMs = maxTimeoutMs
			}

			result, err := env.ExecCommand(ctx, command, timeoutMs)
			if err != nil {
				return "", err
			}

			var sb strings.Builder
			sb.WriteString(result.Output())

			if result.TimedOut {
				fmt.Fprintf(&sb, "\n\n[ERROR: Command timed out after %dms. Partial output is shown above.\n"+
					"You can retry with a longer timeout by setting the timeout_ms parameter.]", timeoutMs)
			}
			if result.ExitCode != 0 && !result.TimedOut {
				fmt.Fprintf(&sb, "\n\n[Exit code: %d]", result.ExitCode)
			}

			return sb.String(), nil
		},
	})
}
