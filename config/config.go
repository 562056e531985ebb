// Package config loads, validates, and persists the assistant's settings.
// Precedence is defaults, then the YAML settings file, then FAMULUS_*
// environment variables.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/famulus-dev/famulus/llm"
)

// DefaultPath returns the settings file location, honoring the
// FAMULUS_CONFIG override.
func DefaultPath() string {
	if path := os.Getenv("FAMULUS_CONFIG"); path != "" {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".famulus", "config.yaml")
	}
	return filepath.Join(home, ".famulus", "config.yaml")
}

// Config is the full settings surface.
type Config struct {
	Model    string `yaml:"model"`
	Provider string `yaml:"provider"`

	// APIKeys holds provider API keys by provider name. Adapter
	// constructors fall back to their provider env vars when empty.
	APIKeys map[string]string `yaml:"api_keys,omitempty"`

	MaxSteps         int `yaml:"max_steps"`
	LoopWindow       int `yaml:"loop_window"`
	LoopThreshold    int `yaml:"loop_threshold"`
	MaxParallelTools int `yaml:"max_parallel_tools"`

	SafetyLevel      string `yaml:"safety_level"`
	ShowExplanations bool   `yaml:"show_explanations"`
	SimpleMode       bool   `yaml:"simple_mode"`
	SkipConfirm      bool   `yaml:"skip_confirm"`

	ToolOutputLimits map[string]int `yaml:"tool_output_limits,omitempty"`
	ToolLineLimits   map[string]int `yaml:"tool_line_limits,omitempty"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Model:            "claude-sonnet-4-5",
		Provider:         "anthropic",
		MaxSteps:         50,
		LoopWindow:       8,
		LoopThreshold:    3,
		MaxParallelTools: 4,
		SafetyLevel:      "normal",
		ShowExplanations: true,
	}
}

// Load builds the effective configuration: defaults, then the file at
// path (DefaultPath when empty; a missing file is not an error), then
// FAMULUS_* environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		path = DefaultPath()
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	case os.IsNotExist(err):
		slog.Debug("no settings file, using defaults", "path", path)
	default:
		return cfg, fmt.Errorf("read %s: %w", path, err)
	}

	applyEnvOverrides(&cfg)
	return cfg, nil
}

// applyEnvOverrides applies FAMULUS_* variables on top of the loaded
// configuration. Unparsable values are skipped with a warning.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("FAMULUS_MODEL"); v != "" {
		cfg.Model = v
	}
	if v := os.Getenv("FAMULUS_PROVIDER"); v != "" {
		cfg.Provider = v
	}
	if v := os.Getenv("FAMULUS_SAFETY_LEVEL"); v != "" {
		cfg.SafetyLevel = v
	}

	for env, target := range map[string]*int{
		"FAMULUS_MAX_STEPS":          &cfg.MaxSteps,
		"FAMULUS_LOOP_WINDOW":        &cfg.LoopWindow,
		"FAMULUS_LOOP_THRESHOLD":     &cfg.LoopThreshold,
		"FAMULUS_MAX_PARALLEL_TOOLS": &cfg.MaxParallelTools,
	} {
		if v := os.Getenv(env); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				slog.Warn("ignoring unparsable override", "var", env, "value", v)
				continue
			}
			*target = n
		}
	}

	for env, target := range map[string]*bool{
		"FAMULUS_SHOW_EXPLANATIONS": &cfg.ShowExplanations,
		"FAMULUS_SIMPLE_MODE":       &cfg.SimpleMode,
		"FAMULUS_SKIP_CONFIRM":      &cfg.SkipConfirm,
	} {
		if v := os.Getenv(env); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				slog.Warn("ignoring unparsable override", "var", env, "value", v)
				continue
			}
			*target = b
		}
	}
}

var validSafetyLevels = map[string]bool{
	"strict": true, "normal": true, "permissive": true,
}

// Validate checks enums, ranges, and model/provider consistency against
// the built-in model catalog.
func (c Config) Validate() error {
	if c.Model == "" {
		return fmt.Errorf("model is required")
	}
	if !validSafetyLevels[c.SafetyLevel] {
		return fmt.Errorf("safety_level %q: must be strict, normal, or permissive", c.SafetyLevel)
	}
	if c.MaxSteps < 1 {
		return fmt.Errorf("max_steps %d: must be at least 1", c.MaxSteps)
	}
	if c.LoopWindow < 6 || c.LoopWindow > 10 {
		return fmt.Errorf("loop_window %d: must be between 6 and 10", c.LoopWindow)
	}
	if c.LoopThreshold < 2 {
		return fmt.Errorf("loop_threshold %d: must be at least 2", c.LoopThreshold)
	}
	if c.MaxParallelTools < 1 {
		return fmt.Errorf("max_parallel_tools %d: must be at least 1", c.MaxParallelTools)
	}

	info := llm.GetModelInfo(c.Model)
	if info == nil {
		// Unknown models are allowed (local or gateway-namespaced IDs)
		// but then the provider must be explicit.
		if c.Provider == "" {
			return fmt.Errorf("model %q is not in the catalog; set provider explicitly", c.Model)
		}
		return nil
	}
	if c.Provider != "" && c.Provider != info.Provider {
		return fmt.Errorf("model %q belongs to provider %q, not %q", c.Model, info.Provider, c.Provider)
	}
	return nil
}

// Save writes the configuration as YAML with owner-only permissions,
// creating the parent directory if needed.
func (c Config) Save(path string) error {
	if path == "" {
		path = DefaultPath()
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	slog.Info("settings saved", "path", path)
	return nil
}

// Row is one settings panel entry.
type Row struct {
	Key     string
	Value   string
	Default string
	Help    string
}

// Describe returns the settings rows for display, in a stable order.
func (c Config) Describe() []Row {
	def := Default()
	return []Row{
		{"model", c.Model, def.Model, "Model ID or alias from the catalog"},
		{"provider", c.Provider, def.Provider, "Provider routing override"},
		{"max_steps", strconv.Itoa(c.MaxSteps), strconv.Itoa(def.MaxSteps), "Tool calls allowed per run"},
		{"loop_window", strconv.Itoa(c.LoopWindow), strconv.Itoa(def.LoopWindow), "Recent calls the loop detector tracks"},
		{"loop_threshold", strconv.Itoa(c.LoopThreshold), strconv.Itoa(def.LoopThreshold), "Identical calls that count as a loop"},
		{"max_parallel_tools", strconv.Itoa(c.MaxParallelTools), strconv.Itoa(def.MaxParallelTools), "Concurrent tool executions per turn"},
		{"safety_level", c.SafetyLevel, def.SafetyLevel, "Confirmation appetite: strict, normal, permissive"},
		{"show_explanations", strconv.FormatBool(c.ShowExplanations), strconv.FormatBool(def.ShowExplanations), "Explain commands before confirmation"},
		{"simple_mode", strconv.FormatBool(c.SimpleMode), strconv.FormatBool(def.SimpleMode), "Plain output without styling"},
		{"skip_confirm", strconv.FormatBool(c.SkipConfirm), strconv.FormatBool(def.SkipConfirm), "Skip confirmation prompts entirely"},
	}
}

// APIKey returns the configured key for a provider, falling back to "".
func (c Config) APIKey(provider string) string {
	return strings.TrimSpace(c.APIKeys[provider])
}
