// Package config loads the host configuration file (spec §6 "External
// Interfaces"): model selection, compaction tuning, execution policy, tool
// output limits, and MCP server definitions. Grounded on the teacher's
// internal/config/config.go — spf13/viper, a single mapstructure-tagged
// Config struct, a GetDefaults() single-source-of-truth map, and the
// XDG-aware GetConfigDir/GetConfigPath pair — narrowed from the teacher's
// many CLI-subcommand sections down to exactly spec §6's five sections.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gobwas/glob"
	"github.com/spf13/viper"

	"github.com/indubitably-ai/agentcore/internal/format"
	"github.com/indubitably-ai/agentcore/internal/mcp"
	"github.com/indubitably-ai/agentcore/internal/policy"
	"github.com/indubitably-ai/agentcore/internal/session"
)

// ModelConfig is spec §6's "model" section.
type ModelConfig struct {
	Name          string `mapstructure:"name"`
	ContextTokens int    `mapstructure:"context_tokens"`
}

// ToolLimitsConfig is spec §6's "tools.limits" section.
type ToolLimitsConfig struct {
	MaxToolTokens  int `mapstructure:"max_tool_tokens"`
	MaxStdoutBytes int `mapstructure:"max_stdout_bytes"`
	MaxLines       int `mapstructure:"max_lines"`
}

// ToFormatLimits projects the config section onto format.Limits, the shape
// the output formatter actually consumes.
func (c ToolLimitsConfig) ToFormatLimits() format.Limits {
	return format.Limits{MaxStdoutBytes: c.MaxStdoutBytes, MaxLines: c.MaxLines}
}

// ExecutionConfig is spec §6's "execution" section: sandbox/approval mode,
// path allowlist, command blocklist, and a shell timeout ceiling. Its
// field set mirrors policy.Config, since the core's Policy IS this config
// once parsed; policy.Config's SafeCommands has no key in this section.
type ExecutionConfig struct {
	Sandbox         string   `mapstructure:"sandbox"`
	Approval        string   `mapstructure:"approval"`
	AllowedPaths    []string `mapstructure:"allowed_paths"`
	BlockedCommands []string `mapstructure:"blocked_commands"`
	TimeoutSeconds  float64  `mapstructure:"timeout_seconds"`
}

// ToPolicyConfig converts the parsed section into the policy.Config the
// Execution Policy component consumes.
func (c ExecutionConfig) ToPolicyConfig() policy.Config {
	return policy.Config{
		Sandbox:         policy.Sandbox(c.Sandbox),
		Approval:        policy.ApprovalMode(c.Approval),
		AllowedPaths:    c.AllowedPaths,
		BlockedCommands: c.BlockedCommands,
		TimeoutSeconds:  c.TimeoutSeconds,
	}
}

// CompactionConfig is spec §6's "compaction" section.
type CompactionConfig struct {
	Auto          bool `mapstructure:"auto"`
	KeepLastTurns int  `mapstructure:"keep_last_turns"`
	TargetTokens  int  `mapstructure:"target_tokens"`
}

// ToSessionConfig converts the parsed section into session.CompactionConfig.
// PinBudgetBytes has no spec §6 knob, so session.DefaultCompactionConfig's
// value carries through.
func (c CompactionConfig) ToSessionConfig() session.CompactionConfig {
	defaults := session.DefaultCompactionConfig()
	return session.CompactionConfig{
		Auto:           c.Auto,
		KeepLastTurns:  c.KeepLastTurns,
		TargetTokens:   c.TargetTokens,
		PinBudgetBytes: defaults.PinBudgetBytes,
	}
}

// McpServerDefinition is one entry of spec §6's "mcp.definitions" list.
type McpServerDefinition struct {
	Name       string            `mapstructure:"name"`
	Command    string            `mapstructure:"command"`
	Args       []string          `mapstructure:"args"`
	Env        map[string]string `mapstructure:"env"`
	TTLSeconds float64           `mapstructure:"ttl_seconds"`
}

// ToMcpConfig assembles the parsed definitions into the mcp.Config the
// server pool consumes.
func ToMcpConfig(defs []McpServerDefinition) *mcp.Config {
	cfg := &mcp.Config{Servers: make(map[string]mcp.ServerConfig, len(defs))}
	for _, d := range defs {
		cfg.Servers[d.Name] = mcp.ServerConfig{
			Command:    d.Command,
			Args:       d.Args,
			Env:        d.Env,
			TTLSeconds: d.TTLSeconds,
		}
	}
	return cfg
}

// Config is the fully parsed host configuration file (spec §6, exactly the
// five recognized sections).
type Config struct {
	Model      ModelConfig      `mapstructure:"model"`
	Compaction CompactionConfig `mapstructure:"compaction"`
	Execution  ExecutionConfig  `mapstructure:"execution"`
	Tools      ToolsSection     `mapstructure:"tools"`
	Mcp        McpSection       `mapstructure:"mcp"`
}

// ToolsSection is spec §6's "tools" section, currently just "limits".
type ToolsSection struct {
	Limits ToolLimitsConfig `mapstructure:"limits"`
}

// McpSection is spec §6's "mcp" section, a list of server definitions.
type McpSection struct {
	Definitions []McpServerDefinition `mapstructure:"definitions"`
}

// GetDefaults returns the single source of truth for every recognized key's
// default value, following the teacher's GetDefaults() convention (Load
// seeds viper from this map rather than duplicating literals).
func GetDefaults() map[string]any {
	return map[string]any{
		"model.name":                   "",
		"model.context_tokens":         128000,
		"compaction.auto":              true,
		"compaction.keep_last_turns":   4,
		"compaction.target_tokens":     32000,
		"execution.sandbox":            string(policy.SandboxRestricted),
		"execution.approval":           string(policy.ApprovalOnWrite),
		"execution.allowed_paths":      []string{},
		"execution.blocked_commands":   []string{},
		"execution.timeout_seconds":    120.0,
		"tools.limits.max_tool_tokens": 4000,
		"tools.limits.max_stdout_bytes": format.MaxBytes,
		"tools.limits.max_lines":       format.MaxLines,
	}
}

// GetConfigDir returns the XDG-aware directory agentcore reads its config
// file from, mirroring the teacher's GetConfigDir (term-llm -> agentcore).
func GetConfigDir() (string, error) {
	if xdgHome := os.Getenv("XDG_CONFIG_HOME"); xdgHome != "" {
		return filepath.Join(xdgHome, "agentcore"), nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".config", "agentcore"), nil
}

// GetConfigPath returns the full path to the config file within GetConfigDir.
func GetConfigPath() (string, error) {
	dir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// Load reads the config file (TOML, per spec §6 — "exact parser is host's
// choice"; viper's toml support is used here, matching the teacher's
// viper-backed loader) from --config path if given, else GetConfigDir, else
// the working directory, applying GetDefaults() for anything unset. A
// missing config file is not an error (spec: recognized sections, not a
// mandatory file).
func Load(explicitPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("toml")

	if explicitPath != "" {
		v.SetConfigFile(explicitPath)
	} else {
		v.SetConfigName("config")
		if dir, err := GetConfigDir(); err == nil {
			v.AddConfigPath(dir)
		}
		v.AddConfigPath(".")
	}

	for key, value := range GetDefaults() {
		v.SetDefault(key, value)
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects config.toml shapes that Load would otherwise accept but
// that every consumer (policy.New, the scheduler) would treat as broken —
// malformed allowed_paths globs, a negative timeout, and mcp.definitions
// entries missing a name or command. It does not touch
// the filesystem (no "does allowed_paths exist" check): that's the host's
// call at approval time, not config-parse time.
func Validate(cfg *Config) error {
	for _, pattern := range cfg.Execution.AllowedPaths {
		if _, err := glob.Compile(pattern); err != nil {
			return fmt.Errorf("execution.allowed_paths: invalid glob %q: %w", pattern, err)
		}
	}
	if cfg.Execution.TimeoutSeconds < 0 {
		return fmt.Errorf("execution.timeout_seconds must be >= 0, got %v", cfg.Execution.TimeoutSeconds)
	}
	for i, def := range cfg.Mcp.Definitions {
		if def.Name == "" {
			return fmt.Errorf("mcp.definitions[%d]: missing name", i)
		}
		if def.Command == "" {
			return fmt.Errorf("mcp.definitions[%d] (%s): missing command", i, def.Name)
		}
	}
	return nil
}
