package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfigFile(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("writing config fixture: %v", err)
	}
	return path
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nonexistent.toml"))
	if err != nil {
		t.Fatalf("Load returned error for a missing file: %v", err)
	}
	if cfg.Model.ContextTokens != 128000 {
		t.Errorf("expected default context_tokens 128000, got %d", cfg.Model.ContextTokens)
	}
	if !cfg.Compaction.Auto || cfg.Compaction.KeepLastTurns != 4 {
		t.Errorf("expected default compaction (auto=true, keep_last_turns=4), got %+v", cfg.Compaction)
	}
}

func TestLoad_ParsesAllFiveSections(t *testing.T) {
	path := writeConfigFile(t, `
[model]
name = "test-model"
context_tokens = 64000

[compaction]
auto = false
keep_last_turns = 10
target_tokens = 8000

[execution]
sandbox = "strict"
approval = "always"
allowed_paths = ["/tmp/**"]
blocked_commands = ["rm -rf /"]
timeout_seconds = 30.0

[tools.limits]
max_tool_tokens = 1000
max_stdout_bytes = 2048
max_lines = 64

[[mcp.definitions]]
name = "weather"
command = "weather-mcp"
args = ["--stdio"]
ttl_seconds = 300
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Model.Name != "test-model" || cfg.Model.ContextTokens != 64000 {
		t.Errorf("unexpected model section: %+v", cfg.Model)
	}
	if cfg.Compaction.Auto || cfg.Compaction.KeepLastTurns != 10 || cfg.Compaction.TargetTokens != 8000 {
		t.Errorf("unexpected compaction section: %+v", cfg.Compaction)
	}
	if cfg.Execution.Sandbox != "strict" || cfg.Execution.Approval != "always" || cfg.Execution.TimeoutSeconds != 30.0 {
		t.Errorf("unexpected execution section: %+v", cfg.Execution)
	}
	if cfg.Tools.Limits.MaxToolTokens != 1000 || cfg.Tools.Limits.MaxStdoutBytes != 2048 || cfg.Tools.Limits.MaxLines != 64 {
		t.Errorf("unexpected tools.limits section: %+v", cfg.Tools.Limits)
	}
	if len(cfg.Mcp.Definitions) != 1 || cfg.Mcp.Definitions[0].Name != "weather" || cfg.Mcp.Definitions[0].Command != "weather-mcp" {
		t.Errorf("unexpected mcp.definitions section: %+v", cfg.Mcp.Definitions)
	}
}

func TestLoad_RejectsInvalidAllowedPathGlob(t *testing.T) {
	path := writeConfigFile(t, `
[execution]
allowed_paths = ["[invalid"]
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected an error for a malformed allowed_paths glob")
	}
}

func TestLoad_RejectsNegativeTimeout(t *testing.T) {
	path := writeConfigFile(t, `
[execution]
timeout_seconds = -1.0
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected an error for a negative timeout_seconds")
	}
}

func TestLoad_RejectsMcpDefinitionMissingCommand(t *testing.T) {
	path := writeConfigFile(t, `
[[mcp.definitions]]
name = "broken"
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected an error for an mcp definition missing a command")
	}
}

func TestExecutionConfig_ToPolicyConfig(t *testing.T) {
	ec := ExecutionConfig{
		Sandbox:         "strict",
		Approval:        "always",
		AllowedPaths:    []string{"/a/**"},
		BlockedCommands: []string{"rm -rf /"},
		TimeoutSeconds:  45,
	}
	pc := ec.ToPolicyConfig()
	if string(pc.Sandbox) != "strict" || string(pc.Approval) != "always" || pc.TimeoutSeconds != 45 {
		t.Errorf("unexpected conversion: %+v", pc)
	}
}

func TestCompactionConfig_ToSessionConfig(t *testing.T) {
	cc := CompactionConfig{Auto: true, KeepLastTurns: 6, TargetTokens: 16000}
	sc := cc.ToSessionConfig()
	if !sc.Auto || sc.KeepLastTurns != 6 || sc.TargetTokens != 16000 {
		t.Errorf("unexpected conversion: %+v", sc)
	}
	if sc.PinBudgetBytes == 0 {
		t.Errorf("expected PinBudgetBytes to carry the session default, got 0")
	}
}
