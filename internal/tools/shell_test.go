package tools

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/indubitably-ai/agentcore/internal/format"
)

func mustMarshalShellArgs(args ShellArgs) string {
	data, err := json.Marshal(args)
	if err != nil {
		panic(err)
	}
	return string(data)
}

func invocationFor(payload string) Invocation {
	return Invocation{
		Ctx:      context.Background(),
		ToolName: ShellToolName,
		Payload:  Payload{Kind: KindFunction, RawArguments: payload},
	}
}

func envelopeOf(t *testing.T, content string) format.Envelope {
	t.Helper()
	var env format.Envelope
	if err := json.Unmarshal([]byte(content), &env); err != nil {
		t.Fatalf("output is not a formatted envelope: %v\ncontent: %s", err, content)
	}
	return env
}

func TestShellHandler_Spec(t *testing.T) {
	h := NewShellHandler()
	spec := h.Spec()

	if spec.Name != ShellToolName {
		t.Errorf("expected name %q, got %q", ShellToolName, spec.Name)
	}
	props, ok := spec.Schema["properties"].(map[string]interface{})
	if !ok {
		t.Fatal("schema should have properties")
	}
	for _, p := range []string{"command", "cwd", "timeout_ms"} {
		if _, ok := props[p]; !ok {
			t.Errorf("schema should have %s property", p)
		}
	}
}

func TestShellHandler_MatchesKind(t *testing.T) {
	h := NewShellHandler()
	if !h.MatchesKind(Payload{Kind: KindFunction}) {
		t.Error("expected function payload to match")
	}
	if h.MatchesKind(Payload{Kind: KindMcp}) {
		t.Error("expected mcp payload not to match")
	}
}

func TestShellHandler_Execute(t *testing.T) {
	h := NewShellHandler()

	tests := []struct {
		name     string
		args     ShellArgs
		wantOut  string
		wantExit int
		wantErr  string
	}{
		{name: "successful command", args: ShellArgs{Command: "echo hello"}, wantOut: "hello", wantExit: 0},
		{name: "command with stderr", args: ShellArgs{Command: "echo err >&2"}, wantOut: "err", wantExit: 0},
		{name: "non-zero exit code", args: ShellArgs{Command: "exit 42"}, wantExit: 42},
		{name: "missing command param", args: ShellArgs{Command: ""}, wantErr: "command is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := h.Handle(invocationFor(mustMarshalShellArgs(tt.args)))
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Handle returned error: %v", err)
			}
			env := envelopeOf(t, out.Content)
			if tt.wantOut != "" && !strings.Contains(env.Output, tt.wantOut) {
				t.Errorf("expected output containing %q, got: %s", tt.wantOut, env.Output)
			}
			if env.Metadata.ExitCode != tt.wantExit {
				t.Errorf("expected exit code %d, got %d", tt.wantExit, env.Metadata.ExitCode)
			}
		})
	}
}

func TestShellHandler_WorkingDir(t *testing.T) {
	dir := t.TempDir()
	h := NewShellHandler()

	out, err := h.Handle(invocationFor(mustMarshalShellArgs(ShellArgs{Command: "pwd", Cwd: dir})))
	if err != nil {
		t.Fatalf("Handle returned error: %v", err)
	}
	env := envelopeOf(t, out.Content)
	if !strings.Contains(env.Output, dir) {
		t.Errorf("expected working dir %q in output, got: %s", dir, env.Output)
	}
	if env.Metadata.ExitCode != 0 {
		t.Errorf("expected exit code 0, got %d", env.Metadata.ExitCode)
	}
}

func TestShellHandler_Timeout(t *testing.T) {
	h := NewShellHandler()

	out, err := h.Handle(invocationFor(mustMarshalShellArgs(ShellArgs{Command: "sleep 10", TimeoutMs: 200})))
	if err != nil {
		t.Fatalf("Handle returned error: %v", err)
	}
	if !out.TimedOut {
		t.Error("expected TimedOut to be set")
	}
	env := envelopeOf(t, out.Content)
	if !env.Metadata.TimedOut {
		t.Error("expected envelope metadata to report timed_out")
	}
}
