package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"github.com/indubitably-ai/agentcore/internal/format"
	"github.com/indubitably-ai/agentcore/internal/llm"
	"github.com/indubitably-ai/agentcore/internal/toolerr"
)

// ShellHandler is the Execute archetype (spec §4.B "Shell/Exec"), grounded
// on the teacher's ShellTool (internal/tools/shell.go) adapted to the
// Handler contract: policy gates instead of ToolConfig/ApprovalManager,
// toolerr classification instead of *ToolError, format.FormatEnvelope
// instead of a hand-rolled stdout/stderr/exit_code string.
type ShellHandler struct {
	shellPath string
}

// NewShellHandler builds a ShellHandler using $SHELL (or bash) as the
// interpreter.
func NewShellHandler() *ShellHandler {
	return &ShellHandler{shellPath: detectShell()}
}

func (h *ShellHandler) Kind() Kind { return KindExecute }

func (h *ShellHandler) MatchesKind(p Payload) bool {
	return p.Kind == KindFunction || p.Kind == KindLocalShell || p.Kind == KindUnifiedExec
}

// EnvMap unmarshals both the plain-object form and the array-of-pairs form
// a strict-schema model may emit (teacher's shell.go EnvMap).
type EnvMap map[string]string

func (e *EnvMap) UnmarshalJSON(data []byte) error {
	var pairs []struct {
		Key   string `json:"key"`
		Value string `json:"value"`
	}
	if err := json.Unmarshal(data, &pairs); err == nil && len(pairs) > 0 {
		m := make(map[string]string, len(pairs))
		for _, p := range pairs {
			if p.Key == "" {
				return fmt.Errorf("env pair has empty key")
			}
			m[p.Key] = p.Value
		}
		*e = m
		return nil
	}
	var m map[string]string
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	*e = m
	return nil
}

// ShellArgs are the decoded arguments of a shell call (spec §4.B).
type ShellArgs struct {
	Command       string `json:"command"`
	Cwd           string `json:"cwd,omitempty"`
	TimeoutMs     int    `json:"timeout_ms,omitempty"`
	Env           EnvMap `json:"env,omitempty"`
	WithEscalated bool   `json:"with_escalated_permissions,omitempty"`
	IsBackground  bool   `json:"is_background,omitempty"`
}

func (h *ShellHandler) Spec() llm.ToolSpec {
	return llm.ToolSpec{
		Name:        ShellToolName,
		Description: "Execute a shell command and return its stdout, stderr, and exit code.",
		Schema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"command":                    map[string]interface{}{"type": "string", "description": "shell command to run"},
				"cwd":                        map[string]interface{}{"type": "string", "description": "working directory, defaults to the process cwd"},
				"timeout_ms":                 map[string]interface{}{"type": "integer", "description": "timeout in milliseconds, default 30000, capped by policy"},
				"env":                        map[string]interface{}{"type": "object", "description": "extra environment variables"},
				"with_escalated_permissions": map[string]interface{}{"type": "boolean"},
				"is_background":              map[string]interface{}{"type": "boolean"},
			},
			"required": []string{"command"},
		},
	}
}

// Handle runs the §4.B Shell/Exec algorithm: parse, policy-check, spawn,
// capture, enforce timeout by killing the process group, format via §4.G.
func (h *ShellHandler) Handle(inv Invocation) (Output, error) {
	var a ShellArgs
	if err := json.Unmarshal([]byte(inv.Payload.RawArguments), &a); err != nil {
		return Output{}, toolerr.ValidationErr("invalid shell arguments: %v", err)
	}
	if a.Command == "" {
		return Output{}, toolerr.ValidationErr("command is required")
	}

	if inv.Policy != nil {
		basename := a.Command
		if idx := strings.IndexByte(basename, ' '); idx >= 0 {
			basename = basename[:idx]
		}
		if err := inv.Policy.CheckCommand(a.Command, basename); err != nil {
			return Output{}, toolerr.SandboxErr("%v", err)
		}
		if approvals := inv.Policy.Approvals(); approvals != nil && inv.Policy.RequiresApprovalAlways() {
			approved, err := approvals.CheckShellApproval(inv.Ctx, inv.ToolName, a.Command)
			if err != nil {
				return Output{}, toolerr.PermissionErr("approval check failed: %v", err)
			}
			if !approved {
				return Output{}, toolerr.PermissionErr("command not approved: %s", truncateCommand(a.Command))
			}
		}
	}

	timeout := 30 * time.Second
	if a.TimeoutMs > 0 {
		timeout = time.Duration(a.TimeoutMs) * time.Millisecond
	}
	if inv.Policy != nil {
		timeout = inv.Policy.CoerceTimeout(timeout)
	}

	workDir := a.Cwd
	if workDir == "" {
		workDir = inv.Cwd
	}

	execCtx, cancel := context.WithTimeout(inv.Ctx, timeout)
	defer cancel()

	start := time.Now()
	cmd := exec.CommandContext(execCtx, h.shellPath, "-c", a.Command)
	if workDir != "" {
		cmd.Dir = workDir
	}

	overrides := make(map[string]struct{}, len(a.Env))
	for key := range a.Env {
		overrides[key] = struct{}{}
	}
	cmd.Env = make([]string, 0, len(os.Environ())+len(a.Env))
	for _, e := range os.Environ() {
		if k, _, ok := strings.Cut(e, "="); ok {
			if _, shadowed := overrides[k]; shadowed {
				continue
			}
		}
		cmd.Env = append(cmd.Env, e)
	}
	for key, value := range a.Env {
		cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", key, value))
	}

	if devNull, err := os.OpenFile(os.DevNull, os.O_RDONLY, 0); err == nil {
		cmd.Stdin = devNull
		defer devNull.Close()
	}
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	duration := time.Since(start).Seconds()

	if execCtx.Err() == context.DeadlineExceeded {
		if cmd.Process != nil {
			_ = syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
		}
		return timeoutOutput(stdout.String(), stderr.String(), duration), nil
	}
	if inv.Ctx.Err() == context.Canceled {
		return Output{}, toolerr.CancelledErr("shell command cancelled")
	}

	exitCode := 0
	if runErr != nil {
		exitErr, ok := runErr.(*exec.ExitError)
		if !ok {
			return Output{}, toolerr.SystemErr("command error: %v", runErr)
		}
		exitCode = exitErr.ExitCode()
	}

	content := stdout.String()
	if stderr.Len() > 0 {
		content += "\nstderr:\n" + stderr.String()
	}
	env := format.FormatEnvelope(content, exitCode, duration, false)
	encoded, _ := json.Marshal(env)
	return Output{Kind: OutputFunction, Content: string(encoded), Success: exitCode == 0, Truncated: env.Metadata.Truncated}, nil
}

func timeoutOutput(stdout, stderr string, duration float64) Output {
	content := stdout
	if stderr != "" {
		content += "\nstderr:\n" + stderr
	}
	env := format.FormatEnvelope(content, -1, duration, true)
	encoded, _ := json.Marshal(env)
	return Output{Kind: OutputFunction, Content: string(encoded), Success: false, TimedOut: true, Truncated: env.Metadata.Truncated}
}

func detectShell() string {
	shell := os.Getenv("SHELL")
	if shell == "" {
		return "bash"
	}
	return shell
}

func truncateCommand(cmd string) string {
	if len(cmd) > 50 {
		return cmd[:47] + "..."
	}
	return cmd
}
