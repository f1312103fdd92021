// Package policy implements the Execution Policy gates consulted by tool
// handlers before any side-effecting operation (spec §4.H): sandbox level,
// approval mode, allowed write paths, blocked command substrings, and a
// timeout cap.
package policy

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/gobwas/glob"
)

// Sandbox is how aggressively command execution is restricted.
type Sandbox string

const (
	SandboxNone       Sandbox = "none"
	SandboxRestricted Sandbox = "restricted"
	SandboxStrict     Sandbox = "strict"
)

// ApprovalMode controls when the ApprovalManager's CheckPathApproval/
// CheckShellApproval is consulted.
type ApprovalMode string

const (
	ApprovalNever     ApprovalMode = "never"
	ApprovalOnRequest ApprovalMode = "on_request"
	ApprovalOnWrite   ApprovalMode = "on_write"
	ApprovalAlways    ApprovalMode = "always"
)

// Config is the static configuration a Policy enforces (spec §4.H / §6
// "execution" config section).
type Config struct {
	Sandbox         Sandbox
	Approval        ApprovalMode
	AllowedPaths    []string // glob-style; empty means unrestricted
	BlockedCommands []string // literal substrings
	SafeCommands    []string // basenames allowed under SandboxStrict
	TimeoutSeconds  float64  // 0 means no cap
}

// DefaultConfig mirrors the teacher's DefaultToolConfig conservatism:
// restricted sandbox with a small blocked-command list, approval required
// before writes, no explicit path allow-list.
func DefaultConfig() Config {
	return Config{
		Sandbox:        SandboxRestricted,
		Approval:       ApprovalOnWrite,
		TimeoutSeconds: 120,
		BlockedCommands: []string{
			"rm -rf /",
			":(){ :|:& };:",
		},
	}
}

// Policy evaluates one Config. Sub-agent approval inheritance (SPEC_FULL.md
// §D2) lives on the backing ApprovalManager (SetParent), not on Policy.
type Policy struct {
	cfg       Config
	approvals *ApprovalManager
}

// New builds a Policy backed by cfg and an approval manager.
func New(cfg Config, approvals *ApprovalManager) *Policy {
	return &Policy{cfg: cfg, approvals: approvals}
}

// Config returns the underlying configuration.
func (p *Policy) Config() Config { return p.cfg }

// Approvals returns the backing approval manager, for handlers that need to
// drive an interactive prompt directly.
func (p *Policy) Approvals() *ApprovalManager { return p.approvals }

// CheckCommand enforces the sandbox's command gate against a full command
// line. Returns a sandbox violation (fatal, per spec §4.H) when blocked.
func (p *Policy) CheckCommand(commandLine string, basename string) error {
	switch p.cfg.Sandbox {
	case SandboxStrict:
		if !p.isSafeCommand(basename) {
			return SandboxViolation("command %q is not on the strict-mode safe list", basename)
		}
	case SandboxRestricted:
		for _, blocked := range p.cfg.BlockedCommands {
			if blocked != "" && strings.Contains(commandLine, blocked) {
				return SandboxViolation("command contains blocked substring %q", blocked)
			}
		}
	case SandboxNone:
		// unrestricted
	}
	return nil
}

func (p *Policy) isSafeCommand(basename string) bool {
	for _, safe := range p.cfg.SafeCommands {
		if safe == basename {
			return true
		}
	}
	return false
}

// CheckWritePath enforces allowed_paths for a filesystem write target
// (spec §4.H: "any filesystem write target must be within at least one of
// these paths"). An empty AllowedPaths list is unrestricted.
func (p *Policy) CheckWritePath(target string) error {
	if len(p.cfg.AllowedPaths) == 0 {
		return nil
	}
	abs, err := filepath.Abs(target)
	if err != nil {
		return SandboxViolation("cannot resolve path %q: %v", target, err)
	}
	for _, allowed := range p.cfg.AllowedPaths {
		allowedAbs, err := filepath.Abs(allowed)
		if err != nil {
			continue
		}
		if matched, _ := doublestar.PathMatch(allowedAbs, abs); matched {
			return nil
		}
		if strings.HasPrefix(abs, allowedAbs+string(filepath.Separator)) || abs == allowedAbs {
			return nil
		}
	}
	return SandboxViolation("write target %q is outside allowed_paths", target)
}

// CoerceTimeout caps requested against the configured timeout_seconds, when
// one is set.
func (p *Policy) CoerceTimeout(requested time.Duration) time.Duration {
	if p.cfg.TimeoutSeconds <= 0 {
		return requested
	}
	ceiling := time.Duration(p.cfg.TimeoutSeconds * float64(time.Second))
	if requested <= 0 || requested > ceiling {
		return ceiling
	}
	return requested
}

// RequiresApprovalForWrite reports whether the configured approval mode
// gates a write-capable operation.
func (p *Policy) RequiresApprovalForWrite() bool {
	switch p.cfg.Approval {
	case ApprovalAlways, ApprovalOnWrite:
		return true
	default:
		return false
	}
}

// RequiresApprovalAlways reports whether every operation (not just writes)
// must be approved.
func (p *Policy) RequiresApprovalAlways() bool {
	return p.cfg.Approval == ApprovalAlways
}

// compileGlob compiles a shell-command glob pattern, used by ApprovalManager
// shell-pattern matching. The strict safe-list compares basenames exactly
// and does not use it.
func compileGlob(pattern string) (glob.Glob, error) {
	return glob.Compile(pattern)
}
