package policy

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/gobwas/glob"
	"golang.org/x/term"
)

// ApprovalKind distinguishes what an approval request is gating.
type ApprovalKind string

const (
	ApprovalKindPath  ApprovalKind = "path"
	ApprovalKindShell ApprovalKind = "shell"
)

// Request describes one pending approval decision.
type Request struct {
	Kind        ApprovalKind
	ToolName    string
	Path        string // for ApprovalKindPath
	CommandLine string // for ApprovalKindShell
	Write       bool
}

// Decision is the shape of one ApprovalManager.Ask call: true approves,
// along with whether the approval should be remembered for the rest of the
// session (and, optionally, persisted across sessions).
type Decision struct {
	Approved bool
	Remember bool
	Persist  bool
}

// PromptFunc is supplied by the host to ask the user interactively. It must
// not be called while any scheduler lock is held (spec §5: "Handlers must
// not hold a scheduler lock across a user-approval wait").
type PromptFunc func(ctx context.Context, req Request) Decision

// ApprovalManager is the session-scoped cache of approval decisions plus the
// interactive prompt surface, adapted from the teacher's ApprovalCache /
// DirCache / ShellApprovalCache trio (internal/tools/approval.go).
type ApprovalManager struct {
	mu sync.Mutex

	approvedPaths map[string]bool // exact path -> write-approved
	approvedDirs  map[string]bool // directory -> write-approved (recursive)
	shellPatterns []compiledPattern

	prompt   PromptFunc
	promptMu sync.Mutex // serializes concurrent prompts across parallel tool calls

	project *ProjectApprovals

	parent   *ApprovalManager
	yoloMode bool
}

type compiledPattern struct {
	raw string
	g   glob.Glob
}

// NewApprovalManager builds a manager with no pre-approved state.
func NewApprovalManager(prompt PromptFunc, project *ProjectApprovals) *ApprovalManager {
	return &ApprovalManager{
		approvedPaths: make(map[string]bool),
		approvedDirs:  make(map[string]bool),
		prompt:        prompt,
		project:       project,
	}
}

// SetParent wires sub-agent approval inheritance: a child consults its
// parent's cache before prompting. Rejects cycles.
func (m *ApprovalManager) SetParent(parent *ApprovalManager) error {
	for p := parent; p != nil; p = p.parent {
		if p == m {
			return fmt.Errorf("approval manager cycle detected")
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.parent = parent
	return nil
}

// SetYoloMode disables all prompting; every request auto-approves. Used for
// --dry-run-adjacent unattended runs; the host opts into this explicitly.
func (m *ApprovalManager) SetYoloMode(on bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.yoloMode = on
}

// CanPromptInteractively reports whether an interactive prompt is possible:
// a PromptFunc is configured and stdin is a terminal.
func (m *ApprovalManager) CanPromptInteractively() bool {
	if m.prompt == nil {
		return false
	}
	return term.IsTerminal(int(os.Stdin.Fd()))
}

// CheckPathApproval decides whether path may be accessed for write. It
// consults, in order: yolo mode, the in-memory cache (exact path, then
// covering directory), the parent chain, the persisted project approvals,
// and finally an interactive prompt if one is possible.
func (m *ApprovalManager) CheckPathApproval(ctx context.Context, toolName, path string, write bool) (bool, error) {
	if ok, decided := m.checkPathApprovalNoPrompt(path, write); decided {
		return ok, nil
	}

	if !m.CanPromptInteractively() {
		return false, nil
	}

	m.promptMu.Lock()
	defer m.promptMu.Unlock()

	// Re-check after acquiring the prompt lock: another call may have
	// resolved this exact path while we were waiting.
	if ok, decided := m.checkPathApprovalNoPrompt(path, write); decided {
		return ok, nil
	}

	decision := m.prompt(ctx, Request{Kind: ApprovalKindPath, ToolName: toolName, Path: path, Write: write})
	m.handlePathApprovalResult(path, write, decision)
	return decision.Approved, nil
}

func (m *ApprovalManager) checkPathApprovalNoPrompt(path string, write bool) (approved bool, decided bool) {
	m.mu.Lock()
	yolo := m.yoloMode
	if !write {
		// reads are always allowed by policy; CheckPathApproval is only
		// meaningful for writes. Callers that care about read-gating should
		// use Policy.CheckWritePath instead for sandboxing.
	}
	if approved, ok := m.approvedPaths[path]; ok {
		m.mu.Unlock()
		return approved, true
	}
	for dir, ok := range m.approvedDirs {
		if ok && within(path, dir) {
			m.mu.Unlock()
			return true, true
		}
	}
	parent := m.parent
	project := m.project
	m.mu.Unlock()

	if yolo {
		return true, true
	}
	if parent != nil {
		if approved, decided := parent.checkPathApprovalNoPrompt(path, write); decided {
			return approved, true
		}
	}
	if project != nil && project.IsPathApproved(path, write) {
		return true, true
	}
	return false, false
}

func (m *ApprovalManager) handlePathApprovalResult(path string, write bool, d Decision) {
	if !d.Approved {
		return
	}
	if d.Remember {
		m.mu.Lock()
		m.approvedPaths[path] = true
		m.mu.Unlock()
	}
	if d.Persist && m.project != nil {
		m.project.ApprovePath(path, write)
	}
}

// ApproveDirectory records every path under dir as write-approved for the
// rest of the session.
func (m *ApprovalManager) ApproveDirectory(dir string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.approvedDirs[dir] = true
}

// CheckShellApproval decides whether commandLine may run, following the same
// cache/parent/project/prompt chain as CheckPathApproval but matched by glob
// pattern rather than exact path.
func (m *ApprovalManager) CheckShellApproval(ctx context.Context, toolName, commandLine string) (bool, error) {
	if ok, decided := m.checkShellApprovalNoPrompt(commandLine); decided {
		return ok, nil
	}

	if !m.CanPromptInteractively() {
		return false, nil
	}

	m.promptMu.Lock()
	defer m.promptMu.Unlock()

	if ok, decided := m.checkShellApprovalNoPrompt(commandLine); decided {
		return ok, nil
	}

	decision := m.prompt(ctx, Request{Kind: ApprovalKindShell, ToolName: toolName, CommandLine: commandLine})
	m.handleShellApprovalResult(commandLine, decision)
	return decision.Approved, nil
}

func (m *ApprovalManager) checkShellApprovalNoPrompt(commandLine string) (approved bool, decided bool) {
	m.mu.Lock()
	yolo := m.yoloMode
	for _, p := range m.shellPatterns {
		if p.g.Match(commandLine) {
			m.mu.Unlock()
			return true, true
		}
	}
	parent := m.parent
	project := m.project
	m.mu.Unlock()

	if yolo {
		return true, true
	}
	if parent != nil {
		if approved, decided := parent.checkShellApprovalNoPrompt(commandLine); decided {
			return approved, true
		}
	}
	if project != nil && project.IsShellPatternApproved(commandLine) {
		return true, true
	}
	return false, false
}

func (m *ApprovalManager) handleShellApprovalResult(commandLine string, d Decision) {
	if !d.Approved {
		return
	}
	pattern := GenerateShellPattern(commandLine)
	if d.Remember {
		m.ApproveShellPattern(pattern)
	}
	if d.Persist && m.project != nil {
		m.project.ApproveShellPattern(pattern)
	}
}

// ApproveShellPattern compiles and caches a glob pattern for the rest of the
// session.
func (m *ApprovalManager) ApproveShellPattern(pattern string) {
	g, err := compileGlob(pattern)
	if err != nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shellPatterns = append(m.shellPatterns, compiledPattern{raw: pattern, g: g})
}

// GenerateShellPattern derives a glob pattern from a concrete command line by
// wildcarding everything after the first token (the executable), matching
// the teacher's "approve this command family, not just this exact
// invocation" behavior.
func GenerateShellPattern(commandLine string) string {
	for i, c := range commandLine {
		if c == ' ' {
			return commandLine[:i] + " *"
		}
	}
	return commandLine
}

func within(path, dir string) bool {
	if len(path) < len(dir) {
		return false
	}
	if path == dir {
		return true
	}
	return len(path) > len(dir) && path[len(dir)] == '/' && path[:len(dir)] == dir
}
