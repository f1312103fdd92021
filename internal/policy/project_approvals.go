package policy

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// ProjectApprovals persists accepted write-path and shell-pattern approvals
// per project directory, so repeat runs against the same repo don't
// re-prompt (SPEC_FULL.md §D2, grounded on the teacher's
// internal/tools/project_approvals.go). This is additive to the in-memory
// ApprovalManager cache, not a replacement for it.
type ProjectApprovals struct {
	mu   sync.Mutex
	path string

	ReadPaths    map[string]bool `yaml:"read_paths"`
	WritePaths   map[string]bool `yaml:"write_paths"`
	ShellPatterns []string       `yaml:"shell_patterns"`
}

// DefaultProjectApprovalsPath derives a per-project YAML file path under
// configDir, named by a hash of the project's absolute root, matching the
// teacher's "~/.config/.../projects/<repo-hash>.yaml" convention.
func DefaultProjectApprovalsPath(configDir, projectRoot string) (string, error) {
	abs, err := filepath.Abs(projectRoot)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256([]byte(abs))
	name := hex.EncodeToString(sum[:])[:16] + ".yaml"
	return filepath.Join(configDir, "projects", name), nil
}

// LoadProjectApprovals reads path if present, or returns an empty, writable
// ProjectApprovals bound to it.
func LoadProjectApprovals(path string) (*ProjectApprovals, error) {
	pa := &ProjectApprovals{
		path:       path,
		ReadPaths:  make(map[string]bool),
		WritePaths: make(map[string]bool),
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return pa, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read project approvals: %w", err)
	}
	if err := yaml.Unmarshal(data, pa); err != nil {
		return nil, fmt.Errorf("parse project approvals: %w", err)
	}
	if pa.ReadPaths == nil {
		pa.ReadPaths = make(map[string]bool)
	}
	if pa.WritePaths == nil {
		pa.WritePaths = make(map[string]bool)
	}
	pa.path = path
	return pa, nil
}

// Save persists the current state to disk, creating parent directories as
// needed.
func (pa *ProjectApprovals) Save() error {
	pa.mu.Lock()
	defer pa.mu.Unlock()
	return pa.saveLocked()
}

func (pa *ProjectApprovals) saveLocked() error {
	if err := os.MkdirAll(filepath.Dir(pa.path), 0o755); err != nil {
		return fmt.Errorf("create project approvals dir: %w", err)
	}
	data, err := yaml.Marshal(pa)
	if err != nil {
		return fmt.Errorf("marshal project approvals: %w", err)
	}
	return os.WriteFile(pa.path, data, 0o644)
}

// IsPathApproved reports whether path is approved for read or write.
func (pa *ProjectApprovals) IsPathApproved(path string, write bool) bool {
	pa.mu.Lock()
	defer pa.mu.Unlock()
	if write {
		return pa.WritePaths[path]
	}
	return pa.ReadPaths[path] || pa.WritePaths[path]
}

// ApprovePath records path as approved and best-effort persists it. Save
// failures are swallowed: project persistence is a convenience, not a
// correctness requirement.
func (pa *ProjectApprovals) ApprovePath(path string, write bool) {
	pa.mu.Lock()
	if write {
		pa.WritePaths[path] = true
	} else {
		pa.ReadPaths[path] = true
	}
	err := pa.saveLocked()
	pa.mu.Unlock()
	_ = err
}

// IsShellPatternApproved reports whether commandLine matches any previously
// approved shell pattern.
func (pa *ProjectApprovals) IsShellPatternApproved(commandLine string) bool {
	pa.mu.Lock()
	patterns := append([]string(nil), pa.ShellPatterns...)
	pa.mu.Unlock()
	for _, p := range patterns {
		if matchPattern(p, commandLine) {
			return true
		}
	}
	return false
}

// ApproveShellPattern adds pattern to the persisted list, deduplicating.
func (pa *ProjectApprovals) ApproveShellPattern(pattern string) {
	pa.mu.Lock()
	for _, p := range pa.ShellPatterns {
		if p == pattern {
			pa.mu.Unlock()
			return
		}
	}
	pa.ShellPatterns = append(pa.ShellPatterns, pattern)
	err := pa.saveLocked()
	pa.mu.Unlock()
	_ = err
}

// matchPattern implements the simple "prefix *" shell-pattern match produced
// by GenerateShellPattern.
func matchPattern(pattern, commandLine string) bool {
	if !strings.HasSuffix(pattern, " *") {
		return pattern == commandLine
	}
	prefix := strings.TrimSuffix(pattern, "*")
	return strings.HasPrefix(commandLine, prefix)
}
