package tools

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/indubitably-ai/agentcore/internal/llm"
	"github.com/indubitably-ai/agentcore/internal/toolerr"
)

// GlobHandler is the Search archetype (spec §4.B): walk a directory tree
// and return files matching a doublestar pattern, sorted newest-first.
// Grounded on the teacher's GlobTool (internal/tools/glob.go), adapted to
// gate reads through the shared Policy's ApprovalManager.CheckPathApproval
// (only under approval=always), which returns approved/not-approved instead
// of the teacher's Cancel-outcome vocabulary.
type GlobHandler struct{}

func NewGlobHandler() *GlobHandler { return &GlobHandler{} }

func (h *GlobHandler) Kind() Kind { return KindSearch }

func (h *GlobHandler) MatchesKind(p Payload) bool { return p.Kind == KindFunction }

type GlobArgs struct {
	Pattern string `json:"pattern"`
	Path    string `json:"path,omitempty"`
}

type globEntry struct {
	path    string
	isDir   bool
	size    int64
	modTime time.Time
}

const maxGlobResults = 200

func (h *GlobHandler) Spec() llm.ToolSpec {
	return llm.ToolSpec{
		Name:        GlobToolName,
		Description: "Find files by glob pattern (supports ** for recursive matching). Returns file metadata sorted by modification time.",
		Schema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"pattern": map[string]interface{}{
					"type":        "string",
					"description": "glob pattern supporting ** for recursive matching, e.g. '**/*.go'",
				},
				"path": map[string]interface{}{
					"type":        "string",
					"description": "base directory for the search, defaults to the current directory",
				},
			},
			"required": []string{"pattern"},
		},
	}
}

func (h *GlobHandler) Handle(inv Invocation) (Output, error) {
	warning := WarnUnknownParams(inv.Payload.RawArguments, []string{"pattern", "path"})

	var a GlobArgs
	if err := json.Unmarshal([]byte(inv.Payload.RawArguments), &a); err != nil {
		return Output{}, toolerr.ValidationErr("invalid glob arguments: %v", err)
	}
	if a.Pattern == "" {
		return Output{}, toolerr.ValidationErr("pattern is required")
	}

	basePath := a.Path
	if basePath == "" {
		var err error
		basePath = inv.Cwd
		if basePath == "" {
			basePath, err = os.Getwd()
			if err != nil {
				return Output{}, toolerr.SystemErr("cannot get working directory: %v", err)
			}
		}
	}

	if inv.Policy != nil {
		if approvals := inv.Policy.Approvals(); approvals != nil && inv.Policy.RequiresApprovalAlways() {
			approved, err := approvals.CheckPathApproval(inv.Ctx, inv.ToolName, basePath, false)
			if err != nil {
				return Output{}, toolerr.PermissionErr("approval check failed: %v", err)
			}
			if !approved {
				return Output{}, toolerr.PermissionErr("search not approved: %s", basePath)
			}
		}
	}

	absBasePath, err := filepath.Abs(basePath)
	if err != nil {
		return Output{}, toolerr.SystemErr("cannot resolve path: %v", err)
	}

	var entries []globEntry
	walkErr := filepath.WalkDir(absBasePath, func(path string, d os.DirEntry, err error) error {
		if inv.Ctx.Err() != nil {
			return inv.Ctx.Err()
		}
		if err != nil {
			return nil
		}
		if d.IsDir() && strings.HasPrefix(d.Name(), ".") && path != absBasePath {
			return filepath.SkipDir
		}
		if !d.IsDir() && strings.HasPrefix(d.Name(), ".") {
			return nil
		}
		relPath, err := filepath.Rel(absBasePath, path)
		if err != nil {
			return nil
		}
		matched, err := doublestar.Match(a.Pattern, relPath)
		if err != nil || !matched {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		entries = append(entries, globEntry{path: path, isDir: d.IsDir(), size: info.Size(), modTime: info.ModTime()})
		if len(entries) >= maxGlobResults {
			return filepath.SkipAll
		}
		return nil
	})
	if walkErr != nil {
		return Output{}, toolerr.SystemErr("walk error: %v", walkErr)
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].modTime.After(entries[j].modTime) })

	if len(entries) == 0 {
		return TextOutput(warning + "no files matched the pattern"), nil
	}
	return TextOutput(warning + formatGlobResults(entries, len(entries) >= maxGlobResults)), nil
}

func formatGlobResults(entries []globEntry, truncated bool) string {
	var sb strings.Builder
	for _, e := range entries {
		kind := "f"
		if e.isDir {
			kind = "d"
		}
		fmt.Fprintf(&sb, "[%s] %s  %s  %s\n", kind, formatSize(e.size), e.modTime.Format("2006-01-02 15:04"), e.path)
	}
	if truncated {
		fmt.Fprintf(&sb, "\n[results truncated at %d files]", maxGlobResults)
	}
	return strings.TrimSuffix(sb.String(), "\n")
}

func formatSize(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%4dB", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%4.0f%c", float64(bytes)/float64(div), "KMGTPE"[exp])
}
