package tools

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/indubitably-ai/agentcore/internal/llm"
	"github.com/indubitably-ai/agentcore/internal/toolerr"
	"github.com/indubitably-ai/agentcore/internal/tracker"
)

// EditHandler is the File Edit archetype (spec §4.B "File Edit/Apply-Patch"):
// lock the target path, verify the pre-image, compute the post-image, write,
// record the edit, unlock on every exit path. Grounded on the teacher's
// EditFileTool (internal/tools/edit.go) direct-edit mode; the teacher's
// instructions-mode (an LLM-delegated rewrite) is out of scope here since
// spec.md names only a deterministic old_text/new_text contract.
type EditHandler struct{}

func NewEditHandler() *EditHandler { return &EditHandler{} }

func (h *EditHandler) Kind() Kind { return KindEdit }

func (h *EditHandler) MatchesKind(p Payload) bool { return p.Kind == KindFunction }

// EditFileArgs are the decoded arguments of an edit_file call.
type EditFileArgs struct {
	FilePath string `json:"file_path"`
	OldText  string `json:"old_text"`
	NewText  string `json:"new_text"`
}

func (h *EditHandler) Spec() llm.ToolSpec {
	return llm.ToolSpec{
		Name:        EditFileToolName,
		Description: "Replace an exact span of text in a file. old_text must match uniquely unless it contains the literal token <<<elided>>>, which matches any run of characters; with the token, the first match is used.",
		Schema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"file_path": map[string]interface{}{"type": "string"},
				"old_text":  map[string]interface{}{"type": "string", "description": "exact text to find and replace; may contain <<<elided>>>"},
				"new_text":  map[string]interface{}{"type": "string"},
			},
			"required": []string{"file_path", "old_text", "new_text"},
		},
	}
}

// Handle implements the lock → verify pre-image → write → record → unlock
// sequence (spec §4.B, §4.F). Every exit path unlocks the path before
// returning.
func (h *EditHandler) Handle(inv Invocation) (Output, error) {
	var a EditFileArgs
	if err := json.Unmarshal([]byte(inv.Payload.RawArguments), &a); err != nil {
		return Output{}, toolerr.ValidationErr("invalid edit_file arguments: %v", err)
	}
	if a.FilePath == "" || a.OldText == "" {
		return Output{}, toolerr.ValidationErr("file_path and old_text are required")
	}

	if inv.Policy != nil {
		if err := inv.Policy.CheckWritePath(a.FilePath); err != nil {
			return Output{}, toolerr.SandboxErr("%v", err)
		}
		if approvals := inv.Policy.Approvals(); approvals != nil && inv.Policy.RequiresApprovalForWrite() {
			approved, err := approvals.CheckPathApproval(inv.Ctx, inv.ToolName, a.FilePath, true)
			if err != nil {
				return Output{}, toolerr.PermissionErr("approval check failed: %v", err)
			}
			if !approved {
				return Output{}, toolerr.PermissionErr("write not approved: %s", a.FilePath)
			}
		}
	}

	if inv.Tracker != nil {
		if err := inv.Tracker.LockFile(a.FilePath); err != nil {
			return Output{}, toolerr.TransientErr("path already locked by another call in this turn: %s", a.FilePath)
		}
		defer inv.Tracker.UnlockFile(a.FilePath)
	}

	data, err := os.ReadFile(a.FilePath)
	if err != nil {
		if os.IsNotExist(err) {
			return Output{}, toolerr.NotFoundErr("%s", a.FilePath)
		}
		return Output{}, toolerr.SystemErr("read error: %v", err)
	}
	oldContent := string(data)

	if inv.Tracker != nil {
		if expected, ok := inv.Tracker.LastReadHash(a.FilePath); ok {
			if actual := hashContent(oldContent); actual != expected {
				desc := fmt.Sprintf("conflict on %s: file changed after it was read (expected hash %s, found %s)", a.FilePath, expected, actual)
				inv.Tracker.RecordConflict(desc)
				return Output{}, toolerr.ValidationErr("conflict: %s changed after it was read; re-read before editing", a.FilePath)
			}
		}
	}

	span, findErr := findSpan(oldContent, a.OldText)
	if findErr != nil {
		return Output{}, toolerr.ValidationErr("could not find old_text: %v", findErr)
	}
	newContent := oldContent[:span.start] + a.NewText + oldContent[span.end:]

	if err := atomicWrite(a.FilePath, newContent); err != nil {
		return Output{}, toolerr.SystemErr("write error: %v", err)
	}

	if inv.Tracker != nil {
		o, n := oldContent, newContent
		inv.Tracker.RecordEdit(a.FilePath, inv.ToolName, tracker.ActionUpdate, &o, &n)
	}

	oldLines, newLines := strings.Count(oldContent, "\n"), strings.Count(newContent, "\n")
	return TextOutput(fmt.Sprintf("edited %s (lines %d -> %d)", a.FilePath, oldLines+1, newLines+1)), nil
}

type textSpan struct{ start, end int }

// findSpan locates search within content. The literal token <<<elided>>>
// matches any run of characters, letting a caller span a large region
// without quoting it verbatim (teacher's edit.go elision convention). Only
// a search without the token is checked for uniqueness. With the token, the
// span runs from the first occurrence of the text before the first token to
// the next occurrence of the text after the last token; text between
// tokens is not matched.
func findSpan(content, search string) (textSpan, error) {
	if !strings.Contains(search, "<<<elided>>>") {
		idx := strings.Index(content, search)
		if idx < 0 {
			return textSpan{}, fmt.Errorf("no match")
		}
		if strings.Index(content[idx+1:], search) >= 0 {
			return textSpan{}, fmt.Errorf("old_text matches more than once, add more context")
		}
		return textSpan{idx, idx + len(search)}, nil
	}

	parts := strings.Split(search, "<<<elided>>>")
	prefix, suffix := parts[0], parts[len(parts)-1]
	startIdx := strings.Index(content, prefix)
	if startIdx < 0 {
		return textSpan{}, fmt.Errorf("no match for prefix before <<<elided>>>")
	}
	afterPrefix := startIdx + len(prefix)
	endIdx := strings.Index(content[afterPrefix:], suffix)
	if endIdx < 0 {
		return textSpan{}, fmt.Errorf("no match for suffix after <<<elided>>>")
	}
	return textSpan{startIdx, afterPrefix + endIdx + len(suffix)}, nil
}

func atomicWrite(path, content string) error {
	dir := filepath.Dir(path)
	base := filepath.Base(path)
	tmp, err := os.CreateTemp(dir, "."+base+".*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if _, err := tmp.WriteString(content); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return nil
}
