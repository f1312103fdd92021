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

// ApplyPatchHandler is the second half of the File Edit/Apply-Patch archetype
// (spec §4.B): a multi-file patch in the "*** Begin Patch" envelope format,
// applied hunk by hunk with the same lock/record/unlock discipline as
// EditHandler. Grounded on the apply_patch tool in the goclaw example repo
// (pkg/devclaw/copilot/apply_patch.go), which itself documents the OpenAI
// apply_patch convention; adapted from a single map[string]any tool call
// into the Handler contract, with policy gating and tracker recording added
// per file instead of the original's bare os.WriteFile/os.Remove calls.
type ApplyPatchHandler struct{}

func NewApplyPatchHandler() *ApplyPatchHandler { return &ApplyPatchHandler{} }

func (h *ApplyPatchHandler) Kind() Kind { return KindEdit }

func (h *ApplyPatchHandler) MatchesKind(p Payload) bool { return p.Kind == KindFunction }

type ApplyPatchArgs struct {
	Input string `json:"input"`
}

func (h *ApplyPatchHandler) Spec() llm.ToolSpec {
	return llm.ToolSpec{
		Name: ApplyPatchToolName,
		Description: "Apply a multi-file patch. The input must start with '*** Begin Patch' and end with " +
			"'*** End Patch', with '*** Add File:', '*** Delete File:', and '*** Update File:' sections " +
			"in between, each using unified-diff-style ' '/'+'/'-' line prefixes.",
		Schema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"input": map[string]interface{}{"type": "string"},
			},
			"required": []string{"input"},
		},
	}
}

const (
	beginPatchMarker    = "*** Begin Patch"
	endPatchMarker      = "*** End Patch"
	addFileMarker       = "*** Add File: "
	deleteFileMarker    = "*** Delete File: "
	updateFileMarker    = "*** Update File: "
	moveToMarker        = "*** Move to: "
	eofMarker           = "*** End of File"
	changeContextMarker = "@@ "
)

type hunkKind int

const (
	hunkAdd hunkKind = iota
	hunkDelete
	hunkUpdate
)

type updateChunk struct {
	context  string
	oldLines []string
	newLines []string
}

type patchHunk struct {
	kind     hunkKind
	path     string
	movePath string
	contents string
	chunks   []updateChunk
}

// Handle parses the patch, then applies each hunk in order, locking every
// touched path for the duration of its own write and recording the edit.
func (h *ApplyPatchHandler) Handle(inv Invocation) (Output, error) {
	var a ApplyPatchArgs
	if err := json.Unmarshal([]byte(inv.Payload.RawArguments), &a); err != nil {
		return Output{}, toolerr.ValidationErr("invalid apply_patch arguments: %v", err)
	}
	if strings.TrimSpace(a.Input) == "" {
		return Output{}, toolerr.ValidationErr("input is required")
	}

	hunks, err := parsePatch(a.Input)
	if err != nil {
		return Output{}, toolerr.ValidationErr("%v", err)
	}
	if len(hunks) == 0 {
		return Output{}, toolerr.ValidationErr("no files were modified in patch")
	}

	cwd := inv.Cwd
	if cwd == "" {
		cwd = "."
	}

	var added, modified, deleted []string
	for _, hunk := range hunks {
		switch hunk.kind {
		case hunkAdd:
			path, err := h.applyOne(inv, cwd, hunk.path, func(string) (string, error) { return hunk.contents, nil })
			if err != nil {
				return Output{}, err
			}
			added = append(added, path)
		case hunkDelete:
			path, err := resolvePatchPath(hunk.path, cwd)
			if err != nil {
				return Output{}, toolerr.ValidationErr("%v", err)
			}
			if err := h.checkAndLock(inv, path, func() error {
				if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
					return err
				}
				return nil
			}); err != nil {
				return Output{}, err
			}
			deleted = append(deleted, hunk.path)
		case hunkUpdate:
			targetPath := hunk.path
			if hunk.movePath != "" {
				targetPath = hunk.movePath
			}
			path, err := h.applyOne(inv, cwd, targetPath, func(resolvedOldPath string) (string, error) {
				oldPath, err := resolvePatchPath(hunk.path, cwd)
				if err != nil {
					return "", err
				}
				return applyUpdateChunks(oldPath, hunk.chunks)
			})
			if err != nil {
				return Output{}, err
			}
			if hunk.movePath != "" && hunk.movePath != hunk.path {
				oldPath, _ := resolvePatchPath(hunk.path, cwd)
				_ = os.Remove(oldPath)
			}
			modified = append(modified, path)
		}
	}

	return TextOutput(formatPatchSummary(added, modified, deleted)), nil
}

// applyOne resolves targetRel, computes its new content via compute, locks
// the path, writes atomically, and records the edit.
func (h *ApplyPatchHandler) applyOne(inv Invocation, cwd, targetRel string, compute func(resolved string) (string, error)) (string, error) {
	targetPath, err := resolvePatchPath(targetRel, cwd)
	if err != nil {
		return "", toolerr.ValidationErr("%v", err)
	}

	if inv.Policy != nil {
		if err := inv.Policy.CheckWritePath(targetPath); err != nil {
			return "", toolerr.SandboxErr("%v", err)
		}
		if approvals := inv.Policy.Approvals(); approvals != nil && inv.Policy.RequiresApprovalForWrite() {
			approved, err := approvals.CheckPathApproval(inv.Ctx, inv.ToolName, targetPath, true)
			if err != nil {
				return "", toolerr.PermissionErr("approval check failed: %v", err)
			}
			if !approved {
				return "", toolerr.PermissionErr("write not approved: %s", targetPath)
			}
		}
	}

	if inv.Tracker != nil {
		if err := inv.Tracker.LockFile(targetPath); err != nil {
			return "", toolerr.TransientErr("path already locked by another call in this turn: %s", targetPath)
		}
		defer inv.Tracker.UnlockFile(targetPath)
	}

	existing, readErr := os.ReadFile(targetPath)
	isNew := os.IsNotExist(readErr)

	if !isNew && inv.Tracker != nil {
		if expected, ok := inv.Tracker.LastReadHash(targetPath); ok {
			if actual := hashContent(string(existing)); actual != expected {
				desc := fmt.Sprintf("conflict on %s: file changed after it was read (expected hash %s, found %s)", targetPath, expected, actual)
				inv.Tracker.RecordConflict(desc)
				return "", toolerr.ValidationErr("conflict: %s changed after it was read; re-read before patching", targetPath)
			}
		}
	}

	newContent, err := compute(targetPath)
	if err != nil {
		return "", toolerr.ValidationErr("%v", err)
	}

	if err := ensurePatchDir(targetPath); err != nil {
		return "", toolerr.SystemErr("%v", err)
	}
	if err := atomicWrite(targetPath, newContent); err != nil {
		return "", toolerr.SystemErr("write error: %v", err)
	}

	if inv.Tracker != nil {
		action := tracker.ActionUpdate
		var oldPtr *string
		if isNew {
			action = tracker.ActionCreate
		} else {
			s := string(existing)
			oldPtr = &s
		}
		n := newContent
		inv.Tracker.RecordEdit(targetPath, inv.ToolName, action, oldPtr, &n)
	}
	return targetRel, nil
}

func (h *ApplyPatchHandler) checkAndLock(inv Invocation, path string, do func() error) error {
	if inv.Policy != nil {
		if err := inv.Policy.CheckWritePath(path); err != nil {
			return toolerr.SandboxErr("%v", err)
		}
		if approvals := inv.Policy.Approvals(); approvals != nil && inv.Policy.RequiresApprovalForWrite() {
			approved, err := approvals.CheckPathApproval(inv.Ctx, inv.ToolName, path, true)
			if err != nil {
				return toolerr.PermissionErr("approval check failed: %v", err)
			}
			if !approved {
				return toolerr.PermissionErr("delete not approved: %s", path)
			}
		}
	}
	if inv.Tracker != nil {
		if err := inv.Tracker.LockFile(path); err != nil {
			return toolerr.TransientErr("path already locked by another call in this turn: %s", path)
		}
		defer inv.Tracker.UnlockFile(path)
	}
	existing, readErr := os.ReadFile(path)
	if readErr == nil && inv.Tracker != nil {
		if expected, ok := inv.Tracker.LastReadHash(path); ok {
			if actual := hashContent(string(existing)); actual != expected {
				desc := fmt.Sprintf("conflict on %s: file changed after it was read (expected hash %s, found %s)", path, expected, actual)
				inv.Tracker.RecordConflict(desc)
				return toolerr.ValidationErr("conflict: %s changed after it was read; re-read before patching", path)
			}
		}
	}
	if err := do(); err != nil {
		return toolerr.SystemErr("%v", err)
	}
	if inv.Tracker != nil {
		old := string(existing)
		inv.Tracker.RecordEdit(path, inv.ToolName, tracker.ActionDelete, &old, nil)
	}
	return nil
}

func resolvePatchPath(rel, cwd string) (string, error) {
	if filepath.IsAbs(rel) {
		return "", fmt.Errorf("absolute paths not allowed in patch: %s", rel)
	}
	resolved := filepath.Clean(filepath.Join(cwd, rel))
	relCheck, err := filepath.Rel(cwd, resolved)
	if err != nil {
		return "", fmt.Errorf("cannot resolve path %s: %w", rel, err)
	}
	if strings.HasPrefix(relCheck, "..") {
		return "", fmt.Errorf("path escapes workspace: %s", rel)
	}
	return resolved, nil
}

func ensurePatchDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

func formatPatchSummary(added, modified, deleted []string) string {
	var sb strings.Builder
	sb.WriteString("applied patch:\n")
	for _, f := range added {
		fmt.Fprintf(&sb, "A %s\n", f)
	}
	for _, f := range modified {
		fmt.Fprintf(&sb, "M %s\n", f)
	}
	for _, f := range deleted {
		fmt.Fprintf(&sb, "D %s\n", f)
	}
	return strings.TrimRight(sb.String(), "\n")
}

// --- Parsing ---

func parsePatch(input string) ([]patchHunk, error) {
	input = strings.ReplaceAll(strings.TrimSpace(input), "\r\n", "\n")
	if input == "" {
		return nil, fmt.Errorf("invalid patch: input is empty")
	}
	lines := strings.Split(input, "\n")
	if len(lines) < 2 {
		return nil, fmt.Errorf("patch must contain at least a begin and end marker")
	}
	if strings.TrimSpace(lines[0]) != beginPatchMarker {
		return nil, fmt.Errorf("the first line of the patch must be '%s'", beginPatchMarker)
	}
	if strings.TrimSpace(lines[len(lines)-1]) != endPatchMarker {
		return nil, fmt.Errorf("the last line of the patch must be '%s'", endPatchMarker)
	}

	var hunks []patchHunk
	remaining := lines[1 : len(lines)-1]
	for len(remaining) > 0 {
		if strings.TrimSpace(remaining[0]) == "" {
			remaining = remaining[1:]
			continue
		}
		hunk, consumed, err := parseOneHunk(remaining)
		if err != nil {
			return nil, err
		}
		hunks = append(hunks, hunk)
		remaining = remaining[consumed:]
	}
	return hunks, nil
}

func parseOneHunk(lines []string) (patchHunk, int, error) {
	first := strings.TrimSpace(lines[0])

	if strings.HasPrefix(first, addFileMarker) {
		path := first[len(addFileMarker):]
		var contents strings.Builder
		consumed := 1
		for _, l := range lines[1:] {
			if strings.HasPrefix(l, "+") {
				contents.WriteString(l[1:])
				contents.WriteString("\n")
				consumed++
				continue
			}
			break
		}
		return patchHunk{kind: hunkAdd, path: path, contents: contents.String()}, consumed, nil
	}

	if strings.HasPrefix(first, deleteFileMarker) {
		return patchHunk{kind: hunkDelete, path: first[len(deleteFileMarker):]}, 1, nil
	}

	if strings.HasPrefix(first, updateFileMarker) {
		path := first[len(updateFileMarker):]
		remaining := lines[1:]
		consumed := 1
		var movePath string
		if len(remaining) > 0 && strings.HasPrefix(strings.TrimSpace(remaining[0]), moveToMarker) {
			movePath = strings.TrimSpace(remaining[0])[len(moveToMarker):]
			remaining = remaining[1:]
			consumed++
		}

		var chunks []updateChunk
		for len(remaining) > 0 {
			if strings.TrimSpace(remaining[0]) == "" {
				remaining = remaining[1:]
				consumed++
				continue
			}
			if strings.HasPrefix(remaining[0], "***") {
				break
			}
			chunk, used, err := parseUpdateChunk(remaining)
			if err != nil {
				return patchHunk{}, 0, err
			}
			chunks = append(chunks, chunk)
			remaining = remaining[used:]
			consumed += used
		}
		if len(chunks) == 0 {
			return patchHunk{}, 0, fmt.Errorf("update file hunk for %q has no chunks", path)
		}
		return patchHunk{kind: hunkUpdate, path: path, movePath: movePath, chunks: chunks}, consumed, nil
	}

	return patchHunk{}, 0, fmt.Errorf("%q is not a valid hunk header", lines[0])
}

func parseUpdateChunk(lines []string) (updateChunk, int, error) {
	var context string
	start := 0
	if strings.HasPrefix(lines[0], changeContextMarker) {
		context = lines[0][len(changeContextMarker):]
		start = 1
	} else if strings.TrimSpace(lines[0]) == "@@" {
		start = 1
	}

	chunk := updateChunk{context: context}
	consumed := start
	for _, line := range lines[start:] {
		if line == eofMarker {
			consumed++
			break
		}
		if line == "" {
			chunk.oldLines = append(chunk.oldLines, "")
			chunk.newLines = append(chunk.newLines, "")
			consumed++
			continue
		}
		switch line[0] {
		case ' ':
			chunk.oldLines = append(chunk.oldLines, line[1:])
			chunk.newLines = append(chunk.newLines, line[1:])
		case '+':
			chunk.newLines = append(chunk.newLines, line[1:])
		case '-':
			chunk.oldLines = append(chunk.oldLines, line[1:])
		default:
			if consumed == start {
				return updateChunk{}, 0, fmt.Errorf("unexpected line in update hunk: %q", line)
			}
			return chunk, consumed, nil
		}
		consumed++
	}
	return chunk, consumed, nil
}

// --- Applying ---

func applyUpdateChunks(path string, chunks []updateChunk) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	content := strings.ReplaceAll(string(data), "\r\n", "\n")
	lines := strings.Split(content, "\n")
	if len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}

	cursor := 0
	for _, chunk := range chunks {
		if chunk.context != "" {
			idx := indexOfLine(lines, strings.TrimSpace(chunk.context), cursor)
			if idx < 0 {
				return "", fmt.Errorf("failed to find context %q in %s", chunk.context, path)
			}
			cursor = idx + 1
		}

		if len(chunk.oldLines) == 0 {
			lines = append(lines[:cursor], append(append([]string{}, chunk.newLines...), lines[cursor:]...)...)
			cursor += len(chunk.newLines)
			continue
		}

		matchStart := seekLines(lines, chunk.oldLines, cursor)
		if matchStart < 0 {
			return "", fmt.Errorf("failed to find expected lines in %s:\n%s", path, strings.Join(chunk.oldLines, "\n"))
		}
		tail := append([]string{}, lines[matchStart+len(chunk.oldLines):]...)
		lines = append(lines[:matchStart], append(append([]string{}, chunk.newLines...), tail...)...)
		cursor = matchStart + len(chunk.newLines)
	}

	return strings.Join(lines, "\n") + "\n", nil
}

func indexOfLine(lines []string, needle string, from int) int {
	for i := from; i < len(lines); i++ {
		if strings.Contains(lines[i], needle) {
			return i
		}
	}
	return -1
}

func seekLines(lines, pattern []string, from int) int {
	if len(pattern) == 0 || len(pattern) > len(lines) {
		return -1
	}
	maxStart := len(lines) - len(pattern)
	for _, normalize := range []func(string) string{
		func(s string) string { return s },
		strings.TrimSpace,
	} {
		for i := from; i <= maxStart; i++ {
			if linesEqual(lines, pattern, i, normalize) {
				return i
			}
		}
	}
	return -1
}

func linesEqual(lines, pattern []string, start int, normalize func(string) string) bool {
	for i, p := range pattern {
		if normalize(lines[start+i]) != normalize(p) {
			return false
		}
	}
	return true
}
