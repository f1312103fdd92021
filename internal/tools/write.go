package tools

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/indubitably-ai/agentcore/internal/llm"
	"github.com/indubitably-ai/agentcore/internal/toolerr"
	"github.com/indubitably-ai/agentcore/internal/tracker"
)

// WriteHandler creates or overwrites a whole file. Grounded on the
// teacher's WriteFileTool (internal/tools/write.go), adapted to lock/record
// via the tracker instead of emitting a __DIFF__ streaming marker (that
// concern belongs to the REPL/TUI collaborator, out of scope per §1).
type WriteHandler struct{}

func NewWriteHandler() *WriteHandler { return &WriteHandler{} }

func (h *WriteHandler) Kind() Kind { return KindEdit }

func (h *WriteHandler) MatchesKind(p Payload) bool { return p.Kind == KindFunction }

type WriteFileArgs struct {
	FilePath string `json:"file_path"`
	Content  string `json:"content"`
}

func (h *WriteHandler) Spec() llm.ToolSpec {
	return llm.ToolSpec{
		Name:        WriteFileToolName,
		Description: "Create or overwrite a file with the given content, creating parent directories as needed.",
		Schema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"file_path": map[string]interface{}{"type": "string"},
				"content":   map[string]interface{}{"type": "string"},
			},
			"required": []string{"file_path", "content"},
		},
	}
}

func (h *WriteHandler) Handle(inv Invocation) (Output, error) {
	var a WriteFileArgs
	if err := json.Unmarshal([]byte(inv.Payload.RawArguments), &a); err != nil {
		return Output{}, toolerr.ValidationErr("invalid write_file arguments: %v", err)
	}
	if a.FilePath == "" {
		return Output{}, toolerr.ValidationErr("file_path is required")
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

	existing, readErr := os.ReadFile(a.FilePath)
	isNew := os.IsNotExist(readErr)

	if err := atomicWrite(a.FilePath, a.Content); err != nil {
		return Output{}, toolerr.SystemErr("write error: %v", err)
	}

	action := tracker.ActionCreate
	var oldPtr *string
	if !isNew {
		action = tracker.ActionUpdate
		s := string(existing)
		oldPtr = &s
	}
	if inv.Tracker != nil {
		n := a.Content
		inv.Tracker.RecordEdit(a.FilePath, inv.ToolName, action, oldPtr, &n)
	}

	if isNew {
		return TextOutput(fmt.Sprintf("created %s (%d bytes, %d lines)", a.FilePath, len(a.Content), countLines(a.Content))), nil
	}
	return TextOutput(fmt.Sprintf("updated %s (%d -> %d bytes)", a.FilePath, len(existing), len(a.Content))), nil
}

func countLines(s string) int {
	if s == "" {
		return 0
	}
	n := strings.Count(s, "\n")
	if !strings.HasSuffix(s, "\n") {
		n++
	}
	return n
}
