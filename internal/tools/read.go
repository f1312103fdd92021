package tools

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/indubitably-ai/agentcore/internal/format"
	"github.com/indubitably-ai/agentcore/internal/llm"
	"github.com/indubitably-ai/agentcore/internal/toolerr"
)

// ReadHandler is the File Read archetype (spec §4.B): validate the path,
// read a byte/line window, record a read edit so later writes can detect a
// stale pre-image. Grounded on the teacher's ReadFileTool
// (internal/tools/read.go), generalized to use format.Truncate instead of a
// hand-rolled byte-limit cut.
type ReadHandler struct{}

func NewReadHandler() *ReadHandler { return &ReadHandler{} }

func (h *ReadHandler) Kind() Kind { return KindRead }

func (h *ReadHandler) MatchesKind(p Payload) bool { return p.Kind == KindFunction }

type ReadFileArgs struct {
	FilePath  string `json:"file_path"`
	StartLine int    `json:"start_line,omitempty"`
	EndLine   int    `json:"end_line,omitempty"`
}

func (h *ReadHandler) Spec() llm.ToolSpec {
	return llm.ToolSpec{
		Name:        ReadFileToolName,
		Description: "Read a file's contents as line-numbered text. start_line/end_line (1-indexed) page through large files.",
		Schema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"file_path":  map[string]interface{}{"type": "string"},
				"start_line": map[string]interface{}{"type": "integer"},
				"end_line":   map[string]interface{}{"type": "integer"},
			},
			"required": []string{"file_path"},
		},
	}
}

func (h *ReadHandler) Handle(inv Invocation) (Output, error) {
	var a ReadFileArgs
	if err := json.Unmarshal([]byte(inv.Payload.RawArguments), &a); err != nil {
		return Output{}, toolerr.ValidationErr("invalid read_file arguments: %v", err)
	}
	if a.FilePath == "" {
		return Output{}, toolerr.ValidationErr("file_path is required")
	}

	if inv.Policy != nil {
		if approvals := inv.Policy.Approvals(); approvals != nil && inv.Policy.RequiresApprovalAlways() {
			approved, err := approvals.CheckPathApproval(inv.Ctx, inv.ToolName, a.FilePath, false)
			if err != nil {
				return Output{}, toolerr.PermissionErr("approval check failed: %v", err)
			}
			if !approved {
				return Output{}, toolerr.PermissionErr("read not approved: %s", a.FilePath)
			}
		}
	}

	data, err := os.ReadFile(a.FilePath)
	if err != nil {
		if os.IsNotExist(err) {
			return Output{}, toolerr.NotFoundErr("%s", a.FilePath)
		}
		return Output{}, toolerr.SystemErr("read error: %v", err)
	}
	if isBinaryContent(data) {
		return Output{}, toolerr.ValidationErr("%s appears to be a binary file", a.FilePath)
	}

	content := string(data)
	if inv.Tracker != nil {
		inv.Tracker.RecordRead(a.FilePath, inv.ToolName, hashContent(content))
	}

	lines := strings.Split(content, "\n")
	total := len(lines)

	start := 0
	if a.StartLine > 0 {
		start = a.StartLine - 1
	}
	if start >= total {
		return Output{}, toolerr.ValidationErr("start_line %d exceeds file length %d", a.StartLine, total)
	}
	end := total
	if a.EndLine > 0 && a.EndLine < total {
		end = a.EndLine
	}
	if start >= end {
		return TextOutput("no content in requested range"), nil
	}

	var sb strings.Builder
	for i, line := range lines[start:end] {
		fmt.Fprintf(&sb, "%d: %s\n", start+i+1, line)
	}
	out, truncated := format.Truncate(strings.TrimSuffix(sb.String(), "\n"))
	if truncated {
		out += fmt.Sprintf("\n\n[truncated; total lines: %d, use start_line/end_line to page]", total)
	}
	return Output{Kind: OutputFunction, Content: out, Success: true, Truncated: truncated}, nil
}

// hashContent fingerprints a pre-image so a later write can detect that the
// file changed underneath the agent between the read and the write (tracker
// conflict detection, mirroring tracker.hashOf's use for edit pre-images).
func hashContent(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

func isBinaryContent(data []byte) bool {
	if len(data) == 0 {
		return false
	}
	sample := data
	if len(sample) > 512 {
		sample = sample[:512]
	}
	contentType := http.DetectContentType(sample)
	if strings.HasPrefix(contentType, "text/") || strings.Contains(contentType, "json") || strings.Contains(contentType, "xml") {
		return false
	}
	for _, b := range sample {
		if b == 0 {
			return true
		}
	}
	return false
}
