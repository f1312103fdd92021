package tools

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/indubitably-ai/agentcore/internal/tracker"
)

func TestApplyPatchHandler_Spec(t *testing.T) {
	h := NewApplyPatchHandler()
	if h.Spec().Name != ApplyPatchToolName {
		t.Errorf("expected name %q, got %q", ApplyPatchToolName, h.Spec().Name)
	}
}

func patchInvocation(dir, patch string) Invocation {
	return Invocation{
		Ctx:      invocationForPath(ApplyPatchToolName, "{}").Ctx,
		ToolName: ApplyPatchToolName,
		Cwd:      dir,
		Payload:  Payload{Kind: KindFunction, RawArguments: mustJSONString(patch)},
	}
}

func patchInvocationWithTracker(dir, patch string, trk *tracker.Tracker) Invocation {
	inv := patchInvocation(dir, patch)
	inv.Tracker = trk
	return inv
}

func mustJSONString(patch string) string {
	escaped := strings.ReplaceAll(patch, `\`, `\\`)
	escaped = strings.ReplaceAll(escaped, `"`, `\"`)
	escaped = strings.ReplaceAll(escaped, "\n", `\n`)
	return `{"input":"` + escaped + `"}`
}

func TestApplyPatchHandler_AddFile(t *testing.T) {
	dir := t.TempDir()
	patch := "*** Begin Patch\n" +
		"*** Add File: new.txt\n" +
		"+hello\n" +
		"+world\n" +
		"*** End Patch"

	h := NewApplyPatchHandler()
	out, err := h.Handle(patchInvocation(dir, patch))
	if err != nil {
		t.Fatalf("Handle returned error: %v", err)
	}
	if !strings.Contains(out.Content, "A new.txt") {
		t.Errorf("expected add summary, got: %s", out.Content)
	}
	data, readErr := os.ReadFile(filepath.Join(dir, "new.txt"))
	if readErr != nil {
		t.Fatalf("expected file to exist: %v", readErr)
	}
	if string(data) != "hello\nworld\n" {
		t.Errorf("unexpected content: %q", data)
	}
}

func TestApplyPatchHandler_UpdateFile(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "existing.txt")
	if err := os.WriteFile(target, []byte("one\ntwo\nthree\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	patch := "*** Begin Patch\n" +
		"*** Update File: existing.txt\n" +
		"@@\n" +
		" one\n" +
		"-two\n" +
		"+TWO\n" +
		" three\n" +
		"*** End Patch"

	h := NewApplyPatchHandler()
	out, err := h.Handle(patchInvocation(dir, patch))
	if err != nil {
		t.Fatalf("Handle returned error: %v", err)
	}
	if !strings.Contains(out.Content, "M existing.txt") {
		t.Errorf("expected modify summary, got: %s", out.Content)
	}
	data, _ := os.ReadFile(target)
	if !strings.Contains(string(data), "TWO") || strings.Contains(string(data), "\ntwo\n") {
		t.Errorf("unexpected content: %q", data)
	}
}

func TestApplyPatchHandler_DeleteFile(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "gone.txt")
	if err := os.WriteFile(target, []byte("bye"), 0o644); err != nil {
		t.Fatal(err)
	}

	patch := "*** Begin Patch\n*** Delete File: gone.txt\n*** End Patch"

	h := NewApplyPatchHandler()
	out, err := h.Handle(patchInvocation(dir, patch))
	if err != nil {
		t.Fatalf("Handle returned error: %v", err)
	}
	if !strings.Contains(out.Content, "D gone.txt") {
		t.Errorf("expected delete summary, got: %s", out.Content)
	}
	if _, statErr := os.Stat(target); !os.IsNotExist(statErr) {
		t.Error("expected file to be removed")
	}
}

func TestApplyPatchHandler_ConflictWhenFileChangedAfterRead(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "existing.txt")
	if err := os.WriteFile(target, []byte("one\ntwo\nthree\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	trk := tracker.New("turn-1")
	readHandler := NewReadHandler()
	if _, err := readHandler.Handle(Invocation{
		Ctx: invocationForPath(ReadFileToolName, "{}").Ctx, ToolName: ReadFileToolName, Tracker: trk,
		Payload: Payload{Kind: KindFunction, RawArguments: `{"file_path":"` + target + `"}`},
	}); err != nil {
		t.Fatalf("read Handle returned error: %v", err)
	}

	// Simulate an external write landing between the read and the patch.
	if err := os.WriteFile(target, []byte("one\nTWO ALREADY\nthree\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	patch := "*** Begin Patch\n" +
		"*** Update File: existing.txt\n" +
		"@@\n" +
		" one\n" +
		"-two\n" +
		"+TWO\n" +
		" three\n" +
		"*** End Patch"

	h := NewApplyPatchHandler()
	_, err := h.Handle(patchInvocationWithTracker(dir, patch, trk))
	if err == nil || !strings.Contains(err.Error(), "conflict") {
		t.Fatalf("expected a conflict error, got %v", err)
	}
	if len(trk.Conflicts()) == 0 {
		t.Fatalf("expected a recorded conflict descriptor")
	}
	data, _ := os.ReadFile(target)
	if string(data) != "one\nTWO ALREADY\nthree\n" {
		t.Fatalf("expected the file to be left unchanged on conflict, got %q", data)
	}
}

func TestApplyPatchHandler_RejectsMalformedEnvelope(t *testing.T) {
	dir := t.TempDir()
	h := NewApplyPatchHandler()
	_, err := h.Handle(patchInvocation(dir, "not a patch"))
	if err == nil {
		t.Fatal("expected an error for a malformed patch envelope")
	}
}

func TestApplyPatchHandler_RejectsAbsolutePath(t *testing.T) {
	dir := t.TempDir()
	patch := "*** Begin Patch\n*** Add File: /etc/passwd\n+x\n*** End Patch"
	h := NewApplyPatchHandler()
	_, err := h.Handle(patchInvocation(dir, patch))
	if err == nil || !strings.Contains(err.Error(), "absolute paths") {
		t.Fatalf("expected an absolute-path rejection, got %v", err)
	}
}
