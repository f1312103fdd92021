package tools

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/indubitably-ai/agentcore/internal/tracker"
)

func TestEditHandler_Spec(t *testing.T) {
	h := NewEditHandler()
	if h.Spec().Name != EditFileToolName {
		t.Errorf("expected name %q, got %q", EditFileToolName, h.Spec().Name)
	}
}

func TestEditHandler_ReplacesUniqueMatch(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.go")
	if err := os.WriteFile(path, []byte("func foo() int {\n\treturn 1\n}\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	h := NewEditHandler()
	payload := `{"file_path":"` + path + `","old_text":"return 1","new_text":"return 2"}`
	out, err := h.Handle(invocationForPath(EditFileToolName, payload))
	if err != nil {
		t.Fatalf("Handle returned error: %v", err)
	}
	if !strings.Contains(out.Content, "edited") {
		t.Errorf("expected an edited summary, got: %s", out.Content)
	}
	data, _ := os.ReadFile(path)
	if !strings.Contains(string(data), "return 2") {
		t.Errorf("expected replaced content, got: %s", data)
	}
}

func TestEditHandler_AmbiguousMatchFails(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")
	if err := os.WriteFile(path, []byte("x\nx\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	h := NewEditHandler()
	payload := `{"file_path":"` + path + `","old_text":"x","new_text":"y"}`
	_, err := h.Handle(invocationForPath(EditFileToolName, payload))
	if err == nil || !strings.Contains(err.Error(), "more than once") {
		t.Fatalf("expected an ambiguous-match error, got %v", err)
	}
}

func TestEditHandler_ElisionSpansLargeRegion(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.go")
	content := "func foo() {\n\tline1()\n\tline2()\n\tline3()\n}\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	h := NewEditHandler()
	payload := `{"file_path":"` + path + `","old_text":"func foo() {<<<elided>>>}","new_text":"func foo() {\n\treplaced()\n}"}`
	out, err := h.Handle(invocationForPath(EditFileToolName, payload))
	if err != nil {
		t.Fatalf("Handle returned error: %v", err)
	}
	if !strings.Contains(out.Content, "edited") {
		t.Errorf("expected an edited summary, got: %s", out.Content)
	}
	data, _ := os.ReadFile(path)
	if !strings.Contains(string(data), "replaced()") || strings.Contains(string(data), "line1()") {
		t.Errorf("expected elided span replaced, got: %s", data)
	}
}

func TestEditHandler_ConflictWhenFileChangedAfterRead(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")
	if err := os.WriteFile(path, []byte("original"), 0o644); err != nil {
		t.Fatal(err)
	}

	trk := tracker.New("turn-1")
	readHandler := NewReadHandler()
	if _, err := readHandler.Handle(Invocation{
		Ctx: context.Background(), ToolName: ReadFileToolName, Tracker: trk,
		Payload: Payload{Kind: KindFunction, RawArguments: `{"file_path":"` + path + `"}`},
	}); err != nil {
		t.Fatalf("read Handle returned error: %v", err)
	}

	// Simulate an external write landing between the read and the edit.
	if err := os.WriteFile(path, []byte("changed by someone else"), 0o644); err != nil {
		t.Fatal(err)
	}

	h := NewEditHandler()
	payload := `{"file_path":"` + path + `","old_text":"changed","new_text":"y"}`
	_, err := h.Handle(Invocation{
		Ctx: context.Background(), ToolName: EditFileToolName, Tracker: trk,
		Payload: Payload{Kind: KindFunction, RawArguments: payload},
	})
	if err == nil || !strings.Contains(err.Error(), "conflict") {
		t.Fatalf("expected a conflict error, got %v", err)
	}
	if len(trk.Conflicts()) == 0 {
		t.Fatalf("expected a recorded conflict descriptor")
	}
	data, _ := os.ReadFile(path)
	if string(data) != "changed by someone else" {
		t.Fatalf("expected the file to be left unchanged on conflict, got %q", data)
	}
}

func TestEditHandler_NoMatchFails(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")
	if err := os.WriteFile(path, []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}

	h := NewEditHandler()
	payload := `{"file_path":"` + path + `","old_text":"missing","new_text":"y"}`
	_, err := h.Handle(invocationForPath(EditFileToolName, payload))
	if err == nil {
		t.Fatal("expected an error when old_text is not found")
	}
}
