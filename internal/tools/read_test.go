package tools

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func invocationForPath(toolName, payload string) Invocation {
	return Invocation{
		Ctx:      context.Background(),
		ToolName: toolName,
		Payload:  Payload{Kind: KindFunction, RawArguments: payload},
	}
}

func TestReadHandler_Spec(t *testing.T) {
	h := NewReadHandler()
	spec := h.Spec()
	if spec.Name != ReadFileToolName {
		t.Errorf("expected name %q, got %q", ReadFileToolName, spec.Name)
	}
}

func TestReadHandler_WholeFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")
	if err := os.WriteFile(path, []byte("one\ntwo\nthree\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	h := NewReadHandler()
	out, err := h.Handle(invocationForPath(ReadFileToolName, `{"file_path":"`+path+`"}`))
	if err != nil {
		t.Fatalf("Handle returned error: %v", err)
	}
	if !strings.Contains(out.Content, "1: one") || !strings.Contains(out.Content, "3: three") {
		t.Errorf("expected line-numbered content, got: %s", out.Content)
	}
}

func TestReadHandler_Range(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")
	if err := os.WriteFile(path, []byte("one\ntwo\nthree\nfour\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	h := NewReadHandler()
	out, err := h.Handle(invocationForPath(ReadFileToolName, `{"file_path":"`+path+`","start_line":2,"end_line":3}`))
	if err != nil {
		t.Fatalf("Handle returned error: %v", err)
	}
	if strings.Contains(out.Content, "one") || strings.Contains(out.Content, "four") {
		t.Errorf("expected only lines 2-3, got: %s", out.Content)
	}
	if !strings.Contains(out.Content, "2: two") || !strings.Contains(out.Content, "3: three") {
		t.Errorf("expected lines 2-3 present, got: %s", out.Content)
	}
}

func TestReadHandler_MissingFile(t *testing.T) {
	h := NewReadHandler()
	_, err := h.Handle(invocationForPath(ReadFileToolName, `{"file_path":"/nonexistent/path.txt"}`))
	if err == nil {
		t.Fatal("expected an error for a missing file")
	}
}

func TestReadHandler_MissingPathArg(t *testing.T) {
	h := NewReadHandler()
	_, err := h.Handle(invocationForPath(ReadFileToolName, `{}`))
	if err == nil || !strings.Contains(err.Error(), "file_path is required") {
		t.Fatalf("expected file_path required error, got %v", err)
	}
}
