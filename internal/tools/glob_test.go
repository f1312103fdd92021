package tools

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestGlobHandler_Spec(t *testing.T) {
	h := NewGlobHandler()
	if h.Spec().Name != GlobToolName {
		t.Errorf("expected name %q, got %q", GlobToolName, h.Spec().Name)
	}
}

func TestGlobHandler_MatchesKind(t *testing.T) {
	h := NewGlobHandler()
	if !h.MatchesKind(Payload{Kind: KindFunction}) {
		t.Error("expected function payload to match")
	}
	if h.MatchesKind(Payload{Kind: KindMcp}) {
		t.Error("expected mcp payload not to match")
	}
}

func TestGlobHandler_MatchesRecursivePattern(t *testing.T) {
	dir := t.TempDir()
	mustWrite(t, filepath.Join(dir, "a.go"), "package a")
	mustWrite(t, filepath.Join(dir, "sub", "b.go"), "package a")
	mustWrite(t, filepath.Join(dir, "sub", "c.txt"), "not go")

	h := NewGlobHandler()
	out, err := h.Handle(invocationForPath(GlobToolName, `{"pattern":"**/*.go","path":"`+dir+`"}`))
	if err != nil {
		t.Fatalf("Handle returned error: %v", err)
	}
	if !strings.Contains(out.Content, "a.go") || !strings.Contains(out.Content, "b.go") {
		t.Errorf("expected both .go files listed, got: %s", out.Content)
	}
	if strings.Contains(out.Content, "c.txt") {
		t.Errorf("expected non-matching file to be excluded, got: %s", out.Content)
	}
}

func TestGlobHandler_NoMatches(t *testing.T) {
	dir := t.TempDir()
	h := NewGlobHandler()
	out, err := h.Handle(invocationForPath(GlobToolName, `{"pattern":"**/*.nonexistent","path":"`+dir+`"}`))
	if err != nil {
		t.Fatalf("Handle returned error: %v", err)
	}
	if !strings.Contains(out.Content, "no files matched") {
		t.Errorf("expected a no-match message, got: %s", out.Content)
	}
}

func TestGlobHandler_MissingPattern(t *testing.T) {
	h := NewGlobHandler()
	_, err := h.Handle(invocationForPath(GlobToolName, `{}`))
	if err == nil {
		t.Fatal("expected an error for a missing pattern")
	}
}

func mustWrite(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}
