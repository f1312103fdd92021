package tracker

import (
	"os"
	"path/filepath"
	"testing"
)

func strptr(s string) *string { return &s }

func TestLockFileFailsFastWhenAlreadyLocked(t *testing.T) {
	tr := New("turn-1")
	if err := tr.LockFile("/tmp/a.txt"); err != nil {
		t.Fatalf("first lock should succeed: %v", err)
	}
	if err := tr.LockFile("/tmp/a.txt"); err != ErrAlreadyLocked {
		t.Fatalf("expected ErrAlreadyLocked, got %v", err)
	}
	tr.UnlockFile("/tmp/a.txt")
	if err := tr.LockFile("/tmp/a.txt"); err != nil {
		t.Fatalf("lock after unlock should succeed: %v", err)
	}
}

func TestRecordEditDetectsConflict(t *testing.T) {
	tr := New("turn-1")
	tr.RecordEdit("/tmp/a.txt", "write_file", ActionCreate, nil, strptr("v1"))
	tr.RecordEdit("/tmp/a.txt", "edit_file", ActionUpdate, strptr("stale"), strptr("v2"))

	conflicts := tr.Conflicts()
	if len(conflicts) != 1 {
		t.Fatalf("expected one conflict, got %d: %v", len(conflicts), conflicts)
	}
}

func TestRecordEditNoConflictWhenPreImageMatches(t *testing.T) {
	tr := New("turn-1")
	tr.RecordEdit("/tmp/a.txt", "write_file", ActionCreate, nil, strptr("v1"))
	tr.RecordEdit("/tmp/a.txt", "edit_file", ActionUpdate, strptr("v1"), strptr("v2"))

	if conflicts := tr.Conflicts(); len(conflicts) != 0 {
		t.Fatalf("expected no conflicts, got %v", conflicts)
	}
}

func TestGetEditsForOrdersByRecording(t *testing.T) {
	tr := New("turn-1")
	tr.RecordRead("/tmp/a.txt", "read_file", "hash0")
	tr.RecordEdit("/tmp/a.txt", "edit_file", ActionUpdate, strptr("v0"), strptr("v1"))

	edits := tr.GetEditsFor("/tmp/a.txt")
	if len(edits) != 2 {
		t.Fatalf("expected 2 edits, got %d", len(edits))
	}
	if edits[0].Action != ActionRead || edits[1].Action != ActionUpdate {
		t.Fatalf("edits out of order: %+v", edits)
	}
}

func TestUndoRoundTripCreateUpdateCreate(t *testing.T) {
	dir := t.TempDir()
	aPath := filepath.Join(dir, "a.txt")
	bPath := filepath.Join(dir, "b.txt")

	if err := os.WriteFile(aPath, []byte("v1"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(aPath, []byte("v2"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(bPath, []byte("new"), 0o644); err != nil {
		t.Fatal(err)
	}

	tr := New("turn-1")
	tr.RecordEdit(aPath, "write_file", ActionCreate, nil, strptr("v1"))
	tr.RecordEdit(aPath, "edit_file", ActionUpdate, strptr("v1"), strptr("v2"))
	tr.RecordEdit(bPath, "write_file", ActionCreate, nil, strptr("new"))

	if _, err := tr.Undo(); err != nil {
		t.Fatalf("undo failed: %v", err)
	}

	if _, err := os.Stat(aPath); !os.IsNotExist(err) {
		t.Fatalf("expected a.txt removed after undo, stat err=%v", err)
	}
	if _, err := os.Stat(bPath); !os.IsNotExist(err) {
		t.Fatalf("expected b.txt removed after undo, stat err=%v", err)
	}
}

func TestUndoOnlyOncePerTurn(t *testing.T) {
	tr := New("turn-1")
	tr.RecordEdit("/tmp/a.txt", "write_file", ActionCreate, nil, strptr("v1"))
	if _, err := tr.Undo(); err != nil {
		t.Fatalf("first undo should succeed: %v", err)
	}
	if _, err := tr.Undo(); err == nil {
		t.Fatalf("second undo should fail")
	}
}

func TestGenerateUnifiedDiffProducesHunks(t *testing.T) {
	tr := New("turn-1")
	tr.RecordEdit("/tmp/a.txt", "edit_file", ActionUpdate, strptr("line1\nline2\n"), strptr("line1\nCHANGED\n"))
	d := tr.GenerateUnifiedDiff()
	if d == "" {
		t.Fatalf("expected non-empty diff")
	}
}
