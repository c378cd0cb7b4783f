package index

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTask(t *testing.T, backlogDir, id string) {
	t.Helper()
	dir := filepath.Join(backlogDir, "tasks")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	content := "---\nid: " + id + "\ntitle: Example\nstatus: To Do\npriority: P2\nphase: Phase1\n---\nBody.\n"
	if err := os.WriteFile(filepath.Join(dir, id+".md"), []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestRebuildAndVerify(t *testing.T) {
	dir := t.TempDir()
	writeTask(t, dir, "task-001")
	writeTask(t, dir, "task-002")

	if err := Rebuild(dir); err != nil {
		t.Fatalf("rebuild: %v", err)
	}
	entries, err := Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}

	report, err := Verify(dir)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !report.OK {
		t.Fatalf("expected OK report, got %+v", report)
	}
}

func TestRefreshDropsRemovedAndAddsNew(t *testing.T) {
	dir := t.TempDir()
	writeTask(t, dir, "task-001")
	if err := Rebuild(dir); err != nil {
		t.Fatalf("rebuild: %v", err)
	}

	if err := os.Remove(filepath.Join(dir, "tasks", "task-001.md")); err != nil {
		t.Fatalf("remove: %v", err)
	}
	writeTask(t, dir, "task-002")

	if err := Refresh(dir); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	entries, err := Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(entries) != 1 || entries[0].ID != "task-002" {
		t.Fatalf("entries = %+v", entries)
	}
}

func TestVerifyReportsStaleOnExternalEdit(t *testing.T) {
	dir := t.TempDir()
	writeTask(t, dir, "task-001")
	if err := Rebuild(dir); err != nil {
		t.Fatalf("rebuild: %v", err)
	}
	path := filepath.Join(dir, "tasks", "task-001.md")
	raw, _ := os.ReadFile(path)
	if err := os.WriteFile(path, append(raw, []byte("\nExtra line.\n")...), 0o644); err != nil {
		t.Fatalf("edit: %v", err)
	}

	report, err := Verify(dir)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if report.OK || len(report.Stale) != 1 {
		t.Fatalf("expected stale report, got %+v", report)
	}
}
