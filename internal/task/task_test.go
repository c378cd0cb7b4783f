package task

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeTemp(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "task-001 - example.md")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return path
}

func TestParseStrictYAMLFrontMatter(t *testing.T) {
	path := writeTemp(t, "---\n"+
		"id: task-001\n"+
		"title: Example\n"+
		"status: To Do\n"+
		"priority: P2\n"+
		"phase: Phase1\n"+
		"dependencies: [task-000]\n"+
		"labels: [ops]\n"+
		"---\n\n"+
		"Description:\n"+strings.Repeat("-", 50)+"\n- Example\n")

	tk, err := ParseFile(path)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if tk.ID != "task-001" {
		t.Fatalf("id = %q", tk.ID)
	}
	if len(tk.Dependencies) != 1 || tk.Dependencies[0] != "task-000" {
		t.Fatalf("dependencies = %v", tk.Dependencies)
	}
	if len(tk.Labels) != 1 || tk.Labels[0] != "ops" {
		t.Fatalf("labels = %v", tk.Labels)
	}
}

func TestParseRelationshipsNestedAndFlat(t *testing.T) {
	nested := writeTemp(t, "---\n"+
		"id: task-002\n"+
		"title: Example\n"+
		"status: To Do\n"+
		"priority: P2\n"+
		"phase: Phase1\n"+
		"relationships:\n"+
		"  blocked_by: [task-001]\n"+
		"  parent: [task-000]\n"+
		"  child: [task-003]\n"+
		"  discovered_from: [task-004]\n"+
		"---\n")
	tk, err := ParseFile(nested)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if tk.Relationships.BlockedBy[0] != "task-001" || tk.Relationships.Parent[0] != "task-000" {
		t.Fatalf("relationships = %+v", tk.Relationships)
	}
	if !tk.relationshipsNested {
		t.Fatalf("expected nested shape detected")
	}

	flat := writeTemp(t, "---\n"+
		"id: task-003\n"+
		"title: Example\n"+
		"status: To Do\n"+
		"priority: P2\n"+
		"phase: Phase1\n"+
		"blocked_by: [task-001]\n"+
		"parent: [task-000]\n"+
		"child: [task-004]\n"+
		"discovered_from: [task-005]\n"+
		"---\n")
	tk2, err := ParseFile(flat)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if tk2.relationshipsNested {
		t.Fatalf("expected flat shape detected")
	}
	if tk2.Relationships.Child[0] != "task-004" {
		t.Fatalf("child = %v", tk2.Relationships.Child)
	}
}

func TestParseLeaseNestedAndFlat(t *testing.T) {
	nested := writeTemp(t, "---\n"+
		"id: task-004\n"+
		"title: Example\n"+
		"status: To Do\n"+
		"priority: P2\n"+
		"phase: Phase1\n"+
		"lease:\n"+
		"  owner: agent-1\n"+
		"  acquired_at: 2026-02-03 10:00\n"+
		"  expires_at: 2026-02-03 11:00\n"+
		"---\n")
	tk, err := ParseFile(nested)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if tk.Lease == nil || tk.Lease.Owner != "agent-1" {
		t.Fatalf("lease = %+v", tk.Lease)
	}
	if !tk.leaseNested {
		t.Fatalf("expected nested lease shape")
	}
}

func TestSetFieldPreservesOtherKeys(t *testing.T) {
	path := writeTemp(t, "---\n"+
		"id: task-005\n"+
		"title: Example\n"+
		"status: To Do\n"+
		"priority: P2\n"+
		"phase: Phase1\n"+
		"custom_field: hello\n"+
		"---\n\nBody text.\n")

	if err := SetField(path, "status", "In Progress"); err != nil {
		t.Fatalf("set field: %v", err)
	}

	tk, err := ParseFile(path)
	if err != nil {
		t.Fatalf("reparse: %v", err)
	}
	if tk.Status != "In Progress" {
		t.Fatalf("status = %q", tk.Status)
	}
	if v, ok := tk.Extra["custom_field"]; !ok || v != "hello" {
		t.Fatalf("custom_field not preserved: %v", tk.Extra)
	}
	if tk.Body != "\nBody text.\n" {
		t.Fatalf("body changed: %q", tk.Body)
	}
}

func TestSetLeaseFlatThenClear(t *testing.T) {
	path := writeTemp(t, "---\nid: task-006\ntitle: Example\nstatus: To Do\npriority: P2\nphase: Phase1\n---\n")
	if err := SetLease(path, Lease{Owner: "agent-x", AcquiredAt: "2026-01-01 00:00", ExpiresAt: "2026-01-01 01:00"}); err != nil {
		t.Fatalf("set lease: %v", err)
	}
	tk, err := ParseFile(path)
	if err != nil {
		t.Fatalf("reparse: %v", err)
	}
	if tk.Lease == nil || tk.Lease.Owner != "agent-x" {
		t.Fatalf("lease = %+v", tk.Lease)
	}

	if err := ClearLease(path); err != nil {
		t.Fatalf("clear lease: %v", err)
	}
	tk2, err := ParseFile(path)
	if err != nil {
		t.Fatalf("reparse 2: %v", err)
	}
	if tk2.Lease != nil {
		t.Fatalf("expected lease cleared, got %+v", tk2.Lease)
	}
}

func TestReplaceSectionDashUnderlineForm(t *testing.T) {
	body := "Intro text.\n\nDescription:\n----------\n- old item\n"
	out := ReplaceSection(body, "Description", "- new item")
	if !strings.Contains(out, "- new item") || strings.Contains(out, "old item") {
		t.Fatalf("unexpected output: %q", out)
	}
	if !strings.HasPrefix(out, "Intro text.") {
		t.Fatalf("lost preceding content: %q", out)
	}
}

func TestAppendNoteUsesAnchors(t *testing.T) {
	path := writeTemp(t, "---\nid: task-007\ntitle: Example\nstatus: To Do\npriority: P2\nphase: Phase1\n---\n\nBody.\n")
	if err := AppendNote(path, "first note", "2026-01-01 00:00"); err != nil {
		t.Fatalf("append note: %v", err)
	}
	if err := AppendNote(path, "second note", "2026-01-01 00:05"); err != nil {
		t.Fatalf("append note 2: %v", err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	content := string(raw)
	if !strings.Contains(content, "first note") || !strings.Contains(content, "second note") {
		t.Fatalf("missing notes: %q", content)
	}
	if strings.Count(content, notesBeginAnchor) != 1 {
		t.Fatalf("expected single anchor pair, got: %q", content)
	}
}

func TestCreateFileCanonicalName(t *testing.T) {
	dir := t.TempDir()
	tk := &Task{
		ID:    "task-001",
		UID:   "01j2r0qz6qx9v0000000000000",
		Title: "Fix The Thing!",
		Kind:  "task",
	}
	path, err := CreateFile(dir, tk)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	want := "task-001 - fix-the-thing - 01j2r0qz.md"
	if filepath.Base(path) != want {
		t.Fatalf("filename = %q, want %q", filepath.Base(path), want)
	}
	reparsed, err := ParseFile(path)
	if err != nil {
		t.Fatalf("reparse created file: %v", err)
	}
	if reparsed.ID != "task-001" || reparsed.Title != "Fix The Thing!" {
		t.Fatalf("reparsed = %+v", reparsed)
	}
}

func TestParseIsTotalSkipsMalformedFiles(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "tasks"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	good := filepath.Join(dir, "tasks", "task-001 - a.md")
	bad := filepath.Join(dir, "tasks", "task-002 - b.md")
	os.WriteFile(good, []byte("---\nid: task-001\ntitle: Good\nstatus: To Do\npriority: P2\nphase: Phase1\n---\n"), 0o644)
	os.WriteFile(bad, []byte("no front matter here"), 0o644)

	tasks := LoadAll(dir, false)
	if len(tasks) != 1 {
		t.Fatalf("expected 1 task loaded, got %d", len(tasks))
	}
	if tasks[0].ID != "task-001" {
		t.Fatalf("unexpected task loaded: %+v", tasks[0])
	}
}
