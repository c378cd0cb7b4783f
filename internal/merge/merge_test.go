package merge

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeLines(t *testing.T, path string, lines ...string) {
	t.Helper()
	content := strings.Join(lines, "\n")
	if len(lines) > 0 {
		content += "\n"
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestMergeTruthEventsUnionsAndDedupsByEventID(t *testing.T) {
	dir := t.TempDir()
	basePath := filepath.Join(dir, "base.jsonl")
	leftPath := filepath.Join(dir, "left.jsonl")
	rightPath := filepath.Join(dir, "right.jsonl")
	outPath := filepath.Join(dir, "merged.jsonl")

	shared := `{"type":"proposed","event_id":"ev-1","truth_id":"truth-001","timestamp":"2026-02-01T10:00:00Z"}`
	writeLines(t, basePath, shared)
	writeLines(t, leftPath, shared, `{"type":"accepted","event_id":"ev-2","truth_id":"truth-001","timestamp":"2026-02-01T11:00:00Z"}`)
	writeLines(t, rightPath, shared, `{"type":"tagged","event_id":"ev-3","truth_id":"truth-001","timestamp":"2026-02-01T10:30:00Z"}`)

	stats, err := MergeTruthEvents(outPath, basePath, leftPath, rightPath, false)
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	if stats.UniqueEvents != 3 {
		t.Fatalf("unique events = %d, want 3", stats.UniqueEvents)
	}
	if len(stats.Conflicts) != 0 {
		t.Fatalf("conflicts = %v, want none", stats.Conflicts)
	}

	merged, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatalf("read merged: %v", err)
	}
	got := strings.Split(strings.TrimRight(string(merged), "\n"), "\n")
	if len(got) != 3 {
		t.Fatalf("merged lines = %d, want 3", len(got))
	}
	// sorted by timestamp: ev-1 (10:00), ev-3 (10:30), ev-2 (11:00)
	if !strings.Contains(got[0], `"ev-1"`) || !strings.Contains(got[1], `"ev-3"`) || !strings.Contains(got[2], `"ev-2"`) {
		t.Fatalf("merged order = %v", got)
	}
}

func TestMergeTruthEventsReportsConflictOnDivergentPayload(t *testing.T) {
	dir := t.TempDir()
	basePath := filepath.Join(dir, "base.jsonl")
	leftPath := filepath.Join(dir, "left.jsonl")
	rightPath := filepath.Join(dir, "right.jsonl")
	outPath := filepath.Join(dir, "merged.jsonl")

	writeLines(t, basePath)
	writeLines(t, leftPath, `{"type":"proposed","event_id":"ev-1","truth_id":"truth-001","timestamp":"2026-02-01T10:00:00Z","actor":"alice"}`)
	writeLines(t, rightPath, `{"type":"proposed","event_id":"ev-1","truth_id":"truth-001","timestamp":"2026-02-01T10:00:00Z","actor":"bob"}`)

	stats, err := MergeTruthEvents(outPath, basePath, leftPath, rightPath, false)
	if err == nil {
		t.Fatalf("expected conflict error")
	}
	if len(stats.Conflicts) != 1 {
		t.Fatalf("conflicts = %v, want 1", stats.Conflicts)
	}
	if stats.UniqueEvents != 1 {
		t.Fatalf("unique events = %d, want 1", stats.UniqueEvents)
	}
}

func TestMergeSessionEventsKeysOnSessionIDAndUpdatedAt(t *testing.T) {
	dir := t.TempDir()
	basePath := filepath.Join(dir, "base.jsonl")
	leftPath := filepath.Join(dir, "left.jsonl")
	rightPath := filepath.Join(dir, "right.jsonl")
	outPath := filepath.Join(dir, "merged.jsonl")

	firstSave := `{"type":"session_saved","session":{"id":"sess-1","created_at":"2026-02-01T09:00:00Z","updated_at":"2026-02-01T09:00:00Z","cwd":"/repo","objective":"initial"}}`
	resave := `{"type":"session_saved","session":{"id":"sess-1","created_at":"2026-02-01T09:00:00Z","updated_at":"2026-02-01T09:30:00Z","cwd":"/repo","objective":"updated"}}`

	writeLines(t, basePath, firstSave)
	writeLines(t, leftPath, firstSave, resave)
	writeLines(t, rightPath, firstSave)

	stats, err := MergeSessionEvents(outPath, basePath, leftPath, rightPath, false)
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	if stats.UniqueEvents != 2 {
		t.Fatalf("unique events = %d, want 2 (initial save + resave)", stats.UniqueEvents)
	}
}

func TestMergeEventStreamsTreatsMissingFileAsEmpty(t *testing.T) {
	dir := t.TempDir()
	leftPath := filepath.Join(dir, "left.jsonl")
	outPath := filepath.Join(dir, "merged.jsonl")
	writeLines(t, leftPath, `{"type":"proposed","event_id":"ev-1","truth_id":"truth-001","timestamp":"2026-02-01T10:00:00Z"}`)

	stats, err := MergeTruthEvents(outPath, filepath.Join(dir, "no-such-base.jsonl"), leftPath, filepath.Join(dir, "no-such-right.jsonl"), false)
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	if stats.UniqueEvents != 1 {
		t.Fatalf("unique events = %d, want 1", stats.UniqueEvents)
	}
}
