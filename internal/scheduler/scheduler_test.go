package scheduler

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/luislobo/workmesh/internal/task"
)

func mkTask(t *testing.T, dir, id, status, priority, phase string, deps []string) {
	t.Helper()
	tasksDir := filepath.Join(dir, "tasks")
	if err := os.MkdirAll(tasksDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	var depLine string
	if len(deps) > 0 {
		depLine = "dependencies: [" + join(deps) + "]\n"
	}
	content := "---\nid: " + id + "\ntitle: Example\nstatus: " + status +
		"\npriority: " + priority + "\nphase: " + phase + "\n" + depLine + "---\n"
	if err := os.WriteFile(filepath.Join(tasksDir, id+".md"), []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func join(items []string) string {
	out := ""
	for i, it := range items {
		if i > 0 {
			out += ", "
		}
		out += it
	}
	return out
}

func TestReadySetRespectsDependencies(t *testing.T) {
	dir := t.TempDir()
	mkTask(t, dir, "task-001", "Done", "P1", "Phase1", nil)
	mkTask(t, dir, "task-002", "To Do", "P1", "Phase1", []string{"task-001"})
	mkTask(t, dir, "task-003", "To Do", "P1", "Phase1", []string{"task-999"})

	tasks := task.LoadAll(dir, false)
	ready := ReadyTasks(tasks)
	if len(ready) != 1 || ready[0].ID != "task-002" {
		t.Fatalf("ready = %v", idsOf(ready))
	}
}

func TestNextTaskPicksLowestIDNum(t *testing.T) {
	dir := t.TempDir()
	mkTask(t, dir, "task-010", "To Do", "P1", "Phase1", nil)
	mkTask(t, dir, "task-002", "To Do", "P1", "Phase1", nil)
	tasks := task.LoadAll(dir, false)
	next := NextTask(tasks)
	if next == nil || next.ID != "task-002" {
		t.Fatalf("next = %v", next)
	}
}

func TestRecommendNextSortsByPriorityThenPhaseThenID(t *testing.T) {
	dir := t.TempDir()
	mkTask(t, dir, "task-001", "To Do", "P2", "Phase2", nil)
	mkTask(t, dir, "task-002", "To Do", "P1", "Phase1", nil)
	mkTask(t, dir, "task-003", "To Do", "Pbad", "Phase1", nil)
	tasks := task.LoadAll(dir, false)
	rec := RecommendNext(tasks)
	got := idsOf(rec)
	want := []string{"task-002", "task-001", "task-003"}
	if len(got) != len(want) {
		t.Fatalf("got %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestFilterTasksByLabelsAndSearch(t *testing.T) {
	dir := t.TempDir()
	tasksDir := filepath.Join(dir, "tasks")
	os.MkdirAll(tasksDir, 0o755)
	os.WriteFile(filepath.Join(tasksDir, "task-001.md"),
		[]byte("---\nid: task-001\ntitle: Fix login bug\nstatus: To Do\npriority: P2\nphase: Phase1\nlabels: [auth, bug]\n---\n"), 0o644)
	os.WriteFile(filepath.Join(tasksDir, "task-002.md"),
		[]byte("---\nid: task-002\ntitle: Update docs\nstatus: To Do\npriority: P2\nphase: Phase1\nlabels: [docs]\n---\n"), 0o644)

	tasks := task.LoadAll(dir, false)
	out := FilterTasks(tasks, Filter{Labels: map[string]bool{"bug": true}})
	if len(out) != 1 || out[0].ID != "task-001" {
		t.Fatalf("labels filter = %v", idsOf(out))
	}

	out = FilterTasks(tasks, Filter{Search: "docs"})
	if len(out) != 1 || out[0].ID != "task-002" {
		t.Fatalf("search filter = %v", idsOf(out))
	}
}

func TestFilterTasksDepsReadyAndBlockedIgnoreStatusAndLease(t *testing.T) {
	dir := t.TempDir()
	mkTask(t, dir, "task-001", "Done", "P1", "Phase1", nil)
	mkTask(t, dir, "task-002", "To Do", "P1", "Phase1", []string{"task-001"})
	mkTask(t, dir, "task-003", "To Do", "P1", "Phase1", []string{"task-999"})

	tasks := task.LoadAll(dir, false)

	depsReady := FilterTasks(tasks, Filter{DepsReady: true})
	got := idsOf(depsReady)
	want := []string{"task-001", "task-002"}
	if len(got) != len(want) {
		t.Fatalf("deps_ready = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("deps_ready = %v, want %v", got, want)
		}
	}

	blocked := FilterTasks(tasks, Filter{Blocked: true})
	if len(blocked) != 1 || blocked[0].ID != "task-003" {
		t.Fatalf("blocked = %v", idsOf(blocked))
	}
}

func idsOf(tasks []*task.Task) []string {
	var out []string
	for _, t := range tasks {
		out = append(out, t.ID)
	}
	return out
}
