package views

import (
	"testing"

	"github.com/luislobo/workmesh/internal/task"
)

func mkTask(id, title, status string, deps, parents, blockedBy []string) *task.Task {
	return &task.Task{
		ID:       id,
		Kind:     "task",
		Title:    title,
		Status:   status,
		Priority: "P2",
		Phase:    "Phase1",
		Dependencies: deps,
		Relationships: task.Relationships{
			Parent:    parents,
			BlockedBy: blockedBy,
		},
	}
}

func TestBoardGroupsByStatusInCanonicalLaneOrder(t *testing.T) {
	tasks := []*task.Task{
		mkTask("task-001", "A", "To Do", nil, nil, nil),
		mkTask("task-002", "B", "In Progress", nil, nil, nil),
		mkTask("task-003", "C", "Done", nil, nil, nil),
		mkTask("task-004", "D", "Blocked", nil, nil, nil),
	}
	lanes := BoardLanes(tasks, BoardByStatus, nil)
	if len(lanes) != 4 {
		t.Fatalf("lanes = %+v", lanes)
	}
	want := []string{"To Do", "In Progress", "Done", "Blocked"}
	for i, w := range want {
		if lanes[i].Key != w {
			t.Fatalf("lane[%d] = %q, want %q", i, lanes[i].Key, w)
		}
	}
}

func TestBoardByPhaseSortsLanesAlphabetically(t *testing.T) {
	tasks := []*task.Task{
		{ID: "task-001", Phase: "Phase2"},
		{ID: "task-002", Phase: "Phase1"},
		{ID: "task-003", Phase: ""},
	}
	lanes := BoardLanes(tasks, BoardByPhase, nil)
	if len(lanes) != 3 {
		t.Fatalf("lanes = %+v", lanes)
	}
	if lanes[0].Key != "(none)" || lanes[1].Key != "Phase1" || lanes[2].Key != "Phase2" {
		t.Fatalf("lane order = %+v", lanes)
	}
}

func TestBoardLanesScopesToIDSet(t *testing.T) {
	tasks := []*task.Task{
		mkTask("task-001", "A", "To Do", nil, nil, nil),
		mkTask("task-002", "B", "To Do", nil, nil, nil),
	}
	lanes := BoardLanes(tasks, BoardByStatus, map[string]bool{"task-001": true})
	if len(lanes) != 1 || len(lanes[0].Tasks) != 1 || lanes[0].Tasks[0].ID != "task-001" {
		t.Fatalf("lanes = %+v", lanes)
	}
}

func TestBlockersReportScopesToEpicSubtree(t *testing.T) {
	tasks := []*task.Task{
		mkTask("task-100", "Epic", "In Progress", nil, nil, nil),
		mkTask("task-101", "Child", "To Do", []string{"task-102"}, []string{"task-100"}, []string{"task-102"}),
		mkTask("task-102", "Blocker", "To Do", nil, []string{"task-100"}, nil),
		mkTask("task-200", "Other", "To Do", []string{"task-102"}, nil, nil),
	}

	report := BlockersReportFor(tasks, nil, "task-100")
	if report.Scope.Type != "epic" || report.Scope.EpicID != "task-100" {
		t.Fatalf("scope = %+v", report.Scope)
	}
	if len(report.BlockedTasks) != 1 || report.BlockedTasks[0].ID != "task-101" {
		t.Fatalf("blocked tasks = %+v", report.BlockedTasks)
	}
	if len(report.TopBlockers) != 1 || report.TopBlockers[0].ID != "task-102" || report.TopBlockers[0].BlockedCount != 1 {
		t.Fatalf("top blockers = %+v", report.TopBlockers)
	}
}

func TestBlockersReportFlagsMissingReferences(t *testing.T) {
	tasks := []*task.Task{
		mkTask("task-001", "A", "To Do", []string{"task-999"}, nil, nil),
	}
	report := BlockersReportFor(tasks, nil, "")
	if len(report.BlockedTasks) != 1 || len(report.BlockedTasks[0].MissingRefs) != 1 {
		t.Fatalf("blocked tasks = %+v", report.BlockedTasks)
	}
	if report.BlockedTasks[0].MissingRefs[0] != "task-999" {
		t.Fatalf("missing refs = %v", report.BlockedTasks[0].MissingRefs)
	}
}

func TestBlockersReportWarnsOnUnknownEpic(t *testing.T) {
	tasks := []*task.Task{mkTask("task-001", "A", "To Do", nil, nil, nil)}
	report := BlockersReportFor(tasks, nil, "task-999")
	if len(report.Warnings) != 1 {
		t.Fatalf("warnings = %v", report.Warnings)
	}
}
