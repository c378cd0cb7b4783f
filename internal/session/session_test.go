package session

import (
	"testing"
	"time"
)

func TestAppendSavedAssignsIDAndTimestamps(t *testing.T) {
	home := t.TempDir()
	s := AgentSession{Cwd: "/repo", Objective: "ship the thing"}
	if err := AppendSaved(home, s); err != nil {
		t.Fatalf("append: %v", err)
	}
	sessions, err := LoadLatest(home)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(sessions) != 1 {
		t.Fatalf("sessions = %v", sessions)
	}
	if sessions[0].ID == "" || sessions[0].CreatedAt == "" || sessions[0].UpdatedAt == "" {
		t.Fatalf("session = %+v", sessions[0])
	}
}

func TestLoadLatestKeepsOnlyMostRecentPerID(t *testing.T) {
	home := t.TempDir()
	s := AgentSession{ID: "sess-1", Cwd: "/repo", Objective: "first"}
	if err := AppendSaved(home, s); err != nil {
		t.Fatalf("append 1: %v", err)
	}
	time.Sleep(time.Millisecond)
	s.Objective = "second"
	if err := AppendSaved(home, s); err != nil {
		t.Fatalf("append 2: %v", err)
	}

	sessions, err := LoadLatest(home)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(sessions) != 1 || sessions[0].Objective != "second" {
		t.Fatalf("sessions = %+v", sessions)
	}
}

func TestLoadLatestSortsByUpdatedAtDescThenIDAsc(t *testing.T) {
	home := t.TempDir()
	if err := AppendSaved(home, AgentSession{ID: "sess-b", Objective: "b"}); err != nil {
		t.Fatalf("append b: %v", err)
	}
	time.Sleep(time.Millisecond)
	if err := AppendSaved(home, AgentSession{ID: "sess-a", Objective: "a"}); err != nil {
		t.Fatalf("append a: %v", err)
	}

	sessions, err := LoadLatest(home)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(sessions) != 2 || sessions[0].ID != "sess-a" {
		t.Fatalf("sessions = %+v", sessions)
	}
}

func TestSetCurrentAndReadCurrent(t *testing.T) {
	home := t.TempDir()
	if err := SetCurrent(home, "sess-1"); err != nil {
		t.Fatalf("set current: %v", err)
	}
	if got := ReadCurrent(home); got != "sess-1" {
		t.Fatalf("current = %q", got)
	}
}

func TestReadCurrentEmptyWhenUnset(t *testing.T) {
	home := t.TempDir()
	if got := ReadCurrent(home); got != "" {
		t.Fatalf("expected empty, got %q", got)
	}
}
