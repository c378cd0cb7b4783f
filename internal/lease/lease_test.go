package lease

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/luislobo/workmesh/internal/audit"
	"github.com/luislobo/workmesh/internal/task"
)

func writeTemp(t *testing.T) (dir, path string) {
	t.Helper()
	dir = t.TempDir()
	path = filepath.Join(dir, "task-001.md")
	content := "---\nid: task-001\ntitle: Example\nstatus: To Do\npriority: P2\nphase: Phase1\n---\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return dir, path
}

func TestIsActiveNoExpiry(t *testing.T) {
	if !IsActive(&task.Lease{Owner: "agent-1"}) {
		t.Fatalf("expected active lease with no expiry")
	}
}

func TestIsActiveExpired(t *testing.T) {
	past := time.Now().Add(-time.Hour).Format(TimeLayout)
	if IsActive(&task.Lease{Owner: "agent-1", ExpiresAt: past}) {
		t.Fatalf("expected expired lease to be inactive")
	}
}

func TestIsActiveCorruptTimestampStaysActive(t *testing.T) {
	if !IsActive(&task.Lease{Owner: "agent-1", ExpiresAt: "not-a-date"}) {
		t.Fatalf("expected corrupt timestamp to be treated as active")
	}
}

func TestIsActiveNilOrEmptyOwner(t *testing.T) {
	if IsActive(nil) {
		t.Fatalf("nil lease must be inactive")
	}
	if IsActive(&task.Lease{}) {
		t.Fatalf("empty owner must be inactive")
	}
}

func TestClaimAddsAssigneeAndAudits(t *testing.T) {
	dir, path := writeTemp(t)
	if err := Claim(dir, path, "agent-1", 60); err != nil {
		t.Fatalf("claim: %v", err)
	}
	tk, err := task.ParseFile(path)
	if err != nil {
		t.Fatalf("reparse: %v", err)
	}
	if tk.Lease == nil || tk.Lease.Owner != "agent-1" {
		t.Fatalf("lease = %+v", tk.Lease)
	}
	if len(tk.Assignee) != 1 || tk.Assignee[0] != "agent-1" {
		t.Fatalf("assignee = %v", tk.Assignee)
	}

	events := audit.ReadRecent(dir, 10)
	if len(events) != 1 || events[0].Action != "claim" {
		t.Fatalf("events = %+v", events)
	}
}

func TestReleaseClearsLeaseAndAudits(t *testing.T) {
	dir, path := writeTemp(t)
	if err := Claim(dir, path, "agent-1", 60); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if err := Release(dir, path, "agent-2"); err != nil {
		t.Fatalf("release: %v", err)
	}
	tk, err := task.ParseFile(path)
	if err != nil {
		t.Fatalf("reparse: %v", err)
	}
	if tk.Lease != nil {
		t.Fatalf("expected lease cleared, got %+v", tk.Lease)
	}

	events := audit.ReadRecent(dir, 10)
	if len(events) != 2 || events[1].Action != "release" || events[1].Actor != "agent-2" {
		t.Fatalf("events = %+v", events)
	}
}
