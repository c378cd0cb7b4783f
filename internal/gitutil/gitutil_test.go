package gitutil

import "testing"

func TestParseWorktreeList(t *testing.T) {
	raw := "worktree /repo/main\n" +
		"HEAD abcdef\n" +
		"branch refs/heads/main\n" +
		"\n" +
		"worktree /repo/feature\n" +
		"HEAD 123456\n" +
		"branch refs/heads/feature/x\n" +
		"locked\n"

	entries := parseWorktreeList(raw)
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Branch != "main" {
		t.Fatalf("branch = %q", entries[0].Branch)
	}
	if entries[1].Branch != "feature/x" || !entries[1].Locked {
		t.Fatalf("entry[1] = %+v", entries[1])
	}
}
