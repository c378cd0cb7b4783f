package worktree

import (
	"os"
	"path/filepath"
	"testing"
)

func TestUpsertThenFindByPath(t *testing.T) {
	home := t.TempDir()
	repo := filepath.Join(t.TempDir(), "repo")
	wt := filepath.Join(t.TempDir(), "repo-wt")
	os.MkdirAll(repo, 0o755)
	os.MkdirAll(wt, 0o755)

	created, err := Upsert(home, Record{RepoRoot: repo, Path: wt, Branch: "feature/test"})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if created.ID == "" || created.CreatedAt == "" {
		t.Fatalf("created = %+v", created)
	}

	reg, err := Load(home)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(reg.Worktrees) != 1 || reg.Worktrees[0].Branch != "feature/test" {
		t.Fatalf("registry = %+v", reg)
	}

	found, err := FindByPath(home, wt)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if found == nil || found.ID != created.ID {
		t.Fatalf("found = %+v", found)
	}
}

func TestUpsertUpdatesExistingByPathPreservingCreatedAt(t *testing.T) {
	home := t.TempDir()
	repo := t.TempDir()
	wt := t.TempDir()

	first, err := Upsert(home, Record{RepoRoot: repo, Path: wt, Branch: "main"})
	if err != nil {
		t.Fatalf("upsert 1: %v", err)
	}
	second, err := Upsert(home, Record{RepoRoot: repo, Path: wt, Branch: "develop"})
	if err != nil {
		t.Fatalf("upsert 2: %v", err)
	}
	if second.ID != first.ID || second.CreatedAt != first.CreatedAt || second.Branch != "develop" {
		t.Fatalf("second = %+v, first = %+v", second, first)
	}

	reg, _ := Load(home)
	if len(reg.Worktrees) != 1 {
		t.Fatalf("expected single record after update, got %+v", reg.Worktrees)
	}
}

func TestRemoveByID(t *testing.T) {
	home := t.TempDir()
	record, err := Upsert(home, Record{RepoRoot: t.TempDir(), Path: t.TempDir()})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	removed, err := Remove(home, record.ID)
	if err != nil || !removed {
		t.Fatalf("remove = %v, err = %v", removed, err)
	}
	reg, _ := Load(home)
	if len(reg.Worktrees) != 0 {
		t.Fatalf("expected empty registry, got %+v", reg.Worktrees)
	}
	removedAgain, err := Remove(home, record.ID)
	if err != nil || removedAgain {
		t.Fatalf("expected second remove to report false")
	}
}

func TestListViewsFlagsMissingPath(t *testing.T) {
	home := t.TempDir()
	repo := t.TempDir()
	missing := filepath.Join(repo, "does-not-exist")

	if _, err := Upsert(home, Record{RepoRoot: repo, Path: missing}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	views, err := ListViews(repo, home)
	if err != nil {
		t.Fatalf("list views: %v", err)
	}
	if len(views) != 1 {
		t.Fatalf("views = %+v", views)
	}
	if views[0].Exists {
		t.Fatalf("expected missing path to be flagged")
	}
	if !containsString(views[0].Issues, "path_missing") {
		t.Fatalf("issues = %v", views[0].Issues)
	}
	if !containsString(views[0].Issues, "not_in_git_worktree_list") {
		t.Fatalf("issues = %v", views[0].Issues)
	}
}
