package backlog

import (
	"os"
	"path/filepath"
	"testing"
)

func mkTasksDir(t *testing.T, dir string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Join(dir, "tasks"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
}

func TestResolveExplicitRootForms(t *testing.T) {
	cases := []struct {
		dirName string
		layout  Layout
	}{
		{"workmesh", LayoutWorkmesh},
		{".workmesh", LayoutHiddenWorkmesh},
		{"backlog", LayoutBacklog},
		{"project", LayoutProject},
	}
	for _, c := range cases {
		root := t.TempDir()
		backlogDir := filepath.Join(root, c.dirName)
		mkTasksDir(t, backlogDir)

		res, err := Resolve(backlogDir)
		if err != nil {
			t.Fatalf("%s: resolve: %v", c.dirName, err)
		}
		if res.Layout != c.layout {
			t.Fatalf("%s: layout = %v, want %v", c.dirName, res.Layout, c.layout)
		}
		if res.BacklogDir != backlogDir {
			t.Fatalf("%s: backlog dir = %s, want %s", c.dirName, res.BacklogDir, backlogDir)
		}
		if res.RepoRoot != root {
			t.Fatalf("%s: repo root = %s, want %s", c.dirName, res.RepoRoot, root)
		}
	}
}

func TestResolveExplicitBareTasksDirArgument(t *testing.T) {
	root := t.TempDir()
	tasksDir := filepath.Join(root, "tasks")
	mkTasksDir(t, root)

	res, err := Resolve(tasksDir)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if res.BacklogDir != root {
		t.Fatalf("backlog dir = %s, want %s", res.BacklogDir, root)
	}
	if res.Layout != LayoutRootTasks {
		t.Fatalf("layout = %v, want LayoutRootTasks", res.Layout)
	}
}

func TestResolveExplicitRootWithDirectTasksDir(t *testing.T) {
	root := t.TempDir()
	customDir := filepath.Join(root, "my-custom-root")
	mkTasksDir(t, customDir)

	res, err := Resolve(customDir)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if res.Layout != LayoutRootTasks {
		t.Fatalf("layout = %v, want LayoutRootTasks", res.Layout)
	}
	if res.BacklogDir != customDir {
		t.Fatalf("backlog dir = %s, want %s", res.BacklogDir, customDir)
	}
}

func TestResolveFromConfigRootDir(t *testing.T) {
	root := t.TempDir()
	customDir := filepath.Join(root, "custom")
	mkTasksDir(t, customDir)
	writeConfig(t, root, `root_dir = "custom"`)

	res, err := Resolve(root)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if res.BacklogDir != customDir {
		t.Fatalf("backlog dir = %s, want %s", res.BacklogDir, customDir)
	}
	if res.RepoRoot != root {
		t.Fatalf("repo root = %s, want %s", res.RepoRoot, root)
	}
}

func TestResolveExplicitRootTakesPrecedenceOverConfig(t *testing.T) {
	root := t.TempDir()
	backlogDir := filepath.Join(root, "backlog")
	mkTasksDir(t, backlogDir)
	otherDir := filepath.Join(root, "other")
	mkTasksDir(t, otherDir)
	writeConfig(t, root, `root_dir = "other"`)

	res, err := Resolve(backlogDir)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if res.BacklogDir != backlogDir {
		t.Fatalf("backlog dir = %s, want %s (explicit root should win over config)", res.BacklogDir, backlogDir)
	}
}

func TestResolveDefaultDirPrecedenceOrder(t *testing.T) {
	root := t.TempDir()
	// workmesh, backlog, and project all present: workmesh must win.
	mkTasksDir(t, filepath.Join(root, "backlog"))
	mkTasksDir(t, filepath.Join(root, "project"))
	mkTasksDir(t, filepath.Join(root, "workmesh"))

	res, err := Resolve(root)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if res.Layout != LayoutWorkmesh {
		t.Fatalf("layout = %v, want LayoutWorkmesh", res.Layout)
	}
	if res.BacklogDir != filepath.Join(root, "workmesh") {
		t.Fatalf("backlog dir = %s", res.BacklogDir)
	}
}

func TestResolveDefaultDirPrefersHiddenWorkmeshOverBacklog(t *testing.T) {
	root := t.TempDir()
	mkTasksDir(t, filepath.Join(root, "backlog"))
	mkTasksDir(t, filepath.Join(root, ".workmesh"))

	res, err := Resolve(root)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if res.Layout != LayoutHiddenWorkmesh {
		t.Fatalf("layout = %v, want LayoutHiddenWorkmesh", res.Layout)
	}
}

func TestResolveDefaultBareTasksDirAtRepoRoot(t *testing.T) {
	root := t.TempDir()
	mkTasksDir(t, root)

	res, err := Resolve(root)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if res.Layout != LayoutRootTasks {
		t.Fatalf("layout = %v, want LayoutRootTasks", res.Layout)
	}
	if res.BacklogDir != root {
		t.Fatalf("backlog dir = %s, want %s", res.BacklogDir, root)
	}
}

func TestResolveNotFound(t *testing.T) {
	root := t.TempDir()
	_, err := Resolve(root)
	if err == nil {
		t.Fatalf("expected ErrNotFound")
	}
	if _, ok := err.(*ErrNotFound); !ok {
		t.Fatalf("err = %T, want *ErrNotFound", err)
	}
}

func TestResolveDirConvenienceWrapper(t *testing.T) {
	root := t.TempDir()
	mkTasksDir(t, root)
	dir, err := ResolveDir(root)
	if err != nil {
		t.Fatalf("resolve dir: %v", err)
	}
	if dir != root {
		t.Fatalf("dir = %s, want %s", dir, root)
	}
}

func writeConfig(t *testing.T, repoRoot, body string) {
	t.Helper()
	path := filepath.Join(repoRoot, ".workmesh.toml")
	if err := os.WriteFile(path, []byte(body+"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}
