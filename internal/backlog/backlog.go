// Package backlog resolves a caller-supplied root into a backlog directory
// and records which on-disk layout it found (spec §4.B), so migration and
// diagnostics can report legacy layouts distinctly from the canonical one.
package backlog

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/luislobo/workmesh/internal/config"
)

// Layout identifies which on-disk shape a backlog directory was found in.
type Layout int

const (
	LayoutWorkmesh Layout = iota
	LayoutHiddenWorkmesh
	LayoutBacklog
	LayoutProject
	LayoutRootTasks
	LayoutTasksDir
	LayoutCustom
)

func (l Layout) String() string {
	switch l {
	case LayoutWorkmesh:
		return "workmesh"
	case LayoutHiddenWorkmesh:
		return "hidden_workmesh"
	case LayoutBacklog:
		return "backlog"
	case LayoutProject:
		return "project"
	case LayoutRootTasks:
		return "root_tasks"
	case LayoutTasksDir:
		return "tasks_dir"
	default:
		return "custom"
	}
}

// IsLegacy reports whether the layout is one migration should offer to
// upgrade away from.
func (l Layout) IsLegacy() bool {
	switch l {
	case LayoutBacklog, LayoutProject, LayoutRootTasks, LayoutTasksDir:
		return true
	default:
		return false
	}
}

// ErrNotFound is returned when no backlog directory can be resolved.
type ErrNotFound struct {
	Root string
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("no tasks found under %s", e.Root)
}

// Resolution is the result of resolving a backlog directory.
type Resolution struct {
	BacklogDir string
	Layout     Layout
	RepoRoot   string
	Config     *config.Config
}

// Resolve implements the precedence in spec §4.B.
func Resolve(root string) (*Resolution, error) {
	repoRoot := deriveRepoRoot(root)
	cfg, _ := config.Load(repoRoot)

	if res := resolveExplicitRoot(root, repoRoot, cfg); res != nil {
		return res, nil
	}
	if res := resolveFromConfig(repoRoot, cfg); res != nil {
		return res, nil
	}
	if res := resolveDefaultDirs(repoRoot, cfg); res != nil {
		return res, nil
	}
	return nil, &ErrNotFound{Root: root}
}

// ResolveDir is a convenience wrapper returning just the backlog directory.
func ResolveDir(root string) (string, error) {
	res, err := Resolve(root)
	if err != nil {
		return "", err
	}
	return res.BacklogDir, nil
}

// Locate walks ancestors of start looking for a backlog directory using the
// same named-directory probes as Resolve, for callers that don't know the
// repo root up front.
func Locate(start string) (string, error) {
	abs, err := filepath.Abs(start)
	if err != nil {
		abs = start
	}
	dir := abs
	for {
		if isNamed(dir, "workmesh") && isDir(filepath.Join(dir, "tasks")) {
			return dir, nil
		}
		if isNamed(dir, ".workmesh") && isDir(filepath.Join(dir, "tasks")) {
			return dir, nil
		}
		if isNamed(dir, "backlog") && isDir(filepath.Join(dir, "tasks")) {
			return dir, nil
		}
		if isNamed(dir, "project") && isDir(filepath.Join(dir, "tasks")) {
			return dir, nil
		}
		if isNamed(dir, "tasks") {
			parent := filepath.Dir(dir)
			return parent, nil
		}
		for _, name := range []string{"workmesh", ".workmesh", "backlog", "project"} {
			if isDir(filepath.Join(dir, name, "tasks")) {
				return filepath.Join(dir, name), nil
			}
		}
		if isDir(filepath.Join(dir, "tasks")) {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", &ErrNotFound{Root: start}
}

func resolveExplicitRoot(root, repoRoot string, cfg *config.Config) *Resolution {
	if isNamed(root, "tasks") && isDir(root) {
		parent := filepath.Dir(root)
		return resolutionFor(parent, layoutFromDir(parent), repoRoot, cfg)
	}
	if isNamed(root, "workmesh") && isDir(filepath.Join(root, "tasks")) {
		return resolutionFor(root, LayoutWorkmesh, repoRoot, cfg)
	}
	if isNamed(root, ".workmesh") && isDir(filepath.Join(root, "tasks")) {
		return resolutionFor(root, LayoutHiddenWorkmesh, repoRoot, cfg)
	}
	if isNamed(root, "backlog") && isDir(filepath.Join(root, "tasks")) {
		return resolutionFor(root, LayoutBacklog, repoRoot, cfg)
	}
	if isNamed(root, "project") && isDir(filepath.Join(root, "tasks")) {
		return resolutionFor(root, LayoutProject, repoRoot, cfg)
	}
	if isDir(filepath.Join(root, "tasks")) {
		return resolutionFor(root, LayoutRootTasks, repoRoot, cfg)
	}
	return nil
}

func resolveFromConfig(repoRoot string, cfg *config.Config) *Resolution {
	if cfg == nil {
		return nil
	}
	rootDir := strings.TrimSpace(cfg.RootDir)
	if rootDir == "" {
		return nil
	}
	candidate := filepath.Join(repoRoot, rootDir)
	if isDir(filepath.Join(candidate, "tasks")) {
		return resolutionFor(candidate, layoutFromDir(candidate), repoRoot, cfg)
	}
	return nil
}

func resolveDefaultDirs(repoRoot string, cfg *config.Config) *Resolution {
	for _, probe := range []struct {
		name   string
		layout Layout
	}{
		{"workmesh", LayoutWorkmesh},
		{".workmesh", LayoutHiddenWorkmesh},
		{"backlog", LayoutBacklog},
		{"project", LayoutProject},
	} {
		dir := filepath.Join(repoRoot, probe.name)
		if isDir(filepath.Join(dir, "tasks")) {
			return resolutionFor(dir, probe.layout, repoRoot, cfg)
		}
	}
	if isDir(filepath.Join(repoRoot, "tasks")) {
		return resolutionFor(repoRoot, LayoutRootTasks, repoRoot, cfg)
	}
	return nil
}

func deriveRepoRoot(root string) string {
	for _, name := range []string{"tasks", "backlog", "project", "workmesh", ".workmesh"} {
		if isNamed(root, name) {
			return filepath.Dir(root)
		}
	}
	return root
}

func layoutFromDir(dir string) Layout {
	switch {
	case isNamed(dir, "workmesh"):
		return LayoutWorkmesh
	case isNamed(dir, ".workmesh"):
		return LayoutHiddenWorkmesh
	case isNamed(dir, "backlog"):
		return LayoutBacklog
	case isNamed(dir, "project"):
		return LayoutProject
	default:
		return LayoutRootTasks
	}
}

func resolutionFor(dir string, layout Layout, repoRoot string, cfg *config.Config) *Resolution {
	return &Resolution{BacklogDir: dir, Layout: layout, RepoRoot: repoRoot, Config: cfg}
}

func isNamed(path, name string) bool {
	return strings.EqualFold(filepath.Base(path), name)
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
