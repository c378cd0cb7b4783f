// Package gitutil wraps `git worktree`/`git rev-parse` subprocess calls
// (spec §4.J). It follows the reference codebase's worktree manager
// (os/exec.Command with cmd.Dir set per call, CombinedOutput surfaced on
// error) but trims it down to the plumbing worktree management needs:
// listing, creating, and inspecting worktrees rather than the sparse
// checkout/sync machinery that codebase built around a single shared
// branch.
package gitutil

import (
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
)

// WorktreeEntry is one entry from `git worktree list --porcelain`.
type WorktreeEntry struct {
	Path     string
	Head     string
	Branch   string
	Detached bool
	Bare     bool
	Locked   bool
	Prunable string
}

// ListWorktrees runs `git worktree list --porcelain` under repoRoot.
func ListWorktrees(repoRoot string) ([]WorktreeEntry, error) {
	out, err := runGit(repoRoot, "worktree", "list", "--porcelain")
	if err != nil {
		return nil, err
	}
	return parseWorktreeList(out), nil
}

// CreateWorktree runs `git worktree add -b branch path [fromRef]` under
// repoRoot.
func CreateWorktree(repoRoot, path, branch, fromRef string) (*WorktreeEntry, error) {
	args := []string{"worktree", "add", "-b", branch, path}
	if strings.TrimSpace(fromRef) != "" {
		args = append(args, strings.TrimSpace(fromRef))
	}
	if _, err := runGit(repoRoot, args...); err != nil {
		return nil, err
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	entries, err := ListWorktrees(repoRoot)
	if err == nil {
		for _, e := range entries {
			if strings.EqualFold(e.Path, abs) {
				return &e, nil
			}
		}
	}
	return &WorktreeEntry{Path: abs, Branch: branch}, nil
}

// RemoveWorktree runs `git worktree remove --force path` under repoRoot.
func RemoveWorktree(repoRoot, path string) error {
	_, err := runGit(repoRoot, "worktree", "remove", "--force", path)
	return err
}

// PruneWorktrees runs `git worktree prune`, best-effort.
func PruneWorktrees(repoRoot string) {
	_, _ = runGit(repoRoot, "worktree", "prune")
}

// BranchExists reports whether branch exists locally or on origin.
func BranchExists(repoRoot, branch string) bool {
	if err := exec.Command("git", "-C", repoRoot, "show-ref", "--verify", "--quiet", "refs/heads/"+branch).Run(); err == nil {
		return true
	}
	if err := exec.Command("git", "-C", repoRoot, "show-ref", "--verify", "--quiet", "refs/remotes/origin/"+branch).Run(); err == nil {
		return true
	}
	return false
}

// CurrentBranch returns the checked-out branch name under path, or "" if
// detached or unresolved.
func CurrentBranch(path string) string {
	out, err := exec.Command("git", "-C", path, "rev-parse", "--abbrev-ref", "HEAD").Output()
	if err != nil {
		return ""
	}
	branch := strings.TrimSpace(string(out))
	if branch == "" || branch == "HEAD" {
		return ""
	}
	return branch
}

// RepoRoot returns the top-level directory of the repository containing
// path.
func RepoRoot(path string) (string, error) {
	out, err := exec.Command("git", "-C", path, "rev-parse", "--show-toplevel").Output()
	if err != nil {
		return "", fmt.Errorf("resolve repo root: %w", err)
	}
	return strings.TrimSpace(string(out)), nil
}

func runGit(dir string, args ...string) (string, error) {
	cmd := exec.Command("git", append([]string{"-C", dir}, args...)...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("git %s: %w\n%s", strings.Join(args, " "), err, strings.TrimSpace(string(out)))
	}
	return string(out), nil
}

func parseWorktreeList(raw string) []WorktreeEntry {
	var entries []WorktreeEntry
	var cur *WorktreeEntry
	flush := func() {
		if cur != nil {
			entries = append(entries, *cur)
			cur = nil
		}
	}
	for _, line := range strings.Split(raw, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			flush()
			continue
		}
		if v, ok := strings.CutPrefix(trimmed, "worktree "); ok {
			flush()
			cur = &WorktreeEntry{Path: strings.TrimSpace(v)}
			continue
		}
		if cur == nil {
			continue
		}
		switch {
		case strings.HasPrefix(trimmed, "HEAD "):
			cur.Head = strings.TrimSpace(strings.TrimPrefix(trimmed, "HEAD "))
		case strings.HasPrefix(trimmed, "branch "):
			ref := strings.TrimSpace(strings.TrimPrefix(trimmed, "branch "))
			cur.Branch = strings.TrimPrefix(ref, "refs/heads/")
		case trimmed == "detached":
			cur.Detached = true
		case trimmed == "bare":
			cur.Bare = true
		case strings.HasPrefix(trimmed, "locked"):
			cur.Locked = true
		case strings.HasPrefix(trimmed, "prunable "):
			cur.Prunable = strings.TrimSpace(strings.TrimPrefix(trimmed, "prunable "))
		}
	}
	flush()
	return entries
}
