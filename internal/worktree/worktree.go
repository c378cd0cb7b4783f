// Package worktree maintains the global worktree registry under
// $WORKMESH_HOME/worktrees/registry.json (spec §3.8, §4.J): the durable
// record of which git worktrees this machine knows about, reconciled
// against the live `git worktree list` output from internal/gitutil.
package worktree

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/luislobo/workmesh/internal/gitutil"
	"github.com/luislobo/workmesh/internal/ulid"
)

// RegistryFileName is the registry's file name under $WORKMESH_HOME/worktrees.
const RegistryFileName = "registry.json"

const registryVersion = 1

// Record is one tracked worktree.
type Record struct {
	ID                string `json:"id"`
	RepoRoot          string `json:"repo_root"`
	Path              string `json:"path"`
	Branch            string `json:"branch,omitempty"`
	CreatedAt         string `json:"created_at"`
	UpdatedAt         string `json:"updated_at"`
	AttachedSessionID string `json:"attached_session_id,omitempty"`
}

// Registry is the on-disk registry document.
type Registry struct {
	Version   int      `json:"version"`
	Worktrees []Record `json:"worktrees"`
}

// View merges a registry record with live `git worktree list` state for
// one path, flagging mismatches between the two sources.
type View struct {
	ID       string   `json:"id,omitempty"`
	Path     string   `json:"path"`
	RepoRoot string   `json:"repo_root,omitempty"`
	Branch   string   `json:"branch,omitempty"`
	Head     string   `json:"head,omitempty"`
	Exists   bool     `json:"exists"`
	InGit    bool     `json:"in_git"`
	Source   []string `json:"source"`
	Issues   []string `json:"issues,omitempty"`
}

// DoctorReport summarizes every view plus their aggregated issues.
type DoctorReport struct {
	RepoRoot     string `json:"repo_root"`
	RegistryPath string `json:"registry_path"`
	Entries      []View `json:"entries"`
	Issues       []string `json:"issues,omitempty"`
}

// RegistryPath returns registry.json's path under $WORKMESH_HOME.
func RegistryPath(home string) string {
	return filepath.Join(home, "worktrees", RegistryFileName)
}

// Load reads the registry, returning an empty Registry if absent.
func Load(home string) (Registry, error) {
	raw, err := os.ReadFile(RegistryPath(home))
	if err != nil {
		if os.IsNotExist(err) {
			return Registry{Version: registryVersion}, nil
		}
		return Registry{}, fmt.Errorf("read worktree registry: %w", err)
	}
	var reg Registry
	if err := json.Unmarshal(raw, &reg); err != nil {
		return Registry{}, fmt.Errorf("parse worktree registry: %w", err)
	}
	return reg, nil
}

// Save writes the registry atomically, sorted by path (case-insensitive).
func Save(home string, reg Registry) (string, error) {
	reg.Version = registryVersion
	sort.Slice(reg.Worktrees, func(i, j int) bool {
		return strings.ToLower(reg.Worktrees[i].Path) < strings.ToLower(reg.Worktrees[j].Path)
	})

	raw, err := json.MarshalIndent(reg, "", "  ")
	if err != nil {
		return "", err
	}
	path := RegistryPath(home)
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return "", fmt.Errorf("create worktrees dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-worktree-registry-*")
	if err != nil {
		return "", err
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return "", err
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return "", err
	}
	return path, nil
}

// FindByPath looks up a registered record by case-insensitive path match.
func FindByPath(home, path string) (*Record, error) {
	reg, err := Load(home)
	if err != nil {
		return nil, err
	}
	key := normalizePath(path)
	for _, r := range reg.Worktrees {
		if strings.EqualFold(r.Path, key) {
			rc := r
			return &rc, nil
		}
	}
	return nil, nil
}

// Upsert inserts or updates a record, matched by id or case-insensitive
// path, preserving the original created_at on update.
func Upsert(home string, record Record) (Record, error) {
	reg, err := Load(home)
	if err != nil {
		return Record{}, err
	}
	now := time.Now().Local().Format(time.RFC3339)
	record.Path = normalizePath(record.Path)
	record.RepoRoot = normalizePath(record.RepoRoot)
	if strings.TrimSpace(record.ID) == "" {
		record.ID = ulid.New()
	}

	for i, existing := range reg.Worktrees {
		if existing.ID == record.ID || strings.EqualFold(existing.Path, record.Path) {
			updated := Record{
				ID:                existing.ID,
				RepoRoot:          record.RepoRoot,
				Path:              record.Path,
				Branch:            record.Branch,
				CreatedAt:         existing.CreatedAt,
				UpdatedAt:         now,
				AttachedSessionID: record.AttachedSessionID,
			}
			reg.Worktrees[i] = updated
			if _, err := Save(home, reg); err != nil {
				return Record{}, err
			}
			return updated, nil
		}
	}

	if strings.TrimSpace(record.CreatedAt) == "" {
		record.CreatedAt = now
	}
	record.UpdatedAt = now
	reg.Worktrees = append(reg.Worktrees, record)
	if _, err := Save(home, reg); err != nil {
		return Record{}, err
	}
	return record, nil
}

// Remove deletes a record by id, reporting whether it was present.
func Remove(home, id string) (bool, error) {
	reg, err := Load(home)
	if err != nil {
		return false, err
	}
	before := len(reg.Worktrees)
	out := reg.Worktrees[:0]
	for _, r := range reg.Worktrees {
		if r.ID != id {
			out = append(out, r)
		}
	}
	reg.Worktrees = out
	if len(reg.Worktrees) == before {
		return false, nil
	}
	if _, err := Save(home, reg); err != nil {
		return false, err
	}
	return true, nil
}

// ListViews reconciles the registry against live `git worktree list`
// output for repoRoot, sorted by path (case-insensitive).
func ListViews(repoRoot, home string) ([]View, error) {
	repoRootNorm := normalizePath(repoRoot)
	reg, err := Load(home)
	if err != nil {
		return nil, err
	}
	gitEntries, _ := gitutil.ListWorktrees(repoRoot)

	byPath := make(map[string]View, len(gitEntries))
	var order []string
	for _, e := range gitEntries {
		key := normalizePath(e.Path)
		byPath[key] = View{
			Path:     key,
			RepoRoot: repoRootNorm,
			Branch:   e.Branch,
			Head:     e.Head,
			Exists:   true,
			InGit:    true,
			Source:   []string{"git"},
		}
		order = append(order, key)
	}

	for _, r := range reg.Worktrees {
		if !strings.EqualFold(r.RepoRoot, repoRootNorm) {
			continue
		}
		key := r.Path
		existing, had := byPath[key]
		source := []string{"registry"}
		inGit := false
		head := ""
		branch := r.Branch
		if had {
			inGit = existing.InGit
			head = existing.Head
			if branch == "" {
				branch = existing.Branch
			}
			source = dedupSorted(append(source, existing.Source...))
		} else {
			order = append(order, key)
		}
		byPath[key] = View{
			ID:       r.ID,
			Path:     key,
			RepoRoot: r.RepoRoot,
			Branch:   branch,
			Head:     head,
			Exists:   pathExists(r.Path),
			InGit:    inGit,
			Source:   source,
		}
	}

	entries := make([]View, 0, len(byPath))
	for _, key := range order {
		entries = append(entries, byPath[key])
	}
	for i := range entries {
		var issues []string
		if !entries[i].Exists {
			issues = append(issues, "path_missing")
		}
		if containsString(entries[i].Source, "registry") && !entries[i].InGit {
			issues = append(issues, "not_in_git_worktree_list")
		}
		entries[i].Issues = issues
	}
	sort.Slice(entries, func(i, j int) bool {
		return strings.ToLower(entries[i].Path) < strings.ToLower(entries[j].Path)
	})
	return entries, nil
}

// Doctor runs ListViews and aggregates every entry's issues into a report.
func Doctor(repoRoot, home string) (DoctorReport, error) {
	entries, err := ListViews(repoRoot, home)
	if err != nil {
		return DoctorReport{}, err
	}
	var issues []string
	for _, e := range entries {
		for _, issue := range e.Issues {
			issues = append(issues, fmt.Sprintf("%s: %s", e.Path, issue))
		}
	}
	return DoctorReport{
		RepoRoot:     normalizePath(repoRoot),
		RegistryPath: RegistryPath(home),
		Entries:      entries,
		Issues:       issues,
	}, nil
}

func normalizePath(path string) string {
	if strings.TrimSpace(path) == "" {
		return path
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved
	}
	return abs
}

func pathExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func containsString(list []string, target string) bool {
	for _, v := range list {
		if v == target {
			return true
		}
	}
	return false
}

func dedupSorted(values []string) []string {
	seen := make(map[string]bool, len(values))
	var out []string
	for _, v := range values {
		if seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
