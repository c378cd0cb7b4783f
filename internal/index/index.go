// Package index maintains the derived, strictly advisory JSONL projection
// of a backlog at `.index/tasks.jsonl` (spec §3.4, §4.D). It follows the
// reference codebase's write-tmp-then-rename atomic projection pattern,
// retargeted from a SQLite-backed cache onto a plain sorted JSONL file.
package index

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/luislobo/workmesh/internal/task"
)

// DirName is the index subdirectory under a backlog directory.
const DirName = ".index"

// FileName is the projection file's name.
const FileName = "tasks.jsonl"

// Entry is one row of the index projection.
type Entry struct {
	ID           string   `json:"id"`
	UID          string   `json:"uid,omitempty"`
	Path         string   `json:"path"`
	Title        string   `json:"title"`
	Kind         string   `json:"kind"`
	Status       string   `json:"status"`
	Priority     string   `json:"priority"`
	Phase        string   `json:"phase"`
	Dependencies []string `json:"dependencies,omitempty"`
	Labels       []string `json:"labels,omitempty"`
	Assignee     []string `json:"assignee,omitempty"`
	MTime        int64    `json:"mtime"`
	Hash         string   `json:"hash"`
}

// Path returns the index projection path under backlogDir.
func Path(backlogDir string) string {
	return filepath.Join(backlogDir, DirName, FileName)
}

// Report is the result of Verify.
type Report struct {
	OK      bool     `json:"ok"`
	Missing []string `json:"missing"`
	Stale   []string `json:"stale"`
	Extra   []string `json:"extra"`
}

func entryFor(t *task.Task) (Entry, error) {
	info, err := os.Stat(t.FilePath)
	if err != nil {
		return Entry{}, err
	}
	raw, err := os.ReadFile(t.FilePath)
	if err != nil {
		return Entry{}, err
	}
	sum := sha256.Sum256(raw)
	return Entry{
		ID:           t.ID,
		UID:          t.UID,
		Path:         t.FilePath,
		Title:        t.Title,
		Kind:         t.Kind,
		Status:       t.Status,
		Priority:     t.Priority,
		Phase:        t.Phase,
		Dependencies: t.Dependencies,
		Labels:       t.Labels,
		Assignee:     t.Assignee,
		MTime:        info.ModTime().UnixNano(),
		Hash:         hex.EncodeToString(sum[:]),
	}, nil
}

func sortEntries(entries []Entry) {
	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.ID != b.ID {
			return strings.ToLower(a.ID) < strings.ToLower(b.ID)
		}
		if a.UID != b.UID {
			return a.UID < b.UID
		}
		return a.Path < b.Path
	})
}

// Rebuild enumerates every task under tasksDir and writes a fresh, sorted
// projection atomically.
func Rebuild(backlogDir string) error {
	tasks := task.LoadAll(backlogDir, false)
	entries := make([]Entry, 0, len(tasks))
	for _, t := range tasks {
		e, err := entryFor(t)
		if err != nil {
			continue
		}
		entries = append(entries, e)
	}
	sortEntries(entries)
	return writeEntries(backlogDir, entries)
}

// Refresh rebuilds if the projection is absent; otherwise it upserts every
// task currently on disk and drops entries whose file no longer exists.
func Refresh(backlogDir string) error {
	path := Path(backlogDir)
	existing, err := Load(backlogDir)
	if err != nil || !fileExists(path) {
		return Rebuild(backlogDir)
	}

	byPath := make(map[string]Entry, len(existing))
	for _, e := range existing {
		byPath[e.Path] = e
	}

	tasks := task.LoadAll(backlogDir, false)
	seen := make(map[string]bool, len(tasks))
	for _, t := range tasks {
		e, err := entryFor(t)
		if err != nil {
			continue
		}
		byPath[e.Path] = e
		seen[e.Path] = true
	}
	for p := range byPath {
		if !seen[p] {
			if _, err := os.Stat(p); os.IsNotExist(err) {
				delete(byPath, p)
			}
		}
	}

	entries := make([]Entry, 0, len(byPath))
	for _, e := range byPath {
		entries = append(entries, e)
	}
	sortEntries(entries)
	return writeEntries(backlogDir, entries)
}

// Load reads the current projection, or nil if absent.
func Load(backlogDir string) ([]Entry, error) {
	raw, err := os.ReadFile(Path(backlogDir))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var entries []Entry
	for _, line := range strings.Split(string(raw), "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		var e Entry
		if err := json.Unmarshal([]byte(line), &e); err != nil {
			continue
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// Verify checks the projection against the tasks currently on disk.
func Verify(backlogDir string) (Report, error) {
	entries, err := Load(backlogDir)
	if err != nil {
		return Report{}, err
	}
	byPath := make(map[string]Entry, len(entries))
	for _, e := range entries {
		byPath[e.Path] = e
	}

	tasks := task.LoadAll(backlogDir, false)
	seenPaths := make(map[string]bool, len(tasks))
	report := Report{OK: true}
	for _, t := range tasks {
		seenPaths[t.FilePath] = true
		e, ok := byPath[t.FilePath]
		if !ok {
			report.Missing = append(report.Missing, t.FilePath)
			report.OK = false
			continue
		}
		cur, err := entryFor(t)
		if err != nil {
			continue
		}
		if cur.Hash != e.Hash {
			report.Stale = append(report.Stale, t.FilePath)
			report.OK = false
		}
	}
	for p := range byPath {
		if !seenPaths[p] {
			report.Extra = append(report.Extra, p)
			report.OK = false
		}
	}
	sort.Strings(report.Missing)
	sort.Strings(report.Stale)
	sort.Strings(report.Extra)
	return report, nil
}

func writeEntries(backlogDir string, entries []Entry) error {
	path := Path(backlogDir)
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}
	var sb strings.Builder
	enc := json.NewEncoder(&sb)
	enc.SetEscapeHTML(false)
	for _, e := range entries {
		if err := enc.Encode(e); err != nil {
			return fmt.Errorf("encode index entry: %w", err)
		}
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-index-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)
	if _, err := tmp.WriteString(sb.String()); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
