// Package scope manages a backlog's `context.json` (spec §3.2, §4.G): the
// current project/objective/scope state, its normalization rules, and the
// working-set updater driven by task mutations. Named scope rather than
// context to avoid colliding with the standard library's context package.
package scope

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/luislobo/workmesh/internal/task"
)

// FileName is the context file's name under a backlog directory.
const FileName = "context.json"

// Mode is the scope's focus mode.
type Mode string

const (
	ModeNone  Mode = "none"
	ModeEpic  Mode = "epic"
	ModeTasks Mode = "tasks"
)

// ScopeState is the `scope` object within context.json.
type ScopeState struct {
	Mode    Mode     `json:"mode"`
	EpicID  string   `json:"epic_id,omitempty"`
	TaskIDs []string `json:"task_ids,omitempty"`
}

// State is the full contents of context.json.
type State struct {
	Version    int        `json:"version"`
	ProjectID  string     `json:"project_id,omitempty"`
	Objective  string     `json:"objective,omitempty"`
	Scope      ScopeState `json:"scope"`
	UpdatedAt  string     `json:"updated_at,omitempty"`
	WorkingSet []string   `json:"working_set,omitempty"`
}

const currentVersion = 1

// Path returns context.json's path under backlogDir.
func Path(backlogDir string) string {
	return filepath.Join(backlogDir, FileName)
}

// Load reads context.json, returning (nil, nil) if absent.
func Load(backlogDir string) (*State, error) {
	raw, err := os.ReadFile(Path(backlogDir))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var s State
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("parse context.json: %w", err)
	}
	return &s, nil
}

// Save normalizes s.Scope, stamps version/updated_at, and writes
// context.json atomically.
func Save(backlogDir string, s *State) error {
	normalize(&s.Scope)
	s.Version = currentVersion
	s.UpdatedAt = time.Now().UTC().Format(time.RFC3339)

	raw, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	path := Path(backlogDir)
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-context-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}

// Clear removes context.json if present, reporting whether it existed.
func Clear(backlogDir string) (bool, error) {
	path := Path(backlogDir)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return false, nil
	}
	if err := os.Remove(path); err != nil {
		return false, err
	}
	return true, nil
}

func normalize(s *ScopeState) {
	switch s.Mode {
	case ModeEpic:
		s.EpicID = strings.TrimSpace(s.EpicID)
		s.TaskIDs = nil
		if s.EpicID == "" {
			s.Mode = ModeNone
		}
	case ModeTasks:
		s.EpicID = ""
		s.TaskIDs = dedupFoldPreserveFirst(s.TaskIDs)
		if len(s.TaskIDs) == 0 {
			s.Mode = ModeNone
		}
	default:
		s.Mode = ModeNone
		s.EpicID = ""
		s.TaskIDs = nil
	}
}

func dedupFoldPreserveFirst(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	var out []string
	for _, raw := range ids {
		trimmed := strings.TrimSpace(raw)
		if trimmed == "" {
			continue
		}
		key := strings.ToLower(trimmed)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, trimmed)
	}
	return out
}

// UpdateForTaskMutation applies the working-set rules on a successful task
// mutation: entering "In Progress" adds taskID, entering "Done"/"To Do"
// removes it, a non-empty leaseOwner adds it regardless. Returns whether
// context.json changed. No-op if context.json does not exist.
func UpdateForTaskMutation(backlogDir, taskID, newStatus, leaseOwner string) (bool, error) {
	s, err := Load(backlogDir)
	if err != nil || s == nil {
		return false, err
	}

	idNorm := strings.ToLower(strings.TrimSpace(taskID))
	statusLC := strings.ToLower(strings.TrimSpace(newStatus))
	leaseActive := strings.TrimSpace(leaseOwner) != ""
	changed := false

	hasID := containsFold(s.WorkingSet, idNorm)

	switch statusLC {
	case "in progress":
		if !hasID {
			s.WorkingSet = append(s.WorkingSet, strings.TrimSpace(taskID))
			hasID = true
			changed = true
		}
	case "done", "to do":
		before := len(s.WorkingSet)
		s.WorkingSet = removeFold(s.WorkingSet, idNorm)
		if len(s.WorkingSet) != before {
			hasID = false
			changed = true
		}
	}

	if leaseActive && !hasID {
		s.WorkingSet = append(s.WorkingSet, strings.TrimSpace(taskID))
		changed = true
	}

	if !changed {
		return false, nil
	}
	s.WorkingSet = dedupFoldPreserveFirst(s.WorkingSet)
	return true, Save(backlogDir, s)
}

// MaybeAutoCleanFocus clears the epic scope and working set, preserving
// project_id, when scope is an epic and that epic plus every inferred
// child (explicit child links plus any task whose parent references it)
// are Done.
func MaybeAutoCleanFocus(backlogDir string, tasks []*task.Task) (bool, error) {
	s, err := Load(backlogDir)
	if err != nil || s == nil || s.Scope.Mode != ModeEpic || s.Scope.EpicID == "" {
		return false, err
	}

	var epic *task.Task
	for _, t := range tasks {
		if strings.EqualFold(t.ID, s.Scope.EpicID) {
			epic = t
			break
		}
	}
	if epic == nil || !epic.IsDone() {
		return false, nil
	}
	epicLC := strings.ToLower(epic.ID)

	children := make(map[string]bool)
	for _, c := range epic.Relationships.Child {
		children[strings.ToLower(c)] = true
	}
	for _, t := range tasks {
		for _, p := range t.Relationships.Parent {
			if strings.ToLower(p) == epicLC {
				children[strings.ToLower(t.ID)] = true
			}
		}
	}
	delete(children, epicLC)

	for cid := range children {
		var child *task.Task
		for _, t := range tasks {
			if strings.ToLower(t.ID) == cid {
				child = t
				break
			}
		}
		if child == nil || !child.IsDone() {
			return false, nil
		}
	}

	s.Scope.Mode = ModeNone
	s.Scope.EpicID = ""
	s.Scope.TaskIDs = nil
	s.WorkingSet = nil
	return true, Save(backlogDir, s)
}

func containsFold(list []string, lowerTarget string) bool {
	for _, v := range list {
		if strings.ToLower(v) == lowerTarget {
			return true
		}
	}
	return false
}

func removeFold(list []string, lowerTarget string) []string {
	var out []string
	for _, v := range list {
		if strings.ToLower(v) != lowerTarget {
			out = append(out, v)
		}
	}
	return out
}
