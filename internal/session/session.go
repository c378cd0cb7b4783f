// Package session implements the global session journal under
// $WORKMESH_HOME/sessions (spec §3.7, §4.I): an append-only
// `session_saved` event log plus a `current.json` pointer, independent of
// any single backlog directory so an agent's handoff notes survive across
// worktrees and repos.
package session

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/luislobo/workmesh/internal/ulid"
)

// EventsFileName and CurrentFileName name the journal's two files, each
// rooted under the "sessions" subdirectory of $WORKMESH_HOME.
const (
	EventsFileName  = "events.jsonl"
	CurrentFileName = "current.json"
)

// GitSnapshot captures the repo state at save time.
type GitSnapshot struct {
	Branch  string `json:"branch,omitempty"`
	HeadSHA string `json:"head_sha,omitempty"`
	Dirty   *bool  `json:"dirty,omitempty"`
}

// CheckpointRef points at a saved checkpoint file.
type CheckpointRef struct {
	Path      string `json:"path"`
	Timestamp string `json:"timestamp,omitempty"`
}

// RecentChanges lists directories and files touched during the session.
type RecentChanges struct {
	Dirs  []string `json:"dirs,omitempty"`
	Files []string `json:"files,omitempty"`
}

// Handoff captures a session's structured wrap-up: a short summary plus any
// explicit decisions worth surfacing to the migration engine's legacy-truth
// scan. A session with no Handoff (or an empty Summary) is what the
// migration engine's audit flags as missing structured handoff.
type Handoff struct {
	Summary   string   `json:"summary"`
	Decisions []string `json:"decisions,omitempty"`
}

// AgentSession is one saved handoff snapshot.
type AgentSession struct {
	ID            string         `json:"id"`
	CreatedAt     string         `json:"created_at"`
	UpdatedAt     string         `json:"updated_at"`
	Cwd           string         `json:"cwd"`
	RepoRoot      string         `json:"repo_root,omitempty"`
	ProjectID     string         `json:"project_id,omitempty"`
	Objective     string         `json:"objective"`
	WorkingSet    []string       `json:"working_set,omitempty"`
	Notes         string         `json:"notes,omitempty"`
	Git           *GitSnapshot   `json:"git,omitempty"`
	Checkpoint    *CheckpointRef `json:"checkpoint,omitempty"`
	RecentChanges *RecentChanges `json:"recent_changes,omitempty"`
	Handoff       *Handoff       `json:"handoff,omitempty"`
}

type savedEvent struct {
	Type    string       `json:"type"`
	Session AgentSession `json:"session"`
}

// NewSessionID mints a fresh session id.
func NewSessionID() string { return ulid.New() }

// ResolveHome resolves $WORKMESH_HOME, falling back to ~/.workmesh.
func ResolveHome() (string, error) {
	if v := strings.TrimSpace(os.Getenv("WORKMESH_HOME")); v != "" {
		return v, nil
	}
	home, err := os.UserHomeDir()
	if err != nil || strings.TrimSpace(home) == "" {
		return "", fmt.Errorf("session: unable to resolve home directory; set WORKMESH_HOME")
	}
	return filepath.Join(home, ".workmesh"), nil
}

// EventsPath and CurrentPath return the journal's two file paths under home.
func EventsPath(home string) string  { return filepath.Join(home, "sessions", EventsFileName) }
func CurrentPath(home string) string { return filepath.Join(home, "sessions", CurrentFileName) }

// EnsureDirs creates the sessions/ and .index/ directories under home.
func EnsureDirs(home string) error {
	if err := os.MkdirAll(filepath.Join(home, "sessions"), 0o750); err != nil {
		return fmt.Errorf("create sessions dir: %w", err)
	}
	if err := os.MkdirAll(filepath.Join(home, ".index"), 0o750); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}
	return nil
}

// AppendSaved appends a session_saved event to the journal.
func AppendSaved(home string, s AgentSession) error {
	if err := EnsureDirs(home); err != nil {
		return err
	}
	if s.ID == "" {
		s.ID = NewSessionID()
	}
	now := time.Now().Local().Format(time.RFC3339)
	if s.CreatedAt == "" {
		s.CreatedAt = now
	}
	s.UpdatedAt = now

	f, err := os.OpenFile(EventsPath(home), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open session events: %w", err)
	}
	defer f.Close()
	bw := bufio.NewWriter(f)
	enc := json.NewEncoder(bw)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(savedEvent{Type: "session_saved", Session: s}); err != nil {
		return fmt.Errorf("encode session event: %w", err)
	}
	return bw.Flush()
}

// SetCurrent atomically overwrites the current-session pointer.
func SetCurrent(home, sessionID string) error {
	if err := EnsureDirs(home); err != nil {
		return err
	}
	payload := map[string]string{
		"current_session_id": sessionID,
		"updated_at":          time.Now().Local().Format(time.RFC3339),
	}
	raw, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return err
	}
	path := CurrentPath(home)
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-session-current-*")
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

// ReadCurrent returns the current-session pointer's id, or "" if unset.
func ReadCurrent(home string) string {
	raw, err := os.ReadFile(CurrentPath(home))
	if err != nil {
		return ""
	}
	var payload struct {
		CurrentSessionID string `json:"current_session_id"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return ""
	}
	return payload.CurrentSessionID
}

// LoadLatest folds the event log down to the latest AgentSession per id,
// sorted by updated_at descending then id ascending.
func LoadLatest(home string) ([]AgentSession, error) {
	raw, err := os.ReadFile(EventsPath(home))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read session events: %w", err)
	}

	latest := make(map[string]AgentSession)
	for idx, line := range strings.Split(string(raw), "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		var event savedEvent
		if err := json.Unmarshal([]byte(trimmed), &event); err != nil {
			return nil, fmt.Errorf("parse session event on line %d: %w", idx+1, err)
		}
		if event.Type != "session_saved" {
			continue
		}
		latest[event.Session.ID] = event.Session
	}

	sessions := make([]AgentSession, 0, len(latest))
	for _, s := range latest {
		sessions = append(sessions, s)
	}
	sort.Slice(sessions, func(i, j int) bool {
		a, b := sessions[i], sessions[j]
		if a.UpdatedAt != b.UpdatedAt {
			return a.UpdatedAt > b.UpdatedAt
		}
		return a.ID < b.ID
	})
	return sessions, nil
}
