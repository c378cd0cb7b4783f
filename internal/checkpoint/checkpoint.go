// Package checkpoint records a per-repo resume snapshot (spec §3's
// "derived files are always rebuildable" principle, SPEC_FULL.md
// Supplementary Feature 1): a single current-state JSON file under the
// backlog directory — current task, ready queue, active leases, git
// status, and recent audit events — distinct from the global session
// store in internal/session. Not an event log; each write replaces the
// prior snapshot atomically.
package checkpoint

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/luislobo/workmesh/internal/audit"
	"github.com/luislobo/workmesh/internal/lease"
	"github.com/luislobo/workmesh/internal/scheduler"
	"github.com/luislobo/workmesh/internal/task"
)

// FileName is the checkpoint snapshot's name under a backlog directory.
const FileName = ".checkpoint.json"

// LeaseSummary is the lease portion of a TaskSummary.
type LeaseSummary struct {
	Owner      string `json:"owner"`
	AcquiredAt string `json:"acquired_at,omitempty"`
	ExpiresAt  string `json:"expires_at,omitempty"`
}

// TaskSummary is a compact, checkpoint-friendly view of one task.
type TaskSummary struct {
	ID         string        `json:"id"`
	UID        string        `json:"uid,omitempty"`
	Title      string        `json:"title"`
	Status     string        `json:"status"`
	Priority   string        `json:"priority"`
	Phase      string        `json:"phase"`
	Project    string        `json:"project,omitempty"`
	Initiative string        `json:"initiative,omitempty"`
	Lease      *LeaseSummary `json:"lease,omitempty"`
}

// Line renders a TaskSummary the way the teacher's status reports do:
// a single pipe-delimited line.
func (s TaskSummary) Line() string {
	title := s.Title
	if strings.TrimSpace(title) == "" {
		title = "(untitled)"
	}
	return fmt.Sprintf("%s | %s | %s | %s | %s", s.ID, s.Status, s.Priority, s.Phase, title)
}

// GitStatus is a best-effort summary of the repo's working tree.
type GitStatus struct {
	Available bool `json:"available"`
	Branch    string `json:"branch,omitempty"`
	Ahead     *int   `json:"ahead,omitempty"`
	Behind    *int   `json:"behind,omitempty"`
	Staged    int    `json:"staged"`
	Unstaged  int    `json:"unstaged"`
	Untracked int    `json:"untracked"`
}

// Snapshot is the full checkpoint document.
type Snapshot struct {
	CheckpointID string        `json:"checkpoint_id"`
	GeneratedAt  string        `json:"generated_at"`
	ProjectID    string        `json:"project_id,omitempty"`
	RepoRoot     string        `json:"repo_root"`
	BacklogDir   string        `json:"backlog_dir"`
	CurrentTask  *TaskSummary  `json:"current_task,omitempty"`
	Ready        []TaskSummary `json:"ready"`
	Leases       []TaskSummary `json:"leases"`
	Git          GitStatus     `json:"git"`
	ChangedFiles []string      `json:"changed_files"`
	TopLevelDirs []string      `json:"top_level_dirs"`
	AuditEvents  []audit.Event `json:"audit_events"`
}

// Options controls Write.
type Options struct {
	ProjectID  string
	AuditLimit int
}

// Path returns the checkpoint file's path under backlogDir.
func Path(backlogDir string) string {
	return filepath.Join(backlogDir, FileName)
}

// Write computes and atomically persists a fresh snapshot.
func Write(backlogDir, repoRoot string, tasks []*task.Task, opts Options) (Snapshot, error) {
	auditLimit := opts.AuditLimit
	if auditLimit <= 0 {
		auditLimit = 10
	}

	gitStatus, changedFiles := repoGitStatus(repoRoot)

	snap := Snapshot{
		CheckpointID: uuid.NewString(),
		GeneratedAt:  time.Now().Local().Format("2006-01-02 15:04"),
		ProjectID:    strings.TrimSpace(opts.ProjectID),
		RepoRoot:     repoRoot,
		BacklogDir:   backlogDir,
		CurrentTask:  pickCurrentTask(tasks),
		Ready:        summarize(scheduler.ReadyTasks(tasks)),
		Leases:       summarize(activeLeaseTasks(tasks)),
		Git:          gitStatus,
		ChangedFiles: changedFiles,
		TopLevelDirs: topLevelDirs(changedFiles),
		AuditEvents:  audit.ReadRecent(backlogDir, auditLimit),
	}

	raw, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return Snapshot{}, err
	}
	path := Path(backlogDir)
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return Snapshot{}, fmt.Errorf("create backlog dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-checkpoint-*")
	if err != nil {
		return Snapshot{}, err
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return Snapshot{}, err
	}
	if err := tmp.Close(); err != nil {
		return Snapshot{}, err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}

// Load reads the current checkpoint, returning (nil, nil) if none exists.
func Load(backlogDir string) (*Snapshot, error) {
	raw, err := os.ReadFile(Path(backlogDir))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read checkpoint: %w", err)
	}
	var snap Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, fmt.Errorf("parse checkpoint: %w", err)
	}
	return &snap, nil
}

// DiffReport compares the live task set against a checkpoint's timestamp.
type DiffReport struct {
	CheckpointID   string        `json:"checkpoint_id"`
	CheckpointTime string        `json:"checkpoint_time"`
	UpdatedTasks   []TaskSummary `json:"updated_tasks"`
	NewFiles       []string      `json:"new_files"`
	AuditEvents    []audit.Event `json:"audit_events"`
}

// DiffSince reports which tasks changed and which files are newly dirty
// since the given checkpoint.
func DiffSince(repoRoot, backlogDir string, tasks []*task.Task, snap Snapshot) DiffReport {
	checkpointTime, hasTime := parseLocalTimestamp(snap.GeneratedAt)

	var updated []TaskSummary
	for _, t := range tasks {
		ts := t.UpdatedDate
		if strings.TrimSpace(ts) == "" {
			ts = t.CreatedDate
		}
		if !hasTime || strings.TrimSpace(ts) == "" {
			continue
		}
		taskTime, ok := parseLocalTimestamp(ts)
		if ok && !taskTime.Before(checkpointTime) {
			updated = append(updated, toSummary(t))
		}
	}
	sort.Slice(updated, func(i, j int) bool { return updated[i].ID < updated[j].ID })

	_, currentFiles := repoGitStatus(repoRoot)
	seen := make(map[string]bool, len(snap.ChangedFiles))
	for _, f := range snap.ChangedFiles {
		seen[f] = true
	}
	var newFiles []string
	for _, f := range currentFiles {
		if !seen[f] {
			newFiles = append(newFiles, f)
		}
	}
	sort.Strings(newFiles)

	return DiffReport{
		CheckpointID:   snap.CheckpointID,
		CheckpointTime: snap.GeneratedAt,
		UpdatedTasks:   updated,
		NewFiles:       newFiles,
		AuditEvents:    audit.ReadRecent(backlogDir, 10),
	}
}

func parseLocalTimestamp(value string) (time.Time, bool) {
	t, err := time.ParseInLocation("2006-01-02 15:04", strings.TrimSpace(value), time.Local)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func pickCurrentTask(tasks []*task.Task) *TaskSummary {
	var active []*task.Task
	for _, t := range tasks {
		if strings.EqualFold(strings.TrimSpace(t.Status), "in progress") {
			active = append(active, t)
		}
	}
	if len(active) == 0 {
		return nil
	}
	sort.Slice(active, func(i, j int) bool { return idNum(active[i].ID) < idNum(active[j].ID) })
	s := toSummary(active[0])
	return &s
}

func activeLeaseTasks(tasks []*task.Task) []*task.Task {
	var leased []*task.Task
	for _, t := range tasks {
		if lease.IsActive(t.Lease) {
			leased = append(leased, t)
		}
	}
	sort.Slice(leased, func(i, j int) bool { return idNum(leased[i].ID) < idNum(leased[j].ID) })
	return leased
}

func summarize(tasks []*task.Task) []TaskSummary {
	out := make([]TaskSummary, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, toSummary(t))
	}
	return out
}

func toSummary(t *task.Task) TaskSummary {
	s := TaskSummary{
		ID:         t.ID,
		UID:        t.UID,
		Title:      t.Title,
		Status:     t.Status,
		Priority:   t.Priority,
		Phase:      t.Phase,
		Project:    t.Project,
		Initiative: t.Initiative,
	}
	if t.Lease != nil {
		s.Lease = &LeaseSummary{Owner: t.Lease.Owner, AcquiredAt: t.Lease.AcquiredAt, ExpiresAt: t.Lease.ExpiresAt}
	}
	return s
}

func idNum(id string) int {
	i := len(id)
	for i > 0 && id[i-1] >= '0' && id[i-1] <= '9' {
		i--
	}
	digits := id[i:]
	if digits == "" {
		return 0
	}
	n, err := strconv.Atoi(digits)
	if err != nil {
		return 0
	}
	return n
}

func repoGitStatus(repoRoot string) (GitStatus, []string) {
	cmd := exec.Command("git", "-C", repoRoot, "status", "--porcelain=v1", "-b")
	out, err := cmd.Output()
	if err != nil {
		return GitStatus{Available: false}, nil
	}

	status := GitStatus{Available: true}
	var files []string
	lines := strings.Split(string(out), "\n")
	if len(lines) > 0 && strings.HasPrefix(lines[0], "## ") {
		parseBranchHeader(strings.TrimPrefix(lines[0], "## "), &status)
		lines = lines[1:]
	}

	for _, line := range lines {
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "?? ") {
			status.Untracked++
			files = append(files, strings.TrimSpace(line[3:]))
			continue
		}
		if len(line) < 3 {
			continue
		}
		indexStatus := line[0]
		workStatus := line[1]
		if indexStatus != ' ' && indexStatus != '?' {
			status.Staged++
		}
		if workStatus != ' ' && workStatus != '?' {
			status.Unstaged++
		}
		files = append(files, parseGitPath(strings.TrimSpace(line[3:])))
	}

	sort.Strings(files)
	files = dedupStrings(files)
	return status, files
}

func parseBranchHeader(header string, status *GitStatus) {
	header = strings.TrimSpace(header)
	if branch, rest, ok := strings.Cut(header, "..."); ok {
		status.Branch = strings.TrimSpace(branch)
		if upstream, meta, ok2 := strings.Cut(strings.TrimSpace(rest), " "); ok2 {
			_ = upstream
			parseAheadBehind(meta, status)
		}
		return
	}
	if branch, meta, ok := strings.Cut(header, " "); ok {
		status.Branch = strings.TrimSpace(branch)
		parseAheadBehind(meta, status)
		return
	}
	status.Branch = header
}

func parseAheadBehind(meta string, status *GitStatus) {
	meta = strings.Trim(strings.TrimSpace(meta), "[]")
	for _, part := range strings.Split(meta, ",") {
		part = strings.TrimSpace(part)
		if v, ok := strings.CutPrefix(part, "ahead "); ok {
			if n, err := strconv.Atoi(v); err == nil {
				status.Ahead = &n
			}
		}
		if v, ok := strings.CutPrefix(part, "behind "); ok {
			if n, err := strconv.Atoi(v); err == nil {
				status.Behind = &n
			}
		}
	}
}

func parseGitPath(path string) string {
	if _, newPath, ok := strings.Cut(path, " -> "); ok {
		return strings.TrimSpace(newPath)
	}
	return path
}

func topLevelDirs(paths []string) []string {
	seen := make(map[string]bool, len(paths))
	var dirs []string
	for _, p := range paths {
		seg := strings.SplitN(p, "/", 2)[0]
		if seg == "" || seen[seg] {
			continue
		}
		seen[seg] = true
		dirs = append(dirs, seg)
	}
	sort.Strings(dirs)
	return dirs
}

func dedupStrings(in []string) []string {
	seen := make(map[string]bool, len(in))
	var out []string
	for _, v := range in {
		if seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}
