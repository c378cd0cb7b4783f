// Package views computes read-only derived views over a task set (spec
// §3.10, §4.M): the status/phase/priority board, scoped to a caller-supplied
// id set (see ScopeIDsFromFocus for the epic/working-set focus), and the
// blockers report, scoped to an explicit or focused epic subtree only.
package views

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/luislobo/workmesh/internal/scope"
	"github.com/luislobo/workmesh/internal/task"
)

// BoardBy selects which field a board view groups tasks by.
type BoardBy string

const (
	BoardByStatus   BoardBy = "status"
	BoardByPhase    BoardBy = "phase"
	BoardByPriority BoardBy = "priority"
)

// Lane is one column of a board view.
type Lane struct {
	Key   string       `json:"key"`
	Tasks []*task.Task `json:"tasks"`
}

var idNumRE = regexp.MustCompile(`(\d+)`)

func idNum(id string) int {
	m := idNumRE.FindStringSubmatch(id)
	if m == nil {
		return 999999
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 999999
	}
	return n
}

func stableSortKey(t *task.Task) (int, string) {
	return idNum(t.ID), strings.ToLower(t.ID)
}

func sortTasksStable(tasks []*task.Task) {
	sort.Slice(tasks, func(i, j int) bool {
		ni, si := stableSortKey(tasks[i])
		nj, sj := stableSortKey(tasks[j])
		if ni != nj {
			return ni < nj
		}
		return si < sj
	})
}

func canonicalStatusName(status string) (string, bool) {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "to do":
		return "To Do", true
	case "in progress":
		return "In Progress", true
	case "done":
		return "Done", true
	default:
		return "", false
	}
}

var statusLaneOrder = []string{"to do", "in progress", "done"}

// BoardLanes groups tasks into lanes for a board view, in a deterministic
// lane order (canonical status order first for BoardByStatus) and a
// deterministic task order within each lane. scopeIDs, when non-nil,
// restricts the board to that (lowercased) id set.
func BoardLanes(tasks []*task.Task, by BoardBy, scopeIDs map[string]bool) []Lane {
	type bucket struct {
		display string
		tasks   []*task.Task
	}
	lanes := make(map[string]*bucket)
	var firstSeen []string

	for _, t := range tasks {
		if scopeIDs != nil && !scopeIDs[strings.ToLower(t.ID)] {
			continue
		}

		var raw string
		switch by {
		case BoardByPhase:
			raw = t.Phase
		case BoardByPriority:
			raw = t.Priority
		default:
			raw = t.Status
		}
		raw = strings.TrimSpace(raw)

		var display string
		if by == BoardByStatus {
			if canon, ok := canonicalStatusName(raw); ok {
				display = canon
			} else if raw == "" {
				display = "(none)"
			} else {
				display = raw
			}
		} else if raw == "" {
			display = "(none)"
		} else {
			display = raw
		}

		key := strings.ToLower(display)
		b, ok := lanes[key]
		if !ok {
			b = &bucket{display: display}
			lanes[key] = b
			firstSeen = append(firstSeen, key)
		}
		b.tasks = append(b.tasks, t)
	}

	var out []Lane
	if by == BoardByStatus {
		used := map[string]bool{}
		for _, name := range statusLaneOrder {
			if b, ok := lanes[name]; ok {
				sortTasksStable(b.tasks)
				out = append(out, Lane{Key: b.display, Tasks: b.tasks})
				used[name] = true
			}
		}
		var remaining []string
		for key := range lanes {
			if !used[key] {
				remaining = append(remaining, key)
			}
		}
		sort.Strings(remaining)
		for _, key := range remaining {
			b := lanes[key]
			sortTasksStable(b.tasks)
			out = append(out, Lane{Key: b.display, Tasks: b.tasks})
		}
		return out
	}

	var keys []string
	for key := range lanes {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		b := lanes[key]
		sortTasksStable(b.tasks)
		out = append(out, Lane{Key: b.display, Tasks: b.tasks})
	}
	return out
}

func allBlockerRefs(t *task.Task) []string {
	var refs []string
	refs = append(refs, t.Dependencies...)
	refs = append(refs, t.Relationships.BlockedBy...)
	return refs
}

// ScopeIDsForEpic returns epicID plus every task transitively reachable via
// relationships.parent, lowercased.
func ScopeIDsForEpic(tasks []*task.Task, epicID string) map[string]bool {
	included := map[string]bool{strings.ToLower(strings.TrimSpace(epicID)): true}
	for {
		changed := false
		for _, t := range tasks {
			key := strings.ToLower(t.ID)
			if included[key] {
				continue
			}
			for _, p := range t.Relationships.Parent {
				if included[strings.ToLower(p)] {
					included[key] = true
					changed = true
					break
				}
			}
		}
		if !changed {
			break
		}
	}
	return included
}

// ScopeIDsFromFocus derives a scope id set from context.json's focus state:
// the epic subtree when scope.mode is "epic", else the working set when
// non-empty, else nil (unscoped).
func ScopeIDsFromFocus(tasks []*task.Task, s *scope.State) map[string]bool {
	if s == nil {
		return nil
	}
	if s.Scope.Mode == scope.ModeEpic && strings.TrimSpace(s.Scope.EpicID) != "" {
		return ScopeIDsForEpic(tasks, s.Scope.EpicID)
	}
	if len(s.WorkingSet) > 0 {
		ids := map[string]bool{}
		for _, id := range s.WorkingSet {
			trimmed := strings.TrimSpace(id)
			if trimmed != "" {
				ids[strings.ToLower(trimmed)] = true
			}
		}
		if len(ids) > 0 {
			return ids
		}
	}
	return nil
}

// BlockedTaskEntry is one not-done task with at least one unmet blocker or
// missing reference.
type BlockedTaskEntry struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Status      string   `json:"status"`
	Blockers    []string `json:"blockers"`
	MissingRefs []string `json:"missing_refs"`
}

// TopBlockerEntry ranks one task by how many other tasks it blocks.
type TopBlockerEntry struct {
	ID           string `json:"id"`
	BlockedCount int    `json:"blocked_count"`
}

// Scope describes what a BlockersReport was computed over.
type Scope struct {
	Type   string `json:"type"`
	EpicID string `json:"epic_id,omitempty"`
}

// BlockersReport is the result of BlockersReportFor.
type BlockersReport struct {
	Scope        Scope               `json:"scope"`
	BlockedTasks []BlockedTaskEntry  `json:"blocked_tasks"`
	TopBlockers  []TopBlockerEntry   `json:"top_blockers"`
	Warnings     []string            `json:"warnings,omitempty"`
}

// BlockersReportFor computes the blockers report. Scope rules: explicit
// epicID wins, else the focus state's epic (if set), else all tasks.
func BlockersReportFor(tasks []*task.Task, focus *scope.State, epicID string) BlockersReport {
	var warnings []string

	chosenEpic := strings.TrimSpace(epicID)
	if chosenEpic == "" && focus != nil && focus.Scope.Mode == scope.ModeEpic {
		chosenEpic = strings.TrimSpace(focus.Scope.EpicID)
	}

	var scopeIDs map[string]bool
	if chosenEpic != "" {
		scopeIDs = ScopeIDsForEpic(tasks, chosenEpic)
		exists := false
		for _, t := range tasks {
			if strings.EqualFold(t.ID, chosenEpic) {
				exists = true
				break
			}
		}
		if !exists {
			warnings = append(warnings, "epic not found: "+chosenEpic)
		}
	}

	doneIDs := map[string]bool{}
	byID := map[string]*task.Task{}
	for _, t := range tasks {
		byID[strings.ToLower(t.ID)] = t
		if t.IsDone() {
			doneIDs[strings.ToLower(t.ID)] = true
		}
	}

	var blockedTasks []BlockedTaskEntry
	blockerCounts := map[string]int{}

	for _, t := range tasks {
		if scopeIDs != nil && !scopeIDs[strings.ToLower(t.ID)] {
			continue
		}
		if t.IsDone() {
			continue
		}
		var blockers, missing []string
		seen := map[string]bool{}
		for _, raw := range allBlockerRefs(t) {
			id := strings.TrimSpace(raw)
			if id == "" {
				continue
			}
			lc := strings.ToLower(id)
			if seen[lc] {
				continue
			}
			seen[lc] = true
			dep, ok := byID[lc]
			if !ok {
				missing = append(missing, id)
				continue
			}
			if !doneIDs[lc] {
				blockers = append(blockers, dep.ID)
				blockerCounts[dep.ID]++
			}
		}
		sort.Slice(blockers, func(i, j int) bool {
			ti, oki := byID[strings.ToLower(blockers[i])]
			tj, okj := byID[strings.ToLower(blockers[j])]
			ni, si := 999999, strings.ToLower(blockers[i])
			if oki {
				ni, si = stableSortKey(ti)
			}
			nj, sj := 999999, strings.ToLower(blockers[j])
			if okj {
				nj, sj = stableSortKey(tj)
			}
			if ni != nj {
				return ni < nj
			}
			return si < sj
		})
		sort.Strings(missing)
		if len(blockers) == 0 && len(missing) == 0 {
			continue
		}
		blockedTasks = append(blockedTasks, BlockedTaskEntry{
			ID:          t.ID,
			Title:       t.Title,
			Status:      t.Status,
			Blockers:    blockers,
			MissingRefs: missing,
		})
	}

	sort.Slice(blockedTasks, func(i, j int) bool {
		ti, oki := byID[strings.ToLower(blockedTasks[i].ID)]
		tj, okj := byID[strings.ToLower(blockedTasks[j].ID)]
		ni, si := 999999, strings.ToLower(blockedTasks[i].ID)
		if oki {
			ni, si = stableSortKey(ti)
		}
		nj, sj := 999999, strings.ToLower(blockedTasks[j].ID)
		if okj {
			nj, sj = stableSortKey(tj)
		}
		if ni != nj {
			return ni < nj
		}
		return si < sj
	})

	var topBlockers []TopBlockerEntry
	for id, count := range blockerCounts {
		topBlockers = append(topBlockers, TopBlockerEntry{ID: id, BlockedCount: count})
	}
	sort.Slice(topBlockers, func(i, j int) bool {
		if topBlockers[i].BlockedCount != topBlockers[j].BlockedCount {
			return topBlockers[i].BlockedCount > topBlockers[j].BlockedCount
		}
		return strings.ToLower(topBlockers[i].ID) < strings.ToLower(topBlockers[j].ID)
	})

	sc := Scope{Type: "repo"}
	if chosenEpic != "" {
		sc = Scope{Type: "epic", EpicID: chosenEpic}
	}

	return BlockersReport{
		Scope:        sc,
		BlockedTasks: blockedTasks,
		TopBlockers:  topBlockers,
		Warnings:     warnings,
	}
}
