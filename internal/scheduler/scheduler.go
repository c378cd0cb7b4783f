// Package scheduler computes ready work deterministically from a task set
// (spec §4.E): dependency/relationship resolution, lease exclusion, and
// the fixed sort orders `next`/`recommend`/`ready` rely on.
package scheduler

import (
	"sort"
	"strconv"
	"strings"

	"github.com/luislobo/workmesh/internal/lease"
	"github.com/luislobo/workmesh/internal/task"
)

// DoneIDs returns the set of lowercased ids whose status is "done"
// (case-insensitive).
func DoneIDs(tasks []*task.Task) map[string]bool {
	done := make(map[string]bool)
	for _, t := range tasks {
		if strings.EqualFold(t.Status, "done") {
			done[strings.ToLower(t.ID)] = true
		}
	}
	return done
}

// IsReady reports whether t is ready: status "To Do", every dependency and
// blocked_by reference resolved to a Done task, and no active lease.
func IsReady(t *task.Task, doneIDs map[string]bool) bool {
	if !strings.EqualFold(t.Status, "to do") {
		return false
	}
	for _, dep := range t.Dependencies {
		if !doneIDs[strings.ToLower(dep)] {
			return false
		}
	}
	for _, dep := range t.Relationships.BlockedBy {
		if !doneIDs[strings.ToLower(dep)] {
			return false
		}
	}
	if lease.IsActive(t.Lease) {
		return false
	}
	return true
}

// depsSatisfied reports whether every entry in t.Dependencies resolves to a
// Done task, ignoring status, blocked_by, and lease state. This is the
// narrower predicate FilterTasks's deps_ready/blocked filters use, distinct
// from IsReady's fuller readiness check.
func depsSatisfied(t *task.Task, doneIDs map[string]bool) bool {
	for _, dep := range t.Dependencies {
		if !doneIDs[strings.ToLower(dep)] {
			return false
		}
	}
	return true
}

// ReadySet returns every ready task in tasks, unsorted.
func ReadySet(tasks []*task.Task) []*task.Task {
	done := DoneIDs(tasks)
	var ready []*task.Task
	for _, t := range tasks {
		if IsReady(t, done) {
			ready = append(ready, t)
		}
	}
	return ready
}

// idNum extracts the trailing numeric run of an id (e.g. "task-logi-007"
// -> 7), used as the common ascending tiebreak across every scheduler sort.
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

// NextTask returns the single highest-priority ready task: the ready set
// sorted by ascending id_num, first element (or nil).
func NextTask(tasks []*task.Task) *task.Task {
	ready := ReadySet(tasks)
	if len(ready) == 0 {
		return nil
	}
	sort.Slice(ready, func(i, j int) bool { return idNum(ready[i].ID) < idNum(ready[j].ID) })
	return ready[0]
}

// priorityRank parses "Pn" into n; unknown/malformed priorities rank 99
// (lowest urgency).
func priorityRank(priority string) int {
	p := strings.TrimSpace(priority)
	if len(p) < 2 || (p[0] != 'P' && p[0] != 'p') {
		return 99
	}
	n, err := strconv.Atoi(p[1:])
	if err != nil {
		return 99
	}
	return n
}

// RecommendNext returns the ready set sorted by (priority_rank,
// phase_lowercase, id_num).
func RecommendNext(tasks []*task.Task) []*task.Task {
	ready := ReadySet(tasks)
	sort.Slice(ready, func(i, j int) bool {
		a, b := ready[i], ready[j]
		ra, rb := priorityRank(a.Priority), priorityRank(b.Priority)
		if ra != rb {
			return ra < rb
		}
		pa, pb := strings.ToLower(a.Phase), strings.ToLower(b.Phase)
		if pa != pb {
			return pa < pb
		}
		return idNum(a.ID) < idNum(b.ID)
	})
	return ready
}

// ReadyTasks returns the full ready set sorted by id_num ascending.
func ReadyTasks(tasks []*task.Task) []*task.Task {
	ready := ReadySet(tasks)
	sort.Slice(ready, func(i, j int) bool { return idNum(ready[i].ID) < idNum(ready[j].ID) })
	return ready
}

// Filter holds the optional predicates accepted by FilterTasks.
type Filter struct {
	Status     map[string]bool
	Kind       map[string]bool
	Phase      map[string]bool
	Priority   map[string]bool
	Labels     map[string]bool
	DependsOn  string
	DepsReady  bool
	Blocked    bool
	Search     string
	SortKey    string
}

func foldSetHas(set map[string]bool, value string) bool {
	if len(set) == 0 {
		return true
	}
	return set[strings.ToLower(value)]
}

func labelsIntersect(want map[string]bool, have []string) bool {
	if len(want) == 0 {
		return true
	}
	for _, l := range have {
		if want[strings.ToLower(l)] {
			return true
		}
	}
	return false
}

func containsFold(list []string, target string) bool {
	for _, v := range list {
		if strings.EqualFold(v, target) {
			return true
		}
	}
	return false
}

// FilterTasks applies f's predicates to tasks and sorts by f.SortKey
// (id|title|kind|status|phase|priority); an unknown key leaves the
// filtered set in its natural (already id-num ascending) order.
func FilterTasks(tasks []*task.Task, f Filter) []*task.Task {
	done := DoneIDs(tasks)
	var out []*task.Task
	for _, t := range tasks {
		if !foldSetHas(f.Status, t.Status) {
			continue
		}
		if !foldSetHas(f.Kind, t.Kind) {
			continue
		}
		if !foldSetHas(f.Phase, t.Phase) {
			continue
		}
		if !foldSetHas(f.Priority, t.Priority) {
			continue
		}
		if !labelsIntersect(f.Labels, t.Labels) {
			continue
		}
		if f.DependsOn != "" && !containsFold(t.Dependencies, f.DependsOn) {
			continue
		}
		if f.DepsReady && !depsSatisfied(t, done) {
			continue
		}
		if f.Blocked && depsSatisfied(t, done) {
			continue
		}
		if f.Search != "" {
			needle := strings.ToLower(f.Search)
			haystack := strings.ToLower(t.Title + "\n" + t.Body)
			if !strings.Contains(haystack, needle) {
				continue
			}
		}
		out = append(out, t)
	}

	sort.SliceStable(out, func(i, j int) bool { return idNum(out[i].ID) < idNum(out[j].ID) })
	switch strings.ToLower(f.SortKey) {
	case "id":
		sort.SliceStable(out, func(i, j int) bool { return strings.ToLower(out[i].ID) < strings.ToLower(out[j].ID) })
	case "title":
		sort.SliceStable(out, func(i, j int) bool { return strings.ToLower(out[i].Title) < strings.ToLower(out[j].Title) })
	case "kind":
		sort.SliceStable(out, func(i, j int) bool { return strings.ToLower(out[i].Kind) < strings.ToLower(out[j].Kind) })
	case "status":
		sort.SliceStable(out, func(i, j int) bool { return strings.ToLower(out[i].Status) < strings.ToLower(out[j].Status) })
	case "phase":
		sort.SliceStable(out, func(i, j int) bool { return strings.ToLower(out[i].Phase) < strings.ToLower(out[j].Phase) })
	case "priority":
		sort.SliceStable(out, func(i, j int) bool { return priorityRank(out[i].Priority) < priorityRank(out[j].Priority) })
	}
	return out
}
