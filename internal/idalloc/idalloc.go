// Package idalloc allocates and renumbers task ids (spec §3.9, §4.L): the
// branch-to-initiative key derivation that gives each development branch
// its own four-letter namespace, the namespaced id minter, bulk rekeying
// by explicit mapping, and the duplicate-id fixer.
package idalloc

import (
	"crypto/sha256"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/luislobo/workmesh/internal/config"
	"github.com/luislobo/workmesh/internal/task"
)

var branchPrefixes = []string{
	"feature/", "feat/", "bugfix/", "fix/", "chore/", "hotfix/", "issue/", "spike/",
}

// BestEffortGitBranch reports the current branch, honoring a
// WORKMESH_BRANCH override, or "" if it cannot be determined.
func BestEffortGitBranch(repoRoot string, getenv func(string) string) string {
	if v := strings.TrimSpace(getenv("WORKMESH_BRANCH")); v != "" {
		return v
	}
	out, err := exec.Command("git", "-C", repoRoot, "rev-parse", "--abbrev-ref", "HEAD").Output()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(out))
}

// BranchToInitiativeSlug derives a slug from a branch name: strips a known
// prefix, keeps the last path segment, then slugifies it.
func BranchToInitiativeSlug(branch string) string {
	raw := strings.TrimSpace(branch)
	if raw == "" {
		return "work"
	}
	s := raw
	for _, prefix := range branchPrefixes {
		if strings.HasPrefix(s, prefix) {
			s = s[len(prefix):]
			break
		}
	}
	if idx := strings.LastIndex(s, "/"); idx >= 0 {
		s = s[idx+1:]
	}
	if slug := slugify(s); slug != "" {
		return slug
	}
	return "work"
}

func slugify(raw string) string {
	lower := strings.ToLower(strings.TrimSpace(raw))
	if lower == "" {
		return ""
	}
	var sb strings.Builder
	lastDash := false
	for _, ch := range lower {
		if (ch >= 'a' && ch <= 'z') || (ch >= '0' && ch <= '9') {
			sb.WriteRune(ch)
			lastDash = false
			continue
		}
		if !lastDash {
			sb.WriteByte('-')
			lastDash = true
		}
	}
	return strings.Trim(sb.String(), "-")
}

func fourLetterKeyFromSlug(slug string) string {
	var sb strings.Builder
	for _, ch := range strings.ToLower(slug) {
		if ch >= 'a' && ch <= 'z' {
			sb.WriteRune(ch)
			if sb.Len() == 4 {
				break
			}
		}
	}
	out := sb.String()
	for len(out) < 4 {
		out += "x"
	}
	return out
}

// fourLetterKeyCandidates yields desired first, then an endless sequence of
// deterministic 4-letter keys derived from sha256(branch[:salt]).
func fourLetterKeyCandidates(branch, desired string) func() string {
	emittedDesired := false
	salt := 0
	bytes := sha256.Sum256([]byte(branch))
	offset := 0

	return func() string {
		if !emittedDesired {
			emittedDesired = true
			return desired
		}
		if offset+4 > len(bytes) {
			salt++
			offset = 0
			bytes = sha256.Sum256([]byte(fmt.Sprintf("%s:%d", branch, salt)))
		}
		chunk := bytes[offset : offset+4]
		offset += 4
		var sb strings.Builder
		for _, b := range chunk {
			sb.WriteByte('a' + (b % 26))
		}
		return sb.String()
	}
}

// EnsureBranchInitiative returns branch's frozen four-letter initiative
// key, minting and persisting one on first use.
func EnsureBranchInitiative(repoRoot, branch string) (string, error) {
	cfg, err := config.Load(repoRoot)
	if err != nil {
		return "", err
	}
	if cfg == nil {
		cfg = &config.Config{}
	}
	if cfg.BranchInitiatives != nil {
		if existing := strings.TrimSpace(cfg.BranchInitiatives[branch]); existing != "" {
			return existing, nil
		}
	}

	desiredSlug := BranchToInitiativeSlug(branch)
	desired := fourLetterKeyFromSlug(desiredSlug)
	key := reserveUniqueInitiative(cfg, branch, desired)
	if err := config.Save(repoRoot, cfg); err != nil {
		return "", err
	}
	return key, nil
}

func reserveUniqueInitiative(cfg *config.Config, branch, desired string) string {
	if cfg.BranchInitiatives == nil {
		cfg.BranchInitiatives = make(map[string]string)
	}
	used := make(map[string]bool, len(cfg.Initiatives))
	for _, k := range cfg.Initiatives {
		used[k] = true
	}

	base := strings.TrimSpace(desired)
	if base == "" {
		base = "work"
	}

	next := fourLetterKeyCandidates(branch, base)
	key := "work"
	for i := 0; i < 10000; i++ {
		candidate := strings.TrimSpace(next())
		if len(candidate) != 4 || !isLowerAlpha(candidate) {
			continue
		}
		if !used[candidate] {
			key = candidate
			break
		}
	}

	if !used[key] {
		cfg.Initiatives = append(cfg.Initiatives, key)
	}
	cfg.BranchInitiatives[branch] = key
	return key
}

func isLowerAlpha(s string) bool {
	for _, ch := range s {
		if ch < 'a' || ch > 'z' {
			return false
		}
	}
	return true
}

// NextNamespacedTaskID returns the next `task-<initiative>-NNN` id,
// scanning only ids within that initiative's namespace.
func NextNamespacedTaskID(tasks []*task.Task, initiative string) string {
	init := strings.ToLower(strings.TrimSpace(initiative))
	if init == "" {
		init = "work"
	}
	prefix := "task-" + init + "-"

	maxNum := 0
	for _, t := range tasks {
		id := strings.ToLower(strings.TrimSpace(t.ID))
		if !strings.HasPrefix(id, prefix) {
			continue
		}
		rest := id[len(prefix):]
		digits := leadingDigits(rest)
		if n, err := strconv.Atoi(digits); err == nil && n > maxNum {
			maxNum = n
		}
	}
	return fmt.Sprintf("%s%03d", prefix, maxNum+1)
}

func leadingDigits(s string) string {
	var sb strings.Builder
	for _, ch := range s {
		if ch < '0' || ch > '9' {
			break
		}
		sb.WriteRune(ch)
	}
	return sb.String()
}

// ResolveInitiativeOrError infers the current branch and its frozen
// initiative key, erroring if the branch cannot be determined.
func ResolveInitiativeOrError(repoRoot string, getenv func(string) string) (branch, initiative string, err error) {
	branch = BestEffortGitBranch(repoRoot, getenv)
	if branch == "" {
		return "", "", fmt.Errorf("idalloc: unable to infer git branch (set WORKMESH_BRANCH to override)")
	}
	initiative, err = EnsureBranchInitiative(repoRoot, branch)
	if err != nil {
		return "", "", err
	}
	return branch, initiative, nil
}

var relationshipFields = []string{"blocked_by", "parent", "child", "discovered_from"}

// RekeyChange records one task renumbered by RekeyApply.
type RekeyChange struct {
	OldID   string
	NewID   string
	Path    string
	Renamed bool
	NewPath string
}

// RekeyReport is RekeyApply's result.
type RekeyReport struct {
	OK       bool
	Apply    bool
	Changes  []RekeyChange
	Warnings []string
}

// RekeyApply rewrites task ids and every structured reference to them
// (dependencies, relationships) per an explicit old-id to new-id mapping.
// With apply=false it only reports the planned changes.
func RekeyApply(backlogDir string, mapping map[string]string, apply bool) (RekeyReport, error) {
	tasks := task.LoadAll(backlogDir, false)
	sort.Slice(tasks, func(i, j int) bool { return idNum(tasks[i].ID) < idNum(tasks[j].ID) })

	mappingLC := make(map[string]string, len(mapping))
	for old, newID := range mapping {
		key := strings.ToLower(strings.TrimSpace(old))
		if key == "" {
			continue
		}
		mappingLC[key] = strings.TrimSpace(newID)
	}

	existingIDs := make(map[string]bool, len(tasks))
	for _, t := range tasks {
		existingIDs[strings.ToLower(t.ID)] = true
	}

	var missing []string
	for old := range mappingLC {
		if !existingIDs[old] {
			missing = append(missing, old)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return RekeyReport{}, fmt.Errorf("idalloc: mapping references missing task ids: %s", strings.Join(missing, ", "))
	}

	seenNew := make(map[string]bool, len(mappingLC))
	for _, newID := range mappingLC {
		key := strings.ToLower(newID)
		if seenNew[key] {
			return RekeyReport{}, fmt.Errorf("idalloc: duplicate new id in mapping: %s", newID)
		}
		seenNew[key] = true
	}

	var planned []RekeyChange
	for _, t := range tasks {
		newID, ok := mappingLC[strings.ToLower(t.ID)]
		if !ok {
			continue
		}
		planned = append(planned, RekeyChange{OldID: t.ID, NewID: newID, Path: t.FilePath})
	}

	if !apply {
		return RekeyReport{OK: true, Apply: false, Changes: planned}, nil
	}

	var applied []RekeyChange
	var warnings []string
	for _, t := range tasks {
		if err := rewriteReferences(t.FilePath, mappingLC); err != nil {
			return RekeyReport{}, err
		}

		newID, ok := mappingLC[strings.ToLower(t.ID)]
		if !ok {
			continue
		}
		if err := task.SetField(t.FilePath, "id", newID); err != nil {
			return RekeyReport{}, err
		}
		newPath, renamed, err := renameTaskFilePrefix(t.FilePath, t.ID, newID)
		if err != nil {
			return RekeyReport{}, err
		}
		applied = append(applied, RekeyChange{OldID: t.ID, NewID: newID, Path: t.FilePath, Renamed: renamed, NewPath: newPath})
	}

	if len(applied) == 0 && len(mappingLC) > 0 {
		warnings = append(warnings, "Mapping applied, but no tasks were rekeyed (check id casing/spacing).")
	}

	return RekeyReport{OK: true, Apply: true, Changes: applied, Warnings: warnings}, nil
}

func rewriteReferences(path string, mappingLC map[string]string) error {
	t, err := task.ParseFile(path)
	if err != nil {
		return err
	}
	if deps, changed := rewriteIDs(t.Dependencies, mappingLC); changed {
		if err := task.SetList(path, "dependencies", deps); err != nil {
			return err
		}
	}
	rel := map[string][]string{
		"blocked_by":       t.Relationships.BlockedBy,
		"parent":           t.Relationships.Parent,
		"child":            t.Relationships.Child,
		"discovered_from":  t.Relationships.DiscoveredFrom,
	}
	for _, field := range relationshipFields {
		values, changed := rewriteIDs(rel[field], mappingLC)
		if !changed {
			continue
		}
		if err := task.SetRelationship(path, field, values); err != nil {
			return err
		}
	}
	return nil
}

func rewriteIDs(values []string, mappingLC map[string]string) ([]string, bool) {
	changed := false
	out := make([]string, len(values))
	for i, v := range values {
		key := strings.ToLower(strings.TrimSpace(v))
		if newID, ok := mappingLC[key]; ok {
			out[i] = newID
			changed = true
		} else {
			out[i] = v
		}
	}
	return out, changed
}

func renameTaskFilePrefix(oldPath, oldID, newID string) (string, bool, error) {
	dir, file := splitPath(oldPath)
	if !strings.HasPrefix(file, oldID) {
		return oldPath, false, nil
	}
	newFile := newID + file[len(oldID):]
	newPath := joinPath(dir, newFile)
	if newPath == oldPath {
		return oldPath, false, nil
	}
	if pathExists(newPath) {
		return "", false, fmt.Errorf("idalloc: refusing to overwrite existing file: %s", newPath)
	}
	if err := renameFile(oldPath, newPath); err != nil {
		return "", false, err
	}
	return newPath, true, nil
}

// FixDuplicateIDsOptions controls FixDuplicateIDs.
type FixDuplicateIDsOptions struct {
	Apply bool
}

// FixIDsChange records one duplicate task renumbered by FixDuplicateIDs.
type FixIDsChange struct {
	OldID   string
	NewID   string
	OldPath string
	NewPath string
	UID     string
}

// FixIDsReport is FixDuplicateIDs's result.
type FixIDsReport struct {
	Changes  []FixIDsChange
	Warnings []string
}

var namespacedIDRE = regexp.MustCompile(`^(task-[a-z0-9-]+-)(\d{3})$`)

// FixDuplicateIDs finds tasks sharing a case-insensitive id, keeps the one
// with a uid (or the lexicographically first path when none have one), and
// renumbers the rest.
func FixDuplicateIDs(backlogDir string, tasks []*task.Task, opts FixDuplicateIDsOptions) (FixIDsReport, error) {
	groups := make(map[string][]*task.Task)
	var order []string
	for _, t := range tasks {
		if strings.TrimSpace(t.ID) == "" {
			continue
		}
		key := strings.ToLower(t.ID)
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], t)
	}
	sort.Strings(order)

	used := make(map[string]bool, len(tasks))
	for _, t := range tasks {
		used[strings.ToLower(t.ID)] = true
	}

	var changes []FixIDsChange
	var warnings []string

	for _, idLC := range order {
		group := groups[idLC]
		if len(group) <= 1 {
			continue
		}
		sort.Slice(group, func(i, j int) bool {
			ki := group[i].UID
			if ki == "" {
				ki = "~~~~"
			}
			kj := group[j].UID
			if kj == "" {
				kj = "~~~~"
			}
			if ki != kj {
				return ki < kj
			}
			return group[i].FilePath < group[j].FilePath
		})

		keep := group[0]
		keepUID := keep.UID
		if keepUID == "" {
			keepUID = "(none)"
		}
		warnings = append(warnings, fmt.Sprintf(
			"Duplicate id '%s' detected; keeping '%s' (uid=%s) and rekeying %d other task(s). References to '%s' remain ambiguous and will continue to resolve to the kept task.",
			idLC, keep.ID, keepUID, len(group)-1, keep.ID))

		for _, t := range group[1:] {
			oldID := t.ID
			var newID string
			if m := namespacedIDRE.FindStringSubmatch(strings.ToLower(oldID)); m != nil {
				newID = nextFreeNamespacedID(m[1], used)
			} else {
				newID = nextFreeLegacyDupID(oldID, used)
			}
			used[strings.ToLower(newID)] = true

			newPath := t.FilePath
			if opts.Apply {
				if err := task.SetField(t.FilePath, "id", newID); err != nil {
					return FixIDsReport{}, err
				}
				renamed, err := renameTaskFile(t.FilePath, oldID, newID)
				if err != nil {
					return FixIDsReport{}, err
				}
				newPath = renamed
			}

			changes = append(changes, FixIDsChange{OldID: oldID, NewID: newID, OldPath: t.FilePath, NewPath: newPath, UID: t.UID})
		}
	}

	for _, c := range changes {
		if !strings.HasPrefix(c.NewPath, backlogDir) {
			return FixIDsReport{}, fmt.Errorf("idalloc: refusing to write outside backlog dir: %s", c.NewPath)
		}
	}

	return FixIDsReport{Changes: changes, Warnings: warnings}, nil
}

func nextFreeNamespacedID(prefix string, used map[string]bool) string {
	for n := 1; n <= 999; n++ {
		candidate := fmt.Sprintf("%s%03d", prefix, n)
		if !used[strings.ToLower(candidate)] {
			return candidate
		}
	}
	n := 1000
	for {
		candidate := fmt.Sprintf("%s%d", prefix, n)
		if !used[strings.ToLower(candidate)] {
			return candidate
		}
		n++
	}
}

func nextFreeLegacyDupID(oldID string, used map[string]bool) string {
	for n := 2; n <= 999; n++ {
		candidate := fmt.Sprintf("%s-dup%d", oldID, n)
		if !used[strings.ToLower(candidate)] {
			return candidate
		}
	}
	n := 1000
	for {
		candidate := fmt.Sprintf("%s-dup%d", oldID, n)
		if !used[strings.ToLower(candidate)] {
			return candidate
		}
		n++
	}
}

func renameTaskFile(oldPath, oldID, newID string) (string, error) {
	dir, file := splitPath(oldPath)
	lowerFile := strings.ToLower(file)
	lowerID := strings.ToLower(oldID)
	matches := strings.HasPrefix(lowerFile, lowerID)
	newFile := file
	if matches {
		newFile = newID + file[len(oldID):]
	}
	newPath := joinPath(dir, newFile)
	if newPath != oldPath {
		if err := renameFile(oldPath, newPath); err != nil {
			return "", err
		}
	}
	return newPath, nil
}

func splitPath(path string) (dir, file string) {
	return filepath.Dir(path), filepath.Base(path)
}

func joinPath(dir, file string) string {
	return filepath.Join(dir, file)
}

func pathExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func renameFile(oldPath, newPath string) error {
	if err := os.Rename(oldPath, newPath); err != nil {
		return fmt.Errorf("idalloc: rename %s to %s: %w", oldPath, newPath, err)
	}
	return nil
}

func idNum(id string) int {
	digits := ""
	for i := len(id) - 1; i >= 0; i-- {
		if id[i] < '0' || id[i] > '9' {
			break
		}
		digits = string(id[i]) + digits
	}
	if digits == "" {
		return 0
	}
	n, _ := strconv.Atoi(digits)
	return n
}
