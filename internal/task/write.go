package task

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// fmEntry is one top-level front-matter key and the exact raw text (its own
// line plus any indented/list continuation lines) it occupies in the
// original file. Rebuilding from unmodified entries reproduces each key's
// original bytes exactly (blank lines between top-level keys are not
// kept), which is how writers satisfy "every other key is preserved"
// (spec invariant I-3) without re-serializing the whole mapping.
type fmEntry struct {
	Key string
	Raw string
}

func splitFrontMatterEntries(front string) []fmEntry {
	lines := strings.Split(front, "\n")
	var entries []fmEntry
	i := 0
	for i < len(lines) {
		line := lines[i]
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			i++
			continue
		}
		key, _, ok := splitKeyValue(line)
		if !ok || strings.HasPrefix(line, " ") || strings.HasPrefix(line, "\t") {
			// Orphaned line with no recognizable key at top level; attach
			// it to the previous entry if any, else drop it (shouldn't
			// happen for well-formed front matter).
			if len(entries) > 0 {
				entries[len(entries)-1].Raw += line + "\n"
			}
			i++
			continue
		}
		raw := line + "\n"
		j := i + 1
		for j < len(lines) {
			next := lines[j]
			if next == "" {
				break
			}
			if strings.HasPrefix(next, " ") || strings.HasPrefix(next, "\t") {
				raw += next + "\n"
				j++
				continue
			}
			break
		}
		entries = append(entries, fmEntry{Key: key, Raw: raw})
		i = j
	}
	return entries
}

func joinFrontMatterEntries(entries []fmEntry) string {
	var sb strings.Builder
	for _, e := range entries {
		sb.WriteString(e.Raw)
	}
	return sb.String()
}

func findEntry(entries []fmEntry, key string) int {
	for i, e := range entries {
		if e.Key == key {
			return i
		}
	}
	return -1
}

func setEntry(entries []fmEntry, key, raw string) []fmEntry {
	if idx := findEntry(entries, key); idx >= 0 {
		entries[idx].Raw = raw
		return entries
	}
	return append(entries, fmEntry{Key: key, Raw: raw})
}

func removeEntry(entries []fmEntry, key string) []fmEntry {
	idx := findEntry(entries, key)
	if idx < 0 {
		return entries
	}
	return append(entries[:idx], entries[idx+1:]...)
}

func scalarLine(key, value string) string {
	return fmt.Sprintf("%s: %s\n", key, value)
}

func listLine(key string, values []string) string {
	return fmt.Sprintf("%s: [%s]\n", key, strings.Join(values, ", "))
}

// readFrontMatter loads a file and splits it into its entry list and body,
// failing the same way ParseFile does on malformed delimiters.
func readFrontMatter(path string) (entries []fmEntry, front, body string, err error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, "", "", errInvalid("read %s: %v", path, err)
	}
	front, body, err = splitFrontMatter(string(raw))
	if err != nil {
		return nil, "", "", err
	}
	return splitFrontMatterEntries(front), front, body, nil
}

func writeFile(path string, entries []fmEntry, body string) error {
	front := joinFrontMatterEntries(entries)
	var sb strings.Builder
	sb.WriteString(delimiter + "\n")
	sb.WriteString(front)
	sb.WriteString(delimiter + "\n")
	sb.WriteString(body)
	return atomicWrite(path, sb.String())
}

func atomicWrite(path, content string) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".tmp-task-*")
	if err != nil {
		return errInvalid("create temp file: %v", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.WriteString(content); err != nil {
		tmp.Close()
		return errInvalid("write temp file: %v", err)
	}
	if err := tmp.Close(); err != nil {
		return errInvalid("close temp file: %v", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return errInvalid("rename temp file: %v", err)
	}
	return nil
}

// SetField sets a single scalar front-matter key, preserving every other
// key's original bytes. Passing an empty value still writes "key: ".
func SetField(path, key, value string) error {
	entries, _, body, err := readFrontMatter(path)
	if err != nil {
		return err
	}
	entries = setEntry(entries, key, scalarLine(key, value))
	return writeFile(path, entries, body)
}

// RemoveField deletes a front-matter key if present; a no-op otherwise.
func RemoveField(path, key string) error {
	entries, _, body, err := readFrontMatter(path)
	if err != nil {
		return err
	}
	entries = removeEntry(entries, key)
	return writeFile(path, entries, body)
}

// SetList sets a list-valued front-matter key using the inline `[a, b]`
// form (spec §4.A's writer contract does not require preserving a list
// field's block-vs-inline shape, only its content).
func SetList(path, key string, values []string) error {
	entries, _, body, err := readFrontMatter(path)
	if err != nil {
		return err
	}
	entries = setEntry(entries, key, listLine(key, values))
	return writeFile(path, entries, body)
}

// relationshipShape reports whether the file's relationships are nested
// under a `relationships:` mapping.
func relationshipShape(entries []fmEntry) bool {
	return findEntry(entries, "relationships") >= 0
}

// SetRelationship sets one of the four relationship lists (blocked_by,
// parent, child, discovered_from), writing it back in whichever shape the
// file already used (nested `relationships:` mapping, or a flat top-level
// key) — never reshaping the author's choice (spec §9).
func SetRelationship(path, field string, values []string) error {
	entries, _, body, err := readFrontMatter(path)
	if err != nil {
		return err
	}
	if relationshipShape(entries) {
		rel := readRelationshipsBlock(entries)
		rel[field] = values
		entries = setEntry(entries, "relationships", renderRelationshipsBlock(rel))
	} else {
		entries = setEntry(entries, field, listLine(field, values))
	}
	return writeFile(path, entries, body)
}

var relationshipFields = []string{"blocked_by", "parent", "child", "discovered_from"}

func readRelationshipsBlock(entries []fmEntry) map[string][]string {
	idx := findEntry(entries, "relationships")
	out := map[string][]string{}
	if idx < 0 {
		return out
	}
	data := parseFrontMatterLoose(stripTopKey(entries[idx].Raw))
	for _, f := range relationshipFields {
		out[f] = parseListValue(data[f])
	}
	return out
}

// stripTopKey removes the "relationships:" line and dedents the remaining
// lines by two spaces so the block can be re-parsed as top-level keys.
func stripTopKey(raw string) string {
	lines := strings.Split(raw, "\n")
	if len(lines) == 0 {
		return ""
	}
	var out []string
	for _, l := range lines[1:] {
		out = append(out, strings.TrimPrefix(l, "  "))
	}
	return strings.Join(out, "\n")
}

func renderRelationshipsBlock(rel map[string][]string) string {
	var sb strings.Builder
	sb.WriteString("relationships:\n")
	for _, f := range relationshipFields {
		sb.WriteString(fmt.Sprintf("  %s: [%s]\n", f, strings.Join(rel[f], ", ")))
	}
	return sb.String()
}

// leaseShape reports whether the file's lease is nested under a `lease:`
// mapping rather than the three flat lease_* keys.
func leaseShape(entries []fmEntry) bool {
	return findEntry(entries, "lease") >= 0
}

// SetLease writes {owner, acquired_at, expires_at}, preserving the file's
// existing nested-vs-flat shape. A file with no prior lease defaults to the
// flat shape, matching the canonical claim() writer (spec §4.F).
func SetLease(path string, lease Lease) error {
	entries, _, body, err := readFrontMatter(path)
	if err != nil {
		return err
	}
	if leaseShape(entries) {
		entries = setEntry(entries, "lease", renderLeaseBlock(lease))
	} else {
		entries = setEntry(entries, "lease_owner", scalarLine("lease_owner", lease.Owner))
		entries = setEntry(entries, "lease_acquired_at", scalarLine("lease_acquired_at", lease.AcquiredAt))
		entries = setEntry(entries, "lease_expires_at", scalarLine("lease_expires_at", lease.ExpiresAt))
	}
	return writeFile(path, entries, body)
}

func renderLeaseBlock(lease Lease) string {
	var sb strings.Builder
	sb.WriteString("lease:\n")
	sb.WriteString(fmt.Sprintf("  owner: %s\n", lease.Owner))
	sb.WriteString(fmt.Sprintf("  acquired_at: %s\n", lease.AcquiredAt))
	sb.WriteString(fmt.Sprintf("  expires_at: %s\n", lease.ExpiresAt))
	return sb.String()
}

// ClearLease removes all lease keys, in whichever shape is present.
func ClearLease(path string) error {
	entries, _, body, err := readFrontMatter(path)
	if err != nil {
		return err
	}
	entries = removeEntry(entries, "lease")
	entries = removeEntry(entries, "lease_owner")
	entries = removeEntry(entries, "lease_acquired_at")
	entries = removeEntry(entries, "lease_expires_at")
	return writeFile(path, entries, body)
}

// UpdateBody replaces everything after the closing front-matter delimiter;
// the front matter bytes are untouched.
func UpdateBody(path, newBody string) error {
	entries, _, _, err := readFrontMatter(path)
	if err != nil {
		return err
	}
	return writeFile(path, entries, newBody)
}
