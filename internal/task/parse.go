package task

import (
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

const delimiter = "---"

// knownKeys are front-matter keys the model names explicitly; anything else
// lands in Extra.
var knownKeys = map[string]bool{
	"id": true, "uid": true, "title": true, "kind": true,
	"status": true, "priority": true, "phase": true,
	"dependencies": true, "labels": true, "assignee": true,
	"relationships": true, "blocked_by": true, "parent": true,
	"child": true, "discovered_from": true,
	"lease": true, "lease_owner": true, "lease_acquired_at": true, "lease_expires_at": true,
	"project": true, "initiative": true,
	"created_date": true, "updated_date": true,
}

var idFromFilenameRe = regexp.MustCompile(`(?i)(task-\d+)`)

// splitFrontMatter separates the leading `---`-delimited front matter from
// the body. It requires the file to start with a `---` line.
func splitFrontMatter(text string) (front string, body string, err error) {
	normalized := strings.ReplaceAll(text, "\r\n", "\n")
	if !strings.HasPrefix(normalized, delimiter+"\n") && normalized != delimiter {
		return "", "", errMissingFrontMatter()
	}
	rest := strings.TrimPrefix(normalized, delimiter+"\n")
	idx := findClosingDelimiter(rest)
	if idx < 0 {
		return "", "", errMissingFrontMatterEnd()
	}
	front = rest[:idx]
	after := rest[idx:]
	// after begins with "---" possibly followed by \n and body.
	after = strings.TrimPrefix(after, delimiter)
	after = strings.TrimPrefix(after, "\n")
	return front, after, nil
}

// findClosingDelimiter returns the index within rest where a line consisting
// only of "---" begins, or -1 if none is found.
func findClosingDelimiter(rest string) int {
	lines := strings.Split(rest, "\n")
	pos := 0
	for _, line := range lines {
		if strings.TrimRight(line, " \t") == delimiter {
			return pos
		}
		pos += len(line) + 1
	}
	return -1
}

// ParseFile loads and parses a single task file.
func ParseFile(path string) (*Task, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errInvalid("read %s: %v", path, err)
	}
	return parseContent(path, string(raw))
}

func parseContent(path, content string) (*Task, error) {
	front, body, err := splitFrontMatter(content)
	if err != nil {
		return nil, err
	}
	data := parseFrontMatterValues(front)

	t := &Task{
		FilePath: path,
		Body:     body,
		Extra:    map[string]any{},
	}

	if id, ok := valueToString(data["id"]); ok && id != "" {
		t.ID = id
	} else {
		t.ID = idFromFilename(path)
	}
	if uid, ok := valueToString(data["uid"]); ok {
		t.UID = uid
	}
	if kind, ok := valueToString(data["kind"]); ok && kind != "" {
		t.Kind = kind
	} else {
		t.Kind = "task"
	}
	if title, ok := valueToString(data["title"]); ok {
		t.Title = title
	}
	if status, ok := valueToString(data["status"]); ok {
		t.Status = status
	}
	if priority, ok := valueToString(data["priority"]); ok {
		t.Priority = priority
	}
	if phase, ok := valueToString(data["phase"]); ok {
		t.Phase = phase
	}
	t.Dependencies = parseListValue(data["dependencies"])
	t.Labels = parseListValue(data["labels"])
	t.Assignee = parseListValue(data["assignee"])
	if project, ok := valueToString(data["project"]); ok {
		t.Project = project
	}
	if initiative, ok := valueToString(data["initiative"]); ok {
		t.Initiative = initiative
	}
	if cd, ok := valueToString(data["created_date"]); ok {
		t.CreatedDate = cd
	}
	if ud, ok := valueToString(data["updated_date"]); ok {
		t.UpdatedDate = ud
	}

	t.Relationships, t.relationshipsNested = parseRelationships(data)
	t.Lease, t.leaseNested = parseLease(data)

	for k, v := range data {
		if !knownKeys[k] {
			t.Extra[k] = v
		}
	}

	return t, nil
}

// parseFrontMatterValues tries strict YAML-mapping parsing first, falling
// back to a permissive line-oriented scan for hand-edited front matter that
// isn't valid YAML (spec §4.A).
func parseFrontMatterValues(front string) map[string]any {
	var node yaml.Node
	if err := yaml.Unmarshal([]byte(front), &node); err == nil {
		if m, ok := nodeToMap(&node); ok && len(m) > 0 {
			return m
		}
	}
	return parseFrontMatterLoose(front)
}

func nodeToMap(node *yaml.Node) (map[string]any, bool) {
	doc := node
	if doc.Kind == yaml.DocumentNode {
		if len(doc.Content) == 0 {
			return nil, false
		}
		doc = doc.Content[0]
	}
	if doc.Kind != yaml.MappingNode {
		return nil, false
	}
	out := map[string]any{}
	for i := 0; i+1 < len(doc.Content); i += 2 {
		key := doc.Content[i].Value
		var val any
		if err := doc.Content[i+1].Decode(&val); err != nil {
			continue
		}
		out[key] = normalizeDecoded(val)
	}
	return out, true
}

// normalizeDecoded converts yaml.v3's generic decode output ([]interface{},
// map[string]interface{}, scalars) into the any shapes valueToString/
// parseListValue expect (string, []string, map[string]any).
func normalizeDecoded(v any) any {
	switch val := v.(type) {
	case []any:
		items := make([]string, 0, len(val))
		for _, item := range val {
			items = append(items, normalizeScalarString(item))
		}
		return items
	case map[string]any:
		out := map[string]any{}
		for k, iv := range val {
			out[k] = normalizeDecoded(iv)
		}
		return out
	default:
		return normalizeScalarString(v)
	}
}

func normalizeScalarString(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case nil:
		return ""
	default:
		b, err := yaml.Marshal(val)
		if err != nil {
			return ""
		}
		return strings.TrimSpace(string(b))
	}
}

func parseFrontMatterLoose(front string) map[string]any {
	data := map[string]any{}
	lines := strings.Split(front, "\n")
	i := 0
	for i < len(lines) {
		line := lines[i]
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			i++
			continue
		}
		key, rest, ok := splitKeyValue(line)
		if !ok {
			i++
			continue
		}
		value := strings.TrimSpace(rest)

		if value == ">-" || value == "|" {
			var block []string
			i++
			for i < len(lines) {
				next := lines[i]
				if strings.HasPrefix(next, " ") || strings.HasPrefix(next, "\t") {
					block = append(block, strings.TrimSpace(next))
					i++
					continue
				}
				break
			}
			if value == ">-" {
				data[key] = strings.TrimSpace(strings.Join(block, " "))
			} else {
				data[key] = strings.Join(block, "\n")
			}
			continue
		}

		if value == "" {
			var items []string
			j := i + 1
			for j < len(lines) {
				next := lines[j]
				nt := strings.TrimLeft(next, " \t")
				if strings.HasPrefix(nt, "- ") {
					item := strings.TrimSpace(nt[2:])
					if item != "" {
						items = append(items, item)
					}
					j++
					continue
				}
				if strings.HasPrefix(next, " ") || strings.HasPrefix(next, "\t") {
					j++
					continue
				}
				break
			}
			if len(items) > 0 {
				data[key] = items
				i = j
				continue
			}
		}

		if strings.HasPrefix(value, "[") && strings.HasSuffix(value, "]") {
			data[key] = parseListString(value)
			i++
			continue
		}

		data[key] = value
		i++
	}
	return data
}

func splitKeyValue(line string) (key, rest string, ok bool) {
	idx := strings.Index(line, ":")
	if idx < 0 {
		return "", "", false
	}
	return strings.TrimSpace(line[:idx]), line[idx+1:], true
}

func parseListString(value string) []string {
	raw := strings.TrimSpace(value)
	if raw == "" || raw == "[]" {
		return nil
	}
	inner := raw
	if strings.HasPrefix(raw, "[") && strings.HasSuffix(raw, "]") {
		inner = strings.TrimSpace(raw[1 : len(raw)-1])
	}
	if inner == "" {
		return nil
	}
	parts := strings.Split(inner, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// parseListValue normalizes a decoded front-matter value into a string
// list: nil stays nil, a list stays a list, and a scalar becomes a
// single-item list (or nil if empty).
func parseListValue(v any) []string {
	switch val := v.(type) {
	case nil:
		return nil
	case []string:
		return val
	case string:
		s := strings.TrimSpace(val)
		if s == "" {
			return nil
		}
		if strings.HasPrefix(s, "[") && strings.HasSuffix(s, "]") {
			return parseListString(s)
		}
		return []string{s}
	default:
		return nil
	}
}

func valueToString(v any) (string, bool) {
	switch val := v.(type) {
	case string:
		return val, true
	case nil:
		return "", false
	default:
		return "", false
	}
}

func parseRelationships(data map[string]any) (Relationships, bool) {
	if m, ok := data["relationships"].(map[string]any); ok {
		rel := Relationships{
			BlockedBy:      parseListValue(m["blocked_by"]),
			Parent:         parseListValue(m["parent"]),
			Child:          parseListValue(m["child"]),
			DiscoveredFrom: parseListValue(m["discovered_from"]),
		}
		return rel, true
	}
	rel := Relationships{
		BlockedBy:      parseListValue(data["blocked_by"]),
		Parent:         parseListValue(data["parent"]),
		Child:          parseListValue(data["child"]),
		DiscoveredFrom: parseListValue(data["discovered_from"]),
	}
	return rel, false
}

func parseLease(data map[string]any) (*Lease, bool) {
	owner, _ := valueToString(data["lease_owner"])
	owner = strings.TrimSpace(owner)
	if owner != "" {
		acquired, _ := valueToString(data["lease_acquired_at"])
		expires, _ := valueToString(data["lease_expires_at"])
		return &Lease{Owner: owner, AcquiredAt: strings.TrimSpace(acquired), ExpiresAt: strings.TrimSpace(expires)}, false
	}
	if m, ok := data["lease"].(map[string]any); ok {
		owner, _ = valueToString(m["owner"])
		owner = strings.TrimSpace(owner)
		if owner != "" {
			acquired, _ := valueToString(m["acquired_at"])
			expires, _ := valueToString(m["expires_at"])
			return &Lease{Owner: owner, AcquiredAt: strings.TrimSpace(acquired), ExpiresAt: strings.TrimSpace(expires)}, true
		}
	}
	return nil, false
}

func idFromFilename(path string) string {
	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	if m := idFromFilenameRe.FindStringSubmatch(stem); m != nil {
		return strings.ToLower(m[1])
	}
	return stem
}

// LoadAll scans backlogDir/tasks for *.md files and parses each, silently
// skipping files that fail to parse (spec invariant I-2: parsing is total,
// a malformed file never aborts the scan). Archived tasks under archive/
// are included only when includeArchive is true.
func LoadAll(backlogDir string, includeArchive bool) []*Task {
	var tasks []*Task
	tasksDir := filepath.Join(backlogDir, "tasks")
	tasks = append(tasks, loadDir(tasksDir)...)
	if includeArchive {
		archiveDir := filepath.Join(backlogDir, "archive")
		entries, err := os.ReadDir(archiveDir)
		if err == nil {
			for _, e := range entries {
				if e.IsDir() {
					tasks = append(tasks, loadDir(filepath.Join(archiveDir, e.Name()))...)
				}
			}
		}
	}
	return tasks
}

func loadDir(dir string) []*Task {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".md") {
			continue
		}
		paths = append(paths, filepath.Join(dir, e.Name()))
	}
	sort.Strings(paths)

	var tasks []*Task
	for _, p := range paths {
		t, err := ParseFile(p)
		if err != nil {
			continue
		}
		tasks = append(tasks, t)
	}
	return tasks
}
