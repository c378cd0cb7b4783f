package task

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

var nonSlugRe = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify lowercases title and collapses runs of non-alphanumeric
// characters into single hyphens, trimming leading/trailing hyphens.
func Slugify(title string) string {
	lower := strings.ToLower(title)
	slug := nonSlugRe.ReplaceAllString(lower, "-")
	return strings.Trim(slug, "-")
}

// CanonicalFilename returns the filename the system uses when it creates a
// task itself: "<id> - <slugged title> - <uid[0..8]>.md" (spec §3.1).
func CanonicalFilename(t *Task) string {
	uidPrefix := t.UID
	if len(uidPrefix) > 8 {
		uidPrefix = uidPrefix[:8]
	}
	slug := Slugify(t.Title)
	return fmt.Sprintf("%s - %s - %s.md", t.ID, slug, uidPrefix)
}

// CreateFile renders t's front matter and body to a new file under dir,
// using CanonicalFilename, and sets t.FilePath to the resulting path.
// Unlike the mutation writers, this controls the entire file's layout, so
// it writes the named front-matter keys in a fixed, readable order; keys
// from Extra follow in Go map iteration order, which varies between runs.
func CreateFile(dir string, t *Task) (string, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", errInvalid("create backlog dir: %v", err)
	}
	name := CanonicalFilename(t)
	path := filepath.Join(dir, name)
	if _, err := os.Stat(path); err == nil {
		return "", errInvalid("file already exists: %s", path)
	}

	var sb strings.Builder
	sb.WriteString(delimiter + "\n")
	sb.WriteString(scalarLine("id", t.ID))
	if t.UID != "" {
		sb.WriteString(scalarLine("uid", t.UID))
	}
	sb.WriteString(scalarLine("title", t.Title))
	sb.WriteString(scalarLine("kind", nonEmpty(t.Kind, "task")))
	sb.WriteString(scalarLine("status", nonEmpty(t.Status, "To Do")))
	sb.WriteString(scalarLine("priority", nonEmpty(t.Priority, "P2")))
	sb.WriteString(scalarLine("phase", nonEmpty(t.Phase, "Unphased")))
	sb.WriteString(listLine("dependencies", t.Dependencies))
	sb.WriteString(renderRelationshipsBlock(map[string][]string{
		"blocked_by":      t.Relationships.BlockedBy,
		"parent":          t.Relationships.Parent,
		"child":           t.Relationships.Child,
		"discovered_from": t.Relationships.DiscoveredFrom,
	}))
	sb.WriteString(listLine("labels", t.Labels))
	sb.WriteString(listLine("assignee", t.Assignee))
	if t.Project != "" {
		sb.WriteString(scalarLine("project", t.Project))
	}
	if t.Initiative != "" {
		sb.WriteString(scalarLine("initiative", t.Initiative))
	}
	if t.CreatedDate != "" {
		sb.WriteString(scalarLine("created_date", t.CreatedDate))
	}
	if t.UpdatedDate != "" {
		sb.WriteString(scalarLine("updated_date", t.UpdatedDate))
	}
	for k, v := range t.Extra {
		switch val := v.(type) {
		case []string:
			sb.WriteString(listLine(k, val))
		case string:
			sb.WriteString(scalarLine(k, val))
		}
	}
	sb.WriteString(delimiter + "\n")
	if t.Body != "" {
		sb.WriteString(t.Body)
	}

	if err := atomicWrite(path, sb.String()); err != nil {
		return "", err
	}
	t.FilePath = path
	return path, nil
}

func nonEmpty(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
