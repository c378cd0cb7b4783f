package task

import (
	"fmt"
	"regexp"
	"strings"
)

const (
	notesBeginAnchor = "<!-- SECTION:NOTES:BEGIN -->"
	notesEndAnchor   = "<!-- SECTION:NOTES:END -->"
	implNotesHeading = "## Implementation Notes"
)

var dashUnderlineRe = regexp.MustCompile(`^-+$`)

// sectionHeader describes where a named section starts and ends within a
// body, in terms of byte offsets of the *content* region (excluding the
// header line(s) and the line that opens the next section).
type sectionHeader struct {
	start, end int
	found      bool
}

// findSection locates a section named name: either "Name:" followed by a
// dash-underline line (the legacy form), or a level-2 "## Name" heading
// (case-insensitive). It returns the byte range of the section's content,
// i.e. everything after the header through (but not including) the next
// top-level header of either form.
func findSection(body, name string) sectionHeader {
	lines := strings.Split(body, "\n")
	lowerName := strings.ToLower(name)

	headerLineIdx := -1
	contentStartLine := -1
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.EqualFold(trimmed, "## "+name) {
			headerLineIdx = i
			contentStartLine = i + 1
			break
		}
		if strings.ToLower(strings.TrimSpace(strings.TrimSuffix(trimmed, ":"))) == lowerName &&
			strings.HasSuffix(trimmed, ":") &&
			i+1 < len(lines) && dashUnderlineRe.MatchString(strings.TrimSpace(lines[i+1])) {
			headerLineIdx = i
			contentStartLine = i + 2
			break
		}
	}
	if headerLineIdx < 0 {
		return sectionHeader{found: false}
	}

	endLine := len(lines)
	for i := contentStartLine; i < len(lines); i++ {
		trimmed := strings.TrimSpace(lines[i])
		if strings.HasPrefix(trimmed, "## ") {
			endLine = i
			break
		}
		if strings.HasSuffix(trimmed, ":") && i+1 < len(lines) && dashUnderlineRe.MatchString(strings.TrimSpace(lines[i+1])) {
			endLine = i
			break
		}
	}

	start := lineOffset(lines, contentStartLine)
	end := lineOffset(lines, endLine)
	// lineOffset counts a newline after the last line even when body does
	// not end with one, so clamp both offsets to the body's length.
	if end > len(body) {
		end = len(body)
	}
	if start > end {
		start = end
	}
	return sectionHeader{start: start, end: end, found: true}
}

func lineOffset(lines []string, idx int) int {
	off := 0
	for i := 0; i < idx && i < len(lines); i++ {
		off += len(lines[i]) + 1
	}
	return off
}

// ReplaceSection replaces the named section's content in body, appending a
// new dash-underline section at the end of the body if it's missing. The
// canonical "Implementation Notes" section is special-cased to use
// anchor comments that, once present, define the region on subsequent
// writes regardless of surrounding heading text.
func ReplaceSection(body, name, content string) string {
	if strings.EqualFold(name, "implementation notes") || strings.EqualFold(name, "impl") {
		return replaceImplNotes(body, content)
	}

	sec := findSection(body, name)
	if !sec.found {
		sep := ""
		if body != "" && !strings.HasSuffix(body, "\n\n") {
			if strings.HasSuffix(body, "\n") {
				sep = "\n"
			} else {
				sep = "\n\n"
			}
		}
		underline := strings.Repeat("-", len(name))
		return body + sep + name + ":\n" + underline + "\n" + content + "\n"
	}
	return body[:sec.start] + content + "\n" + body[sec.end:]
}

func replaceImplNotes(body, content string) string {
	beginIdx := strings.Index(body, notesBeginAnchor)
	endIdx := strings.Index(body, notesEndAnchor)
	if beginIdx >= 0 && endIdx > beginIdx {
		before := body[:beginIdx+len(notesBeginAnchor)]
		after := body[endIdx:]
		return before + "\n" + content + "\n" + after
	}

	headingIdx := strings.Index(body, implNotesHeading)
	if headingIdx >= 0 {
		afterHeading := headingIdx + len(implNotesHeading)
		rest := body[afterHeading:]
		nextHeading := strings.Index(rest, "\n## ")
		var tail string
		if nextHeading >= 0 {
			tail = rest[nextHeading:]
		} else {
			tail = ""
		}
		return body[:afterHeading] + "\n" + notesBeginAnchor + "\n" + content + "\n" + notesEndAnchor + "\n" + tail
	}

	sep := ""
	if body != "" && !strings.HasSuffix(body, "\n") {
		sep = "\n"
	}
	return body + sep + "\n" + implNotesHeading + "\n" + notesBeginAnchor + "\n" + content + "\n" + notesEndAnchor + "\n"
}

// AppendNote appends a timestamped note to the canonical Implementation
// Notes section, preserving whatever existing notes that section holds.
func AppendNote(path, note, timestamp string) error {
	entries, _, body, err := readFrontMatter(path)
	if err != nil {
		return err
	}
	existing := currentImplNotes(body)
	line := fmt.Sprintf("- [%s] %s", timestamp, note)
	var newContent string
	if strings.TrimSpace(existing) == "" {
		newContent = line
	} else {
		newContent = strings.TrimRight(existing, "\n") + "\n" + line
	}
	newBody := ReplaceSection(body, "Implementation Notes", newContent)
	return writeFile(path, entries, newBody)
}

func currentImplNotes(body string) string {
	beginIdx := strings.Index(body, notesBeginAnchor)
	endIdx := strings.Index(body, notesEndAnchor)
	if beginIdx >= 0 && endIdx > beginIdx {
		return strings.TrimSpace(body[beginIdx+len(notesBeginAnchor) : endIdx])
	}
	sec := findSection(body, "Implementation Notes")
	if sec.found {
		return strings.TrimSpace(body[sec.start:sec.end])
	}
	return ""
}
