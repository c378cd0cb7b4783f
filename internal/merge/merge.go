// Copyright (c) 2024 @neongreen (https://github.com/neongreen)
// Originally from: https://github.com/neongreen/mono/tree/main/beads-merge
//
// MIT License
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.
//
// ---
// Vendored into beads with permission from @neongreen.
// See: https://github.com/neongreen/mono/issues/240
//
// Retargeted from a 3-way mutable-issue merge onto a union-and-dedup merge
// over the append-only truth and session event logs: those streams are
// immutable once appended, so there is no field-level reconciliation to do.
// The job of a merge driver here is narrower: combine the lines git's
// default merge conflicted on, drop exact duplicates by event id, and emit
// a deterministically ordered stream, rather than forcing callers back to
// a full index/truth/session rebuild.
package merge

import (
	"bufio"
	"cmp"
	"encoding/json"
	"fmt"
	"os"
	"slices"
)

// Record is one parsed JSONL line from a merge input: its identity and
// ordering keys plus the original encoded bytes, which are re-emitted
// verbatim rather than round-tripped through a typed struct.
type Record struct {
	Key   string          // dedup identity, e.g. event_id or session id
	Order string          // ordering key, e.g. timestamp
	Raw   json.RawMessage // original line bytes
}

// KeyFunc extracts a Record's identity and ordering keys from one decoded
// JSONL line. It returns an error if the line cannot be keyed.
type KeyFunc func(line []byte) (Record, error)

// Stats summarizes one merge run.
type Stats struct {
	BaseLines, LeftLines, RightLines int
	UniqueEvents                     int
	DuplicatesDropped                int
	Conflicts                        []string
}

// MergeEventStreams merges three JSONL event files (the git merge driver's
// %O/%A/%B triple) into outputPath: the union of all three streams,
// deduplicated by keyFn's Key, sorted by (Order, Key) for deterministic
// output. Two lines sharing a Key but differing in Raw content are a
// conflict: the lexicographically smaller Raw wins the tie-break and the
// key is reported once in Stats.Conflicts, since divergent payloads under the same
// id indicate clock skew or corruption rather than a normal concurrent
// append.
func MergeEventStreams(outputPath, basePath, leftPath, rightPath string, keyFn KeyFunc, debug bool) (Stats, error) {
	var stats Stats

	base, err := readRecords(basePath, keyFn)
	if err != nil {
		return stats, fmt.Errorf("error reading base file: %w", err)
	}
	stats.BaseLines = len(base)

	left, err := readRecords(leftPath, keyFn)
	if err != nil {
		return stats, fmt.Errorf("error reading left file: %w", err)
	}
	stats.LeftLines = len(left)

	right, err := readRecords(rightPath, keyFn)
	if err != nil {
		return stats, fmt.Errorf("error reading right file: %w", err)
	}
	stats.RightLines = len(right)

	if debug {
		fmt.Fprintf(os.Stderr, "merge: base=%d left=%d right=%d\n", stats.BaseLines, stats.LeftLines, stats.RightLines)
	}

	merged, conflicts := unionByKey(base, left, right)
	stats.UniqueEvents = len(merged)
	stats.DuplicatesDropped = stats.BaseLines + stats.LeftLines + stats.RightLines - len(merged)
	stats.Conflicts = conflicts

	if err := writeRecords(outputPath, merged); err != nil {
		return stats, err
	}

	if len(conflicts) > 0 {
		return stats, fmt.Errorf("merge completed with %d conflicting event ids", len(conflicts))
	}
	return stats, nil
}

// MergeTruthEvents merges three truth-ledger events.jsonl files, keying
// each line on its event_id and ordering by timestamp.
func MergeTruthEvents(outputPath, basePath, leftPath, rightPath string, debug bool) (Stats, error) {
	return MergeEventStreams(outputPath, basePath, leftPath, rightPath, truthEventKey, debug)
}

// MergeSessionEvents merges three session-journal events.jsonl files,
// keying each line on the saved session's id plus its updated_at (a
// session can legitimately be saved more than once, each save being a
// distinct event) and ordering by updated_at.
func MergeSessionEvents(outputPath, basePath, leftPath, rightPath string, debug bool) (Stats, error) {
	return MergeEventStreams(outputPath, basePath, leftPath, rightPath, sessionEventKey, debug)
}

type truthEventProbe struct {
	EventID   string `json:"event_id"`
	Timestamp string `json:"timestamp"`
}

func truthEventKey(line []byte) (Record, error) {
	var probe truthEventProbe
	if err := json.Unmarshal(line, &probe); err != nil {
		return Record{}, fmt.Errorf("decode truth event: %w", err)
	}
	if probe.EventID == "" {
		return Record{}, fmt.Errorf("truth event missing event_id: %s", line)
	}
	return Record{Key: probe.EventID, Order: probe.Timestamp, Raw: json.RawMessage(line)}, nil
}

type sessionEventProbe struct {
	Session struct {
		ID        string `json:"id"`
		UpdatedAt string `json:"updated_at"`
	} `json:"session"`
}

func sessionEventKey(line []byte) (Record, error) {
	var probe sessionEventProbe
	if err := json.Unmarshal(line, &probe); err != nil {
		return Record{}, fmt.Errorf("decode session event: %w", err)
	}
	if probe.Session.ID == "" {
		return Record{}, fmt.Errorf("session event missing session.id: %s", line)
	}
	key := probe.Session.ID + "@" + probe.Session.UpdatedAt
	return Record{Key: key, Order: probe.Session.UpdatedAt, Raw: json.RawMessage(line)}, nil
}

func readRecords(path string, keyFn KeyFunc) ([]Record, error) {
	file, err := os.Open(path) // #nosec G304 -- path supplied by the git merge driver invocation
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	var records []Record
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Text()
		if line == "" {
			continue
		}
		record, err := keyFn([]byte(line))
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNum, err)
		}
		records = append(records, record)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading file: %w", err)
	}
	return records, nil
}

// unionByKey merges base/left/right into a deduplicated, deterministically
// ordered slice. Removals are not modeled here: unlike the mutable issues
// this driver was adapted from, an event dropped from one branch but kept
// in another was never retracted, it is just absent from one side's
// history window, so presence on any side wins.
func unionByKey(base, left, right []Record) ([]Record, []string) {
	byKey := make(map[string]Record)
	var conflicts []string

	merge := func(records []Record) {
		for _, r := range records {
			existing, ok := byKey[r.Key]
			if !ok {
				byKey[r.Key] = r
				continue
			}
			if string(existing.Raw) == string(r.Raw) {
				continue
			}
			conflicts = append(conflicts, fmt.Sprintf("event %s: divergent payloads merged, keeping lexicographically smaller", r.Key))
			if string(r.Raw) < string(existing.Raw) {
				byKey[r.Key] = r
			}
		}
	}
	merge(base)
	merge(left)
	merge(right)

	result := make([]Record, 0, len(byKey))
	for _, r := range byKey {
		result = append(result, r)
	}
	slices.SortFunc(result, func(a, b Record) int {
		if c := cmp.Compare(a.Order, b.Order); c != 0 {
			return c
		}
		return cmp.Compare(a.Key, b.Key)
	})
	return result, dedupStrings(conflicts)
}

func dedupStrings(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	slices.Sort(in)
	return slices.Compact(in)
}

func writeRecords(path string, records []Record) error {
	tmp := path + ".tmp"
	out, err := os.Create(tmp) // #nosec G304 -- path supplied by the git merge driver invocation
	if err != nil {
		return fmt.Errorf("error creating output file: %w", err)
	}
	for _, r := range records {
		if _, err := out.Write(r.Raw); err != nil {
			out.Close()
			os.Remove(tmp)
			return fmt.Errorf("error writing merged event: %w", err)
		}
		if _, err := out.WriteString("\n"); err != nil {
			out.Close()
			os.Remove(tmp)
			return fmt.Errorf("error writing merged event: %w", err)
		}
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("error closing output file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("error finalizing output file: %w", err)
	}
	return nil
}
