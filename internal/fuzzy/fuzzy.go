// Package fuzzy provides best-effort "did you mean" matching used by the
// scheduler when a caller-supplied filter value doesn't exactly match any
// canonical phase, status, or label. It never substitutes a match; it only
// suggests one.
package fuzzy

import "strings"

// Match reports whether source is a fuzzy subsequence match of target:
// every rune of source must appear in target, in order, case-insensitively.
func Match(source, target string) bool {
	source = strings.ToLower(source)
	target = strings.ToLower(target)

	sourceRunes := []rune(source)
	targetRunes := []rune(target)

	si := 0
	for ti := 0; si < len(sourceRunes) && ti < len(targetRunes); ti++ {
		if sourceRunes[si] == targetRunes[ti] {
			si++
		}
	}
	return si == len(sourceRunes)
}

// Distance computes the case-insensitive Levenshtein edit distance between
// two strings.
func Distance(s1, s2 string) int {
	s1 = strings.ToLower(s1)
	s2 = strings.ToLower(s2)

	if len(s1) == 0 {
		return len(s2)
	}
	if len(s2) == 0 {
		return len(s1)
	}

	matrix := make([][]int, len(s1)+1)
	for i := range matrix {
		matrix[i] = make([]int, len(s2)+1)
	}
	for i := 0; i <= len(s1); i++ {
		matrix[i][0] = i
	}
	for j := 0; j <= len(s2); j++ {
		matrix[0][j] = j
	}

	for i := 1; i <= len(s1); i++ {
		for j := 1; j <= len(s2); j++ {
			cost := 1
			if s1[i-1] == s2[j-1] {
				cost = 0
			}
			del := matrix[i-1][j] + 1
			ins := matrix[i][j-1] + 1
			sub := matrix[i-1][j-1] + cost
			min := del
			if ins < min {
				min = ins
			}
			if sub < min {
				min = sub
			}
			matrix[i][j] = min
		}
	}
	return matrix[len(s1)][len(s2)]
}

// Suggest returns the candidate closest to query by edit distance, or ""
// if candidates is empty. Ties favor the earlier candidate.
func Suggest(query string, candidates []string) string {
	best := ""
	bestDist := -1
	for _, c := range candidates {
		d := Distance(query, c)
		if bestDist == -1 || d < bestDist {
			bestDist = d
			best = c
		}
	}
	return best
}
