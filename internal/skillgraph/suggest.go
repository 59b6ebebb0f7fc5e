package skillgraph

import (
	"sort"

	"github.com/agnivade/levenshtein"
)

// suggestLimit is the largest edit distance still offered as a suggestion.
func suggestLimit(length int) int {
	switch {
	case length <= 4:
		return 1
	case length <= 8:
		return 2
	default:
		return 3
	}
}

// suggest returns the candidate closest to token, or "" when nothing is
// close enough. Ties go to the lexically smaller candidate.
func suggest(token string, candidates []string) string {
	type scored struct {
		val  string
		dist int
	}
	var results []scored
	for _, cand := range candidates {
		dist := levenshtein.ComputeDistance(token, cand)
		if dist == 0 || dist > suggestLimit(len(cand)) {
			continue
		}
		results = append(results, scored{val: cand, dist: dist})
	}
	if len(results) == 0 {
		return ""
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].dist == results[j].dist {
			return results[i].val < results[j].val
		}
		return results[i].dist < results[j].dist
	})
	return results[0].val
}
