package ui

import (
	"sort"
	"strings"

	"github.com/agext/levenshtein"
)

const (
	// DefaultMaxDistance is the largest edit distance still offered as a suggestion
	DefaultMaxDistance = 3
	// DefaultMaxSuggestions caps the number of suggestions returned
	DefaultMaxSuggestions = 3
)

// FindSimilar returns the candidates within DefaultMaxDistance edits of
// target, closest first. Matching ignores case.
//
//	FindSimilar("sqlit3", []string{"sqlite3", "postgres", "mysql"})
//	// ["sqlite3"]
func FindSimilar(target string, candidates []string) []string {
	type match struct {
		value    string
		distance int
	}

	var matches []match
	for _, c := range candidates {
		d := levenshtein.Distance(strings.ToLower(target), strings.ToLower(c), nil)
		if d <= DefaultMaxDistance {
			matches = append(matches, match{value: c, distance: d})
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].distance < matches[j].distance
	})

	out := make([]string, 0, DefaultMaxSuggestions)
	for i := 0; i < len(matches) && i < DefaultMaxSuggestions; i++ {
		out = append(out, matches[i].value)
	}
	return out
}
