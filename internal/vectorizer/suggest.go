package vectorizer

import (
	"github.com/agnivade/levenshtein"
)

// suggestColumns returns the columns in available whose edit distance
// from missing is within the looser of two thresholds: an absolute
// distance of 3, or 30% of missing's length in bytes — so names shorter
// than 14 bytes get the fixed window of 3 and longer names a window
// proportional to their length.
func suggestColumns(missing string, available []string) []string {
	threshold := 3
	if proportional := (len(missing) * 30) / 100; proportional > threshold {
		threshold = proportional
	}

	var suggestions []string
	for _, candidate := range available {
		if levenshtein.ComputeDistance(missing, candidate) <= threshold {
			suggestions = append(suggestions, candidate)
		}
	}
	return suggestions
}
