package indexer

import (
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
)

// Similarity is 1 minus the rune edit distance between a and b divided by
// the longer length. Identical strings score 1.
func Similarity(a, b string) float64 {
	if a == b {
		return 1
	}
	longest := max(utf8.RuneCountInString(a), utf8.RuneCountInString(b))
	if longest == 0 {
		return 1
	}
	d := levenshtein.ComputeDistance(a, b)
	return 1 - float64(d)/float64(longest)
}
