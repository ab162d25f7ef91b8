package quality

import (
	"strings"

	"golang.org/x/text/cases"
)

// fold returns the case-folded form used for every case-insensitive comparison.
// A Caser keeps state, so one is built per call.
func fold(s string) string {
	return cases.Fold().String(strings.TrimSpace(s))
}

func containsFolded(haystack string, needle string) bool {
	n := fold(needle)
	if n == "" {
		return false
	}
	return strings.Contains(fold(haystack), n)
}

func equalFolded(a string, b string) bool {
	return fold(a) == fold(b)
}
