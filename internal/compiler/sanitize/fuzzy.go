package sanitize

import (
	"strings"
	"unicode"

	"golang.org/x/text/width"
)

// Normalize reduces a name to its fuzzy-match key: ASCII letters and digits
// plus Japanese characters, lower-cased. Everything else is dropped.
func Normalize(name string) string {
	var b strings.Builder
	for _, r := range width.Fold.String(name) {
		if isASCIIAlnum(r) || IsJapanese(r) {
			b.WriteRune(unicode.ToLower(r))
		}
	}
	return b.String()
}

// FuzzyMatch reports whether two names refer to the same element: their
// normalized keys are equal or one contains the other. Names that normalize
// to nothing never match.
//
// Substring matching over-matches on short or nested names ("User" inside
// "SuperUser"); callers that can prefer an exact hit should use Resolve.
func FuzzyMatch(a, b string) bool {
	na, nb := Normalize(a), Normalize(b)
	if na == "" || nb == "" {
		return false
	}
	return na == nb || strings.Contains(na, nb) || strings.Contains(nb, na)
}

// Resolve finds the candidate that name refers to. An exact normalized match
// wins over the first fuzzy match in candidate order.
func Resolve(name string, candidates []string) (string, bool) {
	key := Normalize(name)
	if key == "" {
		return "", false
	}
	for _, c := range candidates {
		if Normalize(c) == key {
			return c, true
		}
	}
	for _, c := range candidates {
		if FuzzyMatch(name, c) {
			return c, true
		}
	}
	return "", false
}
