package ui

import (
	"sort"
	"strings"
)

// maxSuggestionDistance bounds the edit distance of a suggestion
const maxSuggestionDistance = 2

// maxSuggestions caps the number of names Suggest returns
const maxSuggestions = 3

// Suggest returns up to three candidates within edit distance two of
// target, closest first. Matching ignores case.
func Suggest(target string, candidates []string) []string {
	if target == "" {
		return nil
	}

	type match struct {
		name     string
		distance int
	}
	var matches []match
	lower := strings.ToLower(target)
	for _, c := range candidates {
		if d := editDistance(lower, strings.ToLower(c)); d <= maxSuggestionDistance {
			matches = append(matches, match{c, d})
		}
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].distance < matches[j].distance
	})

	var out []string
	for i := 0; i < len(matches) && i < maxSuggestions; i++ {
		out = append(out, matches[i].name)
	}
	return out
}

// editDistance is the Levenshtein distance over runes.
func editDistance(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	prev := make([]int, len(rb)+1)
	cur := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		cur[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			cur[j] = min(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
		}
		prev, cur = cur, prev
	}
	return prev[len(rb)]
}
