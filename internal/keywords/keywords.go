// Package keywords normalizes and deduplicates raw keyword candidates
// collected from the upstream sources.
package keywords

import (
	"strings"
	"unicode"

	"github.com/FranksOps/trendhound/internal/source"
)

const (
	minLength = 3
	maxLength = 100

	// Candidates that are mostly digits (dates, scores, phone fragments)
	// are noise, not search terms.
	maxDigitRatio = 0.5
)

// denyPrefixes are namespace and meta markers that survive into source
// output but never make sense as keywords. Compared after normalization.
var denyPrefixes = []string{
	"file:", "category:", "template:", "wikipedia:", "user:", "talk:", "special:", "portal:",
}

var denyExact = map[string]struct{}{
	"main page": {},
}

// Normalize trims, case-folds and collapses internal whitespace.
func Normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// Valid reports whether a normalized keyword passes the validity filter:
// length within bounds, not digit-dominated, not a namespace/meta page.
// Length is measured in characters, not bytes; the non-English sources
// routinely produce multibyte keywords.
func Valid(normalized string) bool {
	digits := 0
	runes := 0
	for _, r := range normalized {
		runes++
		if unicode.IsDigit(r) {
			digits++
		}
	}
	if runes < minLength || runes > maxLength {
		return false
	}
	if float64(digits)/float64(runes) > maxDigitRatio {
		return false
	}

	if _, banned := denyExact[normalized]; banned {
		return false
	}
	for _, prefix := range denyPrefixes {
		if strings.HasPrefix(normalized, prefix) {
			return false
		}
	}

	return true
}

// Dedupe normalizes every candidate, drops invalid ones, and removes
// duplicates while preserving first-occurrence order. The surviving item
// keeps the source and position of its first occurrence, so the position
// hint always refers to the rank the keyword first appeared at.
// Deterministic: identical input always yields identical output.
func Dedupe(items []source.RawKeyword) []source.RawKeyword {
	seen := make(map[string]struct{}, len(items))
	out := make([]source.RawKeyword, 0, len(items))

	for _, item := range items {
		normalized := Normalize(item.Text)
		if !Valid(normalized) {
			continue
		}
		if _, dup := seen[normalized]; dup {
			continue
		}
		seen[normalized] = struct{}{}
		item.Text = normalized
		out = append(out, item)
	}

	return out
}
