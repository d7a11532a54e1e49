// Package textmatch compares the free-text descriptions found in pet reports.
package textmatch

import (
	"strings"
	"unicode"
)

// Tokens lower-cases s and splits it on runs of non-alphanumeric characters.
// Empty tokens are dropped.
func Tokens(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// Overlap reports whether a and b share at least one token. It tolerates
// phrasing differences such as "brown and white" versus "white/brown".
func Overlap(a, b string) bool {
	left := Tokens(a)
	if len(left) == 0 {
		return false
	}

	set := make(map[string]struct{}, len(left))
	for _, token := range left {
		set[token] = struct{}{}
	}

	for _, token := range Tokens(b) {
		if _, ok := set[token]; ok {
			return true
		}
	}

	return false
}

// Equal reports whether a and b are the same text ignoring case and
// surrounding whitespace. Blank values never match.
func Equal(a, b string) bool {
	a = strings.TrimSpace(a)
	b = strings.TrimSpace(b)
	if a == "" || b == "" {
		return false
	}
	return strings.EqualFold(a, b)
}
