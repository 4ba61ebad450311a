// Package stringutil provides small string predicates shared by the keyword
// matchers.
package stringutil

import (
	"strings"
	"unicode"
)

// IsNumeric reports whether s consists only of decimal digits.
// Returns false for empty strings.
func IsNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

// ContainsAny reports whether s contains at least one of substrings.
// Matching is case-sensitive; callers lowercase both sides.
func ContainsAny(s string, substrings ...string) bool {
	for _, sub := range substrings {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
