// Package scope evaluates OAuth scope sets.
//
// A scope set is a list of scope names. Two names carry special meaning:
//   - Wildcard ("*") grants every scope except OfflineAccess
//   - OfflineAccess ("offline_access") is the marker that makes a grant eligible
//     for a refresh token; it is never implied by Wildcard
//
// All functions are pure and safe for concurrent use.
package scope

import (
	"slices"
	"strings"
)

const (
	// Wildcard grants every scope except OfflineAccess
	Wildcard = "*"

	// OfflineAccess marks a grant as eligible for a refresh token
	OfflineAccess = "offline_access"
)

// Parse splits a scope string on spaces and commas.
// Empty entries and duplicates are dropped; order of first appearance is kept.
func Parse(raw string) []string {
	fields := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ' ' || r == ',' || r == '\t' || r == '\n'
	})
	if len(fields) == 0 {
		return []string{}
	}

	result := make([]string, 0, len(fields))
	for _, f := range fields {
		if !slices.Contains(result, f) {
			result = append(result, f)
		}
	}
	return result
}

// Format renders a scope set in its wire form (space-delimited).
func Format(scopes []string) string {
	return strings.Join(scopes, " ")
}

// Contains reports whether scopes lists name verbatim. Wildcard is not expanded.
func Contains(scopes []string, name string) bool {
	return slices.Contains(scopes, name)
}

// HasOfflineAccess reports whether the set explicitly carries OfflineAccess.
func HasOfflineAccess(scopes []string) bool {
	return Contains(scopes, OfflineAccess)
}

// SatisfiesAny reports whether granted covers at least one of required.
// An empty requirement is always satisfied; a Wildcard grant satisfies everything.
func SatisfiesAny(required, granted []string) bool {
	if len(required) == 0 || Contains(granted, Wildcard) {
		return true
	}
	for _, r := range required {
		if Contains(granted, r) {
			return true
		}
	}
	return false
}

// SatisfiesAll reports whether granted covers every entry of required.
// An empty requirement is always satisfied; a Wildcard grant satisfies everything.
func SatisfiesAll(required, granted []string) bool {
	if len(required) == 0 || Contains(granted, Wildcard) {
		return true
	}
	for _, r := range required {
		if !Contains(granted, r) {
			return false
		}
	}
	return true
}

// RestrictToAllowed filters requested down to what allowed permits.
//
// A requested scope survives when allowed lists it explicitly, or when allowed
// holds Wildcard and the scope is not OfflineAccess. Disallowed scopes are
// dropped silently. The result keeps request order without duplicates and is
// never nil.
func RestrictToAllowed(allowed, requested []string) []string {
	wildcard := Contains(allowed, Wildcard)

	result := make([]string, 0, len(requested))
	for _, s := range requested {
		if s == "" || slices.Contains(result, s) {
			continue
		}
		if Contains(allowed, s) || (wildcard && s != OfflineAccess && s != Wildcard) {
			result = append(result, s)
		}
	}
	return result
}
