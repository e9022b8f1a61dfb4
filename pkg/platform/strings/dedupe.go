// Package strings holds the field-name list normalization shared by the
// policy registry and the isolation gate.
package strings

import (
	"strings"
)

// DedupeAndTrim trims each element, drops empties and repeats, and keeps
// first-occurrence order. Whitelists and requested-field lists pass through
// here so that "themes" and " themes " cannot count as two distinct fields
// when a projection is checked against a policy.
//
// Field names stay case-sensitive: policies list the exact stored names, and
// folding case here would silently widen a whitelist.
func DedupeAndTrim(values []string) []string {
	if len(values) == 0 {
		return values
	}

	seen := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))

	for _, v := range values {
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		result = append(result, trimmed)
	}

	return result
}
