// Package strings holds small helpers for operator-supplied string lists.
package strings

import (
	"strings"
)

// DedupeAndTrim trims each value and drops empty and repeated ones,
// keeping first-seen order. Comparison is case-sensitive.
func DedupeAndTrim(values []string) []string {
	if values == nil {
		return nil
	}
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if _, dup := seen[v]; v == "" || dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
