// Package strings holds slice helpers shared by the normalizers.
package strings

import "strings"

// DedupeAndTrim trims each value and drops empties and repeats, keeping
// first-seen order. It returns nil when nothing remains.
func DedupeAndTrim(values []string) []string {
	var result []string
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		result = append(result, v)
	}
	return result
}
