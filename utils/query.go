package utils

import "strings"

// NormalizeQuery lowercases each part, collapses inner whitespace and joins
// the non-empty parts with single spaces.
func NormalizeQuery(parts ...string) string {
	var fields []string
	for _, part := range parts {
		fields = append(fields, strings.Fields(strings.ToLower(part))...)
	}
	return strings.Join(fields, " ")
}
