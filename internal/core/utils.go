package core

import (
	"sort"
	"strings"
)

// DefaultFieldMapFunc converts a Go-style identifier to snake_case.
// Used by the dynamic-where parser to turn "FirstName" into "first_name".
func DefaultFieldMapFunc(field string) string {
	result := make([]rune, 0, len(field)+5)
	for i, r := range field {
		if i > 0 && 'A' <= r && r <= 'Z' {
			result = append(result, '_')
		}
		result = append(result, r)
	}
	return strings.ToLower(string(result))
}

// sortedKeys returns sorted map keys so repeated calls with the same column
// set produce identical SQL, keeping the prepared-statement cache warm.
func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
