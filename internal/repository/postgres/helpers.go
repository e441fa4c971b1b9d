package postgres

import "strings"

// prefixCols qualifies each column in a comma-separated list with a table
// alias, for RETURNING clauses that reuse a shared column list.
func prefixCols(prefix, cols string) string {
	parts := strings.Split(cols, ",")
	for i, p := range parts {
		parts[i] = prefix + "." + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}
