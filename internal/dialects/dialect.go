// Package dialects provides database-specific SQL dialect implementations for
// PostgreSQL, MySQL, and SQLite, handling identifier quoting, placeholders, and
// UPSERT operations.
package dialects

// Dialect defines database-specific behaviors.
type Dialect interface {
	// Name returns the dialect's registered driver name (postgres, mysql, sqlite).
	Name() string
	QuoteIdentifier(string) string
	Placeholder(int) string
	UpsertSQL(string, []string, []string) string
	// SupportsReturning reports whether the dialect can decode values out of
	// an INSERT/UPDATE/DELETE via a RETURNING clause.
	SupportsReturning() bool
}

var dialects = make(map[string]Dialect)

// RegisterDialect registers a database dialect by driver name.
func RegisterDialect(name string, d Dialect) {
	dialects[name] = d
}

// GetDialect retrieves a registered dialect by driver name, panics if not found.
func GetDialect(name string) Dialect {
	if d, ok := dialects[name]; ok {
		return d
	}
	panic("unsupported dialect: " + name)
}
