package core

import "github.com/sqlforge/sqlforge/internal/dialects"

// Expression is anything that can lower itself into a SQL fragment plus the
// bindings that go with it. The builder stores Expression values wherever a
// column value is allowed (Where, Having, Insert, Update) and type-switches
// on them at compile time instead of binding them as ordinary parameters.
type Expression interface {
	Build(dialect dialects.Dialect) (sql string, args []interface{})
}

// RawExp passes its SQL straight through to the compiled statement, with its
// own args spliced into the bindings at that point. It is the only escape
// hatch for SQL the fluent predicate builders can't express: window
// functions, vendor-specific syntax, subqueries written by hand.
type RawExp struct {
	sql  string
	args []interface{}
}

// NewExp builds a RawExp from a literal SQL fragment and its bindings.
func NewExp(sql string, args ...interface{}) *RawExp {
	return &RawExp{sql: sql, args: args}
}

// Build returns the fragment unchanged; RawExp ignores the dialect because
// the caller already wrote dialect-specific SQL by hand.
func (e *RawExp) Build(_ dialects.Dialect) (string, []interface{}) {
	return e.sql, e.args
}
