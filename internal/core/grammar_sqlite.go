package core

import "github.com/sqlforge/sqlforge/internal/dialects"

// SQLiteGrammar compiles IR using SQLite syntax: ON CONFLICT DO NOTHING for
// insert-ignore, and DELETE FROM plus a sqlite_sequence reset for truncate
// (SQLite has no TRUNCATE statement).
type SQLiteGrammar struct {
	*BaseGrammar
}

// NewSQLiteGrammar constructs the SQLite grammar.
func NewSQLiteGrammar() *SQLiteGrammar {
	return &SQLiteGrammar{BaseGrammar: &BaseGrammar{dialect: dialects.GetDialect("sqlite")}}
}

// CompileInsertIgnore appends ON CONFLICT DO NOTHING to a plain insert.
func (g *SQLiteGrammar) CompileInsertIgnore(b *Builder, values []map[string]interface{}) (string, []interface{}, error) {
	sqlStr, bindings, err := g.compileInsertValues("INSERT", b.from, values)
	if err != nil {
		return "", nil, err
	}
	sqlStr += g.dialect.UpsertSQL(b.from, nil, nil)
	sqlStr, err = g.appendReturning(sqlStr, b.returning)
	if err != nil {
		return "", nil, err
	}
	return g.renumberPlaceholders(sqlStr), bindings, nil
}

// CompileInsertIgnoreGetID is CompileInsertIgnore for a single row, adding
// a RETURNING clause for the sequence column.
func (g *SQLiteGrammar) CompileInsertIgnoreGetID(b *Builder, values map[string]interface{}, sequence string) (string, []interface{}, error) {
	sqlStr, bindings, err := g.compileInsertValues("INSERT", b.from, []map[string]interface{}{values})
	if err != nil {
		return "", nil, err
	}
	sqlStr += g.dialect.UpsertSQL(b.from, nil, nil)
	sqlStr += " RETURNING " + g.wrap(sequence)
	return g.renumberPlaceholders(sqlStr), bindings, nil
}

// CompileTruncate deletes all rows and resets the autoincrement sequence;
// SQLite has no TRUNCATE statement.
func (g *SQLiteGrammar) CompileTruncate(b *Builder) ([]CompiledStatement, error) {
	return []CompiledStatement{
		{SQL: "DELETE FROM " + g.wrapTable(b.from)},
		{SQL: "DELETE FROM sqlite_sequence WHERE name = ?", Bindings: []interface{}{b.from}},
	}, nil
}
