package core

import "github.com/sqlforge/sqlforge/internal/dialects"

// PostgresGrammar compiles IR using PostgreSQL syntax: ON CONFLICT DO
// NOTHING for insert-ignore, RESTART IDENTITY on truncate, $N placeholders.
type PostgresGrammar struct {
	*BaseGrammar
}

// NewPostgresGrammar constructs the PostgreSQL grammar.
func NewPostgresGrammar() *PostgresGrammar {
	return &PostgresGrammar{BaseGrammar: &BaseGrammar{dialect: dialects.GetDialect("postgres")}}
}

// CompileInsertIgnore appends ON CONFLICT DO NOTHING to a plain insert.
func (g *PostgresGrammar) CompileInsertIgnore(b *Builder, values []map[string]interface{}) (string, []interface{}, error) {
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
func (g *PostgresGrammar) CompileInsertIgnoreGetID(b *Builder, values map[string]interface{}, sequence string) (string, []interface{}, error) {
	sqlStr, bindings, err := g.compileInsertValues("INSERT", b.from, []map[string]interface{}{values})
	if err != nil {
		return "", nil, err
	}
	sqlStr += g.dialect.UpsertSQL(b.from, nil, nil)
	sqlStr += " RETURNING " + g.wrap(sequence)
	return g.renumberPlaceholders(sqlStr), bindings, nil
}

// CompileTruncate uses TRUNCATE TABLE ... RESTART IDENTITY so the primary
// key sequence resets along with the row data.
func (g *PostgresGrammar) CompileTruncate(b *Builder) ([]CompiledStatement, error) {
	return []CompiledStatement{{SQL: "TRUNCATE TABLE " + g.wrapTable(b.from) + " RESTART IDENTITY"}}, nil
}
