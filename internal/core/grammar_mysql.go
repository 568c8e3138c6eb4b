package core

import "github.com/sqlforge/sqlforge/internal/dialects"

// MySQLGrammar compiles IR using MySQL syntax: INSERT IGNORE for
// insert-ignore (MySQL has no portable ON CONFLICT clause), no RETURNING.
type MySQLGrammar struct {
	*BaseGrammar
}

// NewMySQLGrammar constructs the MySQL grammar.
func NewMySQLGrammar() *MySQLGrammar {
	return &MySQLGrammar{BaseGrammar: &BaseGrammar{dialect: dialects.GetDialect("mysql")}}
}

// CompileInsertIgnore renders INSERT IGNORE INTO ... rather than a plain
// INSERT, since MySQL has no ON CONFLICT clause.
func (g *MySQLGrammar) CompileInsertIgnore(b *Builder, values []map[string]interface{}) (string, []interface{}, error) {
	sqlStr, bindings, err := g.compileInsertValues("INSERT IGNORE", b.from, values)
	if err != nil {
		return "", nil, err
	}
	sqlStr, err = g.appendReturning(sqlStr, b.returning)
	if err != nil {
		return "", nil, err
	}
	return g.renumberPlaceholders(sqlStr), bindings, nil
}

// CompileInsertIgnoreGetID is CompileInsertIgnore for a single row; the
// generated key is read back through the connection's LastInsertID, not a
// RETURNING clause, since MySQL doesn't support one.
func (g *MySQLGrammar) CompileInsertIgnoreGetID(b *Builder, values map[string]interface{}, _ string) (string, []interface{}, error) {
	return g.CompileInsertIgnore(b, []map[string]interface{}{values})
}
