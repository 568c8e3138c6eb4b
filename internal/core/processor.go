package core

import "context"

// Processor adapts raw row results from the Connection into caller-facing
// shapes, and decodes a generated primary key after an insertGetId.
type Processor interface {
	// ProcessSelect post-processes rows returned by a select. The default
	// implementation returns rows unchanged; it exists as a seam for
	// column-renaming or type-coercion layered on top of the core.
	ProcessSelect(b *Builder, rows []Row) []Row
	// ProcessInsertGetID asks the dialect whether it can read the
	// generated id off the connection's result (LastInsertId) or must
	// decode a RETURNING row, and returns the id either way.
	ProcessInsertGetID(ctx context.Context, b *Builder, sql string, bindings []interface{}, sequence string) (int64, error)
}

// DefaultProcessor is the Processor every DB constructs unless overridden
// with WithProcessor.
type DefaultProcessor struct{}

// ProcessSelect returns rows unchanged.
func (DefaultProcessor) ProcessSelect(_ *Builder, rows []Row) []Row {
	return rows
}

// ProcessInsertGetID uses the connection's LastInsertID capability on
// MySQL/SQLite; on PostgreSQL (whose grammar compiled a RETURNING clause),
// or when the connection doesn't implement it, it runs the statement as a
// select and decodes the sequence column from the first returned row.
func (DefaultProcessor) ProcessInsertGetID(ctx context.Context, b *Builder, sql string, bindings []interface{}, sequence string) (int64, error) {
	if lr, ok := b.conn.(resultReturner); ok && b.grammar.Name() != "postgres" {
		return lr.LastInsertID(ctx, sql, bindings)
	}

	rows, err := b.conn.Select(ctx, sql, bindings)
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, ErrNoRows
	}
	return toInt64(rows[0][sequence]), nil
}
