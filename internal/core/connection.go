package core

import "context"

// Connection is the execution boundary the Builder compiles SQL and
// bindings against. SQLConnection (sqlconnection.go) is the concrete
// *sql.DB/*sql.Tx-backed implementation; tests may supply a stub.
type Connection interface {
	// Select executes a SELECT and returns the resulting rows.
	Select(ctx context.Context, sql string, bindings []interface{}) ([]Row, error)
	// Insert executes an INSERT, reporting whether it succeeded.
	Insert(ctx context.Context, sql string, bindings []interface{}) (bool, error)
	// Update executes an UPDATE, returning the affected row count.
	Update(ctx context.Context, sql string, bindings []interface{}) (int64, error)
	// Delete executes a DELETE, returning the affected row count.
	Delete(ctx context.Context, sql string, bindings []interface{}) (int64, error)
	// Statement executes an arbitrary statement with no result rows, used
	// by Truncate for sequence-reset/truncate pairs.
	Statement(ctx context.Context, sql string, bindings []interface{}) (bool, error)
	// Raw wraps a value as an Expression, bypassing binding.
	Raw(value interface{}) Expression
	// GetName returns the connection's logical name, used in cache keys.
	GetName() string
	// GetCacheManager returns the result cache, or nil if none is configured.
	GetCacheManager() Cache
	// GetPaginator returns the paginator environment, or nil for the
	// Builder's built-in fallback.
	GetPaginator() PaginatorEnvironment
}

// resultReturner is an optional capability a Connection may implement so
// Processor.ProcessInsertGetID can read a driver-assigned ID off the
// underlying sql.Result without widening the Connection interface itself.
type resultReturner interface {
	LastInsertID(ctx context.Context, sql string, bindings []interface{}) (int64, error)
}
