package core

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/sqlforge/sqlforge/internal/cache"
	"github.com/sqlforge/sqlforge/internal/dialects"
	"github.com/sqlforge/sqlforge/internal/logger"
	"github.com/sqlforge/sqlforge/internal/security"
	"github.com/sqlforge/sqlforge/internal/tracer"
)

// sqlExecutor is satisfied by both *sql.DB and *sql.Tx, letting
// SQLConnection share one code path for transactional and
// non-transactional execution.
type sqlExecutor interface {
	PrepareContext(ctx context.Context, query string) (*sql.Stmt, error)
}

// SQLConnection is the Connection implementation the Builder executes
// against in production: a database/sql handle (or a transaction over
// one), a prepared-statement cache, and the logging/tracing/audit
// wiring every operation passes through.
type SQLConnection struct {
	name       string
	driverName string
	dialect    dialects.Dialect
	exec       sqlExecutor
	tx         *sql.Tx // non-nil when this connection is scoped to a transaction
	stmtCache  *cache.StmtCache

	logger    logger.Logger
	sanitizer *logger.Sanitizer
	tracer    tracer.Tracer
	validator *security.Validator
	auditor   *security.Auditor
	queryHook QueryHook

	cacheManager Cache
	paginator    PaginatorEnvironment
}

// NewSQLConnection builds a SQLConnection backed directly by a *sql.DB.
func NewSQLConnection(name, driverName string, dialect dialects.Dialect, db *sql.DB, stmtCache *cache.StmtCache) *SQLConnection {
	return &SQLConnection{
		name:       name,
		driverName: driverName,
		dialect:    dialect,
		exec:       db,
		stmtCache:  stmtCache,
		logger:     &logger.NoopLogger{},
		sanitizer:  logger.NewSanitizer(nil),
		tracer:     &tracer.NoopTracer{},
	}
}

// withTx returns a copy of the connection scoped to a transaction; the
// statement cache is bypassed for the copy since the teacher's own
// Query.prepareStatement treats transactions and the shared cache as
// mutually exclusive.
func (c *SQLConnection) withTx(tx *sql.Tx) *SQLConnection {
	clone := *c
	clone.exec = tx
	clone.tx = tx
	return &clone
}

// GetName implements Connection.
func (c *SQLConnection) GetName() string { return c.name }

// GetCacheManager implements Connection.
func (c *SQLConnection) GetCacheManager() Cache { return c.cacheManager }

// GetPaginator implements Connection.
func (c *SQLConnection) GetPaginator() PaginatorEnvironment { return c.paginator }

// Raw implements Connection by wrapping value as a pass-through
// expression that contributes no binding of its own.
func (c *SQLConnection) Raw(value interface{}) Expression {
	return NewExp(fmt.Sprint(value))
}

// prepareStatement mirrors the teacher's cache-or-prepare flow:
// transactions always prepare fresh and the caller must close the
// statement; ordinary connections consult and populate the shared
// cache and the caller must not close it.
func (c *SQLConnection) prepareStatement(ctx context.Context, query string) (*sql.Stmt, bool, error) {
	if c.tx != nil {
		stmt, err := c.tx.PrepareContext(ctx, query)
		if err != nil {
			return nil, false, err
		}
		return stmt, true, nil
	}

	if stmt, ok := c.stmtCache.Get(query); ok {
		return stmt, false, nil
	}

	stmt, err := c.exec.PrepareContext(ctx, query)
	if err != nil {
		return nil, false, err
	}
	c.stmtCache.Set(query, stmt)
	return stmt, false, nil
}

// runQuery executes a statement expected to return rows, recording
// logging, tracing, and audit events around it.
func (c *SQLConnection) runQuery(ctx context.Context, operation, query string, bindings []interface{}) (*sql.Rows, time.Duration, error) {
	ctx, span := c.tracer.StartSpan(ctx, "sqlforge."+operation)
	defer span.End()

	start := time.Now()
	stmt, needsClose, err := c.prepareStatement(ctx, query)
	if err != nil {
		c.logError("statement preparation failed", query, bindings, err)
		return nil, 0, err
	}
	if needsClose {
		defer func() { _ = stmt.Close() }()
	}

	rows, err := stmt.QueryContext(ctx, bindings...)
	elapsed := time.Since(start)
	c.logResult(query, bindings, nil, err, elapsed)
	tracer.AddQueryAttributes(span, &tracer.QueryMetadata{
		SQL: query, Args: bindings, Duration: elapsed, Error: err,
		Database: c.driverName, Operation: tracer.DetectOperation(query),
	})
	if c.auditor != nil {
		c.auditor.LogOperation(ctx, operation, query, bindings, nil, err, elapsed)
	}
	if c.queryHook != nil {
		c.queryHook(ctx, QueryEvent{SQL: query, Args: bindings, Duration: elapsed, Error: err, Operation: operation})
	}
	return rows, elapsed, err
}

// runExec executes a statement with no result rows, recording
// logging, tracing, and audit events around it.
func (c *SQLConnection) runExec(ctx context.Context, operation, query string, bindings []interface{}) (sql.Result, error) {
	ctx, span := c.tracer.StartSpan(ctx, "sqlforge."+operation)
	defer span.End()

	start := time.Now()
	stmt, needsClose, err := c.prepareStatement(ctx, query)
	if err != nil {
		c.logError("statement preparation failed", query, bindings, err)
		return nil, err
	}
	if needsClose {
		defer func() { _ = stmt.Close() }()
	}

	result, err := stmt.ExecContext(ctx, bindings...)
	elapsed := time.Since(start)
	c.logResult(query, bindings, result, err, elapsed)

	var rowsAffected int64
	if result != nil {
		rowsAffected, _ = result.RowsAffected()
	}
	tracer.AddQueryAttributes(span, &tracer.QueryMetadata{
		SQL: query, Args: bindings, Duration: elapsed, Error: err, RowsAffected: rowsAffected,
		Database: c.driverName, Operation: tracer.DetectOperation(query),
	})
	if c.auditor != nil {
		c.auditor.LogOperation(ctx, operation, query, bindings, result, err, elapsed)
	}
	if c.queryHook != nil {
		var rowsAffected int64
		if result != nil {
			rowsAffected, _ = result.RowsAffected()
		}
		c.queryHook(ctx, QueryEvent{SQL: query, Args: bindings, Duration: elapsed, RowsAffected: rowsAffected, Error: err, Operation: operation})
	}
	return result, err
}

func (c *SQLConnection) logError(msg, query string, bindings []interface{}, err error) {
	if c.logger == nil {
		return
	}
	c.logger.Error(msg,
		"sql", query,
		"params", c.sanitizer.FormatParams(c.sanitizer.MaskParams(query, bindings)),
		"database", c.driverName,
		"error", err,
	)
}

func (c *SQLConnection) logResult(query string, bindings []interface{}, result sql.Result, err error, elapsed time.Duration) {
	if c.logger == nil {
		return
	}
	maskedParams := c.sanitizer.FormatParams(c.sanitizer.MaskParams(query, bindings))
	if err != nil {
		c.logger.Error("query execution failed",
			"sql", query, "params", maskedParams, "duration_ms", elapsed.Milliseconds(),
			"database", c.driverName, "error", err,
		)
		return
	}
	var rowsAffected int64
	if result != nil {
		rowsAffected, _ = result.RowsAffected()
	}
	c.logger.Info("query executed",
		"sql", query, "params", maskedParams, "duration_ms", elapsed.Milliseconds(),
		"rows_affected", rowsAffected, "database", c.driverName,
	)
}

// Select implements Connection.
func (c *SQLConnection) Select(ctx context.Context, query string, bindings []interface{}) ([]Row, error) {
	rows, _, err := c.runQuery(ctx, "SELECT", query, bindings)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	return globalScanner.scanRowsToMaps(rows)
}

// Insert implements Connection.
func (c *SQLConnection) Insert(ctx context.Context, query string, bindings []interface{}) (bool, error) {
	_, err := c.runExec(ctx, "INSERT", query, bindings)
	return err == nil, err
}

// Update implements Connection.
func (c *SQLConnection) Update(ctx context.Context, query string, bindings []interface{}) (int64, error) {
	result, err := c.runExec(ctx, "UPDATE", query, bindings)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// Delete implements Connection.
func (c *SQLConnection) Delete(ctx context.Context, query string, bindings []interface{}) (int64, error) {
	result, err := c.runExec(ctx, "DELETE", query, bindings)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// Statement implements Connection.
func (c *SQLConnection) Statement(ctx context.Context, query string, bindings []interface{}) (bool, error) {
	_, err := c.runExec(ctx, "STATEMENT", query, bindings)
	return err == nil, err
}

// LastInsertID implements resultReturner for MySQL and SQLite, whose
// drivers populate sql.Result.LastInsertId instead of supporting
// RETURNING.
func (c *SQLConnection) LastInsertID(ctx context.Context, query string, bindings []interface{}) (int64, error) {
	result, err := c.runExec(ctx, "INSERT", query, bindings)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}
