package core

import (
	"context"
	"database/sql"
	"time"

	"github.com/sqlforge/sqlforge/internal/tracer"
)

// Query is a raw-SQL passthrough that bypasses the fluent Builder
// entirely, for statements that don't fit the IR (stored procedure
// calls, vendor-specific DDL, hand-tuned reporting queries). It scans
// into caller-supplied structs via reflection rather than into Row
// maps.
type Query struct {
	sql    string
	params []interface{}
	db      *DB
	tx      *sql.Tx // non-nil when scoped to a transaction
	ctx     context.Context
	bindErr error // set by Bind when named-parameter resolution fails
}

// Bind attaches parameters to the query and returns it for chaining.
// A single Params map binds by {:name} placeholder; anything else
// binds positionally in argument order.
func (q *Query) Bind(params ...interface{}) *Query {
	if len(params) == 1 {
		if named, ok := params[0].(Params); ok {
			sqlStr, paramNames := q.db.processSQL(q.sql)
			values, err := bindParams(named, paramNames)
			if err != nil {
				q.bindErr = err
				return q
			}
			q.sql = sqlStr
			q.params = values
			return q
		}
	}
	q.params = params
	return q
}

// appendSQL appends a suffix to the SQL text, e.g. a RETURNING clause
// a caller wants stitched onto a hand-written INSERT.
func (q *Query) appendSQL(suffix string) {
	q.sql += suffix
}

func (q *Query) validate() error {
	if q.bindErr != nil {
		return q.bindErr
	}
	if q.db.validator == nil {
		return nil
	}
	if err := q.db.validator.ValidateQuery(q.sql); err != nil {
		if q.db.auditor != nil {
			q.db.auditor.LogSecurityEvent(q.context(), "query_blocked", q.sql, err)
		}
		return err
	}
	if err := q.db.validator.ValidateParams(q.params); err != nil {
		if q.db.auditor != nil {
			q.db.auditor.LogSecurityEvent(q.context(), "params_blocked", q.sql, err)
		}
		return err
	}
	return nil
}

func (q *Query) context() context.Context {
	if q.ctx != nil {
		return q.ctx
	}
	return context.Background()
}

// prepareStatement prepares the query's SQL, using the transaction or
// the shared statement cache. Transactions bypass the cache to avoid
// handing out a statement another caller might close concurrently.
func (q *Query) prepareStatement(ctx context.Context) (*sql.Stmt, bool, error) {
	if q.tx != nil {
		stmt, err := q.tx.PrepareContext(ctx, q.sql)
		if err != nil {
			return nil, false, err
		}
		return stmt, true, nil
	}

	if stmt, ok := q.db.stmtCache.Get(q.sql); ok {
		return stmt, false, nil
	}

	stmt, err := q.db.sqlDB.PrepareContext(ctx, q.sql)
	if err != nil {
		return nil, false, err
	}
	q.db.stmtCache.Set(q.sql, stmt)
	return stmt, false, nil
}

func (q *Query) logExecutionResult(result sql.Result, err error, elapsed time.Duration) {
	if q.db.logger == nil {
		return
	}
	maskedParams := q.db.sanitizer.FormatParams(q.db.sanitizer.MaskParams(q.sql, q.params))
	if err != nil {
		q.db.logger.Error("query execution failed",
			"sql", q.sql, "params", maskedParams, "duration_ms", elapsed.Milliseconds(),
			"database", q.db.driverName, "error", err,
		)
		return
	}
	var rowsAffected int64
	if result != nil {
		rowsAffected, _ = result.RowsAffected()
	}
	q.db.logger.Info("query executed",
		"sql", q.sql, "params", maskedParams, "duration_ms", elapsed.Milliseconds(),
		"rows_affected", rowsAffected, "database", q.db.driverName,
	)
}

// Execute runs the query and returns the raw sql.Result, for
// INSERT/UPDATE/DELETE statements written by hand instead of through
// the Builder.
func (q *Query) Execute() (sql.Result, error) {
	ctx := q.context()

	if err := q.validate(); err != nil {
		return nil, err
	}

	ctx, span := q.db.tracer.StartSpan(ctx, "sqlforge.query.execute")
	defer span.End()

	start := time.Now()
	stmt, needsClose, err := q.prepareStatement(ctx)
	if err != nil {
		if q.db.logger != nil {
			q.db.logger.Error("query preparation failed",
				"sql", q.sql,
				"params", q.db.sanitizer.FormatParams(q.db.sanitizer.MaskParams(q.sql, q.params)),
				"error", err,
			)
		}
		return nil, err
	}
	if needsClose {
		defer func() { _ = stmt.Close() }()
	}

	result, err := stmt.ExecContext(ctx, q.params...)
	elapsed := time.Since(start)
	q.logExecutionResult(result, err, elapsed)

	var rowsAffected int64
	if result != nil {
		rowsAffected, _ = result.RowsAffected()
	}
	tracer.AddQueryAttributes(span, &tracer.QueryMetadata{
		SQL: q.sql, Args: q.params, Duration: elapsed, RowsAffected: rowsAffected, Error: err,
		Database: q.db.driverName, Operation: tracer.DetectOperation(q.sql),
	})
	if q.db.auditor != nil {
		q.db.auditor.LogOperation(ctx, tracer.DetectOperation(q.sql), q.sql, q.params, result, err, elapsed)
	}
	q.db.invokeHook(ctx, QueryEvent{
		SQL: q.sql, Args: q.params, Duration: elapsed, RowsAffected: rowsAffected, Error: err,
		Operation: tracer.DetectOperation(q.sql),
	})

	return result, err
}

// One fetches a single row into dest, a pointer to struct.
func (q *Query) One(dest interface{}) error {
	ctx := q.context()

	if err := q.validate(); err != nil {
		return err
	}

	ctx, span := q.db.tracer.StartSpan(ctx, "sqlforge.query.one")
	defer span.End()

	start := time.Now()
	stmt, needsClose, err := q.prepareStatement(ctx)
	if err != nil {
		if q.db.logger != nil {
			q.db.logger.Error("query preparation failed",
				"sql", q.sql,
				"params", q.db.sanitizer.FormatParams(q.db.sanitizer.MaskParams(q.sql, q.params)),
				"error", err,
			)
		}
		return err
	}
	if needsClose {
		defer func() { _ = stmt.Close() }()
	}

	rows, err := stmt.QueryContext(ctx, q.params...)
	if err != nil {
		q.finishOne(ctx, span, start, err)
		return err
	}
	defer func() { _ = rows.Close() }()

	if !rows.Next() {
		q.finishOne(ctx, span, start, sql.ErrNoRows)
		return sql.ErrNoRows
	}

	if err := globalScanner.scanRow(rows, dest); err != nil {
		q.finishOne(ctx, span, start, err)
		return err
	}

	q.finishOne(ctx, span, start, nil)
	return nil
}

func (q *Query) finishOne(ctx context.Context, span tracer.Span, start time.Time, err error) {
	elapsed := time.Since(start)
	if q.db.logger != nil {
		maskedParams := q.db.sanitizer.FormatParams(q.db.sanitizer.MaskParams(q.sql, q.params))
		switch {
		case err == sql.ErrNoRows:
			q.db.logger.Warn("query returned no rows", "sql", q.sql, "params", maskedParams, "duration_ms", elapsed.Milliseconds())
		case err != nil:
			q.db.logger.Error("query execution failed", "sql", q.sql, "params", maskedParams, "duration_ms", elapsed.Milliseconds(), "error", err)
		default:
			q.db.logger.Info("query executed", "sql", q.sql, "params", maskedParams, "duration_ms", elapsed.Milliseconds(), "rows", 1, "database", q.db.driverName)
		}
	}
	tracer.AddQueryAttributes(span, &tracer.QueryMetadata{
		SQL: q.sql, Args: q.params, Duration: elapsed, Error: err,
		Database: q.db.driverName, Operation: tracer.DetectOperation(q.sql),
	})
	if q.db.auditor != nil {
		q.db.auditor.LogOperation(ctx, "SELECT", q.sql, q.params, nil, err, elapsed)
	}
	q.db.invokeHook(ctx, QueryEvent{SQL: q.sql, Args: q.params, Duration: elapsed, Error: err, Operation: "SELECT"})
}

// All fetches every row into dest, a pointer to a slice of struct or
// *struct.
func (q *Query) All(dest interface{}) error {
	ctx := q.context()

	if err := q.validate(); err != nil {
		return err
	}

	ctx, span := q.db.tracer.StartSpan(ctx, "sqlforge.query.all")
	defer span.End()

	start := time.Now()
	stmt, needsClose, err := q.prepareStatement(ctx)
	if err != nil {
		if q.db.logger != nil {
			q.db.logger.Error("query preparation failed",
				"sql", q.sql,
				"params", q.db.sanitizer.FormatParams(q.db.sanitizer.MaskParams(q.sql, q.params)),
				"error", err,
			)
		}
		return err
	}
	if needsClose {
		defer func() { _ = stmt.Close() }()
	}

	rows, err := stmt.QueryContext(ctx, q.params...)
	if err != nil {
		q.finishAll(ctx, span, start, err)
		return err
	}
	defer func() { _ = rows.Close() }()

	if err := globalScanner.scanRows(rows, dest); err != nil {
		q.finishAll(ctx, span, start, err)
		return err
	}

	q.finishAll(ctx, span, start, nil)
	return nil
}

func (q *Query) finishAll(ctx context.Context, span tracer.Span, start time.Time, err error) {
	elapsed := time.Since(start)
	if q.db.logger != nil {
		maskedParams := q.db.sanitizer.FormatParams(q.db.sanitizer.MaskParams(q.sql, q.params))
		if err != nil {
			q.db.logger.Error("query execution failed", "sql", q.sql, "params", maskedParams, "duration_ms", elapsed.Milliseconds(), "error", err)
		} else {
			q.db.logger.Info("query executed", "sql", q.sql, "params", maskedParams, "duration_ms", elapsed.Milliseconds(), "database", q.db.driverName)
		}
	}
	tracer.AddQueryAttributes(span, &tracer.QueryMetadata{
		SQL: q.sql, Args: q.params, Duration: elapsed, Error: err,
		Database: q.db.driverName, Operation: tracer.DetectOperation(q.sql),
	})
	if q.db.auditor != nil {
		q.db.auditor.LogOperation(ctx, "SELECT", q.sql, q.params, nil, err, elapsed)
	}
	q.db.invokeHook(ctx, QueryEvent{SQL: q.sql, Args: q.params, Duration: elapsed, Error: err, Operation: "SELECT"})
}
