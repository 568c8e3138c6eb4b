// Package core provides the core database functionality including connection management,
// query building, statement caching, and result scanning for sqlforge.
package core

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/sqlforge/sqlforge/internal/cache"
	"github.com/sqlforge/sqlforge/internal/dialects"
	"github.com/sqlforge/sqlforge/internal/logger"
	"github.com/sqlforge/sqlforge/internal/security"
	"github.com/sqlforge/sqlforge/internal/tracer"
)

// DB owns the underlying *sql.DB and wires together the grammar,
// processor, connection, and observability layers a Builder compiles
// and executes against.
type DB struct {
	sqlDB      *sql.DB
	driverName string
	dialect    dialects.Dialect
	grammar    Grammar
	processor  Processor
	conn       *SQLConnection
	stmtCache  *cache.StmtCache

	cacheManager Cache
	paginator    PaginatorEnvironment

	logger    logger.Logger
	sanitizer *logger.Sanitizer
	tracer    tracer.Tracer
	validator *security.Validator
	auditor   *security.Auditor
	queryHook QueryHook

	ctx context.Context
}

// Tx represents a transaction-scoped handle. Builders obtained from Tx
// execute against the transaction instead of the shared connection
// pool.
type Tx struct {
	db  *DB
	tx  *sql.Tx
	ctx context.Context
}

// TxOptions mirrors database/sql.TxOptions for callers who don't want
// to import database/sql themselves.
type TxOptions struct {
	Isolation sql.IsolationLevel
	ReadOnly  bool
}

// Option configures a DB at construction time.
type Option func(*DB)

// WithMaxOpenConns sets the maximum number of open connections.
func WithMaxOpenConns(n int) Option {
	return func(db *DB) { db.sqlDB.SetMaxOpenConns(n) }
}

// WithMaxIdleConns sets the maximum number of idle connections.
func WithMaxIdleConns(n int) Option {
	return func(db *DB) { db.sqlDB.SetMaxIdleConns(n) }
}

// WithStmtCacheCapacity sets the prepared statement cache capacity.
func WithStmtCacheCapacity(capacity int) Option {
	return func(db *DB) {
		db.stmtCache = cache.NewStmtCacheWithCapacity(capacity)
		db.conn.stmtCache = db.stmtCache
	}
}

// WithLogger wires a structured logger; all query execution, including
// inside transactions, logs through it.
func WithLogger(l logger.Logger) Option {
	return func(db *DB) {
		db.logger = l
		db.conn.logger = l
	}
}

// WithSlogLogger wires a log/slog.Logger via the adapter.
func WithSlogLogger(l *slog.Logger) Option {
	return WithLogger(logger.NewSlogAdapter(l))
}

// WithSensitiveFields configures which parameter field names get
// masked in logs; see internal/logger.Sanitizer.
func WithSensitiveFields(fields ...string) Option {
	return func(db *DB) {
		db.sanitizer = logger.NewSanitizer(fields)
		db.conn.sanitizer = db.sanitizer
	}
}

// WithTracer wires a distributed tracer around every statement.
func WithTracer(t tracer.Tracer) Option {
	return func(db *DB) {
		db.tracer = t
		db.conn.tracer = t
	}
}

// WithValidator wires a Validator against the raw-SQL passthrough
// path (NewQuery); the Builder's own compiled output is never
// validated since legitimate UNION/OR/AND usage would false-positive
// against the same dangerous-pattern list.
func WithValidator(v *security.Validator) Option {
	return func(db *DB) { db.validator = v }
}

// WithAuditor wires structured audit logging of every operation that
// passes through the connection.
func WithAuditor(a *security.Auditor) Option {
	return func(db *DB) {
		db.auditor = a
		db.conn.auditor = a
	}
}

// WithCache wires a result cache that Builder.Cache/CacheAs opts into
// per-query.
func WithCache(c Cache) Option {
	return func(db *DB) {
		db.cacheManager = c
		db.conn.cacheManager = c
	}
}

// WithPaginator overrides the paginator environment Builder.Paginate
// consults for the current page number.
func WithPaginator(p PaginatorEnvironment) Option {
	return func(db *DB) {
		db.paginator = p
		db.conn.paginator = p
	}
}

// WithProcessor overrides the default row/insert-id post-processing.
func WithProcessor(p Processor) Option {
	return func(db *DB) { db.processor = p }
}

// WithQueryHook registers a callback invoked after every statement the
// connection executes, for logging, metrics, or debugging beyond what
// the structured logger/tracer/auditor wiring already covers.
func WithQueryHook(hook QueryHook) Option {
	return func(db *DB) {
		db.queryHook = hook
		db.conn.queryHook = hook
	}
}

// NewDB opens a *sql.DB for driverName/dsn and wires the grammar and
// connection layers matching that driver. driverName must be one of
// "postgres", "mysql", "sqlite".
func NewDB(driverName, dsn string) (*DB, error) {
	sqlDB, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, err
	}

	grammar, err := NewGrammar(driverName)
	if err != nil {
		_ = sqlDB.Close()
		return nil, err
	}

	dialect := dialects.GetDialect(driverName)
	stmtCache := cache.NewStmtCache()
	conn := NewSQLConnection(driverName, driverName, dialect, sqlDB, stmtCache)

	return &DB{
		sqlDB:      sqlDB,
		driverName: driverName,
		dialect:    dialect,
		grammar:    grammar,
		processor:  DefaultProcessor{},
		conn:       conn,
		stmtCache:  stmtCache,
		logger:     &logger.NoopLogger{},
		sanitizer:  logger.NewSanitizer(nil),
		tracer:     &tracer.NoopTracer{},
	}, nil
}

// Open creates a new DB and applies options.
func Open(driverName, dsn string, opts ...Option) (*DB, error) {
	db, err := NewDB(driverName, dsn)
	if err != nil {
		return nil, err
	}
	for _, opt := range opts {
		opt(db)
	}
	return db, nil
}

// WrapDB builds a DB around an already-open *sql.DB, e.g. one obtained
// from a connection pooling layer the caller manages directly.
func WrapDB(driverName string, sqlDB *sql.DB, opts ...Option) (*DB, error) {
	grammar, err := NewGrammar(driverName)
	if err != nil {
		return nil, err
	}

	dialect := dialects.GetDialect(driverName)
	stmtCache := cache.NewStmtCache()
	conn := NewSQLConnection(driverName, driverName, dialect, sqlDB, stmtCache)

	db := &DB{
		sqlDB:      sqlDB,
		driverName: driverName,
		dialect:    dialect,
		grammar:    grammar,
		processor:  DefaultProcessor{},
		conn:       conn,
		stmtCache:  stmtCache,
		logger:     &logger.NoopLogger{},
		sanitizer:  logger.NewSanitizer(nil),
		tracer:     &tracer.NoopTracer{},
	}
	for _, opt := range opts {
		opt(db)
	}
	return db, nil
}

// Close releases all database resources.
func (db *DB) Close() error {
	db.stmtCache.Clear()
	return db.sqlDB.Close()
}

// WithContext returns a shallow copy of db that threads ctx through
// Builder/Query calls that don't take one explicitly.
func (db *DB) WithContext(ctx context.Context) *DB {
	newDB := *db
	newDB.ctx = ctx
	return &newDB
}

// Builder returns a new query builder against the shared connection
// pool.
func (db *DB) Builder() *Builder {
	return NewBuilder(db.conn, db.grammar, db.processor)
}

// NewQuery starts a raw-SQL passthrough query (bypassing the fluent
// builder entirely), validated against the dangerous-pattern list
// when a Validator is configured.
func (db *DB) NewQuery(sqlStr string) *Query {
	return &Query{sql: sqlStr, db: db, ctx: db.ctx}
}

// Begin starts a transaction with default options.
func (db *DB) Begin(ctx context.Context) (*Tx, error) {
	return db.BeginTx(ctx, nil)
}

// BeginTx starts a transaction with the given isolation/read-only
// options.
func (db *DB) BeginTx(ctx context.Context, opts *TxOptions) (*Tx, error) {
	var sqlOpts *sql.TxOptions
	if opts != nil {
		sqlOpts = &sql.TxOptions{Isolation: opts.Isolation, ReadOnly: opts.ReadOnly}
	}

	tx, err := db.sqlDB.BeginTx(ctx, sqlOpts)
	if err != nil {
		return nil, err
	}
	return &Tx{db: db, tx: tx, ctx: ctx}, nil
}

// Builder returns a query builder scoped to this transaction.
func (tx *Tx) Builder() *Builder {
	return NewBuilder(tx.db.conn.withTx(tx.tx), tx.db.grammar, tx.db.processor)
}

// NewQuery starts a raw-SQL passthrough query scoped to this
// transaction.
func (tx *Tx) NewQuery(sqlStr string) *Query {
	return &Query{sql: sqlStr, db: tx.db, tx: tx.tx, ctx: tx.ctx}
}

// Commit commits the transaction.
func (tx *Tx) Commit() error { return tx.tx.Commit() }

// Rollback rolls back the transaction.
func (tx *Tx) Rollback() error { return tx.tx.Rollback() }
