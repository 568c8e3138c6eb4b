// Package relica provides a fluent, Laravel-style SQL query builder for Go
// with support for PostgreSQL, MySQL, and SQLite. It compiles chained method
// calls into dialect-specific SQL and an ordered bindings slice, and offers
// reflection-based struct scanning, prepared statement caching, and
// OpenTelemetry tracing out of the box.
package relica

import (
	"github.com/sqlforge/sqlforge/internal/core"
	"github.com/sqlforge/sqlforge/internal/logger"
	"github.com/sqlforge/sqlforge/internal/security"
	"github.com/sqlforge/sqlforge/internal/tracer"
)

type (
	// DB represents the main database connection with caching and tracing capabilities.
	DB = core.DB
	// Option is a functional option for configuring DB.
	Option = core.Option
	// Query is a raw-SQL passthrough that bypasses the fluent Builder.
	Query = core.Query
	// Builder constructs and compiles a fluent SQL query.
	Builder = core.Builder
	// Grammar compiles a Builder's IR into dialect-specific SQL and bindings.
	Grammar = core.Grammar
	// Tx represents a database transaction.
	Tx = core.Tx
	// TxOptions represents transaction options including isolation level.
	TxOptions = core.TxOptions
	// Row is a single result row keyed by column name.
	Row = core.Row
	// Page is the materialized result of Builder.Paginate.
	Page = core.Page
	// PaginatorEnvironment supplies the current page number to Builder.Paginate.
	PaginatorEnvironment = core.PaginatorEnvironment
	// Cache is the key/value store Builder.Cache/CacheAs memoizes results in.
	Cache = core.Cache
	// Params binds named {:name} placeholders in a raw Query.
	Params = core.Params
	// QueryEvent describes a single executed statement, passed to QueryHook.
	QueryEvent = core.QueryEvent
	// QueryHook is invoked after every statement a DB or Tx executes.
	QueryHook = core.QueryHook

	// Expression represents a database expression for building complex WHERE clauses.
	Expression = core.Expression
)

// Re-export core functions and types callers need to configure a DB.
var (
	Open   = core.Open
	NewDB  = core.NewDB
	WrapDB = core.WrapDB

	WithMaxOpenConns      = core.WithMaxOpenConns
	WithMaxIdleConns      = core.WithMaxIdleConns
	WithStmtCacheCapacity = core.WithStmtCacheCapacity
	WithLogger            = core.WithLogger
	WithSlogLogger        = core.WithSlogLogger
	WithSensitiveFields   = core.WithSensitiveFields
	WithTracer            = core.WithTracer
	WithValidator         = core.WithValidator
	WithAuditor           = core.WithAuditor
	WithCache             = core.WithCache
	WithPaginator         = core.WithPaginator
	WithProcessor         = core.WithProcessor
	WithQueryHook         = core.WithQueryHook

	NewTTLCacheManager  = core.NewTTLCacheManager
	NewDefaultPaginator = core.NewDefaultPaginator

	// NewExp wraps a raw SQL fragment as an Expression for use anywhere a
	// Where/Having/Insert/Update value is accepted.
	NewExp = core.NewExp
)

// Errors re-exported for callers that want to errors.Is against them.
var (
	ErrNoRows             = core.ErrNoRows
	ErrTxDone             = core.ErrTxDone
	ErrUnsupportedDialect = core.ErrUnsupportedDialect
	ErrUnknownMethod      = core.ErrUnknownMethod
	ErrBadArgument        = core.ErrBadArgument
	ErrUnsupportedFeature = core.ErrUnsupportedFeature
)

type (
	// Logger is the structured logging interface query execution logs through.
	Logger = logger.Logger
	// Sanitizer masks sensitive query parameters before they reach a Logger.
	Sanitizer = logger.Sanitizer
	// Tracer is the distributed tracing interface query execution spans through.
	Tracer = tracer.Tracer
	// Validator checks raw SQL/params against a dangerous-pattern list.
	Validator = security.Validator
	// Auditor writes structured audit events for every database operation.
	Auditor = security.Auditor
)

// Re-export observability constructors so callers don't need to import
// the internal packages directly.
var (
	NewSlogAdapter = logger.NewSlogAdapter
	NewSanitizer   = logger.NewSanitizer
	NewOtelTracer  = tracer.NewOtelTracer
	NewValidator   = security.NewValidator
	NewAuditor     = security.NewAuditor
	WithStrict     = security.WithStrict

	AuditNone   = security.AuditNone
	AuditWrites = security.AuditWrites
	AuditReads  = security.AuditReads
	AuditAll    = security.AuditAll
)
