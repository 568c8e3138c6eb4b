package core

import "errors"

// Predefined errors returned by builder operations.
var (
	// ErrNoRows is returned when a terminal operation that expects a row finds none.
	ErrNoRows = errors.New("no rows in result set")
	// ErrTxDone is returned when operating on an already committed or rolled back transaction.
	ErrTxDone = errors.New("transaction has already been committed or rolled back")
	// ErrUnsupportedDialect is returned when an unsupported database dialect is specified.
	ErrUnsupportedDialect = errors.New("unsupported database dialect")
	// ErrUnknownMethod is returned by WhereDynamic when the suffix cannot be
	// resolved to a column/operator pair.
	ErrUnknownMethod = errors.New("no such dynamic where method")
	// ErrBadArgument is returned when a fluent call receives a malformed argument,
	// e.g. Chunk with a non-positive size.
	ErrBadArgument = errors.New("bad argument")
	// ErrUnsupportedFeature is returned when a grammar is asked to compile a
	// clause its dialect cannot express, e.g. RETURNING on MySQL.
	ErrUnsupportedFeature = errors.New("feature not supported by this dialect")
)

// WrapError wraps an error with additional context message, preserving Unwrap.
func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return &wrappedError{msg: message, err: err}
}

type wrappedError struct {
	msg string
	err error
}

func (e *wrappedError) Error() string {
	return e.msg + ": " + e.err.Error()
}

func (e *wrappedError) Unwrap() error {
	return e.err
}
