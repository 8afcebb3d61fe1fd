package database

import (
	"errors"
	"fmt"

	"github.com/nfrund/relay/internal/domain"
)

// Errors raised by the store drivers. Check them with errors.Is.
var (
	// ErrNotConnected is returned when the driver has no usable connection.
	ErrNotConnected = errors.New("database not connected")

	// ErrInvalidID is returned when a user or message ID has the wrong format
	// for the driver (for example a non-hex ID on the MongoDB store).
	ErrInvalidID = errors.New("invalid ID format")

	// ErrQueryFailed is returned when a query execution fails.
	ErrQueryFailed = errors.New("query execution failed")
)

// DBError represents a database error with additional context.
type DBError struct {
	err     error
	context string
	query   string
	params  map[string]any
}

// NewDBError creates a new DBError. context describes the operation that failed.
func NewDBError(err error, context string) *DBError {
	return &DBError{
		err:     err,
		context: context,
	}
}

// WithQuery adds the statement being executed.
func (e *DBError) WithQuery(query string) *DBError {
	e.query = query
	return e
}

// WithParams adds the statement parameters.
func (e *DBError) WithParams(params map[string]any) *DBError {
	e.params = params
	return e
}

// Error returns the error message.
func (e *DBError) Error() string {
	msg := e.context
	if e.query != "" {
		msg = fmt.Sprintf("%s\nQuery: %s", msg, e.query)
	}
	if len(e.params) > 0 {
		msg = fmt.Sprintf("%s\nParams: %+v", msg, e.params)
	}
	if e.err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.err)
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *DBError) Unwrap() error {
	return e.err
}

// Is reports every DBError as a persistence failure, so callers outside this
// package only need the domain sentinel.
func (e *DBError) Is(target error) bool {
	return target == domain.ErrPersistenceFailure
}

// WrapError adds context to err. An existing DBError keeps its query and
// gets the new context prepended.
func WrapError(err error, context string) *DBError {
	if err == nil {
		return nil
	}

	var dbErr *DBError
	if errors.As(err, &dbErr) {
		if dbErr.context != "" {
			context = fmt.Sprintf("%s: %s", context, dbErr.context)
		}
		dbErr.context = context
		return dbErr
	}

	return NewDBError(err, context)
}
