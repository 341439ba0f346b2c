package apperrors

import "errors"

var (
	// ErrConfig marks a fatal misconfiguration detected at construction time.
	ErrConfig = errors.New("invalid configuration")
	// ErrNotInitialized is returned by every data source operation invoked before
	// the underlying pool was set up or after it was closed.
	ErrNotInitialized = errors.New("data source not initialized")
	// ErrNoRows is returned by Row.Scan when a query produced no row.
	ErrNoRows = errors.New("no rows in result set")
	// ErrNotWrapper is returned when unwrapping to a type the pool is not.
	ErrNotWrapper = errors.New("underlying pool is not of the requested type")
)
