package search

import (
	"errors"
	"fmt"
)

// Sentinel errors shared by the engine and its adapters.
var (
	// ErrNoQueryVector means a vector search was attempted without a
	// usable query vector.
	ErrNoQueryVector = errors.New("no query vector available")

	// ErrInvalidQuery means the request itself is malformed (empty query,
	// unparseable facet value).
	ErrInvalidQuery = errors.New("invalid search query")

	// ErrIndexingFailed means a document could not be written to an index.
	ErrIndexingFailed = errors.New("failed to index document")

	// ErrBackendUnavailable means an external search backend could not be
	// reached.
	ErrBackendUnavailable = errors.New("search backend unavailable")

	// ErrNotFound means the requested object is absent from the index.
	ErrNotFound = errors.New("document not found in search index")
)

// Error wraps a failure with the operation that produced it.
type Error struct {
	// Op is the operation that failed ("Search", "Index", "Delete").
	Op string

	// Msg carries optional human context.
	Msg string

	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Msg != "" {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for errors.Is / errors.As.
func (e *Error) Unwrap() error {
	return e.Err
}
