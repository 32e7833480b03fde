// Package engine implements the record store: one JSON document held in
// memory, addressed by slash separated paths and flushed to disk on every
// write.
package engine

import "errors"

var (
	// ErrNotFound is returned when no value exists at the requested path.
	ErrNotFound = errors.New("not found")
	// ErrInvalidPath is returned for malformed paths such as "/a//b".
	ErrInvalidPath = errors.New("invalid path")
	// ErrNotContainer is returned when a write needs to descend through a
	// value that is not an object.
	ErrNotContainer = errors.New("path crosses a non-object value")
	// ErrStoreFailure wraps every error raised by the backing file.
	ErrStoreFailure = errors.New("store failure")
)
