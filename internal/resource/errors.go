// Package resource turns a partition into a typed resource: CRUD operations
// over the audit layer, and a controller that checks parameters, actors,
// existence and domain rules before answering with a schema.Result.
package resource

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidParams = errors.New("invalid params")
	ErrUnknownUser   = errors.New("unknown user")
	ErrNotExist      = errors.New("resource does not exist")
	ErrAlreadyExist  = errors.New("resource already exists")
	// ErrValidation matches every *ValidationError.
	ErrValidation = errors.New("validation failed")
)

// ValidationError reports a resource field that broke a domain rule.
type ValidationError struct {
	Field string
	Err   error
}

// Invalid builds a ValidationError for field.
func Invalid(field string, err error) *ValidationError {
	return &ValidationError{Field: field, Err: err}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %v", e.Field, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }
