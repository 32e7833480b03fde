package ledger

import "errors"

// Domain rule violations. They reach callers wrapped in a
// *resource.ValidationError naming the offending field.
var (
	ErrInvalidUser        = errors.New("user does not exist")
	ErrInvalidCategory    = errors.New("category does not exist")
	ErrInvalidCommodity   = errors.New("commodity does not exist")
	ErrInvalidTransaction = errors.New("transaction does not exist")
	ErrInvalidDate        = errors.New("date does not parse")
	ErrInvalidSum         = errors.New("must be a non-zero amount")
	ErrInvalidPin         = errors.New("pin must be at least 4 characters")
)

// Session failures.
var (
	ErrWrongPin      = errors.New("wrong pin")
	ErrUnknownToken  = errors.New("unknown token")
	ErrExpiredToken  = errors.New("token has expired")
	ErrWrongSession  = errors.New("token does not match the active session")
	ErrNoTokenSecret = errors.New("jwt secret is not configured")
)
