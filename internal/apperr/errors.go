// Package apperr defines the sentinel errors shared across packages.
package apperr

import "errors"

var (
	ErrNotFound            = errors.New("not found")
	ErrInvalidEntry        = errors.New("invalid entry")
	ErrMalformedDiagnostic = errors.New("malformed diagnostic")
	ErrInterpreter         = errors.New("interpreter failed")
	ErrOutputWrite         = errors.New("output write failed")
)
