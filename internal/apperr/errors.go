// Package apperr defines the error kinds shared across layers. Domain errors
// wrap one of these so transports can map them without knowing every sentinel.
package apperr

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrAlreadyExists = errors.New("already exists")
	ErrUnavailable   = errors.New("unavailable")
)
