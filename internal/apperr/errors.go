// Package apperr defines sentinel errors shared across the application.
package apperr

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrAmbiguous     = errors.New("ambiguous title")
	ErrInvalidFilter = errors.New("invalid filter")
)
