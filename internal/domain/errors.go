package domain

import "errors"

var (
	// ErrValidation marks input that fails domain validation (HTTP 400).
	ErrValidation = errors.New("validation error")
	// ErrNotFound marks a missing record (HTTP 404).
	ErrNotFound = errors.New("not found")
	// ErrConflict marks an operation rejected by the record's current state (HTTP 409).
	ErrConflict = errors.New("conflict")
)
