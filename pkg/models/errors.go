package models

import "errors"

// Domain error taxonomy. Callers match with errors.Is; the HTTP layer
// maps these to status codes.
var (
	// ErrForbidden marks a non-member acting on a group.
	ErrForbidden = errors.New("forbidden")
	// ErrNotFound marks an unknown group, message or parent.
	ErrNotFound = errors.New("not found")
	// ErrInvalid marks a submission rejected by validation.
	ErrInvalid = errors.New("invalid")
)
