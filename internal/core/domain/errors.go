package domain

import "errors"

var (
	// ErrNotFound is returned for unknown run IDs.
	ErrNotFound = errors.New("not_found")

	// ErrInvalidRequest is returned when a run cannot be created from the request.
	ErrInvalidRequest = errors.New("invalid_request")

	// ErrInvalidTransition is returned when a run state change is not allowed.
	ErrInvalidTransition = errors.New("invalid state transition")
)
