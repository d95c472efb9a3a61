package registry

import "errors"

var (
	// ErrConfiguration is returned when an office has a missing or malformed code.
	// Not retryable.
	ErrConfiguration = errors.New("registry configuration error")

	// ErrOverflow is returned when a sequence no longer fits the fixed-width
	// registry number for its office and year. Not retryable.
	ErrOverflow = errors.New("registry sequence overflow")
)
