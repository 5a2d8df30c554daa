package script

import "errors"

// Errors for script operations.
var (
	// ErrStateClosed is returned when operating on a closed state.
	ErrStateClosed = errors.New("script: state is closed")

	// ErrTimeout is returned when a script runs past its deadline.
	ErrTimeout = errors.New("script: execution timeout")

	// ErrNotFunction is returned when a redirect name is not a Lua function.
	ErrNotFunction = errors.New("script: not a function")
)
