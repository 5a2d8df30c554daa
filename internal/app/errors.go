package app

import "errors"

// Application errors.
var (
	// ErrQuit signals that the command loop should exit normally.
	ErrQuit = errors.New("quit requested")

	// ErrUnknownCommand indicates a command name that is not recognized.
	ErrUnknownCommand = errors.New("unknown command")

	// ErrUsage indicates a command with missing or extra arguments.
	ErrUsage = errors.New("usage")

	// ErrNotRunning indicates the application has been shut down.
	ErrNotRunning = errors.New("application not running")
)

// InitError reports a component that failed to start.
type InitError struct {
	Component string
	Err       error
}

func (e *InitError) Error() string {
	return "init " + e.Component + ": " + e.Err.Error()
}

func (e *InitError) Unwrap() error {
	return e.Err
}
