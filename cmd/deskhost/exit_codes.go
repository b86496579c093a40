package main

import (
	"errors"

	"github.com/deskhost/deskhost/internal/bootstrap"
	"github.com/deskhost/deskhost/internal/loaders"
)

// Exit codes let launchers and installers tell failure modes apart.
const (
	// ExitCodeSuccess covers normal termination and a hand-over to a running instance
	ExitCodeSuccess = 0

	// ExitCodeGeneralError indicates a generic error (default)
	ExitCodeGeneralError = 1

	// ExitCodeConfigError indicates configuration could not be loaded or validated
	ExitCodeConfigError = 2

	// ExitCodeBootstrapError indicates a loader aborted startup
	ExitCodeBootstrapError = 3

	// ExitCodePanic indicates an uncaught panic on the event loop
	ExitCodePanic = loaders.ExitCodePanic
)

// exitError carries an explicit exit code through cobra.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }

func (e *exitError) Unwrap() error { return e.err }

func withExitCode(code int, err error) error {
	if err == nil {
		return nil
	}
	return &exitError{code: code, err: err}
}

// exitCodeFor maps an error returned by a command to the process exit code.
func exitCodeFor(err error) int {
	if err == nil || errors.Is(err, bootstrap.ErrHalt) {
		return ExitCodeSuccess
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	var le *bootstrap.LoaderError
	if errors.As(err, &le) {
		return ExitCodeBootstrapError
	}
	return ExitCodeGeneralError
}

// exitCodeDescription returns a human-readable description of the exit code
func exitCodeDescription(code int) string {
	switch code {
	case ExitCodeSuccess:
		return "Success"
	case ExitCodeGeneralError:
		return "General error"
	case ExitCodeConfigError:
		return "Configuration error"
	case ExitCodeBootstrapError:
		return "Startup failed"
	case ExitCodePanic:
		return "Uncaught exception"
	default:
		return "Unknown error"
	}
}
