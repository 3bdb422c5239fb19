package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ZebulonRouseFrantzich/pysb/internal/service"
)

// ExitError signals a specific exit code from a RunE handler. A nil Err exits
// silently.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("exit status %d", e.Code)
}

// Unwrap returns the underlying error, if any.
func (e *ExitError) Unwrap() error {
	return e.Err
}

// usageError marks err as a command-line mistake.
func usageError(err error) error {
	return &ExitError{Code: service.ExitUsage, Err: err}
}

// exitCode maps an error returned by the command tree to the process status.
func exitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	// cobra reports unknown subcommands and missing required flags as plain errors.
	if msg := err.Error(); strings.HasPrefix(msg, "unknown command") || strings.HasPrefix(msg, "required flag") {
		return service.ExitUsage
	}
	return service.ExitCode(err)
}

// silent reports whether err was already reported to the user.
func silent(err error) bool {
	var exitErr *ExitError
	return errors.As(err, &exitErr) && exitErr.Err == nil
}
