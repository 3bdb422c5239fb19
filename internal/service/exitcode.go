package service

import (
	"context"
	"errors"
	"os/exec"

	"github.com/ZebulonRouseFrantzich/pysb/internal/catalog"
	"github.com/ZebulonRouseFrantzich/pysb/internal/config"
	"github.com/ZebulonRouseFrantzich/pysb/internal/download"
	"github.com/ZebulonRouseFrantzich/pysb/internal/install"
	"github.com/ZebulonRouseFrantzich/pysb/internal/lock"
	"github.com/ZebulonRouseFrantzich/pysb/internal/registry"
	"github.com/ZebulonRouseFrantzich/pysb/internal/shell"
	"github.com/ZebulonRouseFrantzich/pysb/internal/venv"
)

// Process exit codes.
const (
	ExitOK             = 0
	ExitGeneric        = 1
	ExitUsage          = 2
	ExitNotFound       = 3
	ExitNetwork        = 4
	ExitIntegrity      = 5
	ExitConflict       = 6
	ExitInUse          = 7
	ExitExtract        = 8
	ExitDuplicateName  = 9
	ExitCreation       = 10
	ExitPackageInstall = 11
	ExitInterrupted    = 130
)

// exitCodes is checked in order; the first match wins.
var exitCodes = []struct {
	target error
	code   int
}{
	{catalog.ErrInvalidVersion, ExitUsage},
	{catalog.ErrAmbiguous, ExitUsage},
	{venv.ErrInvalidName, ExitUsage},
	{config.ErrUnknownKey, ExitUsage},
	{download.ErrIntegrity, ExitIntegrity},
	{download.ErrNetwork, ExitNetwork},
	{catalog.ErrNotFound, ExitNotFound},
	{registry.ErrNotInstalled, ExitNotFound},
	{venv.ErrNotFound, ExitNotFound},
	{config.ErrNotSet, ExitNotFound},
	{install.ErrConflict, ExitConflict},
	{install.ErrAlreadyInstalled, ExitConflict},
	{lock.ErrLockExists, ExitConflict},
	{registry.ErrInUse, ExitInUse},
	{install.ErrExtract, ExitExtract},
	{venv.ErrDuplicateName, ExitDuplicateName},
	{venv.ErrCreation, ExitCreation},
	{venv.ErrPackageInstall, ExitPackageInstall},
	{context.Canceled, ExitInterrupted},
}

// ExitCode maps an operation error to the process exit status.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}

	var unsupported *shell.UnsupportedShellError
	var invalid *config.ValidationError
	if errors.As(err, &unsupported) || errors.As(err, &invalid) {
		return ExitUsage
	}

	for _, c := range exitCodes {
		if errors.Is(err, c.target) {
			return c.code
		}
	}

	// A command run inside an environment passes its own status through.
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode() > 0 {
		return exitErr.ExitCode()
	}
	return ExitGeneric
}
