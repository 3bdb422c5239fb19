package shell

import (
	"fmt"
	"strings"
)

// ShellType names a shell pysb can emit activation statements for.
type ShellType string

const (
	ShellBash    ShellType = "bash"
	ShellZsh     ShellType = "zsh"
	ShellFish    ShellType = "fish"
	ShellUnknown ShellType = "unknown"
)

func (s ShellType) String() string {
	return string(s)
}

// IsValid reports whether activation statements can be emitted for s.
func (s ShellType) IsValid() bool {
	switch s {
	case ShellBash, ShellZsh, ShellFish:
		return true
	default:
		return false
	}
}

// IsPOSIX reports whether the shell understands POSIX sh syntax.
func (s ShellType) IsPOSIX() bool {
	return s == ShellBash || s == ShellZsh
}

// Detection is the outcome of DetectShell.
type Detection struct {
	Shell ShellType
	// Source is where the shell was found: SourceEnv, SourceParent or empty.
	Source string
	// Path is the shell executable, when known.
	Path string
}

// Detection sources.
const (
	SourceEnv    = "$SHELL"
	SourceParent = "parent process"
)

// UnsupportedShellError is returned for shells without activation support.
type UnsupportedShellError struct {
	Shell string
}

func (e *UnsupportedShellError) Error() string {
	names := make([]string, 0, 3)
	for _, s := range SupportedShells() {
		names = append(names, s.String())
	}
	return fmt.Sprintf("unsupported shell %q (supported: %s)", e.Shell, strings.Join(names, ", "))
}

// QuoteError reports a value that cannot be represented in the target shell.
type QuoteError struct {
	Shell ShellType
	Value string
	Cause error
}

func (e *QuoteError) Error() string {
	return fmt.Sprintf("cannot quote %q for %s: %v", e.Value, e.Shell, e.Cause)
}

func (e *QuoteError) Unwrap() error {
	return e.Cause
}
