package shell

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/shirou/gopsutil/v4/process"
)

// parentProcessExe returns the executable of the process that started pysb.
var parentProcessExe = func() (string, error) {
	p, err := process.NewProcess(int32(os.Getppid()))
	if err != nil {
		return "", err
	}
	if exe, err := p.Exe(); err == nil && exe != "" {
		return exe, nil
	}
	// Exe needs /proc access that some sandboxes deny; the name is enough.
	return p.Name()
}

// DetectShell finds the user's shell. $SHELL wins when it names a supported
// shell; otherwise the parent process is inspected. The result's Shell is
// ShellUnknown when neither is usable.
func DetectShell() (*Detection, error) {
	if path := os.Getenv("SHELL"); path != "" {
		if s := shellFromPath(path); s.IsValid() {
			return &Detection{Shell: s, Source: SourceEnv, Path: path}, nil
		}
	}

	if exe, err := parentProcessExe(); err == nil {
		if s := shellFromPath(exe); s.IsValid() {
			return &Detection{Shell: s, Source: SourceParent, Path: exe}, nil
		}
	}

	return &Detection{Shell: ShellUnknown}, nil
}

// ParseShell maps a --shell flag value, a bare name or a path, to a
// supported shell.
func ParseShell(name string) (ShellType, error) {
	s := shellFromPath(name)
	if !s.IsValid() {
		return ShellUnknown, &UnsupportedShellError{Shell: name}
	}
	return s, nil
}

// shellFromPath maps an executable path to a shell. Login shells appear in
// process listings with a leading dash, e.g. "-zsh".
func shellFromPath(path string) ShellType {
	name := strings.TrimPrefix(strings.ToLower(filepath.Base(path)), "-")
	switch s := ShellType(name); s {
	case ShellBash, ShellZsh, ShellFish:
		return s
	default:
		return ShellUnknown
	}
}

// ValidateShell returns *UnsupportedShellError unless shell is supported.
func ValidateShell(shell ShellType) error {
	if !shell.IsValid() {
		return &UnsupportedShellError{Shell: shell.String()}
	}
	return nil
}

// SupportedShells lists the shells activation statements exist for.
func SupportedShells() []ShellType {
	return []ShellType{ShellBash, ShellZsh, ShellFish}
}
