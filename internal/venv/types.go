// Package venv manages named virtual environments bound to installed runtimes.
//
// Every environment lives in <venvs>/<name>. The directory is reserved with a
// single mkdir, populated by the runtime's own "python -m venv", and published
// by atomically writing a marker file. Directories without a marker are
// still being created (or were abandoned) and are never listed.
package venv

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/ZebulonRouseFrantzich/pysb/internal/registry"
)

var (
	// ErrInvalidName is returned for names that are not usable directory names.
	ErrInvalidName = errors.New("invalid environment name")
	// ErrDuplicateName is returned when an environment with the name exists.
	ErrDuplicateName = errors.New("environment already exists")
	// ErrNotFound is returned when no environment has the name.
	ErrNotFound = errors.New("environment not found")
	// ErrCreation is returned when the runtime fails to create the environment.
	ErrCreation = errors.New("environment creation failed")
	// ErrPackageInstall is returned when installing requested packages fails.
	ErrPackageInstall = errors.New("package installation failed")
)

// MarkerFile records an environment's binding and marks it ready.
const MarkerFile = "pysb-env.json"

// Marker is the content of MarkerFile.
type Marker struct {
	Name      string    `json:"name"`
	Version   string    `json:"version"`
	CreatedAt time.Time `json:"created_at"`
}

// Environment is a ready virtual environment.
type Environment struct {
	Name        string    `json:"name" yaml:"name"`
	Version     string    `json:"version" yaml:"version"`
	Root        string    `json:"root" yaml:"root"`
	Interpreter string    `json:"interpreter" yaml:"interpreter"`
	CreatedAt   time.Time `json:"created_at" yaml:"created_at"`
	// Broken is true when the bound runtime is no longer installed.
	Broken bool `json:"broken" yaml:"broken"`
}

// BinDir returns the directory holding the environment's executables.
func (e *Environment) BinDir() string {
	return filepath.Join(e.Root, "bin")
}

// PackageError reports packages that failed to install into a created
// environment. The environment itself is left in place.
type PackageError struct {
	Env      string
	Packages []string
	Output   string
	Err      error
}

func (e *PackageError) Error() string {
	msg := fmt.Sprintf("install packages %s into %s: %v", strings.Join(e.Packages, " "), e.Env, e.Err)
	if out := lastLines(e.Output, 5); out != "" {
		msg += "\n" + out
	}
	return msg
}

// Unwrap lets errors.Is match both ErrPackageInstall and the cause.
func (e *PackageError) Unwrap() []error {
	return []error{ErrPackageInstall, e.Err}
}

// RuntimeLookup finds installed runtimes. *registry.Registry satisfies it.
type RuntimeLookup interface {
	Find(version string) (*registry.Runtime, error)
}

// lastLines returns the last n non-empty lines of s.
func lastLines(s string, n int) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
