// Package registry tracks the runtimes installed under a versions root.
//
// The directory layout is the source of truth:
//
//	<versions>/
//	  3.12.2/              published runtime (bin/python3, lib/, pysb-runtime.json)
//	  .staging-<v>-<id>/   extraction in progress, never listed
//	  .trash-<v>-<id>/     runtime being removed or replaced, never listed
//	  .locks/<v>.lock      per-version lock files
//	  .index.json          listing cache, discarded when the layout changes
//
// A version counts as installed only when its directory name is an exact
// version and it contains an executable bin/python3.
package registry

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ZebulonRouseFrantzich/pysb/internal/catalog"
)

var (
	// ErrNotInstalled is returned when a version has no usable installation.
	ErrNotInstalled = errors.New("version not installed")
	// ErrInUse is returned when removing a version that environments still use.
	ErrInUse = errors.New("version in use")
)

const (
	// MetadataFile is written into every runtime root before it is published.
	MetadataFile = "pysb-runtime.json"
	// LocksDirName holds per-version lock files.
	LocksDirName = ".locks"

	indexFile     = ".index.json"
	stagingPrefix = ".staging-"
	trashPrefix   = ".trash-"
)

// Metadata describes where an installed runtime came from.
type Metadata struct {
	Version     string    `json:"version"`
	Platform    string    `json:"platform"`
	Variant     string    `json:"variant"`
	BuildDate   string    `json:"build_date,omitempty"`
	SourceURL   string    `json:"source_url,omitempty"`
	Checksum    string    `json:"checksum,omitempty"`
	InstalledAt time.Time `json:"installed_at"`
}

// Runtime is an installed CPython runtime.
type Runtime struct {
	Version     catalog.Version `json:"version" yaml:"version"`
	Root        string          `json:"root" yaml:"root"`
	Interpreter string          `json:"interpreter" yaml:"interpreter"`
	Platform    string          `json:"platform,omitempty" yaml:"platform,omitempty"`
	Variant     string          `json:"variant,omitempty" yaml:"variant,omitempty"`
	InstalledAt time.Time       `json:"installed_at" yaml:"installed_at"`
}

// InUseError lists the environments that keep a version from being removed.
type InUseError struct {
	Version      string
	Environments []string
}

func (e *InUseError) Error() string {
	return fmt.Sprintf("python %s is used by environments: %s (use --force to remove anyway)",
		e.Version, strings.Join(e.Environments, ", "))
}

// Unwrap lets errors.Is(err, ErrInUse) match.
func (e *InUseError) Unwrap() error {
	return ErrInUse
}

// Referrers reports which environments are bound to a version.
type Referrers interface {
	Referencing(version string) ([]string, error)
}

// StagingName returns a staging directory name for version.
func StagingName(version, id string) string {
	return stagingPrefix + version + "-" + id
}

// TrashName returns a trash directory name for version.
func TrashName(version, id string) string {
	return trashPrefix + version + "-" + id
}

// IsTrashName reports whether name is a trash directory.
func IsTrashName(name string) bool {
	return strings.HasPrefix(name, trashPrefix)
}

// ParseTempName reports the version a staging or trash directory belongs to.
func ParseTempName(name string) (version string, ok bool) {
	for _, prefix := range []string{stagingPrefix, trashPrefix} {
		rest, found := strings.CutPrefix(name, prefix)
		if !found {
			continue
		}
		// The id is a UUID, which contains dashes; the version never does.
		version, _, ok = strings.Cut(rest, "-")
		return version, ok && version != ""
	}
	return "", false
}
