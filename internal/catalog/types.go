// Package catalog resolves python-build-standalone release artifacts.
//
// A catalog is a GitHub release document listing the assets of one
// python-build-standalone release. Asset names encode the CPython version, the
// build date, the target triple and the distribution variant:
//
//	cpython-3.12.2+20240224-x86_64-unknown-linux-gnu-install_only_stripped.tar.gz
//
// Resolver turns a version and a platform triple into exactly one Artifact.
package catalog

import (
	"errors"
	"time"

	"github.com/ZebulonRouseFrantzich/pysb/internal/download"
	"github.com/ZebulonRouseFrantzich/pysb/internal/platform"
)

var (
	// ErrNotFound is returned when no artifact exists for a version on a platform.
	ErrNotFound = errors.New("version not found")
	// ErrAmbiguous is returned when more than one artifact matches a request.
	ErrAmbiguous = errors.New("ambiguous artifact")
	// ErrInvalidVersion is returned for version strings that are not MAJOR.MINOR.PATCH.
	ErrInvalidVersion = errors.New("invalid version")
)

// Distribution variants published by python-build-standalone.
const (
	VariantStripped = "install_only_stripped"
	VariantFull     = "install_only"
)

const (
	// DefaultSource is the latest python-build-standalone release.
	DefaultSource = "https://api.github.com/repos/astral-sh/python-build-standalone/releases/latest"
	// DefaultTTL is how long a fetched catalog is reused.
	DefaultTTL = 4 * time.Hour

	checksumsAsset = "SHA256SUMS"
)

// Artifact is one downloadable runtime archive.
type Artifact struct {
	Version      Version         `json:"version" yaml:"version"`
	Triple       platform.Triple `json:"-" yaml:"-"`
	Platform     string          `json:"platform" yaml:"platform"`
	Variant      string          `json:"variant" yaml:"variant"`
	BuildDate    string          `json:"build_date" yaml:"build_date"`
	Name         string          `json:"name" yaml:"name"`
	URL          string          `json:"url" yaml:"url"`
	Checksum     string          `json:"checksum,omitempty" yaml:"checksum,omitempty"`
	Size         int64           `json:"size,omitempty" yaml:"size,omitempty"`
	SignatureURL string          `json:"signature_url,omitempty" yaml:"signature_url,omitempty"`
}

// Target returns the download request for the artifact.
func (a *Artifact) Target() download.Target {
	return download.Target{URL: a.URL, Checksum: a.Checksum, Size: a.Size}
}

// Stripped reports whether debug symbols were stripped from the build.
func (a *Artifact) Stripped() bool {
	return a.Variant == VariantStripped
}

// Filter selects artifacts for listing. Empty fields match anything.
type Filter struct {
	OS      string
	Arches  []string
	Libcs   []string // applies to linux artifacts only
	Variant string   // defaults to VariantStripped
	Version string
}

func (f Filter) matches(a *Artifact) bool {
	if f.OS != "" && a.Triple.OS != f.OS {
		return false
	}
	if len(f.Arches) > 0 && !contains(f.Arches, a.Triple.Arch) {
		return false
	}
	if len(f.Libcs) > 0 && a.Triple.OS == "linux" && !contains(f.Libcs, a.Triple.Libc) {
		return false
	}
	variant := f.Variant
	if variant == "" {
		variant = VariantStripped
	}
	if a.Variant != variant {
		return false
	}
	return f.Version == "" || a.Version.String() == f.Version
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// release is the subset of the GitHub release document that is used.
type release struct {
	TagName string  `json:"tag_name"`
	Assets  []asset `json:"assets"`
}

type asset struct {
	Name               string `json:"name"`
	BrowserDownloadURL string `json:"browser_download_url"`
	Size               int64  `json:"size"`
	// Digest is "sha256:<hex>" on recent GitHub releases.
	Digest string `json:"digest"`
}
