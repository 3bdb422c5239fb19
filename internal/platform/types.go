// Package platform provides host platform detection and platform triple handling
// for selecting python-build-standalone artifacts.
//
// It detects OS, architecture, and Linux distribution details. The distribution
// family decides the C library flavor (musl on Alpine, glibc elsewhere). The
// package uses gopsutil for Linux distribution detection and falls back to
// OS/arch only when detection fails.
package platform

import "context"

// Linux distribution family constants.
// These represent canonical family names for grouping related distributions.
const (
	FamilyDebian  = "debian"  // Debian, Ubuntu, Linux Mint
	FamilyRHEL    = "rhel"    // RHEL, CentOS, Rocky Linux, AlmaLinux
	FamilyFedora  = "fedora"  // Fedora
	FamilySUSE    = "suse"    // openSUSE, SLES
	FamilyArch    = "arch"    // Arch Linux, Manjaro
	FamilyAlpine  = "alpine"  // Alpine Linux
	FamilyGentoo  = "gentoo"  // Gentoo
	FamilyUnknown = "unknown" // Unrecognized distributions
)

// C library flavors used in python-build-standalone target triples.
const (
	LibcGNU  = "gnu"
	LibcMusl = "musl"
)

// Info contains platform detection information.
type Info struct {
	OS       string // "linux", "darwin"
	Arch     string // "x86_64", "aarch64" (python-build-standalone naming)
	ArchRaw  string // original GOARCH (e.g., "amd64", "arm64")
	Libc     string // "gnu" or "musl" on Linux, empty elsewhere
	Platform string // distro ID (Linux only, e.g., "ubuntu", "arch")
	Family   string // canonical family (e.g., "debian", "rhel", "arch")
	Version  string // distro version (Linux only, e.g., "22.04")
}

// Triple returns the artifact selection triple for this host.
func (i *Info) Triple() Triple {
	return Triple{OS: i.OS, Arch: i.Arch, Libc: i.Libc}
}

// IsLinux returns true if the platform is Linux.
func (i *Info) IsLinux() bool {
	return i.OS == "linux"
}

// IsMacOS returns true if the platform is macOS.
func (i *Info) IsMacOS() bool {
	return i.OS == "darwin"
}

// IsAlpine returns true if the Linux distribution is Alpine.
func (i *Info) IsAlpine() bool {
	return i.OS == "linux" && i.Family == FamilyAlpine
}

// Detector is the interface for platform detection.
type Detector interface {
	Detect(ctx context.Context) (*Info, error)
}
