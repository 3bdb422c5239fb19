package platform

import (
	"fmt"
	"strings"
)

// familyMap maps distribution names to their canonical family names.
// This is used to normalize variations of family strings from gopsutil.
var familyMap = map[string]string{
	"debian":   FamilyDebian,
	"ubuntu":   FamilyDebian, // gopsutil might return ubuntu as family
	"rhel":     FamilyRHEL,
	"centos":   FamilyRHEL,
	"rocky":    FamilyRHEL,
	"fedora":   FamilyFedora,
	"suse":     FamilySUSE,
	"opensuse": FamilySUSE,
	"arch":     FamilyArch,
	"manjaro":  FamilyArch,
	"alpine":   FamilyAlpine,
	"gentoo":   FamilyGentoo,
}

// archAliases maps architecture spellings to python-build-standalone names.
var archAliases = map[string]string{
	"x86_64":  "x86_64",
	"amd64":   "x86_64",
	"aarch64": "aarch64",
	"arm64":   "aarch64",
}

// normalizeArch converts GOARCH values and common aliases to
// python-build-standalone architecture names.
func normalizeArch(arch string) (string, error) {
	if canonical, ok := archAliases[strings.ToLower(strings.TrimSpace(arch))]; ok {
		return canonical, nil
	}
	return "", fmt.Errorf("unsupported architecture: %s (supported: x86_64, aarch64)", arch)
}

// normalizeOS converts GOOS values to python-build-standalone OS names.
func normalizeOS(goos string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(goos)) {
	case "linux":
		return "linux", nil
	case "darwin", "macos":
		return "darwin", nil
	default:
		return "", fmt.Errorf("unsupported OS: %s (supported: linux, darwin)", goos)
	}
}

// normalizePlatform converts platform IDs to lowercase for consistency.
func normalizePlatform(platform string) string {
	return strings.ToLower(strings.TrimSpace(platform))
}

// mapFamily maps distribution family strings to canonical family names.
func mapFamily(family string) string {
	normalized := strings.ToLower(strings.TrimSpace(family))
	if canonical, ok := familyMap[normalized]; ok {
		return canonical
	}

	return FamilyUnknown
}
