package catalog

import (
	"regexp"
	"strings"

	"github.com/ZebulonRouseFrantzich/pysb/internal/platform"
)

// assetPattern matches cpython-<ver>+<date>-<arch>-<vendor>-<os>-<tail>.tar.<gz|zst>.
var assetPattern = regexp.MustCompile(
	`^cpython-(\d+\.\d+\.\d+)\+(\d+)-([^-]+)-([^-]+)-([^-]+)-(.+)\.tar\.(gz|zst)$`,
)

// parseAssetName extracts artifact coordinates from an asset name. Assets for
// unsupported platforms (windows, armv7, x86_64_v3, ...) are rejected.
func parseAssetName(name string) (*Artifact, bool) {
	m := assetPattern.FindStringSubmatch(name)
	if m == nil {
		return nil, false
	}

	version, err := ParseVersion(m[1])
	if err != nil {
		return nil, false
	}

	// Let platform validate the vendor triple so aliases stay in one place.
	target := m[3] + "-" + m[4] + "-" + m[5]
	tail := m[6]
	if m[5] == "linux" {
		libc, rest, ok := strings.Cut(tail, "-")
		if !ok {
			return nil, false
		}
		target += "-" + libc
		tail = rest
	}
	triple, err := platform.ParseTriple(target)
	if err != nil {
		return nil, false
	}

	return &Artifact{
		Version:   version,
		Triple:    triple,
		Platform:  triple.String(),
		Variant:   tail,
		BuildDate: m[2],
		Name:      name,
	}, true
}

// parseDigest returns the hex sha256 of a GitHub "sha256:<hex>" digest.
func parseDigest(digest string) string {
	hex, ok := strings.CutPrefix(digest, "sha256:")
	if !ok {
		return ""
	}
	return strings.ToLower(hex)
}
