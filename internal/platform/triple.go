package platform

import (
	"fmt"
	"strings"
)

// Triple identifies the platform an artifact is built for.
// An empty Libc on Linux means "prefer gnu, accept any".
type Triple struct {
	OS   string
	Arch string
	Libc string
}

// String formats the triple as os-arch[-libc], e.g. "linux-x86_64-musl".
func (t Triple) String() string {
	if t.Libc == "" {
		return t.OS + "-" + t.Arch
	}
	return t.OS + "-" + t.Arch + "-" + t.Libc
}

// ParseTriple parses a platform triple. Accepted forms:
//   - os-arch, e.g. "linux-x86_64" or "darwin-arm64"
//   - os-arch-libc, e.g. "linux-aarch64-musl"
//   - python-build-standalone targets, e.g. "x86_64-unknown-linux-gnu"
//     or "aarch64-apple-darwin"
func ParseTriple(s string) (Triple, error) {
	parts := strings.Split(strings.ToLower(strings.TrimSpace(s)), "-")

	switch {
	case len(parts) >= 3 && isVendor(parts[1]):
		return parseTarget(s, parts)
	case len(parts) == 2 || len(parts) == 3:
		osName, err := normalizeOS(parts[0])
		if err != nil {
			return Triple{}, fmt.Errorf("parse platform %q: %w", s, err)
		}
		arch, err := normalizeArch(parts[1])
		if err != nil {
			return Triple{}, fmt.Errorf("parse platform %q: %w", s, err)
		}
		t := Triple{OS: osName, Arch: arch}
		if len(parts) == 3 {
			libc, err := normalizeLibc(parts[2])
			if err != nil {
				return Triple{}, fmt.Errorf("parse platform %q: %w", s, err)
			}
			t.Libc = libc
		}
		if err := t.validate(s); err != nil {
			return Triple{}, err
		}
		return t, nil
	default:
		return Triple{}, fmt.Errorf("parse platform %q: expected os-arch[-libc]", s)
	}
}

// parseTarget parses arch-vendor-os[-libc] target triples.
func parseTarget(s string, parts []string) (Triple, error) {
	arch, err := normalizeArch(parts[0])
	if err != nil {
		return Triple{}, fmt.Errorf("parse platform %q: %w", s, err)
	}
	osName, err := normalizeOS(parts[2])
	if err != nil {
		return Triple{}, fmt.Errorf("parse platform %q: %w", s, err)
	}
	t := Triple{OS: osName, Arch: arch}
	if len(parts) > 3 {
		libc, err := normalizeLibc(parts[3])
		if err != nil {
			return Triple{}, fmt.Errorf("parse platform %q: %w", s, err)
		}
		t.Libc = libc
	}
	if err := t.validate(s); err != nil {
		return Triple{}, err
	}
	return t, nil
}

func (t Triple) validate(s string) error {
	if t.OS == "darwin" && t.Libc != "" {
		return fmt.Errorf("parse platform %q: libc is only meaningful on linux", s)
	}
	return nil
}

// Matches reports whether an artifact built for other can run on t.
func (t Triple) Matches(other Triple) bool {
	if t.OS != other.OS || t.Arch != other.Arch {
		return false
	}
	if t.Libc == "" {
		return true
	}
	return t.Libc == other.Libc
}

func isVendor(s string) bool {
	switch s {
	case "unknown", "apple", "pc":
		return true
	default:
		return false
	}
}

// normalizeLibc maps libc spellings to gnu/musl. glibc and "native" mean gnu.
func normalizeLibc(libc string) (string, error) {
	switch libc {
	case "gnu", "glibc", "native":
		return LibcGNU, nil
	case "musl":
		return LibcMusl, nil
	default:
		return "", fmt.Errorf("unsupported libc: %s (supported: gnu, musl)", libc)
	}
}
