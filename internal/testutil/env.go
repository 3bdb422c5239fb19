// Package testutil provides utilities for testing pysb in isolation.
package testutil

import (
	"os"
	"path/filepath"
	"testing"
)

// Roots holds the isolated directories of a test environment.
type Roots struct {
	Base     string
	Versions string
	Venvs    string
	Cache    string
	Config   string // config file path (may not exist)
}

// SetupTestEnv creates isolated test directories for each test.
// This ensures pysb tests never interfere with:
// - System runtimes under /opt/python
// - The user's actual pysb configuration
//
// The cleanup function is automatically handled by t.TempDir(),
// so callers don't need to manually clean up.
func SetupTestEnv(t *testing.T) Roots {
	t.Helper()

	tmpDir := t.TempDir()
	roots := Roots{
		Base:     tmpDir,
		Versions: filepath.Join(tmpDir, "versions"),
		Venvs:    filepath.Join(tmpDir, "venvs"),
		Cache:    filepath.Join(tmpDir, "cache"),
		Config:   filepath.Join(tmpDir, "config", "pysb.toml"),
	}

	t.Setenv("PYSB_CONFIG", roots.Config)
	t.Setenv("HOME", filepath.Join(tmpDir, "home"))
	t.Setenv("PYSB_DEBUG", "")

	for _, dir := range []string{roots.Versions, roots.Venvs, roots.Cache, filepath.Dir(roots.Config)} {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			t.Fatalf("failed to create test directory %s: %v", dir, err)
		}
	}

	return roots
}
