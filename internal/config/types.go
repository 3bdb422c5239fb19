// Package config loads and edits pysb's TOML configuration file.
//
// # File Format
//
// The file has one table per section. Every key is optional; unset keys fall
// back to defaults that depend on whether pysb runs as root:
//
//	[releases]
//	url = "https://api.github.com/repos/astral-sh/python-build-standalone/releases/latest"
//
//	[paths]
//	versions = "~/.local/share/pysb/versions"
//	venvs = "~/.local/share/pysb/envs"
//	cache = "~/.cache/pysb"
//
//	[install]
//	on_existing = "reject"  # or "replace"
//	variant = "stripped"    # or "full"
//
//	[download]
//	retries = 3
//	timeout = "30m"
//
//	[verify]
//	keyring = ""            # armored or binary OpenPGP keyring; empty disables
//
// # Location
//
// PYSB_CONFIG overrides the location. Otherwise root uses /etc/pysb.toml and
// other users ~/.local/share/pysb/config.toml.
package config

import (
	"errors"
	"time"
)

// EnvConfig names the environment variable that selects the config file.
const EnvConfig = "PYSB_CONFIG"

// ErrUnknownKey is returned for section/key pairs pysb does not recognise.
var ErrUnknownKey = errors.New("unknown configuration key")

// ErrNotSet is returned when unsetting a key that has no explicit value.
var ErrNotSet = errors.New("configuration key not set")

// Values for install.on_existing and install.variant.
const (
	OnExistingReject  = "reject"
	OnExistingReplace = "replace"

	VariantStripped = "stripped"
	VariantFull     = "full"
)

// Settings is the fully resolved configuration handed to the core packages.
// All paths are absolute.
type Settings struct {
	ReleasesURL string
	VersionsDir string
	VenvsDir    string
	CacheDir    string
	// Replace reports whether install.on_existing is "replace".
	Replace bool
	// FullBuilds reports whether install.variant is "full".
	FullBuilds bool
	Retries    int
	Timeout    time.Duration
	// Keyring is empty when signature verification is disabled.
	Keyring string
}

// Entry is one row of "config show".
type Entry struct {
	Section string `json:"section" yaml:"section"`
	Key     string `json:"key" yaml:"key"`
	Value   string `json:"value" yaml:"value"`
	// Default is true when no explicit value is set.
	Default bool `json:"default" yaml:"default"`
}

// ValidationError represents a config validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return "config validation failed for " + e.Field + ": " + e.Message
	}
	return "config validation failed: " + e.Message
}
