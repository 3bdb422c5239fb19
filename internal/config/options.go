package config

import (
	"fmt"
	"path/filepath"
	"slices"
	"strconv"
	"time"
)

type kind int

const (
	kindString kind = iota
	kindPath
	kindInt
	kindDuration
	kindChoice
)

// option describes one recognised key.
type option struct {
	section string
	key     string
	kind    kind
	choices []string
	// def returns the default for root or an ordinary user.
	def func(root bool) string
}

func fixed(v string) func(bool) string {
	return func(bool) string { return v }
}

func basePath(root bool) string {
	if root {
		return "/opt/python"
	}
	return "~/.local/share/pysb"
}

// options lists every key in "config show" order.
var options = []option{
	{section: "releases", key: "url", kind: kindString,
		def: fixed("https://api.github.com/repos/astral-sh/python-build-standalone/releases/latest")},
	{section: "paths", key: "versions", kind: kindPath,
		def: func(root bool) string { return filepath.Join(basePath(root), "versions") }},
	{section: "paths", key: "venvs", kind: kindPath,
		def: func(root bool) string { return filepath.Join(basePath(root), "envs") }},
	{section: "paths", key: "cache", kind: kindPath,
		def: func(root bool) string {
			if root {
				return "/var/cache/pysb"
			}
			return "~/.cache/pysb"
		}},
	{section: "install", key: "on_existing", kind: kindChoice,
		choices: []string{OnExistingReject, OnExistingReplace}, def: fixed(OnExistingReject)},
	{section: "install", key: "variant", kind: kindChoice,
		choices: []string{VariantStripped, VariantFull}, def: fixed(VariantStripped)},
	{section: "download", key: "retries", kind: kindInt, def: fixed("3")},
	{section: "download", key: "timeout", kind: kindDuration, def: fixed("30m")},
	{section: "verify", key: "keyring", kind: kindPath, def: fixed("")},
}

func lookupOption(section, key string) (*option, error) {
	for i := range options {
		if options[i].section == section && options[i].key == key {
			return &options[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %s.%s", ErrUnknownKey, section, key)
}

// validate checks a raw string value for o.
func (o *option) validate(value string) error {
	field := o.section + "." + o.key
	switch o.kind {
	case kindInt:
		n, err := strconv.Atoi(value)
		if err != nil || n < 0 {
			return &ValidationError{Field: field, Message: fmt.Sprintf("%q is not a non-negative integer", value)}
		}
	case kindDuration:
		d, err := time.ParseDuration(value)
		if err != nil || d < 0 {
			return &ValidationError{Field: field, Message: fmt.Sprintf("%q is not a duration such as 90s or 30m", value)}
		}
	case kindChoice:
		if !slices.Contains(o.choices, value) {
			return &ValidationError{Field: field, Message: fmt.Sprintf("%q is not one of %v", value, o.choices)}
		}
	}
	return nil
}

// typed converts a validated string to the value written to TOML.
func (o *option) typed(value string) any {
	if o.kind == kindInt {
		n, _ := strconv.Atoi(value)
		return n
	}
	return value
}
