package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/ZebulonRouseFrantzich/pysb/internal/fsutil"
)

// isRoot selects root defaults.
var isRoot = func() bool { return os.Geteuid() == 0 }

// Store holds the explicit values of one config file.
// It is safe for concurrent use.
type Store struct {
	path string
	root bool

	mu     sync.RWMutex
	values map[string]map[string]string
}

// DefaultPath returns the config file location: $PYSB_CONFIG, or the root or
// per-user default.
func DefaultPath() (string, error) {
	if p := os.Getenv(EnvConfig); p != "" {
		return ExpandPath(p)
	}
	if isRoot() {
		return "/etc/pysb.toml", nil
	}
	return ExpandPath("~/.local/share/pysb/config.toml")
}

// Load reads the config file at path. A missing file is an empty config.
func Load(path string) (*Store, error) {
	s := &Store{
		path:   path,
		root:   isRoot(),
		values: make(map[string]map[string]string),
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	var raw map[string]map[string]any
	if err := toml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	for section, keys := range raw {
		for key, v := range keys {
			opt, err := lookupOption(section, key)
			if err != nil {
				return nil, fmt.Errorf("config %s: %w", path, err)
			}
			value := fmt.Sprint(v)
			if err := opt.validate(value); err != nil {
				return nil, fmt.Errorf("config %s: %w", path, err)
			}
			s.set(section, key, value)
		}
	}
	return s, nil
}

// Path returns the file the store reads and saves.
func (s *Store) Path() string {
	return s.path
}

// Get returns the effective value of section.key.
func (s *Store) Get(section, key string) (string, error) {
	opt, err := lookupOption(section, key)
	if err != nil {
		return "", err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if v, ok := s.values[section][key]; ok {
		return v, nil
	}
	return opt.def(s.root), nil
}

// Set assigns section.key. An empty value unsets the key.
func (s *Store) Set(section, key, value string) error {
	if value == "" {
		return s.Unset(section, key)
	}
	opt, err := lookupOption(section, key)
	if err != nil {
		return err
	}
	if err := opt.validate(value); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.set(section, key, value)
	return nil
}

// Unset removes the explicit value of section.key so the default applies.
func (s *Store) Unset(section, key string) error {
	if _, err := lookupOption(section, key); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.values[section][key]; !ok {
		return fmt.Errorf("%w: %s.%s", ErrNotSet, section, key)
	}
	delete(s.values[section], key)
	if len(s.values[section]) == 0 {
		delete(s.values, section)
	}
	return nil
}

// Save writes the explicit values back to the config file atomically.
func (s *Store) Save() error {
	s.mu.RLock()
	doc := make(map[string]map[string]any, len(s.values))
	for section, keys := range s.values {
		doc[section] = make(map[string]any, len(keys))
		for key, v := range keys {
			opt, _ := lookupOption(section, key)
			doc[section][key] = opt.typed(v)
		}
	}
	s.mu.RUnlock()

	data, err := toml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if err := fsutil.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("write config %s: %w", s.path, err)
	}
	return nil
}

// Entries returns every recognised key with its effective value.
func (s *Store) Entries() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := make([]Entry, 0, len(options))
	for _, opt := range options {
		e := Entry{Section: opt.section, Key: opt.key}
		if v, ok := s.values[opt.section][opt.key]; ok {
			e.Value = v
		} else {
			e.Value = opt.def(s.root)
			e.Default = true
		}
		entries = append(entries, e)
	}
	return entries
}

// Settings resolves the effective configuration.
func (s *Store) Settings() (*Settings, error) {
	get := func(section, key string) string {
		v, _ := s.Get(section, key)
		return v
	}

	settings := &Settings{
		ReleasesURL: get("releases", "url"),
		Replace:     get("install", "on_existing") == OnExistingReplace,
		FullBuilds:  get("install", "variant") == VariantFull,
	}

	for _, p := range []struct {
		key string
		dst *string
	}{
		{"versions", &settings.VersionsDir},
		{"venvs", &settings.VenvsDir},
		{"cache", &settings.CacheDir},
	} {
		dir, err := ExpandPath(get("paths", p.key))
		if err != nil {
			return nil, &ValidationError{Field: "paths." + p.key, Message: err.Error()}
		}
		*p.dst = dir
	}

	if keyring := get("verify", "keyring"); keyring != "" {
		path, err := ExpandPath(keyring)
		if err != nil {
			return nil, &ValidationError{Field: "verify.keyring", Message: err.Error()}
		}
		settings.Keyring = path
	}

	// Both values were validated on the way in.
	settings.Retries, _ = strconv.Atoi(get("download", "retries"))
	settings.Timeout, _ = time.ParseDuration(get("download", "timeout"))
	return settings, nil
}

func (s *Store) set(section, key, value string) {
	if s.values[section] == nil {
		s.values[section] = make(map[string]string)
	}
	s.values[section][key] = value
}

// ExpandPath expands a leading ~ and makes path absolute.
func ExpandPath(path string) (string, error) {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("cannot determine home directory: %w", err)
		}
		path = filepath.Join(home, strings.TrimPrefix(path, "~"))
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", path, err)
	}
	return abs, nil
}
