package venv

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ZebulonRouseFrantzich/pysb/internal/fsutil"
	"github.com/ZebulonRouseFrantzich/pysb/internal/logging"
	"github.com/ZebulonRouseFrantzich/pysb/internal/registry"
)

var namePattern = regexp.MustCompile(`^[A-Za-z0-9_][A-Za-z0-9._-]*$`)

// trashPrefix names environments that are being deleted.
const trashPrefix = ".trash-"

// basePackages are upgraded before any requested package is installed.
var basePackages = []string{"pip", "certifi"}

// Config configures a Manager.
type Config struct {
	VenvsDir string
	Runtimes RuntimeLookup
	// Runner defaults to ExecRunner.
	Runner Runner
	Logger logging.Logger
	Now    func() time.Time
}

// Manager creates, lists and removes environments.
type Manager struct {
	root     string
	runtimes RuntimeLookup
	runner   Runner
	logger   logging.Logger
	now      func() time.Time
}

// New creates a manager for environments under cfg.VenvsDir.
func New(cfg Config) *Manager {
	m := &Manager{
		root:     cfg.VenvsDir,
		runtimes: cfg.Runtimes,
		runner:   cfg.Runner,
		logger:   logging.OrNop(cfg.Logger),
		now:      cfg.Now,
	}
	if m.runner == nil {
		m.runner = ExecRunner{}
	}
	if m.now == nil {
		m.now = time.Now
	}
	return m
}

// Root returns the environments root.
func (m *Manager) Root() string {
	return m.root
}

// ValidateName checks that name can be used as an environment directory.
func ValidateName(name string) error {
	if !namePattern.MatchString(name) {
		return fmt.Errorf("%w: %q (use letters, digits, '.', '_' and '-', not starting with '.' or '-')", ErrInvalidName, name)
	}
	return nil
}

// Create makes a new environment bound to version and installs packages
// into it. When only the package step fails, the environment is returned
// together with a *PackageError.
func (m *Manager) Create(ctx context.Context, name, version string, packages []string) (*Environment, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(m.root, 0o755); err != nil {
		return nil, fmt.Errorf("create environments directory: %w", err)
	}

	root := filepath.Join(m.root, name)
	// mkdir is atomic: exactly one concurrent creator wins the name.
	if err := os.Mkdir(root, 0o755); err != nil {
		if os.IsExist(err) {
			if _, statErr := os.Stat(filepath.Join(root, MarkerFile)); os.IsNotExist(statErr) {
				return nil, fmt.Errorf("%w: %s is incomplete (an earlier create did not finish); 'pysb env remove %s' clears it",
					ErrDuplicateName, name, name)
			}
			return nil, fmt.Errorf("%w: %s", ErrDuplicateName, name)
		}
		return nil, fmt.Errorf("reserve environment %s: %w", name, err)
	}

	ready := false
	defer func() {
		if !ready {
			os.RemoveAll(root)
		}
	}()

	rt, err := m.runtimes.Find(version)
	if err != nil {
		return nil, err
	}

	m.logger.Info("creating environment", "name", name, "version", rt.Version.String())
	if out, err := m.runner.Run(ctx, rt.Interpreter, "-m", "venv", root); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %s: %w\n%s", ErrCreation, name, err, lastLines(string(out), 5))
	}

	env := &Environment{
		Name:        name,
		Version:     rt.Version.String(),
		Root:        root,
		Interpreter: registry.Interpreter(root),
		CreatedAt:   m.now().UTC(),
	}
	if _, err := os.Stat(env.Interpreter); err != nil {
		return nil, fmt.Errorf("%w: %s: venv produced no bin/python3", ErrCreation, name)
	}

	marker := Marker{Name: name, Version: env.Version, CreatedAt: env.CreatedAt}
	if err := fsutil.WriteJSON(filepath.Join(root, MarkerFile), marker, 0o644); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrCreation, name, err)
	}
	ready = true
	m.logger.Info("created environment", "name", name, "path", root)

	if len(packages) == 0 {
		return env, nil
	}
	if err := m.installPackages(ctx, env, packages); err != nil {
		return env, err
	}
	return env, nil
}

// installPackages upgrades pip and certifi, then installs packages.
func (m *Manager) installPackages(ctx context.Context, env *Environment, packages []string) error {
	for _, batch := range [][]string{basePackages, packages} {
		args := append([]string{"-m", "pip", "install", "-U"}, batch...)
		out, err := m.runner.Run(ctx, env.Interpreter, args...)
		if err != nil {
			return &PackageError{Env: env.Name, Packages: batch, Output: string(out), Err: err}
		}
	}
	m.logger.Info("installed packages", "name", env.Name, "packages", strings.Join(packages, " "))
	return nil
}

// Remove deletes an environment.
func (m *Manager) Remove(name string) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	root := filepath.Join(m.root, name)
	if _, err := os.Stat(root); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return fmt.Errorf("stat environment %s: %w", name, err)
	}

	// Rename aside first so the name is free and never half-deleted.
	trash := filepath.Join(m.root, trashPrefix+name+"-"+uuid.NewString())
	if err := os.Rename(root, trash); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return fmt.Errorf("remove environment %s: %w", name, err)
	}
	if err := os.RemoveAll(trash); err != nil {
		m.logger.Warn("failed to delete environment files", "path", trash, "error", err)
	}

	m.logger.Info("removed environment", "name", name)
	return nil
}

// CollectGarbage removes environment directories that never received a
// marker and leftover trash from interrupted removals. Anything modified
// within minAge is kept, since a create may still be running.
func (m *Manager) CollectGarbage(minAge time.Duration) ([]string, error) {
	entries, err := os.ReadDir(m.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read environments directory: %w", err)
	}

	cutoff := m.now().Add(-minAge)
	var removed []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		path := filepath.Join(m.root, e.Name())
		switch {
		case strings.HasPrefix(e.Name(), trashPrefix):
		case namePattern.MatchString(e.Name()):
			if _, err := os.Stat(filepath.Join(path, MarkerFile)); !os.IsNotExist(err) {
				continue
			}
		default:
			continue
		}

		info, err := e.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		if err := os.RemoveAll(path); err != nil {
			m.logger.Warn("failed to remove abandoned environment", "path", path, "error", err)
			continue
		}
		m.logger.Debug("removed abandoned environment", "path", path)
		removed = append(removed, path)
	}
	return removed, nil
}

// Resolve returns the ready environment called name.
func (m *Manager) Resolve(name string) (*Environment, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	env, err := m.load(name)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return nil, err
	}
	return env, nil
}

// List returns all ready environments sorted by name.
func (m *Manager) List() ([]Environment, error) {
	entries, err := os.ReadDir(m.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read environments directory: %w", err)
	}

	var envs []Environment
	for _, e := range entries {
		if !e.IsDir() || !namePattern.MatchString(e.Name()) {
			continue
		}
		env, err := m.load(e.Name())
		if err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				m.logger.Debug("skipping unreadable environment", "name", e.Name(), "error", err)
			}
			continue
		}
		envs = append(envs, *env)
	}

	sort.Slice(envs, func(i, j int) bool { return envs[i].Name < envs[j].Name })
	return envs, nil
}

// Referencing returns the names of environments bound to version.
func (m *Manager) Referencing(version string) ([]string, error) {
	envs, err := m.List()
	if err != nil {
		return nil, err
	}
	var names []string
	for _, env := range envs {
		if env.Version == version {
			names = append(names, env.Name)
		}
	}
	return names, nil
}

// load reads the marker of <root>/<name>.
func (m *Manager) load(name string) (*Environment, error) {
	root := filepath.Join(m.root, name)

	var marker Marker
	if err := fsutil.ReadJSON(filepath.Join(root, MarkerFile), &marker); err != nil {
		return nil, err
	}

	env := &Environment{
		Name:        name,
		Version:     marker.Version,
		Root:        root,
		Interpreter: registry.Interpreter(root),
		CreatedAt:   marker.CreatedAt,
	}
	if _, err := m.runtimes.Find(marker.Version); err != nil {
		env.Broken = true
	}
	return env, nil
}
