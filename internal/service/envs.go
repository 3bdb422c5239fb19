package service

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/ZebulonRouseFrantzich/pysb/internal/shell"
	"github.com/ZebulonRouseFrantzich/pysb/internal/venv"
)

// RunRequest describes a command to run inside an environment.
type RunRequest struct {
	Env    string
	Args   []string
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// CreateEnv creates an environment bound to an installed version.
func (s *Service) CreateEnv(ctx context.Context, name, version string, packages []string) (*venv.Environment, error) {
	return s.envs.Create(ctx, name, version, packages)
}

// RemoveEnv deletes an environment.
func (s *Service) RemoveEnv(name string) error {
	return s.envs.Remove(name)
}

// ListEnvs returns all environments sorted by name.
func (s *Service) ListEnvs() ([]venv.Environment, error) {
	return s.envs.List()
}

// Activation returns the statements that activate the named environment.
func (s *Service) Activation(name string, sh shell.ShellType) (string, error) {
	env, err := s.envs.Resolve(name)
	if err != nil {
		return "", err
	}
	if env.Broken {
		s.logger.Warn("environment's python is no longer installed", "name", env.Name, "version", env.Version)
	}
	return shell.Emit(env, sh)
}

// Deactivation returns the statements that undo an activation.
func (s *Service) Deactivation(sh shell.ShellType) (string, error) {
	return shell.EmitDeactivate(sh)
}

// Run executes a command with the named environment activated. A command
// that exits non-zero is reported as *exec.ExitError.
func (s *Service) Run(ctx context.Context, req RunRequest) error {
	if len(req.Args) == 0 {
		return fmt.Errorf("no command given")
	}
	env, err := s.envs.Resolve(req.Env)
	if err != nil {
		return err
	}

	script, err := shell.Emit(env, shell.ShellBash)
	if err != nil {
		return err
	}
	environ, err := shell.Apply(ctx, script, os.Environ())
	if err != nil {
		return err
	}

	pathValue, _ := shell.Lookup(environ, "PATH")
	bin, err := lookPath(req.Args[0], pathValue)
	if err != nil {
		return err
	}

	cmd := exec.CommandContext(ctx, bin, req.Args[1:]...)
	cmd.Env = environ
	cmd.Stdin = req.Stdin
	cmd.Stdout = req.Stdout
	cmd.Stderr = req.Stderr

	s.logger.Debug("running in environment", "name", env.Name, "command", bin)
	return cmd.Run()
}

// lookPath resolves name against pathValue instead of this process's PATH.
func lookPath(name, pathValue string) (string, error) {
	if strings.Contains(name, "/") {
		return exec.LookPath(name)
	}
	for _, dir := range filepath.SplitList(pathValue) {
		if dir == "" {
			dir = "."
		}
		if p, err := exec.LookPath(filepath.Join(dir, name)); err == nil {
			return p, nil
		}
	}
	return "", fmt.Errorf("%s: %w", name, exec.ErrNotFound)
}
