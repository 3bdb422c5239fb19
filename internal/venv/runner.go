package venv

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// Runner executes interpreter commands.
type Runner interface {
	// Run executes name with args and returns its combined output.
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecRunner runs commands as child processes.
type ExecRunner struct{}

// scrubbedVars would make a child interpreter pick up another installation.
var scrubbedVars = []string{"PYTHONHOME", "PYTHONPATH", "VIRTUAL_ENV", "PYTHONSTARTUP", "__PYVENV_LAUNCHER__"}

// Run executes name with a scrubbed environment.
func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	// Create command with context for cancellation/timeout support
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Env = scrubEnv(os.Environ())

	// Capture combined output for error reporting
	out, err := cmd.CombinedOutput()
	if err != nil {
		if ctx.Err() != nil {
			return out, ctx.Err()
		}
		return out, fmt.Errorf("%s %s: %w", name, strings.Join(args, " "), err)
	}
	return out, nil
}

func scrubEnv(environ []string) []string {
	env := make([]string, 0, len(environ))
outer:
	for _, kv := range environ {
		for _, name := range scrubbedVars {
			if strings.HasPrefix(kv, name+"=") {
				continue outer
			}
		}
		env = append(env, kv)
	}
	return env
}
