package main

import (
	"errors"
	"fmt"
	"os/exec"

	"github.com/spf13/cobra"

	"github.com/ZebulonRouseFrantzich/pysb/internal/service"
	"github.com/ZebulonRouseFrantzich/pysb/internal/shell"
	"github.com/ZebulonRouseFrantzich/pysb/internal/venv"
)

func (a *app) envCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "env",
		Aliases: []string{"envs", "e"},
		Short:   "Manage virtual environments",
	}
	cmd.AddCommand(
		a.envCreateCmd(),
		a.envRemoveCmd(),
		a.envListCmd(),
		a.envActivateCmd(),
		a.envDeactivateCmd(),
		a.envRunCmd(),
	)
	return cmd
}

func (a *app) envCreateCmd() *cobra.Command {
	var (
		version  string
		packages []string
	)

	cmd := &cobra.Command{
		Use:     "create <name>",
		Short:   "Create a virtual environment from an installed runtime",
		Example: "  pysb env create web --version 3.12.2 --packages requests,rich",
		Args:    usageArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.service(nil)
			if err != nil {
				return err
			}

			env, err := svc.CreateEnv(cmd.Context(), args[0], version, packages)
			if env != nil {
				fmt.Fprintf(a.stdout, "%s environment %s (python %s) in %s\n",
					successStyle.Render("created"), env.Name, env.Version, env.Root)
			}
			var pkgErr *venv.PackageError
			if errors.As(err, &pkgErr) {
				fmt.Fprintln(a.stderr, warningStyle.Render("The environment was created, but its packages could not be installed."))
			}
			return err
		},
	}

	cmd.Flags().StringVar(&version, "version", "", "installed Python version to use (required)")
	cmd.Flags().StringSliceVarP(&packages, "packages", "p", nil, "packages to pip install into the environment")
	cmd.MarkFlagRequired("version")
	return cmd
}

func (a *app) envRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "remove <name>",
		Aliases: []string{"rm"},
		Short:   "Remove a virtual environment",
		Args:    usageArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.service(nil)
			if err != nil {
				return err
			}
			if err := svc.RemoveEnv(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "%s environment %s\n", successStyle.Render("removed"), args[0])
			return nil
		},
	}
}

func (a *app) envListCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List virtual environments",
		Args:    usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.service(nil)
			if err != nil {
				return err
			}
			envs, err := svc.ListEnvs()
			if err != nil {
				return err
			}
			return a.render(envListing(envs))
		},
	}
}

func envListing(envs []venv.Environment) listing {
	if envs == nil {
		envs = []venv.Environment{}
	}
	l := listing{
		value:  envs,
		header: []string{"NAME", "PYTHON", "CREATED", "PATH"},
		empty:  "No environments. Create one with 'pysb env create <name> --version <version>'.",
	}
	for _, e := range envs {
		version := e.Version
		if e.Broken {
			version += " " + warningStyle.Render("(not installed)")
		}
		l.rows = append(l.rows, []string{e.Name, version, formatTime(e.CreatedAt), e.Root})
	}
	return l
}

// shellFlag resolves --shell, detecting the user's shell when it is empty.
func (a *app) shellFlag(name string) (shell.ShellType, error) {
	if name != "" {
		return shell.ParseShell(name)
	}
	detected, err := shell.DetectShell()
	if err != nil || !detected.Shell.IsValid() {
		a.logger.Debug("could not detect shell, using bash")
		return shell.ShellBash, nil
	}
	a.logger.Debug("detected shell", "shell", detected.Shell, "source", detected.Source)
	return detected.Shell, nil
}

func (a *app) envActivateCmd() *cobra.Command {
	var shellName string

	cmd := &cobra.Command{
		Use:   "activate <name>",
		Short: "Print shell statements that activate an environment",
		Long: `Print shell statements that activate an environment. Evaluate them in
the current shell:

  eval "$(pysb env activate web)"         # bash, zsh
  pysb env activate web --shell fish | source`,
		Args: usageArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			sh, err := a.shellFlag(shellName)
			if err != nil {
				return err
			}
			svc, err := a.service(nil)
			if err != nil {
				return err
			}
			script, err := svc.Activation(args[0], sh)
			if err != nil {
				return err
			}
			if isTerminal(a.stdout) {
				fmt.Fprintf(a.stderr, "%s these statements must be evaluated by your shell: eval \"$(pysb env activate %s)\"\n",
					warningStyle.Render("Note:"), args[0])
			}
			fmt.Fprint(a.stdout, script)
			return nil
		},
	}

	cmd.Flags().StringVarP(&shellName, "shell", "s", "", "shell to emit statements for: bash, zsh or fish (default: detected)")
	return cmd
}

func (a *app) envDeactivateCmd() *cobra.Command {
	var shellName string

	cmd := &cobra.Command{
		Use:   "deactivate",
		Short: "Print shell statements that undo an activation",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			sh, err := a.shellFlag(shellName)
			if err != nil {
				return err
			}
			svc, err := a.service(nil)
			if err != nil {
				return err
			}
			script, err := svc.Deactivation(sh)
			if err != nil {
				return err
			}
			fmt.Fprint(a.stdout, script)
			return nil
		},
	}

	cmd.Flags().StringVarP(&shellName, "shell", "s", "", "shell to emit statements for: bash, zsh or fish (default: detected)")
	return cmd
}

func (a *app) envRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "run <name> -- <command> [args...]",
		Short:   "Run a command with an environment activated",
		Example: "  pysb env run web -- python -m pytest",
		Args:    usageArgs(cobra.MinimumNArgs(2)),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.service(nil)
			if err != nil {
				return err
			}
			err = svc.Run(cmd.Context(), service.RunRequest{
				Env:    args[0],
				Args:   args[1:],
				Stdin:  cmd.InOrStdin(),
				Stdout: cmd.OutOrStdout(),
				Stderr: cmd.ErrOrStderr(),
			})
			// The command reported its own failure; pass its status through.
			var exitErr *exec.ExitError
			if errors.As(err, &exitErr) && exitErr.ExitCode() > 0 {
				return &ExitError{Code: exitErr.ExitCode()}
			}
			return err
		},
	}
}
