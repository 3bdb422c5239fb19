package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/ZebulonRouseFrantzich/pysb/internal/config"
	"github.com/ZebulonRouseFrantzich/pysb/internal/platform"
	"github.com/ZebulonRouseFrantzich/pysb/internal/service"
)

// EnvDebug enables debug logging when set to any non-empty value.
const EnvDebug = "PYSB_DEBUG"

// app holds the state shared by all commands of one invocation.
type app struct {
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer

	configPath string
	verbose    bool
	output     string

	// detector overrides host platform detection.
	detector platform.Detector
	logger   *slog.Logger
}

func newApp(stdin io.Reader, stdout, stderr io.Writer) *app {
	return &app{stdin: stdin, stdout: stdout, stderr: stderr}
}

// execute runs the command line and returns the process exit status.
func (a *app) execute(ctx context.Context, args []string) int {
	root := a.rootCmd()
	root.SetArgs(args)

	err := root.ExecuteContext(ctx)
	if err == nil {
		return service.ExitOK
	}
	if !silent(err) {
		fmt.Fprintln(a.stderr, errorStyle.Render("Error:")+" "+err.Error())
	}
	return exitCode(err)
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "pysb",
		Short: "Manage python-build-standalone runtimes and virtual environments",
		Long: titleStyle.Render("pysb") + mutedStyle.Render(" - python-build-standalone manager") + `

Installs prebuilt CPython runtimes from python-build-standalone releases and
creates named virtual environments on top of them.

Examples:
  pysb versions list --available       Show versions published for this host
  pysb versions install 3.12.2         Install a runtime
  pysb env create web --version 3.12.2 Create an environment
  eval "$(pysb env activate web)"      Activate it in the current shell`,
		Version:       Version,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup()
		},
	}
	root.SetIn(a.stdin)
	root.SetOut(a.stdout)
	root.SetErr(a.stderr)
	root.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return usageError(err)
	})

	flags := root.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "", "config file (default $"+config.EnvConfig+" or ~/.local/share/pysb/config.toml)")
	flags.BoolVarP(&a.verbose, "verbose", "v", false, "enable debug logging")
	flags.StringVarP(&a.output, "output", "o", outputTable, "output format for listings: table, json or yaml")

	root.AddCommand(
		a.versionsCmd(),
		a.envCmd(),
		a.configCmd(),
		a.gcCmd(),
	)
	return root
}

// setup validates global flags and builds the logger.
func (a *app) setup() error {
	switch a.output {
	case outputTable, outputJSON, outputYAML:
	default:
		return usageError(fmt.Errorf("unknown output format %q (want table, json or yaml)", a.output))
	}

	level := log.InfoLevel
	if a.verbose || os.Getenv(EnvDebug) != "" {
		level = log.DebugLevel
	}
	handler := log.NewWithOptions(a.stderr, log.Options{Level: level, Prefix: "pysb"})
	a.logger = slog.New(handler)
	return nil
}

// store loads the configuration file selected by --config or the environment.
func (a *app) store() (*config.Store, error) {
	path := a.configPath
	if path == "" {
		p, err := config.DefaultPath()
		if err != nil {
			return nil, err
		}
		path = p
	}
	return config.Load(path)
}

// service builds a service from the effective configuration. mutate, when
// non-nil, adjusts settings from command flags first.
func (a *app) service(mutate func(*config.Settings)) (*service.Service, error) {
	store, err := a.store()
	if err != nil {
		return nil, err
	}
	settings, err := store.Settings()
	if err != nil {
		return nil, err
	}
	if mutate != nil {
		mutate(settings)
	}
	a.logger.Debug("configuration loaded", "path", store.Path(), "versions", settings.VersionsDir, "venvs", settings.VenvsDir)

	return service.New(service.Options{
		Settings: settings,
		Logger:   a.logger,
		Detector: a.detector,
	}), nil
}

// usageArgs wraps a cobra argument validator so its failures exit with the
// usage status.
func usageArgs(validate cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := validate(cmd, args); err != nil {
			return usageError(err)
		}
		return nil
	}
}

// isTerminal reports whether w is an interactive terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	stat, err := f.Stat()
	return err == nil && stat.Mode()&os.ModeCharDevice != 0
}
