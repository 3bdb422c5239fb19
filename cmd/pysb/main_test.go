package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/ZebulonRouseFrantzich/pysb/internal/catalog"
	"github.com/ZebulonRouseFrantzich/pysb/internal/platform"
	"github.com/ZebulonRouseFrantzich/pysb/internal/service"
	"github.com/ZebulonRouseFrantzich/pysb/internal/testutil"
)

type cli struct {
	t     *testing.T
	roots testutil.Roots
}

type result struct {
	code   int
	stdout string
	stderr string
}

// newCLI isolates pysb under a temp dir and points it at a fake release
// publishing the given versions for x86_64 linux.
func newCLI(t *testing.T, versions ...string) *cli {
	t.Helper()

	roots := testutil.SetupTestEnv(t)
	var assets []testutil.Asset
	for _, v := range versions {
		assets = append(assets, testutil.Asset{
			Name:   testutil.RuntimeAssetName(v, "x86_64-unknown-linux-gnu", catalog.VariantStripped),
			Body:   testutil.TarGz(t, testutil.RuntimeEntries(v)),
			Digest: true,
		})
	}
	server := testutil.NewCatalogServer(t, assets...)

	cfg := fmt.Sprintf(`[releases]
url = %q

[paths]
versions = %q
venvs = %q
cache = %q

[download]
retries = 1
`, server.CatalogURL(), roots.Versions, roots.Venvs, roots.Cache)
	if err := os.WriteFile(roots.Config, []byte(cfg), 0o644); err != nil {
		t.Fatal(err)
	}
	return &cli{t: t, roots: roots}
}

func (c *cli) run(args ...string) result {
	c.t.Helper()

	var stdout, stderr bytes.Buffer
	a := newApp(strings.NewReader(""), &stdout, &stderr)
	a.detector = platform.StaticDetector{Info: platform.Info{OS: "linux", Arch: "x86_64", Libc: platform.LibcGNU}}
	code := a.execute(context.Background(), args)
	return result{code: code, stdout: stdout.String(), stderr: stderr.String()}
}

func (c *cli) mustRun(args ...string) result {
	c.t.Helper()

	r := c.run(args...)
	if r.code != 0 {
		c.t.Fatalf("pysb %s exited %d\nstdout: %s\nstderr: %s", strings.Join(args, " "), r.code, r.stdout, r.stderr)
	}
	return r
}

func TestVersionsAndEnvironments(t *testing.T) {
	c := newCLI(t, "3.12.2", "3.11.9")

	r := c.mustRun("versions", "install", "3.12.2")
	if !strings.Contains(r.stdout, "installed python 3.12.2 (linux-x86_64-gnu)") {
		t.Errorf("install output = %q", r.stdout)
	}

	r = c.mustRun("versions", "list", "--output", "json")
	var installed []map[string]any
	if err := json.Unmarshal([]byte(r.stdout), &installed); err != nil {
		t.Fatalf("versions list json: %v\n%s", err, r.stdout)
	}
	if len(installed) != 1 || installed[0]["version"] != "3.12.2" {
		t.Errorf("versions list = %v", installed)
	}

	r = c.mustRun("versions", "list", "--available")
	for _, want := range []string{"3.11.9", "3.12.2", "yes", "VERSION"} {
		if !strings.Contains(r.stdout, want) {
			t.Errorf("available table missing %q:\n%s", want, r.stdout)
		}
	}

	c.mustRun("env", "create", "web", "--version", "3.12.2")

	r = c.run("versions", "remove", "3.12.2")
	if r.code != service.ExitInUse || !strings.Contains(r.stderr, "web") {
		t.Errorf("remove in-use version: exit %d, stderr %q", r.code, r.stderr)
	}

	r = c.mustRun("env", "list", "-o", "yaml")
	if !strings.Contains(r.stdout, "name: web") || !strings.Contains(r.stdout, "version: 3.12.2") {
		t.Errorf("env list yaml:\n%s", r.stdout)
	}

	c.mustRun("env", "remove", "web")
	c.mustRun("versions", "remove", "3.12.2")

	r = c.mustRun("versions", "list")
	if !strings.Contains(r.stdout, "No Python versions installed") {
		t.Errorf("empty list output = %q", r.stdout)
	}
}

func TestVersionsInstallExitCodes(t *testing.T) {
	c := newCLI(t, "3.12.2")

	if r := c.run("versions", "install", "3.99.1"); r.code != service.ExitNotFound {
		t.Errorf("unknown version: exit %d, want %d", r.code, service.ExitNotFound)
	}
	if r := c.run("versions", "install", "3.12"); r.code != service.ExitUsage {
		t.Errorf("partial version: exit %d, want %d", r.code, service.ExitUsage)
	}

	c.mustRun("versions", "install", "3.12.2")
	if r := c.run("versions", "install", "3.12.2"); r.code != service.ExitConflict {
		t.Errorf("reinstall: exit %d, want %d", r.code, service.ExitConflict)
	}
	c.mustRun("versions", "install", "3.12.2", "--force")

	r := c.run("versions", "install", "3.12.2", "3.99.1", "--force")
	if r.code != service.ExitNotFound || !strings.Contains(r.stderr, "failed 3.99.1") {
		t.Errorf("mixed install: exit %d, stderr %q", r.code, r.stderr)
	}
}

func TestEnvActivateAndRun(t *testing.T) {
	c := newCLI(t)
	testutil.InstallFakeRuntime(t, c.roots.Versions, "3.12.2")
	c.mustRun("env", "create", "web", "--version", "3.12.2")

	r := c.mustRun("env", "activate", "web", "--shell", "bash")
	if !strings.Contains(r.stdout, "export VIRTUAL_ENV=") || !strings.Contains(r.stdout, "export PYSB_ENV=") {
		t.Errorf("bash activation:\n%s", r.stdout)
	}
	if strings.Contains(r.stderr, "eval") {
		t.Errorf("TTY note printed for a pipe: %q", r.stderr)
	}

	r = c.mustRun("env", "activate", "web", "--shell", "fish")
	if !strings.Contains(r.stdout, "set -gx VIRTUAL_ENV") {
		t.Errorf("fish activation:\n%s", r.stdout)
	}

	r = c.mustRun("env", "deactivate", "--shell", "zsh")
	if !strings.Contains(r.stdout, "unset PYSB_ENV") {
		t.Errorf("deactivation:\n%s", r.stdout)
	}

	if r := c.run("env", "activate", "web", "--shell", "tcsh"); r.code != service.ExitUsage {
		t.Errorf("unsupported shell: exit %d", r.code)
	}
	if r := c.run("env", "activate", "nope", "--shell", "bash"); r.code != service.ExitNotFound {
		t.Errorf("unknown env: exit %d", r.code)
	}

	r = c.mustRun("env", "run", "web", "--", "python3", "--version")
	if strings.TrimSpace(r.stdout) != "Python 3.12.2" {
		t.Errorf("env run stdout = %q", r.stdout)
	}

	r = c.run("env", "run", "web", "--", "sh", "-c", "exit 4")
	if r.code != 4 {
		t.Errorf("env run exit = %d, want 4", r.code)
	}
	if strings.Contains(r.stderr, "Error:") {
		t.Errorf("a failing command should not be reported as a pysb error: %q", r.stderr)
	}
}

func TestEnvCreateErrors(t *testing.T) {
	c := newCLI(t)
	testutil.InstallFakeRuntime(t, c.roots.Versions, "3.12.2")

	tests := []struct {
		name string
		args []string
		want int
	}{
		{"missing version flag", []string{"env", "create", "web"}, service.ExitUsage},
		{"not installed", []string{"env", "create", "web", "--version", "3.11.9"}, service.ExitNotFound},
		{"invalid name", []string{"env", "create", "../up", "--version", "3.12.2"}, service.ExitUsage},
		{"package failure", []string{"env", "create", "pkgs", "--version", "3.12.2", "-p", testutil.FailPipPackage}, service.ExitPackageInstall},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if r := c.run(tt.args...); r.code != tt.want {
				t.Errorf("exit = %d, want %d\nstderr: %s", r.code, tt.want, r.stderr)
			}
		})
	}

	// The environment survives a package failure.
	c.mustRun("env", "activate", "pkgs", "--shell", "bash")

	c.mustRun("env", "create", "web", "--version", "3.12.2")
	if r := c.run("env", "create", "web", "--version", "3.12.2"); r.code != service.ExitDuplicateName {
		t.Errorf("duplicate: exit %d", r.code)
	}
}

func TestConfigCommands(t *testing.T) {
	c := newCLI(t)

	r := c.mustRun("config", "set", "install", "on_existing", "replace")
	if !strings.Contains(r.stdout, `install.on_existing = "replace"`) {
		t.Errorf("set output = %q", r.stdout)
	}

	r = c.mustRun("config", "show", "-o", "json")
	var entries []struct {
		Section string `json:"section"`
		Key     string `json:"key"`
		Value   string `json:"value"`
		Default bool   `json:"default"`
	}
	if err := json.Unmarshal([]byte(r.stdout), &entries); err != nil {
		t.Fatalf("config show json: %v\n%s", err, r.stdout)
	}
	found := false
	for _, e := range entries {
		if e.Section == "install" && e.Key == "on_existing" {
			found = true
			if e.Value != "replace" || e.Default {
				t.Errorf("install.on_existing = %+v", e)
			}
		}
	}
	if !found {
		t.Error("install.on_existing missing from config show")
	}

	r = c.mustRun("config", "set", "install", "on_existing")
	if !strings.Contains(r.stdout, `reset to default "reject"`) {
		t.Errorf("unset output = %q", r.stdout)
	}

	if r := c.run("config", "set", "install", "on_existing"); r.code != service.ExitNotFound {
		t.Errorf("unset twice: exit %d", r.code)
	}
	if r := c.run("config", "set", "nope", "key", "v"); r.code != service.ExitUsage {
		t.Errorf("unknown key: exit %d", r.code)
	}
	if r := c.run("config", "set", "download", "retries", "many"); r.code != service.ExitUsage {
		t.Errorf("invalid value: exit %d", r.code)
	}
}

func TestUsageErrors(t *testing.T) {
	c := newCLI(t)

	tests := []struct {
		name string
		args []string
	}{
		{"unknown command", []string{"frobnicate"}},
		{"unknown flag", []string{"versions", "list", "--bogus"}},
		{"missing args", []string{"versions", "install"}},
		{"too many args", []string{"versions", "remove", "3.12.2", "3.11.9"}},
		{"bad output format", []string{"env", "list", "--output", "xml"}},
		{"run without command", []string{"env", "run", "web"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := c.run(tt.args...)
			if r.code != service.ExitUsage {
				t.Errorf("exit = %d, want %d\nstderr: %s", r.code, service.ExitUsage, r.stderr)
			}
			if !strings.Contains(r.stderr, "Error:") {
				t.Errorf("stderr = %q, want an error message", r.stderr)
			}
		})
	}
}

func TestGC(t *testing.T) {
	c := newCLI(t)

	r := c.mustRun("gc")
	if !strings.Contains(r.stdout, "Nothing to clean up") {
		t.Errorf("gc output = %q", r.stdout)
	}
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"explicit", &ExitError{Code: 42}, 42},
		{"wrapped explicit", fmt.Errorf("run: %w", &ExitError{Code: 4, Err: errors.New("x")}), 4},
		{"usage", usageError(errors.New("bad flag")), service.ExitUsage},
		{"cobra unknown command", errors.New(`unknown command "x" for "pysb"`), service.ExitUsage},
		{"domain", fmt.Errorf("x: %w", catalog.ErrNotFound), service.ExitNotFound},
		{"other", errors.New("boom"), service.ExitGeneric},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := exitCode(tt.err); got != tt.want {
				t.Errorf("exitCode() = %d, want %d", got, tt.want)
			}
		})
	}

	if !silent(&ExitError{Code: 3}) || silent(usageError(errors.New("x"))) {
		t.Error("silent() misclassifies errors")
	}
}
