package shell

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/ZebulonRouseFrantzich/pysb/internal/venv"
)

func activate(t *testing.T, env *venv.Environment, environ []string) []string {
	t.Helper()

	script, err := Emit(env, ShellBash)
	if err != nil {
		t.Fatalf("Emit() error = %v", err)
	}
	out, err := Apply(context.Background(), script, environ)
	if err != nil {
		t.Fatalf("Apply() error = %v\nscript:\n%s", err, script)
	}
	return out
}

func deactivate(t *testing.T, environ []string) []string {
	t.Helper()

	script, err := EmitDeactivate(ShellBash)
	if err != nil {
		t.Fatalf("EmitDeactivate() error = %v", err)
	}
	out, err := Apply(context.Background(), script, environ)
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	return out
}

func mustLookup(t *testing.T, environ []string, key string) string {
	t.Helper()

	v, ok := Lookup(environ, key)
	if !ok {
		t.Fatalf("%s not set in %v", key, environ)
	}
	return v
}

func TestEmitActivateRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		root string
	}{
		{name: "plain", root: "/opt/python/envs/web"},
		{name: "spaces", root: "/home/me/my envs/web app"},
		{name: "quotes", root: `/tmp/it's "quoted"`},
		{name: "expansion characters", root: "/tmp/$HOME/`id`/$(rm -rf x)"},
		{name: "glob and separators", root: "/tmp/a*b;c&d|e"},
		{name: "newline", root: "/tmp/line\nbreak"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := &venv.Environment{Name: "web", Root: tt.root}
			out := activate(t, env, []string{"PATH=/usr/bin:/bin", "PYTHONHOME=/elsewhere", "HOME=/home/me"})

			if got := mustLookup(t, out, EnvVirtualEnv); got != tt.root {
				t.Errorf("VIRTUAL_ENV = %q, want %q", got, tt.root)
			}
			if got := mustLookup(t, out, EnvPysbEnv); got != "web" {
				t.Errorf("PYSB_ENV = %q", got)
			}
			if got, want := mustLookup(t, out, "PATH"), tt.root+"/bin:/usr/bin:/bin"; got != want {
				t.Errorf("PATH = %q, want %q", got, want)
			}
			if got := mustLookup(t, out, EnvOldPath); got != "/usr/bin:/bin" {
				t.Errorf("_PYSB_OLD_PATH = %q", got)
			}
			if _, ok := Lookup(out, EnvPythonHome); ok {
				t.Error("PYTHONHOME should be unset")
			}
			if _, ok := Lookup(out, EnvOldVirtualEnv); ok {
				t.Error("_PYSB_OLD_VIRTUAL_ENV should only be saved when VIRTUAL_ENV was set")
			}
		})
	}
}

func TestDeactivateRestores(t *testing.T) {
	env := &venv.Environment{Name: "web", Root: "/envs/web"}

	t.Run("without prior virtualenv", func(t *testing.T) {
		before := []string{"PATH=/usr/bin", "TERM=xterm"}
		out := deactivate(t, activate(t, env, before))

		if got := mustLookup(t, out, "PATH"); got != "/usr/bin" {
			t.Errorf("PATH = %q", got)
		}
		for _, key := range []string{EnvVirtualEnv, EnvPysbEnv, EnvOldPath, EnvOldVirtualEnv} {
			if _, ok := Lookup(out, key); ok {
				t.Errorf("%s should be unset after deactivation", key)
			}
		}
		if got := mustLookup(t, out, "TERM"); got != "xterm" {
			t.Errorf("unrelated variable changed: TERM = %q", got)
		}
	})

	t.Run("with prior virtualenv", func(t *testing.T) {
		before := []string{"PATH=/usr/bin", "VIRTUAL_ENV=/home/me/.venv"}
		active := activate(t, env, before)
		if got := mustLookup(t, active, EnvOldVirtualEnv); got != "/home/me/.venv" {
			t.Errorf("_PYSB_OLD_VIRTUAL_ENV = %q", got)
		}

		out := deactivate(t, active)
		if got := mustLookup(t, out, EnvVirtualEnv); got != "/home/me/.venv" {
			t.Errorf("VIRTUAL_ENV = %q, want the prior value", got)
		}
	})

	t.Run("nothing active", func(t *testing.T) {
		before := []string{"PATH=/usr/bin", "VIRTUAL_ENV=/home/me/.venv"}
		out := deactivate(t, before)
		if got := mustLookup(t, out, EnvVirtualEnv); got != "/home/me/.venv" {
			t.Errorf("foreign VIRTUAL_ENV must be left alone, got %q", got)
		}
	})
}

func TestSwitchingEnvironmentsDoesNotStack(t *testing.T) {
	before := []string{"PATH=/usr/bin"}
	first := activate(t, &venv.Environment{Name: "web", Root: "/envs/web"}, before)
	second := activate(t, &venv.Environment{Name: "api", Root: "/envs/api"}, first)

	if got := mustLookup(t, second, "PATH"); got != "/envs/api/bin:/usr/bin" {
		t.Errorf("PATH = %q", got)
	}
	if got := mustLookup(t, second, EnvPysbEnv); got != "api" {
		t.Errorf("PYSB_ENV = %q", got)
	}
	if _, ok := Lookup(second, EnvOldVirtualEnv); ok {
		t.Error("a pysb environment must not be saved as the prior virtualenv")
	}

	out := deactivate(t, second)
	if got := mustLookup(t, out, "PATH"); got != "/usr/bin" {
		t.Errorf("PATH after deactivate = %q", got)
	}
}

func TestEmitFish(t *testing.T) {
	env := &venv.Environment{Name: "web", Root: `/envs/it's\here`}
	got, err := Emit(env, ShellFish)
	if err != nil {
		t.Fatalf("Emit() error = %v", err)
	}

	for _, want := range []string{
		`set -gx VIRTUAL_ENV '/envs/it\'s\\here'`,
		`set -gx PYSB_ENV 'web'`,
		`set -gx PATH '/envs/it\'s\\here/bin' $PATH`,
		"set -gx _PYSB_OLD_PATH $PATH",
		"set -e PYTHONHOME",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("fish activation missing %q:\n%s", want, got)
		}
	}
	if strings.Contains(got, "export ") {
		t.Error("fish activation must not use export")
	}
}

func TestEmitZshMatchesBash(t *testing.T) {
	env := &venv.Environment{Name: "web", Root: "/envs/web"}
	bash, err := Emit(env, ShellBash)
	if err != nil {
		t.Fatal(err)
	}
	zsh, err := Emit(env, ShellZsh)
	if err != nil {
		t.Fatal(err)
	}
	if bash != zsh {
		t.Errorf("zsh activation differs from bash:\n%s\n---\n%s", zsh, bash)
	}
}

func TestEmitErrors(t *testing.T) {
	env := &venv.Environment{Name: "web", Root: "/envs/web"}

	var unsupported *UnsupportedShellError
	if _, err := Emit(env, ShellType("ksh")); !errors.As(err, &unsupported) {
		t.Errorf("Emit(ksh) error = %v, want *UnsupportedShellError", err)
	}
	if _, err := EmitDeactivate(ShellUnknown); !errors.As(err, &unsupported) {
		t.Errorf("EmitDeactivate(unknown) error = %v, want *UnsupportedShellError", err)
	}

	bad := &venv.Environment{Name: "web", Root: "/envs/nul\x00byte"}
	for _, s := range SupportedShells() {
		var qerr *QuoteError
		if _, err := Emit(bad, s); !errors.As(err, &qerr) {
			t.Errorf("Emit(%s) with null byte: error = %v, want *QuoteError", s, err)
		}
	}
}

func TestApplyRejectsExternalCommands(t *testing.T) {
	_, err := Apply(context.Background(), "touch /tmp/pysb-should-not-exist", []string{"PATH=/usr/bin:/bin"})
	if err == nil || !strings.Contains(err.Error(), "external command") {
		t.Errorf("Apply() error = %v, want external command refusal", err)
	}
}

func TestApplyEarlyExit(t *testing.T) {
	if _, err := Apply(context.Background(), "exit 0", nil); err == nil {
		t.Error("Apply() should fail when the script exits early")
	}
}

func TestApplyReportsEachVariableOnce(t *testing.T) {
	env := &venv.Environment{Name: "web", Root: "/envs/web"}
	out := activate(t, env, []string{"PATH=/usr/bin:/bin", "PYTHONHOME=/elsewhere", "HOME=/home/u"})

	counts := make(map[string]int)
	for _, kv := range out {
		k, _, _ := strings.Cut(kv, "=")
		counts[k]++
	}
	for k, n := range counts {
		if n != 1 {
			t.Errorf("%s appears %d times in %v", k, n, out)
		}
	}

	if got, _ := Lookup(out, "PATH"); got != "/envs/web/bin:/usr/bin:/bin" {
		t.Errorf("PATH = %q", got)
	}
	if v, ok := Lookup(out, "PYTHONHOME"); ok {
		t.Errorf("PYTHONHOME = %q, want unset", v)
	}
	if got, _ := Lookup(out, "HOME"); got != "/home/u" {
		t.Errorf("HOME = %q, want it passed through", got)
	}
}
