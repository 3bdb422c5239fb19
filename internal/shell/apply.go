package shell

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"mvdan.cc/sh/v3/expand"
	"mvdan.cc/sh/v3/interp"
	"mvdan.cc/sh/v3/syntax"
)

// captureCommand is appended to the script; running it snapshots the
// interpreter's environment.
const captureCommand = "__pysb_capture_env"

// Apply evaluates POSIX activation statements against environ and returns
// the exported environment afterwards, sorted as KEY=VALUE pairs. The script
// may only use shell builtins.
func Apply(ctx context.Context, script string, environ []string) ([]string, error) {
	prog, err := syntax.NewParser(syntax.Variant(syntax.LangBash)).
		Parse(strings.NewReader(script+"\n"+captureCommand+"\n"), "activate")
	if err != nil {
		return nil, fmt.Errorf("parse activation script: %w", err)
	}

	var (
		captured []string
		ran      bool
	)
	handler := func(next interp.ExecHandlerFunc) interp.ExecHandlerFunc {
		return func(ctx context.Context, args []string) error {
			if args[0] != captureCommand {
				return fmt.Errorf("activation script runs external command %q", args[0])
			}
			ran = true
			captured = snapshot(interp.HandlerCtx(ctx).Env)
			return nil
		}
	}

	var stderr strings.Builder
	runner, err := interp.New(
		interp.Env(expand.ListEnviron(environ...)),
		interp.StdIO(nil, &stderr, &stderr),
		interp.ExecHandlers(handler),
	)
	if err != nil {
		return nil, fmt.Errorf("create interpreter: %w", err)
	}

	if err := runner.Run(ctx, prog); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("evaluate activation script: %w: %s", err, msg)
		}
		return nil, fmt.Errorf("evaluate activation script: %w", err)
	}
	if !ran {
		return nil, fmt.Errorf("evaluate activation script: exited before completion")
	}
	return captured, nil
}

// snapshot returns the exported string variables of env as sorted KEY=VALUE
// pairs. Each also yields the parent environ underneath the script's own
// assignments, so every name is resolved once through Get, which sees the
// latest value or the unset.
func snapshot(env expand.Environ) []string {
	seen := make(map[string]bool)
	var names []string
	env.Each(func(name string, _ expand.Variable) bool {
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
		return true
	})
	sort.Strings(names)

	captured := make([]string, 0, len(names))
	for _, name := range names {
		if vr := env.Get(name); vr.IsSet() && vr.Exported && vr.Kind == expand.String {
			captured = append(captured, name+"="+vr.Str)
		}
	}
	return captured
}

// Lookup returns the value of key in a KEY=VALUE environment.
func Lookup(environ []string, key string) (string, bool) {
	for _, kv := range environ {
		if k, v, ok := strings.Cut(kv, "="); ok && k == key {
			return v, true
		}
	}
	return "", false
}
