package shell

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"mvdan.cc/sh/v3/syntax"

	"github.com/ZebulonRouseFrantzich/pysb/internal/venv"
)

// posixDeactivate restores the values saved by a previous activation. It only
// touches VIRTUAL_ENV when a pysb environment is active.
const posixDeactivate = `if [ -n "${PYSB_ENV+x}" ]; then
  if [ -n "${_PYSB_OLD_PATH+x}" ]; then
    export PATH="$_PYSB_OLD_PATH"
    unset _PYSB_OLD_PATH
  fi
  if [ -n "${_PYSB_OLD_VIRTUAL_ENV+x}" ]; then
    export VIRTUAL_ENV="$_PYSB_OLD_VIRTUAL_ENV"
    unset _PYSB_OLD_VIRTUAL_ENV
  else
    unset VIRTUAL_ENV
  fi
  unset PYSB_ENV
fi
`

const fishDeactivate = `if set -q PYSB_ENV
    if set -q _PYSB_OLD_PATH
        set -gx PATH $_PYSB_OLD_PATH
        set -e _PYSB_OLD_PATH
    end
    if set -q _PYSB_OLD_VIRTUAL_ENV
        set -gx VIRTUAL_ENV $_PYSB_OLD_VIRTUAL_ENV
        set -e _PYSB_OLD_VIRTUAL_ENV
    else
        set -e VIRTUAL_ENV
    end
    set -e PYSB_ENV
end
`

// Emit returns the statements that activate env in shell.
func Emit(env *venv.Environment, shell ShellType) (string, error) {
	if err := ValidateShell(shell); err != nil {
		return "", err
	}

	root, err := quote(env.Root, shell)
	if err != nil {
		return "", err
	}
	bin, err := quote(filepath.Join(env.Root, "bin"), shell)
	if err != nil {
		return "", err
	}
	name, err := quote(env.Name, shell)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	if shell == ShellFish {
		b.WriteString(fishDeactivate)
		b.WriteString("if set -q VIRTUAL_ENV\n    set -gx _PYSB_OLD_VIRTUAL_ENV $VIRTUAL_ENV\nend\n")
		b.WriteString("set -gx _PYSB_OLD_PATH $PATH\n")
		fmt.Fprintf(&b, "set -gx %s %s\n", EnvVirtualEnv, root)
		fmt.Fprintf(&b, "set -gx %s %s\n", EnvPysbEnv, name)
		fmt.Fprintf(&b, "set -gx PATH %s $PATH\n", bin)
		fmt.Fprintf(&b, "set -e %s\n", EnvPythonHome)
		return b.String(), nil
	}

	b.WriteString(posixDeactivate)
	b.WriteString("if [ -n \"${VIRTUAL_ENV+x}\" ]; then\n  export _PYSB_OLD_VIRTUAL_ENV=\"$VIRTUAL_ENV\"\nfi\n")
	b.WriteString("export _PYSB_OLD_PATH=\"$PATH\"\n")
	fmt.Fprintf(&b, "export %s=%s\n", EnvVirtualEnv, root)
	fmt.Fprintf(&b, "export %s=%s\n", EnvPysbEnv, name)
	fmt.Fprintf(&b, "export PATH=%s:\"$PATH\"\n", bin)
	fmt.Fprintf(&b, "unset %s\n", EnvPythonHome)
	return b.String(), nil
}

// EmitDeactivate returns the statements that undo an activation in shell.
// They do nothing when no pysb environment is active.
func EmitDeactivate(shell ShellType) (string, error) {
	if err := ValidateShell(shell); err != nil {
		return "", err
	}
	if shell == ShellFish {
		return fishDeactivate, nil
	}
	return posixDeactivate, nil
}

// quote makes s a single word in shell.
func quote(s string, shell ShellType) (string, error) {
	if shell == ShellFish {
		return fishQuote(s, shell)
	}
	q, err := syntax.Quote(s, syntax.LangBash)
	if err != nil {
		return "", &QuoteError{Shell: shell, Value: s, Cause: err}
	}
	return q, nil
}

// fishQuote single-quotes s. Inside fish single quotes only \\ and \' are
// escapes.
func fishQuote(s string, shell ShellType) (string, error) {
	if strings.ContainsRune(s, 0) {
		return "", &QuoteError{Shell: shell, Value: s, Cause: errors.New("null byte")}
	}
	r := strings.NewReplacer(`\`, `\\`, `'`, `\'`)
	return "'" + r.Replace(s) + "'", nil
}
