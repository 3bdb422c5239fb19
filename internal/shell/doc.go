// Package shell produces the statements that activate and deactivate a
// virtual environment in the user's shell.
//
// pysb cannot change its parent's environment, so activation works the way
// other environment managers do: the command prints shell statements and the
// user evaluates them:
//
//	# bash, zsh
//	eval "$(pysb env activate web)"
//
//	# fish
//	pysb env activate web | source
//
// # Activation
//
// Activating an environment exports VIRTUAL_ENV and PYSB_ENV, puts the
// environment's bin directory first on PATH and unsets PYTHONHOME. PATH and
// any VIRTUAL_ENV set by another tool are saved in _PYSB_OLD_PATH and
// _PYSB_OLD_VIRTUAL_ENV so that deactivation can restore them. Activating while
// another pysb environment is active first restores the saved values, so
// switching environments never stacks PATH entries.
//
// Every value taken from the filesystem is quoted for the target shell, so an
// environment root containing spaces, quotes or "$" cannot inject statements.
//
// # Shell Detection
//
// Without --shell, the shell named by $SHELL is used, then the parent
// process (inspected with gopsutil). Callers fall back to bash when neither
// names a supported shell.
//
// # In-process evaluation
//
// Apply evaluates POSIX activation statements with an embedded interpreter
// and returns the resulting environment. "pysb env run" uses it to run a
// command inside an environment without spawning a shell.
package shell
