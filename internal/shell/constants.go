package shell

// Environment variable names set or saved by activation
const (
	// EnvVirtualEnv is the standard variable naming the active virtualenv
	EnvVirtualEnv = "VIRTUAL_ENV"

	// EnvPysbEnv names the active pysb environment
	EnvPysbEnv = "PYSB_ENV"

	// EnvOldPath holds PATH as it was before activation
	EnvOldPath = "_PYSB_OLD_PATH"

	// EnvOldVirtualEnv holds a VIRTUAL_ENV set before activation
	EnvOldVirtualEnv = "_PYSB_OLD_VIRTUAL_ENV"

	// EnvPythonHome is unset on activation
	EnvPythonHome = "PYTHONHOME"
)
