package testutil

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/zstd"
)

// FailPipPackage makes the fake interpreter's pip fail when it is asked to
// install it.
const FailPipPackage = "does-not-exist"

// FailVenvEnv, when set in the environment, makes "-m venv" fail.
const FailVenvEnv = "PYSB_FAKE_VENV_FAIL"

// interpreterScript imitates the parts of CPython pysb drives: "-m venv" lays
// out an environment whose python3 records pip invocations in pip.log.
const interpreterScript = `#!/bin/sh
if [ "$1" = "-m" ] && [ "$2" = "venv" ]; then
  root="$3"
  if [ -n "$PYSB_FAKE_VENV_FAIL" ]; then
    echo "Error: simulated venv failure" >&2
    exit 1
  fi
  mkdir -p "$root/bin" || exit 1
  printf 'home = %s\nversion = @VERSION@\n' "$(dirname "$0")" > "$root/pyvenv.cfg"
  cat > "$root/bin/python3" <<'EOF'
#!/bin/sh
if [ "$1" = "-m" ] && [ "$2" = "pip" ]; then
  shift 2
  for arg in "$@"; do
    if [ "$arg" = "@FAIL@" ]; then
      echo "ERROR: No matching distribution found for $arg" >&2
      exit 1
    fi
  done
  echo "$*" >> "$(dirname "$0")/../pip.log"
  exit 0
fi
echo "Python @VERSION@"
EOF
  chmod +x "$root/bin/python3"
  ln -s python3 "$root/bin/python"
  exit 0
fi
echo "Python @VERSION@"
`

// InterpreterScript returns the fake python3 for version.
func InterpreterScript(version string) string {
	return strings.NewReplacer("@VERSION@", version, "@FAIL@", FailPipPackage).Replace(interpreterScript)
}

// TarEntry is one member of a test archive.
type TarEntry struct {
	Name     string
	Body     string
	Mode     int64
	Linkname string // symlink target when set
	Dir      bool
}

// RuntimeEntries returns the members of a minimal python-build-standalone
// install_only archive for version.
func RuntimeEntries(version string) []TarEntry {
	minor := version
	if parts := strings.Split(version, "."); len(parts) >= 2 {
		minor = parts[0] + "." + parts[1]
	}
	return []TarEntry{
		{Name: "python/", Dir: true},
		{Name: "python/bin/", Dir: true},
		{Name: "python/bin/python3", Body: InterpreterScript(version), Mode: 0o755},
		{Name: "python/bin/python", Linkname: "python3"},
		{Name: "python/lib/python" + minor + "/os.py", Body: "# os module\n", Mode: 0o644},
		{Name: "python/include/python" + minor + "/Python.h", Body: "/* header */\n", Mode: 0o644},
	}
}

// TarGz builds a gzip-compressed tarball of entries.
func TarGz(t *testing.T, entries []TarEntry) []byte {
	t.Helper()

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	writeTar(t, gz, entries)
	if err := gz.Close(); err != nil {
		t.Fatalf("close gzip: %v", err)
	}
	return buf.Bytes()
}

// TarZst builds a zstd-compressed tarball of entries.
func TarZst(t *testing.T, entries []TarEntry) []byte {
	t.Helper()

	var buf bytes.Buffer
	zw, err := zstd.NewWriter(&buf)
	if err != nil {
		t.Fatalf("create zstd writer: %v", err)
	}
	writeTar(t, zw, entries)
	if err := zw.Close(); err != nil {
		t.Fatalf("close zstd: %v", err)
	}
	return buf.Bytes()
}

func writeTar(t *testing.T, w io.Writer, entries []TarEntry) {
	t.Helper()

	tw := tar.NewWriter(w)
	for _, e := range entries {
		hdr := &tar.Header{Name: e.Name, Mode: e.Mode}
		switch {
		case e.Dir:
			hdr.Typeflag = tar.TypeDir
			hdr.Mode = 0o755
		case e.Linkname != "":
			hdr.Typeflag = tar.TypeSymlink
			hdr.Linkname = e.Linkname
			hdr.Mode = 0o777
		default:
			hdr.Typeflag = tar.TypeReg
			hdr.Size = int64(len(e.Body))
			if hdr.Mode == 0 {
				hdr.Mode = 0o644
			}
		}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatalf("write tar header %s: %v", e.Name, err)
		}
		if hdr.Typeflag == tar.TypeReg {
			if _, err := tw.Write([]byte(e.Body)); err != nil {
				t.Fatalf("write tar body %s: %v", e.Name, err)
			}
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("close tar: %v", err)
	}
}

// WriteFile writes data to dir/name and returns the path.
func WriteFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()

	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

// InstallFakeRuntime lays out an installed runtime for version directly under
// versionsDir, bypassing the installer. It returns the runtime root.
func InstallFakeRuntime(t *testing.T, versionsDir, version string) string {
	t.Helper()

	root := filepath.Join(versionsDir, version)
	bin := filepath.Join(root, "bin")
	if err := os.MkdirAll(bin, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(bin, "python3"), []byte(InterpreterScript(version)), 0o755); err != nil {
		t.Fatal(err)
	}
	return root
}
