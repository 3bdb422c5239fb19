package install

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ZebulonRouseFrantzich/pysb/internal/testutil"
)

func TestExtractorMemberPath(t *testing.T) {
	e := NewExtractor()
	tests := []struct {
		name   string
		want   string
		wantOK bool
	}{
		{name: "python/", want: "", wantOK: true},
		{name: "python", want: "", wantOK: true},
		{name: "./python/bin/python3", want: "bin/python3", wantOK: true},
		{name: "python/lib/", want: "lib", wantOK: true},
		{name: "pythonic/bin", wantOK: false},
		{name: "bin/python3", wantOK: false},
	}
	for _, tt := range tests {
		got, ok := e.memberPath(tt.name)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("memberPath(%q) = %q, %v; want %q, %v", tt.name, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestExtractPermissionsAndLinks(t *testing.T) {
	entries := []testutil.TarEntry{
		{Name: "python/bin/python3.12", Body: "#!/bin/sh\n", Mode: 0o4755},
		{Name: "python/share/doc", Body: "docs", Mode: 0o600},
	}
	data := testutil.TarGz(t, entries)
	archive := testutil.WriteFile(t, t.TempDir(), "a.tar.gz", data)
	dest := filepath.Join(t.TempDir(), "out")

	if err := NewExtractor().Extract(archive, dest); err != nil {
		t.Fatalf("Extract failed: %v", err)
	}

	info, err := os.Stat(filepath.Join(dest, "bin", "python3.12"))
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode()&os.ModeSetuid != 0 {
		t.Error("setuid bit must be dropped")
	}
	if info.Mode().Perm() != 0o755 {
		t.Errorf("mode = %v, want 0755", info.Mode().Perm())
	}

	info, err = os.Stat(filepath.Join(dest, "share", "doc"))
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("mode = %v, want 0600", info.Mode().Perm())
	}
}

func TestExtractInternalSymlinkChain(t *testing.T) {
	entries := append(testutil.RuntimeEntries("3.12.2"),
		testutil.TarEntry{Name: "python/lib/libpython3.so", Linkname: "libpython3.12.so"},
		testutil.TarEntry{Name: "python/lib/libpython3.12.so", Body: "ELF", Mode: 0o755},
		testutil.TarEntry{Name: "python/share/man/python3.1", Linkname: "../../lib/libpython3.so"},
	)
	archive := testutil.WriteFile(t, t.TempDir(), "a.tar.zst", testutil.TarZst(t, entries))
	dest := filepath.Join(t.TempDir(), "out")

	if err := NewExtractor().Extract(archive, dest); err != nil {
		t.Fatalf("Extract failed: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dest, "share", "man", "python3.1"))
	if err != nil {
		t.Fatalf("follow symlink chain: %v", err)
	}
	if string(data) != "ELF" {
		t.Errorf("content = %q", data)
	}
}

func TestExtractRejectsWritesThroughSymlinks(t *testing.T) {
	parent := t.TempDir()
	dest := filepath.Join(parent, "staging")
	entries := []testutil.TarEntry{
		{Name: "python/a", Linkname: "."},
		{Name: "python/a/b", Linkname: ".."},
		{Name: "python/b/outside/bin/python3", Body: "#!/bin/sh\n", Mode: 0o755},
	}
	archive := testutil.WriteFile(t, t.TempDir(), "a.tar.gz", testutil.TarGz(t, entries))

	if err := NewExtractor().Extract(archive, dest); err == nil {
		t.Fatal("expected an error for a member written through an escaping symlink")
	}
	if _, err := os.Lstat(filepath.Join(parent, "outside")); !os.IsNotExist(err) {
		t.Errorf("member written outside the destination: %v", err)
	}
}

func TestExtractRejectsLinksResolvingOutside(t *testing.T) {
	tests := []struct {
		name    string
		entries []testutil.TarEntry
	}{
		{
			name: "through a sibling link",
			entries: []testutil.TarEntry{
				{Name: "python/a", Linkname: "."},
				{Name: "python/x", Linkname: "a/.."},
			},
		},
		{
			name: "link created after its target path",
			entries: []testutil.TarEntry{
				{Name: "python/x", Linkname: "c/../z"},
				{Name: "python/c", Linkname: "d/.."},
				{Name: "python/d", Linkname: "."},
			},
		},
		{
			name: "cycle",
			entries: []testutil.TarEntry{
				{Name: "python/loop", Linkname: "loop"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			archive := testutil.WriteFile(t, t.TempDir(), "a.tar.gz", testutil.TarGz(t, tt.entries))
			if err := NewExtractor().Extract(archive, filepath.Join(t.TempDir(), "out")); err == nil {
				t.Fatal("expected the link to be rejected")
			}
		})
	}
}
