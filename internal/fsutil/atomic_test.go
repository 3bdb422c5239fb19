package fsutil

import (
	"os"
	"path/filepath"
	"testing"
)

func TestWriteFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "marker.json")

	if err := WriteFile(path, []byte("first"), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	if err := WriteFile(path, []byte("second"), 0o600); err != nil {
		t.Fatalf("overwrite failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "second" {
		t.Errorf("content = %q, want %q", data, "second")
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("mode = %v, want 0600", info.Mode().Perm())
	}

	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("temporary files left behind: %v", entries)
	}
}

func TestJSONRoundTrip(t *testing.T) {
	type marker struct {
		Name    string `json:"name"`
		Version string `json:"version"`
	}

	path := filepath.Join(t.TempDir(), "m.json")
	if err := WriteJSON(path, marker{Name: "dev", Version: "3.12.2"}, 0o644); err != nil {
		t.Fatal(err)
	}

	var got marker
	if err := ReadJSON(path, &got); err != nil {
		t.Fatal(err)
	}
	if got.Name != "dev" || got.Version != "3.12.2" {
		t.Errorf("got %+v", got)
	}

	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := ReadJSON(path, &got); err == nil {
		t.Error("expected error for corrupt JSON")
	}
	if err := ReadJSON(filepath.Join(t.TempDir(), "missing"), &got); !os.IsNotExist(err) {
		t.Errorf("expected not-exist error, got %v", err)
	}
}
