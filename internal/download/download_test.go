package download

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func sha256Hex(data string) string {
	sum := sha256.Sum256([]byte(data))
	return hex.EncodeToString(sum[:])
}

// newTestDownloader returns a downloader without backoff delays.
func newTestDownloader(retries int) *Downloader {
	d := NewDownloader(Config{Retries: retries})
	d.backoff = func(int) time.Duration { return 0 }
	return d
}

func TestDownloaderDownloadToFile(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		body       string
		wantErr    bool
	}{
		{
			name:       "successful_download",
			statusCode: http.StatusOK,
			body:       "test archive content",
			wantErr:    false,
		},
		{
			name:       "404_not_found",
			statusCode: http.StatusNotFound,
			body:       "not found",
			wantErr:    true,
		},
		{
			name:       "500_server_error",
			statusCode: http.StatusInternalServerError,
			body:       "server error",
			wantErr:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Header.Get("User-Agent") != DefaultUserAgent {
					t.Errorf("unexpected User-Agent: %s", r.Header.Get("User-Agent"))
				}

				w.WriteHeader(tt.statusCode)
				if _, err := w.Write([]byte(tt.body)); err != nil {
					t.Errorf("failed to write response: %v", err)
				}
			}))
			defer server.Close()

			tmpDir := t.TempDir()
			downloader := newTestDownloader(1)

			destPath := filepath.Join(tmpDir, "test-file")
			err := downloader.DownloadToFile(context.Background(), server.URL, destPath)

			if tt.wantErr {
				if !errors.Is(err, ErrNetwork) {
					t.Errorf("expected ErrNetwork, got %v", err)
				}
				if _, statErr := os.Stat(destPath); !os.IsNotExist(statErr) {
					t.Error("destination should not exist after failure")
				}
				return
			}

			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			content, err := os.ReadFile(destPath)
			if err != nil {
				t.Fatalf("failed to read downloaded file: %v", err)
			}

			if string(content) != tt.body {
				t.Errorf("content mismatch:\ngot:  %q\nwant: %q", string(content), tt.body)
			}
		})
	}
}

func TestDownloaderRetryLogic(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte("success"))
	}))
	defer server.Close()

	downloader := newTestDownloader(3)
	destPath := filepath.Join(t.TempDir(), "test-file")

	target := Target{URL: server.URL, Checksum: sha256Hex("success")}
	if err := downloader.Fetch(context.Background(), target, destPath); err != nil {
		t.Fatalf("expected success after retries, got error: %v", err)
	}

	if got := attempts.Load(); got != 3 {
		t.Errorf("expected 3 attempts, got %d", got)
	}
}

func TestDownloaderRetryExhaustion(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	downloader := newTestDownloader(2)
	destPath := filepath.Join(t.TempDir(), "archive.tar.gz")

	err := downloader.Fetch(context.Background(), Target{URL: server.URL}, destPath)
	if !errors.Is(err, ErrNetwork) {
		t.Fatalf("expected ErrNetwork, got %v", err)
	}
	if got := attempts.Load(); got != 3 {
		t.Errorf("expected 3 attempts (1 + 2 retries), got %d", got)
	}
}

func TestDownloaderNoRetryOnClientError(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	downloader := newTestDownloader(3)
	err := downloader.Fetch(context.Background(), Target{URL: server.URL}, filepath.Join(t.TempDir(), "f"))

	var statusErr *StatusError
	if !errors.As(err, &statusErr) || statusErr.StatusCode != http.StatusForbidden {
		t.Fatalf("expected StatusError 403, got %v", err)
	}
	if !errors.Is(err, ErrNetwork) {
		t.Errorf("expected ErrNetwork, got %v", err)
	}
	if got := attempts.Load(); got != 1 {
		t.Errorf("client errors must not be retried, got %d attempts", got)
	}
}

func TestFetchChecksumMismatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("tampered content"))
	}))
	defer server.Close()

	dir := t.TempDir()
	destPath := filepath.Join(dir, "archive.tar.gz")
	downloader := newTestDownloader(3)

	err := downloader.Fetch(context.Background(), Target{URL: server.URL, Checksum: sha256Hex("original content")}, destPath)
	if !errors.Is(err, ErrIntegrity) {
		t.Fatalf("expected ErrIntegrity, got %v", err)
	}

	var mismatch *ChecksumMismatchError
	if !errors.As(err, &mismatch) {
		t.Fatalf("expected ChecksumMismatchError, got %T", err)
	}
	if mismatch.Actual != sha256Hex("tampered content") {
		t.Errorf("Actual = %s", mismatch.Actual)
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("expected no files left behind, found %v", entries)
	}
}

func TestFetchSizeMismatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("0123456789"))
	}))
	defer server.Close()

	dir := t.TempDir()
	downloader := newTestDownloader(1)

	err := downloader.Fetch(context.Background(), Target{URL: server.URL, Size: 5}, filepath.Join(dir, "f"))
	if !errors.Is(err, ErrIntegrity) {
		t.Fatalf("expected ErrIntegrity for oversize body, got %v", err)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("expected no files left behind, found %d", len(entries))
	}
}

func TestFetchResumesInterruptedTransfer(t *testing.T) {
	content := strings.Repeat("python-build-standalone ", 4096)
	half := len(content) / 2

	var attempts atomic.Int32
	var sawRange atomic.Value
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := attempts.Add(1)
		if n == 1 {
			// Declare the full length, send half, then drop the connection.
			w.Header().Set("Content-Length", fmt.Sprint(len(content)))
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(content[:half]))
			if f, ok := w.(http.Flusher); ok {
				f.Flush()
			}
			hj, ok := w.(http.Hijacker)
			if !ok {
				t.Error("server does not support hijacking")
				return
			}
			conn, _, err := hj.Hijack()
			if err == nil {
				conn.Close()
			}
			return
		}

		rng := r.Header.Get("Range")
		sawRange.Store(rng)
		var start int
		if _, err := fmt.Sscanf(rng, "bytes=%d-", &start); err != nil {
			w.Write([]byte(content))
			return
		}
		w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, len(content)-1, len(content)))
		w.Header().Set("Content-Length", fmt.Sprint(len(content)-start))
		w.WriteHeader(http.StatusPartialContent)
		w.Write([]byte(content[start:]))
	}))
	defer server.Close()

	dir := t.TempDir()
	destPath := filepath.Join(dir, "cpython.tar.gz")
	downloader := newTestDownloader(3)

	target := Target{URL: server.URL, Checksum: sha256Hex(content), Size: int64(len(content))}
	if err := downloader.Fetch(context.Background(), target, destPath); err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}

	got, err := os.ReadFile(destPath)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != content {
		t.Error("resumed content does not match original")
	}

	if rng, _ := sawRange.Load().(string); rng != fmt.Sprintf("bytes=%d-", half) {
		t.Errorf("second attempt Range = %q, want bytes=%d-", rng, half)
	}

	if _, err := os.Stat(PartPath(destPath)); !os.IsNotExist(err) {
		t.Error("part file should be gone after completion")
	}
}

func TestFetchRestartsWhenServerIgnoresRange(t *testing.T) {
	content := "complete archive body"
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(content))
	}))
	defer server.Close()

	dir := t.TempDir()
	destPath := filepath.Join(dir, "a.tar.gz")
	if err := os.WriteFile(PartPath(destPath), []byte("garbage from a crashed run"), 0o644); err != nil {
		t.Fatal(err)
	}

	downloader := newTestDownloader(1)
	if err := downloader.Fetch(context.Background(), Target{URL: server.URL, Checksum: sha256Hex(content)}, destPath); err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}

	got, _ := os.ReadFile(destPath)
	if string(got) != content {
		t.Errorf("content = %q, want %q", got, content)
	}
}

func TestFetchReusesVerifiedFile(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.Write([]byte("fresh"))
	}))
	defer server.Close()

	dir := t.TempDir()
	destPath := filepath.Join(dir, "a.tar.gz")
	downloader := newTestDownloader(1)

	if err := os.WriteFile(destPath, []byte("fresh"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := downloader.Fetch(context.Background(), Target{URL: server.URL, Checksum: sha256Hex("fresh")}, destPath); err != nil {
		t.Fatal(err)
	}
	if requests.Load() != 0 {
		t.Error("verified cached file should not be re-downloaded")
	}

	if err := os.WriteFile(destPath, []byte("stale"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := downloader.Fetch(context.Background(), Target{URL: server.URL, Checksum: sha256Hex("fresh")}, destPath); err != nil {
		t.Fatal(err)
	}
	if requests.Load() != 1 {
		t.Errorf("corrupt cached file should be re-downloaded once, got %d requests", requests.Load())
	}
}

func TestFetchRepeatedFailuresDoNotAccumulate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "100")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("partial"))
		if hj, ok := w.(http.Hijacker); ok {
			if conn, _, err := hj.Hijack(); err == nil {
				conn.Close()
			}
		}
	}))
	defer server.Close()

	dir := t.TempDir()
	destPath := filepath.Join(dir, "a.tar.gz")
	downloader := newTestDownloader(1)

	for i := 0; i < 3; i++ {
		err := downloader.Fetch(context.Background(), Target{URL: server.URL}, destPath)
		if !errors.Is(err, ErrNetwork) {
			t.Fatalf("attempt %d: expected ErrNetwork, got %v", i, err)
		}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) > 1 {
		t.Errorf("expected at most one part file, found %d entries", len(entries))
	}
	if _, err := os.Stat(destPath); !os.IsNotExist(err) {
		t.Error("incomplete transfer must never appear at the destination path")
	}
}

func TestFetchContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := newTestDownloader(3).Fetch(ctx, Target{URL: server.URL}, filepath.Join(t.TempDir(), "f"))
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestContentRangeStart(t *testing.T) {
	tests := []struct {
		header string
		want   int64
		ok     bool
	}{
		{"bytes 100-199/200", 100, true},
		{"bytes 0-9/10", 0, true},
		{"bytes */200", 0, false},
		{"", 0, false},
		{"items 1-2/3", 0, false},
	}
	for _, tt := range tests {
		got, ok := contentRangeStart(tt.header)
		if got != tt.want || ok != tt.ok {
			t.Errorf("contentRangeStart(%q) = %d, %v; want %d, %v", tt.header, got, ok, tt.want, tt.ok)
		}
	}
}

func TestExponentialBackoff(t *testing.T) {
	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}
	for i, w := range want {
		if got := exponentialBackoff(i + 1); got != w {
			t.Errorf("attempt %d backoff = %v, want %v", i+1, got, w)
		}
	}
}
