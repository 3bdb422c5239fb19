package download

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/ZebulonRouseFrantzich/pysb/internal/logging"
)

const (
	// DefaultTimeout is the default HTTP request timeout
	DefaultTimeout = 30 * time.Minute
	// DefaultRetries is the default number of download retries
	DefaultRetries = 3
	// DefaultUserAgent is the User-Agent header sent with requests
	DefaultUserAgent = "pysb/1.0"

	partSuffix = ".part"
)

// errInvalidRequest marks request construction failures, which never succeed on retry.
var errInvalidRequest = errors.New("invalid request")

// Config configures a Downloader.
type Config struct {
	// Retries is the number of retries after the first attempt (default 3).
	Retries int
	// Client overrides the HTTP client.
	Client *http.Client
	// Logger receives progress messages.
	Logger logging.Logger
}

// Downloader handles HTTP downloads with retry and resume logic
type Downloader struct {
	client    *http.Client
	userAgent string
	retries   int
	backoff   func(attempt int) time.Duration
	logger    logging.Logger
}

// NewDownloader creates a new downloader
func NewDownloader(cfg Config) *Downloader {
	client := cfg.Client
	if client == nil {
		client = &http.Client{
			Timeout: DefaultTimeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				// Release assets redirect to object storage
				if len(via) >= 10 {
					return fmt.Errorf("too many redirects")
				}
				return nil
			},
		}
	}

	retries := cfg.Retries
	if retries <= 0 {
		retries = DefaultRetries
	}

	return &Downloader{
		client:    client,
		userAgent: DefaultUserAgent,
		retries:   retries,
		backoff:   exponentialBackoff,
		logger:    logging.OrNop(cfg.Logger),
	}
}

// exponentialBackoff returns 1s, 2s, 4s, ... for attempts 1, 2, 3, ...
func exponentialBackoff(attempt int) time.Duration {
	return time.Duration(1<<uint(attempt-1)) * time.Second
}

// Fetch downloads target to destPath, verifying size and checksum.
// A complete file already at destPath is reused only if it verifies.
func (d *Downloader) Fetch(ctx context.Context, target Target, destPath string) error {
	if target.URL == "" {
		return fmt.Errorf("download target has no URL")
	}

	if fileExists(destPath) {
		if target.Checksum == "" {
			// The rename from the part file marks completion.
			d.logger.Debug("reusing cached download", "path", destPath)
			return nil
		}
		actual, err := fileSHA256(destPath)
		if err == nil && strings.EqualFold(actual, target.Checksum) {
			d.logger.Debug("reusing verified download", "path", destPath)
			return nil
		}
		d.logger.Warn("discarding cached download that fails verification", "path", destPath)
		if err := os.Remove(destPath); err != nil {
			return fmt.Errorf("remove stale download: %w", err)
		}
	}

	return d.retry(ctx, target, destPath, true)
}

// DownloadToFile downloads a URL to a specific file path without integrity
// expectations. Any partial data from earlier attempts is discarded.
func (d *Downloader) DownloadToFile(ctx context.Context, url, destPath string) error {
	os.Remove(destPath + partSuffix)
	return d.retry(ctx, Target{URL: url}, destPath, false)
}

// retry runs download attempts until one succeeds, a permanent error occurs,
// or retries are exhausted.
func (d *Downloader) retry(ctx context.Context, target Target, destPath string, resume bool) error {
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return fmt.Errorf("create dest dir: %w", err)
	}

	partPath := destPath + partSuffix
	var lastErr error

	for attempt := 0; attempt <= d.retries; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if attempt > 0 {
			select {
			case <-time.After(d.backoff(attempt)):
			case <-ctx.Done():
				return ctx.Err()
			}
			d.logger.Info("retrying download", "url", target.URL, "attempt", attempt+1, "error", lastErr)
		}

		if !resume {
			os.Remove(partPath)
		}

		err := d.downloadOnce(ctx, target, partPath)
		if err == nil {
			if err := os.Rename(partPath, destPath); err != nil {
				return fmt.Errorf("rename part file: %w", err)
			}
			return nil
		}

		if errors.Is(err, ErrIntegrity) {
			os.Remove(partPath)
			return err
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}

		var statusErr *StatusError
		if errors.Is(err, errInvalidRequest) || (errors.As(err, &statusErr) && !statusErr.retryable()) {
			os.Remove(partPath)
			return fmt.Errorf("%w: %w", ErrNetwork, err)
		}

		lastErr = err
	}

	return fmt.Errorf("%w: download %s failed after %d retries: %w", ErrNetwork, target.URL, d.retries, lastErr)
}

// downloadOnce performs a single download attempt into partPath, continuing
// an existing part file when the server honours range requests.
func (d *Downloader) downloadOnce(ctx context.Context, target Target, partPath string) error {
	offset := int64(0)
	if info, err := os.Stat(partPath); err == nil && info.Mode().IsRegular() {
		offset = info.Size()
	}
	if target.Size > 0 && offset > target.Size {
		os.Remove(partPath)
		offset = 0
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.URL, nil)
	if err != nil {
		return fmt.Errorf("%w: %w", errInvalidRequest, err)
	}
	req.Header.Set("User-Agent", d.userAgent)
	if offset > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", offset))
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	flags := os.O_CREATE | os.O_WRONLY
	switch resp.StatusCode {
	case http.StatusOK:
		offset = 0
		flags |= os.O_TRUNC
	case http.StatusPartialContent:
		if start, ok := contentRangeStart(resp.Header.Get("Content-Range")); !ok || start != offset {
			os.Remove(partPath)
			return fmt.Errorf("server resumed at unexpected offset %q", resp.Header.Get("Content-Range"))
		}
		flags |= os.O_APPEND
		d.logger.Debug("resuming download", "url", target.URL, "offset", offset)
	case http.StatusRequestedRangeNotSatisfiable:
		os.Remove(partPath)
		return fmt.Errorf("server rejected resume at offset %d", offset)
	default:
		return &StatusError{URL: target.URL, StatusCode: resp.StatusCode}
	}

	hasher := sha256.New()
	if offset > 0 {
		if err := hashPrefix(hasher, partPath, offset); err != nil {
			os.Remove(partPath)
			return fmt.Errorf("hash partial download: %w", err)
		}
	}

	partFile, err := os.OpenFile(partPath, flags, 0o644)
	if err != nil {
		return fmt.Errorf("open part file: %w", err)
	}
	defer partFile.Close()

	written, err := io.Copy(io.MultiWriter(partFile, hasher), resp.Body)
	if err != nil {
		return fmt.Errorf("copy response body: %w", err)
	}
	if resp.ContentLength >= 0 && written != resp.ContentLength {
		return fmt.Errorf("short body: got %d of %d bytes", written, resp.ContentLength)
	}

	if err := partFile.Sync(); err != nil {
		return fmt.Errorf("sync part file: %w", err)
	}
	if err := partFile.Close(); err != nil {
		return fmt.Errorf("close part file: %w", err)
	}

	total := offset + written
	if target.Size > 0 {
		if total < target.Size {
			return fmt.Errorf("short download: got %d of %d bytes", total, target.Size)
		}
		if total > target.Size {
			return fmt.Errorf("%w: %s is %d bytes, expected %d", ErrIntegrity, target.URL, total, target.Size)
		}
	}

	if target.Checksum != "" {
		actual := hex.EncodeToString(hasher.Sum(nil))
		if !strings.EqualFold(actual, target.Checksum) {
			return &ChecksumMismatchError{URL: target.URL, Expected: strings.ToLower(target.Checksum), Actual: actual}
		}
	}

	return nil
}

// hashPrefix feeds the first n bytes of path into h.
func hashPrefix(h hash.Hash, path string, n int64) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	copied, err := io.Copy(h, io.LimitReader(f, n))
	if err != nil {
		return err
	}
	if copied != n {
		return fmt.Errorf("part file shrank: read %d of %d bytes", copied, n)
	}
	return nil
}

// contentRangeStart parses the first byte position of "bytes start-end/total".
func contentRangeStart(header string) (int64, bool) {
	spec, ok := strings.CutPrefix(header, "bytes ")
	if !ok {
		return 0, false
	}
	startStr, _, ok := strings.Cut(spec, "-")
	if !ok {
		return 0, false
	}
	start, err := strconv.ParseInt(strings.TrimSpace(startStr), 10, 64)
	if err != nil {
		return 0, false
	}
	return start, true
}

// PartPath returns the in-progress path used for destPath.
func PartPath(destPath string) string {
	return destPath + partSuffix
}

// fileExists checks if a file exists and is not empty
func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir() && info.Size() > 0
}
