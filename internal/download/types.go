package download

import (
	"errors"
	"fmt"
)

var (
	// ErrNetwork is returned when a transfer fails permanently or retries are exhausted.
	ErrNetwork = errors.New("network error")
	// ErrIntegrity is returned when downloaded content does not match its expected digest,
	// size, or signature.
	ErrIntegrity = errors.New("integrity check failed")
)

// Target describes something to fetch.
type Target struct {
	URL string
	// Checksum is the expected lowercase hex SHA256; empty skips verification.
	Checksum string
	// Size is the expected size in bytes; zero means unknown.
	Size int64
}

// ChecksumMismatchError reports a digest mismatch for a downloaded file.
type ChecksumMismatchError struct {
	URL      string
	Expected string
	Actual   string
}

func (e *ChecksumMismatchError) Error() string {
	return fmt.Sprintf("checksum mismatch for %s: expected %s, got %s", e.URL, e.Expected, e.Actual)
}

// Unwrap lets errors.Is(err, ErrIntegrity) match.
func (e *ChecksumMismatchError) Unwrap() error {
	return ErrIntegrity
}

// StatusError reports an unexpected HTTP status.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status code %d from %s", e.StatusCode, e.URL)
}

// retryable reports whether a request that got this status may succeed later.
func (e *StatusError) retryable() bool {
	return e.StatusCode >= 500 || e.StatusCode == 429 || e.StatusCode == 408
}
