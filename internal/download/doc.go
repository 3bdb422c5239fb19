// Package download fetches runtime archives and release metadata over HTTP.
//
// # Integrity Model
//
// Archives are streamed into a ".part" file next to their destination while a
// SHA256 digest is computed incrementally. Only after the byte count and the
// digest match the expected values is the part file renamed to its final
// name, so a file at the destination path is always complete. A checksum
// mismatch removes the part file.
//
// # Retries and Resume
//
// Transport errors, short bodies, 5xx and 429 responses are retried with
// exponential backoff (1s, 2s, 4s). An interrupted transfer leaves its part
// file behind; the next attempt continues it with an HTTP Range request and
// re-hashes the existing prefix first. There is exactly one part file per
// destination, so repeated failures never accumulate temp files.
//
// # Signatures
//
// When a release publishes a detached OpenPGP signature and the user has
// configured a keyring, Verifier checks the archive against it.
package download
