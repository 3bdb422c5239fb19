package download

import (
	"bufio"
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/ProtonMail/go-crypto/openpgp" //nolint:staticcheck // Using ProtonMail's maintained fork
)

// armorPrefix starts every ASCII-armored OpenPGP block.
var armorPrefix = []byte("-----BEGIN PGP")

// Verifier checks detached OpenPGP signatures of downloaded archives against
// a keyring file. The keyring is read once, on first use.
type Verifier struct {
	keyringPath string

	once    sync.Once
	keyring openpgp.EntityList
	loadErr error
}

// NewVerifier creates a verifier backed by the keyring file at keyringPath
// (armored or binary).
func NewVerifier(keyringPath string) *Verifier {
	return &Verifier{keyringPath: keyringPath}
}

// VerifySignature verifies archivePath against the detached signature at
// signaturePath. Any failure is reported as ErrIntegrity.
func (v *Verifier) VerifySignature(archivePath, signaturePath string) error {
	v.once.Do(func() { v.keyring, v.loadErr = readKeyring(v.keyringPath) })
	if v.loadErr != nil {
		return fmt.Errorf("%w: %w", ErrIntegrity, v.loadErr)
	}

	sig, err := os.ReadFile(signaturePath)
	if err != nil {
		return fmt.Errorf("%w: read signature: %w", ErrIntegrity, err)
	}
	archive, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer archive.Close()

	if bytes.HasPrefix(bytes.TrimSpace(sig), armorPrefix) {
		_, err = openpgp.CheckArmoredDetachedSignature(v.keyring, archive, bytes.NewReader(sig), nil)
	} else {
		_, err = openpgp.CheckDetachedSignature(v.keyring, archive, bytes.NewReader(sig), nil)
	}
	if err != nil {
		return fmt.Errorf("%w: signature of %s: %w", ErrIntegrity, filepath.Base(archivePath), err)
	}
	return nil
}

func readKeyring(path string) (openpgp.EntityList, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read keyring: %w", err)
	}

	var keyring openpgp.EntityList
	if bytes.HasPrefix(bytes.TrimSpace(data), armorPrefix) {
		keyring, err = openpgp.ReadArmoredKeyRing(bytes.NewReader(data))
	} else {
		keyring, err = openpgp.ReadKeyRing(bytes.NewReader(data))
	}
	if err != nil {
		return nil, fmt.Errorf("parse keyring %s: %w", path, err)
	}
	if len(keyring) == 0 {
		return nil, fmt.Errorf("keyring %s holds no keys", path)
	}
	return keyring, nil
}

// fileSHA256 returns the lowercase hex SHA256 of the file at path.
func fileSHA256(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// FindChecksum returns the digest listed for filename in a sha256sum-style
// listing ("<hex>  <name>", where "*<name>" marks binary mode). Entries may
// carry a directory prefix.
func FindChecksum(r io.Reader, filename string) (string, error) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		sum, name, ok := strings.Cut(strings.TrimSpace(scanner.Text()), " ")
		if !ok {
			continue
		}
		name = strings.TrimPrefix(strings.TrimSpace(name), "*")
		if name == filename || filepath.Base(name) == filename {
			return strings.ToLower(sum), nil
		}
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("scan checksum list: %w", err)
	}
	return "", fmt.Errorf("no checksum listed for %s", filename)
}
