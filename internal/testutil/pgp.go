package testutil

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/ProtonMail/go-crypto/openpgp"       //nolint:staticcheck // Using ProtonMail's maintained fork
	"github.com/ProtonMail/go-crypto/openpgp/armor" //nolint:staticcheck // Using ProtonMail's maintained fork
)

// Signer produces detached signatures trusted by a keyring file.
type Signer struct {
	entity *openpgp.Entity
	// KeyringPath is an armored public keyring holding the signing key.
	KeyringPath string
}

// NewSigner generates a signing key and writes its public keyring to dir.
func NewSigner(t *testing.T, dir string) *Signer {
	t.Helper()

	entity, err := openpgp.NewEntity("pysb test", "", "test@example.invalid", nil)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	var buf bytes.Buffer
	w, err := armor.Encode(&buf, openpgp.PublicKeyType, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := entity.Serialize(w); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	path := filepath.Join(dir, "keyring.asc")
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
	return &Signer{entity: entity, KeyringPath: path}
}

// Sign returns an armored detached signature of data.
func (s *Signer) Sign(t *testing.T, data []byte) []byte {
	t.Helper()

	var sig bytes.Buffer
	if err := openpgp.ArmoredDetachSign(&sig, s.entity, bytes.NewReader(data), nil); err != nil {
		t.Fatalf("sign: %v", err)
	}
	return sig.Bytes()
}

// SignBinary returns an unarmored detached signature of data.
func (s *Signer) SignBinary(t *testing.T, data []byte) []byte {
	t.Helper()

	var sig bytes.Buffer
	if err := openpgp.DetachSign(&sig, s.entity, bytes.NewReader(data), nil); err != nil {
		t.Fatalf("sign: %v", err)
	}
	return sig.Bytes()
}
