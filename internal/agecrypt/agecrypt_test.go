package agecrypt

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestGenerateKeyPair(t *testing.T) {
	kp, err := GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(kp.Recipient, "age1") {
		t.Errorf("unexpected recipient format: %q", kp.Recipient)
	}
	if !strings.HasPrefix(kp.Identity, "AGE-SECRET-KEY-1") {
		t.Errorf("unexpected identity format: %q", kp.Identity)
	}
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	kp, err := GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}

	dir := t.TempDir()
	plain := filepath.Join(dir, "backup.tar.gz")
	payload := []byte("not actually a tarball, but faithful enough")
	if err := os.WriteFile(plain, payload, 0o600); err != nil {
		t.Fatal(err)
	}

	enc, err := EncryptFile(plain, kp.Recipient)
	if err != nil {
		t.Fatal(err)
	}
	if enc != plain+Ext {
		t.Errorf("unexpected encrypted path: %q", enc)
	}

	ciphertext, err := os.ReadFile(enc)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(ciphertext), string(payload)) {
		t.Error("ciphertext contains plaintext")
	}

	// Decrypt into a fresh directory so the stripped-suffix path is new.
	workDir := t.TempDir()
	work := filepath.Join(workDir, "backup.tar.gz.age")
	if err := os.WriteFile(work, ciphertext, 0o600); err != nil {
		t.Fatal(err)
	}
	keyFile, err := WriteKeyFile(workDir, kp.Identity)
	if err != nil {
		t.Fatal(err)
	}

	dec, err := DecryptFile(work, keyFile)
	if err != nil {
		t.Fatal(err)
	}
	got, err := os.ReadFile(dec)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != string(payload) {
		t.Errorf("round-trip mismatch: %q", got)
	}
}

func TestDecryptWithWrongKeyFails(t *testing.T) {
	right, err := GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}
	wrong, err := GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}

	dir := t.TempDir()
	plain := filepath.Join(dir, "backup.tar.gz")
	if err := os.WriteFile(plain, []byte("secret state"), 0o600); err != nil {
		t.Fatal(err)
	}
	enc, err := EncryptFile(plain, right.Recipient)
	if err != nil {
		t.Fatal(err)
	}

	keyFile, err := WriteKeyFile(dir, wrong.Identity)
	if err != nil {
		t.Fatal(err)
	}

	_, err = DecryptFile(enc, keyFile)
	if !errors.Is(err, ErrBadKey) {
		t.Fatalf("expected ErrBadKey, got %v", err)
	}

	// The failed attempt must not leave a plaintext file behind.
	if _, statErr := os.Stat(plain + ".partial"); statErr == nil {
		t.Error("partial plaintext left behind")
	}
}

func TestDecryptCorruptedCiphertextFails(t *testing.T) {
	kp, err := GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}

	dir := t.TempDir()
	plain := filepath.Join(dir, "backup.tar.gz")
	if err := os.WriteFile(plain, []byte(strings.Repeat("state ", 1024)), 0o600); err != nil {
		t.Fatal(err)
	}
	enc, err := EncryptFile(plain, kp.Recipient)
	if err != nil {
		t.Fatal(err)
	}

	// Flip a byte in the payload section.
	data, err := os.ReadFile(enc)
	if err != nil {
		t.Fatal(err)
	}
	data[len(data)-10] ^= 0xff
	if err := os.WriteFile(enc, data, 0o600); err != nil {
		t.Fatal(err)
	}

	keyFile, err := WriteKeyFile(dir, kp.Identity)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := DecryptFile(enc, keyFile); err == nil {
		t.Fatal("expected decryption of corrupted ciphertext to fail")
	}
}

func TestParseRecipientRejectsGarbage(t *testing.T) {
	if _, err := ParseRecipient("not-a-key"); err == nil {
		t.Fatal("expected error for malformed recipient")
	}
}

func TestWriteKeyFilePermissions(t *testing.T) {
	kp, err := GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}
	path, err := WriteKeyFile(t.TempDir(), kp.Identity)
	if err != nil {
		t.Fatal(err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("key file must be owner-only, got %v", info.Mode().Perm())
	}
}
