// Package agecrypt wraps and unwraps backup archives with age X25519
// public-key encryption. Encryption is optional at backup time and
// mandatory at restore time for encrypted archives; the decrypting
// identity is handled through a short-lived, owner-only key file.
package agecrypt

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"filippo.io/age"
)

// Ext is the suffix appended to a file once encrypted.
const Ext = ".age"

// ErrBadKey indicates decryption failed because no supplied identity
// matches the archive. Restores must abort on this rather than continue
// with garbage output.
var ErrBadKey = errors.New("no matching age identity for archive")

// KeyPair is a freshly generated age X25519 key pair.
type KeyPair struct {
	// Recipient is the public half ("age1..."), safe to distribute.
	Recipient string
	// Identity is the private half ("AGE-SECRET-KEY-1..."). Whoever loses
	// it loses every archive encrypted to the pair.
	Identity string
}

// GenerateKeyPair generates a new X25519 key pair.
func GenerateKeyPair() (*KeyPair, error) {
	id, err := age.GenerateX25519Identity()
	if err != nil {
		return nil, fmt.Errorf("generate age identity: %w", err)
	}
	return &KeyPair{
		Recipient: id.Recipient().String(),
		Identity:  id.String(),
	}, nil
}

// ParseRecipient validates a public key string.
func ParseRecipient(s string) (age.Recipient, error) {
	r, err := age.ParseX25519Recipient(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("parse age recipient: %w", err)
	}
	return r, nil
}

// EncryptFile encrypts src to src+".age" for the given recipient and
// returns the encrypted path. The plaintext file is left in place; the
// caller owns deletion of both.
func EncryptFile(src, recipient string) (string, error) {
	r, err := ParseRecipient(recipient)
	if err != nil {
		return "", err
	}

	in, err := os.Open(src)
	if err != nil {
		return "", fmt.Errorf("open plaintext archive: %w", err)
	}
	defer in.Close()

	dst := src + Ext
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return "", fmt.Errorf("create encrypted archive: %w", err)
	}

	w, err := age.Encrypt(out, r)
	if err != nil {
		out.Close()
		os.Remove(dst)
		return "", fmt.Errorf("start age encryption: %w", err)
	}
	if _, err := io.Copy(w, in); err != nil {
		w.Close()
		out.Close()
		os.Remove(dst)
		return "", fmt.Errorf("encrypt archive: %w", err)
	}
	if err := w.Close(); err != nil {
		out.Close()
		os.Remove(dst)
		return "", fmt.Errorf("finalize age stream: %w", err)
	}
	if err := out.Close(); err != nil {
		os.Remove(dst)
		return "", fmt.Errorf("close encrypted archive: %w", err)
	}
	return dst, nil
}

// DecryptFile decrypts src using the identities in keyFile and returns the
// plaintext path (src with the ".age" suffix stripped, or src+".plain"
// when the name carries no suffix). The ciphertext file is left in place;
// the caller owns deletion.
func DecryptFile(src, keyFile string) (string, error) {
	identities, err := readIdentityFile(keyFile)
	if err != nil {
		return "", err
	}

	in, err := os.Open(src)
	if err != nil {
		return "", fmt.Errorf("open encrypted archive: %w", err)
	}
	defer in.Close()

	r, err := age.Decrypt(in, identities...)
	if err != nil {
		var noMatch *age.NoIdentityMatchError
		if errors.As(err, &noMatch) {
			return "", ErrBadKey
		}
		return "", fmt.Errorf("decrypt archive: %w", err)
	}

	dst := strings.TrimSuffix(src, Ext)
	if dst == src {
		dst = src + ".plain"
	}
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return "", fmt.Errorf("create plaintext archive: %w", err)
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		os.Remove(dst)
		// Truncated or corrupted ciphertext surfaces here, not at Decrypt.
		return "", fmt.Errorf("decrypt archive: %w", err)
	}
	if err := out.Close(); err != nil {
		os.Remove(dst)
		return "", fmt.Errorf("close plaintext archive: %w", err)
	}
	return dst, nil
}

// WriteKeyFile writes the private identity to an owner-only file under dir
// and returns its path. Callers must remove the file as soon as decryption
// finishes, success or not.
func WriteKeyFile(dir, identity string) (string, error) {
	path := filepath.Join(dir, "age-identity.txt")
	if err := os.WriteFile(path, []byte(strings.TrimSpace(identity)+"\n"), 0o600); err != nil {
		return "", fmt.Errorf("write age key file: %w", err)
	}
	return path, nil
}

// readIdentityFile parses the age identities in the key file.
func readIdentityFile(path string) ([]age.Identity, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open age key file: %w", err)
	}
	defer f.Close()

	identities, err := age.ParseIdentities(f)
	if err != nil {
		return nil, fmt.Errorf("parse age key file: %w", err)
	}
	return identities, nil
}
