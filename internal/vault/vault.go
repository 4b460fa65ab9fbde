// ABOUTME: At-rest encryption for tenant bot credentials
// ABOUTME: Uses NaCl secretbox with a versioned, probe-able ciphertext prefix

package vault

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/nacl/secretbox"
)

// encPrefix marks encrypted values. Values without it are treated as
// legacy plaintext and pass through Decrypt unchanged.
const encPrefix = "enc:v1:"

const nonceSize = 24

// ErrDecryptFailed indicates the ciphertext could not be authenticated,
// usually because the vault key changed.
var ErrDecryptFailed = errors.New("vault: decryption failed")

// TokenVault encrypts and decrypts tenant credentials with a symmetric key.
type TokenVault struct {
	key [32]byte
}

// New creates a TokenVault with the given 32-byte key.
func New(key [32]byte) *TokenVault {
	return &TokenVault{key: key}
}

// Encrypt seals plaintext and returns a prefixed, base64-encoded value.
// Already-encrypted values are returned unchanged.
func (v *TokenVault) Encrypt(plaintext string) (string, error) {
	if IsEncrypted(plaintext) {
		return plaintext, nil
	}

	var nonce [nonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return "", fmt.Errorf("generating nonce: %w", err)
	}

	sealed := secretbox.Seal(nonce[:], []byte(plaintext), &nonce, &v.key)
	return encPrefix + base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a prefixed ciphertext. Values without the prefix are
// assumed to be legacy plaintext and returned as-is.
func (v *TokenVault) Decrypt(value string) (string, error) {
	if !IsEncrypted(value) {
		return value, nil
	}

	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(value, encPrefix))
	if err != nil {
		return "", fmt.Errorf("decoding ciphertext: %w", err)
	}
	if len(raw) < nonceSize {
		return "", ErrDecryptFailed
	}

	var nonce [nonceSize]byte
	copy(nonce[:], raw[:nonceSize])

	plaintext, ok := secretbox.Open(nil, raw[nonceSize:], &nonce, &v.key)
	if !ok {
		return "", ErrDecryptFailed
	}
	return string(plaintext), nil
}

// IsEncrypted reports whether a stored value carries the encryption prefix.
func IsEncrypted(value string) bool {
	return strings.HasPrefix(value, encPrefix)
}
