// Package secrets handles symmetric encryption of stored device passwords.
//
// Credentials are encrypted with Fernet (AES-128-CBC + HMAC-SHA256 under a
// 44-char URL-safe base64 key). The token format self-identifies version and
// nonce, so ciphertexts stay decryptable across process restarts as long as
// the process key is stable.
package secrets

import (
	"errors"
	"fmt"

	"github.com/fernet/fernet-go"
)

// ErrDecrypt is returned when a ciphertext fails authentication or decoding.
// A decryption failure is a per-device fatal error: callers must not fall
// back to the global credential tier.
var ErrDecrypt = errors.New("secrets: ciphertext verification failed")

// Cipher encrypts and decrypts credential material with a process-wide key.
type Cipher struct {
	key *fernet.Key
}

// NewCipher parses the 44-char URL-safe base64 key. A malformed key is a
// startup-fatal configuration error.
func NewCipher(encodedKey string) (*Cipher, error) {
	key, err := fernet.DecodeKey(encodedKey)
	if err != nil {
		return nil, fmt.Errorf("secrets: invalid fernet key: %w", err)
	}
	return &Cipher{key: key}, nil
}

// Encrypt returns a Fernet token for plaintext.
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	tok, err := fernet.EncryptAndSign([]byte(plaintext), c.key)
	if err != nil {
		return "", fmt.Errorf("secrets: encrypt: %w", err)
	}
	return string(tok), nil
}

// Decrypt verifies and decrypts a Fernet token. Token age is not enforced:
// stored credentials have no TTL.
func (c *Cipher) Decrypt(token string) (string, error) {
	msg := fernet.VerifyAndDecrypt([]byte(token), 0, []*fernet.Key{c.key})
	if msg == nil {
		return "", ErrDecrypt
	}
	return string(msg), nil
}
