// Package cryptox implements the per-field encryption used for couple and event
// data at rest: AES-256-GCM under a key derived from a shared secret.
package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"lovetrack-backend/internal/common"
)

const (
	// KeySize is the AES-256 key length in bytes.
	KeySize = 32
	// NonceSize is the GCM nonce (IV) length in bytes.
	NonceSize = 12
)

// ErrInvalidKey is returned when the key is not KeySize bytes long.
var ErrInvalidKey = errors.New("invalid key length")

// randReader is swapped in tests.
var randReader io.Reader = rand.Reader

// Seal encrypts plaintext with AES-256-GCM under key.
//
// The result is nonce || ciphertext || tag. A fresh random nonce is drawn on
// every call, so sealing the same plaintext twice yields different blobs.
func Seal(plaintext, key []byte) ([]byte, error) {
	aead, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, NonceSize)
	if _, err := io.ReadFull(randReader, nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}

	out := make([]byte, 0, NonceSize+len(plaintext)+aead.Overhead())
	out = append(out, nonce...)
	return aead.Seal(out, nonce, plaintext, nil), nil
}

// Open reverses Seal. It fails with common.ErrDecryption when the blob is too
// short or authentication fails; it never returns partial plaintext.
func Open(blob, key []byte) ([]byte, error) {
	aead, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	if len(blob) < NonceSize+aead.Overhead() {
		return nil, fmt.Errorf("%w: blob too short", common.ErrDecryption)
	}

	plaintext, err := aead.Open(nil, blob[:NonceSize], blob[NonceSize:], nil)
	if err != nil {
		return nil, fmt.Errorf("%w: authentication failed", common.ErrDecryption)
	}
	return plaintext, nil
}

// Encrypt seals plaintext and returns the blob as standard base64 text.
func Encrypt(plaintext, key []byte) (string, error) {
	blob, err := Seal(plaintext, key)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(blob), nil
}

// Decrypt decodes a base64 blob produced by Encrypt and opens it.
func Decrypt(encoded string, key []byte) ([]byte, error) {
	blob, err := base64.StdEncoding.Strict().DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid encoding", common.ErrDecryption)
	}
	return Open(blob, key)
}

func newGCM(key []byte) (cipher.AEAD, error) {
	if len(key) != KeySize {
		return nil, ErrInvalidKey
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create gcm: %w", err)
	}
	return aead, nil
}
