package cryptox

import (
	"crypto/sha256"
	"errors"
	"fmt"

	"golang.org/x/crypto/argon2"
)

// KeyDeriver turns a shared secret into a KeySize symmetric key. Derivation is
// deterministic so both members of a couple arrive at the same key without a
// key exchange.
type KeyDeriver interface {
	DeriveKey(secret string) ([]byte, error)
}

var errEmptySecret = errors.New("empty secret")

// SHA256Deriver hashes the UTF-8 bytes of the secret. This matches what the
// mobile and web clients compute from the couple id.
//
// Known gap: the couple id is not secret, so anyone who learns it can derive
// the key. Argon2Deriver with a server-held salt closes that for server-side
// storage, at the price of client compatibility.
type SHA256Deriver struct{}

func (SHA256Deriver) DeriveKey(secret string) ([]byte, error) {
	if secret == "" {
		return nil, errEmptySecret
	}
	sum := sha256.Sum256([]byte(secret))
	return sum[:], nil
}

// Argon2Deriver derives keys with Argon2id and a salt that never leaves the server.
type Argon2Deriver struct {
	Salt    []byte
	Time    uint32
	Memory  uint32 // KiB
	Threads uint8
}

// NewArgon2Deriver returns a deriver with the given salt and parameters,
// falling back to conservative defaults for zero values.
func NewArgon2Deriver(salt []byte, time, memoryKiB uint32, threads uint8) (*Argon2Deriver, error) {
	if len(salt) < 16 {
		return nil, fmt.Errorf("argon2 salt must be at least 16 bytes, got %d", len(salt))
	}
	if time == 0 {
		time = 1
	}
	if memoryKiB == 0 {
		memoryKiB = 64 * 1024
	}
	if threads == 0 {
		threads = 4
	}
	return &Argon2Deriver{Salt: salt, Time: time, Memory: memoryKiB, Threads: threads}, nil
}

func (d *Argon2Deriver) DeriveKey(secret string) ([]byte, error) {
	if secret == "" {
		return nil, errEmptySecret
	}
	return argon2.IDKey([]byte(secret), d.Salt, d.Time, d.Memory, d.Threads, KeySize), nil
}
