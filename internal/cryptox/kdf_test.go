package cryptox

import (
	"bytes"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSHA256Deriver_KnownVector(t *testing.T) {
	key, err := SHA256Deriver{}.DeriveKey("abc")
	require.NoError(t, err)

	assert.Equal(t, "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad", hex.EncodeToString(key))
	assert.Len(t, key, KeySize)
}

func TestSHA256Deriver_Deterministic(t *testing.T) {
	a, err := SHA256Deriver{}.DeriveKey("couple-42")
	require.NoError(t, err)
	b, err := SHA256Deriver{}.DeriveKey("couple-42")
	require.NoError(t, err)
	c, err := SHA256Deriver{}.DeriveKey("couple-43")
	require.NoError(t, err)

	assert.True(t, bytes.Equal(a, b))
	assert.False(t, bytes.Equal(a, c))
}

func TestSHA256Deriver_EmptySecret(t *testing.T) {
	_, err := SHA256Deriver{}.DeriveKey("")
	assert.Error(t, err)
}

func TestArgon2Deriver(t *testing.T) {
	salt := []byte("0123456789abcdef")
	d, err := NewArgon2Deriver(salt, 1, 8*1024, 1)
	require.NoError(t, err)

	a, err := d.DeriveKey("couple-42")
	require.NoError(t, err)
	b, err := d.DeriveKey("couple-42")
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Len(t, a, KeySize)

	d2, err := NewArgon2Deriver([]byte("fedcba9876543210"), 1, 8*1024, 1)
	require.NoError(t, err)
	c, err := d2.DeriveKey("couple-42")
	require.NoError(t, err)
	assert.NotEqual(t, a, c, "different salts must give different keys")

	// keys from either deriver work with the cipher
	blob, err := Encrypt([]byte("hi"), a)
	require.NoError(t, err)
	got, err := Decrypt(blob, b)
	require.NoError(t, err)
	assert.Equal(t, "hi", string(got))
}

func TestNewArgon2Deriver_ShortSalt(t *testing.T) {
	_, err := NewArgon2Deriver([]byte("short"), 0, 0, 0)
	assert.Error(t, err)
}
