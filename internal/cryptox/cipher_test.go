package cryptox

import (
	"bytes"
	"encoding/base64"
	"errors"
	"testing"

	"lovetrack-backend/internal/common"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKey(t *testing.T, secret string) []byte {
	t.Helper()
	key, err := SHA256Deriver{}.DeriveKey(secret)
	require.NoError(t, err)
	return key
}

func TestEncryptDecrypt_RoundTrip(t *testing.T) {
	key := testKey(t, "couple-1")

	cases := []string{"", "hi", "Anniversary dinner 🍝", string(bytes.Repeat([]byte("x"), 4096))}
	for _, p := range cases {
		blob, err := Encrypt([]byte(p), key)
		require.NoError(t, err)

		got, err := Decrypt(blob, key)
		require.NoError(t, err)
		assert.Equal(t, p, string(got))
	}
}

func TestEncrypt_FreshNonce(t *testing.T) {
	key := testKey(t, "couple-1")

	a, err := Encrypt([]byte("same"), key)
	require.NoError(t, err)
	b, err := Encrypt([]byte("same"), key)
	require.NoError(t, err)

	assert.NotEqual(t, a, b)

	pa, err := Decrypt(a, key)
	require.NoError(t, err)
	pb, err := Decrypt(b, key)
	require.NoError(t, err)
	assert.Equal(t, pa, pb)
}

func TestSeal_Layout(t *testing.T) {
	key := testKey(t, "couple-1")

	blob, err := Seal([]byte("abc"), key)
	require.NoError(t, err)
	// nonce + plaintext + 16-byte GCM tag
	assert.Len(t, blob, NonceSize+3+16)
}

func TestOpen_DetectsEveryBitFlip(t *testing.T) {
	key := testKey(t, "couple-1")

	blob, err := Seal([]byte("meet at the pier"), key)
	require.NoError(t, err)

	for i := range len(blob) * 8 {
		tampered := bytes.Clone(blob)
		tampered[i/8] ^= 1 << (i % 8)

		got, err := Open(tampered, key)
		require.Errorf(t, err, "bit %d flipped but blob still opened", i)
		assert.True(t, errors.Is(err, common.ErrDecryption))
		assert.Nil(t, got)
	}
}

func TestDecrypt_Failures(t *testing.T) {
	key := testKey(t, "couple-1")
	other := testKey(t, "couple-2")

	blob, err := Encrypt([]byte("secret"), key)
	require.NoError(t, err)

	tests := []struct {
		name string
		in   string
		key  []byte
	}{
		{"wrong key", blob, other},
		{"not base64", "%%%not-base64%%%", key},
		{"too short", base64.StdEncoding.EncodeToString([]byte("short")), key},
		{"empty", "", key},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decrypt(tt.in, tt.key)
			require.Error(t, err)
			assert.ErrorIs(t, err, common.ErrDecryption)
		})
	}
}

func TestInvalidKeyLength(t *testing.T) {
	_, err := Encrypt([]byte("x"), []byte("short-key"))
	assert.ErrorIs(t, err, ErrInvalidKey)

	_, err = Decrypt("AAAA", make([]byte, 16))
	assert.ErrorIs(t, err, ErrInvalidKey)
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("entropy exhausted") }

func TestSeal_RandFailure(t *testing.T) {
	orig := randReader
	randReader = failingReader{}
	t.Cleanup(func() { randReader = orig })

	_, err := Seal([]byte("x"), testKey(t, "c"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "generate nonce")
}
