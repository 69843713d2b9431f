package pairing

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerate_Shape(t *testing.T) {
	g := NewRandomGenerator()

	seen := make(map[string]struct{})
	for range 200 {
		code, err := g.Generate()
		require.NoError(t, err)
		assert.Len(t, code, CodeLength)
		assert.True(t, Valid(code), "code %q is not numeric", code)
		seen[code] = struct{}{}
	}
	// 200 draws from a million values; a handful of collisions at most
	assert.Greater(t, len(seen), 190)
}

func TestGenerate_LeadingZeros(t *testing.T) {
	g := &RandomGenerator{reader: bytes.NewReader(make([]byte, 64))}

	code, err := g.Generate()
	require.NoError(t, err)
	assert.Equal(t, "000000", code)
}

func TestGenerate_ZeroValue(t *testing.T) {
	var g RandomGenerator

	code, err := g.Generate()
	require.NoError(t, err)
	assert.True(t, Valid(code), "code %q is not numeric", code)
}

type errReader struct{}

func (errReader) Read([]byte) (int, error) { return 0, errors.New("no entropy") }

func TestGenerate_ReaderError(t *testing.T) {
	g := &RandomGenerator{reader: errReader{}}

	_, err := g.Generate()
	assert.Error(t, err)
}

func TestValid(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"123456", true},
		{"000001", true},
		{"12345", false},
		{"1234567", false},
		{"12a456", false},
		{"", false},
		{"１２３４５６", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Valid(tt.in), tt.in)
	}
}
