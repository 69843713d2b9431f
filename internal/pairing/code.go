// Package pairing generates the short numeric codes a couple's creator shares
// out of band with their partner.
package pairing

import (
	"crypto/rand"
	"fmt"
	"io"
	"math/big"
)

// CodeLength is the number of digits in a pairing code.
const CodeLength = 6

var codeSpace = big.NewInt(1_000_000)

// Generator produces pairing codes. Uniqueness among outstanding codes is
// checked by the caller, not here.
type Generator interface {
	Generate() (string, error)
}

// RandomGenerator draws codes uniformly from 000000-999999. The zero value
// reads from crypto/rand.
type RandomGenerator struct {
	reader io.Reader
}

// NewRandomGenerator returns a generator backed by crypto/rand.
func NewRandomGenerator() *RandomGenerator {
	return &RandomGenerator{reader: rand.Reader}
}

// Generate returns a fresh zero-padded code.
func (g *RandomGenerator) Generate() (string, error) {
	reader := g.reader
	if reader == nil {
		reader = rand.Reader
	}
	n, err := rand.Int(reader, codeSpace)
	if err != nil {
		return "", fmt.Errorf("generate pairing code: %w", err)
	}
	return fmt.Sprintf("%0*d", CodeLength, n.Int64()), nil
}

// Valid reports whether s has the shape of a pairing code.
func Valid(s string) bool {
	if len(s) != CodeLength {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
