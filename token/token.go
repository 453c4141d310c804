package token

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
)

// MinBytes is the least amount of randomness a reply token may carry
const MinBytes = 24

// DefaultBytes is the amount of randomness used by NewGenerator
const DefaultBytes = 32

// ErrTooShort is returned by NewGeneratorWithSize when asked for fewer than MinBytes
var ErrTooShort = errors.New("token: size must be at least 24 bytes")

// Generator creates opaque reply routing tokens
type Generator struct {
	rand io.Reader
	size int
}

// NewGenerator returns a generator reading DefaultBytes from crypto/rand per token
func NewGenerator() *Generator {
	return &Generator{rand: rand.Reader, size: DefaultBytes}
}

// NewGeneratorWithSize returns a generator reading size bytes per token
func NewGeneratorWithSize(size int) (*Generator, error) {
	if size < MinBytes {
		return nil, ErrTooShort
	}
	return &Generator{rand: rand.Reader, size: size}, nil
}

// Generate returns a new url safe token without padding
func (tg *Generator) Generate() (string, error) {
	b := make([]byte, tg.size)

	_, err := io.ReadFull(tg.rand, b)
	if err != nil {
		return "", fmt.Errorf("token: failed to read random bytes: %w", err)
	}

	return base64.RawURLEncoding.EncodeToString(b), nil
}
