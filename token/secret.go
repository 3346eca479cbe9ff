package token

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"io"
	"sync"
)

var (
	ErrInvalidSize  = errors.New("size must be positive")
	ErrReaderFailed = errors.New("entropy source read failed")
)

// SecretGenerator produces cryptographically secure random bytes for IVs, salts and
// master keys. Reads from the underlying source are serialized, so a deterministic
// reader injected by tests is safe to share between goroutines.
type SecretGenerator struct {
	mu     sync.Mutex
	reader io.Reader
}

// NewSecretGenerator creates a generator with the given entropy source.
// If no reader is provided, crypto/rand.Reader is used (recommended).
func NewSecretGenerator(readers ...io.Reader) *SecretGenerator {
	reader := rand.Reader
	if len(readers) > 0 && readers[0] != nil {
		reader = readers[0]
	}
	return &SecretGenerator{reader: reader}
}

// readBytesSafe reads exactly len(buf) bytes with proper error handling.
func (g *SecretGenerator) readBytesSafe(buf []byte) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	n, err := io.ReadFull(g.reader, buf)
	if err != nil {
		return errors.Join(ErrReaderFailed, err)
	}
	if n != len(buf) {
		return ErrReaderFailed
	}
	return nil
}

// Key returns size random bytes.
func (g *SecretGenerator) Key(size int) ([]byte, error) {
	if size <= 0 {
		return nil, ErrInvalidSize
	}
	result := make([]byte, size)
	if err := g.readBytesSafe(result); err != nil {
		return nil, err
	}
	return result, nil
}

// KeyInto fills the provided buffer with random bytes.
// This is the zero-allocation variant of Key().
func (g *SecretGenerator) KeyInto(buf []byte) error {
	if len(buf) == 0 {
		return ErrInvalidSize
	}
	return g.readBytesSafe(buf)
}

// Base64 returns a raw URL-safe Base64 encoded secret of size random bytes.
func (g *SecretGenerator) Base64(size int) (string, error) {
	buf, err := g.Key(size)
	if err != nil {
		return "", err
	}
	defer clear(buf)
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// FernetKey returns a fresh master key in its wire form: 32 random bytes,
// URL-safe base64 with padding.
func (g *SecretGenerator) FernetKey() (string, error) {
	var raw [KeySize]byte
	defer clear(raw[:])
	if err := g.KeyInto(raw[:]); err != nil {
		return "", err
	}
	return encoding.EncodeToString(raw[:]), nil
}

// Global instance for package-level functions
var defaultGenerator = NewSecretGenerator()

// GenerateKey returns a new random master key, base64url-encoded.
func GenerateKey() (string, error) {
	return defaultGenerator.FernetKey()
}

// GenerateSalt returns MinSaltSize random bytes for passphrase key derivation.
func GenerateSalt() ([]byte, error) {
	return defaultGenerator.Key(MinSaltSize)
}

// GenerateBase64Secret returns a base64-encoded secret of the given byte size.
func GenerateBase64Secret(size int) (string, error) {
	return defaultGenerator.Base64(size)
}
