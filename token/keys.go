package token

import (
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/oarkflow/shamir"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/pbkdf2"
	"golang.org/x/crypto/scrypt"
)

// ParseKey decodes a master key written in any base64 flavour (URL or standard
// alphabet, padded or raw) and checks its length.
func ParseKey(input string) ([]byte, error) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return nil, ErrInvalidKeyFormat
	}
	decoders := []*base64.Encoding{
		base64.URLEncoding,
		base64.RawURLEncoding,
		base64.StdEncoding,
		base64.RawStdEncoding,
	}
	for _, enc := range decoders {
		b, err := enc.DecodeString(trimmed)
		if err != nil {
			continue
		}
		if len(b) == KeySize {
			return b, nil
		}
		clear(b)
	}
	return nil, ErrInvalidKeyFormat
}

// NormalizeKey returns input in the canonical padded base64url form accepted by New.
func NormalizeKey(input string) (string, error) {
	raw, err := ParseKey(input)
	if err != nil {
		return "", err
	}
	defer clear(raw)
	return encoding.EncodeToString(raw), nil
}

// KDF names a passphrase key derivation function.
type KDF string

const (
	KDFScrypt   KDF = "scrypt"
	KDFPBKDF2   KDF = "pbkdf2"
	KDFArgon2id KDF = "argon2id"
)

// MinSaltSize is the shortest salt DeriveKey accepts.
const MinSaltSize = 16

// Derivation cost parameters.
const (
	scryptN          = 1 << 15
	scryptR          = 8
	scryptP          = 1
	pbkdf2Iterations = 480000
	argon2Time       = 2
	argon2MemoryKB   = 64 * 1024
	argon2Threads    = 1
)

// ParseKDF maps a name such as "scrypt" to a KDF.
func ParseKDF(name string) (KDF, error) {
	switch kdf := KDF(strings.ToLower(strings.TrimSpace(name))); kdf {
	case KDFScrypt, KDFPBKDF2, KDFArgon2id:
		return kdf, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownKDF, name)
	}
}

// DeriveKey stretches passphrase into a master key. The same passphrase, salt and kdf
// always yield the same key; the salt must be stored alongside whatever the key protects.
func DeriveKey(passphrase, salt []byte, kdf KDF) (string, error) {
	if len(salt) < MinSaltSize {
		return "", fmt.Errorf("%w: need at least %d bytes, got %d", ErrInvalidSalt, MinSaltSize, len(salt))
	}
	var (
		key []byte
		err error
	)
	switch kdf {
	case KDFScrypt:
		key, err = scrypt.Key(passphrase, salt, scryptN, scryptR, scryptP, KeySize)
		if err != nil {
			return "", fmt.Errorf("scrypt: %w", err)
		}
	case KDFPBKDF2:
		key = pbkdf2.Key(passphrase, salt, pbkdf2Iterations, KeySize, sha256.New)
	case KDFArgon2id:
		key = argon2.IDKey(passphrase, salt, argon2Time, argon2MemoryKB, argon2Threads, KeySize)
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownKDF, kdf)
	}
	defer clear(key)
	return encoding.EncodeToString(key), nil
}

// SplitKey splits a master key into shares of which any threshold recombine it.
// Shares are raw base64url strings.
func SplitKey(key string, shares, threshold int) ([]string, error) {
	raw, err := encoding.DecodeString(key)
	if err != nil || len(raw) != KeySize {
		return nil, ErrInvalidKeyFormat
	}
	defer clear(raw)
	if threshold < 2 || shares < threshold || shares > 255 {
		return nil, fmt.Errorf("splitting key: need 2 <= threshold (%d) <= shares (%d) <= 255", threshold, shares)
	}
	parts, err := shamir.Split(raw, threshold, shares)
	if err != nil {
		return nil, fmt.Errorf("splitting key: %w", err)
	}
	out := make([]string, len(parts))
	for i, p := range parts {
		out[i] = base64.RawURLEncoding.EncodeToString(p)
	}
	return out, nil
}

// CombineKey reassembles a master key from shares produced by SplitKey.
func CombineKey(shares []string) (string, error) {
	parts := make([][]byte, 0, len(shares))
	for i, s := range shares {
		p, err := base64.RawURLEncoding.DecodeString(strings.TrimSpace(s))
		if err != nil {
			return "", fmt.Errorf("decoding share %d: %w", i, err)
		}
		parts = append(parts, p)
	}
	raw, err := shamir.Combine(parts)
	if err != nil {
		return "", fmt.Errorf("combining shares: %w", err)
	}
	defer clear(raw)
	if len(raw) != KeySize {
		return "", ErrInvalidKeyFormat
	}
	return encoding.EncodeToString(raw), nil
}
