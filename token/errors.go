package token

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidToken is returned for any failure while processing a token: bad encoding,
	// wrong version, short length, signature mismatch, expiry, clock skew or bad padding.
	ErrInvalidToken = errors.New("token invalid or expired")

	// ErrMalformedToken is returned by ExtractTimestamp when the token framing cannot be
	// parsed. It wraps ErrInvalidToken.
	ErrMalformedToken = fmt.Errorf("%w: malformed token", ErrInvalidToken)

	// ErrInvalidKeyFormat is returned when a master key does not decode to 32 bytes.
	ErrInvalidKeyFormat = errors.New("fernet key must be 32 url-safe base64-encoded bytes")

	// ErrEmptyRing is returned when a MultiFernet is built without any Fernet.
	ErrEmptyRing = errors.New("multi fernet requires at least one fernet instance")

	// ErrInvalidTTL is returned when a ttl-enforcing decrypt is called with a negative ttl.
	ErrInvalidTTL = errors.New("ttl must be non-negative")

	// ErrInvalidSalt is returned when a passphrase salt is shorter than MinSaltSize.
	ErrInvalidSalt = errors.New("salt too short")

	// ErrUnknownKDF is returned for an unsupported key derivation function name.
	ErrUnknownKDF = errors.New("unknown key derivation function")
)

// primitive failures, never surfaced to callers of the token API
var (
	errBlockAlignment = errors.New("input not a multiple of the block size")
	errInvalidIV      = errors.New("invalid iv length")
	errBadPadding     = errors.New("invalid padding")
)
