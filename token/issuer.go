package token

import (
	"errors"
	"math"
	"time"
)

// RingSource hands out the ring to use for the next operation. A KeyManager is one;
// staticRing wraps a fixed MultiFernet.
type RingSource interface {
	Ring() *MultiFernet
}

type staticRing struct{ ring *MultiFernet }

func (s staticRing) Ring() *MultiFernet { return s.ring }

// Issuer issues and verifies tokens with a default lifetime. A ttl of zero means tokens
// never expire.
type Issuer struct {
	source RingSource
	ttl    time.Duration
	clock  Clock
}

// IssuerOption customizes an Issuer.
type IssuerOption func(*Issuer)

// WithIssuerClock injects a deterministic clock source (useful for tests).
func WithIssuerClock(c Clock) IssuerOption {
	return func(i *Issuer) {
		if c != nil {
			i.clock = c
		}
	}
}

func newIssuer(source RingSource, ttl time.Duration, opts []IssuerOption) (*Issuer, error) {
	if ttl < 0 {
		return nil, ErrInvalidTTL
	}
	i := &Issuer{source: source, ttl: ttl, clock: RealClock()}
	for _, opt := range opts {
		if opt != nil {
			opt(i)
		}
	}
	return i, nil
}

// NewIssuer issues tokens from a fixed ring.
func NewIssuer(ring *MultiFernet, ttl time.Duration, opts ...IssuerOption) (*Issuer, error) {
	if ring == nil {
		return nil, ErrEmptyRing
	}
	return newIssuer(staticRing{ring: ring}, ttl, opts)
}

// NewKeyManagerIssuer issues tokens from whatever ring km currently publishes.
func NewKeyManagerIssuer(km *KeyManager, ttl time.Duration, opts ...IssuerOption) (*Issuer, error) {
	if km == nil {
		return nil, errors.New("key manager is nil")
	}
	return newIssuer(km, ttl, opts)
}

// TTL returns the configured token lifetime.
func (i *Issuer) TTL() time.Duration { return i.ttl }

// Issue encrypts payload under the current key, stamped with the issuer's clock.
func (i *Issuer) Issue(payload []byte) (string, error) {
	return i.source.Ring().EncryptAtTime(payload, unixSeconds(i.clock.Now()))
}

// Verify decrypts token, enforcing the lifetime when one is configured. The future
// skew limit applies either way.
func (i *Issuer) Verify(token string) ([]byte, error) {
	ring := i.source.Ring()
	now := unixSeconds(i.clock.Now())
	if i.ttl == 0 {
		return ring.decrypt(token, &ttlPolicy{ttl: math.MaxUint64, now: now})
	}
	return ring.DecryptAtTime(token, i.ttl, now)
}

// Refresh verifies token and issues a new one for the same payload stamped now.
func (i *Issuer) Refresh(token string) (string, error) {
	payload, err := i.Verify(token)
	if err != nil {
		return "", err
	}
	defer clear(payload)
	return i.Issue(payload)
}

// Rotate moves token to the current key, keeping its timestamp.
func (i *Issuer) Rotate(token string) (string, error) {
	return i.source.Ring().Rotate(token)
}
