package token

import (
	"fmt"
	"time"
)

// Observer receives MultiFernet activity, e.g. to tell when an old key stops being used.
type Observer interface {
	// Encrypted is called after a token is issued under the current key.
	Encrypted()
	// Decrypted is called with the ring index of the key that opened a token,
	// or -1 when no key could.
	Decrypted(index int)
	// Rotated is called after each Rotate attempt.
	Rotated(ok bool)
}

type nopObserver struct{}

func (nopObserver) Encrypted()    {}
func (nopObserver) Decrypted(int) {}
func (nopObserver) Rotated(bool)  {}

// MultiFernet holds an ordered ring of Fernets, newest first. New tokens are always
// issued by the first; decryption tries each in order. Immutable after construction.
type MultiFernet struct {
	fernets  []*Fernet
	clock    Clock
	observer Observer
}

// NewMulti builds a ring from fernets ordered newest first. The clock defaults to that
// of the first Fernet.
func NewMulti(fernets []*Fernet, opts ...Option) (*MultiFernet, error) {
	if len(fernets) == 0 {
		return nil, ErrEmptyRing
	}
	for i, f := range fernets {
		if f == nil {
			return nil, fmt.Errorf("multi fernet: nil fernet at index %d", i)
		}
	}
	o := applyOptions(opts)
	m := &MultiFernet{
		fernets:  append([]*Fernet(nil), fernets...),
		clock:    o.clock,
		observer: o.observer,
	}
	if m.clock == nil {
		m.clock = fernets[0].clock
	}
	if m.observer == nil {
		m.observer = nopObserver{}
	}
	return m, nil
}

// Len returns the number of keys in the ring.
func (m *MultiFernet) Len() int { return len(m.fernets) }

// Current returns the Fernet that issues new tokens.
func (m *MultiFernet) Current() *Fernet { return m.fernets[0] }

// Encrypt issues a token under the current key stamped with the current time.
func (m *MultiFernet) Encrypt(data []byte) (string, error) {
	return m.EncryptAtTime(data, unixSeconds(m.clock.Now()))
}

// EncryptAtTime issues a token under the current key stamped with currentTime.
func (m *MultiFernet) EncryptAtTime(data []byte, currentTime uint64) (string, error) {
	tok, err := m.fernets[0].EncryptAtTime(data, currentTime)
	if err != nil {
		return "", err
	}
	m.observer.Encrypted()
	return tok, nil
}

// Decrypt returns the payload of token using the first key that verifies it.
func (m *MultiFernet) Decrypt(token string) ([]byte, error) {
	return m.decrypt(token, nil)
}

// DecryptWithTTL is Decrypt with an age limit evaluated against the ring's clock.
func (m *MultiFernet) DecryptWithTTL(token string, ttl time.Duration) ([]byte, error) {
	return m.DecryptAtTime(token, ttl, unixSeconds(m.clock.Now()))
}

// DecryptAtTime is Decrypt with an age limit evaluated at currentTime. Every key is
// checked against the same instant.
func (m *MultiFernet) DecryptAtTime(token string, ttl time.Duration, currentTime uint64) ([]byte, error) {
	if ttl < 0 {
		return nil, ErrInvalidTTL
	}
	return m.decrypt(token, &ttlPolicy{ttl: ttlSeconds(ttl), now: currentTime})
}

func (m *MultiFernet) decrypt(token string, policy *ttlPolicy) ([]byte, error) {
	sb := acquireBuffer(len(token))
	defer sb.Release()
	raw, err := parseToken(sb, token)
	if err != nil {
		m.observer.Decrypted(-1)
		return nil, ErrInvalidToken
	}
	plaintext, index := m.open(raw, policy)
	m.observer.Decrypted(index)
	if index < 0 {
		return nil, ErrInvalidToken
	}
	return plaintext, nil
}

// open tries each key in order and stops at the first success. The index is -1 when
// every key failed.
func (m *MultiFernet) open(raw rawToken, policy *ttlPolicy) ([]byte, int) {
	for i, f := range m.fernets {
		plaintext, err := f.decryptRaw(raw, policy)
		if err != nil {
			continue
		}
		return plaintext, i
	}
	return nil, -1
}

// Rotate re-encrypts token under the current key with a fresh IV. The original
// timestamp is kept, so rotation never extends a token's lifetime. No ttl applies.
func (m *MultiFernet) Rotate(token string) (string, error) {
	rotated, err := m.rotate(token)
	m.observer.Rotated(err == nil)
	return rotated, err
}

func (m *MultiFernet) rotate(token string) (string, error) {
	sb := acquireBuffer(len(token))
	defer sb.Release()
	raw, err := parseToken(sb, token)
	if err != nil {
		return "", ErrInvalidToken
	}
	plaintext, index := m.open(raw, nil)
	if index < 0 {
		return "", ErrInvalidToken
	}
	defer clear(plaintext)

	current := m.fernets[0]
	iv, err := current.provider.Random(blockSize)
	if err != nil {
		return "", fmt.Errorf("fernet: generating iv: %w", err)
	}
	return current.encryptFromParts(plaintext, raw.timestamp(), iv)
}

// ExtractTimestamp returns the embedded timestamp of token once any key in the ring
// verifies its signature.
func (m *MultiFernet) ExtractTimestamp(token string) (uint64, error) {
	sb := acquireBuffer(len(token))
	defer sb.Release()
	raw, err := parseToken(sb, token)
	if err != nil {
		return 0, err
	}
	for _, f := range m.fernets {
		if f.verifySignature(raw) == nil {
			return raw.timestamp(), nil
		}
	}
	return 0, ErrInvalidToken
}
