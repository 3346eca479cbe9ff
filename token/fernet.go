package token

import (
	"crypto/hmac"
	"fmt"
	"time"
)

// Fernet encrypts and authenticates tokens under a single 256-bit master key. The first
// half of the key signs, the second half encrypts. A Fernet is immutable and safe for
// concurrent use.
type Fernet struct {
	signingKey    []byte
	encryptionKey []byte
	provider      Provider
	clock         Clock
}

type options struct {
	provider Provider
	clock    Clock
	observer Observer
}

// Option customizes a Fernet or MultiFernet.
type Option func(*options)

// WithProvider replaces the primitive provider (useful for tests that pin the IV).
func WithProvider(p Provider) Option {
	return func(o *options) {
		if p != nil {
			o.provider = p
		}
	}
}

// WithClock injects the time source used when no explicit time is given.
func WithClock(c Clock) Option {
	return func(o *options) {
		if c != nil {
			o.clock = c
		}
	}
}

// WithObserver reports MultiFernet activity to o. Ignored by Fernet.
func WithObserver(obs Observer) Option {
	return func(o *options) {
		if obs != nil {
			o.observer = obs
		}
	}
}

func applyOptions(opts []Option) options {
	var o options
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	if o.provider == nil {
		o.provider = defaultProvider
	}
	return o
}

// New builds a Fernet from a base64url-encoded 32-byte master key.
func New(key string, opts ...Option) (*Fernet, error) {
	raw, err := encoding.DecodeString(key)
	if err != nil {
		return nil, ErrInvalidKeyFormat
	}
	defer clear(raw)
	return NewFromBytes(raw, opts...)
}

// NewFromBytes builds a Fernet from raw master key bytes. The bytes are copied.
func NewFromBytes(key []byte, opts ...Option) (*Fernet, error) {
	if len(key) != KeySize {
		return nil, ErrInvalidKeyFormat
	}
	o := applyOptions(opts)
	f := &Fernet{
		signingKey:    append([]byte(nil), key[:KeySize/2]...),
		encryptionKey: append([]byte(nil), key[KeySize/2:]...),
		provider:      o.provider,
		clock:         o.clock,
	}
	if f.clock == nil {
		f.clock = RealClock()
	}
	return f, nil
}

// Encrypt returns a token for data stamped with the current time.
func (f *Fernet) Encrypt(data []byte) (string, error) {
	return f.EncryptAtTime(data, unixSeconds(f.clock.Now()))
}

// EncryptAtTime returns a token for data stamped with currentTime (Unix seconds).
func (f *Fernet) EncryptAtTime(data []byte, currentTime uint64) (string, error) {
	iv, err := f.provider.Random(blockSize)
	if err != nil {
		return "", fmt.Errorf("fernet: generating iv: %w", err)
	}
	return f.encryptFromParts(data, currentTime, iv)
}

// encryptFromParts builds a token with an explicit IV. Production paths always pass a
// fresh random IV.
func (f *Fernet) encryptFromParts(data []byte, ts uint64, iv []byte) (string, error) {
	padded := f.provider.Pad(data, blockSize)
	defer clear(padded)
	ciphertext, err := f.provider.EncryptCBC(f.encryptionKey, iv, padded)
	if err != nil {
		return "", fmt.Errorf("fernet: encrypting payload: %w", err)
	}

	sb := acquireBuffer(payOffset + len(ciphertext) + tagSize)
	defer sb.Release()
	buf := appendPrefix(sb.Bytes(), ts, iv, ciphertext)
	buf = append(buf, f.provider.MAC(f.signingKey, buf)...)
	sb.buf = buf
	return encoding.EncodeToString(buf), nil
}

// Decrypt verifies token and returns its payload without any age limit.
func (f *Fernet) Decrypt(token string) ([]byte, error) {
	return f.decrypt(token, nil)
}

// DecryptWithTTL verifies token, rejecting it when older than ttl by the engine's clock.
func (f *Fernet) DecryptWithTTL(token string, ttl time.Duration) ([]byte, error) {
	return f.DecryptAtTime(token, ttl, unixSeconds(f.clock.Now()))
}

// DecryptAtTime verifies token as of currentTime (Unix seconds), rejecting it when older
// than ttl or stamped more than MaxClockSkew seconds in the future.
func (f *Fernet) DecryptAtTime(token string, ttl time.Duration, currentTime uint64) ([]byte, error) {
	if ttl < 0 {
		return nil, ErrInvalidTTL
	}
	return f.decrypt(token, &ttlPolicy{ttl: ttlSeconds(ttl), now: currentTime})
}

func (f *Fernet) decrypt(token string, policy *ttlPolicy) ([]byte, error) {
	sb := acquireBuffer(len(token))
	defer sb.Release()
	raw, err := parseToken(sb, token)
	if err != nil {
		return nil, ErrInvalidToken
	}
	return f.decryptRaw(raw, policy)
}

// decryptRaw runs the ttl check on the unverified timestamp first so stale tokens are
// rejected before paying for the MAC. The tag is always verified before any plaintext
// is produced.
func (f *Fernet) decryptRaw(raw rawToken, policy *ttlPolicy) ([]byte, error) {
	if !policy.admits(raw.timestamp()) {
		return nil, ErrInvalidToken
	}
	if err := f.verifySignature(raw); err != nil {
		return nil, err
	}
	padded, err := f.provider.DecryptCBC(f.encryptionKey, raw.iv(), raw.ciphertext())
	if err != nil {
		return nil, ErrInvalidToken
	}
	plaintext, err := f.provider.Unpad(padded, blockSize)
	if err != nil {
		return nil, ErrInvalidToken
	}
	return plaintext, nil
}

func (f *Fernet) verifySignature(raw rawToken) error {
	expected := f.provider.MAC(f.signingKey, raw.signed())
	if !hmac.Equal(expected, raw.tag()) {
		return ErrInvalidToken
	}
	return nil
}

// ExtractTimestamp returns the issuance time embedded in token after checking its
// signature. The payload is not decrypted and no ttl applies.
func (f *Fernet) ExtractTimestamp(token string) (uint64, error) {
	sb := acquireBuffer(len(token))
	defer sb.Release()
	raw, err := parseToken(sb, token)
	if err != nil {
		return 0, err
	}
	if err := f.verifySignature(raw); err != nil {
		return 0, err
	}
	return raw.timestamp(), nil
}
