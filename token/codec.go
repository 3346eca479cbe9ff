package token

import (
	"crypto/aes"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"math"
)

// Wire layout: version(1) ‖ timestamp(8) ‖ iv(16) ‖ ciphertext(16k) ‖ hmac(32).
const (
	Version byte = 0x80

	// KeySize is the decoded length of a master key.
	KeySize = 32

	// MaxClockSkew is how far, in seconds, a token timestamp may run ahead of the verifier.
	MaxClockSkew uint64 = 60

	blockSize     = aes.BlockSize
	timestampSize = 8
	tagSize       = sha256.Size
	tsOffset      = 1
	ivOffset      = tsOffset + timestampSize
	payOffset     = ivOffset + blockSize

	// MinTokenSize is the shortest decoded token: every fixed field and no ciphertext.
	MinTokenSize = payOffset + tagSize
)

// encoding is URL-safe base64 with padding, for both tokens and keys.
var encoding = base64.URLEncoding

// rawToken is a decoded token. Accessors assume it passed parseToken.
type rawToken []byte

func (r rawToken) timestamp() uint64 { return binary.BigEndian.Uint64(r[tsOffset:ivOffset]) }
func (r rawToken) iv() []byte        { return r[ivOffset:payOffset] }
func (r rawToken) ciphertext() []byte {
	return r[payOffset : len(r)-tagSize]
}
func (r rawToken) signed() []byte { return r[:len(r)-tagSize] }
func (r rawToken) tag() []byte    { return r[len(r)-tagSize:] }

// parseToken decodes token into buf and checks the framing. Nothing is authenticated yet.
func parseToken(buf *tokenBuffer, token string) (rawToken, error) {
	n := encoding.DecodedLen(len(token))
	if cap(buf.buf) < n {
		buf.buf = make([]byte, 0, n)
	}
	data := buf.buf[:n]
	n, err := encoding.Decode(data, []byte(token))
	if err != nil {
		return nil, ErrMalformedToken
	}
	data = data[:n]
	buf.buf = data
	if len(data) < MinTokenSize || data[0] != Version {
		return nil, ErrMalformedToken
	}
	return rawToken(data), nil
}

// appendPrefix appends the signed prefix fields to dst.
func appendPrefix(dst []byte, ts uint64, iv, ciphertext []byte) []byte {
	dst = append(dst, Version)
	dst = binary.BigEndian.AppendUint64(dst, ts)
	dst = append(dst, iv...)
	return append(dst, ciphertext...)
}

// ttlPolicy is the (ttl, now) pair checked against a token's unverified timestamp.
// A nil policy admits every timestamp.
type ttlPolicy struct {
	ttl uint64
	now uint64
}

// admits reports whether ts is neither expired nor too far in the future. Sums that
// would overflow are treated as unbounded.
func (p *ttlPolicy) admits(ts uint64) bool {
	if p == nil {
		return true
	}
	if ts <= math.MaxUint64-p.ttl && ts+p.ttl < p.now {
		return false
	}
	if p.now <= math.MaxUint64-MaxClockSkew && p.now+MaxClockSkew < ts {
		return false
	}
	return true
}
