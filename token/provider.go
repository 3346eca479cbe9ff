package token

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/sha256"
	"io"
)

// Provider supplies the primitive operations the token scheme is composed from.
// Implementations must be safe for concurrent use.
type Provider interface {
	// EncryptCBC encrypts block-aligned data under key and iv in CBC mode.
	EncryptCBC(key, iv, data []byte) ([]byte, error)
	// DecryptCBC reverses EncryptCBC. It fails when data is not block-aligned.
	DecryptCBC(key, iv, data []byte) ([]byte, error)
	// MAC returns the keyed hash of data.
	MAC(key, data []byte) []byte
	// Pad extends data to a multiple of blockSize with reversible padding.
	Pad(data []byte, blockSize int) []byte
	// Unpad removes padding added by Pad, failing on a malformed pattern.
	Unpad(data []byte, blockSize int) ([]byte, error)
	// Random returns n cryptographically secure random bytes.
	Random(n int) ([]byte, error)
}

// stdProvider implements Provider with AES-CBC, HMAC-SHA256 and PKCS #7.
type stdProvider struct {
	random *SecretGenerator
}

// NewProvider returns the standard Provider. Randomness comes from the given reader,
// or crypto/rand.Reader when none is provided.
func NewProvider(readers ...io.Reader) Provider {
	return &stdProvider{random: NewSecretGenerator(readers...)}
}

var defaultProvider = NewProvider()

func (p *stdProvider) EncryptCBC(key, iv, data []byte) ([]byte, error) {
	bc, err := p.blockMode(key, iv, data)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(data))
	cipher.NewCBCEncrypter(bc, iv).CryptBlocks(out, data)
	return out, nil
}

func (p *stdProvider) DecryptCBC(key, iv, data []byte) ([]byte, error) {
	bc, err := p.blockMode(key, iv, data)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(data))
	cipher.NewCBCDecrypter(bc, iv).CryptBlocks(out, data)
	return out, nil
}

func (p *stdProvider) blockMode(key, iv, data []byte) (cipher.Block, error) {
	if len(iv) != aes.BlockSize {
		return nil, errInvalidIV
	}
	if len(data)%aes.BlockSize != 0 {
		return nil, errBlockAlignment
	}
	return aes.NewCipher(key)
}

func (p *stdProvider) MAC(key, data []byte) []byte {
	h := hmac.New(sha256.New, key)
	h.Write(data)
	return h.Sum(nil)
}

// Pad pads data to a multiple of k using PKCS #7 standard block padding.
// See http://tools.ietf.org/html/rfc5652#section-6.3.
func (p *stdProvider) Pad(data []byte, k int) []byte {
	n := len(data)/k*k + k
	out := make([]byte, n)
	copy(out, data)
	c := byte(n - len(data))
	for i := len(data); i < n; i++ {
		out[i] = c
	}
	return out
}

// Unpad removes PKCS #7 padding. It is the inverse of Pad.
func (p *stdProvider) Unpad(data []byte, k int) ([]byte, error) {
	if len(data) == 0 || len(data)%k != 0 {
		return nil, errBadPadding
	}
	c := int(data[len(data)-1])
	if c == 0 || c > k {
		return nil, errBadPadding
	}
	for _, b := range data[len(data)-c:] {
		if int(b) != c {
			return nil, errBadPadding
		}
	}
	return data[:len(data)-c], nil
}

func (p *stdProvider) Random(n int) ([]byte, error) {
	return p.random.Key(n)
}
