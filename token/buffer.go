package token

import "sync"

// bytePool holds reusable byte slices for raw token bytes, which carry ciphertext
// and the authentication tag and are zeroed before reuse.
var bytePool = sync.Pool{
	New: func() any {
		b := make([]byte, 0, 512)
		return &b
	},
}

// tokenBuffer is a pooled scratch buffer for one token encode or decode.
type tokenBuffer struct {
	ptr *[]byte
	buf []byte
}

// acquireBuffer returns an empty buffer with room for at least n bytes.
func acquireBuffer(n int) *tokenBuffer {
	ptr := bytePool.Get().(*[]byte)
	buf := (*ptr)[:0]
	if cap(buf) < n {
		buf = make([]byte, 0, n)
	}
	return &tokenBuffer{ptr: ptr, buf: buf}
}

func (s *tokenBuffer) Bytes() []byte { return s.buf }

// Release zeros the buffer and returns it to the pool.
func (s *tokenBuffer) Release() {
	if s == nil || s.ptr == nil {
		return
	}
	buf := s.buf[:cap(s.buf)]
	clear(buf)
	*s.ptr = buf[:0]
	bytePool.Put(s.ptr)
	s.ptr = nil
	s.buf = nil
}
