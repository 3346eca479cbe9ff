package token

import (
	"errors"
	"testing"
	"time"
)

type recordingObserver struct {
	encrypted int
	decrypted []int
	rotated   []bool
}

func (r *recordingObserver) Encrypted()          { r.encrypted++ }
func (r *recordingObserver) Decrypted(index int) { r.decrypted = append(r.decrypted, index) }
func (r *recordingObserver) Rotated(ok bool)     { r.rotated = append(r.rotated, ok) }

func TestNewMultiEmpty(t *testing.T) {
	if _, err := NewMulti(nil); !errors.Is(err, ErrEmptyRing) {
		t.Fatalf("got %v, want ErrEmptyRing", err)
	}
	if _, err := NewMulti([]*Fernet{}); !errors.Is(err, ErrEmptyRing) {
		t.Fatalf("got %v, want ErrEmptyRing", err)
	}
	if _, err := NewMulti([]*Fernet{newTestFernet(t), nil}); err == nil {
		t.Fatal("expected error for nil entry")
	}
}

func TestMultiEncryptsWithFirstKey(t *testing.T) {
	k1, k2 := newTestFernet(t), newTestFernet(t)
	m, err := NewMulti([]*Fernet{k1, k2})
	if err != nil {
		t.Fatalf("NewMulti: %v", err)
	}
	if m.Len() != 2 || m.Current() != k1 {
		t.Fatalf("Len=%d Current=%p, want 2 and %p", m.Len(), m.Current(), k1)
	}
	tok, err := m.Encrypt([]byte("payload"))
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if _, err := k1.Decrypt(tok); err != nil {
		t.Fatalf("first key cannot open multi token: %v", err)
	}
	if _, err := k2.Decrypt(tok); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("second key opened multi token: %v", err)
	}
}

func TestMultiFallback(t *testing.T) {
	k1, k2, k3 := newTestFernet(t), newTestFernet(t), newTestFernet(t)
	obs := &recordingObserver{}
	m, err := NewMulti([]*Fernet{k1, k2}, WithObserver(obs))
	if err != nil {
		t.Fatalf("NewMulti: %v", err)
	}

	old, _ := k2.EncryptAtTime([]byte("from k2"), 1000)
	got, err := m.Decrypt(old)
	if err != nil || string(got) != "from k2" {
		t.Fatalf("Decrypt via second key = %q, %v", got, err)
	}
	if _, err := m.DecryptAtTime(old, 10*time.Second, 1010); err != nil {
		t.Fatalf("DecryptAtTime at edge: %v", err)
	}
	if _, err := m.DecryptAtTime(old, 10*time.Second, 1011); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expired via ring: got %v", err)
	}

	stranger, _ := k3.Encrypt([]byte("nope"))
	if _, err := m.Decrypt(stranger); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("foreign token: got %v, want ErrInvalidToken", err)
	}
	if _, err := m.Decrypt("garbage"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("garbage: got %v, want ErrInvalidToken", err)
	}
	if _, err := m.DecryptAtTime(old, -1, 1000); !errors.Is(err, ErrInvalidTTL) {
		t.Fatalf("negative ttl: got %v", err)
	}

	want := []int{1, 1, -1, -1, -1}
	if len(obs.decrypted) != len(want) {
		t.Fatalf("observed %v, want %v", obs.decrypted, want)
	}
	for i := range want {
		if obs.decrypted[i] != want[i] {
			t.Fatalf("observed %v, want %v", obs.decrypted, want)
		}
	}
}

func TestMultiRotate(t *testing.T) {
	k1, k2 := newTestFernet(t), newTestFernet(t)
	obs := &recordingObserver{}
	ring, err := NewMulti([]*Fernet{k1, k2}, WithObserver(obs))
	if err != nil {
		t.Fatalf("NewMulti: %v", err)
	}
	original, err := k2.EncryptAtTime([]byte("rotate me"), 1234)
	if err != nil {
		t.Fatalf("EncryptAtTime: %v", err)
	}

	rotated, err := ring.Rotate(original)
	if err != nil {
		t.Fatalf("Rotate: %v", err)
	}
	if rotated == original {
		t.Fatal("rotated token equals original")
	}
	got, err := k1.Decrypt(rotated)
	if err != nil || string(got) != "rotate me" {
		t.Fatalf("k1.Decrypt(rotated) = %q, %v", got, err)
	}
	ts, err := k1.ExtractTimestamp(rotated)
	if err != nil || ts != 1234 {
		t.Fatalf("timestamp = %d, %v; want 1234", ts, err)
	}

	again, err := ring.Rotate(rotated)
	if err != nil {
		t.Fatalf("second Rotate: %v", err)
	}
	if again == rotated {
		t.Fatal("rotation must draw a fresh iv")
	}

	if _, err := ring.Rotate(newTokenFrom(t, newTestFernet(t))); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("Rotate of foreign token: got %v", err)
	}
	if want := []bool{true, true, false}; len(obs.rotated) != 3 || obs.rotated[0] != want[0] || obs.rotated[2] != want[2] {
		t.Fatalf("observed rotations %v, want %v", obs.rotated, want)
	}
}

func TestMultiRotateIgnoresTTL(t *testing.T) {
	k1, k2 := newTestFernet(t), newTestFernet(t)
	ring, _ := NewMulti([]*Fernet{k1, k2})
	ancient, _ := k2.EncryptAtTime([]byte("old"), 1)
	rotated, err := ring.Rotate(ancient)
	if err != nil {
		t.Fatalf("Rotate: %v", err)
	}
	// the original timestamp survives, so the ttl still rejects it
	if _, err := ring.DecryptWithTTL(rotated, time.Hour); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("got %v, want ErrInvalidToken", err)
	}
}

func TestMultiExtractTimestamp(t *testing.T) {
	k1, k2 := newTestFernet(t), newTestFernet(t)
	ring, _ := NewMulti([]*Fernet{k1, k2})
	tok, _ := k2.EncryptAtTime([]byte("x"), 4242)
	ts, err := ring.ExtractTimestamp(tok)
	if err != nil || ts != 4242 {
		t.Fatalf("ExtractTimestamp = %d, %v", ts, err)
	}
	if _, err := ring.ExtractTimestamp(newTokenFrom(t, newTestFernet(t))); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("foreign token: got %v", err)
	}
	if _, err := ring.ExtractTimestamp("AAAA"); !errors.Is(err, ErrMalformedToken) {
		t.Fatalf("malformed: got %v", err)
	}
}

func TestMultiUsesRingClock(t *testing.T) {
	k1 := newTestFernet(t, WithClock(FixedClock(time.Unix(10, 0))))
	ring, _ := NewMulti([]*Fernet{k1}, WithClock(FixedClock(time.Unix(5000, 0))))
	tok, _ := ring.Encrypt([]byte("x"))
	if ts, _ := ring.ExtractTimestamp(tok); ts != 5000 {
		t.Fatalf("timestamp = %d, want ring clock 5000", ts)
	}

	inherit, _ := NewMulti([]*Fernet{k1})
	tok, _ = inherit.Encrypt([]byte("x"))
	if ts, _ := inherit.ExtractTimestamp(tok); ts != 10 {
		t.Fatalf("timestamp = %d, want first engine clock 10", ts)
	}
}

func newTokenFrom(t *testing.T, f *Fernet) string {
	t.Helper()
	tok, err := f.Encrypt([]byte("foreign"))
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	return tok
}
