package token

import (
	"errors"
	"testing"
	"time"
)

type stepClock struct{ now time.Time }

func (c *stepClock) Now() time.Time { return c.now }

func TestIssuerIssueVerify(t *testing.T) {
	clock := &stepClock{now: time.Unix(10_000, 0)}
	ring, _ := NewMulti([]*Fernet{newTestFernet(t)})
	iss, err := NewIssuer(ring, time.Minute, WithIssuerClock(clock))
	if err != nil {
		t.Fatalf("NewIssuer: %v", err)
	}
	if iss.TTL() != time.Minute {
		t.Fatalf("TTL = %v", iss.TTL())
	}
	tok, err := iss.Issue([]byte("user:42"))
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if ts, _ := ring.ExtractTimestamp(tok); ts != 10_000 {
		t.Fatalf("timestamp = %d, want issuer clock", ts)
	}

	clock.now = clock.now.Add(time.Minute)
	if got, err := iss.Verify(tok); err != nil || string(got) != "user:42" {
		t.Fatalf("Verify at edge = %q, %v", got, err)
	}
	clock.now = clock.now.Add(time.Second)
	if _, err := iss.Verify(tok); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("Verify expired: got %v", err)
	}
}

func TestIssuerRefresh(t *testing.T) {
	clock := &stepClock{now: time.Unix(10_000, 0)}
	ring, _ := NewMulti([]*Fernet{newTestFernet(t)})
	iss, _ := NewIssuer(ring, time.Minute, WithIssuerClock(clock))
	tok, _ := iss.Issue([]byte("refresh"))

	clock.now = clock.now.Add(50 * time.Second)
	fresh, err := iss.Refresh(tok)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if ts, _ := ring.ExtractTimestamp(fresh); ts != 10_050 {
		t.Fatalf("refreshed timestamp = %d, want 10050", ts)
	}
	clock.now = clock.now.Add(50 * time.Second)
	if _, err := iss.Verify(tok); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("old token should have expired: %v", err)
	}
	if _, err := iss.Verify(fresh); err != nil {
		t.Fatalf("refreshed token rejected: %v", err)
	}
	if _, err := iss.Refresh(tok); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("Refresh of expired token: got %v", err)
	}
}

func TestIssuerZeroTTL(t *testing.T) {
	clock := &stepClock{now: time.Unix(10_000, 0)}
	f := newTestFernet(t)
	ring, _ := NewMulti([]*Fernet{f})
	iss, _ := NewIssuer(ring, 0, WithIssuerClock(clock))

	old, _ := f.EncryptAtTime([]byte("old"), 1)
	if _, err := iss.Verify(old); err != nil {
		t.Fatalf("zero ttl should not expire: %v", err)
	}
	future, _ := f.EncryptAtTime([]byte("future"), 10_061)
	if _, err := iss.Verify(future); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("skew still applies: got %v", err)
	}
}

func TestIssuerWithKeyManager(t *testing.T) {
	km, err := NewKeyManager(WithKeyManagerLogger(quietLogger()))
	if err != nil {
		t.Fatalf("NewKeyManager: %v", err)
	}
	iss, err := NewKeyManagerIssuer(km, time.Hour)
	if err != nil {
		t.Fatalf("NewKeyManagerIssuer: %v", err)
	}
	tok, _ := iss.Issue([]byte("km"))
	ts, _ := km.Ring().ExtractTimestamp(tok)

	if _, err := km.Rotate(); err != nil {
		t.Fatalf("Rotate: %v", err)
	}
	if _, err := iss.Verify(tok); err != nil {
		t.Fatalf("token from previous key rejected: %v", err)
	}
	rotated, err := iss.Rotate(tok)
	if err != nil {
		t.Fatalf("Rotate token: %v", err)
	}
	if _, err := km.Ring().Current().Decrypt(rotated); err != nil {
		t.Fatalf("rotated token not under current key: %v", err)
	}
	if rts, _ := km.Ring().ExtractTimestamp(rotated); rts != ts {
		t.Fatalf("rotation changed timestamp %d -> %d", ts, rts)
	}
}

func TestIssuerConstruction(t *testing.T) {
	if _, err := NewIssuer(nil, time.Minute); !errors.Is(err, ErrEmptyRing) {
		t.Fatalf("nil ring: got %v", err)
	}
	ring, _ := NewMulti([]*Fernet{newTestFernet(t)})
	if _, err := NewIssuer(ring, -time.Second); !errors.Is(err, ErrInvalidTTL) {
		t.Fatalf("negative ttl: got %v", err)
	}
	if _, err := NewKeyManagerIssuer(nil, time.Minute); err == nil {
		t.Fatal("expected error for nil key manager")
	}
}
