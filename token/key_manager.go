package token

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// KeyManager owns a rotating list of master keys, newest first, and publishes an
// immutable MultiFernet snapshot after every change. Callers hold on to a snapshot
// for as long as they like; rotation never mutates a ring already handed out.
type KeyManager struct {
	mu     sync.Mutex
	keys   []managedKey
	shares map[string][]string
	ring   atomic.Pointer[MultiFernet]

	retain      int
	totalShares int
	threshold   int
	clock       Clock
	provider    Provider
	observer    Observer
	logger      *slog.Logger
}

type managedKey struct {
	id        string
	createdAt time.Time
	key       string
	// pinned keys are exempt from the retain limit until the next import.
	pinned bool
}

// KeyInfo describes a managed key without exposing its material.
type KeyInfo struct {
	ID        string
	CreatedAt time.Time
	Current   bool
}

// KeyManagerOption customizes a KeyManager.
type KeyManagerOption func(*KeyManager)

// WithRetain caps how many keys (current included) are kept for decryption.
func WithRetain(n int) KeyManagerOption {
	return func(km *KeyManager) { km.retain = n }
}

// WithEscrow splits every new key into total Shamir shares, threshold of which recover it.
func WithEscrow(total, threshold int) KeyManagerOption {
	return func(km *KeyManager) {
		km.totalShares = total
		km.threshold = threshold
	}
}

// WithKeyManagerClock injects the clock used for key timestamps and by published rings.
func WithKeyManagerClock(c Clock) KeyManagerOption {
	return func(km *KeyManager) {
		if c != nil {
			km.clock = c
		}
	}
}

// WithKeyManagerProvider sets the primitive provider for every published ring.
func WithKeyManagerProvider(p Provider) KeyManagerOption {
	return func(km *KeyManager) {
		if p != nil {
			km.provider = p
		}
	}
}

// WithKeyManagerObserver attaches an Observer to every published ring.
func WithKeyManagerObserver(o Observer) KeyManagerOption {
	return func(km *KeyManager) { km.observer = o }
}

// WithKeyManagerLogger sets the logger for rotation events. Key material is never logged.
func WithKeyManagerLogger(l *slog.Logger) KeyManagerOption {
	return func(km *KeyManager) {
		if l != nil {
			km.logger = l
		}
	}
}

const defaultRetain = 3

func newKeyManager(opts []KeyManagerOption) (*KeyManager, error) {
	km := &KeyManager{
		shares:   make(map[string][]string),
		retain:   defaultRetain,
		clock:    RealClock(),
		provider: defaultProvider,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(km)
		}
	}
	if km.retain < 1 {
		return nil, errors.New("retain must be ≥1")
	}
	if km.totalShares != 0 && (km.threshold < 2 || km.threshold > km.totalShares || km.totalShares > 255) {
		return nil, fmt.Errorf("invalid escrow: threshold %d of %d shares", km.threshold, km.totalShares)
	}
	return km, nil
}

// NewKeyManager creates a manager holding one freshly generated key.
func NewKeyManager(opts ...KeyManagerOption) (*KeyManager, error) {
	km, err := newKeyManager(opts)
	if err != nil {
		return nil, err
	}
	if _, err := km.Rotate(); err != nil {
		return nil, err
	}
	return km, nil
}

// NewKeyManagerFromKeys creates a manager seeded with existing keys ordered newest first.
// Keys beyond the retain limit are dropped.
func NewKeyManagerFromKeys(keys []string, opts ...KeyManagerOption) (*KeyManager, error) {
	if len(keys) == 0 {
		return nil, ErrEmptyRing
	}
	km, err := newKeyManager(opts)
	if err != nil {
		return nil, err
	}
	km.mu.Lock()
	defer km.mu.Unlock()
	now := km.clock.Now()
	for i, k := range keys {
		normalized, err := NormalizeKey(k)
		if err != nil {
			return nil, fmt.Errorf("key %d: %w", i, err)
		}
		km.keys = append(km.keys, managedKey{id: uuid.NewString(), createdAt: now, key: normalized})
	}
	kept, _ := km.retained(km.keys)
	if err := km.publishLocked(kept); err != nil {
		return nil, err
	}
	km.keys = kept
	return km, nil
}

// Rotate generates a new current key, prunes keys beyond the retain limit and publishes
// a new ring. It returns the new key's ID.
func (km *KeyManager) Rotate() (string, error) {
	key, err := GenerateKey()
	if err != nil {
		return "", err
	}
	km.mu.Lock()
	defer km.mu.Unlock()

	mk := managedKey{id: uuid.NewString(), createdAt: km.clock.Now(), key: key}
	var shares []string
	if km.totalShares > 0 {
		if shares, err = SplitKey(key, km.totalShares, km.threshold); err != nil {
			return "", err
		}
	}
	kept, dropped := km.retained(append([]managedKey{mk}, km.keys...))
	if err := km.publishLocked(kept); err != nil {
		return "", err
	}
	km.keys = kept
	if shares != nil {
		km.shares[mk.id] = shares
	}
	for _, k := range dropped {
		delete(km.shares, k.id)
	}
	km.logger.Info("fernet key rotated", "key_id", mk.id, "ring_size", len(kept), "pruned", len(dropped))
	return mk.id, nil
}

// retained splits keys into those kept under the retain limit and those dropped. Pinned
// keys are always kept and do not count against the limit. Order is preserved.
func (km *KeyManager) retained(keys []managedKey) (kept, dropped []managedKey) {
	kept = make([]managedKey, 0, len(keys))
	n := 0
	for _, k := range keys {
		switch {
		case k.pinned:
			kept = append(kept, k)
		case n < km.retain:
			kept = append(kept, k)
			n++
		default:
			dropped = append(dropped, k)
		}
	}
	return kept, dropped
}

// publishLocked builds a ring from keys and stores it. km.keys is left to the caller.
func (km *KeyManager) publishLocked(keys []managedKey) error {
	fernets := make([]*Fernet, 0, len(keys))
	for _, k := range keys {
		f, err := New(k.key, WithProvider(km.provider), WithClock(km.clock))
		if err != nil {
			return fmt.Errorf("key %s: %w", k.id, err)
		}
		fernets = append(fernets, f)
	}
	ring, err := NewMulti(fernets, WithClock(km.clock), WithObserver(km.observer))
	if err != nil {
		return err
	}
	km.ring.Store(ring)
	return nil
}

// Ring returns the current immutable snapshot.
func (km *KeyManager) Ring() *MultiFernet {
	return km.ring.Load()
}

// CurrentKeyID returns the ID of the key issuing new tokens.
func (km *KeyManager) CurrentKeyID() string {
	km.mu.Lock()
	defer km.mu.Unlock()
	if len(km.keys) == 0 {
		return ""
	}
	return km.keys[0].id
}

// Keys lists managed keys newest first.
func (km *KeyManager) Keys() []KeyInfo {
	km.mu.Lock()
	defer km.mu.Unlock()
	out := make([]KeyInfo, len(km.keys))
	for i, k := range km.keys {
		out[i] = KeyInfo{ID: k.id, CreatedAt: k.createdAt, Current: i == 0}
	}
	return out
}

// Shares returns the escrow shares stored for a key ID (nil if none).
func (km *KeyManager) Shares(id string) []string {
	km.mu.Lock()
	defer km.mu.Unlock()
	return append([]string(nil), km.shares[id]...)
}

// ImportKeyFromShares recombines an escrowed key and appends it as the oldest key, so
// tokens it issued become decryptable again. It returns the key's new ID.
//
// The imported key is pinned: later rotations do not prune it until the next import,
// which releases the previous pin and applies the retain limit again.
func (km *KeyManager) ImportKeyFromShares(shares []string) (string, error) {
	key, err := CombineKey(shares)
	if err != nil {
		return "", err
	}
	km.mu.Lock()
	defer km.mu.Unlock()
	mk := managedKey{id: uuid.NewString(), createdAt: km.clock.Now(), key: key, pinned: true}
	keys := make([]managedKey, 0, len(km.keys)+1)
	for _, k := range km.keys {
		k.pinned = false
		keys = append(keys, k)
	}
	kept, dropped := km.retained(append(keys, mk))
	if err := km.publishLocked(kept); err != nil {
		return "", err
	}
	km.keys = kept
	for _, k := range dropped {
		delete(km.shares, k.id)
	}
	km.logger.Info("fernet key imported from shares", "key_id", mk.id, "ring_size", len(kept), "pruned", len(dropped))
	return mk.id, nil
}

// Start rotates keys every period until ctx is done. It returns immediately.
func (km *KeyManager) Start(ctx context.Context, period time.Duration) error {
	if period <= 0 {
		return errors.New("rotation period must be positive")
	}
	ticker := time.NewTicker(period)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := km.Rotate(); err != nil {
					km.logger.Error("fernet key rotation failed", "error", err)
				}
			}
		}
	}()
	return nil
}
