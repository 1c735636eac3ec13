package contact

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/notifier/pkg/secrets"
)

// Keyring encrypts contact payloads with per-key material combined with a
// master key. Retired keys still decrypt until their grace period ends.
type Keyring struct {
	store  KeyStore
	master []byte
	grace  time.Duration
	now    func() time.Time
	logger *slog.Logger

	// serializes bootstrap and rotation within the process
	mu sync.Mutex
}

// KeyringOption configures a Keyring.
type KeyringOption func(*Keyring)

func WithKeyringClock(now func() time.Time) KeyringOption {
	return func(k *Keyring) { k.now = now }
}

func WithKeyringLogger(l *slog.Logger) KeyringOption {
	return func(k *Keyring) { k.logger = l }
}

// NewKeyring returns a keyring over store. masterKey must be secrets.KeySize bytes.
func NewKeyring(store KeyStore, masterKey []byte, grace time.Duration, opts ...KeyringOption) (*Keyring, error) {
	if err := secrets.ValidateKeys(masterKey, masterKey); err != nil {
		return nil, errors.Join(ErrEncryption, err)
	}

	k := &Keyring{
		store:  store,
		master: append([]byte(nil), masterKey...),
		grace:  grace,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(k)
	}
	return k, nil
}

// Current returns the current key, creating the first one when the keyring is empty.
func (k *Keyring) Current(ctx context.Context) (Key, error) {
	key, err := k.store.Current(ctx)
	if err == nil {
		return key, nil
	}
	if !errors.Is(err, ErrKeyNotFound) {
		return Key{}, err
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	if key, err := k.store.Current(ctx); err == nil {
		return key, nil
	}
	return k.rotate(ctx)
}

// Encrypt seals plaintext with the key identified by keyID.
func (k *Keyring) Encrypt(ctx context.Context, plaintext, keyID string) (string, error) {
	key, err := k.usable(ctx, keyID)
	if err != nil {
		return "", err
	}

	ct, err := secrets.EncryptString(k.master, key.Material, plaintext, key.ID)
	if err != nil {
		return "", errors.Join(ErrEncryption, err)
	}
	return ct, nil
}

// Decrypt opens ciphertext sealed with keyID. It fails with ErrKeyRetired
// once keyID is retired beyond the grace period.
func (k *Keyring) Decrypt(ctx context.Context, ciphertext, keyID string) (string, error) {
	key, err := k.usable(ctx, keyID)
	if err != nil {
		return "", err
	}

	pt, err := secrets.DecryptString(k.master, key.Material, ciphertext, key.ID)
	if err != nil {
		return "", errors.Join(ErrEncryption, err)
	}
	return pt, nil
}

// Rotate creates a new current key and retires the previous one.
func (k *Keyring) Rotate(ctx context.Context) (Key, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.rotate(ctx)
}

// Expired lists retired keys whose grace period has ended.
func (k *Keyring) Expired(ctx context.Context) ([]Key, error) {
	keys, err := k.store.List(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]Key, 0)
	for _, key := range keys {
		if k.pastGrace(key) {
			out = append(out, key)
		}
	}
	return out, nil
}

// Drop removes a key from the store.
func (k *Keyring) Drop(ctx context.Context, keyID string) error {
	return k.store.Delete(ctx, keyID)
}

func (k *Keyring) rotate(ctx context.Context) (Key, error) {
	material, err := secrets.GenerateKey()
	if err != nil {
		return Key{}, errors.Join(ErrEncryption, err)
	}

	now := k.now().UTC()
	next := Key{
		ID:        uuid.NewString(),
		Material:  material,
		CreatedAt: now,
	}
	if err := k.store.Rotate(ctx, next, now); err != nil {
		return Key{}, fmt.Errorf("rotate contact key: %w", err)
	}

	k.logger.InfoContext(ctx, "contact key rotated", slog.String("key_id", next.ID))
	return next, nil
}

func (k *Keyring) usable(ctx context.Context, keyID string) (Key, error) {
	key, err := k.store.Get(ctx, keyID)
	if err != nil {
		if errors.Is(err, ErrKeyNotFound) {
			return Key{}, err
		}
		return Key{}, fmt.Errorf("load contact key %s: %w", keyID, err)
	}
	if k.pastGrace(key) {
		return Key{}, ErrKeyRetired
	}
	return key, nil
}

func (k *Keyring) pastGrace(key Key) bool {
	return key.RetiredAt != nil && !k.now().Before(key.RetiredAt.Add(k.grace))
}
