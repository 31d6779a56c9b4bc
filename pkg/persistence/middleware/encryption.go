package middleware

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/ports"
)

// envelopeKey is the only slice of an encrypted snapshot.
const envelopeKey = "__encrypted__"

// EncryptionConfig holds the keys for encryption and decryption.
type EncryptionConfig struct {
	// ActiveKey is the key used for encrypting new data.
	// Must be 32 bytes for AES-256.
	ActiveKey []byte

	// FallbackKeys are tried when the active key cannot decrypt,
	// which allows rotating keys without losing stored state.
	FallbackKeys [][]byte
}

// ParseKey decodes a 32-byte key given as hex (64 chars) or base64.
func ParseKey(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if b, err := hex.DecodeString(s); err == nil && len(b) == 32 {
		return b, nil
	}
	if b, err := base64.StdEncoding.DecodeString(s); err == nil && len(b) == 32 {
		return b, nil
	}
	return nil, errors.New("encryption key must be 32 bytes, hex or base64 encoded")
}

// keyring holds one AEAD per key, the active key first.
type keyring []cipher.AEAD

func newKeyring(config EncryptionConfig) (keyring, error) {
	keys := append([][]byte{config.ActiveKey}, config.FallbackKeys...)
	ring := make(keyring, 0, len(keys))
	for i, key := range keys {
		block, err := aes.NewCipher(key)
		if err != nil {
			return nil, fmt.Errorf("key %d: %w", i, err)
		}
		gcm, err := cipher.NewGCM(block)
		if err != nil {
			return nil, fmt.Errorf("key %d: %w", i, err)
		}
		ring = append(ring, gcm)
	}
	return ring, nil
}

// seal encrypts the encoded snapshot with the active key. The snapshot
// version is authenticated, so the envelope version cannot be altered.
func (r keyring) seal(snapshot *domain.Snapshot) (string, error) {
	plain, err := domain.EncodeSnapshot(snapshot)
	if err != nil {
		return "", err
	}
	gcm := r[0]
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}
	sealed := gcm.Seal(nonce, nonce, plain, versionData(snapshot.Version))
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// open decrypts an envelope, trying the active key and then the fallbacks.
func (r keyring) open(envelope *domain.Snapshot) (*domain.Snapshot, error) {
	encoded, ok := envelope.Slices[envelopeKey].(string)
	if !ok {
		return nil, errors.New("snapshot is missing encrypted data envelope")
	}
	sealed, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("failed to decode ciphertext base64: %w", err)
	}

	ad := versionData(envelope.Version)
	for _, gcm := range r {
		n := gcm.NonceSize()
		if len(sealed) < n {
			return nil, errors.New("ciphertext too short")
		}
		if plain, err := gcm.Open(nil, sealed[:n], sealed[n:], ad); err == nil {
			return domain.DecodeSnapshot(plain)
		}
	}
	return nil, errors.New("decryption failed with all available keys")
}

func versionData(v int) []byte {
	return strconv.AppendInt([]byte("arbor/v"), int64(v), 10)
}

type encryptionMiddleware struct {
	next ports.Storage
	keys keyring
}

// NewEncryptionMiddleware creates a middleware that seals every snapshot with
// AES-GCM. The stored snapshot keeps its version and carries a single opaque
// slice. It panics if the active key is not 32 bytes or a fallback key is not
// a valid AES key.
func NewEncryptionMiddleware(config EncryptionConfig) Middleware {
	if len(config.ActiveKey) != 32 {
		panic("active key must be 32 bytes (AES-256)")
	}
	keys, err := newKeyring(config)
	if err != nil {
		panic(err)
	}
	return func(next ports.Storage) ports.Storage {
		return &encryptionMiddleware{next: next, keys: keys}
	}
}

func (m *encryptionMiddleware) Save(ctx context.Context, key string, snapshot *domain.Snapshot) error {
	sealed, err := m.keys.seal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to encrypt snapshot: %w", err)
	}
	envelope := domain.NewSnapshot(snapshot.Version)
	envelope.Slices[envelopeKey] = sealed
	return m.next.Save(ctx, key, envelope)
}

// Load refuses snapshots without an envelope: encryption is all or nothing.
func (m *encryptionMiddleware) Load(ctx context.Context, key string) (*domain.Snapshot, error) {
	envelope, err := m.next.Load(ctx, key)
	if err != nil {
		return nil, err
	}
	snap, err := m.keys.open(envelope)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt snapshot: %w", err)
	}
	return snap, nil
}

func (m *encryptionMiddleware) Delete(ctx context.Context, key string) error {
	return m.next.Delete(ctx, key)
}

func (m *encryptionMiddleware) List(ctx context.Context) ([]string, error) {
	return m.next.List(ctx)
}
