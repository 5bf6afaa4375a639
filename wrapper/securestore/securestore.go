// Package securestore provides a security wrapper for responsecache.Store
// implementations. Cache ids are always hashed with SHA-256; when a
// passphrase is configured the whole entry is sealed with AES-256-GCM.
package securestore

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"

	"github.com/sandrolain/responsecache"
	"golang.org/x/crypto/scrypt"
)

const (
	// scryptN is the CPU/memory cost parameter for scrypt key derivation
	scryptN = 32768
	// scryptR is the block size parameter for scrypt
	scryptR = 8
	// scryptP is the parallelization parameter for scrypt
	scryptP = 1
	// keyLength is the desired key length for AES-256
	keyLength = 32

	// headerSealed marks entries whose body is a sealed encoded entry.
	headerSealed = "X-Responsecache-Sealed"
)

// Store wraps an existing store to add security features:
//   - SHA-256 hashing of all cache ids (always enabled)
//   - Optional AES-256-GCM encryption of status, headers and body
//
// The modification time stays outside the ciphertext so the inner store can
// stamp it.
type Store struct {
	store responsecache.Store
	gcm   cipher.AEAD
}

// Config holds the configuration for creating a Store.
type Config struct {
	// Store is the underlying store to wrap.
	Store responsecache.Store

	// Passphrase is the secret used to encrypt/decrypt entries.
	// If empty, only id hashing is performed (no encryption).
	// Must be kept secret and consistent across application restarts.
	Passphrase string
}

// New creates a new Store that wraps the provided store.
func New(config Config) (*Store, error) {
	if config.Store == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}

	s := &Store{store: config.Store}
	if config.Passphrase != "" {
		gcm, err := newGCM(config.Passphrase)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize encryption: %w", err)
		}
		s.gcm = gcm
	}
	return s, nil
}

// newGCM derives an AES-256 key from the passphrase with scrypt.
func newGCM(passphrase string) (cipher.AEAD, error) {
	salt := sha256.Sum256([]byte("responsecache-securestore-salt-v1"))
	key, err := scrypt.Key([]byte(passphrase), salt[:], scryptN, scryptR, scryptP, keyLength)
	if err != nil {
		return nil, fmt.Errorf("failed to derive key: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}

// hashID converts a cache id to its SHA-256 hash representation.
func hashID(id string) string {
	hash := sha256.Sum256([]byte(id))
	return hex.EncodeToString(hash[:])
}

// seal encrypts data, prepending the random nonce.
func (s *Store) seal(data []byte) ([]byte, error) {
	nonce := make([]byte, s.gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	// #nosec G407 -- nonce is randomly generated above using crypto/rand, not hardcoded
	return s.gcm.Seal(nonce, nonce, data, nil), nil
}

// open decrypts data produced by seal.
func (s *Store) open(data []byte) ([]byte, error) {
	size := s.gcm.NonceSize()
	if len(data) < size {
		return nil, fmt.Errorf("ciphertext too short")
	}
	plaintext, err := s.gcm.Open(nil, data[:size], data[size:], nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt: %w", err)
	}
	return plaintext, nil
}

// Get retrieves the entry for id, decrypting it when encryption is enabled.
func (s *Store) Get(ctx context.Context, id string) (responsecache.Entry, bool, error) {
	hashed := hashID(id)
	stored, found, err := s.store.Get(ctx, hashed)
	if err != nil || !found {
		return responsecache.Entry{}, false, err
	}
	if s.gcm == nil {
		return stored, true, nil
	}
	if stored.Header.Get(headerSealed) == "" {
		return responsecache.Entry{}, false, fmt.Errorf("securestore id %s: %w: entry is not sealed", hashed, responsecache.ErrMalformedEntry)
	}

	plaintext, err := s.open(stored.Body)
	if err != nil {
		responsecache.GetLogger().Warn("failed to decrypt stored entry", "id", hashed, "error", err)
		return responsecache.Entry{}, false, fmt.Errorf("securestore id %s: %w: %v", hashed, responsecache.ErrMalformedEntry, err)
	}
	entry, err := responsecache.DecodeEntry(plaintext)
	if err != nil {
		return responsecache.Entry{}, false, fmt.Errorf("securestore id %s: %w", hashed, err)
	}
	entry.Modified = stored.Modified
	return entry, true, nil
}

// Set stores the entry under the hashed id, sealing it when encryption is
// enabled.
func (s *Store) Set(ctx context.Context, id string, entry responsecache.Entry) error {
	hashed := hashID(id)
	if s.gcm == nil {
		return s.store.Set(ctx, hashed, entry)
	}

	plaintext, err := responsecache.EncodeEntry(entry)
	if err != nil {
		return err
	}
	sealed, err := s.seal(plaintext)
	if err != nil {
		responsecache.GetLogger().Warn("failed to encrypt entry", "id", hashed, "error", err)
		return err
	}
	return s.store.Set(ctx, hashed, responsecache.Entry{
		Modified: entry.Modified,
		Header:   http.Header{headerSealed: {"1"}},
		Body:     sealed,
	})
}

// IsEncrypted reports whether entries are encrypted.
func (s *Store) IsEncrypted() bool {
	return s.gcm != nil
}
