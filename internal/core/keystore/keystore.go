// Package keystore holds the key material the protocol engine authenticates
// against: one RSA key pair for protocol v1 and named shared-secret tokens
// for protocol v2.
//
// Key material is published as an immutable Snapshot behind an atomic
// pointer. Reloads build a complete new Snapshot and swap it in one step, so
// a connection that grabbed a snapshot keeps a consistent view until it
// closes.
package keystore

import (
	"crypto/rsa"
	"errors"
	"sort"
	"sync/atomic"
	"time"
)

// Keystore errors.
var (
	ErrNoKeyPair   = errors.New("keystore: rsa key pair is required")
	ErrNilSnapshot = errors.New("keystore: nil snapshot")
)

// Snapshot is an immutable view of the key material.
type Snapshot struct {
	privateKey *rsa.PrivateKey
	tokens     map[string][]byte
	loadedAt   time.Time
}

// NewSnapshot builds a snapshot from a private key and a name->secret map.
// The token map is copied; the caller may reuse it afterwards.
func NewSnapshot(privateKey *rsa.PrivateKey, tokens map[string]string) (*Snapshot, error) {
	if privateKey == nil {
		return nil, ErrNoKeyPair
	}

	copied := make(map[string][]byte, len(tokens))
	for name, secret := range tokens {
		copied[name] = []byte(secret)
	}

	return &Snapshot{
		privateKey: privateKey,
		tokens:     copied,
		loadedAt:   time.Now(),
	}, nil
}

// WithTokens returns a new snapshot sharing this key pair with a new token map.
func (s *Snapshot) WithTokens(tokens map[string]string) *Snapshot {
	next, _ := NewSnapshot(s.privateKey, tokens)
	return next
}

// KeyPair returns the protocol v1 key pair.
func (s *Snapshot) KeyPair() (*rsa.PublicKey, *rsa.PrivateKey) {
	return &s.privateKey.PublicKey, s.privateKey
}

// PrivateKey returns the protocol v1 private key.
func (s *Snapshot) PrivateKey() *rsa.PrivateKey {
	return s.privateKey
}

// BlockSize returns the size in bytes of a v1 ciphertext block.
func (s *Snapshot) BlockSize() int {
	return s.privateKey.Size()
}

// Token looks up the secret for a service name.
func (s *Snapshot) Token(serviceName string) ([]byte, bool) {
	secret, ok := s.tokens[serviceName]
	return secret, ok
}

// TokensByName returns a copy of the token map.
func (s *Snapshot) TokensByName() map[string][]byte {
	out := make(map[string][]byte, len(s.tokens))
	for name, secret := range s.tokens {
		out[name] = append([]byte(nil), secret...)
	}
	return out
}

// TokenNames returns the configured service names in sorted order.
func (s *Snapshot) TokenNames() []string {
	names := make([]string, 0, len(s.tokens))
	for name := range s.tokens {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// LoadedAt returns when the snapshot was built.
func (s *Snapshot) LoadedAt() time.Time {
	return s.loadedAt
}

// Store publishes the current snapshot to concurrent readers.
type Store struct {
	current atomic.Pointer[Snapshot]
}

// New creates a store serving the given snapshot.
func New(initial *Snapshot) (*Store, error) {
	if initial == nil {
		return nil, ErrNilSnapshot
	}
	s := &Store{}
	s.current.Store(initial)
	return s, nil
}

// Load returns the current snapshot.
func (s *Store) Load() *Snapshot {
	return s.current.Load()
}

// Replace atomically installs a new snapshot.
func (s *Store) Replace(next *Snapshot) error {
	if next == nil {
		return ErrNilSnapshot
	}
	s.current.Store(next)
	return nil
}

// ReplaceTokens installs a snapshot with the current key pair and new tokens.
func (s *Store) ReplaceTokens(tokens map[string]string) {
	for {
		cur := s.current.Load()
		if s.current.CompareAndSwap(cur, cur.WithTokens(tokens)) {
			return
		}
	}
}

// TokenCount returns the number of tokens in the current snapshot.
func (s *Store) TokenCount() int {
	return len(s.Load().tokens)
}

// KeyBits returns the RSA modulus size of the current snapshot.
func (s *Store) KeyBits() int {
	return s.Load().PrivateKey().N.BitLen()
}

// LoadedAt returns when the current snapshot was built.
func (s *Store) LoadedAt() time.Time {
	return s.Load().LoadedAt()
}
