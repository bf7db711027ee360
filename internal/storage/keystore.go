package storage

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/yndnr/votifier-go/internal/core/keystore"
	"github.com/yndnr/votifier-go/internal/storage/keyfile"
)

// Keys used by KeyStore.
var (
	keyPrivate = []byte("keystore/private")
	keyTokens  = []byte("keystore/tokens")
)

// KeyStore implements keystore.Persistence on a KV. The private key is
// stored in the same encoding as the key directory, sealed when a
// passphrase is set.
type KeyStore struct {
	kv         KV
	passphrase []byte
}

var _ keystore.Persistence = (*KeyStore)(nil)

// NewKeyStore returns a KeyStore backed by kv.
func NewKeyStore(kv KV, passphrase []byte) *KeyStore {
	return &KeyStore{kv: kv, passphrase: passphrase}
}

// LoadKeyPair loads the private key.
func (s *KeyStore) LoadKeyPair(ctx context.Context) (*rsa.PrivateKey, error) {
	data, err := s.kv.Get(ctx, keyPrivate)
	if errors.Is(err, ErrKeyNotFound) {
		return nil, keystore.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load private key: %w", err)
	}
	key, err := keyfile.DecodePrivateKey(data, s.passphrase)
	if err != nil {
		return nil, fmt.Errorf("decode private key: %w", err)
	}
	return key, nil
}

// SaveKeyPair stores the private key.
func (s *KeyStore) SaveKeyPair(ctx context.Context, key *rsa.PrivateKey) error {
	data, err := keyfile.EncodePrivateKey(key, s.passphrase)
	if err != nil {
		return err
	}
	if err := s.kv.Set(ctx, keyPrivate, data); err != nil {
		return fmt.Errorf("save private key: %w", err)
	}
	return nil
}

// LoadTokens loads the token map.
func (s *KeyStore) LoadTokens(ctx context.Context) (map[string]string, error) {
	data, err := s.kv.Get(ctx, keyTokens)
	if errors.Is(err, ErrKeyNotFound) {
		return nil, keystore.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load tokens: %w", err)
	}
	tokens := make(map[string]string)
	if err := json.Unmarshal(data, &tokens); err != nil {
		return nil, fmt.Errorf("decode tokens: %w", err)
	}
	return tokens, nil
}

// SaveTokens replaces the token map.
func (s *KeyStore) SaveTokens(ctx context.Context, tokens map[string]string) error {
	data, err := json.Marshal(tokens)
	if err != nil {
		return fmt.Errorf("encode tokens: %w", err)
	}
	if err := s.kv.Set(ctx, keyTokens, data); err != nil {
		return fmt.Errorf("save tokens: %w", err)
	}
	return nil
}
