package keystore

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"fmt"
)

// DefaultKeyBits is the modulus size used when a fresh key pair is generated.
const DefaultKeyBits = 2048

// DefaultTokenName is the service name of the token created on first run.
const DefaultTokenName = "default"

// ErrNotFound is returned by a Persistence when nothing has been saved yet.
var ErrNotFound = errors.New("keystore: not found")

// Persistence loads and saves key material. Implementations live in the
// storage layer (key directory, badger).
type Persistence interface {
	LoadKeyPair(ctx context.Context) (*rsa.PrivateKey, error)
	SaveKeyPair(ctx context.Context, key *rsa.PrivateKey) error
	LoadTokens(ctx context.Context) (map[string]string, error)
	SaveTokens(ctx context.Context, tokens map[string]string) error
}

// TokenGenerator produces a new random service token.
type TokenGenerator func() (string, error)

// LoadOrCreateKeyPair loads the persisted key pair, or generates and saves a
// fresh one of the given size when none exists. created reports whether a
// new pair was generated.
func LoadOrCreateKeyPair(ctx context.Context, p Persistence, bits int) (pub *rsa.PublicKey, priv *rsa.PrivateKey, created bool, err error) {
	priv, err = p.LoadKeyPair(ctx)
	if err == nil {
		return &priv.PublicKey, priv, false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, nil, false, fmt.Errorf("load key pair: %w", err)
	}

	if bits <= 0 {
		bits = DefaultKeyBits
	}
	priv, err = rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return nil, nil, false, fmt.Errorf("generate key pair: %w", err)
	}
	if err := p.SaveKeyPair(ctx, priv); err != nil {
		return nil, nil, false, fmt.Errorf("save key pair: %w", err)
	}
	return &priv.PublicKey, priv, true, nil
}

// ResolveTokens decides the token map a snapshot is built from. Tokens from
// configuration win; otherwise persisted tokens are used; otherwise a
// "default" token is generated and persisted. generated is the new token's
// name, or empty.
func ResolveTokens(ctx context.Context, p Persistence, configured map[string]string, gen TokenGenerator) (tokens map[string]string, generated string, err error) {
	if len(configured) > 0 {
		return configured, "", nil
	}

	persisted, err := p.LoadTokens(ctx)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, "", fmt.Errorf("load tokens: %w", err)
	}
	if len(persisted) > 0 {
		return persisted, "", nil
	}

	secret, err := gen()
	if err != nil {
		return nil, "", fmt.Errorf("generate token: %w", err)
	}
	tokens = map[string]string{DefaultTokenName: secret}
	if err := p.SaveTokens(ctx, tokens); err != nil {
		return nil, "", fmt.Errorf("save tokens: %w", err)
	}
	return tokens, DefaultTokenName, nil
}
