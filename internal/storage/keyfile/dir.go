package keyfile

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/yndnr/votifier-go/internal/core/keystore"
)

// File names inside the key directory.
const (
	RSADir         = "rsa"
	PublicKeyFile  = "public.key"
	PrivateKeyFile = "private.key"
	TokensFile     = "tokens.yml"
)

// tokensKey is the top-level key of the tokens file. Token names may
// contain dots, so koanf is created with a delimiter they cannot contain.
const (
	tokensKey   = "tokens"
	tokensDelim = "\x1f"
)

// Dir implements keystore.Persistence on a directory.
type Dir struct {
	path       string
	passphrase []byte
}

var _ keystore.Persistence = (*Dir)(nil)

// NewDir returns a Dir rooted at path. A non-empty passphrase seals the
// private key on save and is required to load a sealed key.
func NewDir(path string, passphrase []byte) *Dir {
	return &Dir{path: path, passphrase: passphrase}
}

// Path returns the directory root.
func (d *Dir) Path() string { return d.path }

// PublicKeyPath returns the location of public.key.
func (d *Dir) PublicKeyPath() string {
	return filepath.Join(d.path, RSADir, PublicKeyFile)
}

// PrivateKeyPath returns the location of private.key.
func (d *Dir) PrivateKeyPath() string {
	return filepath.Join(d.path, RSADir, PrivateKeyFile)
}

// TokensPath returns the location of tokens.yml.
func (d *Dir) TokensPath() string {
	return filepath.Join(d.path, TokensFile)
}

// LoadKeyPair implements keystore.Persistence.
func (d *Dir) LoadKeyPair(_ context.Context) (*rsa.PrivateKey, error) {
	data, err := os.ReadFile(d.PrivateKeyPath())
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, keystore.ErrNotFound
		}
		return nil, fmt.Errorf("keyfile: read private key: %w", err)
	}

	der, err := decodeText(data)
	if err != nil {
		return nil, err
	}
	return DecodePrivateKey(der, d.passphrase)
}

// SaveKeyPair implements keystore.Persistence. Both key files are written.
func (d *Dir) SaveKeyPair(_ context.Context, key *rsa.PrivateKey) error {
	privDER, err := EncodePrivateKey(key, d.passphrase)
	if err != nil {
		return err
	}
	pubDER, err := EncodePublicKey(&key.PublicKey)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Join(d.path, RSADir), 0o700); err != nil {
		return fmt.Errorf("keyfile: create key dir: %w", err)
	}
	if err := writeAtomic(d.PrivateKeyPath(), encodeText(privDER), 0o600); err != nil {
		return err
	}
	return writeAtomic(d.PublicKeyPath(), encodeText(pubDER), 0o644)
}

// LoadPublicKey reads public.key.
func (d *Dir) LoadPublicKey() (*rsa.PublicKey, error) {
	data, err := os.ReadFile(d.PublicKeyPath())
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, keystore.ErrNotFound
		}
		return nil, fmt.Errorf("keyfile: read public key: %w", err)
	}
	return ParsePublicKeyText(string(data))
}

// LoadTokens implements keystore.Persistence.
func (d *Dir) LoadTokens(_ context.Context) (map[string]string, error) {
	path := d.TokensPath()
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, keystore.ErrNotFound
		}
		return nil, fmt.Errorf("keyfile: stat tokens: %w", err)
	}

	k := koanf.New(tokensDelim)
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("keyfile: load tokens: %w", err)
	}
	tokens := make(map[string]string)
	if err := k.Unmarshal(tokensKey, &tokens); err != nil {
		return nil, fmt.Errorf("keyfile: decode tokens: %w", err)
	}
	return tokens, nil
}

// SaveTokens implements keystore.Persistence.
func (d *Dir) SaveTokens(_ context.Context, tokens map[string]string) error {
	names := make([]string, 0, len(tokens))
	for name := range tokens {
		names = append(names, name)
	}
	sort.Strings(names)

	inner := make(map[string]interface{}, len(tokens))
	for _, name := range names {
		inner[name] = tokens[name]
	}

	data, err := yaml.Parser().Marshal(map[string]interface{}{tokensKey: inner})
	if err != nil {
		return fmt.Errorf("keyfile: marshal tokens: %w", err)
	}

	if err := os.MkdirAll(d.path, 0o700); err != nil {
		return fmt.Errorf("keyfile: create dir: %w", err)
	}
	return writeAtomic(d.TokensPath(), data, 0o600)
}

func writeAtomic(path string, data []byte, perm os.FileMode) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("keyfile: create temp: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("keyfile: write %s: %w", filepath.Base(path), err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("keyfile: sync %s: %w", filepath.Base(path), err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp.Name(), perm); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
