package adaptive

import (
	"bytes"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/hkdf"
)

// Sealing errors.
var (
	ErrPassphraseTooShort = errors.New("adaptive: passphrase too short (minimum 8 characters)")
	ErrNotSealed          = errors.New("adaptive: data is not sealed")
	ErrOpenFailed         = errors.New("adaptive: open failed, wrong passphrase or corrupted data")
)

const (
	// MinPassphraseLength is the minimum passphrase length.
	MinPassphraseLength = 8

	saltLength = 16
	keyLength  = 32
)

// sealMagic starts every sealed blob.
var sealMagic = []byte("VTS1")

// header: magic(4) | cipher(1) | time(1) | memory KiB(4) | threads(1) | salt(16)
const headerLength = 4 + 1 + 1 + 4 + 1 + saltLength

// KDFParams are the Argon2id cost parameters.
type KDFParams struct {
	Time    uint8
	Memory  uint32 // KiB
	Threads uint8
}

// DefaultKDFParams returns the parameters used by Seal.
func DefaultKDFParams() KDFParams {
	return KDFParams{Time: 3, Memory: 64 * 1024, Threads: 4}
}

var cipherIDs = map[CipherType]byte{
	CipherAESGCM:   1,
	CipherChaCha20: 2,
}

// IsSealed reports whether data carries the sealed header.
func IsSealed(data []byte) bool {
	return len(data) >= headerLength && bytes.Equal(data[:len(sealMagic)], sealMagic)
}

// Seal encrypts plaintext under a key derived from passphrase. purpose is
// bound into the key derivation and the AEAD additional data.
func Seal(plaintext, passphrase []byte, purpose string) ([]byte, error) {
	return SealWithParams(plaintext, passphrase, purpose, DefaultKDFParams())
}

// SealWithParams is Seal with explicit KDF parameters.
func SealWithParams(plaintext, passphrase []byte, purpose string, params KDFParams) ([]byte, error) {
	if len(passphrase) < MinPassphraseLength {
		return nil, ErrPassphraseTooShort
	}

	salt := make([]byte, saltLength)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("adaptive: generate salt: %w", err)
	}

	typ := Preferred()
	header := make([]byte, headerLength)
	copy(header, sealMagic)
	header[4] = cipherIDs[typ]
	header[5] = params.Time
	binary.BigEndian.PutUint32(header[6:10], params.Memory)
	header[10] = params.Threads
	copy(header[11:], salt)

	c, err := sealCipher(passphrase, purpose, typ, salt, params)
	if err != nil {
		return nil, err
	}

	ciphertext, err := c.Encrypt(plaintext, append(header, purpose...))
	if err != nil {
		return nil, fmt.Errorf("adaptive: seal: %w", err)
	}
	return append(header, ciphertext...), nil
}

// Open reverses Seal.
func Open(sealed, passphrase []byte, purpose string) ([]byte, error) {
	if !IsSealed(sealed) {
		return nil, ErrNotSealed
	}

	header := sealed[:headerLength]
	var typ CipherType
	for t, id := range cipherIDs {
		if id == header[4] {
			typ = t
		}
	}
	if typ == "" {
		return nil, fmt.Errorf("adaptive: unknown cipher id %d", header[4])
	}

	params := KDFParams{
		Time:    header[5],
		Memory:  binary.BigEndian.Uint32(header[6:10]),
		Threads: header[10],
	}
	salt := header[11:headerLength]

	c, err := sealCipher(passphrase, purpose, typ, salt, params)
	if err != nil {
		return nil, err
	}

	aad := append(append([]byte{}, header...), purpose...)
	plaintext, err := c.Decrypt(sealed[headerLength:], aad)
	if err != nil {
		return nil, ErrOpenFailed
	}
	return plaintext, nil
}

func sealCipher(passphrase []byte, purpose string, typ CipherType, salt []byte, params KDFParams) (Cipher, error) {
	if params.Time == 0 || params.Threads == 0 || params.Memory == 0 {
		return nil, fmt.Errorf("adaptive: invalid kdf parameters %+v", params)
	}

	master := argon2.IDKey(passphrase, salt, uint32(params.Time), params.Memory, params.Threads, keyLength)
	defer zero(master)

	key := make([]byte, keyLength)
	if _, err := io.ReadFull(hkdf.New(sha256.New, master, salt, []byte(purpose)), key); err != nil {
		return nil, fmt.Errorf("adaptive: derive subkey: %w", err)
	}
	defer zero(key)

	return NewWithType(key, typ)
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
