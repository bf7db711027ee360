package token

import (
	"crypto/rand"
	"encoding/base32"
	"strings"
)

// DefaultLength is the default token length in bytes.
const DefaultLength = 16

var encoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// NewServiceToken generates a token suitable for a v2 service entry.
func NewServiceToken() (string, error) {
	return GenerateWithLength(DefaultLength)
}

// NewChallenge generates the per-connection challenge sent in the greeting.
func NewChallenge() (string, error) {
	return GenerateWithLength(DefaultLength)
}

// GenerateWithLength generates a token from length random bytes.
func GenerateWithLength(length int) (string, error) {
	bytes, err := GenerateBytes(length)
	if err != nil {
		return "", err
	}
	return strings.ToLower(encoding.EncodeToString(bytes)), nil
}

// GenerateBytes generates random bytes.
func GenerateBytes(length int) ([]byte, error) {
	bytes := make([]byte, length)
	if _, err := rand.Read(bytes); err != nil {
		return nil, err
	}
	return bytes, nil
}
