// Package keyfile persists key material in a directory using the layout
// NuVotifier deployments already have on disk:
//
//	<dir>/rsa/public.key    base64 X.509 SubjectPublicKeyInfo DER
//	<dir>/rsa/private.key   base64 PKCS#8 DER, optionally passphrase sealed
//	<dir>/tokens.yml        tokens: {serviceName: secret}
package keyfile

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/yndnr/votifier-go/pkg/crypto/adaptive"
)

// Purpose binds sealed private keys to this use.
const Purpose = "votifier rsa private key"

// Codec errors.
var (
	ErrSealed     = errors.New("keyfile: private key is sealed, passphrase required")
	ErrNotRSA     = errors.New("keyfile: key is not RSA")
	ErrBadEncoded = errors.New("keyfile: invalid base64 key data")
)

// EncodePrivateKey marshals key as PKCS#8 DER and seals it when a
// passphrase is given.
func EncodePrivateKey(key *rsa.PrivateKey, passphrase []byte) ([]byte, error) {
	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("keyfile: marshal private key: %w", err)
	}
	if len(passphrase) == 0 {
		return der, nil
	}
	return adaptive.Seal(der, passphrase, Purpose)
}

// DecodePrivateKey reverses EncodePrivateKey.
func DecodePrivateKey(data, passphrase []byte) (*rsa.PrivateKey, error) {
	if adaptive.IsSealed(data) {
		if len(passphrase) == 0 {
			return nil, ErrSealed
		}
		der, err := adaptive.Open(data, passphrase, Purpose)
		if err != nil {
			return nil, fmt.Errorf("keyfile: %w", err)
		}
		data = der
	}

	parsed, err := x509.ParsePKCS8PrivateKey(data)
	if err != nil {
		return nil, fmt.Errorf("keyfile: parse private key: %w", err)
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, ErrNotRSA
	}
	return key, nil
}

// EncodePublicKey marshals pub as X.509 SubjectPublicKeyInfo DER.
func EncodePublicKey(pub *rsa.PublicKey) ([]byte, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return nil, fmt.Errorf("keyfile: marshal public key: %w", err)
	}
	return der, nil
}

// DecodePublicKey parses X.509 SubjectPublicKeyInfo DER.
func DecodePublicKey(der []byte) (*rsa.PublicKey, error) {
	parsed, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return nil, fmt.Errorf("keyfile: parse public key: %w", err)
	}
	pub, ok := parsed.(*rsa.PublicKey)
	if !ok {
		return nil, ErrNotRSA
	}
	return pub, nil
}

// ParsePublicKeyText decodes the base64 text stored in public.key, as
// pasted into a vote site's settings.
func ParsePublicKeyText(text string) (*rsa.PublicKey, error) {
	der, err := decodeText([]byte(text))
	if err != nil {
		return nil, err
	}
	return DecodePublicKey(der)
}

func encodeText(der []byte) []byte {
	return []byte(base64.StdEncoding.EncodeToString(der))
}

func decodeText(data []byte) ([]byte, error) {
	cleaned := strings.Join(strings.Fields(string(data)), "")
	der, err := base64.StdEncoding.DecodeString(cleaned)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadEncoded, err)
	}
	return der, nil
}
