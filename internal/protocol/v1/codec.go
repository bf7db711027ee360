// Package v1 implements the legacy vote record: newline-delimited text
// encrypted to the receiver's RSA public key with PKCS#1 v1.5 padding.
//
// Plaintext layout:
//
//	VOTE\n<serviceName>\n<username>\n<address>\n<timestamp>\n
//
// The ciphertext block is exactly as long as the key modulus (256 bytes for
// a 2048-bit key). Anyone holding the public key can send votes; only the
// holder of the private key can read them.
package v1

import (
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/yndnr/votifier-go/internal/core/domain"
)

// Tag is the literal first line of every v1 plaintext.
const Tag = "VOTE"

// pkcs1Overhead is the minimum padding PKCS#1 v1.5 adds to a message.
const pkcs1Overhead = 11

// Encoding errors.
var (
	ErrFieldContainsNewline = errors.New("v1: field contains a newline")
	ErrRecordTooLarge       = errors.New("v1: record does not fit into one rsa block")
)

// Decode decrypts one ciphertext block and parses the vote it carries.
//
// A block of the wrong length is rejected as a malformed frame without
// attempting decryption. Decryption failures are authentication failures;
// structural problems in the decrypted plaintext are malformed frames.
func Decode(block []byte, key *rsa.PrivateKey) (domain.Vote, error) {
	if len(block) != key.Size() {
		return domain.Vote{}, domain.ErrMalformedFrame.WithDetails(
			fmt.Sprintf("v1 block is %d bytes, want %d", len(block), key.Size()))
	}

	plaintext, err := rsa.DecryptPKCS1v15(nil, key, block)
	if err != nil {
		return domain.Vote{}, domain.ErrAuthenticationFailed.WithCause(err)
	}

	return ParsePlaintext(plaintext)
}

// ParsePlaintext parses a decrypted v1 record.
func ParsePlaintext(plaintext []byte) (domain.Vote, error) {
	if !utf8.Valid(plaintext) {
		return domain.Vote{}, domain.ErrMalformedFrame.WithDetails("v1 record is not valid utf-8")
	}

	fields := strings.Split(strings.TrimSuffix(string(plaintext), "\n"), "\n")
	if fields[0] != Tag {
		return domain.Vote{}, domain.ErrMalformedFrame.WithDetails("v1 record has wrong tag")
	}
	if len(fields) != 5 {
		return domain.Vote{}, domain.ErrMalformedFrame.WithDetails(
			fmt.Sprintf("v1 record has %d fields, want 5", len(fields)))
	}

	vote := domain.Vote{
		ServiceName: fields[1],
		Username:    fields[2],
		Address:     fields[3],
		Timestamp:   fields[4],
	}
	if vote.ServiceName == "" || vote.Username == "" {
		return domain.Vote{}, domain.ErrMalformedFrame.WithDetails("v1 record is missing service name or username")
	}

	return vote, nil
}

// FormatPlaintext renders a vote in the v1 text layout.
func FormatPlaintext(vote domain.Vote) ([]byte, error) {
	fields := []string{Tag, vote.ServiceName, vote.Username, vote.Address, vote.Timestamp}
	for _, f := range fields {
		if strings.ContainsRune(f, '\n') {
			return nil, ErrFieldContainsNewline
		}
	}
	return []byte(strings.Join(fields, "\n") + "\n"), nil
}

// Encode encrypts a vote to the receiver's public key.
func Encode(vote domain.Vote, key *rsa.PublicKey) ([]byte, error) {
	plaintext, err := FormatPlaintext(vote)
	if err != nil {
		return nil, err
	}
	if len(plaintext) > key.Size()-pkcs1Overhead {
		return nil, ErrRecordTooLarge
	}
	return rsa.EncryptPKCS1v15(rand.Reader, key, plaintext)
}
