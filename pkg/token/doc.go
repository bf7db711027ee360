// Package token provides generation and fingerprinting of shared secrets.
//
// Service tokens and connection challenges share one format:
//
//   - 16 random bytes from crypto/rand
//   - lowercase unpadded base32 (26 characters)
//
// Fingerprints are the first 8 bytes of the SHA-256 digest, hex encoded.
// They identify a token in logs without revealing it.
package token
