// Package adaptive provides authenticated encryption with automatic
// algorithm selection, and passphrase sealing built on it.
//
// Supported algorithms:
//
//   - AES-256-GCM: preferred when hardware AES support is available
//   - ChaCha20-Poly1305: fallback for systems without AES instructions
//
// Sealing derives a key from a passphrase with Argon2id, narrows it to a
// purpose-specific subkey with HKDF and stores the KDF parameters and salt
// in a small header, so a sealed blob can be opened with the passphrase
// alone.
//
// Usage:
//
//	sealed, err := adaptive.Seal(der, passphrase, "rsa-private-key")
//	der, err := adaptive.Open(sealed, passphrase, "rsa-private-key")
package adaptive
