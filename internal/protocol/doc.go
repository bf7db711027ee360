// Package protocol decides which wire protocol a vote connection speaks.
//
// Two incompatible protocols share the listener:
//
//   - v1: a single RSA ciphertext block, opaque binary of fixed length
//   - v2: a frame starting with the two-byte magic 0x733A
//
// Differentiate only looks at the leading bytes and never consumes them; the
// caller hands its whole buffer to the selected codec afterwards. A few
// well-known plaintext protocols that internet scanners speak (TLS, HTTP,
// SSH) are rejected outright instead of being fed to the RSA decoder.
package protocol
