// Package domain defines the core domain models for the vote receiver.
//
// Domain models are pure value objects without any IO dependencies.
// This package contains:
//
//   - Vote: a decoded vote notification
//   - ProtocolVersion: the wire protocol a connection negotiated
//   - Errors: the connection-terminating error kinds
package domain
