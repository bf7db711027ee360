// Package logger provides structured logging for the vote receiver.
//
//   - logger.go: slog handler construction and dynamic level
//   - context.go: per-connection logger propagation
//   - redact.go: sensitive data redaction
//
// Features:
//
//   - JSON and text output formats
//   - Log level filtering, adjustable at runtime on config reload
//   - Automatic masking of tokens, secrets, passphrases and challenges
package logger
