// Package main provides the entry point for votifier-server.
//
// votifier-server accepts vote notifications from server list sites over
// the Votifier v1 (RSA) and v2 (HMAC token) protocols and hands every
// accepted vote to the configured sinks:
//
//   - the log, always
//   - the vote journal in the embedded store, when storage.journal is set
//
// An optional admin endpoint serves /health, /ready, /metrics and /votes.
//
// Usage:
//
//	votifier-server [flags]
//	votifier-server -config /etc/votifier/config.yaml
//
// SIGHUP or an edit of the config file reloads service tokens and the log
// level without dropping connections. SIGINT and SIGTERM shut down
// gracefully.
package main
