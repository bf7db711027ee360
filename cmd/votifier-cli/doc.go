// Package main provides the entry point for votifier-cli.
//
// The CLI tool sends test votes to a receiver and inspects it:
//
//   - Sending v1 and v2 test votes
//   - Generating key pairs and service tokens in a key directory
//   - Reading health, metrics and the vote journal from the admin endpoint
//   - Managing the CLI profile
//
// Usage:
//
//	votifier-cli [global flags] command [flags]
//	votifier-cli vote send -u alex -t SECRET
//	votifier-cli -s 127.0.0.1:8193 votes list -o json
package main
