// Package config holds the votifier-cli profile (~/.votifier/cli.yaml).
//
// The profile supplies defaults for the admin endpoint, the vote listener
// and the token used to sign test votes. VOTIFIER_CLI_* environment
// variables override the file, and command-line flags override both.
package config
