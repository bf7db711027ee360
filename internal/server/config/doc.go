// Package config provides the votifier-server configuration.
//
//   - spec.go: ServerConfig struct definition
//   - default.go: Default configuration values
//   - verify.go: Validation (ranges, backends, paths)
//   - sanitize.go: Log sanitization (hide passphrase and tokens)
//   - load.go: Loading through internal/infra/confloader
//
// Sources in priority order: environment (VOTIFIER_*), config file, defaults.
package config
