package config

import "github.com/yndnr/votifier-go/internal/telemetry/logger"

// Sanitize returns a copy of the config with sensitive fields masked.
//
// This is used for logging configuration without exposing secrets.
func Sanitize(cfg *ServerConfig) *ServerConfig {
	sanitized := *cfg

	if sanitized.Keys.Passphrase != "" {
		sanitized.Keys.Passphrase = logger.MaskValue(sanitized.Keys.Passphrase)
	}
	if cfg.Tokens != nil {
		sanitized.Tokens = make(map[string]string, len(cfg.Tokens))
		for name, secret := range cfg.Tokens {
			sanitized.Tokens[name] = logger.MaskValue(secret)
		}
	}

	return &sanitized
}
