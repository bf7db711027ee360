package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/yndnr/votifier-go/internal/telemetry/logger"
	"github.com/yndnr/votifier-go/pkg/crypto/adaptive"
)

// Verify validates the configuration.
func Verify(cfg *ServerConfig) error {
	if err := verifyServer(&cfg.Server); err != nil {
		return err
	}
	if err := verifyKeys(&cfg.Keys); err != nil {
		return err
	}
	if (cfg.HTTP.TLSCertFile == "") != (cfg.HTTP.TLSKeyFile == "") {
		return errors.New("http.tls_cert_file and http.tls_key_file must be set together")
	}
	if cfg.NeedsStore() {
		if err := verifyStorage(&cfg.Storage); err != nil {
			return err
		}
	}
	if err := verifyLog(&cfg.Log); err != nil {
		return err
	}
	for name, secret := range cfg.Tokens {
		if name == "" {
			return errors.New("tokens: service name must not be empty")
		}
		if secret == "" {
			return fmt.Errorf("tokens.%s: secret must not be empty", name)
		}
	}
	return nil
}

func verifyServer(cfg *ServerSection) error {
	if cfg.Port < 1 || cfg.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", cfg.Port)
	}
	if cfg.ReadTimeout <= 0 {
		return errors.New("server.read_timeout must be positive")
	}
	if cfg.WriteTimeout <= 0 {
		return errors.New("server.write_timeout must be positive")
	}
	if cfg.MaxConnections < 0 {
		return errors.New("server.max_connections must not be negative")
	}
	if cfg.RateLimit < 0 {
		return errors.New("server.rate_limit must not be negative")
	}
	if cfg.RateBurst < 0 {
		return errors.New("server.rate_burst must not be negative")
	}
	return nil
}

func verifyKeys(cfg *KeysSection) error {
	switch cfg.Backend {
	case BackendFile:
		if cfg.Dir == "" {
			return errors.New("keys.dir is required for the file backend")
		}
	case BackendBadger:
	default:
		return fmt.Errorf("keys.backend %q: must be %q or %q", cfg.Backend, BackendFile, BackendBadger)
	}
	if cfg.Bits < 1024 || cfg.Bits%8 != 0 {
		return fmt.Errorf("keys.bits %d: must be a multiple of 8 and at least 1024", cfg.Bits)
	}
	if cfg.Passphrase != "" && len(cfg.Passphrase) < adaptive.MinPassphraseLength {
		return fmt.Errorf("keys.passphrase must be at least %d characters", adaptive.MinPassphraseLength)
	}
	return nil
}

func verifyStorage(cfg *StorageSection) error {
	if cfg.DataDir == "" {
		return errors.New("storage.data_dir is required")
	}
	if err := os.MkdirAll(cfg.DataDir, 0750); err != nil {
		return errors.New("cannot create data directory: " + err.Error())
	}
	if cfg.JournalRetention < 0 {
		return errors.New("storage.journal_retention must not be negative")
	}
	if cfg.GCInterval != "" {
		if d, err := time.ParseDuration(cfg.GCInterval); err != nil || d <= 0 {
			return fmt.Errorf("storage.gc_interval %q: must be a positive duration", cfg.GCInterval)
		}
	}
	return nil
}

func verifyLog(cfg *LogSection) error {
	if _, err := logger.ParseLevel(cfg.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	switch cfg.Format {
	case "json", "text":
		return nil
	default:
		return fmt.Errorf("log.format %q: must be json or text", cfg.Format)
	}
}
