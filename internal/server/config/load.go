package config

import (
	"fmt"

	"github.com/yndnr/votifier-go/internal/infra/confloader"
)

// TokensKey is the config section holding v2 service tokens.
const TokensKey = "tokens"

// Load reads the configuration from path (optional) and the environment on
// top of the defaults, then validates it.
func Load(path string) (*ServerConfig, error) {
	cfg := Default()

	var opts []confloader.Option
	if path != "" {
		opts = append(opts, confloader.WithConfigFile(path))
	}
	loader := confloader.NewLoader(opts...)

	if err := loader.Load(cfg); err != nil {
		return nil, err
	}
	cfg.Tokens = loader.FlatStrings(TokensKey)

	if err := Verify(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}
