package config

// CLIConfig is the votifier-cli profile.
type CLIConfig struct {
	HTTP   HTTPProfile `koanf:"http" yaml:"http" json:"http"`
	Vote   VoteProfile `koanf:"vote" yaml:"vote" json:"vote"`
	Output string      `koanf:"output" yaml:"output" json:"output"` // table, json, yaml
}

// HTTPProfile points at the receiver's admin endpoint.
type HTTPProfile struct {
	Server   string `koanf:"server" yaml:"server" json:"server"`
	CAFile   string `koanf:"ca_file" yaml:"ca_file,omitempty" json:"ca_file,omitempty"`
	Insecure bool   `koanf:"insecure" yaml:"insecure,omitempty" json:"insecure,omitempty"`
}

// VoteProfile holds defaults for `vote send`.
type VoteProfile struct {
	Addr      string `koanf:"addr" yaml:"addr" json:"addr"`
	Service   string `koanf:"service" yaml:"service" json:"service"`
	Token     string `koanf:"token" yaml:"token,omitempty" json:"token,omitempty"`
	PublicKey string `koanf:"public_key" yaml:"public_key,omitempty" json:"public_key,omitempty"`
}

// Default returns the default profile.
func Default() *CLIConfig {
	return &CLIConfig{
		HTTP: HTTPProfile{
			Server: "127.0.0.1:8193",
		},
		Vote: VoteProfile{
			Addr:    "127.0.0.1:8192",
			Service: "default",
		},
		Output: "table",
	}
}
