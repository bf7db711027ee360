package config

import (
	"net"
	"strconv"
	"time"
)

// ServerConfig is the root configuration for votifier-server.
type ServerConfig struct {
	Server  ServerSection  `koanf:"server"`
	HTTP    HTTPConfig     `koanf:"http"`
	Keys    KeysSection    `koanf:"keys"`
	Storage StorageSection `koanf:"storage"`
	Log     LogSection     `koanf:"log"`

	// Debug logs every received vote and includes causes in error reports.
	Debug bool `koanf:"debug"`

	// Tokens maps service names to shared v2 secrets. Service names may
	// contain dots, so the section is read flat by Load rather than through
	// struct decoding.
	Tokens map[string]string `koanf:"-"`
}

// ServerSection configures the vote listener.
type ServerSection struct {
	Host string `koanf:"host"`
	Port int    `koanf:"port"`

	// ReadTimeout bounds a whole connection, measured from accept.
	ReadTimeout  time.Duration `koanf:"read_timeout"`
	WriteTimeout time.Duration `koanf:"write_timeout"`

	// MaxConnections caps concurrent connections. 0 means unlimited.
	MaxConnections int `koanf:"max_connections"`

	// RateLimit is connections per second per remote IP. 0 disables it.
	RateLimit float64 `koanf:"rate_limit"`
	RateBurst int     `koanf:"rate_burst"`

	// V2Ack writes {"status":"ok"} after an accepted v2 vote.
	V2Ack bool `koanf:"v2_ack"`
}

// Address returns host:port.
func (s ServerSection) Address() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// HTTPConfig configures the /health and /metrics endpoint.
type HTTPConfig struct {
	Enabled bool   `koanf:"enabled"`
	Addr    string `koanf:"addr"`
	// TLSCertFile and TLSKeyFile enable HTTPS. Both files are watched and
	// reloaded on change.
	TLSCertFile string `koanf:"tls_cert_file"`
	TLSKeyFile  string `koanf:"tls_key_file"`
}

// KeysSection configures key material.
type KeysSection struct {
	// Backend is "file" (key directory) or "badger" (embedded store).
	Backend string `koanf:"backend"`
	// Dir is the key directory for the file backend.
	Dir string `koanf:"dir"`
	// Bits is the RSA modulus size for a freshly generated key pair.
	Bits int `koanf:"bits"`
	// Passphrase seals the persisted private key when set.
	Passphrase string `koanf:"passphrase"`
}

// StorageSection configures the embedded store.
type StorageSection struct {
	DataDir string `koanf:"data_dir"`
	// Journal records every delivered vote.
	Journal bool `koanf:"journal"`
	// JournalRetention prunes entries older than this. 0 keeps everything.
	JournalRetention time.Duration `koanf:"journal_retention"`
	GCInterval       string        `koanf:"gc_interval"`
}

// NeedsStore reports whether the embedded store must be opened.
func (s *ServerConfig) NeedsStore() bool {
	return s.Keys.Backend == BackendBadger || s.Storage.Journal
}

// LogSection configures logging.
type LogSection struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}
