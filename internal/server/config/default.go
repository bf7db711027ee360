package config

import "time"

// Key backends.
const (
	BackendFile   = "file"
	BackendBadger = "badger"
)

// Default configuration values.
const (
	DefaultHost         = "0.0.0.0"
	DefaultPort         = 8192
	DefaultReadTimeout  = 5 * time.Second
	DefaultWriteTimeout = 5 * time.Second

	DefaultHTTPAddr = "127.0.0.1:8193"

	DefaultKeysDir = "/var/lib/votifier-server/keys"
	DefaultKeyBits = 2048

	DefaultDataDir    = "/var/lib/votifier-server/data"
	DefaultGCInterval = "10m"

	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"
)

// Default returns the default server configuration.
func Default() *ServerConfig {
	return &ServerConfig{
		Server: ServerSection{
			Host:         DefaultHost,
			Port:         DefaultPort,
			ReadTimeout:  DefaultReadTimeout,
			WriteTimeout: DefaultWriteTimeout,
			V2Ack:        true,
		},
		HTTP: HTTPConfig{
			Enabled: true,
			Addr:    DefaultHTTPAddr,
		},
		Keys: KeysSection{
			Backend: BackendFile,
			Dir:     DefaultKeysDir,
			Bits:    DefaultKeyBits,
		},
		Storage: StorageSection{
			DataDir:    DefaultDataDir,
			GCInterval: DefaultGCInterval,
		},
		Log: LogSection{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
	}
}
