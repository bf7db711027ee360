package confloader

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

type testConfig struct {
	Server struct {
		Port        int           `koanf:"port"`
		ReadTimeout time.Duration `koanf:"read_timeout"`
		V2Ack       bool          `koanf:"v2_ack"`
	} `koanf:"server"`
	Debug bool `koanf:"debug"`
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}
	return path
}

func TestNewLoader(t *testing.T) {
	l := NewLoader()
	if l.envPrefix != DefaultEnvPrefix {
		t.Errorf("envPrefix = %q, want %q", l.envPrefix, DefaultEnvPrefix)
	}

	l = NewLoader(WithEnvPrefix("TEST_"), WithConfigFile("/path/to/config.yaml"))
	if l.envPrefix != "TEST_" {
		t.Errorf("envPrefix = %q, want %q", l.envPrefix, "TEST_")
	}
	if l.filePath != "/path/to/config.yaml" {
		t.Errorf("filePath = %q, want %q", l.filePath, "/path/to/config.yaml")
	}
}

func TestEnvKey(t *testing.T) {
	tests := []struct {
		env  string
		want string
	}{
		{"VOTIFIER_DEBUG", "debug"},
		{"VOTIFIER_LOG_LEVEL", "log.level"},
		{"VOTIFIER_SERVER_READ_TIMEOUT", "server.read_timeout"},
		{"VOTIFIER_SERVER_V2_ACK", "server.v2_ack"},
		{"VOTIFIER_TOKENS_DEFAULT", "tokens.default"},
	}
	for _, tt := range tests {
		t.Run(tt.env, func(t *testing.T) {
			if got := EnvKey(DefaultEnvPrefix, tt.env); got != tt.want {
				t.Errorf("EnvKey(%q) = %q, want %q", tt.env, got, tt.want)
			}
		})
	}
}

func TestLoader_LoadFile(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 8192
  v2_ack: true
`)

	l := NewLoader()
	if err := l.LoadFile(path); err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if got := l.GetString("server.port"); got != "8192" {
		t.Errorf("server.port = %q, want %q", got, "8192")
	}
	if !l.GetBool("server.v2_ack") {
		t.Error("server.v2_ack should be true")
	}
}

func TestLoader_LoadFile_Errors(t *testing.T) {
	l := NewLoader()
	if err := l.LoadFile("/nonexistent/config.yaml"); err == nil {
		t.Error("LoadFile() should return error for nonexistent file")
	}
	if err := l.LoadFile(""); err != nil {
		t.Errorf("LoadFile(\"\") should not error, got: %v", err)
	}
}

func TestLoader_Load_Priority(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9000
  read_timeout: 3s
`)
	t.Setenv("VOTIFIER_SERVER_PORT", "9100")

	var cfg testConfig
	cfg.Server.V2Ack = true // default kept when no source sets it

	l := NewLoader(WithConfigFile(path))
	if err := l.Load(&cfg); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9100 {
		t.Errorf("Port = %d, want 9100 (env should override file)", cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout != 3*time.Second {
		t.Errorf("ReadTimeout = %v, want 3s", cfg.Server.ReadTimeout)
	}
	if !cfg.Server.V2Ack {
		t.Error("V2Ack default was overwritten")
	}
	if !l.IsLoaded() {
		t.Error("IsLoaded() should be true after Load()")
	}
}

func TestLoader_LoadMap(t *testing.T) {
	l := NewLoader()
	if err := l.LoadMap(map[string]any{"debug": true}); err != nil {
		t.Fatalf("LoadMap() error = %v", err)
	}
	if !l.GetBool("debug") {
		t.Error("debug should be true")
	}
	if len(l.Keys()) != 1 {
		t.Errorf("Keys() = %v", l.Keys())
	}
}

func TestLoader_FlatStrings(t *testing.T) {
	path := writeConfig(t, `
tokens:
  default: abcdef
  top.example.org: 123456
`)

	l := NewLoader()
	if err := l.LoadFile(path); err != nil {
		t.Fatal(err)
	}

	tokens := l.FlatStrings("tokens")
	if len(tokens) != 2 {
		t.Fatalf("FlatStrings() = %v", tokens)
	}
	if tokens["default"] != "abcdef" {
		t.Errorf("default = %q", tokens["default"])
	}
	if tokens["top.example.org"] != "123456" {
		t.Errorf("top.example.org = %q", tokens["top.example.org"])
	}

	if got := l.FlatStrings("missing"); got != nil {
		t.Errorf("FlatStrings(missing) = %v, want nil", got)
	}
}
