package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestParseFlagsDefaults(t *testing.T) {
	path := writeConfig(t, `
users:
  - username: user1
    passwordHash: 0b14d501a594442a01c6859541bcb3e8164d183d32937b851835442f69d5c94e
`)

	cfg := NewConfig()
	if err := cfg.ParseFlags([]string{"--config", path}); err != nil {
		t.Fatal(err)
	}

	if cfg.Command != ServeCommand {
		t.Errorf("command = %q", cfg.Command)
	}
	d := cfg.Data
	if d.Global.LogLevel != "info" || d.Server.Ip != "0.0.0.0" || d.Server.Port != 8080 || d.Server.Transport != "websocket" {
		t.Errorf("server defaults = %+v %+v", d.Global, d.Server)
	}
	if d.Stream.ChunkSize != 32768 || d.Stream.ChunkDelay != "10ms" || d.Stream.PauseMode != "suspend" || d.Stream.QueueLimit != 4 {
		t.Errorf("stream defaults = %+v", d.Stream)
	}
	if d.Catalog.Dir != "music" || d.Tls.Enabled || !d.Tls.Generate || d.Tls.CertFile != "server.crt" || d.Tls.KeyFile != "server.key" {
		t.Errorf("catalog %+v tls %+v", d.Catalog, d.Tls)
	}
	if d.Server.MaxPayload != 16<<20 || d.Server.IdleTimeout != "5m" || d.Server.HandshakeTimeout != "10s" {
		t.Errorf("server limits = %+v", d.Server)
	}
	if d.Global.LogMaxSize != 100 || d.Global.LogMaxBackups != 3 || d.Global.LogMaxAge != 28 {
		t.Errorf("log rotation defaults = %+v", d.Global)
	}
	if len(d.Users) != 1 || d.Users[0].Username != "user1" || len(d.Users[0].PasswordHash) != 64 {
		t.Errorf("users = %+v", d.Users)
	}
}

func TestParseFlagsOverrides(t *testing.T) {
	path := writeConfig(t, `
global:
  logLevel: DEBUG
server:
  port: 9090
  transport: RAW
stream:
  pauseMode: Ack
  chunkDelay: 0s
catalog:
  dir: /srv/music
  extensions: [.mp3, .ogg]
tls:
  enabled: true
`)

	cfg := NewConfig()
	if err := cfg.ParseFlags([]string{"--config", path, ServeCommand}); err != nil {
		t.Fatal(err)
	}

	d := cfg.Data
	if d.Global.LogLevel != "debug" || d.Server.Port != 9090 || d.Server.Transport != "raw" || d.Stream.PauseMode != "ack" {
		t.Errorf("got %+v %+v %+v", d.Global, d.Server, d.Stream)
	}
	if d.Catalog.Dir != "/srv/music" || len(d.Catalog.Extensions) != 2 || !d.Tls.Enabled {
		t.Errorf("catalog %+v tls %+v", d.Catalog, d.Tls)
	}
}

func TestParseFlagsPartialSections(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9000
tls:
  enabled: true
  generate: false
global:
  logFile: /tmp/bytebeats.log
`)

	cfg := NewConfig()
	if err := cfg.ParseFlags([]string{"--config", path}); err != nil {
		t.Fatal(err)
	}

	d := cfg.Data
	if d.Server.Port != 9000 || d.Server.Ip != "0.0.0.0" || d.Server.MaxPayload != 16<<20 || d.Server.WriteTimeout != "30s" {
		t.Errorf("server = %+v", d.Server)
	}
	if !d.Tls.Enabled || d.Tls.Generate || d.Tls.CertFile != "server.crt" {
		t.Errorf("tls = %+v", d.Tls)
	}
	if d.Global.LogFile != "/tmp/bytebeats.log" || d.Global.LogLevel != "info" || d.Global.LogMaxSize != 100 {
		t.Errorf("global = %+v", d.Global)
	}
}

func TestParseFlagsExampleFile(t *testing.T) {
	cfg := NewConfig()
	if err := cfg.ParseFlags([]string{"--config", filepath.Join("..", "config.example.yaml")}); err != nil {
		t.Fatal(err)
	}

	d := cfg.Data
	if d.Server.MaxPayload <= 0 || d.Server.Transport != "websocket" || d.Stream.PauseMode != "suspend" {
		t.Errorf("server %+v stream %+v", d.Server, d.Stream)
	}
	if d.Global.LogMaxSize <= 0 || d.Global.LogMaxBackups <= 0 || d.Global.LogMaxAge <= 0 {
		t.Errorf("global = %+v", d.Global)
	}
	if len(d.Users) != 2 || d.Catalog.Dir != "music" {
		t.Errorf("users %+v catalog %+v", d.Users, d.Catalog)
	}
}

func TestParseFlagsHashPassword(t *testing.T) {
	cfg := NewConfig()
	if err := cfg.ParseFlags([]string{"--config", "/does/not/exist.yaml", HashPasswordCommand, "password1"}); err != nil {
		t.Fatal(err)
	}
	if cfg.Command != HashPasswordCommand || cfg.Password != "password1" {
		t.Fatalf("got %q %q", cfg.Command, cfg.Password)
	}
}

func TestParseFlagsMissingFile(t *testing.T) {
	cfg := NewConfig()
	if err := cfg.ParseFlags([]string{"--config", filepath.Join(t.TempDir(), "missing.yaml")}); err == nil {
		t.Fatal("expected an error for a missing config file")
	}
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		value   string
		want    time.Duration
		wantErr bool
	}{
		{"", 0, false},
		{" 5m ", 5 * time.Minute, false},
		{"10ms", 10 * time.Millisecond, false},
		{"soon", 0, true},
		{"-1s", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseDuration("field", tt.value)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseDuration(%q) = %v, %v", tt.value, got, err)
		}
	}
}

func TestClientParseFlags(t *testing.T) {
	cfg := NewClientConfig()
	err := cfg.ParseFlags([]string{"--host", "127.0.0.1", "--transport", "raw", "--path", "stream", "--player-arg=-q", "--player-arg", "verbose"})
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Host != "127.0.0.1" || cfg.Port != 8080 || cfg.Transport != "raw" || cfg.Path != "/stream" {
		t.Errorf("got %+v", cfg)
	}
	if cfg.BufferSize != 1<<20 || cfg.Timeout != "10s" || cfg.Global.LogLevel != "warn" {
		t.Errorf("defaults %+v", cfg)
	}
	if len(cfg.PlayerArgs) != 2 || cfg.PlayerArgs[0] != "-q" || cfg.PlayerArgs[1] != "verbose" {
		t.Errorf("player args = %v", cfg.PlayerArgs)
	}

	if err := NewClientConfig().ParseFlags([]string{"--transport", "udp"}); err == nil {
		t.Error("expected an error for an unknown transport")
	}
}
