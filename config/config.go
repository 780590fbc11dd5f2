package config

import (
	"fmt"
	"strings"
	"time"
)

var Version = "unknown"

const (
	ServeCommand        = "serve"
	HashPasswordCommand = "hash-password"
)

type Config struct {
	Config   string
	Command  string
	Password string
	Data     Data
}

type Data struct {
	Global  GlobalConfig
	Server  ServerConfig
	Tls     TlsConfig
	Stream  StreamConfig
	Catalog CatalogConfig
	Users   []UserConfig
}

type GlobalConfig struct {
	LogLevel      string
	LogFile       string
	LogMaxSize    int
	LogMaxBackups int
	LogMaxAge     int
	LogCompress   bool
}

type ServerConfig struct {
	Ip               string
	Port             int
	Transport        string
	IdleTimeout      string
	WriteTimeout     string
	HandshakeTimeout string
	MaxPayload       int
}

type TlsConfig struct {
	Enabled  bool
	CertFile string
	KeyFile  string
	Generate bool
}

type StreamConfig struct {
	ChunkSize  int
	ChunkDelay string
	PauseMode  string
	QueueLimit int
}

type CatalogConfig struct {
	Dir        string
	Extensions []string
}

// DefaultData holds the values used for every key the config file leaves out.
func DefaultData() Data {
	return Data{
		Global: GlobalConfig{
			LogLevel:      "info",
			LogMaxSize:    100,
			LogMaxBackups: 3,
			LogMaxAge:     28,
		},
		Server: ServerConfig{
			Ip:               "0.0.0.0",
			Port:             8080,
			Transport:        "websocket",
			IdleTimeout:      "5m",
			WriteTimeout:     "30s",
			HandshakeTimeout: "10s",
			MaxPayload:       16 << 20,
		},
		Tls: TlsConfig{
			CertFile: "server.crt",
			KeyFile:  "server.key",
			Generate: true,
		},
		Stream: StreamConfig{
			ChunkSize:  32 << 10,
			ChunkDelay: "10ms",
			PauseMode:  "suspend",
			QueueLimit: 4,
		},
		Catalog: CatalogConfig{
			Dir: "music",
		},
	}
}

type UserConfig struct {
	Username     string
	PasswordHash string
}

// ParseDuration reads an optional duration field; an empty value means zero.
func ParseDuration(field, value string) (time.Duration, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("config %s: %w", field, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("config %s: negative duration %s", field, value)
	}
	return d, nil
}
