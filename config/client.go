package config

import (
	"strings"

	"github.com/alecthomas/kingpin/v2"
)

type ClientConfig struct {
	Global     GlobalConfig
	Host       string
	Port       int
	Path       string
	Transport  string
	Tls        bool
	Insecure   bool
	ServerName string
	Username   string
	Password   string
	BufferSize int
	Timeout    string
	Player     string
	PlayerArgs []string
	TempDir    string
}

func NewClientConfig() *ClientConfig {
	return &ClientConfig{}
}

func (cfg *ClientConfig) ParseFlags(args []string) error {
	app := kingpin.New("bytebeats-client", "Plays songs streamed by a bytebeats server")
	app.Version(Version)
	app.DefaultEnvars()

	app.Flag("host", "Server IP or hostname (prompted when empty)").StringVar(&cfg.Host)
	app.Flag("port", "Server port").Default("8080").IntVar(&cfg.Port)
	app.Flag("path", "Websocket request path").Default("/").StringVar(&cfg.Path)
	app.Flag("transport", "Wire framing: websocket or raw").Default("websocket").EnumVar(&cfg.Transport, "websocket", "raw")
	app.Flag("tls", "Connect over TLS").BoolVar(&cfg.Tls)
	app.Flag("insecure", "Skip server certificate verification").BoolVar(&cfg.Insecure)
	app.Flag("server-name", "Expected server name in the certificate (Default: host)").StringVar(&cfg.ServerName)
	app.Flag("user", "Username (prompted when empty)").StringVar(&cfg.Username)
	app.Flag("password", "Password (prompted when empty)").StringVar(&cfg.Password)
	app.Flag("buffer-size", "Bytes to buffer before playback starts").Default("1048576").IntVar(&cfg.BufferSize)
	app.Flag("timeout", "Dial and handshake timeout").Default("10s").StringVar(&cfg.Timeout)
	app.Flag("player", "Audio player command (Default: first of afplay, ffplay, mpg123 found)").StringVar(&cfg.Player)
	app.Flag("player-arg", "Extra argument passed to the player before the file, repeatable. Use --player-arg=-x for values starting with a dash").StringsVar(&cfg.PlayerArgs)
	app.Flag("temp-dir", "Directory for buffered songs (Default: system temp dir)").StringVar(&cfg.TempDir)
	app.Flag("log-level", "Log level").Default("warn").StringVar(&cfg.Global.LogLevel)
	app.Flag("log-file", "Also write logs to this rotated file").StringVar(&cfg.Global.LogFile)

	if _, err := app.Parse(args); err != nil {
		return err
	}

	cfg.Global.LogLevel = strings.ToLower(cfg.Global.LogLevel)
	if !strings.HasPrefix(cfg.Path, "/") {
		cfg.Path = "/" + cfg.Path
	}
	cfg.Global.LogMaxSize = 10
	cfg.Global.LogMaxBackups = 1

	return nil
}
