package config

import (
	"github.com/alecthomas/kingpin/v2"
	"github.com/gookit/config/v2"
	"github.com/gookit/config/v2/yaml"
	"strings"
)

var defaultConfig = &Config{
	Config: "config.yaml",
}

func NewConfig() *Config {
	return &Config{}
}

func (cfg *Config) ParseFlags(args []string) error {
	app := kingpin.New("bytebeats-server", "Streams a directory of audio files to authenticated clients")
	app.Version(Version)
	app.DefaultEnvars()

	app.Flag("config", "The config file (Default: ./config.yaml)").Default(defaultConfig.Config).StringVar(&cfg.Config)

	app.Command(ServeCommand, "Run the streaming server").Default()
	hash := app.Command(HashPasswordCommand, "Print the password digest to put in the users list")
	hash.Arg("password", "Plain text password").Required().StringVar(&cfg.Password)

	command, err := app.Parse(args)
	if err != nil {
		return err
	}
	cfg.Command = command

	if cfg.Command != ServeCommand {
		return nil
	}

	if err := cfg.parseConfig(); err != nil {
		return err
	}

	return nil
}

func (cfg *Config) parseConfig() error {
	c := config.New("bytebeats").WithDriver(yaml.Driver)
	if err := c.LoadFiles(cfg.Config); err != nil {
		return err
	}

	data := DefaultData()
	if err := c.Decode(&data); err != nil {
		return err
	}

	data.Global.LogLevel = strings.ToLower(data.Global.LogLevel)
	data.Server.Transport = strings.ToLower(data.Server.Transport)
	data.Stream.PauseMode = strings.ToLower(data.Stream.PauseMode)

	cfg.Data = data

	return nil
}
