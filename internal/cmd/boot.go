package cmd

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/natefinch/lumberjack"
	"github.com/sirupsen/logrus"

	"github.com/poyaz/bytebeats/config"
	tcpDeliveryStream "github.com/poyaz/bytebeats/internal/app/stream/delivery/tcp"
	adapterUsecaseStream "github.com/poyaz/bytebeats/internal/app/stream/usecase/adapter"
	sessionUsecaseStream "github.com/poyaz/bytebeats/internal/app/stream/usecase/session"
	"github.com/poyaz/bytebeats/internal/domain"
	infraCatalog "github.com/poyaz/bytebeats/internal/infra/catalog"
	infraCredential "github.com/poyaz/bytebeats/internal/infra/credential"
	infraRaw "github.com/poyaz/bytebeats/internal/infra/raw"
	infraTls "github.com/poyaz/bytebeats/internal/infra/tlsconf"
	infraWs "github.com/poyaz/bytebeats/internal/infra/ws"
)

var catalogInfraStreamImp adapterUsecaseStream.CatalogAdapter
var credentialInfraStreamImp adapterUsecaseStream.CredentialAdapter
var transportInfraStreamImp domain.TransportUpgrader
var sessionUsecaseStreamImp domain.SessionUsecase
var logger *logrus.Logger

var shutdownHandlers []ShutdownBootstrap

func RunServer(cfg *config.Config) error {
	if cfg.Command == config.HashPasswordCommand {
		_, err := fmt.Fprintln(os.Stdout, infraCredential.HashPassword(cfg.Password))
		return err
	}

	var err error
	gracefulShutdown := make(chan os.Signal, 1)
	signal.Notify(gracefulShutdown, syscall.SIGINT, syscall.SIGTERM)

	logger = newLogger(cfg.Data.Global)

	if err := runInfra(cfg); err != nil {
		return err
	}

	if err := runSessionUsecase(cfg); err != nil {
		return err
	}

	if err = runDelivery(cfg); err != nil {
		return err
	}

	<-gracefulShutdown
	_, _ = os.Stdout.Write([]byte{'\n'})

	for _, sh := range shutdownHandlers {
		if err := sh.Shutdown(); err != nil {
			logger.Error(err)
		}
	}

	return nil
}

func newLogger(global config.GlobalConfig) *logrus.Logger {
	l := logrus.New()
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	switch global.LogLevel {
	case "panic":
		l.SetLevel(logrus.PanicLevel)
	case "fatal":
		l.SetLevel(logrus.FatalLevel)
	case "error", "err":
		l.SetLevel(logrus.ErrorLevel)
	case "warning", "warn":
		l.SetLevel(logrus.WarnLevel)
	case "info":
		l.SetLevel(logrus.InfoLevel)
	case "debugging", "debug":
		l.SetLevel(logrus.DebugLevel)
	case "tracing", "trace":
		l.SetLevel(logrus.TraceLevel)
	}

	if global.LogFile != "" {
		l.SetOutput(io.MultiWriter(l.Out, &lumberjack.Logger{
			Filename:   global.LogFile,
			MaxSize:    global.LogMaxSize,
			MaxBackups: global.LogMaxBackups,
			MaxAge:     global.LogMaxAge,
			Compress:   global.LogCompress,
		}))
	}

	return l
}

func runInfra(cfg *config.Config) (err error) {
	catalogInfraStreamImp, err = infraCatalog.NewCatalog(logger, infraCatalog.Config{
		Dir:        cfg.Data.Catalog.Dir,
		Extensions: cfg.Data.Catalog.Extensions,
	})
	if err != nil {
		return err
	}

	users := make(map[string]string, len(cfg.Data.Users))
	for _, user := range cfg.Data.Users {
		if user.Username == "" || user.PasswordHash == "" {
			return fmt.Errorf("config users: username and passwordHash are required")
		}
		users[user.Username] = user.PasswordHash
	}
	store := infraCredential.NewStore(users)
	if store.Len() == 0 {
		logger.Warn("No users configured, every login will fail")
	}
	credentialInfraStreamImp = store

	handshakeTimeout, err := config.ParseDuration("server.handshakeTimeout", cfg.Data.Server.HandshakeTimeout)
	if err != nil {
		return err
	}
	if cfg.Data.Server.MaxPayload <= 0 {
		return fmt.Errorf("config server.maxPayload must be positive")
	}

	transport, err := transportType(cfg.Data.Server.Transport)
	if err != nil {
		return fmt.Errorf("config server.transport: %w", err)
	}

	switch transport {
	case domain.WebsocketTransport:
		transportInfraStreamImp, err = infraWs.NewWsInfra(infraWs.Config{
			MaxPayload:       uint64(cfg.Data.Server.MaxPayload),
			HandshakeTimeout: handshakeTimeout,
		})
	case domain.RawTransport:
		transportInfraStreamImp, err = infraRaw.NewRawInfra(infraRaw.Config{
			MaxPayload: uint32(min(cfg.Data.Server.MaxPayload, int(^uint32(0)>>1))),
		})
	}
	if err != nil {
		return err
	}

	logger.WithField("transport", transport).Debug("Transport selected")

	return err
}

func transportType(name string) (domain.TransportType, error) {
	switch name {
	case "websocket", "ws", "":
		return domain.WebsocketTransport, nil
	case "raw", "tcp":
		return domain.RawTransport, nil
	}
	return 0, fmt.Errorf("unknown transport %q", name)
}

func runSessionUsecase(cfg *config.Config) (err error) {
	sessionConfig := sessionUsecaseStream.Config{
		ChunkSize:  cfg.Data.Stream.ChunkSize,
		QueueLimit: cfg.Data.Stream.QueueLimit,
	}

	if sessionConfig.ChunkDelay, err = config.ParseDuration("stream.chunkDelay", cfg.Data.Stream.ChunkDelay); err != nil {
		return err
	}
	if sessionConfig.IdleTimeout, err = config.ParseDuration("server.idleTimeout", cfg.Data.Server.IdleTimeout); err != nil {
		return err
	}
	if sessionConfig.WriteTimeout, err = config.ParseDuration("server.writeTimeout", cfg.Data.Server.WriteTimeout); err != nil {
		return err
	}

	switch cfg.Data.Stream.PauseMode {
	case "suspend", "":
		sessionConfig.PauseMode = domain.PauseSuspend
	case "ack":
		sessionConfig.PauseMode = domain.PauseAck
	default:
		return fmt.Errorf("config stream.pauseMode: unknown mode %q", cfg.Data.Stream.PauseMode)
	}

	sessionUsecaseStreamImp, err = sessionUsecaseStream.NewSession(catalogInfraStreamImp, credentialInfraStreamImp, sessionConfig)
	if err != nil {
		return err
	}

	return nil
}

func runDelivery(cfg *config.Config) error {
	tcpConfig := tcpDeliveryStream.Config{
		ListenIP:   cfg.Data.Server.Ip,
		ListenPort: cfg.Data.Server.Port,
	}

	if cfg.Data.Tls.Enabled {
		tlsConfig, err := infraTls.LoadServerConfig(logger, infraTls.Config{
			CertFile: cfg.Data.Tls.CertFile,
			KeyFile:  cfg.Data.Tls.KeyFile,
			Generate: cfg.Data.Tls.Generate,
		})
		if err != nil {
			return err
		}
		tcpConfig.TLS = tlsConfig
	}

	tcpDelivery, err := tcpDeliveryStream.NewHandler(sessionUsecaseStreamImp, transportInfraStreamImp, logger, tcpConfig)
	if err != nil {
		return err
	}
	shutdownHandlers = append(shutdownHandlers, tcpDelivery)

	go func(handler RunBootstrap) {
		if err := handler.Run(); err != nil {
			logger.Fatal(err)
		}
	}(tcpDelivery)

	return nil
}
