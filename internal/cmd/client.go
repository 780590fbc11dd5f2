package cmd

import (
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/poyaz/bytebeats/config"
	terminalDeliveryClient "github.com/poyaz/bytebeats/internal/app/client/delivery/terminal"
	adapterUsecaseClient "github.com/poyaz/bytebeats/internal/app/client/usecase/adapter"
	clientUsecaseClient "github.com/poyaz/bytebeats/internal/app/client/usecase/client"
	"github.com/poyaz/bytebeats/internal/domain"
	infraPlayer "github.com/poyaz/bytebeats/internal/infra/player"
	infraRaw "github.com/poyaz/bytebeats/internal/infra/raw"
	infraTls "github.com/poyaz/bytebeats/internal/infra/tlsconf"
	infraWs "github.com/poyaz/bytebeats/internal/infra/ws"
)

const clientShutdownGrace = 2 * time.Second

func RunClient(cfg *config.ClientConfig) error {
	gracefulShutdown := make(chan os.Signal, 1)
	signal.Notify(gracefulShutdown, syscall.SIGINT, syscall.SIGTERM)

	logger = newLogger(cfg.Global)
	console := terminalDeliveryClient.NewConsole(os.Stdin, os.Stdout)

	if cfg.Host == "" {
		host, err := console.ReadLine("Server address: ")
		if err != nil {
			return err
		}
		cfg.Host = host
	}
	if cfg.Host == "" {
		return fmt.Errorf("server address is required")
	}

	timeout, err := config.ParseDuration("timeout", cfg.Timeout)
	if err != nil {
		return err
	}

	dialer, err := newDialer(cfg, timeout)
	if err != nil {
		return err
	}

	var player adapterUsecaseClient.PlayerAdapter
	player, err = infraPlayer.NewPlayer(logger, infraPlayer.Config{Command: cfg.Player, Args: cfg.PlayerArgs})
	if err != nil {
		return err
	}

	clientUsecase, err := clientUsecaseClient.NewClient(dialer, player, logger, clientUsecaseClient.Config{
		BufferSize:  cfg.BufferSize,
		TempDir:     cfg.TempDir,
		DialTimeout: timeout,
	})
	if err != nil {
		return err
	}

	terminalDelivery, err := terminalDeliveryClient.NewHandler(clientUsecase, console, logger, terminalDeliveryClient.Config{
		Username: cfg.Username,
		Password: cfg.Password,
	})
	if err != nil {
		return err
	}

	var foreground Bootstrap = terminalDelivery
	result := make(chan error, 1)
	go func(handler RunBootstrap) {
		result <- handler.Run()
	}(foreground)

	select {
	case err := <-result:
		_ = player.Stop()
		return err
	case <-gracefulShutdown:
		_, _ = os.Stdout.Write([]byte{'\n'})
	}

	if err := foreground.Shutdown(); err != nil {
		logger.Error(err)
	}
	_ = player.Stop()

	select {
	case err := <-result:
		return err
	case <-time.After(clientShutdownGrace):
		return nil
	}
}

func newDialer(cfg *config.ClientConfig, timeout time.Duration) (domain.TransportDialer, error) {
	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))

	serverName := cfg.ServerName
	if serverName == "" {
		serverName = cfg.Host
	}

	transport, err := transportType(cfg.Transport)
	if err != nil {
		return nil, err
	}

	switch transport {
	case domain.RawTransport:
		if cfg.Tls {
			return infraRaw.NewDialer(addr, infraTls.ClientConfig(serverName, cfg.Insecure)), nil
		}
		return infraRaw.NewDialer(addr, nil), nil
	default:
		scheme := infraWs.WsScheme
		if cfg.Tls {
			scheme = infraWs.WssScheme
		}
		return infraWs.NewDialer(
			scheme+"://"+addr+cfg.Path,
			infraTls.ClientConfig(serverName, cfg.Insecure),
			infraWs.Config{HandshakeTimeout: timeout},
		)
	}
}
