package domain

import (
	"context"
	"net"
	"time"

	"github.com/sirupsen/logrus"
)

type SessionState int

const (
	Unauthenticated SessionState = iota
	Authenticated
	Streaming
	Closed
)

func (s SessionState) String() string {
	switch s {
	case Unauthenticated:
		return "unauthenticated"
	case Authenticated:
		return "authenticated"
	case Streaming:
		return "streaming"
	case Closed:
		return "closed"
	}
	return "unknown"
}

type PauseMode int

const (
	// PauseSuspend holds the streaming loop between PAUSE and RESUME.
	PauseSuspend PauseMode = iota + 1
	// PauseAck only acknowledges PAUSE and RESUME; bytes keep flowing.
	PauseAck
)

type TransportType int

const (
	WebsocketTransport TransportType = iota + 1
	RawTransport
)

func (t TransportType) String() string {
	switch t {
	case WebsocketTransport:
		return "websocket"
	case RawTransport:
		return "raw"
	}
	return "unknown"
}

type MessageKind byte

const (
	TextMessage   MessageKind = MessageKind(TextOpcode)
	BinaryMessage MessageKind = MessageKind(BinaryOpcode)
)

// MessageConn is a duplex connection that carries whole text and binary messages.
type MessageConn interface {
	ReadMessage() (MessageKind, []byte, error)
	WriteText(p []byte) error
	WriteBinary(p []byte) error
	SetWriteDeadline(t time.Time) error
	RemoteAddr() net.Addr
	Close() error
}

// TransportUpgrader turns an accepted byte stream into a MessageConn.
type TransportUpgrader interface {
	Upgrade(conn net.Conn) (MessageConn, error)
}

// TransportDialer opens the client side of a MessageConn.
type TransportDialer interface {
	Dial(ctx context.Context) (MessageConn, error)
}

type SessionUsecase interface {
	Serve(ctx context.Context, conn MessageConn, log logrus.FieldLogger) error
}
