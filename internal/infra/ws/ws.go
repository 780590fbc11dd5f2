package ws

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"net/url"
	"time"

	"github.com/poyaz/bytebeats/internal/domain"
)

const (
	WsScheme  = "ws"
	WssScheme = "wss"
)

var ErrFormatAddr = errors.New("remote websockets addr format error")

type Config struct {
	MaxPayload       uint64
	HandshakeTimeout time.Duration
}

var _ domain.TransportUpgrader = (*wsInfra)(nil)

type wsInfra struct {
	opt Config
}

func NewWsInfra(config ...Config) (*wsInfra, error) {
	var opt Config
	for _, cfg := range config {
		opt = cfg
	}
	if opt.MaxPayload == 0 {
		opt.MaxPayload = DefaultMaxPayload
	}

	return &wsInfra{opt: opt}, nil
}

// Upgrade performs the server handshake. A rejected request has already been answered with
// 400 Bad Request and the connection is closed when Upgrade returns.
func (w *wsInfra) Upgrade(conn net.Conn) (domain.MessageConn, error) {
	if w.opt.HandshakeTimeout > 0 {
		_ = conn.SetDeadline(time.Now().Add(w.opt.HandshakeTimeout))
	}

	buffered, err := serverHandshake(conn)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	_ = conn.SetDeadline(time.Time{})

	return NewConn(conn, RoleServer, buffered, w.opt.MaxPayload), nil
}

var _ domain.TransportDialer = (*Dialer)(nil)

// Dialer connects to a ws:// or wss:// address.
type Dialer struct {
	scheme     string
	host       string
	path       string
	tlsc       *tls.Config
	maxPayload uint64
	netDialer  net.Dialer
}

func NewDialer(addr string, tlsc *tls.Config, config ...Config) (*Dialer, error) {
	var opt Config
	for _, cfg := range config {
		opt = cfg
	}

	u, err := url.Parse(addr)
	if err != nil {
		return nil, ErrFormatAddr
	}
	if _, _, err := net.SplitHostPort(u.Host); err != nil {
		return nil, ErrFormatAddr
	}
	if u.Scheme != WsScheme && u.Scheme != WssScheme {
		return nil, ErrFormatAddr
	}

	d := &Dialer{
		scheme:     u.Scheme,
		host:       u.Host,
		path:       u.RequestURI(),
		maxPayload: opt.MaxPayload,
		netDialer:  net.Dialer{Timeout: opt.HandshakeTimeout},
	}
	if u.Scheme == WssScheme {
		d.tlsc = tlsc
		if d.tlsc == nil {
			d.tlsc = &tls.Config{}
		}
	}

	return d, nil
}

func (d *Dialer) Dial(ctx context.Context) (domain.MessageConn, error) {
	var conn net.Conn
	var err error
	switch d.scheme {
	case WsScheme:
		conn, err = d.netDialer.DialContext(ctx, "tcp", d.host)
	case WssScheme:
		td := tls.Dialer{NetDialer: &d.netDialer, Config: d.tlsc}
		conn, err = td.DialContext(ctx, "tcp", d.host)
	}
	if err != nil {
		return nil, err
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	buffered, err := clientHandshake(conn, d.host, d.path)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	_ = conn.SetDeadline(time.Time{})

	return NewConn(conn, RoleClient, buffered, d.maxPayload), nil
}
