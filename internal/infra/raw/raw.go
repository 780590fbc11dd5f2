package raw

import (
	"context"
	"crypto/tls"
	"net"

	"github.com/poyaz/bytebeats/internal/domain"
)

type Config struct {
	MaxPayload uint32
}

var _ domain.TransportUpgrader = (*rawInfra)(nil)

type rawInfra struct {
	opt Config
}

func NewRawInfra(config ...Config) (*rawInfra, error) {
	var opt Config
	for _, cfg := range config {
		opt = cfg
	}

	return &rawInfra{opt: opt}, nil
}

// Upgrade needs no handshake; the first bytes on the wire are already messages.
func (r *rawInfra) Upgrade(conn net.Conn) (domain.MessageConn, error) {
	return NewConn(conn, r.opt.MaxPayload), nil
}

var _ domain.TransportDialer = (*Dialer)(nil)

type Dialer struct {
	addr       string
	tlsc       *tls.Config
	maxPayload uint32
}

// NewDialer dials addr over plain TCP, or over TLS when tlsc is not nil.
func NewDialer(addr string, tlsc *tls.Config, config ...Config) *Dialer {
	var opt Config
	for _, cfg := range config {
		opt = cfg
	}

	return &Dialer{addr: addr, tlsc: tlsc, maxPayload: opt.MaxPayload}
}

func (d *Dialer) Dial(ctx context.Context) (domain.MessageConn, error) {
	var conn net.Conn
	var err error
	if d.tlsc != nil {
		td := tls.Dialer{Config: d.tlsc}
		conn, err = td.DialContext(ctx, "tcp", d.addr)
	} else {
		var nd net.Dialer
		conn, err = nd.DialContext(ctx, "tcp", d.addr)
	}
	if err != nil {
		return nil, err
	}

	return NewConn(conn, d.maxPayload), nil
}
