package tcp

import (
	"crypto/tls"
)

type Config struct {
	ListenIP   string
	ListenPort int
	// TLS wraps accepted connections when set.
	TLS *tls.Config
}
