package domain

import (
	"errors"
	"fmt"
)

var (
	ErrMalformedFrame = errors.New("malformed frame")

	// ErrIncompleteFrame means the buffer holds the start of a frame but not all of it.
	ErrIncompleteFrame      = fmt.Errorf("%w: need more bytes", ErrMalformedFrame)
	ErrHandshakeRejected    = errors.New("handshake rejected")
	ErrMissingKey           = fmt.Errorf("%w: missing Sec-WebSocket-Key", ErrHandshakeRejected)
	ErrAuthenticationFailed = errors.New("authentication failed")
	ErrCatalogMiss          = errors.New("song not found")
	ErrStreamIO             = errors.New("stream io failure")
	ErrConnectionLost       = errors.New("connection lost")
)
