package client

import (
	"time"
)

const (
	DefaultBufferSize   = 1 << 20
	DefaultReplyTimeout = 30 * time.Second
)

type Config struct {
	// BufferSize is how many bytes arrive before the player starts.
	BufferSize   int
	TempDir      string
	ReplyTimeout time.Duration
	DialTimeout  time.Duration
}
