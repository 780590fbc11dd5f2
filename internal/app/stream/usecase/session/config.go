package session

import (
	"time"

	"github.com/poyaz/bytebeats/internal/domain"
)

const (
	DefaultChunkSize  = 32 * 1024
	DefaultChunkDelay = 10 * time.Millisecond
	DefaultQueueLimit = 4
)

type Config struct {
	ChunkSize    int
	ChunkDelay   time.Duration
	PauseMode    domain.PauseMode
	IdleTimeout  time.Duration
	WriteTimeout time.Duration
	// QueueLimit caps PLAY_SONG requests held while a song is streaming.
	QueueLimit int
}
