package adapter

import (
	"github.com/poyaz/bytebeats/internal/domain"
)

type PlayerAdapter interface {
	Start(file string) error
	Pause() error
	Resume() error
	Stop() error
	Done() <-chan struct{}
	State() domain.PlayerState
}
