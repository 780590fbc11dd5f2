package domain

import (
	"context"
)

type PlayerState int

const (
	PlayerIdle PlayerState = iota
	PlayerPlaying
	PlayerPaused
	PlayerStopped
)

func (s PlayerState) String() string {
	switch s {
	case PlayerIdle:
		return "idle"
	case PlayerPlaying:
		return "playing"
	case PlayerPaused:
		return "paused"
	case PlayerStopped:
		return "stopped"
	}
	return "unknown"
}

// PlayerCommand is a transport control sent by the user while a song plays.
type PlayerCommand int

const (
	TogglePauseCommand PlayerCommand = iota + 1
	StopCommand
	QuitCommand
)

type PlayOutcome int

const (
	PlayFinished PlayOutcome = iota + 1
	PlayStopped
	PlayQuit
)

type ClientUsecase interface {
	Connect(ctx context.Context) error
	Login(ctx context.Context, username, password string) ([]string, error)
	Songs(ctx context.Context) ([]string, error)
	Play(ctx context.Context, name string, commands <-chan PlayerCommand) (PlayOutcome, error)
	Close() error
}
