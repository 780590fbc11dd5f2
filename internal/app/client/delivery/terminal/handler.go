package terminal

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/poyaz/bytebeats/internal/domain"
)

const DefaultLoginAttempts = 3

type Config struct {
	Username      string
	Password      string
	LoginAttempts int
}

type handler struct {
	client  domain.ClientUsecase
	console *Console
	log     logrus.FieldLogger
	opt     Config

	ctx    context.Context
	cancel context.CancelFunc
}

func NewHandler(client domain.ClientUsecase, console *Console, log logrus.FieldLogger, config ...Config) (*handler, error) {
	var opt Config
	for _, cfg := range config {
		opt = cfg
	}
	if client == nil || console == nil {
		return nil, errors.New("terminal needs a client and a console")
	}
	if opt.LoginAttempts <= 0 {
		opt.LoginAttempts = DefaultLoginAttempts
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &handler{client: client, console: console, log: log, opt: opt, ctx: ctx, cancel: cancel}, nil
}

// Run connects, logs in and serves the song menu until the operator quits or input ends.
func (h *handler) Run() error {
	defer h.cancel()

	if err := h.client.Connect(h.ctx); err != nil {
		return err
	}
	defer func() {
		if err := h.client.Close(); err != nil {
			h.log.WithError(err).Debug("Close connection")
		}
	}()

	songs, err := h.login()
	if err != nil {
		return err
	}

	lines := h.console.StartLines()
	for {
		h.printMenu(songs)

		var line string
		var ok bool
		select {
		case <-h.ctx.Done():
			return nil
		case line, ok = <-lines:
			if !ok {
				return nil
			}
		}

		switch strings.ToLower(line) {
		case "":
			continue
		case "q", "quit", "exit":
			return nil
		case "r", "refresh":
			if songs, err = h.client.Songs(h.ctx); err != nil {
				return err
			}
			continue
		}

		n, err := strconv.Atoi(line)
		if err != nil || n < 1 || n > len(songs) {
			h.console.Printf("Pick a number between 1 and %d, r to refresh or q to quit\n", len(songs))
			continue
		}

		outcome, err := h.play(songs[n-1], lines)
		switch {
		case errors.Is(err, domain.ErrCatalogMiss):
			h.console.Printf("Song %q is not available any more\n", songs[n-1])
		case errors.Is(err, domain.ErrStreamIO):
			h.console.Printf("Streaming failed: %v\n", err)
		case errors.Is(err, context.Canceled):
			return nil
		case err != nil:
			return err
		case outcome == domain.PlayQuit:
			return nil
		}
	}
}

func (h *handler) Shutdown() error {
	h.cancel()
	return nil
}

func (h *handler) login() ([]string, error) {
	username, password := h.opt.Username, h.opt.Password
	for attempt := 1; attempt <= h.opt.LoginAttempts; attempt++ {
		var err error
		if username == "" {
			if username, err = h.console.ReadLine("Username: "); err != nil {
				return nil, err
			}
		}
		if password == "" {
			if password, err = h.console.ReadPassword("Password: "); err != nil {
				return nil, err
			}
		}

		songs, err := h.client.Login(h.ctx, username, password)
		if err == nil {
			h.console.Printf("Logged in as %s\n", username)
			return songs, nil
		}
		if !errors.Is(err, domain.ErrAuthenticationFailed) {
			return nil, err
		}

		h.log.WithField("attempt", attempt).Warn("Login failed")
		h.console.Printf("Invalid username or password\n")
		username, password = "", ""
	}

	return nil, domain.ErrAuthenticationFailed
}

func (h *handler) printMenu(songs []string) {
	if len(songs) == 0 {
		h.console.Printf("\nNo songs on the server. r to refresh, q to quit\n> ")
		return
	}

	h.console.Printf("\nSongs:\n")
	for i, song := range songs {
		h.console.Printf("%3d. %s\n", i+1, song)
	}
	h.console.Printf("Number to play, r to refresh, q to quit\n> ")
}

// play forwards input lines as player commands until the song is over.
func (h *handler) play(name string, lines <-chan string) (domain.PlayOutcome, error) {
	h.console.Printf("Playing %s (p pause/resume, s stop, q quit)\n", name)

	commands := make(chan domain.PlayerCommand)
	done := make(chan struct{})
	defer close(done)

	go func() {
		for {
			var cmd domain.PlayerCommand
			select {
			case <-done:
				return
			case line, ok := <-lines:
				if !ok {
					cmd = domain.QuitCommand
					break
				}
				switch strings.ToLower(line) {
				case "p", "pause", "resume":
					cmd = domain.TogglePauseCommand
				case "s", "stop":
					cmd = domain.StopCommand
				case "q", "quit", "exit":
					cmd = domain.QuitCommand
				default:
					h.console.Printf("p pause/resume, s stop, q quit\n")
					continue
				}
			}

			select {
			case commands <- cmd:
			case <-done:
				return
			}
			if cmd == domain.QuitCommand {
				return
			}
		}
	}()

	outcome, err := h.client.Play(h.ctx, name, commands)
	if err == nil {
		switch outcome {
		case domain.PlayFinished:
			h.console.Printf("Finished %s\n", name)
		case domain.PlayStopped:
			h.console.Printf("Stopped %s\n", name)
		}
	}

	return outcome, err
}
