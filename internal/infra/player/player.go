package player

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/poyaz/bytebeats/internal/app/client/usecase/adapter"
	"github.com/poyaz/bytebeats/internal/domain"
)

var ErrNoPlayer = errors.New("no audio player found, install afplay, ffplay or mpg123 or pass --player")

type Config struct {
	Command string
	Args    []string
}

var knownPlayers = []Config{
	{Command: "afplay"},
	{Command: "ffplay", Args: []string{"-nodisp", "-autoexit", "-loglevel", "quiet"}},
	{Command: "mpg123", Args: []string{"-q"}},
}

var _ adapter.PlayerAdapter = (*player)(nil)

// player runs one external process at a time. All state changes go through its methods.
type player struct {
	command string
	args    []string
	log     logrus.FieldLogger

	mu    sync.Mutex
	state domain.PlayerState
	cmd   *exec.Cmd
	done  chan struct{}
}

func NewPlayer(log logrus.FieldLogger, config ...Config) (*player, error) {
	var opt Config
	for _, cfg := range config {
		opt = cfg
	}

	if opt.Command == "" {
		for _, known := range knownPlayers {
			if _, err := exec.LookPath(known.Command); err == nil {
				opt = Config{Command: known.Command, Args: append(append([]string{}, known.Args...), opt.Args...)}
				break
			}
		}
	}
	if opt.Command == "" {
		return nil, ErrNoPlayer
	}

	closed := make(chan struct{})
	close(closed)

	return &player{command: opt.Command, args: opt.Args, log: log, done: closed}, nil
}

func (p *player) Start(file string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == domain.PlayerPlaying || p.state == domain.PlayerPaused {
		return errors.New("player is already running")
	}

	args := append(append([]string{}, p.args...), file)
	cmd := exec.Command(p.command, args...)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", p.command, err)
	}

	done := make(chan struct{})
	p.cmd, p.done, p.state = cmd, done, domain.PlayerPlaying
	p.log.WithFields(logrus.Fields{"player": p.command, "pid": cmd.Process.Pid}).Debug("Player started")

	go func() {
		err := cmd.Wait()
		p.mu.Lock()
		if p.cmd == cmd && p.state != domain.PlayerStopped {
			p.state = domain.PlayerIdle
		}
		p.mu.Unlock()
		if err != nil {
			p.log.WithError(err).Debug("Player exited")
		}
		close(done)
	}()

	return nil
}

func (p *player) Pause() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != domain.PlayerPlaying {
		return nil
	}
	if err := suspend(p.cmd.Process); err != nil {
		return err
	}
	p.state = domain.PlayerPaused
	return nil
}

func (p *player) Resume() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != domain.PlayerPaused {
		return nil
	}
	if err := resume(p.cmd.Process); err != nil {
		return err
	}
	p.state = domain.PlayerPlaying
	return nil
}

func (p *player) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != domain.PlayerPlaying && p.state != domain.PlayerPaused {
		return nil
	}
	if p.state == domain.PlayerPaused {
		_ = resume(p.cmd.Process)
	}
	p.state = domain.PlayerStopped
	if err := terminate(p.cmd.Process); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	return nil
}

// Done is closed once the current process exits. It is already closed when nothing was started.
func (p *player) Done() <-chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.done
}

func (p *player) State() domain.PlayerState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}
