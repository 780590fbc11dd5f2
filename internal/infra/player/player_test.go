//go:build unix

package player

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"

	"github.com/poyaz/bytebeats/internal/domain"
)

func newShellPlayer(t *testing.T, script string) *player {
	t.Helper()
	log, _ := test.NewNullLogger()
	p, err := NewPlayer(log, Config{Command: "sh", Args: []string{"-c", script, "sh"}})
	if err != nil {
		t.Fatal(err)
	}
	return p
}

func waitDone(t *testing.T, p *player) {
	t.Helper()
	select {
	case <-p.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("player process did not exit")
	}
}

func TestPlayerIdleDoneIsClosed(t *testing.T) {
	p := newShellPlayer(t, "exit 0")
	select {
	case <-p.Done():
	default:
		t.Fatal("Done should be closed before anything starts")
	}
	if p.State() != domain.PlayerIdle {
		t.Fatalf("state = %v", p.State())
	}
}

func TestPlayerLifecycle(t *testing.T) {
	p := newShellPlayer(t, "sleep 5")

	if err := p.Start("song.mp3"); err != nil {
		t.Fatal(err)
	}
	if err := p.Start("song.mp3"); err == nil {
		t.Fatal("second Start should fail while playing")
	}
	if p.State() != domain.PlayerPlaying {
		t.Fatalf("state = %v", p.State())
	}

	if err := p.Pause(); err != nil {
		t.Fatal(err)
	}
	if p.State() != domain.PlayerPaused {
		t.Fatalf("state = %v", p.State())
	}
	if err := p.Resume(); err != nil {
		t.Fatal(err)
	}
	if p.State() != domain.PlayerPlaying {
		t.Fatalf("state = %v", p.State())
	}

	if err := p.Pause(); err != nil {
		t.Fatal(err)
	}
	if err := p.Stop(); err != nil {
		t.Fatal(err)
	}
	waitDone(t, p)
	if p.State() != domain.PlayerStopped {
		t.Fatalf("state = %v", p.State())
	}
}

func TestPlayerNaturalExit(t *testing.T) {
	p := newShellPlayer(t, `test -n "$1"`)

	if err := p.Start("song.mp3"); err != nil {
		t.Fatal(err)
	}
	waitDone(t, p)
	if p.State() != domain.PlayerIdle {
		t.Fatalf("state = %v", p.State())
	}

	if err := p.Start("again.mp3"); err != nil {
		t.Fatalf("restart after exit: %v", err)
	}
	waitDone(t, p)
}

func TestPlayerMissingCommand(t *testing.T) {
	log, _ := test.NewNullLogger()
	p, err := NewPlayer(log, Config{Command: "bytebeats-no-such-player"})
	if err != nil {
		t.Fatal(err)
	}
	if err := p.Start("song.mp3"); err == nil {
		t.Fatal("expected an error for a missing player binary")
	}
	if p.State() != domain.PlayerIdle {
		t.Fatalf("state = %v", p.State())
	}
}
