//go:build !unix

package player

import (
	"errors"
	"os"
)

var errPauseUnsupported = errors.New("pause/resume not supported on this platform")

func suspend(p *os.Process) error {
	return errPauseUnsupported
}

func resume(p *os.Process) error {
	return errPauseUnsupported
}

func terminate(p *os.Process) error {
	return p.Kill()
}
