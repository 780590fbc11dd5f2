package terminal

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// Console reads operator input line by line. ReadLine and ReadPassword must not be used after StartLines.
type Console struct {
	in  *bufio.Reader
	out io.Writer
	fd  int
	tty bool

	lines chan string
}

func NewConsole(in *os.File, out io.Writer) *Console {
	c := newConsole(in, out)
	c.fd = int(in.Fd())
	c.tty = term.IsTerminal(c.fd)
	return c
}

func newConsole(in io.Reader, out io.Writer) *Console {
	return &Console{in: bufio.NewReader(in), out: out}
}

func (c *Console) Printf(format string, args ...any) {
	_, _ = fmt.Fprintf(c.out, format, args...)
}

func (c *Console) ReadLine(prompt string) (string, error) {
	if prompt != "" {
		c.Printf("%s", prompt)
	}
	line, err := c.in.ReadString('\n')
	if err != nil && (!errors.Is(err, io.EOF) || line == "") {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// ReadPassword hides input when stdin is a terminal and falls back to a plain line otherwise.
func (c *Console) ReadPassword(prompt string) (string, error) {
	if !c.tty {
		return c.ReadLine(prompt)
	}

	c.Printf("%s", prompt)
	p, err := term.ReadPassword(c.fd)
	c.Printf("\n")
	if err != nil {
		return "", err
	}
	return string(p), nil
}

// StartLines hands every following input line to the returned channel, which is closed on EOF.
func (c *Console) StartLines() <-chan string {
	if c.lines != nil {
		return c.lines
	}

	c.lines = make(chan string)
	go func() {
		defer close(c.lines)
		for {
			line, err := c.in.ReadString('\n')
			if line = strings.TrimSpace(line); line != "" || err == nil {
				c.lines <- line
			}
			if err != nil {
				return
			}
		}
	}()

	return c.lines
}
