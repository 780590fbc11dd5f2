package raw

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/poyaz/bytebeats/internal/domain"
)

const (
	headerSize = 5
	// DefaultMaxPayload caps one message; larger length fields are treated as corrupt.
	DefaultMaxPayload = 16 << 20
)

var _ domain.MessageConn = (*Conn)(nil)

// Conn frames each message as kind(1) | length(4, big-endian) | payload.
type Conn struct {
	conn       net.Conn
	br         *bufio.Reader
	wmu        sync.Mutex
	maxPayload uint32
}

func NewConn(conn net.Conn, maxPayload uint32) *Conn {
	if maxPayload == 0 {
		maxPayload = DefaultMaxPayload
	}
	return &Conn{
		conn:       conn,
		br:         bufio.NewReader(conn),
		maxPayload: maxPayload,
	}
}

func (c *Conn) ReadMessage() (domain.MessageKind, []byte, error) {
	var head [headerSize]byte
	if _, err := io.ReadFull(c.br, head[:]); err != nil {
		return 0, nil, fmt.Errorf("%w: %v", domain.ErrConnectionLost, err)
	}

	kind := domain.MessageKind(head[0])
	if kind != domain.TextMessage && kind != domain.BinaryMessage {
		return 0, nil, fmt.Errorf("%w: unknown message kind %x", domain.ErrMalformedFrame, head[0])
	}
	length := binary.BigEndian.Uint32(head[1:])
	if length > c.maxPayload {
		return 0, nil, fmt.Errorf("%w: payload of %d bytes exceeds limit %d", domain.ErrMalformedFrame, length, c.maxPayload)
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(c.br, payload); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return 0, nil, fmt.Errorf("%w: %v", domain.ErrConnectionLost, err)
	}

	return kind, payload, nil
}

func (c *Conn) write(kind domain.MessageKind, p []byte) error {
	if uint64(len(p)) > uint64(c.maxPayload) {
		return fmt.Errorf("%w: payload of %d bytes exceeds limit %d", domain.ErrMalformedFrame, len(p), c.maxPayload)
	}

	data := make([]byte, headerSize, headerSize+len(p))
	data[0] = byte(kind)
	binary.BigEndian.PutUint32(data[1:], uint32(len(p)))
	data = append(data, p...)

	c.wmu.Lock()
	defer c.wmu.Unlock()
	_, err := c.conn.Write(data)
	return err
}

func (c *Conn) WriteText(p []byte) error {
	return c.write(domain.TextMessage, p)
}

func (c *Conn) WriteBinary(p []byte) error {
	return c.write(domain.BinaryMessage, p)
}

func (c *Conn) SetWriteDeadline(t time.Time) error {
	return c.conn.SetWriteDeadline(t)
}

func (c *Conn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

func (c *Conn) Close() error {
	return c.conn.Close()
}
