package ws

import (
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/poyaz/bytebeats/internal/domain"
)

var closeCodes map[int]string = map[int]string{
	1000: "NormalError",
	1001: "GoingAwayError",
	1002: "ProtocolError",
	1003: "UnknownType",
	1007: "TypeError",
	1008: "PolicyError",
	1009: "MessageTooLargeError",
	1010: "ExtensionError",
	1011: "UnexpectedError",
}

var _ domain.MessageConn = (*Conn)(nil)

// Conn is one end of an upgraded websocket connection. ReadMessage must be called from a single goroutine;
// writes may come from any goroutine and are serialized.
type Conn struct {
	conn   net.Conn
	role   Role
	dec    *Decoder
	enc    Encoder
	wmu    sync.Mutex
	status atomic.Uint32

	fragment       []byte
	fragmentOpcode domain.OpcodeType

	closeOnce sync.Once
	closeErr  error
}

// NewConn wraps an already upgraded net.Conn. buffered holds bytes read past the handshake.
func NewConn(conn net.Conn, role Role, buffered []byte, maxPayload uint64) *Conn {
	dec := NewDecoder(maxPayload)
	dec.Feed(buffered)

	c := &Conn{
		conn: conn,
		role: role,
		dec:  dec,
		enc:  NewEncoder(role),
	}
	c.status.Store(1000)

	return c
}

func (ws *Conn) validate(frame *domain.Frame) error {
	if ws.role == RoleServer && !frame.Masked {
		ws.status.Store(1002)
		return fmt.Errorf("%w: unmasked client frame", domain.ErrMalformedFrame)
	}
	if ws.role == RoleClient && frame.Masked {
		ws.status.Store(1002)
		return fmt.Errorf("%w: masked server frame", domain.ErrMalformedFrame)
	}
	if frame.Opcode == domain.TextOpcode && frame.Fin && !utf8.Valid(frame.Payload) {
		ws.status.Store(1007)
		return fmt.Errorf("%w: invalid UTF-8 text message", domain.ErrMalformedFrame)
	}
	if frame.Opcode == domain.CloseOpcode {
		if len(frame.Payload) >= 2 {
			code := frame.CloseCode()
			if code >= 5000 || (code < 3000 && closeCodes[int(code)] == "") {
				ws.status.Store(1002)
				return fmt.Errorf("%w: %s wrong code %d", domain.ErrMalformedFrame, closeCodes[1002], code)
			}
			if !utf8.Valid(frame.Payload[2:]) {
				ws.status.Store(1007)
				return fmt.Errorf("%w: %s invalid UTF-8 reason message", domain.ErrMalformedFrame, closeCodes[1007])
			}
		} else if len(frame.Payload) != 0 {
			ws.status.Store(1002)
			return fmt.Errorf("%w: %s wrong code", domain.ErrMalformedFrame, closeCodes[1002])
		}
	}
	return nil
}

// recv receives data and returns a Frame
func (ws *Conn) recv() (domain.Frame, error) {
	f, err := ws.dec.ReadFrame(ws.conn)
	if err != nil {
		if errors.Is(err, domain.ErrMalformedFrame) {
			ws.status.Store(1002)
			return f, err
		}
		return f, fmt.Errorf("%w: %v", domain.ErrConnectionLost, err)
	}

	return f, ws.validate(&f)
}

// ReadMessage returns the next text or binary message, answering pings and reassembling fragments on the way.
func (ws *Conn) ReadMessage() (domain.MessageKind, []byte, error) {
	for {
		f, err := ws.recv()
		if err != nil {
			if errors.Is(err, domain.ErrMalformedFrame) {
				_ = ws.Close()
			}
			return 0, nil, err
		}

		switch f.Opcode {
		case domain.PingOpcode:
			if err := ws.send(domain.PongOpcode, f.Payload); err != nil {
				return 0, nil, fmt.Errorf("%w: %v", domain.ErrConnectionLost, err)
			}
		case domain.PongOpcode:
		case domain.CloseOpcode:
			if code := f.CloseCode(); code != 0 {
				ws.status.Store(uint32(code))
			}
			_ = ws.Close()
			return 0, nil, fmt.Errorf("%w: peer sent close %d", domain.ErrConnectionLost, f.CloseCode())
		case domain.ContinuationOpcode:
			if ws.fragment == nil {
				ws.status.Store(1002)
				_ = ws.Close()
				return 0, nil, fmt.Errorf("%w: continuation without a started message", domain.ErrMalformedFrame)
			}
			ws.fragment = append(ws.fragment, f.Payload...)
			if f.Fin {
				return ws.finishFragment()
			}
		case domain.TextOpcode, domain.BinaryOpcode:
			if ws.fragment != nil {
				ws.status.Store(1002)
				_ = ws.Close()
				return 0, nil, fmt.Errorf("%w: new message inside a fragmented one", domain.ErrMalformedFrame)
			}
			if f.Fin {
				return domain.MessageKind(f.Opcode), f.Payload, nil
			}
			ws.fragmentOpcode = f.Opcode
			ws.fragment = append(make([]byte, 0, len(f.Payload)), f.Payload...)
		}
	}
}

func (ws *Conn) finishFragment() (domain.MessageKind, []byte, error) {
	payload, opcode := ws.fragment, ws.fragmentOpcode
	ws.fragment = nil
	if uint64(len(payload)) > ws.dec.maxPayload {
		ws.status.Store(1009)
		_ = ws.Close()
		return 0, nil, fmt.Errorf("%w: %s", domain.ErrMalformedFrame, closeCodes[1009])
	}
	if opcode == domain.TextOpcode && !utf8.Valid(payload) {
		ws.status.Store(1007)
		_ = ws.Close()
		return 0, nil, fmt.Errorf("%w: invalid UTF-8 text message", domain.ErrMalformedFrame)
	}
	return domain.MessageKind(opcode), payload, nil
}

// send sends a Frame
func (ws *Conn) send(opcode domain.OpcodeType, payload []byte) error {
	data, err := ws.enc.Encode(opcode, payload)
	if err != nil {
		return err
	}

	ws.wmu.Lock()
	defer ws.wmu.Unlock()
	_, err = ws.conn.Write(data)
	return err
}

func (ws *Conn) WriteText(p []byte) error {
	return ws.send(domain.TextOpcode, p)
}

func (ws *Conn) WriteBinary(p []byte) error {
	return ws.send(domain.BinaryOpcode, p)
}

func (ws *Conn) SetWriteDeadline(t time.Time) error {
	return ws.conn.SetWriteDeadline(t)
}

func (ws *Conn) RemoteAddr() net.Addr {
	return ws.conn.RemoteAddr()
}

// Close sends close Frame and closes the TCP connection
func (ws *Conn) Close() error {
	ws.closeOnce.Do(func() {
		payload := make([]byte, 2)
		binary.BigEndian.PutUint16(payload, uint16(ws.status.Load()))
		_ = ws.conn.SetWriteDeadline(time.Now().Add(time.Second))
		_ = ws.send(domain.CloseOpcode, payload)
		ws.closeErr = ws.conn.Close()
	})
	return ws.closeErr
}
