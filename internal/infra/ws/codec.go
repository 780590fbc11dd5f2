package ws

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/poyaz/bytebeats/internal/domain"
)

const (
	bufferSize = 4096
	// DefaultMaxPayload bounds a single frame so a hostile length field cannot force a huge allocation.
	DefaultMaxPayload = 16 << 20
	maxHeaderSize     = 14
)

// Role says which end of the connection a codec serves. Client frames are always masked, server frames never are.
type Role int

const (
	RoleServer Role = iota + 1
	RoleClient
)

func (r Role) String() string {
	if r == RoleClient {
		return "client"
	}
	return "server"
}

// MaskBytes XORs p in place with key; applying it twice restores p.
func MaskBytes(key [4]byte, p []byte) {
	for i := range p {
		p[i] ^= key[i&3]
	}
}

// Decode parses one frame from the start of buf and reports how many bytes it used.
// domain.ErrIncompleteFrame is returned while buf holds only part of a frame.
func Decode(buf []byte) (domain.Frame, int, error) {
	return decode(buf, DefaultMaxPayload)
}

func decode(buf []byte, maxPayload uint64) (domain.Frame, int, error) {
	f := domain.Frame{}
	if len(buf) < 2 {
		return f, 0, domain.ErrIncompleteFrame
	}

	f.Fin = buf[0]&0x80 == 0x80
	f.Reserved = (buf[0] >> 4) & 0x07
	f.Opcode = domain.OpcodeType(buf[0] & 0x0F)
	f.Masked = buf[1]&0x80 == 0x80

	length := uint64(buf[1] & 0x7F)
	pos := 2
	switch length {
	case 126:
		if len(buf) < pos+2 {
			return f, 0, domain.ErrIncompleteFrame
		}
		length = uint64(binary.BigEndian.Uint16(buf[pos:]))
		pos += 2
		if length < 126 {
			return f, 0, fmt.Errorf("%w: length %d not minimally encoded", domain.ErrMalformedFrame, length)
		}
	case 127:
		if len(buf) < pos+8 {
			return f, 0, domain.ErrIncompleteFrame
		}
		length = binary.BigEndian.Uint64(buf[pos:])
		pos += 8
		if length>>63 != 0 {
			return f, 0, fmt.Errorf("%w: most significant length bit set", domain.ErrMalformedFrame)
		}
		if length <= 0xFFFF {
			return f, 0, fmt.Errorf("%w: length %d not minimally encoded", domain.ErrMalformedFrame, length)
		}
	}

	if err := validateHeader(&f, length, maxPayload); err != nil {
		return f, 0, err
	}

	if f.Masked {
		if len(buf) < pos+4 {
			return f, 0, domain.ErrIncompleteFrame
		}
		copy(f.MaskKey[:], buf[pos:pos+4])
		pos += 4
	}

	if uint64(len(buf)-pos) < length {
		return f, 0, domain.ErrIncompleteFrame
	}

	end := pos + int(length)
	f.Payload = make([]byte, length)
	copy(f.Payload, buf[pos:end])
	if f.Masked {
		MaskBytes(f.MaskKey, f.Payload)
	}

	return f, end, nil
}

func validateHeader(f *domain.Frame, length uint64, maxPayload uint64) error {
	if f.Reserved != 0 {
		return fmt.Errorf("%w: RSV %x is reserved", domain.ErrMalformedFrame, f.Reserved)
	}
	if f.HasReservedOpcode() {
		return fmt.Errorf("%w: opcode %x is reserved", domain.ErrMalformedFrame, byte(f.Opcode))
	}
	if f.IsControl() && (length > domain.MaxControlPayload || !f.Fin) {
		return fmt.Errorf("%w: control frames must be unfragmented and at most %d bytes", domain.ErrMalformedFrame, domain.MaxControlPayload)
	}
	if length > maxPayload {
		return fmt.Errorf("%w: payload of %d bytes exceeds limit %d", domain.ErrMalformedFrame, length, maxPayload)
	}
	return nil
}

// appendFrame writes f to dst using the minimal length encoding. A masked frame's payload is masked with
// f.MaskKey on the way out; f.Payload itself is left untouched.
func appendFrame(dst []byte, f domain.Frame) []byte {
	b0 := byte(f.Opcode) | (f.Reserved&0x07)<<4
	if f.Fin {
		b0 |= 0x80
	}
	var b1 byte
	if f.Masked {
		b1 = 0x80
	}

	length := len(f.Payload)
	switch {
	case length <= 125:
		dst = append(dst, b0, b1|byte(length))
	case length <= 0xFFFF:
		dst = append(dst, b0, b1|126)
		dst = binary.BigEndian.AppendUint16(dst, uint16(length))
	default:
		dst = append(dst, b0, b1|127)
		dst = binary.BigEndian.AppendUint64(dst, uint64(length))
	}

	if !f.Masked {
		return append(dst, f.Payload...)
	}

	dst = append(dst, f.MaskKey[:]...)
	start := len(dst)
	dst = append(dst, f.Payload...)
	MaskBytes(f.MaskKey, dst[start:])

	return dst
}

// Encoder builds outgoing frames for one side of a connection.
type Encoder struct {
	role Role
	rand io.Reader
}

func NewEncoder(role Role) Encoder {
	return Encoder{role: role, rand: rand.Reader}
}

// Encode returns a single final frame carrying payload. Client frames get a fresh random mask key.
func (e Encoder) Encode(opcode domain.OpcodeType, payload []byte) ([]byte, error) {
	f := domain.Frame{Fin: true, Opcode: opcode, Payload: payload}
	if e.role == RoleClient {
		f.Masked = true
		if _, err := io.ReadFull(e.rand, f.MaskKey[:]); err != nil {
			return nil, err
		}
	}

	return appendFrame(make([]byte, 0, maxHeaderSize+len(payload)), f), nil
}

// Decoder accumulates transport bytes and yields frames once they are complete,
// regardless of how the transport splits its reads.
type Decoder struct {
	buf        []byte
	chunk      []byte
	maxPayload uint64
}

func NewDecoder(maxPayload uint64) *Decoder {
	if maxPayload == 0 {
		maxPayload = DefaultMaxPayload
	}
	return &Decoder{maxPayload: maxPayload}
}

func (d *Decoder) Feed(p []byte) {
	d.buf = append(d.buf, p...)
}

// Buffered returns the number of bytes waiting to form a frame.
func (d *Decoder) Buffered() int {
	return len(d.buf)
}

// Next pops the next complete frame, or returns domain.ErrIncompleteFrame.
func (d *Decoder) Next() (domain.Frame, error) {
	f, n, err := decode(d.buf, d.maxPayload)
	if err != nil {
		return f, err
	}

	rest := copy(d.buf, d.buf[n:])
	d.buf = d.buf[:rest]

	return f, nil
}

// ReadFrame reads from r until one whole frame is buffered.
func (d *Decoder) ReadFrame(r io.Reader) (domain.Frame, error) {
	if d.chunk == nil {
		d.chunk = make([]byte, bufferSize)
	}

	for {
		f, err := d.Next()
		if !errors.Is(err, domain.ErrIncompleteFrame) {
			return f, err
		}

		n, rerr := r.Read(d.chunk)
		if n > 0 {
			d.Feed(d.chunk[:n])
		}
		if rerr == nil {
			continue
		}

		f, err = d.Next()
		if err == nil || !errors.Is(err, domain.ErrIncompleteFrame) {
			return f, err
		}
		if errors.Is(rerr, io.EOF) && d.Buffered() > 0 {
			return f, io.ErrUnexpectedEOF
		}
		return f, rerr
	}
}
