package domain

import (
	"encoding/binary"
)

type OpcodeType byte

const (
	ContinuationOpcode OpcodeType = 0
	TextOpcode         OpcodeType = 1
	BinaryOpcode       OpcodeType = 2
	CloseOpcode        OpcodeType = 8
	PingOpcode         OpcodeType = 9
	PongOpcode         OpcodeType = 10
)

// MaxControlPayload is the largest payload a close, ping or pong frame may carry.
const MaxControlPayload = 125

func (o OpcodeType) String() string {
	switch o {
	case ContinuationOpcode:
		return "continuation"
	case TextOpcode:
		return "text"
	case BinaryOpcode:
		return "binary"
	case CloseOpcode:
		return "close"
	case PingOpcode:
		return "ping"
	case PongOpcode:
		return "pong"
	}
	return "reserved"
}

type Frame struct {
	Fin      bool
	Opcode   OpcodeType
	Reserved byte
	Masked   bool
	MaskKey  [4]byte
	Payload  []byte
}

// IsControl checks if the Frame is a control Frame identified by opcodes where the most significant bit of the opcode is 1
func (f *Frame) IsControl() bool {
	return f.Opcode&0x08 == 0x08
}

func (f *Frame) HasReservedOpcode() bool {
	return f.Opcode > 10 || (f.Opcode >= 3 && f.Opcode <= 7)
}

// CloseCode returns the status code of a close frame, or 0 when the payload carries none.
func (f *Frame) CloseCode() uint16 {
	if len(f.Payload) < 2 {
		return 0
	}
	return binary.BigEndian.Uint16(f.Payload[:2])
}
