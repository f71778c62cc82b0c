// Package frame implements the OC110 wire framing: a start marker, an opcode,
// page sequencing, a length-prefixed payload and a trailing 16-bit check
// computed by a swappable Checksum strategy.
//
// A frame on the wire is:
//
//	[STX(1)][Opcode(1)][Seq(2)][Total(2)][Length(2)][Payload(0-244)][Check(2)]
//
// Multi-byte fields are big-endian. The check covers Opcode through Payload.
package frame

import (
	"errors"
	"fmt"
)

// STX is the start marker of every frame.
const STX byte = 0x02

// MaxPayloadSize is the maximum number of payload bytes in a single frame.
const MaxPayloadSize = 244

// headerSize is STX + opcode + seq + total + length.
const headerSize = 8

// checkSize is the size of the trailing check in bytes.
const checkSize = 2

// MaxFrameSize is the largest possible encoded frame.
const MaxFrameSize = headerSize + MaxPayloadSize + checkSize

var (
	// ErrIncomplete means the buffer holds the beginning of a frame and more
	// bytes are needed. It is not a failure.
	ErrIncomplete = errors.New("incomplete frame")
	// ErrCorrupt means a frame failed its length or checksum validation.
	ErrCorrupt = errors.New("corrupt frame")
	// ErrUnknownOpcode means a well-formed frame carried an opcode outside the vocabulary.
	ErrUnknownOpcode = errors.New("unknown opcode")
	// ErrSequence means a page arrived out of order or a page count did not match.
	ErrSequence = errors.New("page out of sequence")
	// ErrUnexpectedOpcode means a valid frame arrived that does not belong to the exchange.
	ErrUnexpectedOpcode = errors.New("unexpected opcode")
	// ErrInvalidArgs means a request payload did not carry the arguments its opcode needs.
	ErrInvalidArgs = errors.New("invalid arguments")
)

// Opcode identifies the operation a frame carries.
type Opcode byte

// Request opcodes, sent by the host.
const (
	OpProbe        Opcode = 0x10 // wake nudge
	OpIdentify     Opcode = 0x11 // MAID
	OpListBottles  Opcode = 0x12 // GAPB
	OpBottleDetail Opcode = 0x13 // GPRB
	OpHeadReadings Opcode = 0x14 // GMSK
	OpClose        Opcode = 0x1F // CLOC
)

// Response opcodes, sent by the device.
const (
	OpAck          Opcode = 0x80
	OpIdent        Opcode = 0x81
	OpBottleIndex  Opcode = 0x82
	OpBottleRecord Opcode = 0x83
	OpReadings     Opcode = 0x84
	OpEnd          Opcode = 0x8E
	OpError        Opcode = 0x8F
)

var opcodeNames = map[Opcode]string{
	OpProbe:        "Probe",
	OpIdentify:     "Identify",
	OpListBottles:  "ListBottles",
	OpBottleDetail: "BottleDetail",
	OpHeadReadings: "HeadReadings",
	OpClose:        "Close",
	OpAck:          "Ack",
	OpIdent:        "Ident",
	OpBottleIndex:  "BottleIndex",
	OpBottleRecord: "BottleRecord",
	OpReadings:     "Readings",
	OpEnd:          "End",
	OpError:        "Error",
}

// String returns the opcode name, or its hex value when unknown.
func (op Opcode) String() string {
	if name, ok := opcodeNames[op]; ok {
		return name
	}

	return fmt.Sprintf("Opcode(0x%02X)", byte(op))
}

// Valid reports whether op belongs to the vocabulary.
func (op Opcode) Valid() bool {
	_, ok := opcodeNames[op]
	return ok
}

// IsRequest reports whether op is sent by the host.
func (op Opcode) IsRequest() bool {
	return op.Valid() && op&0x80 == 0
}

// IsPaged reports whether op carries a page of a multi-frame response.
func (op Opcode) IsPaged() bool {
	return op == OpBottleIndex || op == OpBottleRecord || op == OpReadings
}

// Frame is one decoded unit of the wire protocol.
type Frame struct {
	Op      Opcode
	Seq     uint16 // 0-based page index within an exchange
	Total   uint16 // pages in the exchange, 0 when terminated by an End frame
	Payload []byte
}

// String returns a short description for logs.
func (f *Frame) String() string {
	return fmt.Sprintf("%s seq=%d total=%d len=%d", f.Op, f.Seq, f.Total, len(f.Payload))
}
