package frame

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// Message is the typed view of a frame. The set of implementations is
// closed: one type per opcode, with Page covering the paged responses.
type Message interface {
	Opcode() Opcode
	isMessage()
}

// Request is a Message sent by the host. Its arguments travel as the
// comma separated payload, as on the OC110 command line.
type Request interface {
	Message
	Args() []string
}

// ProbeRequest nudges a sleeping device. An awake device answers Ack.
type ProbeRequest struct{}

// IdentifyRequest asks for the manufacturer id.
type IdentifyRequest struct{}

// ListBottlesRequest asks for the records of every stored bottle.
type ListBottlesRequest struct{}

// BottleDetailRequest asks for one bottle record.
type BottleDetailRequest struct {
	Serial string
}

// HeadReadingsRequest asks for the readings of one head of a bottle.
type HeadReadingsRequest struct {
	Serial string
	Head   string
}

// CloseRequest ends the session; the device goes back to sleep.
type CloseRequest struct{}

// Ack acknowledges a probe or close. Text is "LOGON" after a wake.
type Ack struct {
	Text string
}

// Ident carries the manufacturer id.
type Ident struct {
	Model string
}

// Page is one part of a paged response.
type Page struct {
	Op    Opcode
	Seq   uint16
	Total uint16
	Data  []byte
}

// End terminates a paged response that did not announce its page count.
type End struct {
	Pages uint16
}

// ErrorReply is the device refusing a request, e.g. "INVALID BOTTLE".
type ErrorReply struct {
	Reason string
}

func (ProbeRequest) Opcode() Opcode        { return OpProbe }
func (IdentifyRequest) Opcode() Opcode     { return OpIdentify }
func (ListBottlesRequest) Opcode() Opcode  { return OpListBottles }
func (BottleDetailRequest) Opcode() Opcode { return OpBottleDetail }
func (HeadReadingsRequest) Opcode() Opcode { return OpHeadReadings }
func (CloseRequest) Opcode() Opcode        { return OpClose }
func (Ack) Opcode() Opcode                 { return OpAck }
func (Ident) Opcode() Opcode               { return OpIdent }
func (p Page) Opcode() Opcode              { return p.Op }
func (End) Opcode() Opcode                 { return OpEnd }
func (ErrorReply) Opcode() Opcode          { return OpError }

func (ProbeRequest) isMessage()        {}
func (IdentifyRequest) isMessage()     {}
func (ListBottlesRequest) isMessage()  {}
func (BottleDetailRequest) isMessage() {}
func (HeadReadingsRequest) isMessage() {}
func (CloseRequest) isMessage()        {}
func (Ack) isMessage()                 {}
func (Ident) isMessage()               {}
func (Page) isMessage()                {}
func (End) isMessage()                 {}
func (ErrorReply) isMessage()          {}

func (ProbeRequest) Args() []string          { return nil }
func (IdentifyRequest) Args() []string       { return nil }
func (ListBottlesRequest) Args() []string    { return nil }
func (r BottleDetailRequest) Args() []string { return []string{r.Serial} }
func (r HeadReadingsRequest) Args() []string { return []string{r.Serial, r.Head} }
func (CloseRequest) Args() []string          { return nil }

// NewFrame builds the frame that carries m.
func NewFrame(m Message) *Frame {
	f := &Frame{Op: m.Opcode()}

	switch v := m.(type) {
	case Request:
		if args := v.Args(); len(args) > 0 {
			f.Payload = []byte(strings.Join(args, ","))
		}
	case Ack:
		f.Payload = []byte(v.Text)
	case Ident:
		f.Payload = []byte(v.Model)
	case Page:
		f.Seq = v.Seq
		f.Total = v.Total
		f.Payload = v.Data
	case End:
		f.Payload = binary.BigEndian.AppendUint16(nil, v.Pages)
	case ErrorReply:
		f.Payload = []byte(v.Reason)
	}

	return f
}

// Message maps the frame to its typed variant.
//
// It returns ErrUnknownOpcode for opcodes outside the vocabulary, and
// ErrInvalidArgs or ErrCorrupt when the payload does not fit the opcode.
func (f *Frame) Message() (Message, error) {
	switch f.Op {
	case OpProbe:
		return ProbeRequest{}, nil
	case OpIdentify:
		return IdentifyRequest{}, nil
	case OpListBottles:
		return ListBottlesRequest{}, nil
	case OpClose:
		return CloseRequest{}, nil
	case OpBottleDetail:
		args := splitArgs(f.Payload)
		if len(args) != 1 || args[0] == "" {
			return nil, fmt.Errorf("%w: %s wants 1 argument, got %q", ErrInvalidArgs, f.Op, f.Payload)
		}

		return BottleDetailRequest{Serial: args[0]}, nil
	case OpHeadReadings:
		args := splitArgs(f.Payload)
		if len(args) != 2 || args[0] == "" || args[1] == "" {
			return nil, fmt.Errorf("%w: %s wants 2 arguments, got %q", ErrInvalidArgs, f.Op, f.Payload)
		}

		return HeadReadingsRequest{Serial: args[0], Head: args[1]}, nil
	case OpAck:
		return Ack{Text: string(f.Payload)}, nil
	case OpIdent:
		return Ident{Model: string(f.Payload)}, nil
	case OpBottleIndex, OpBottleRecord, OpReadings:
		return Page{Op: f.Op, Seq: f.Seq, Total: f.Total, Data: f.Payload}, nil
	case OpEnd:
		if len(f.Payload) != 2 {
			return nil, fmt.Errorf("%w: end frame payload is %d bytes, want 2", ErrCorrupt, len(f.Payload))
		}

		return End{Pages: binary.BigEndian.Uint16(f.Payload)}, nil
	case OpError:
		return ErrorReply{Reason: string(f.Payload)}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownOpcode, f.Op)
	}
}

func splitArgs(payload []byte) []string {
	if len(payload) == 0 {
		return nil
	}

	return strings.Split(string(payload), ",")
}
