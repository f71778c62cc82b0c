package frame

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

// Codec encodes and decodes frames with one Checksum strategy.
// A Codec is immutable and safe for concurrent use.
type Codec struct {
	checksum Checksum
}

// DefaultCodec uses the Additive16 checksum.
var DefaultCodec = NewCodec(Additive16)

// NewCodec creates a codec. A nil checksum selects Additive16.
func NewCodec(checksum Checksum) *Codec {
	if checksum == nil {
		checksum = Additive16
	}

	return &Codec{checksum: checksum}
}

// Checksum returns the codec's checksum strategy.
func (c *Codec) Checksum() Checksum {
	return c.checksum
}

// Encode serializes f. Payloads longer than MaxPayloadSize are truncated;
// use Paginate to split large payloads.
func (c *Codec) Encode(f *Frame) []byte {
	payload := f.Payload
	if len(payload) > MaxPayloadSize {
		payload = payload[:MaxPayloadSize]
	}

	buf := make([]byte, headerSize+len(payload)+checkSize)
	buf[0] = STX
	buf[1] = byte(f.Op)
	binary.BigEndian.PutUint16(buf[2:4], f.Seq)
	binary.BigEndian.PutUint16(buf[4:6], f.Total)
	binary.BigEndian.PutUint16(buf[6:8], uint16(len(payload))) //nolint:gosec // bounded by MaxPayloadSize
	copy(buf[headerSize:], payload)

	end := headerSize + len(payload)
	binary.BigEndian.PutUint16(buf[end:], c.checksum.Sum(buf[1:end]))

	return buf
}

// EncodeMessage serializes the frame carrying m.
func (c *Codec) EncodeMessage(m Message) []byte {
	return c.Encode(NewFrame(m))
}

// EncodeRequest serializes a host request.
func (c *Codec) EncodeRequest(r Request) []byte {
	return c.Encode(NewFrame(r))
}

// Decode parses the first frame in buf and returns it with the number of
// bytes consumed.
//
// Bytes before the first start marker are skipped and counted in n, and so
// is a start marker whose frame never completes when a valid frame follows
// it. The returned errors are:
//
//   - ErrIncomplete: buf ends inside a frame; n counts only the skipped prefix.
//   - ErrCorrupt: bad length or check; n reaches the next start marker after
//     the bad one, so decoding resumes on the next plausible frame.
//   - ErrUnknownOpcode: a well-formed frame with an unknown opcode; the frame
//     is returned and consumed.
func (c *Codec) Decode(buf []byte) (*Frame, int, error) {
	f, n, _, err := c.decode(buf)
	return f, n, err
}

// decode is Decode that also reports how many bytes were skipped before a
// start marker, for accounting.
func (c *Codec) decode(buf []byte) (f *Frame, n int, skipped int, err error) {
	start := bytes.IndexByte(buf, STX)
	if start < 0 {
		return nil, len(buf), len(buf), ErrIncomplete
	}
	buf = buf[start:]

	if len(buf) < headerSize {
		return c.decodeAfter(buf, start)
	}

	length := int(binary.BigEndian.Uint16(buf[6:8]))
	if length > MaxPayloadSize {
		n = start + resync(buf)
		return nil, n, n, fmt.Errorf("%w: payload length %d exceeds %d", ErrCorrupt, length, MaxPayloadSize)
	}

	end := headerSize + length
	if len(buf) < end+checkSize {
		return c.decodeAfter(buf, start)
	}

	wire := binary.BigEndian.Uint16(buf[end : end+checkSize])
	calc := c.checksum.Sum(buf[1:end])
	if wire != calc {
		n = start + resync(buf)
		return nil, n, n, fmt.Errorf("%w: %s check wire=0x%04X, computed=0x%04X", ErrCorrupt, c.checksum.Name(), wire, calc)
	}

	f = &Frame{
		Op:    Opcode(buf[1]),
		Seq:   binary.BigEndian.Uint16(buf[2:4]),
		Total: binary.BigEndian.Uint16(buf[4:6]),
	}
	if length > 0 {
		f.Payload = make([]byte, length)
		copy(f.Payload, buf[headerSize:end])
	}

	n = start + end + checkSize
	if !f.Op.Valid() {
		return f, n, start, fmt.Errorf("%w: %s", ErrUnknownOpcode, f.Op)
	}

	return f, n, start, nil
}

// decodeAfter handles a start marker at buf[0] whose frame is not complete
// yet. When a frame with a valid check follows a later start marker, the
// first marker was line noise and is skipped with the bytes up to the frame.
// Otherwise the partial frame stays buffered.
func (c *Codec) decodeAfter(buf []byte, start int) (*Frame, int, int, error) {
	next := resync(buf)
	if next < len(buf) {
		f, n, skipped, err := c.decode(buf[next:])
		if err == nil || errors.Is(err, ErrUnknownOpcode) {
			return f, start + next + n, start + next + skipped, err
		}
	}

	return nil, start, start, ErrIncomplete
}

// resync returns the offset of the next start marker after buf[0], or
// len(buf) when there is none.
func resync(buf []byte) int {
	next := bytes.IndexByte(buf[1:], STX)
	if next < 0 {
		return len(buf)
	}

	return 1 + next
}
