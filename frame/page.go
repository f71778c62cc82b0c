package frame

import (
	"fmt"
)

// Paginate splits data into frames of at most MaxPayloadSize bytes.
//
// Pages are numbered from 0. When announce is true every page carries the
// page count in Total, otherwise Total is 0 and the sender must follow the
// pages with an End frame. Empty data yields a single empty page.
func Paginate(op Opcode, data []byte, announce bool) []*Frame {
	count := (len(data) + MaxPayloadSize - 1) / MaxPayloadSize
	if count == 0 {
		count = 1
	}

	var total uint16
	if announce {
		total = uint16(count) //nolint:gosec // a page count never approaches 65535 for device records
	}

	frames := make([]*Frame, 0, count)
	for i := range count {
		offset := i * MaxPayloadSize
		end := min(offset+MaxPayloadSize, len(data))

		var chunk []byte
		if end > offset {
			chunk = make([]byte, end-offset)
			copy(chunk, data[offset:end])
		}

		frames = append(frames, &Frame{
			Op:      op,
			Seq:     uint16(i), //nolint:gosec // see total
			Total:   total,
			Payload: chunk,
		})
	}

	return frames
}

// Assembler reassembles one paged response.
//
// The exchange ends after Total pages when the first page announces a
// count, or on an End frame when it does not. Both conventions are checked
// against the pages actually received.
type Assembler struct {
	op       Opcode
	expected int // announced page count, 0 when waiting for End
	pages    [][]byte
	size     int
	done     bool
}

// NewAssembler creates an assembler that accepts pages of opcode op.
func NewAssembler(op Opcode) *Assembler {
	return &Assembler{op: op}
}

// Add feeds the next frame and reports whether the exchange is complete.
//
// It returns ErrSequence for a page out of order or a page count that does
// not match, and ErrUnexpectedOpcode for a frame that is neither a page of
// the expected opcode nor End.
func (a *Assembler) Add(f *Frame) (bool, error) {
	if a.done {
		return true, fmt.Errorf("%w: %s after end of exchange", ErrSequence, f.Op)
	}

	if f.Op == OpEnd {
		m, err := f.Message()
		if err != nil {
			return false, err
		}
		end, _ := m.(End)
		if a.expected > 0 || int(end.Pages) != len(a.pages) {
			return false, fmt.Errorf("%w: end announces %d pages, received %d", ErrSequence, end.Pages, len(a.pages))
		}
		a.done = true

		return true, nil
	}

	if f.Op != a.op {
		return false, fmt.Errorf("%w: got %s, want %s", ErrUnexpectedOpcode, f.Op, a.op)
	}

	if int(f.Seq) != len(a.pages) {
		return false, fmt.Errorf("%w: got page %d, want %d", ErrSequence, f.Seq, len(a.pages))
	}

	if len(a.pages) == 0 {
		a.expected = int(f.Total)
	} else if int(f.Total) != a.expected {
		return false, fmt.Errorf("%w: page %d announces %d pages, first announced %d", ErrSequence, f.Seq, f.Total, a.expected)
	}

	a.pages = append(a.pages, f.Payload)
	a.size += len(f.Payload)

	if a.expected > 0 && len(a.pages) == a.expected {
		a.done = true
	}

	return a.done, nil
}

// Done reports whether the exchange is complete.
func (a *Assembler) Done() bool {
	return a.done
}

// Pages returns the number of pages received.
func (a *Assembler) Pages() int {
	return len(a.pages)
}

// Data returns the concatenated page payloads.
func (a *Assembler) Data() []byte {
	data := make([]byte, 0, a.size)
	for _, p := range a.pages {
		data = append(data, p...)
	}

	return data
}

// Reset prepares the assembler for a re-sent request.
func (a *Assembler) Reset() {
	a.expected = 0
	a.pages = a.pages[:0]
	a.size = 0
	a.done = false
}
