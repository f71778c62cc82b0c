package frame

import (
	"errors"
)

// Decoder decodes a byte stream frame by frame. Write appends received
// bytes; Next returns frames until it reports ErrIncomplete.
//
// A Decoder is not safe for concurrent use.
type Decoder struct {
	codec     *Codec
	buf       []byte
	discarded int
}

// NewDecoder creates a streaming decoder for the codec.
func (c *Codec) NewDecoder() *Decoder {
	return &Decoder{
		codec: c,
		buf:   make([]byte, 0, MaxFrameSize),
	}
}

// Write appends p to the decode buffer. It never fails.
func (d *Decoder) Write(p []byte) (int, error) {
	d.buf = append(d.buf, p...)
	return len(p), nil
}

// Next decodes the next buffered frame.
//
// ErrIncomplete means more bytes are needed. On ErrCorrupt the bad bytes
// are already dropped, so calling Next again continues with the next
// plausible frame. On ErrUnknownOpcode the frame is returned and consumed.
func (d *Decoder) Next() (*Frame, error) {
	f, n, skipped, err := d.codec.decode(d.buf)
	d.discarded += skipped
	d.consume(n)

	if err != nil && !errors.Is(err, ErrUnknownOpcode) {
		return nil, err
	}

	return f, err
}

// Buffered returns the number of undecoded bytes.
func (d *Decoder) Buffered() int {
	return len(d.buf)
}

// Discarded returns the number of bytes dropped as garbage or corruption
// since the decoder was created.
func (d *Decoder) Discarded() int {
	return d.discarded
}

// Reset drops all buffered bytes.
func (d *Decoder) Reset() {
	d.discarded += len(d.buf)
	d.buf = d.buf[:0]
}

func (d *Decoder) consume(n int) {
	if n <= 0 {
		return
	}
	if n >= len(d.buf) {
		d.buf = d.buf[:0]
		return
	}
	rest := copy(d.buf, d.buf[n:])
	d.buf = d.buf[:rest]
}
