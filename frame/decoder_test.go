package frame

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecoder_ByteAtATime(t *testing.T) {
	c := NewCodec(nil)
	d := c.NewDecoder()
	wire := c.EncodeRequest(HeadReadingsRequest{Serial: "11022206", Head: "60108"})

	for i, b := range wire {
		_, _ = d.Write([]byte{b})
		f, err := d.Next()
		if i < len(wire)-1 {
			require.ErrorIs(t, err, ErrIncomplete)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, OpHeadReadings, f.Op)
	}
	assert.Zero(t, d.Buffered())
	assert.Zero(t, d.Discarded())
}

func TestDecoder_ResyncAfterGarbage(t *testing.T) {
	c := NewCodec(nil)
	d := c.NewDecoder()

	first := c.EncodeMessage(Ack{Text: "LOGON"})
	corrupt := c.EncodeMessage(Ident{Model: "OC110"})
	corrupt[9] ^= 0x01
	second := c.EncodeMessage(Ident{Model: "OC110"})

	_, _ = d.Write([]byte{0x00, 0x13, 0x7F})
	_, _ = d.Write(first)
	_, _ = d.Write(corrupt)
	_, _ = d.Write(second)

	f, err := d.Next()
	require.NoError(t, err)
	assert.Equal(t, OpAck, f.Op)
	assert.Equal(t, 3, d.Discarded())

	_, err = d.Next()
	require.ErrorIs(t, err, ErrCorrupt)
	assert.Equal(t, 3+len(corrupt), d.Discarded())

	f, err = d.Next()
	require.NoError(t, err)
	assert.Equal(t, OpIdent, f.Op)

	_, err = d.Next()
	require.ErrorIs(t, err, ErrIncomplete)
}

func TestDecoder_Reset(t *testing.T) {
	c := NewCodec(nil)
	d := c.NewDecoder()
	wire := c.EncodeMessage(Ack{})

	_, _ = d.Write(wire[:4])
	assert.Equal(t, 4, d.Buffered())
	d.Reset()
	assert.Zero(t, d.Buffered())
	assert.Equal(t, 4, d.Discarded())

	_, _ = d.Write(wire)
	f, err := d.Next()
	require.NoError(t, err)
	assert.Equal(t, OpAck, f.Op)
}

func TestDecoder_UnknownOpcodeConsumed(t *testing.T) {
	c := NewCodec(nil)
	d := c.NewDecoder()

	_, _ = d.Write(c.Encode(&Frame{Op: Opcode(0x42)}))
	_, _ = d.Write(c.EncodeMessage(End{Pages: 1}))

	f, err := d.Next()
	require.ErrorIs(t, err, ErrUnknownOpcode)
	assert.Equal(t, Opcode(0x42), f.Op)

	f, err = d.Next()
	require.NoError(t, err)
	assert.Equal(t, OpEnd, f.Op)
}

func TestDecoder_StartMarkerInGarbage(t *testing.T) {
	c := NewCodec(nil)
	d := c.NewDecoder()

	// a stray STX announcing a 64 byte payload that never arrives
	noise := []byte{STX, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x40}
	_, _ = d.Write(noise)
	_, _ = d.Write(c.EncodeMessage(Ack{Text: "LOGON"}))

	f, err := d.Next()
	require.NoError(t, err)
	assert.Equal(t, OpAck, f.Op)
	assert.Equal(t, []byte("LOGON"), f.Payload)
	assert.Equal(t, len(noise), d.Discarded())
	assert.Zero(t, d.Buffered())

	_, err = d.Next()
	require.ErrorIs(t, err, ErrIncomplete)
}

func TestDecoder_PartialFrameAfterNoiseStaysBuffered(t *testing.T) {
	c := NewCodec(nil)
	d := c.NewDecoder()
	wire := c.EncodeMessage(Ident{Model: "OC110"})

	_, _ = d.Write([]byte{STX, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x40})
	_, _ = d.Write(wire[:6])

	_, err := d.Next()
	require.ErrorIs(t, err, ErrIncomplete)
	assert.Zero(t, d.Discarded())

	_, _ = d.Write(wire[6:])
	f, err := d.Next()
	require.NoError(t, err)
	assert.Equal(t, OpIdent, f.Op)
	assert.Equal(t, 8, d.Discarded())
}
