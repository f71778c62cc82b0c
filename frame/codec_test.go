package frame

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/sigurn/crc16"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChecksum_Additive16(t *testing.T) {
	assert.Equal(t, uint16(0), Additive16.Sum(nil))
	assert.Equal(t, uint16(0x01+0x02+0xFF), Additive16.Sum([]byte{0x01, 0x02, 0xFF}))

	// truncation to 16 bits
	data := bytes.Repeat([]byte{0xFF}, 300)
	assert.Equal(t, uint16((300*0xFF)&0xFFFF), Additive16.Sum(data))
}

func TestChecksum_CRC16(t *testing.T) {
	// catalogue check value of CRC-16/MODBUS over "123456789"
	assert.Equal(t, crc16.CRC16_MODBUS.Check, CRC16Modbus.Sum([]byte("123456789")))
	assert.Equal(t, "crc-16/modbus", CRC16Modbus.Name())

	xmodem := NewCRC16(crc16.CRC16_XMODEM)
	assert.Equal(t, crc16.CRC16_XMODEM.Check, xmodem.Sum([]byte("123456789")))
}

func TestChecksumByName(t *testing.T) {
	cs, err := ChecksumByName("additive16")
	require.NoError(t, err)
	assert.Equal(t, Additive16, cs)

	cs, err = ChecksumByName("CRC16")
	require.NoError(t, err)
	assert.Equal(t, CRC16Modbus, cs)

	cs, err = ChecksumByName("CRC-16/XMODEM")
	require.NoError(t, err)
	assert.Equal(t, "crc-16/xmodem", cs.Name())

	_, err = ChecksumByName("md5")
	require.Error(t, err)
}

func TestCodec_EncodeLayout(t *testing.T) {
	c := NewCodec(nil)
	wire := c.Encode(&Frame{Op: OpReadings, Seq: 1, Total: 3, Payload: []byte("ab")})

	require.Len(t, wire, headerSize+2+checkSize)
	assert.Equal(t, STX, wire[0])
	assert.Equal(t, byte(OpReadings), wire[1])
	assert.Equal(t, uint16(1), binary.BigEndian.Uint16(wire[2:4]))
	assert.Equal(t, uint16(3), binary.BigEndian.Uint16(wire[4:6]))
	assert.Equal(t, uint16(2), binary.BigEndian.Uint16(wire[6:8]))
	assert.Equal(t, []byte("ab"), wire[8:10])

	want := uint16(byte(OpReadings)) + 1 + 3 + 2 + 'a' + 'b'
	assert.Equal(t, want, binary.BigEndian.Uint16(wire[10:12]))
}

func TestCodec_RoundTrip(t *testing.T) {
	for _, cs := range []Checksum{Additive16, CRC16Modbus} {
		t.Run(cs.Name(), func(t *testing.T) {
			c := NewCodec(cs)
			in := &Frame{Op: OpBottleRecord, Seq: 2, Total: 0, Payload: bytes.Repeat([]byte{'9'}, MaxPayloadSize)}

			wire := c.Encode(in)
			out, n, err := c.Decode(wire)
			require.NoError(t, err)
			assert.Equal(t, len(wire), n)
			assert.Equal(t, in, out)
		})
	}
}

func TestCodec_EncodeTruncatesPayload(t *testing.T) {
	c := NewCodec(nil)
	wire := c.Encode(&Frame{Op: OpReadings, Payload: make([]byte, MaxPayloadSize+10)})
	assert.Len(t, wire, MaxFrameSize)
}

func TestCodec_DecodeIncomplete(t *testing.T) {
	c := NewCodec(nil)
	wire := c.EncodeRequest(BottleDetailRequest{Serial: "11022206"})

	for i := 0; i < len(wire); i++ {
		f, n, err := c.Decode(wire[:i])
		require.ErrorIs(t, err, ErrIncomplete, "prefix %d", i)
		assert.Nil(t, f)
		assert.Zero(t, n)
	}

	// garbage only
	_, n, err := c.Decode([]byte{0xAA, 0xBB})
	require.ErrorIs(t, err, ErrIncomplete)
	assert.Equal(t, 2, n)

	// garbage then a partial frame: only the garbage is consumed
	_, n, err = c.Decode(append([]byte{0xAA}, wire[:5]...))
	require.ErrorIs(t, err, ErrIncomplete)
	assert.Equal(t, 1, n)
}

func TestCodec_DecodeSkipsGarbage(t *testing.T) {
	c := NewCodec(nil)
	wire := c.EncodeMessage(Ack{Text: "LOGON"})

	buf := append([]byte("BIOS OC Version 1.0\r\n"), wire...)
	f, n, err := c.Decode(buf)
	require.NoError(t, err)
	assert.Equal(t, len(buf), n)
	assert.Equal(t, OpAck, f.Op)
	assert.Equal(t, []byte("LOGON"), f.Payload)
}

func TestCodec_DecodeCorrupt(t *testing.T) {
	c := NewCodec(nil)
	// no STX inside this frame, so the whole frame is dropped
	bad := c.EncodeMessage(Ack{Text: "BUSY"})
	bad[len(bad)-1] ^= 0xFF
	good := c.EncodeMessage(Ident{Model: "OC110"})

	buf := append(append([]byte{}, bad...), good...)
	_, n, err := c.Decode(buf)
	require.ErrorIs(t, err, ErrCorrupt)
	assert.Equal(t, len(bad), n, "corrupt frame is dropped up to the next start marker")

	f, n, err := c.Decode(buf[n:])
	require.NoError(t, err)
	assert.Equal(t, len(good), n)
	assert.Equal(t, OpIdent, f.Op)
}

func TestCodec_DecodeCorruptLength(t *testing.T) {
	c := NewCodec(nil)
	buf := []byte{STX, byte(OpAck), 0, 0, 0, 0, 0xFF, 0xFF, 'x', 'y'}

	_, n, err := c.Decode(buf)
	require.ErrorIs(t, err, ErrCorrupt)
	assert.Equal(t, len(buf), n)
}

func TestCodec_DecodeUnknownOpcode(t *testing.T) {
	c := NewCodec(nil)
	wire := c.Encode(&Frame{Op: Opcode(0x55), Payload: []byte{1}})

	f, n, err := c.Decode(wire)
	require.ErrorIs(t, err, ErrUnknownOpcode)
	require.NotNil(t, f)
	assert.Equal(t, Opcode(0x55), f.Op)
	assert.Equal(t, len(wire), n)
	assert.Equal(t, "Opcode(0x55)", f.Op.String())
}

func TestCodec_ChecksumMismatchBetweenStrategies(t *testing.T) {
	wire := NewCodec(Additive16).EncodeRequest(ListBottlesRequest{})
	_, _, err := NewCodec(CRC16Modbus).Decode(wire)
	require.ErrorIs(t, err, ErrCorrupt)
}
