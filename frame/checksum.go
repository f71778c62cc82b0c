package frame

import (
	"fmt"
	"strings"

	"github.com/sigurn/crc16"
)

// Checksum computes the trailing check of a frame.
//
// The OC110 framing is reverse engineered, so the check is a strategy that
// can be replaced without touching the codec or the session.
type Checksum interface {
	// Name identifies the strategy in configuration and logs.
	Name() string
	// Sum computes the check over data.
	Sum(data []byte) uint16
}

type additive16 struct{}

// Additive16 sums all bytes and truncates to 16 bits, the way the OC110
// checksums its transmitted characters.
var Additive16 Checksum = additive16{}

func (additive16) Name() string { return "additive16" }

func (additive16) Sum(data []byte) uint16 {
	var sum uint32
	for _, v := range data {
		sum += uint32(v)
	}

	return uint16(sum & 0xFFFF) //nolint:gosec // intentional truncation
}

// CRC16 is a table driven CRC-16 strategy.
type CRC16 struct {
	table *crc16.Table
	name  string
}

// NewCRC16 builds a CRC-16 strategy from the given parameters, for example
// crc16.CRC16_MODBUS.
func NewCRC16(params crc16.Params) *CRC16 {
	return &CRC16{
		table: crc16.MakeTable(params),
		name:  strings.ToLower(params.Name),
	}
}

// CRC16Modbus is CRC-16/MODBUS.
var CRC16Modbus Checksum = NewCRC16(crc16.CRC16_MODBUS)

func (c *CRC16) Name() string { return c.name }

func (c *CRC16) Sum(data []byte) uint16 {
	return crc16.Checksum(data, c.table)
}

var checksums = map[string]Checksum{
	Additive16.Name():    Additive16,
	"crc16":              CRC16Modbus,
	CRC16Modbus.Name():   CRC16Modbus,
	"crc-16/ccitt-false": NewCRC16(crc16.CRC16_CCITT_FALSE),
	"crc-16/xmodem":      NewCRC16(crc16.CRC16_XMODEM),
	"crc-16/kermit":      NewCRC16(crc16.CRC16_KERMIT),
}

// ChecksumByName returns a strategy by name: "additive16", "crc16"
// (CRC-16/MODBUS), or a CRC-16 catalogue name such as "CRC-16/XMODEM".
// Names are case-insensitive.
func ChecksumByName(name string) (Checksum, error) {
	cs, ok := checksums[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("frame: unknown checksum %q", name)
	}

	return cs, nil
}
