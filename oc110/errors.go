package oc110

import (
	"errors"
	"strings"

	"github.com/arloliu/go-oxitop/bottle"
	"github.com/arloliu/go-oxitop/frame"
	"github.com/arloliu/go-oxitop/transport"
)

// Sentinel errors of the session layer.
var (
	// ErrDeviceNotResponding indicates that no probe was answered within
	// the handshake budget. The unit is probably asleep; wake it and call
	// Connect again.
	ErrDeviceNotResponding = errors.New("oc110: device not responding")
	// ErrProtocol indicates frames that do not fit the exchange, or too
	// many corrupt frames in one exchange.
	ErrProtocol = errors.New("oc110: protocol error")
	// ErrBusy indicates a call while another operation is in progress.
	ErrBusy = errors.New("oc110: session busy")
	// ErrRejected indicates an Error frame from the device.
	ErrRejected = errors.New("oc110: request rejected")
	// ErrClosed indicates that the session was closed or cancelled.
	ErrClosed = errors.New("oc110: session closed")
	// ErrUnexpectedDevice indicates a device that does not identify as an OC110.
	ErrUnexpectedDevice = errors.New("oc110: unexpected device")
)

// Lower-layer errors, re-exported so callers need not import every layer.
var (
	ErrTransport       = transport.ErrTransport
	ErrTimeout         = transport.ErrTimeout
	ErrCorrupt         = frame.ErrCorrupt
	ErrUnknownOpcode   = frame.ErrUnknownOpcode
	ErrMalformedRecord = bottle.ErrMalformedRecord
	ErrBadPattern      = bottle.ErrBadPattern
	ErrInvalidWindow   = bottle.ErrInvalidWindow
)

// OpError describes which operation failed, and on which bottle and head.
type OpError struct {
	Op     string // "connect", "identify", "list", "bottle", "readings", "match", "close"
	Serial string // bottle serial, if any
	Head   string // head serial, if any
	Err    error
}

func (e *OpError) Error() string {
	var sb strings.Builder
	sb.WriteString(e.Op)
	if e.Serial != "" {
		sb.WriteString(" bottle ")
		sb.WriteString(e.Serial)
	}
	if e.Head != "" {
		sb.WriteString(" head ")
		sb.WriteString(e.Head)
	}
	sb.WriteString(": ")
	sb.WriteString(e.Err.Error())

	return sb.String()
}

func (e *OpError) Unwrap() error {
	return e.Err
}
