// Package transport provides the byte channels an OC110 session talks over:
// physical serial ports, websocket serial bridges and in-memory null-modem
// pairs for tests and the emulator.
package transport

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
)

var (
	// ErrTransport indicates that a channel could not be opened or failed.
	ErrTransport = errors.New("transport error")
	// ErrTimeout indicates that a read deadline passed without data.
	ErrTimeout = errors.New("read timeout")
	// ErrClosed indicates that the channel or its peer was closed.
	ErrClosed = errors.New("channel closed")
)

// DefaultTimeout is the read timeout used when Open is given a non-positive one.
const DefaultTimeout = time.Second

// Channel is a bidirectional byte stream with read deadlines.
//
// Read returns an error wrapping ErrTimeout when the deadline passes without
// any byte arriving, and ErrClosed once the channel is closed.
type Channel interface {
	io.ReadWriteCloser
	// SetReadDeadline sets the deadline for subsequent reads. A zero value
	// restores the timeout the channel was opened with.
	SetReadDeadline(t time.Time) error
	// Name returns the identifier the channel was opened with.
	Name() string
}

// Option configures Open.
type Option interface {
	apply(*openOptions)
}

type openOptions struct {
	baudRate   int
	username   string
	password   string
	skipVerify bool
}

type optFunc func(*openOptions)

func (f optFunc) apply(o *openOptions) { f(o) }

// WithBaudRate overrides the serial line speed. The OC110 runs at 9600 baud.
func WithBaudRate(baud int) Option {
	return optFunc(func(o *openOptions) { o.baudRate = baud })
}

// WithCredentials sets HTTP basic auth credentials for websocket bridges.
func WithCredentials(username, password string) Option {
	return optFunc(func(o *openOptions) {
		o.username = username
		o.password = password
	})
}

// WithInsecureSkipVerify disables TLS certificate checks for wss:// bridges.
func WithInsecureSkipVerify() Option {
	return optFunc(func(o *openOptions) { o.skipVerify = true })
}

// Open opens the channel named by identifier:
//
//   - "null:<name>" claims the client end of a null-modem registered with Listen.
//   - "ws://..." or "wss://..." dials a websocket serial bridge.
//   - anything else is a serial port path (COM1, /dev/ttyUSB0).
//
// Errors wrap ErrTransport.
func Open(identifier string, timeout time.Duration, opts ...Option) (Channel, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	o := &openOptions{baudRate: DefaultBaudRate}
	for _, opt := range opts {
		opt.apply(o)
	}

	switch {
	case identifier == "":
		return nil, fmt.Errorf("%w: empty identifier", ErrTransport)
	case strings.HasPrefix(identifier, nullPrefix):
		return claimNullModem(strings.TrimPrefix(identifier, nullPrefix), timeout)
	case strings.HasPrefix(identifier, "ws://"), strings.HasPrefix(identifier, "wss://"):
		return dialWebSocket(identifier, timeout, o)
	default:
		return openSerial(identifier, timeout, o)
	}
}
