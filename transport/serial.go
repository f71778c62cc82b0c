package transport

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"go.bug.st/serial"
)

// DefaultBaudRate is the OC110 line speed.
const DefaultBaudRate = 9600

// serialChannel wraps a physical serial port opened at 8N1 with RTS asserted.
type serialChannel struct {
	port    serial.Port
	name    string
	timeout time.Duration

	mu     sync.Mutex
	closed bool
}

var _ Channel = (*serialChannel)(nil)

func openSerial(path string, timeout time.Duration, o *openOptions) (Channel, error) {
	mode := &serial.Mode{
		BaudRate: o.baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, fmt.Errorf("%w: open serial port %s: %w", ErrTransport, path, err)
	}

	// The OC110 only talks once RTS is raised.
	if err := port.SetRTS(true); err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("%w: set RTS on %s: %w", ErrTransport, path, err)
	}

	if err := port.SetReadTimeout(timeout); err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("%w: set read timeout on %s: %w", ErrTransport, path, err)
	}

	return &serialChannel{port: port, name: path, timeout: timeout}, nil
}

func (s *serialChannel) Name() string {
	return s.name
}

// Read maps the port's (0, nil) timeout result to ErrTimeout.
func (s *serialChannel) Read(p []byte) (int, error) {
	n, err := s.port.Read(p)
	if err != nil {
		if s.isClosed() {
			return n, fmt.Errorf("%s: %w", s.name, ErrClosed)
		}
		var portErr *serial.PortError
		if errors.As(err, &portErr) && portErr.Code() == serial.PortClosed {
			return n, fmt.Errorf("%s: %w", s.name, ErrClosed)
		}

		return n, fmt.Errorf("%w: read %s: %w", ErrTransport, s.name, err)
	}
	if n == 0 && len(p) > 0 {
		return 0, fmt.Errorf("%s: %w", s.name, ErrTimeout)
	}

	return n, nil
}

func (s *serialChannel) Write(p []byte) (int, error) {
	if s.isClosed() {
		return 0, fmt.Errorf("%s: %w", s.name, ErrClosed)
	}

	n, err := s.port.Write(p)
	if err != nil {
		return n, fmt.Errorf("%w: write %s: %w", ErrTransport, s.name, err)
	}

	return n, nil
}

// SetReadDeadline converts t into the port's relative read timeout.
func (s *serialChannel) SetReadDeadline(t time.Time) error {
	timeout := s.timeout
	if !t.IsZero() {
		// a zero timeout makes the port return immediately
		timeout = max(time.Until(t), 0)
	}

	if err := s.port.SetReadTimeout(timeout); err != nil {
		return fmt.Errorf("%w: set read timeout on %s: %w", ErrTransport, s.name, err)
	}

	return nil
}

func (s *serialChannel) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	if err := s.port.Close(); err != nil {
		return fmt.Errorf("%w: close %s: %w", ErrTransport, s.name, err)
	}

	return nil
}

func (s *serialChannel) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.closed
}
