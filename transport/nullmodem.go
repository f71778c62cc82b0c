package transport

import (
	"fmt"
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/arloliu/go-oxitop/internal/pool"
	"github.com/arloliu/go-oxitop/internal/queue"
)

const nullPrefix = "null:"

// registry holds the unclaimed client ends of listening null-modems.
var registry = xsync.NewMapOf[string, *NullModemPort]()

// NullModemPort is one end of an in-memory crossed serial cable.
type NullModemPort struct {
	streamReader

	out       *queue.ByteStream
	byteDelay time.Duration
	link      *nullLink
}

var _ Channel = (*NullModemPort)(nil)

// nullLink is the state shared by both ends of a pair.
type nullLink struct {
	name      string
	closeOnce sync.Once
	done      chan struct{}
	a2b       *queue.ByteStream
	b2a       *queue.ByteStream
}

// NullModemOption configures a null-modem pair.
type NullModemOption func(*nullModemConfig)

type nullModemConfig struct {
	timeout   time.Duration
	byteDelay time.Duration
}

// WithReadTimeout sets the read timeout both ends use when no deadline is set.
func WithReadTimeout(d time.Duration) NullModemOption {
	return func(c *nullModemConfig) { c.timeout = d }
}

// WithByteDelay delays every write by len(p)*d, emulating the line speed.
// At 9600 baud 8N1 one byte takes about 1.04ms.
func WithByteDelay(d time.Duration) NullModemOption {
	return func(c *nullModemConfig) { c.byteDelay = d }
}

// NewNullModem creates a linked pair of ports. Bytes written to one end are
// read at the other. Closing either end closes both; the peer can still read
// what was already written before reads fail with ErrClosed.
func NewNullModem(name string, opts ...NullModemOption) (dte, dce *NullModemPort) {
	cfg := &nullModemConfig{timeout: DefaultTimeout}
	for _, opt := range opts {
		opt(cfg)
	}

	link := &nullLink{
		name: name,
		done: make(chan struct{}),
		a2b:  queue.NewByteStream(),
		b2a:  queue.NewByteStream(),
	}

	dte = &NullModemPort{
		streamReader: streamReader{name: nullPrefix + name, in: link.b2a, timeout: cfg.timeout, done: link.done},
		out:          link.a2b,
		byteDelay:    cfg.byteDelay,
		link:         link,
	}
	dce = &NullModemPort{
		streamReader: streamReader{name: nullPrefix + name, in: link.a2b, timeout: cfg.timeout, done: link.done},
		out:          link.b2a,
		byteDelay:    cfg.byteDelay,
		link:         link,
	}

	return dte, dce
}

// Listen creates a null-modem pair, registers its client end under name for
// Open("null:<name>") and returns the device end. It fails when name is
// already listening.
func Listen(name string, opts ...NullModemOption) (*NullModemPort, error) {
	dte, dce := NewNullModem(name, opts...)
	if _, loaded := registry.LoadOrStore(name, dte); loaded {
		return nil, fmt.Errorf("%w: null-modem %q already listening", ErrTransport, name)
	}

	return dce, nil
}

func claimNullModem(name string, timeout time.Duration) (Channel, error) {
	port, ok := registry.LoadAndDelete(name)
	if !ok {
		return nil, fmt.Errorf("%w: no null-modem listening on %q", ErrTransport, name)
	}
	_ = port.SetTimeout(timeout)

	return port, nil
}

func (p *NullModemPort) Name() string {
	return p.name
}

// SetTimeout changes the read timeout used when no deadline is set.
func (p *NullModemPort) SetTimeout(d time.Duration) error {
	p.mu.Lock()
	p.timeout = d
	p.mu.Unlock()

	return nil
}

func (p *NullModemPort) Read(b []byte) (int, error) {
	return p.read(b)
}

func (p *NullModemPort) Write(b []byte) (int, error) {
	select {
	case <-p.link.done:
		return 0, fmt.Errorf("%s: %w", p.name, ErrClosed)
	default:
	}

	if p.byteDelay > 0 && len(b) > 0 {
		t := pool.GetTimer(p.byteDelay * time.Duration(len(b)))
		select {
		case <-p.link.done:
			pool.PutTimer(t)
			return 0, fmt.Errorf("%s: %w", p.name, ErrClosed)
		case <-t.C:
			pool.PutTimer(t)
		}
	}

	if !p.out.Write(b) {
		return 0, fmt.Errorf("%s: %w", p.name, ErrClosed)
	}

	return len(b), nil
}

// Close closes both ends of the pair and unregisters an unclaimed client end.
func (p *NullModemPort) Close() error {
	p.link.closeOnce.Do(func() {
		close(p.link.done)
		p.link.a2b.Close()
		p.link.b2a.Close()
		registry.Compute(p.link.name, func(old *NullModemPort, loaded bool) (*NullModemPort, bool) {
			return old, !loaded || old.link == p.link
		})
	})

	return nil
}
