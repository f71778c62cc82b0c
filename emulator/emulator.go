// Package emulator implements an in-process OC110 data logger that answers
// the frame protocol over any transport.Channel.
//
// Every connection gets its own handler state: a freshly connected device
// is asleep and answers nothing but probes until it has been nudged awake.
// The Dataset is shared read-only between connections.
package emulator

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/arloliu/go-oxitop/bottle"
	"github.com/arloliu/go-oxitop/frame"
	"github.com/arloliu/go-oxitop/internal/pool"
	"github.com/arloliu/go-oxitop/logger"
	"github.com/arloliu/go-oxitop/transport"
)

// ErrEmulatorClosed is returned by Serve after Close.
var ErrEmulatorClosed = errors.New("emulator closed")

// Device replies.
const (
	Model       = "OC110"
	LogonPrompt = "LOGON"
	ClosePrompt = ">"

	ReasonInvalidBottle  = "INVALID BOTTLE"
	ReasonInvalidHead    = "INVALID HEAD"
	ReasonInvalidCommand = "INVALID COMMAND"
	ReasonInvalidArgs    = "INVALID ARGS"
)

// Emulator serves a Dataset the way an OC110 does.
type Emulator struct {
	cfg     *config
	dataset *Dataset
	logger  logger.Logger
	metrics Metrics

	conns  *xsync.MapOf[uint64, transport.Channel]
	nextID atomic.Uint64
	closed atomic.Bool
}

// New creates an emulator serving ds, or DefaultDataset() when ds is nil.
func New(ds *Dataset, opts ...Option) (*Emulator, error) {
	cfg, err := newConfig(opts)
	if err != nil {
		return nil, err
	}

	if ds == nil {
		ds = DefaultDataset()
	}

	return &Emulator{
		cfg:     cfg,
		dataset: ds,
		logger:  cfg.logger,
		conns:   xsync.NewMapOf[uint64, transport.Channel](),
	}, nil
}

// Dataset returns the served dataset.
func (e *Emulator) Dataset() *Dataset {
	return e.dataset
}

// Metrics returns the emulator's counters.
func (e *Emulator) Metrics() *Metrics {
	return &e.metrics
}

// Bottle returns a copy of the bottle with the given serial as the device
// reports it, with Completed set from the emulator clock. The dash of the
// serial is optional.
func (e *Emulator) Bottle(serial string) (*bottle.Bottle, bool) {
	b := e.dataset.lookup(serial)
	if b == nil {
		return nil, false
	}

	reported := b.Clone()
	reported.Completed = b.CompletedAt(e.cfg.clock())

	return reported, true
}

// Connections returns the number of channels being served.
func (e *Emulator) Connections() int {
	return e.conns.Size()
}

// Serve answers requests on ch until ch is closed, ctx is done or the
// emulator is closed. ch is closed when Serve returns.
//
// It returns nil when the channel was closed and ctx.Err() on cancellation.
func (e *Emulator) Serve(ctx context.Context, ch transport.Channel) error {
	id := e.nextID.Add(1)
	e.conns.Store(id, ch)
	defer e.conns.Delete(id)
	defer ch.Close()

	if e.closed.Load() {
		return ErrEmulatorClosed
	}

	stop := context.AfterFunc(ctx, func() { _ = ch.Close() })
	defer stop()

	e.metrics.incConnectionCount()

	h := &handler{
		e:      e,
		ch:     ch,
		dec:    e.cfg.codec.NewDecoder(),
		logger: e.logger.With("channel", ch.Name()),
	}
	h.logger.Debug("emulator: serving")

	err := h.run(ctx)
	h.logger.Debug("emulator: stopped", "error", err)

	if ctx.Err() != nil {
		return ctx.Err()
	}
	if errors.Is(err, transport.ErrClosed) {
		return nil
	}

	return err
}

// Close closes every served channel and makes later Serve calls fail.
func (e *Emulator) Close() error {
	e.closed.Store(true)
	e.conns.Range(func(_ uint64, ch transport.Channel) bool {
		_ = ch.Close()
		return true
	})

	return nil
}

// handler is the device state of one connection.
type handler struct {
	e      *Emulator
	ch     transport.Channel
	dec    *frame.Decoder
	logger logger.Logger

	awake     bool
	probes    int // probes ignored since the device went to sleep
	corrupted int // page frames sent with a broken check
}

func (h *handler) run(ctx context.Context) error {
	buf := make([]byte, frame.MaxFrameSize)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		n, err := h.ch.Read(buf)
		if n > 0 {
			_, _ = h.dec.Write(buf[:n])
			if err := h.dispatch(ctx); err != nil {
				return err
			}
		}

		if err != nil {
			if errors.Is(err, transport.ErrTimeout) {
				continue
			}

			return err
		}
	}
}

// dispatch answers every complete frame in the decoder.
func (h *handler) dispatch(ctx context.Context) error {
	for {
		f, err := h.dec.Next()
		switch {
		case errors.Is(err, frame.ErrIncomplete):
			return nil
		case errors.Is(err, frame.ErrCorrupt):
			// the host times out and asks again
			h.e.metrics.incCorruptRecvCount()
			h.logger.Debug("emulator: corrupt frame ignored", "error", err)

			continue
		}

		if err := h.send(ctx, h.respond(f)); err != nil {
			return err
		}
	}
}

// respond returns the frames that answer f.
func (h *handler) respond(f *frame.Frame) []*frame.Frame {
	msg, err := f.Message()

	if !h.awake {
		if _, ok := msg.(frame.ProbeRequest); !ok {
			h.logger.Debug("emulator: asleep, frame ignored", "opcode", f.Op)
			return nil
		}
		if h.probes < h.e.cfg.ignoreProbes {
			h.probes++
			h.e.metrics.incProbeIgnoredCount()
			h.logger.Debug("emulator: probe ignored", "probe", h.probes, "ignoreProbes", h.e.cfg.ignoreProbes)

			return nil
		}

		h.awake = true
		h.logger.Debug("emulator: woken up")

		return reply(frame.Ack{Text: LogonPrompt})
	}

	h.e.metrics.incRequestCount()

	switch {
	case errors.Is(err, frame.ErrInvalidArgs):
		return h.reject(f, ReasonInvalidArgs)
	case err != nil:
		return h.reject(f, ReasonInvalidCommand)
	}

	now := h.e.cfg.clock()
	ds := h.e.dataset

	switch m := msg.(type) {
	case frame.ProbeRequest:
		return reply(frame.Ack{Text: LogonPrompt})

	case frame.IdentifyRequest:
		return reply(frame.Ident{Model: Model})

	case frame.ListBottlesRequest:
		reported := make([]*bottle.Bottle, len(ds.bottles))
		for i, b := range ds.bottles {
			reported[i] = withStatus(b, now)
		}

		return h.pages(frame.OpBottleIndex, bottle.FormatIndex(reported))

	case frame.BottleDetailRequest:
		b := ds.lookup(m.Serial)
		if b == nil {
			return h.reject(f, ReasonInvalidBottle)
		}

		return h.pages(frame.OpBottleRecord, bottle.FormatRecord(withStatus(b, now)))

	case frame.HeadReadingsRequest:
		b := ds.lookup(m.Serial)
		if b == nil {
			return h.reject(f, ReasonInvalidBottle)
		}
		head := b.Head(m.Head)
		if head == nil {
			return h.reject(f, ReasonInvalidHead)
		}

		return h.pages(frame.OpReadings, bottle.FormatReadings(b, head))

	case frame.CloseRequest:
		// the unit restarts and needs waking again
		h.awake = false
		h.probes = 0
		h.logger.Debug("emulator: connection closed by host")

		return reply(frame.Ack{Text: ClosePrompt})

	default:
		// responses are never valid requests
		return h.reject(f, ReasonInvalidCommand)
	}
}

func (h *handler) reject(f *frame.Frame, reason string) []*frame.Frame {
	h.e.metrics.incErrorReplyCount()
	h.logger.Debug("emulator: request rejected", "opcode", f.Op, "payload", string(f.Payload), "reason", reason)

	return reply(frame.ErrorReply{Reason: reason})
}

func (h *handler) pages(op frame.Opcode, data []byte) []*frame.Frame {
	announce := h.e.cfg.termination == ByCount
	frames := frame.Paginate(op, data, announce)
	if !announce {
		frames = append(frames, frame.NewFrame(frame.End{Pages: uint16(len(frames))})) //nolint:gosec // bounded by record size
	}

	return frames
}

func (h *handler) send(ctx context.Context, frames []*frame.Frame) error {
	if len(frames) == 0 {
		return nil
	}

	if err := pool.Sleep(ctx, h.e.cfg.responseDelay); err != nil {
		return err
	}

	for _, f := range frames {
		data := h.e.cfg.codec.Encode(f)
		if f.Op.IsPaged() && h.corrupted < h.e.cfg.corruptFrames {
			h.corrupted++
			data[len(data)-1] ^= 0xFF
			h.e.metrics.incFrameCorruptedCount()
			h.logger.Debug("emulator: frame corrupted", "frame", f.String())
		}

		if _, err := h.ch.Write(data); err != nil {
			return err
		}
		h.e.metrics.incFrameSendCount()
	}

	return nil
}

// withStatus returns a shallow copy of the shared bottle b carrying the
// run status at now.
func withStatus(b *bottle.Bottle, now time.Time) *bottle.Bottle {
	reported := *b
	reported.Completed = b.CompletedAt(now)

	return &reported
}

func reply(m frame.Message) []*frame.Frame {
	return []*frame.Frame{frame.NewFrame(m)}
}
