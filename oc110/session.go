// Package oc110 implements the host side of the OxiTop OC110 data logger
// protocol: waking the unit, listing its bottles and reading out the
// pressure values of every measuring head.
//
// A Session owns one transport.Channel. The line is half-duplex, so a
// Session runs one operation at a time; a concurrent call fails fast with
// ErrBusy instead of queueing.
package oc110

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/arloliu/go-oxitop/bottle"
	"github.com/arloliu/go-oxitop/frame"
	"github.com/arloliu/go-oxitop/logger"
	"github.com/arloliu/go-oxitop/transport"
)

// Model is the manufacturer id an OC110 answers Identify with.
const Model = "OC110"

// Session talks to one OC110 over a channel.
//
// It is safe for concurrent use, but operations do not overlap: a call made
// while another one is in progress returns ErrBusy.
type Session struct {
	ch      transport.Channel
	cfg     *Config
	x       *exchanger
	state   atomicState
	metrics SessionMetrics
	logger  logger.Logger

	closeOnce sync.Once
	closeErr  error
}

// NewSession wraps an open channel. A nil cfg uses the default
// configuration. The session starts Disconnected; call Connect, or let the
// first operation connect implicitly.
func NewSession(ch transport.Channel, cfg *Config) *Session {
	if cfg == nil {
		cfg, _ = NewConfig()
	}

	s := &Session{
		ch:     ch,
		cfg:    cfg,
		logger: cfg.logger.With("channel", ch.Name()),
	}
	s.x = newExchanger(ch, cfg, s.logger, &s.metrics)

	return s
}

// Dial opens the channel named by identifier with transport.Open and
// connects to the device.
//
// The channel is closed again when the handshake fails.
func Dial(ctx context.Context, identifier string, opts ...Option) (*Session, error) {
	cfg, err := NewConfig(opts...)
	if err != nil {
		return nil, err
	}

	ch, err := transport.Open(identifier, cfg.readTimeout, cfg.transportOpts...)
	if err != nil {
		return nil, &OpError{Op: "connect", Err: err}
	}

	s := NewSession(ch, cfg)
	if err := s.Connect(ctx); err != nil {
		_ = s.closeChannel()
		return nil, err
	}

	return s, nil
}

// State returns the current session state.
func (s *Session) State() State {
	return s.state.Get()
}

// Metrics returns the session's counters.
func (s *Session) Metrics() *SessionMetrics {
	return &s.metrics
}

// Config returns the session configuration.
func (s *Session) Config() *Config {
	return s.cfg
}

// Connect wakes the device with probes until it acknowledges.
//
// It returns ErrDeviceNotResponding when the handshake budget is exhausted.
// The session then stays Disconnected with the channel open, so the unit
// can be woken by hand and Connect called again. Connect on a Ready
// session does nothing.
func (s *Session) Connect(ctx context.Context) error {
	stop := context.AfterFunc(ctx, s.abort)
	defer stop()

	for {
		switch s.state.Get() {
		case StateReady:
			return nil
		case StateClosed:
			return &OpError{Op: "connect", Err: ErrClosed}
		case StateHandshaking, StateRequesting:
			return &OpError{Op: "connect", Err: ErrBusy}
		}

		if s.state.ToHandshaking() {
			break
		}
	}

	if err := s.handshake(ctx); err != nil {
		s.state.ToDisconnected()
		return s.fail(ctx, &OpError{Op: "connect", Err: err})
	}

	if !s.state.ToReady() {
		return &OpError{Op: "connect", Err: ErrClosed}
	}

	return nil
}

// handshake probes the device and optionally checks its model.
func (s *Session) handshake(ctx context.Context) error {
	if err := s.x.settle(ctx); err != nil {
		return err
	}
	attempts := 1 + s.cfg.handshakeRetryLimit

	for attempt := range attempts {
		if attempt > 0 {
			s.metrics.incHandshakeRetryCount()
			s.logger.Debug("oc110: probe unanswered, retrying",
				"retry", attempt,
				"maxRetry", s.cfg.handshakeRetryLimit,
			)
		}

		if err := s.x.send(frame.ProbeRequest{}); err != nil {
			return err
		}

		ack, err := s.x.awaitAck(ctx, time.Now().Add(s.cfg.handshakeTimeout))
		if err != nil {
			return err
		}
		if ack == nil {
			continue
		}

		s.logger.Info("oc110: device awake", "prompt", string(ack.Payload), "probes", attempt+1)

		if !s.cfg.verifyIdentity {
			return nil
		}

		model, err := s.identify(ctx)
		if err != nil {
			return err
		}
		if model != Model {
			return fmt.Errorf("%w: identifies as %q", ErrUnexpectedDevice, model)
		}

		return nil
	}

	return fmt.Errorf("%w: %d probes unanswered", ErrDeviceNotResponding, attempts)
}

// Identify returns the manufacturer id of the device.
func (s *Session) Identify(ctx context.Context) (string, error) {
	var model string
	err := s.do(ctx, "identify", "", func() error {
		var err error
		model, err = s.identify(ctx)

		return err
	})
	if err != nil {
		return "", err
	}

	return model, nil
}

func (s *Session) identify(ctx context.Context) (string, error) {
	c := &replyCollector{op: frame.OpIdent}
	if err := s.x.exchange(ctx, frame.IdentifyRequest{}, c); err != nil {
		return "", err
	}

	return string(c.reply.Payload), nil
}

// ListBottles returns the records of every bottle stored on the device.
// The heads of the returned bottles carry no readings.
func (s *Session) ListBottles(ctx context.Context) ([]*bottle.Bottle, error) {
	var bottles []*bottle.Bottle
	err := s.do(ctx, "list", "", func() error {
		var err error
		bottles, err = s.list(ctx)

		return err
	})
	if err != nil {
		return nil, err
	}

	return bottles, nil
}

func (s *Session) list(ctx context.Context) ([]*bottle.Bottle, error) {
	data, err := s.fetch(ctx, frame.ListBottlesRequest{}, frame.OpBottleIndex)
	if err != nil {
		return nil, err
	}

	return bottle.ParseIndex(data)
}

// Bottle returns the record of one bottle together with the readings of
// all its heads. serial may be given with or without its dash.
func (s *Session) Bottle(ctx context.Context, serial string) (*bottle.Bottle, error) {
	canonical, err := bottle.ParseWireSerial(serial)
	if err != nil {
		return nil, &OpError{Op: "bottle", Serial: serial, Err: err}
	}

	var b *bottle.Bottle
	err = s.do(ctx, "bottle", canonical, func() error {
		data, err := s.fetch(ctx, frame.BottleDetailRequest{Serial: bottle.WireSerial(canonical)}, frame.OpBottleRecord)
		if err != nil {
			return err
		}

		b, err = bottle.ParseRecord(data)
		if err != nil {
			return err
		}
		if b.Serial != canonical {
			return fmt.Errorf("%w: asked for bottle %s, got %s", ErrProtocol, canonical, b.Serial)
		}

		for _, h := range b.Heads {
			h.Readings, err = s.readings(ctx, b, h.Serial)
			if err != nil {
				return &OpError{Op: "bottle", Serial: canonical, Head: h.Serial, Err: err}
			}
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return b, nil
}

// Readings returns the values of one head of b in logging order. b needs
// only its record fields, as returned by ListBottles.
func (s *Session) Readings(ctx context.Context, b *bottle.Bottle, head string) ([]bottle.Reading, error) {
	if b == nil {
		err := fmt.Errorf("%w: nil bottle", ErrMalformedRecord)
		return nil, &OpError{Op: "readings", Head: head, Err: err}
	}
	if b.Head(head) == nil {
		err := fmt.Errorf("%w: bottle %s has no head %s", ErrMalformedRecord, b.Serial, head)
		return nil, &OpError{Op: "readings", Serial: b.Serial, Head: head, Err: err}
	}

	var readings []bottle.Reading
	err := s.do(ctx, "readings", b.Serial, func() error {
		var err error
		readings, err = s.readings(ctx, b, head)
		if err != nil {
			return &OpError{Op: "readings", Serial: b.Serial, Head: head, Err: err}
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return readings, nil
}

func (s *Session) readings(ctx context.Context, b *bottle.Bottle, head string) ([]bottle.Reading, error) {
	req := frame.HeadReadingsRequest{Serial: bottle.WireSerial(b.Serial), Head: head}
	data, err := s.fetch(ctx, req, frame.OpReadings)
	if err != nil {
		return nil, err
	}

	return bottle.ParseReadings(data, b, head)
}

// ReadingsView returns the readings of one head as a derived view, see
// bottle.View. The view options are checked before anything is sent.
func (s *Session) ReadingsView(ctx context.Context, b *bottle.Bottle, head string, opts bottle.ViewOptions) ([]bottle.Point, error) {
	if _, err := bottle.View(nil, opts); err != nil {
		var serial string
		if b != nil {
			serial = b.Serial
		}

		return nil, &OpError{Op: "readings", Serial: serial, Head: head, Err: err}
	}

	readings, err := s.Readings(ctx, b, head)
	if err != nil {
		return nil, err
	}

	return bottle.View(readings, opts)
}

// Match lists the bottles and returns those whose serial matches any of
// the shell-style patterns, in device order.
func (s *Session) Match(ctx context.Context, patterns ...string) ([]*bottle.Bottle, error) {
	if _, err := bottle.Match(patterns, nil); err != nil {
		return nil, &OpError{Op: "match", Err: err}
	}

	var matched []*bottle.Bottle
	err := s.do(ctx, "match", "", func() error {
		bottles, err := s.list(ctx)
		if err != nil {
			return err
		}

		matched, err = bottle.MatchBottles(patterns, bottles)

		return err
	})
	if err != nil {
		return nil, err
	}

	return matched, nil
}

// Close sends a best-effort Close request when the device is awake and
// closes the channel. The session cannot be used afterwards.
func (s *Session) Close() error {
	if prev := s.state.ToClosed(); prev == StateReady {
		s.sayGoodbye()
	}

	return s.closeChannel()
}

func (s *Session) sayGoodbye() {
	if err := s.x.send(frame.CloseRequest{}); err != nil {
		s.logger.Debug("oc110: close request not sent", "error", err)
		return
	}

	ack, err := s.x.awaitAck(context.Background(), time.Now().Add(s.cfg.readTimeout))
	if err != nil || ack == nil {
		s.logger.Debug("oc110: close not acknowledged", "error", err)
		return
	}

	s.logger.Debug("oc110: device closed", "prompt", string(ack.Payload))
}

// abort closes the session without talking to the device.
func (s *Session) abort() {
	if prev := s.state.ToClosed(); prev != StateClosed {
		s.logger.Info("oc110: session aborted", "state", prev)
	}
	_ = s.closeChannel()
}

func (s *Session) closeChannel() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.ch.Close()
	})

	return s.closeErr
}

// --- Operation plumbing ---

// fetch runs one paged exchange and returns the joined page payloads.
func (s *Session) fetch(ctx context.Context, req frame.Request, op frame.Opcode) ([]byte, error) {
	a := frame.NewAssembler(op)
	if err := s.x.exchange(ctx, req, a); err != nil {
		return nil, err
	}

	return a.Data(), nil
}

// do runs fn as one operation, connecting first when needed.
func (s *Session) do(ctx context.Context, op, serial string, fn func() error) error {
	stop := context.AfterFunc(ctx, s.abort)
	defer stop()

	if err := s.begin(ctx); err != nil {
		return s.fail(ctx, &OpError{Op: op, Serial: serial, Err: err})
	}

	s.metrics.incExchangeCount()
	err := fn()
	s.state.ToReady()

	if err == nil {
		return nil
	}

	s.metrics.incExchangeErrCount()

	var opErr *OpError
	if !errors.As(err, &opErr) {
		opErr = &OpError{Op: op, Serial: serial, Err: err}
	}

	return s.fail(ctx, opErr)
}

// begin claims the line for one operation.
func (s *Session) begin(ctx context.Context) error {
	for {
		switch s.state.Get() {
		case StateClosed:
			return ErrClosed
		case StateHandshaking, StateRequesting:
			return ErrBusy
		case StateReady:
			if s.state.ToRequesting() {
				return nil
			}
		case StateDisconnected:
			if !s.state.ToHandshaking() {
				continue
			}
			if err := s.handshake(ctx); err != nil {
				s.state.ToDisconnected()
				return err
			}
			if !s.state.ToRequesting() {
				return ErrClosed
			}

			return nil
		}
	}
}

// fail finishes a failed operation. Cancellation closes the session.
func (s *Session) fail(ctx context.Context, opErr *OpError) error {
	switch {
	case ctx.Err() != nil:
		s.abort()
		opErr.Err = fmt.Errorf("%w: %w", ErrClosed, ctx.Err())
	case errors.Is(opErr.Err, transport.ErrClosed) && !errors.Is(opErr.Err, ErrClosed):
		opErr.Err = fmt.Errorf("%w: %w", ErrClosed, opErr.Err)
	}

	s.logger.Debug("oc110: operation failed", "error", opErr)

	return opErr
}
