package oc110

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/arloliu/go-oxitop/frame"
	"github.com/arloliu/go-oxitop/logger"
	"github.com/arloliu/go-oxitop/transport"
)

// collector accepts the response frames of one exchange.
// *frame.Assembler collects paged responses.
type collector interface {
	Add(f *frame.Frame) (bool, error)
	Reset()
}

// replyCollector accepts a single response frame of one opcode.
type replyCollector struct {
	op    frame.Opcode
	reply *frame.Frame
}

func (c *replyCollector) Add(f *frame.Frame) (bool, error) {
	if f.Op != c.op {
		return false, fmt.Errorf("%w: got %s, want %s", frame.ErrUnexpectedOpcode, f.Op, c.op)
	}
	c.reply = f

	return true, nil
}

func (c *replyCollector) Reset() {
	c.reply = nil
}

// collectResult classifies the outcome of one attempt of an exchange so
// the retry loop can decide whether to re-send or give up.
type collectResult int

const (
	collectOK     collectResult = iota // Response complete.
	collectResend                      // Corrupt or out-of-order frame; drain and re-send.
	collectAbort                       // Non-retryable failure.
)

// exchanger runs request/response exchanges over a channel.
//
// This type is NOT goroutine-safe. The session state guarantees that only
// one operation uses it at a time, consistent with the half-duplex line.
type exchanger struct {
	ch      transport.Channel
	codec   *frame.Codec
	dec     *frame.Decoder
	cfg     *Config
	logger  logger.Logger
	metrics *SessionMetrics

	buf       []byte
	discarded int  // decoder discards already added to metrics
	dirty     bool // a failed exchange may have left a late response on the line
}

func newExchanger(ch transport.Channel, cfg *Config, l logger.Logger, metrics *SessionMetrics) *exchanger {
	codec := frame.NewCodec(cfg.checksum)

	return &exchanger{
		ch:      ch,
		codec:   codec,
		dec:     codec.NewDecoder(),
		cfg:     cfg,
		logger:  l,
		metrics: metrics,
		buf:     make([]byte, frame.MaxFrameSize),
	}
}

// --- Low-level I/O helpers ---

// writeAll writes all bytes in data to the channel.
func (x *exchanger) writeAll(data []byte) error {
	for written := 0; written < len(data); {
		n, err := x.ch.Write(data[written:])
		written += n

		if err != nil {
			return err
		}
	}

	return nil
}

func (x *exchanger) send(req frame.Request) error {
	if err := x.writeAll(x.codec.EncodeRequest(req)); err != nil {
		return fmt.Errorf("send %s: %w", req.Opcode(), err)
	}
	x.metrics.incFrameSendCount()
	x.logger.Debug("oc110: request sent", "opcode", req.Opcode(), "args", req.Args())

	return nil
}

// readFrame returns the next frame that completes before deadline.
//
// It returns an error wrapping transport.ErrTimeout when the deadline
// passes, frame.ErrCorrupt for a damaged frame, and the frame together
// with frame.ErrUnknownOpcode for an opcode outside the vocabulary.
func (x *exchanger) readFrame(ctx context.Context, deadline time.Time) (*frame.Frame, error) {
	for {
		f, err := x.dec.Next()
		x.syncDiscarded()

		switch {
		case err == nil:
			x.metrics.incFrameRecvCount()
			x.logger.Debug("oc110: frame received", "frame", f.String())

			return f, nil
		case errors.Is(err, frame.ErrUnknownOpcode):
			x.metrics.incFrameRecvCount()
			return f, err
		case !errors.Is(err, frame.ErrIncomplete):
			x.metrics.incCorruptFrameCount()
			return nil, err
		}

		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := x.ch.SetReadDeadline(deadline); err != nil {
			return nil, err
		}

		n, err := x.ch.Read(x.buf)
		if n > 0 {
			_, _ = x.dec.Write(x.buf[:n])
			continue
		}
		if err != nil {
			return nil, err
		}
	}
}

// drainUntilSilence reads and discards bytes until the line is silent for
// the quiet period, then drops everything buffered.
//
// The device keeps sending the rest of a response after a damaged frame;
// re-sending before the line is quiet would interleave two responses. A line
// that stays noisy longer than the read budget fails with ErrProtocol.
func (x *exchanger) drainUntilSilence(ctx context.Context) error {
	budget := x.cfg.drainTimeout()
	limit := time.Now().Add(budget)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		now := time.Now()
		if !now.Before(limit) {
			x.resetDecoder()
			return fmt.Errorf("%w: line not quiet within %v", ErrProtocol, budget)
		}
		if err := x.ch.SetReadDeadline(now.Add(x.cfg.quietPeriod)); err != nil {
			return err
		}

		n, err := x.ch.Read(x.buf)
		x.metrics.addDiscardedByteCount(n)
		if err != nil {
			if errors.Is(err, transport.ErrTimeout) {
				break // line is silent
			}

			return err
		}
	}

	x.resetDecoder()

	return nil
}

// settle prepares the line for a new request. After a failed exchange the
// line is drained first, so a response that arrives late is not taken as
// the answer to the next request.
func (x *exchanger) settle(ctx context.Context) error {
	if !x.dirty {
		x.resetDecoder()
		return nil
	}

	x.logger.Debug("oc110: draining line after failed exchange")
	if err := x.drainUntilSilence(ctx); err != nil {
		return err
	}
	x.dirty = false

	return nil
}

// resetDecoder drops buffered bytes, e.g. stale frames of an earlier
// exchange that failed.
func (x *exchanger) resetDecoder() {
	x.dec.Reset()
	x.syncDiscarded()
}

func (x *exchanger) syncDiscarded() {
	total := x.dec.Discarded()
	x.metrics.addDiscardedByteCount(total - x.discarded)
	x.discarded = total
}

// --- Exchange ---

// exchange sends req and feeds the response frames to c until c is
// complete.
//
// Consecutive read timeouts beyond the read retry limit fail with
// ErrTimeout. A corrupt or out-of-order frame drains the line and re-sends
// req; more such faults than the corrupt limit fail with ErrProtocol.
//
// A failed exchange other than a rejection marks the line dirty; the next
// one drains it first.
func (x *exchanger) exchange(ctx context.Context, req frame.Request, c collector) error {
	if err := x.settle(ctx); err != nil {
		return err
	}

	err := x.run(ctx, req, c)
	if err != nil && !errors.Is(err, ErrRejected) {
		x.dirty = true
	}

	return err
}

func (x *exchanger) run(ctx context.Context, req frame.Request, c collector) error {
	faults := 0

	for {
		if err := x.send(req); err != nil {
			return err
		}

		result, err := x.collect(ctx, c)

		switch result {
		case collectOK:
			return nil

		case collectResend:
			faults++
			if faults > x.cfg.corruptLimit {
				return fmt.Errorf("%w: %d faulty responses to %s: %w", ErrProtocol, faults, req.Opcode(), err)
			}

			if err := x.drainUntilSilence(ctx); err != nil {
				return err
			}
			c.Reset()

			x.metrics.incResendCount()
			x.logger.Warn("oc110: resending request",
				"opcode", req.Opcode(),
				"retry", faults,
				"maxRetry", x.cfg.corruptLimit,
				"error", err,
			)

		case collectAbort:
			return err
		}
	}
}

// collect reads the response to one attempt of an exchange.
func (x *exchanger) collect(ctx context.Context, c collector) (collectResult, error) {
	retry := 0

	for {
		f, err := x.readFrame(ctx, time.Now().Add(x.cfg.readTimeout))

		switch {
		case err == nil:

		case errors.Is(err, transport.ErrTimeout):
			retry++
			if retry > x.cfg.readRetryLimit {
				return collectAbort, fmt.Errorf("no response after %d reads: %w", retry, err)
			}

			x.metrics.incReadRetryCount()
			x.logger.Debug("oc110: read retry",
				"retry", retry,
				"maxRetry", x.cfg.readRetryLimit,
			)

			continue

		case errors.Is(err, frame.ErrCorrupt):
			return collectResend, err

		case errors.Is(err, frame.ErrUnknownOpcode):
			x.logger.Warn("oc110: unknown opcode received", "frame", f.String())
			return collectAbort, fmt.Errorf("%w: %w", ErrProtocol, err)

		default:
			return collectAbort, err
		}

		retry = 0

		if f.Op == frame.OpError {
			return collectAbort, fmt.Errorf("%w: %s", ErrRejected, f.Payload)
		}

		done, err := c.Add(f)
		switch {
		case err == nil:
		case errors.Is(err, frame.ErrSequence), errors.Is(err, frame.ErrCorrupt):
			return collectResend, err
		case f.Op == frame.OpAck && errors.Is(err, frame.ErrUnexpectedOpcode):
			// late answer to an earlier probe
			x.logger.Debug("oc110: stray ack skipped", "text", string(f.Payload))
			continue
		default:
			return collectAbort, fmt.Errorf("%w: %w", ErrProtocol, err)
		}

		if done {
			return collectOK, nil
		}
	}
}

// awaitAck waits until deadline for an Ack, skipping any other frame.
// It returns a nil frame and no error when the deadline passes.
func (x *exchanger) awaitAck(ctx context.Context, deadline time.Time) (*frame.Frame, error) {
	for {
		f, err := x.readFrame(ctx, deadline)

		switch {
		case err == nil && f.Op == frame.OpAck:
			return f, nil
		case err == nil, errors.Is(err, frame.ErrCorrupt), errors.Is(err, frame.ErrUnknownOpcode):
			x.logger.Debug("oc110: waiting for ack, frame skipped", "error", err)
			continue
		case errors.Is(err, transport.ErrTimeout):
			return nil, nil
		default:
			return nil, err
		}
	}
}
