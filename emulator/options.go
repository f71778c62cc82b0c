package emulator

import (
	"errors"
	"fmt"
	"time"

	"github.com/arloliu/go-oxitop/frame"
	"github.com/arloliu/go-oxitop/logger"
)

// Termination selects how the emulator ends a paged response.
type Termination int

const (
	// ByEnd follows the pages with an End frame carrying the page count.
	ByEnd Termination = iota
	// ByCount announces the page count in every page's total field.
	ByCount
)

func (t Termination) String() string {
	switch t {
	case ByEnd:
		return "end"
	case ByCount:
		return "count"
	default:
		return "unknown"
	}
}

// Option limits.
const (
	MaxResponseDelay = 10 * time.Second
	MaxIgnoreProbes  = 255
)

type config struct {
	responseDelay time.Duration
	ignoreProbes  int
	corruptFrames int
	termination   Termination
	clock         func() time.Time
	codec         *frame.Codec
	logger        logger.Logger
}

func newConfig(opts []Option) (*config, error) {
	cfg := &config{
		termination: ByEnd,
		clock:       time.Now,
		codec:       frame.DefaultCodec,
		logger:      logger.GetLogger(),
	}

	for _, opt := range opts {
		if err := opt.apply(cfg); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// Option configures an Emulator.
type Option interface {
	apply(*config) error
}

type optFunc func(*config) error

func (f optFunc) apply(cfg *config) error { return f(cfg) }

// WithResponseDelay delays every response by d. Must be in [0, 10s].
func WithResponseDelay(d time.Duration) Option {
	return optFunc(func(cfg *config) error {
		if d < 0 || d > MaxResponseDelay {
			return fmt.Errorf("emulator: response delay %v out of range [0, %v]", d, MaxResponseDelay)
		}
		cfg.responseDelay = d

		return nil
	})
}

// WithIgnoreProbes keeps the device asleep for the first n probes of every
// connection, so it answers the (n+1)th. Must be in [0, 255].
func WithIgnoreProbes(n int) Option {
	return optFunc(func(cfg *config) error {
		if n < 0 || n > MaxIgnoreProbes {
			return fmt.Errorf("emulator: ignored probes %d out of range [0, %d]", n, MaxIgnoreProbes)
		}
		cfg.ignoreProbes = n

		return nil
	})
}

// WithCorruptFrames breaks the check of the first n page frames sent on
// every connection. Must not be negative.
func WithCorruptFrames(n int) Option {
	return optFunc(func(cfg *config) error {
		if n < 0 {
			return fmt.Errorf("emulator: corrupt frame count %d is negative", n)
		}
		cfg.corruptFrames = n

		return nil
	})
}

// WithTermination selects how paged responses end. ByEnd is the default.
func WithTermination(t Termination) Option {
	return optFunc(func(cfg *config) error {
		if t != ByEnd && t != ByCount {
			return fmt.Errorf("emulator: unknown termination %d", t)
		}
		cfg.termination = t

		return nil
	})
}

// WithClock sets the clock that decides whether a run has finished.
func WithClock(clock func() time.Time) Option {
	return optFunc(func(cfg *config) error {
		if clock == nil {
			return errors.New("emulator: nil clock")
		}
		cfg.clock = clock

		return nil
	})
}

// WithCodec sets the frame codec. It must match the session's checksum.
func WithCodec(codec *frame.Codec) Option {
	return optFunc(func(cfg *config) error {
		if codec == nil {
			return errors.New("emulator: nil codec")
		}
		cfg.codec = codec

		return nil
	})
}

// WithLogger sets the logger. The default is logger.GetLogger().
func WithLogger(l logger.Logger) Option {
	return optFunc(func(cfg *config) error {
		if l != nil {
			cfg.logger = l
		}

		return nil
	})
}
