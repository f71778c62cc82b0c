package oc110

import (
	"errors"
	"fmt"
	"time"

	"github.com/arloliu/go-oxitop/frame"
	"github.com/arloliu/go-oxitop/logger"
	"github.com/arloliu/go-oxitop/transport"
)

// Default session settings.
const (
	DefaultReadTimeout         = time.Second
	DefaultReadRetryLimit      = 3
	DefaultHandshakeTimeout    = time.Second
	DefaultHandshakeRetryLimit = 3
	DefaultCorruptLimit        = 2
	DefaultQuietPeriod         = 100 * time.Millisecond
)

// Setting range limits.
const (
	MinReadTimeout = 10 * time.Millisecond
	MaxReadTimeout = 60 * time.Second

	MinQuietPeriod = time.Millisecond
	MaxQuietPeriod = 10 * time.Second

	MaxRetryLimit = 31
)

// Config holds the settings of a Session.
type Config struct {
	// readTimeout bounds the wait for each response frame.
	readTimeout time.Duration
	// readRetryLimit is the number of consecutive read timeouts tolerated
	// within one exchange.
	readRetryLimit int

	// handshakeTimeout bounds the wait for the Ack to one probe.
	handshakeTimeout time.Duration
	// handshakeRetryLimit is the number of probes re-sent after the first.
	handshakeRetryLimit int

	// corruptLimit is the number of re-sent requests per exchange after
	// corrupt or out-of-order frames.
	corruptLimit int
	// quietPeriod is the line silence awaited before re-sending.
	quietPeriod time.Duration

	checksum       frame.Checksum
	verifyIdentity bool
	transportOpts  []transport.Option

	logger logger.Logger
}

// NewConfig creates a session configuration.
//
// opts are functional options applied in order; see With* functions.
func NewConfig(opts ...Option) (*Config, error) {
	cfg := &Config{
		readTimeout:         DefaultReadTimeout,
		readRetryLimit:      DefaultReadRetryLimit,
		handshakeTimeout:    DefaultHandshakeTimeout,
		handshakeRetryLimit: DefaultHandshakeRetryLimit,
		corruptLimit:        DefaultCorruptLimit,
		quietPeriod:         DefaultQuietPeriod,
		checksum:            frame.Additive16,
		verifyIdentity:      true,
		logger:              logger.GetLogger(),
	}

	for _, opt := range opts {
		if err := opt.apply(cfg); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// --- Getters ---

// ReadTimeout returns the wait for each response frame.
func (cfg *Config) ReadTimeout() time.Duration { return cfg.readTimeout }

// ReadRetryLimit returns the number of consecutive read timeouts tolerated.
func (cfg *Config) ReadRetryLimit() int { return cfg.readRetryLimit }

// HandshakeTimeout returns the wait for the Ack to one probe.
func (cfg *Config) HandshakeTimeout() time.Duration { return cfg.handshakeTimeout }

// HandshakeRetryLimit returns the number of probes re-sent after the first.
func (cfg *Config) HandshakeRetryLimit() int { return cfg.handshakeRetryLimit }

// CorruptLimit returns the number of re-sent requests tolerated per exchange.
func (cfg *Config) CorruptLimit() int { return cfg.corruptLimit }

// QuietPeriod returns the line silence awaited before re-sending.
func (cfg *Config) QuietPeriod() time.Duration { return cfg.quietPeriod }

// Checksum returns the frame checksum strategy.
func (cfg *Config) Checksum() frame.Checksum { return cfg.checksum }

// VerifyIdentity reports whether Connect checks the device model.
func (cfg *Config) VerifyIdentity() bool { return cfg.verifyIdentity }

// drainTimeout bounds one wait for line silence: the time an exchange may
// spend reading before it gives up, and at least two quiet periods.
func (cfg *Config) drainTimeout() time.Duration {
	return max(cfg.readTimeout*time.Duration(cfg.readRetryLimit+1), 2*cfg.quietPeriod)
}

// GetLogger returns the configured logger.
func (cfg *Config) GetLogger() logger.Logger { return cfg.logger }

// --- Option ---

// Option is a functional option for configuring a Config.
type Option interface {
	apply(*Config) error
}

type optFunc func(*Config) error

func (f optFunc) apply(cfg *Config) error { return f(cfg) }

// WithReadTimeout sets the wait for each response frame. Must be in [10ms, 60s].
func WithReadTimeout(d time.Duration) Option {
	return optFunc(func(cfg *Config) error {
		if d < MinReadTimeout || d > MaxReadTimeout {
			return fmt.Errorf("oc110: read timeout %v out of range [%v, %v]", d, MinReadTimeout, MaxReadTimeout)
		}
		cfg.readTimeout = d

		return nil
	})
}

// WithReadRetryLimit sets the number of consecutive read timeouts tolerated
// within one exchange. Must be in [0, 31].
func WithReadRetryLimit(n int) Option {
	return optFunc(func(cfg *Config) error {
		if n < 0 || n > MaxRetryLimit {
			return fmt.Errorf("oc110: read retry limit %d out of range [0, %d]", n, MaxRetryLimit)
		}
		cfg.readRetryLimit = n

		return nil
	})
}

// WithHandshakeTimeout sets the wait for the Ack to one probe. Must be in
// [10ms, 60s].
func WithHandshakeTimeout(d time.Duration) Option {
	return optFunc(func(cfg *Config) error {
		if d < MinReadTimeout || d > MaxReadTimeout {
			return fmt.Errorf("oc110: handshake timeout %v out of range [%v, %v]", d, MinReadTimeout, MaxReadTimeout)
		}
		cfg.handshakeTimeout = d

		return nil
	})
}

// WithHandshakeRetryLimit sets the number of probes re-sent after the
// first one goes unanswered. Must be in [0, 31].
func WithHandshakeRetryLimit(n int) Option {
	return optFunc(func(cfg *Config) error {
		if n < 0 || n > MaxRetryLimit {
			return fmt.Errorf("oc110: handshake retry limit %d out of range [0, %d]", n, MaxRetryLimit)
		}
		cfg.handshakeRetryLimit = n

		return nil
	})
}

// WithCorruptLimit sets how many times one exchange re-sends its request
// after a corrupt or out-of-order frame. Must be in [0, 31].
func WithCorruptLimit(n int) Option {
	return optFunc(func(cfg *Config) error {
		if n < 0 || n > MaxRetryLimit {
			return fmt.Errorf("oc110: corrupt limit %d out of range [0, %d]", n, MaxRetryLimit)
		}
		cfg.corruptLimit = n

		return nil
	})
}

// WithQuietPeriod sets the line silence awaited before a request is
// re-sent. Must be in [1ms, 10s].
func WithQuietPeriod(d time.Duration) Option {
	return optFunc(func(cfg *Config) error {
		if d < MinQuietPeriod || d > MaxQuietPeriod {
			return fmt.Errorf("oc110: quiet period %v out of range [%v, %v]", d, MinQuietPeriod, MaxQuietPeriod)
		}
		cfg.quietPeriod = d

		return nil
	})
}

// WithChecksum sets the frame checksum strategy. The default is
// frame.Additive16.
func WithChecksum(c frame.Checksum) Option {
	return optFunc(func(cfg *Config) error {
		if c == nil {
			return errors.New("oc110: checksum must not be nil")
		}
		cfg.checksum = c

		return nil
	})
}

// WithVerifyIdentity enables or disables the model check after the
// handshake. It is enabled by default.
func WithVerifyIdentity(enable bool) Option {
	return optFunc(func(cfg *Config) error {
		cfg.verifyIdentity = enable
		return nil
	})
}

// WithTransportOptions passes options to transport.Open when dialing.
func WithTransportOptions(opts ...transport.Option) Option {
	return optFunc(func(cfg *Config) error {
		cfg.transportOpts = append(cfg.transportOpts, opts...)
		return nil
	})
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return optFunc(func(cfg *Config) error {
		if l == nil {
			return errors.New("oc110: logger must not be nil")
		}
		cfg.logger = l

		return nil
	})
}
