// Package bottle holds the OC110 data model (bottles, heads and readings),
// the decoder for the device's ASCII records, the serial wildcard matcher
// and the derived reading views.
package bottle

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/arloliu/go-oxitop/internal/util"
)

// ErrMalformedRecord indicates a record that cannot be decoded or that
// violates a data model invariant.
var ErrMalformedRecord = errors.New("malformed record")

// MinID and MaxID bound the user assigned bottle id.
const (
	MinID = 1
	MaxID = 999
)

// ModeKind is the measurement mode of a run.
type ModeKind int

const (
	Pressure ModeKind = iota
	BOD
)

func (k ModeKind) String() string {
	switch k {
	case Pressure:
		return "Pressure"
	case BOD:
		return "BOD"
	default:
		return "Unknown"
	}
}

// ParseModeKind parses "pressure" or "bod", case-insensitively.
func ParseModeKind(s string) (ModeKind, error) {
	switch strings.ToLower(s) {
	case "pressure":
		return Pressure, nil
	case "bod":
		return BOD, nil
	default:
		return 0, fmt.Errorf("%w: unknown mode %q", ErrMalformedRecord, s)
	}
}

// Mode is the measurement mode together with the run span.
type Mode struct {
	Kind ModeKind
	Span time.Duration
}

// NewMode returns the mode of a run between start and finish.
func NewMode(kind ModeKind, start, finish time.Time) Mode {
	return Mode{Kind: kind, Span: finish.Sub(start)}
}

// Days returns the whole days of the run span.
func (m Mode) Days() int {
	return int(m.Span / (24 * time.Hour))
}

// String formats the mode as the device shows it, e.g. "Pressure 14d", or
// "Pressure 12h" for runs shorter than a day.
func (m Mode) String() string {
	if days := m.Days(); days > 0 {
		return fmt.Sprintf("%s %dd", m.Kind, days)
	}

	return fmt.Sprintf("%s %dh", m.Kind, int(m.Span/time.Hour))
}

// Reading is one logged value of a head.
type Reading struct {
	Timestamp time.Time
	Value     int
}

// Head is one measurement channel of a bottle.
type Head struct {
	Serial        string // channel label, e.g. "60108"
	PressureLimit int    // pressure mode only
	Readings      []Reading
}

// Bottle is one measurement run stored on the device.
type Bottle struct {
	Serial       string // YYMMDD-NN
	ID           int
	Start        time.Time
	Finish       time.Time
	Interval     time.Duration
	Completed    bool
	Mode         Mode
	BottleVolume float64 // ml
	SampleVolume float64 // ml
	Dilution     int     // sample diluted 1+Dilution
	Measurements int     // intervals the device plans to log
	Heads        []*Head
}

// CompletedAt reports whether the run is over at now, which is how the
// device decides the status it reports.
func (b *Bottle) CompletedAt(now time.Time) bool {
	return b.Finish.Before(now)
}

// IntervalOf returns the logging interval of a run with the given number of
// measurement intervals.
func IntervalOf(start, finish time.Time, measurements int) time.Duration {
	if measurements <= 0 {
		return 0
	}

	return finish.Sub(start) / time.Duration(measurements)
}

// DesiredValues returns the number of values a complete run yields: one per
// interval plus the value at start.
func (b *Bottle) DesiredValues() int {
	return b.Measurements + 1
}

// ActualValues returns the length of the longest head reading sequence.
func (b *Bottle) ActualValues() int {
	n := 0
	for _, h := range b.Heads {
		n = max(n, len(h.Readings))
	}

	return n
}

// Head returns the head with the given serial, or nil.
func (b *Bottle) Head(serial string) *Head {
	want := trimHeadSerial(serial)
	for _, h := range b.Heads {
		if trimHeadSerial(h.Serial) == want {
			return h
		}
	}

	return nil
}

// ReadingAt returns the timestamp of the i-th value of a head.
func (b *Bottle) ReadingAt(i int) time.Time {
	return b.Start.Add(time.Duration(i) * b.Interval)
}

// NewReadings stamps raw values with the bottle's schedule.
func (b *Bottle) NewReadings(values []int) []Reading {
	readings := make([]Reading, len(values))
	for i, v := range values {
		readings[i] = Reading{Timestamp: b.ReadingAt(i), Value: v}
	}

	return readings
}

// Clone returns a deep copy of b.
func (b *Bottle) Clone() *Bottle {
	clone := *b
	clone.Heads = util.CloneFunc(b.Heads, func(h *Head) *Head {
		hc := *h
		hc.Readings = util.CloneSlice(h.Readings, 0)
		return &hc
	})

	return &clone
}

// Validate checks the data model invariants.
func (b *Bottle) Validate() error {
	if err := ValidateSerial(b.Serial); err != nil {
		return err
	}
	if b.ID < MinID || b.ID > MaxID {
		return malformed(b.Serial, "id %d out of range %d..%d", b.ID, MinID, MaxID)
	}
	if b.Measurements < 1 {
		return malformed(b.Serial, "measurement count %d must be positive", b.Measurements)
	}
	if b.Finish.Before(b.Start) {
		return malformed(b.Serial, "start %s after finish %s", b.Start.Format(time.DateTime), b.Finish.Format(time.DateTime))
	}
	if b.BottleVolume < 0 || b.SampleVolume < 0 || b.SampleVolume > b.BottleVolume {
		return malformed(b.Serial, "invalid volumes: bottle %.1f ml, sample %.1f ml", b.BottleVolume, b.SampleVolume)
	}
	if b.Dilution < 0 {
		return malformed(b.Serial, "negative dilution %d", b.Dilution)
	}

	switch b.Mode.Kind {
	case Pressure:
		if len(b.Heads) != 1 {
			return malformed(b.Serial, "pressure bottle has %d heads, want 1", len(b.Heads))
		}
	case BOD:
		if len(b.Heads) == 0 {
			return malformed(b.Serial, "BOD bottle has no heads")
		}
	default:
		return malformed(b.Serial, "unknown mode %d", b.Mode.Kind)
	}

	seen := make(map[string]struct{}, len(b.Heads))
	for _, h := range b.Heads {
		if err := b.validateHead(h); err != nil {
			return err
		}
		key := trimHeadSerial(h.Serial)
		if _, dup := seen[key]; dup {
			return malformed(b.Serial, "duplicate head %s", h.Serial)
		}
		seen[key] = struct{}{}
	}

	return nil
}

func (b *Bottle) validateHead(h *Head) error {
	if !isDigits(h.Serial) || len(h.Serial) > 9 {
		return malformed(b.Serial, "invalid head serial %q", h.Serial)
	}
	if h.PressureLimit < 0 || (b.Mode.Kind == BOD && h.PressureLimit != 0) {
		return malformed(b.Serial, "invalid pressure limit %d on head %s", h.PressureLimit, h.Serial)
	}
	if len(h.Readings) > b.DesiredValues() {
		return malformed(b.Serial, "head %s has %d values, more than the %d desired", h.Serial, len(h.Readings), b.DesiredValues())
	}
	for i := 1; i < len(h.Readings); i++ {
		if !h.Readings[i].Timestamp.After(h.Readings[i-1].Timestamp) {
			return malformed(b.Serial, "head %s reading %d is out of order", h.Serial, i)
		}
	}

	return nil
}

// ValidateSerial checks the YYMMDD-NN form with NN in 01..99.
func ValidateSerial(serial string) error {
	date, num, ok := strings.Cut(serial, "-")
	if !ok || len(date) != 6 || len(num) != 2 {
		return fmt.Errorf("%w: invalid serial %q", ErrMalformedRecord, serial)
	}
	if _, err := time.Parse("060102", date); err != nil {
		return fmt.Errorf("%w: invalid serial %q", ErrMalformedRecord, serial)
	}
	n, err := strconv.Atoi(num)
	if err != nil || n < 1 || n > 99 {
		return fmt.Errorf("%w: invalid serial %q", ErrMalformedRecord, serial)
	}

	return nil
}

// WireSerial returns the serial without its dash, the form the device
// accepts in commands ("110222-06" becomes "11022206").
func WireSerial(serial string) string {
	return strings.Replace(serial, "-", "", 1)
}

// ParseWireSerial accepts a serial with or without its dash and returns the
// canonical YYMMDD-NN form.
func ParseWireSerial(s string) (string, error) {
	serial := s
	if !strings.Contains(s, "-") && len(s) == 8 {
		serial = s[:6] + "-" + s[6:]
	}
	if err := ValidateSerial(serial); err != nil {
		return "", err
	}

	return serial, nil
}

func malformed(serial, format string, args ...any) error {
	return fmt.Errorf("%w: bottle %s: %s", ErrMalformedRecord, serial, fmt.Sprintf(format, args...))
}

func trimHeadSerial(s string) string {
	trimmed := strings.TrimLeft(s, "0")
	if trimmed == "" && s != "" {
		return "0"
	}

	return trimmed
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}

	return true
}
