package bottle

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// TimestampLayout is the device timestamp format (YYMMDDhhmmss).
const TimestampLayout = "060102150405"

// field positions of the first bottle record line
const (
	fieldMode         = 2
	fieldID           = 3
	fieldSerial       = 4
	fieldStart        = 5
	fieldFinish       = 6
	fieldStatus       = 7
	fieldMeasurements = 11
	fieldBottleVolume = 13
	fieldSampleVolume = 14
	fieldDilution     = 15
	fieldHeads        = 18
	recordFields      = 20
)

// mode codes and run states as the device reports them
const (
	modeCodeBOD      = 0
	modeCodePressure = 3

	statusRunning  = 1
	statusFinished = 2
)

var fieldNames = map[int]string{
	fieldMode:         "mode",
	fieldID:           "id",
	fieldSerial:       "serial",
	fieldStart:        "start",
	fieldFinish:       "finish",
	fieldStatus:       "status",
	fieldMeasurements: "measurements",
	fieldBottleVolume: "bottle volume",
	fieldSampleVolume: "sample volume",
	fieldDilution:     "dilution",
	fieldHeads:        "head count",
}

// ParseRecord decodes one bottle record: the 20-field bottle line and the
// head line, each terminated by CR. Heads carry no readings.
func ParseRecord(data []byte) (*Bottle, error) {
	lines := splitLines(data)
	if len(lines) != 2 {
		return nil, fmt.Errorf("%w: bottle record has %d lines, want 2", ErrMalformedRecord, len(lines))
	}

	return parseRecordLines(lines[0], lines[1])
}

// ParseIndex decodes the concatenated bottle records of a bottle list. A
// line that does not start with a comma begins a new record.
func ParseIndex(data []byte) ([]*Bottle, error) {
	lines := splitLines(data)
	bottles := make([]*Bottle, 0, len(lines)/2)

	for i := 0; i < len(lines); {
		if strings.HasPrefix(lines[i], ",") {
			return nil, fmt.Errorf("%w: index line %d: head line without bottle line", ErrMalformedRecord, i+1)
		}
		if i+1 >= len(lines) || !strings.HasPrefix(lines[i+1], ",") {
			return nil, fmt.Errorf("%w: index line %d: bottle line without head line", ErrMalformedRecord, i+1)
		}

		b, err := parseRecordLines(lines[i], lines[i+1])
		if err != nil {
			return nil, fmt.Errorf("index line %d: %w", i+1, err)
		}
		bottles = append(bottles, b)
		i += 2
	}

	return bottles, nil
}

func parseRecordLines(bottleLine, headLine string) (*Bottle, error) {
	fields := strings.Split(bottleLine, ",")
	if len(fields) != recordFields {
		return nil, fmt.Errorf("%w: bottle line has %d fields, want %d", ErrMalformedRecord, len(fields), recordFields)
	}

	p := fieldParser{fields: fields}
	modeCode := p.atoi(fieldMode)
	b := &Bottle{
		Serial:       fields[fieldSerial],
		ID:           p.atoi(fieldID),
		Start:        p.timestamp(fieldStart),
		Finish:       p.timestamp(fieldFinish),
		Measurements: p.atoi(fieldMeasurements),
		BottleVolume: p.number(fieldBottleVolume),
		SampleVolume: p.number(fieldSampleVolume),
		Dilution:     p.atoi(fieldDilution),
	}
	status := p.atoi(fieldStatus)
	headCount := p.atoi(fieldHeads)
	if p.err != nil {
		return nil, p.err
	}

	var kind ModeKind
	switch modeCode {
	case modeCodePressure:
		kind = Pressure
	case modeCodeBOD:
		kind = BOD
	default:
		return nil, p.fail(fieldMode, "unknown mode code")
	}

	switch status {
	case statusRunning:
	case statusFinished:
		b.Completed = true
	default:
		return nil, p.fail(fieldStatus, "unknown run status")
	}

	if headCount < 0 {
		return nil, p.fail(fieldHeads, "negative count")
	}
	if b.Measurements < 0 {
		return nil, p.fail(fieldMeasurements, "negative count")
	}

	b.Mode = NewMode(kind, b.Start, b.Finish)
	b.Interval = IntervalOf(b.Start, b.Finish, b.Measurements)

	heads, err := parseHeadLine(headLine, kind)
	if err != nil {
		return nil, fmt.Errorf("bottle %s: %w", b.Serial, err)
	}
	if len(heads) != headCount {
		return nil, malformed(b.Serial, "head line lists %d heads, record announces %d", len(heads), headCount)
	}
	b.Heads = heads

	if err := b.Validate(); err != nil {
		return nil, err
	}

	return b, nil
}

// parseHeadLine decodes ",serial,limit,..." in pressure mode and
// ",serial,..." in BOD mode.
func parseHeadLine(line string, kind ModeKind) ([]*Head, error) {
	if !strings.HasPrefix(line, ",") || !strings.HasSuffix(line, ",") {
		return nil, fmt.Errorf("%w: head line %q is not comma delimited", ErrMalformedRecord, line)
	}

	parts := strings.Split(line, ",")
	parts = parts[1 : len(parts)-1]
	if len(parts) == 1 && parts[0] == "" {
		parts = nil
	}

	if kind == BOD {
		heads := make([]*Head, 0, len(parts))
		for _, serial := range parts {
			heads = append(heads, &Head{Serial: serial})
		}

		return heads, nil
	}

	if len(parts)%2 != 0 {
		return nil, fmt.Errorf("%w: pressure head line %q has unpaired fields", ErrMalformedRecord, line)
	}
	heads := make([]*Head, 0, len(parts)/2)
	for i := 0; i < len(parts); i += 2 {
		limit, err := strconv.Atoi(parts[i+1])
		if err != nil {
			return nil, fmt.Errorf("%w: head %s pressure limit %q", ErrMalformedRecord, parts[i], parts[i+1])
		}
		heads = append(heads, &Head{Serial: parts[i], PressureLimit: limit})
	}

	return heads, nil
}

// FormatRecord encodes b as the device sends it.
func FormatRecord(b *Bottle) []byte {
	var sb strings.Builder
	writeRecord(&sb, b)

	return []byte(sb.String())
}

// FormatIndex encodes a bottle list.
func FormatIndex(bottles []*Bottle) []byte {
	var sb strings.Builder
	for _, b := range bottles {
		writeRecord(&sb, b)
	}

	return []byte(sb.String())
}

func writeRecord(sb *strings.Builder, b *Bottle) {
	span := b.Finish.Sub(b.Start)
	days := int(span / (24 * time.Hour))

	modeCode := modeCodePressure
	if b.Mode.Kind == BOD {
		modeCode = modeCodeBOD
	}

	status := statusRunning
	if b.Completed {
		status = statusFinished
	}

	// automatic temperature adaptation: off below a day, capped from 5 days
	autoTemp := 2 * days
	if days >= 5 {
		autoTemp = 10
	}

	var code int
	if b.Mode.Kind == Pressure {
		code = int(b.Interval / time.Minute)
		// the device reports 112 minute intervals as 308
		if code == 112 {
			code = 308
		}
	} else {
		code = 32768 + int(span/time.Hour)
	}

	fields := []string{
		"0",
		"0",
		strconv.Itoa(modeCode),
		strconv.Itoa(b.ID),
		b.Serial,
		b.Start.Format(TimestampLayout),
		b.Finish.Format(TimestampLayout),
		strconv.Itoa(status),
		"5",
		"240",
		"40",
		strconv.Itoa(b.Measurements),
		strconv.Itoa(days * 24 * 60),
		strconv.FormatFloat(b.BottleVolume, 'f', 0, 64),
		strconv.FormatFloat(b.SampleVolume, 'f', 1, 64),
		strconv.Itoa(b.Dilution),
		strconv.Itoa(autoTemp),
		"2",
		strconv.Itoa(len(b.Heads)),
		strconv.Itoa(code),
	}
	sb.WriteString(strings.Join(fields, ","))
	sb.WriteByte('\r')

	sb.WriteByte(',')
	for _, h := range b.Heads {
		sb.WriteString(h.Serial)
		sb.WriteByte(',')
		if b.Mode.Kind == Pressure {
			sb.WriteString(strconv.Itoa(h.PressureLimit))
			sb.WriteByte(',')
		}
	}
	sb.WriteByte('\r')
}

// fieldParser parses record fields, keeping the first error.
type fieldParser struct {
	fields []string
	err    error
}

func (p *fieldParser) atoi(i int) int {
	if p.err != nil {
		return 0
	}
	v, err := strconv.Atoi(p.fields[i])
	if err != nil {
		p.err = p.fail(i, "not an integer")
	}

	return v
}

func (p *fieldParser) number(i int) float64 {
	if p.err != nil {
		return 0
	}
	v, err := strconv.ParseFloat(p.fields[i], 64)
	if err != nil {
		p.err = p.fail(i, "not a number")
	}

	return v
}

func (p *fieldParser) timestamp(i int) time.Time {
	if p.err != nil {
		return time.Time{}
	}
	v, err := time.ParseInLocation(TimestampLayout, p.fields[i], time.UTC)
	if err != nil {
		p.err = p.fail(i, "not a YYMMDDhhmmss timestamp")
	}

	return v
}

func (p *fieldParser) fail(i int, reason string) error {
	return fmt.Errorf("%w: field %d (%s) %q: %s", ErrMalformedRecord, i, fieldNames[i], p.fields[i], reason)
}

// splitLines splits CR terminated lines and drops trailing empty lines.
func splitLines(data []byte) []string {
	lines := strings.Split(string(data), "\r")
	for len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}

	return lines
}
