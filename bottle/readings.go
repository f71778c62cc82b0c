package bottle

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// valuesPerLine is how many values the device sends per readings line.
const valuesPerLine = 10

// ParseReadings decodes a head readings record for head of bottle b:
//
//	%09d head,bottle serial,1,1,247,start,count CR
//	,v,v,v,v,v,v,v,v,v,v CR
//	...
//
// The header must name b and head, the value count must match the header
// and must not exceed b.DesiredValues(). Timestamps follow the bottle
// schedule.
func ParseReadings(data []byte, b *Bottle, head string) ([]Reading, error) {
	lines := splitLines(data)
	if len(lines) == 0 {
		return nil, fmt.Errorf("%w: empty readings record", ErrMalformedRecord)
	}

	header := strings.Split(lines[0], ",")
	if len(header) != 7 {
		return nil, fmt.Errorf("%w: readings header has %d fields, want 7", ErrMalformedRecord, len(header))
	}

	if !isDigits(header[0]) || trimHeadSerial(header[0]) != trimHeadSerial(head) {
		return nil, malformed(b.Serial, "readings header names head %q, want %s", header[0], head)
	}
	if header[1] != b.Serial {
		return nil, malformed(b.Serial, "readings header names bottle %q", header[1])
	}
	start, err := time.ParseInLocation(TimestampLayout, header[5], time.UTC)
	if err != nil || !start.Equal(b.Start) {
		return nil, malformed(b.Serial, "readings header start %q does not match bottle start", header[5])
	}
	count, err := strconv.Atoi(header[6])
	if err != nil || count < 0 {
		return nil, malformed(b.Serial, "readings header count %q", header[6])
	}
	if count > b.DesiredValues() {
		return nil, malformed(b.Serial, "head %s announces %d values, more than the %d desired", head, count, b.DesiredValues())
	}

	readings := make([]Reading, 0, count)
	for n, line := range lines[1:] {
		if !strings.HasPrefix(line, ",") {
			return nil, malformed(b.Serial, "readings line %d %q lacks leading comma", n+2, line)
		}
		for _, field := range strings.Split(line[1:], ",") {
			if field == "" {
				continue
			}
			v, err := strconv.Atoi(field)
			if err != nil {
				return nil, malformed(b.Serial, "readings line %d value %q", n+2, field)
			}
			if len(readings) == count {
				return nil, malformed(b.Serial, "head %s sent more than the %d announced values", head, count)
			}
			readings = append(readings, Reading{Timestamp: b.ReadingAt(len(readings)), Value: v})
		}
	}

	if len(readings) != count {
		return nil, malformed(b.Serial, "head %s sent %d values, header announces %d", head, len(readings), count)
	}

	return readings, nil
}

// FormatReadings encodes the readings record of head h of bottle b.
func FormatReadings(b *Bottle, h *Head) []byte {
	var sb strings.Builder

	serial := h.Serial
	if len(serial) < 9 {
		serial = strings.Repeat("0", 9-len(serial)) + serial
	}

	sb.WriteString(strings.Join([]string{
		serial,
		b.Serial,
		"1",
		"1",
		"247",
		b.Start.Format(TimestampLayout),
		strconv.Itoa(len(h.Readings)),
	}, ","))
	sb.WriteByte('\r')

	for i := 0; i < len(h.Readings); i += valuesPerLine {
		end := min(i+valuesPerLine, len(h.Readings))
		for _, r := range h.Readings[i:end] {
			sb.WriteByte(',')
			sb.WriteString(strconv.Itoa(r.Value))
		}
		sb.WriteByte('\r')
	}

	return []byte(sb.String())
}
