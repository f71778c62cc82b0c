package bottle

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatReadings_Layout(t *testing.T) {
	b := newPressureBottle(t, 12)
	lines := strings.Split(string(FormatReadings(b, b.Heads[0])), "\r")

	require.Len(t, lines, 4) // header, 10 values, 2 values, trailing empty
	assert.Equal(t, "000060108,110222-06,1,1,247,110222165455,12", lines[0])
	assert.Equal(t, ",970,969,968,967,966,965,964,970,969,968", lines[1])
	assert.Equal(t, ",967,966", lines[2])
	assert.Empty(t, lines[3])
}

func TestReadings_RoundTrip(t *testing.T) {
	b := newPressureBottle(t, 361)
	h := b.Heads[0]

	got, err := ParseReadings(FormatReadings(b, h), stripReadings(b), "60108")
	require.NoError(t, err)
	assert.Equal(t, h.Readings, got)

	for i := 1; i < len(got); i++ {
		assert.True(t, got[i].Timestamp.After(got[i-1].Timestamp))
	}
}

func TestReadings_Empty(t *testing.T) {
	b := newPressureBottle(t, 0)

	got, err := ParseReadings(FormatReadings(b, b.Heads[0]), b, "60108")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestParseReadings_Malformed(t *testing.T) {
	b := newPressureBottle(t, 3)
	header := "000060108,110222-06,1,1,247,110222165455,"

	tests := []struct {
		name string
		data string
		head string
	}{
		{"empty", "", "60108"},
		{"header fields", "000060108,110222-06\r", "60108"},
		{"wrong head", header + "3\r,1,2,3\r", "60109"},
		{"wrong bottle", "000060108,110222-07,1,1,247,110222165455,3\r,1,2,3\r", "60108"},
		{"wrong start", "000060108,110222-06,1,1,247,110222165456,3\r,1,2,3\r", "60108"},
		{"count text", header + "x\r", "60108"},
		{"fewer values", header + "3\r,1,2\r", "60108"},
		{"more values", header + "2\r,1,2,3\r", "60108"},
		{"value text", header + "3\r,1,a,3\r", "60108"},
		{"no comma", header + "3\r1,2,3\r", "60108"},
		{"more than desired", header + "362\r", "60108"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseReadings([]byte(tt.data), b, tt.head)
			require.ErrorIs(t, err, ErrMalformedRecord)
		})
	}
}
