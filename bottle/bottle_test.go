package bottle

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMode_String(t *testing.T) {
	start := date(2011, 2, 22, 16, 54, 55)

	assert.Equal(t, "Pressure 14d", NewMode(Pressure, start, start.Add(14*24*time.Hour)).String())
	assert.Equal(t, "BOD 5d", NewMode(BOD, start, start.Add(5*24*time.Hour+3*time.Hour)).String())
	assert.Equal(t, "Pressure 12h", NewMode(Pressure, start, start.Add(12*time.Hour+30*time.Minute)).String())
}

func TestParseModeKind(t *testing.T) {
	k, err := ParseModeKind("Pressure")
	require.NoError(t, err)
	assert.Equal(t, Pressure, k)

	k, err = ParseModeKind("bod")
	require.NoError(t, err)
	assert.Equal(t, BOD, k)

	_, err = ParseModeKind("manual")
	require.ErrorIs(t, err, ErrMalformedRecord)
}

func TestBottle_Schedule(t *testing.T) {
	b := newPressureBottle(t, 361)

	assert.Equal(t, 56*time.Minute, b.Interval)
	assert.Equal(t, 361, b.DesiredValues())
	assert.Equal(t, 361, b.ActualValues())
	assert.Equal(t, b.Start.Add(56*time.Minute), b.Heads[0].Readings[1].Timestamp)
	assert.Equal(t, b.Finish, b.Heads[0].Readings[360].Timestamp)
	require.NoError(t, b.Validate())
}

func TestBottle_HeadLookup(t *testing.T) {
	b := newBODBottle(t)

	assert.Equal(t, "60143", b.Head("60143").Serial)
	assert.Equal(t, "60145", b.Head("000060145").Serial)
	assert.Nil(t, b.Head("60108"))
}

func TestBottle_Clone(t *testing.T) {
	b := newBODBottle(t)
	c := b.Clone()

	c.Heads[0].Readings[0].Value = 1
	c.Heads[1].Serial = "1"

	assert.Equal(t, 976, b.Heads[0].Readings[0].Value)
	assert.Equal(t, "60143", b.Heads[1].Serial)
}

func TestBottle_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(b *Bottle)
	}{
		{"bad serial", func(b *Bottle) { b.Serial = "110222" }},
		{"id zero", func(b *Bottle) { b.ID = 0 }},
		{"id too large", func(b *Bottle) { b.ID = 1000 }},
		{"no measurements", func(b *Bottle) { b.Measurements = 0 }},
		{"start after finish", func(b *Bottle) { b.Start = b.Finish.Add(time.Second) }},
		{"sample exceeds bottle", func(b *Bottle) { b.SampleVolume = 600 }},
		{"negative dilution", func(b *Bottle) { b.Dilution = -1 }},
		{"two pressure heads", func(b *Bottle) { b.Heads = append(b.Heads, &Head{Serial: "60109"}) }},
		{"non numeric head", func(b *Bottle) { b.Heads[0].Serial = "A1" }},
		{"negative limit", func(b *Bottle) { b.Heads[0].PressureLimit = -1 }},
		{"too many values", func(b *Bottle) { b.Heads[0].Readings = b.NewReadings(make([]int, 362)) }},
		{"out of order", func(b *Bottle) {
			b.Heads[0].Readings[2].Timestamp = b.Heads[0].Readings[1].Timestamp
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newPressureBottle(t, 10)
			tt.mutate(b)
			require.ErrorIs(t, b.Validate(), ErrMalformedRecord)
		})
	}

	t.Run("bod", func(t *testing.T) {
		b := newBODBottle(t)
		require.NoError(t, b.Validate())

		b.Heads[0].PressureLimit = 150
		require.ErrorIs(t, b.Validate(), ErrMalformedRecord)

		b = newBODBottle(t)
		b.Heads[1].Serial = "060145"
		require.ErrorIs(t, b.Validate(), ErrMalformedRecord, "duplicate head")
	})
}

func TestWireSerial(t *testing.T) {
	assert.Equal(t, "11022206", WireSerial("110222-06"))
	assert.Equal(t, "11022206", WireSerial("11022206"))

	s, err := ParseWireSerial("11022206")
	require.NoError(t, err)
	assert.Equal(t, "110222-06", s)

	s, err = ParseWireSerial("121119-03")
	require.NoError(t, err)
	assert.Equal(t, "121119-03", s)

	for _, bad := range []string{"", "1102220", "11022200", "111322-01", "110222-6", "abcdef-01"} {
		_, err := ParseWireSerial(bad)
		require.ErrorIs(t, err, ErrMalformedRecord, bad)
	}
}

func TestBottle_CompletedAt(t *testing.T) {
	b := newPressureBottle(t, 0)

	assert.True(t, b.CompletedAt(now))
	assert.False(t, b.CompletedAt(b.Start))
	assert.False(t, b.CompletedAt(b.Finish))
	assert.True(t, b.CompletedAt(b.Finish.Add(time.Second)))
}
