package emulator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arloliu/go-oxitop/bottle"
)

// assertSameBottles compares bottles field by field, treating nil and
// empty reading slices alike.
func assertSameBottles(t *testing.T, want, got []*bottle.Bottle) {
	t.Helper()

	require.Len(t, got, len(want))
	for i := range want {
		w, g := want[i], got[i]
		assert.Equal(t, w.Serial, g.Serial)
		assert.Equal(t, w.ID, g.ID)
		assert.True(t, w.Start.Equal(g.Start), "start of %s", w.Serial)
		assert.True(t, w.Finish.Equal(g.Finish), "finish of %s", w.Serial)
		assert.Equal(t, w.Interval, g.Interval)
		assert.Equal(t, w.Mode, g.Mode)
		assert.Equal(t, w.Measurements, g.Measurements)
		assert.InDelta(t, w.BottleVolume, g.BottleVolume, 1e-9)
		assert.InDelta(t, w.SampleVolume, g.SampleVolume, 1e-9)
		assert.Equal(t, w.Dilution, g.Dilution)

		require.Len(t, g.Heads, len(w.Heads))
		for j := range w.Heads {
			assert.Equal(t, w.Heads[j].Serial, g.Heads[j].Serial)
			assert.Equal(t, w.Heads[j].PressureLimit, g.Heads[j].PressureLimit)
			require.Len(t, g.Heads[j].Readings, len(w.Heads[j].Readings))
			for k := range w.Heads[j].Readings {
				assert.Equal(t, w.Heads[j].Readings[k].Value, g.Heads[j].Readings[k].Value)
				assert.True(t, w.Heads[j].Readings[k].Timestamp.Equal(g.Heads[j].Readings[k].Timestamp))
			}
		}
	}
}

func TestDefaultDataset(t *testing.T) {
	ds := DefaultDataset()

	require.Equal(t, 3, ds.Len())
	assert.Equal(t, []string{"110222-06", "121119-03", "120323-01"}, ds.Serials())

	b, ok := ds.Bottle("110222-06")
	require.True(t, ok)
	assert.Equal(t, 999, b.ID)
	assert.Equal(t, 56*time.Minute, b.Interval)
	assert.Equal(t, "Pressure 14d", b.Mode.String())
	require.Len(t, b.Heads, 1)
	assert.Equal(t, "60108", b.Heads[0].Serial)
	assert.Equal(t, 150, b.Heads[0].PressureLimit)
	assert.Len(t, b.Heads[0].Readings, 361)
	assert.Equal(t, 361, b.DesiredValues())

	b, ok = ds.Bottle("12111903")
	require.True(t, ok)
	assert.Equal(t, 12*time.Minute, b.Interval)
	assert.Empty(t, b.Heads[0].Readings)

	b, ok = ds.Bottle("120323-01")
	require.True(t, ok)
	assert.Equal(t, bottle.BOD, b.Mode.Kind)
	assert.Equal(t, 112*time.Minute, b.Interval)
	require.Len(t, b.Heads, 2)
	assert.Equal(t, "60145", b.Heads[0].Serial)
	assert.Equal(t, "60143", b.Heads[1].Serial)

	_, ok = ds.Bottle("990101-01")
	assert.False(t, ok)
	_, ok = ds.Bottle("garbage")
	assert.False(t, ok)

	assert.Same(t, ds, DefaultDataset())
}

func TestDataset_CopiesAreIndependent(t *testing.T) {
	ds := DefaultDataset()

	b, ok := ds.Bottle("110222-06")
	require.True(t, ok)
	b.ID = 1
	b.Heads[0].Readings[0].Value = 0

	bottles := ds.Bottles()
	bottles[0].Heads = nil

	again, _ := ds.Bottle("110222-06")
	assert.Equal(t, 999, again.ID)
	assert.Equal(t, 970, again.Heads[0].Readings[0].Value)
	assert.Len(t, ds.Bottles()[0].Heads, 1)
}

func TestNewDataset_Rejects(t *testing.T) {
	bottles := DefaultDataset().Bottles()

	_, err := NewDataset([]*bottle.Bottle{bottles[0], bottles[0]})
	require.ErrorIs(t, err, bottle.ErrMalformedRecord)

	bottles[1].ID = 0
	_, err = NewDataset(bottles)
	require.ErrorIs(t, err, bottle.ErrMalformedRecord)

	ds, err := NewDataset(nil)
	require.NoError(t, err)
	assert.Zero(t, ds.Len())
}
