package bottle

import (
	"testing"
	"time"
)

func date(year int, month time.Month, day, hour, minute, sec int) time.Time {
	return time.Date(year, month, day, hour, minute, sec, 0, time.UTC)
}

// newPressureBottle returns bottle 110222-06 with n readings on head 60108.
func newPressureBottle(t *testing.T, n int) *Bottle {
	t.Helper()

	start := date(2011, 2, 22, 16, 54, 55)
	finish := date(2011, 3, 8, 16, 54, 55)
	b := &Bottle{
		Serial:       "110222-06",
		ID:           999,
		Start:        start,
		Finish:       finish,
		Interval:     IntervalOf(start, finish, 360),
		Completed:    true,
		Mode:         NewMode(Pressure, start, finish),
		BottleVolume: 510,
		SampleVolume: 432,
		Measurements: 360,
	}

	values := make([]int, n)
	for i := range values {
		values[i] = 970 - i%7
	}
	b.Heads = []*Head{{Serial: "60108", PressureLimit: 150, Readings: b.NewReadings(values)}}

	return b
}

// newBODBottle returns bottle 120323-01 run in BOD mode with two heads.
func newBODBottle(t *testing.T) *Bottle {
	t.Helper()

	start := date(2012, 3, 23, 17, 32, 23)
	finish := date(2012, 4, 20, 17, 32, 23)
	b := &Bottle{
		Serial:       "120323-01",
		ID:           1,
		Start:        start,
		Finish:       finish,
		Interval:     IntervalOf(start, finish, 360),
		Completed:    true,
		Mode:         NewMode(BOD, start, finish),
		BottleVolume: 510,
		SampleVolume: 432,
		Measurements: 360,
	}
	b.Heads = []*Head{
		{Serial: "60145", Readings: b.NewReadings([]int{976, 964, 963})},
		{Serial: "60143", Readings: b.NewReadings([]int{970, 965})},
	}

	return b
}

func stripReadings(b *Bottle) *Bottle {
	c := b.Clone()
	for _, h := range c.Heads {
		h.Readings = nil
	}

	return c
}
