package bottle

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidWindow indicates a moving average window that is not a positive odd number.
var ErrInvalidWindow = errors.New("invalid moving average window")

// Point is one value of a derived reading view.
type Point struct {
	Timestamp time.Time
	Value     float64
}

// ViewOptions selects a derived view of a head's readings.
type ViewOptions struct {
	// Delta subtracts the first value from every value.
	Delta bool
	// Window is the moving average window; 0 or 1 disables averaging and
	// negative values are invalid.
	Window int
}

// Absolute returns the raw values as points.
func Absolute(readings []Reading) []Point {
	points := make([]Point, len(readings))
	for i, r := range readings {
		points[i] = Point{Timestamp: r.Timestamp, Value: float64(r.Value)}
	}

	return points
}

// Delta returns every value minus the first value.
func Delta(readings []Reading) []Point {
	points := make([]Point, len(readings))
	if len(readings) == 0 {
		return points
	}

	first := readings[0].Value
	for i, r := range readings {
		points[i] = Point{Timestamp: r.Timestamp, Value: float64(r.Value - first)}
	}

	return points
}

// MovingAverage returns the centered moving average of points over an odd
// window n.
//
// Points closer than (n-1)/2 to either end have no full window and are
// omitted, so the result has max(0, len(points)-n+1) points and point i
// carries the timestamp of input i+(n-1)/2.
func MovingAverage(points []Point, n int) ([]Point, error) {
	if n < 1 || n%2 == 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidWindow, n)
	}
	if len(points) < n {
		return []Point{}, nil
	}

	half := (n - 1) / 2
	out := make([]Point, 0, len(points)-n+1)

	var sum float64
	for i := range n {
		sum += points[i].Value
	}
	for i := 0; ; i++ {
		out = append(out, Point{Timestamp: points[i+half].Timestamp, Value: sum / float64(n)})
		if i+n >= len(points) {
			break
		}
		sum += points[i+n].Value - points[i].Value
	}

	return out, nil
}

// View applies the delta or absolute view and then the moving average.
func View(readings []Reading, opts ViewOptions) ([]Point, error) {
	if opts.Window < 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidWindow, opts.Window)
	}

	var points []Point
	if opts.Delta {
		points = Delta(readings)
	} else {
		points = Absolute(readings)
	}

	if opts.Window <= 1 {
		return points, nil
	}

	return MovingAverage(points, opts.Window)
}
