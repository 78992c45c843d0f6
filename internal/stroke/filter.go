// Package stroke turns raw digitizer samples into smoothed ink segments.
//
// Samples pass through a fixed-point position/velocity filter; the segmenter
// emits a segment whenever the filtered pen has moved far enough from the
// last accepted point, weighting its width by pressure and speed.
package stroke

// Filter gains in 1/8192 units.
const (
	kpp       = 1229 // ≈0.15, proportional
	kdd       = 4915 // ≈0.60, derivative
	gainShift = 13
	maxTime   = 255
)

// Point is a digitizer position with pen pressure.
type Point struct {
	X        int `json:"x"`
	Y        int `json:"y"`
	Pressure int `json:"pressure"`
}

// Sample is one digitizer report.
type Sample struct {
	Point
	Flags byte `json:"flags"`
}

// DynamicFilter is a critically damped second-order filter applied
// independently to x, y and pressure.
//
// Integer velocity quantization leaves the filter resting up to
// 8192/kpp (6) units short of a constant target.
type DynamicFilter struct {
	Last     Point // last accepted position
	Current  Point
	Velocity Point
	Time     int // samples since Last was committed, saturating at 255
}

// Reset starts a new trace at s.
func (f *DynamicFilter) Reset(s Point) {
	f.Last = s
	f.Current = s
	f.Velocity = Point{}
	f.Time = 0
}

// Commit accepts Current as the start of the next segment.
func (f *DynamicFilter) Commit() {
	f.Last = f.Current
	f.Time = 0
}

// Apply advances the filter one step toward target and returns the squared
// x/y distance between Current and Last.
func (f *DynamicFilter) Apply(target Point) int {
	if f.Time < maxTime {
		f.Time++
	}

	step(&f.Current.X, &f.Velocity.X, target.X)
	step(&f.Current.Y, &f.Velocity.Y, target.Y)
	step(&f.Current.Pressure, &f.Velocity.Pressure, target.Pressure)

	dx := f.Current.X - f.Last.X
	dy := f.Current.Y - f.Last.Y
	return dx*dx + dy*dy
}

func step(cur, vel *int, target int) {
	a := kpp*(target-*cur) - kdd*(*vel)
	*cur += *vel
	*vel = ((*vel << gainShift) + a) >> gainShift
}
