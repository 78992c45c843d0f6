package stroke

import "math"

// Report flag bits.
const (
	FlagTSW byte = 0x01 // tip switch
	FlagRDY byte = 0x04 // in range and valid

	penDown = FlagRDY | FlagTSW
)

// MinDistanceSq is the squared filtered displacement that must be reached
// before a segment is emitted.
const MinDistanceSq = 10 * 10

// convergeSteps is how many times the last sample is re-fed on pen lift.
const convergeSteps = 4

// State is the segmenter's position within a trace.
type State int

const (
	NoPoints State = iota
	OnePoint
	MultiplePoints
)

func (s State) String() string {
	switch s {
	case NoPoints:
		return "NO_POINTS"
	case OnePoint:
		return "ONE_POINT"
	case MultiplePoints:
		return "MULTIPLE_POINTS"
	}
	return "UNKNOWN"
}

// Segment is one emitted piece of ink, in digitizer units.
type Segment struct {
	X1        int     `json:"x1" cbor:"1,keyasint"`
	Y1        int     `json:"y1" cbor:"2,keyasint"`
	X2        int     `json:"x2" cbor:"3,keyasint"`
	Y2        int     `json:"y2" cbor:"4,keyasint"`
	LineWidth float64 `json:"lineWidth" cbor:"5,keyasint"`
}

// IsPenDown reports whether flags mark the pen as touching and valid.
func IsPenDown(flags byte) bool {
	return flags&penDown == penDown
}

// Segmenter is the per-device stroke state machine. It is not safe for
// concurrent use.
type Segmenter struct {
	state  State
	filter DynamicFilter
	width  *LineWidth
	last   Point // previous sample, used for convergence on lift
}

// NewSegmenter returns a segmenter waiting for the first pen-down sample.
func NewSegmenter() *Segmenter {
	return &Segmenter{width: NewLineWidth()}
}

// State returns the current trace state.
func (s *Segmenter) State() State { return s.state }

// Filter returns a copy of the filter state.
func (s *Segmenter) Filter() DynamicFilter { return s.filter }

// Reset abandons any trace in progress.
func (s *Segmenter) Reset() {
	s.state = NoPoints
	s.filter = DynamicFilter{}
	s.width.Reset()
	s.last = Point{}
}

// Feed consumes one sample and returns the segments it completes, if any.
func (s *Segmenter) Feed(sample Sample) []Segment {
	var out []Segment
	down := IsPenDown(sample.Flags)

	switch s.state {
	case NoPoints:
		if down {
			s.state = OnePoint
			s.filter.Reset(sample.Point)
			s.width.Reset()
		}

	case OnePoint, MultiplePoints:
		switch {
		case down:
			if seg, ok := s.advance(sample.Point, -1); ok {
				s.state = MultiplePoints
				out = append(out, seg)
			}

		case s.state == OnePoint:
			// lifted without moving: a dot
			s.state = NoPoints
			lw := s.width.Compute(-1, float64(s.filter.Current.Pressure))
			out = append(out, s.segment(lw))

		default:
			s.state = NoPoints
			v := math.Hypot(float64(s.filter.Velocity.X), float64(s.filter.Velocity.Y))
			for i := 0; i < convergeSteps; i++ {
				if seg, ok := s.advance(s.last, v); ok {
					out = append(out, seg)
				}
			}
		}
	}

	s.last = sample.Point
	return out
}

// advance applies the filter toward target and emits a segment when the
// threshold is reached. A negative velocity derives speed from the distance
// travelled since the last commit.
func (s *Segmenter) advance(target Point, velocity float64) (Segment, bool) {
	d := s.filter.Apply(target)
	if d < MinDistanceSq {
		return Segment{}, false
	}
	if velocity < 0 {
		velocity = math.Sqrt(float64(d)) / float64(s.filter.Time)
	}
	pressure := float64(s.filter.Last.Pressure+s.filter.Current.Pressure) / 2
	seg := s.segment(s.width.Compute(velocity, pressure))
	s.filter.Commit()
	return seg, true
}

func (s *Segmenter) segment(lw float64) Segment {
	return Segment{
		X1:        s.filter.Last.X,
		Y1:        s.filter.Last.Y,
		X2:        s.filter.Current.X,
		Y2:        s.filter.Current.Y,
		LineWidth: lw,
	}
}
