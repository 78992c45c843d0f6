package stroke

const (
	ticksPerMM   = 100.0
	msPerSample  = 6.924
	penAngleCos  = 0.866
	displayScale = 0.75

	// DefaultSpeed is the speed in mm/s assumed for dots, where no
	// velocity is known.
	DefaultSpeed = 75.0

	maxSeedWidth = 45.0
)

func mmToDigitizer(mm float64) float64 { return mm * ticksPerMM * displayScale }

// velocityToDistance converts mm/s to digitizer units per sample.
func velocityToDistance(v float64) float64 { return v * ticksPerMM * msPerSample / 1000 }

// massToPressure converts grams of tip force to a 10-bit pressure value.
func massToPressure(g float64) float64 { return g*penAngleCos*1023.0/600.0 + 0.5 }

var massAxis = []float64{10, 25, 50, 100, 150, 200, 250, 300, 350, 400, 450, 500, 550, 600}

// Measured stroke widths in mm, one row per pen speed in mm/s, one column per
// entry of massAxis.
var widthRows = []struct {
	speed  float64
	widths []float64
}{
	{1.0, []float64{0.72, 0.8, 0.908937, 1.108957, 1.266351, 1.388042, 1.462073, 1.54, 1.618852, 1.701938, 1.793265, 1.86, 1.92, 1.954108}},
	{5.0, []float64{0.49, 0.53, 0.614119, 0.758321, 0.868824, 0.91, 0.942034, 1.000218, 1.047881, 1.083052, 1.155148, 1.196536, 1.25, 1.286546}},
	{30.0, []float64{0.3, 0.34, 0.387672, 0.493372, 0.565948, 0.620261, 0.673648, 0.710716, 0.746997, 0.777846, 0.815101, 0.837235, 0.88, 0.926857}},
	{75.0, []float64{0.29, 0.295, 0.32, 0.374948, 0.422921, 0.47353, 0.508386, 0.541358, 0.577623, 0.600577, 0.621771, 0.651861, 0.67, 0.69}},
	{100.0, []float64{0.28, 0.29, 0.302881, 0.338898, 0.387231, 0.433664, 0.452389, 0.482745, 0.51697, 0.534589, 0.55737, 0.581577, 0.61, 0.62}},
	{180.0, []float64{0.25, 0.26, 0.280375, 0.311056, 0.362906, 0.390511, 0.414745, 0.436406, 0.46384, 0.478165, 0.501515, 0.521805, 0.54, 0.55}},
}

// widthTable is widthRows converted to digitizer units.
type widthTable struct {
	distance []float64   // per row, units per sample
	pressure []float64   // per column
	width    [][]float64 // [row][column], digitizer units
}

var table = buildTable()

func buildTable() widthTable {
	t := widthTable{
		distance: make([]float64, len(widthRows)),
		pressure: make([]float64, len(massAxis)),
		width:    make([][]float64, len(widthRows)),
	}
	for j, g := range massAxis {
		t.pressure[j] = massToPressure(g)
	}
	for i, row := range widthRows {
		t.distance[i] = velocityToDistance(row.speed)
		t.width[i] = make([]float64, len(row.widths))
		for j, mm := range row.widths {
			t.width[i][j] = mmToDigitizer(mm)
		}
	}
	return t
}

// bracket returns the index i in [1, len(axis)-1] such that v lies in
// [axis[i-1], axis[i]], given v already clamped to the axis.
func bracket(axis []float64, v float64) int {
	i := 1
	for i < len(axis)-1 && v > axis[i] {
		i++
	}
	return i
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func lerp(x0, x1, y0, y1, x float64) float64 {
	return y0 + (x-x0)*(y1-y0)/(x1-x0)
}

// lookup interpolates the width table bilinearly at distance d and pressure p.
func (t *widthTable) lookup(d, p float64) float64 {
	d = clamp(d, t.distance[0], t.distance[len(t.distance)-1])
	p = clamp(p, t.pressure[0], t.pressure[len(t.pressure)-1])

	i := bracket(t.distance, d)
	j := bracket(t.pressure, p)

	row := func(r int) float64 {
		return lerp(t.pressure[j-1], t.pressure[j], t.width[r][j-1], t.width[r][j], p)
	}
	return lerp(t.distance[i-1], t.distance[i], row(i-1), row(i), d)
}

// LineWidth computes segment widths for one trace, smoothing each width
// against the previous one so consecutive segments do not jump.
type LineWidth struct {
	old float64
}

// NewLineWidth returns a model ready for a new trace.
func NewLineWidth() *LineWidth {
	return &LineWidth{old: -1}
}

// Reset forgets the previous width; call at the start of every trace.
func (m *LineWidth) Reset() { m.old = -1 }

// Compute returns the width in digitizer units for a segment travelled at
// velocity (units per sample) with the given pressure. A negative velocity
// selects DefaultSpeed.
func (m *LineWidth) Compute(velocity, pressure float64) float64 {
	dist := velocity
	if velocity < 0 {
		dist = velocityToDistance(DefaultSpeed)
	}
	dist = clamp(dist, table.distance[0], table.distance[len(table.distance)-1])

	lw := table.lookup(dist, pressure)

	if m.old < 0 {
		m.old = min(lw, maxSeedWidth)
	}
	lw = (2*dist*lw + m.old*m.old) / (2*dist + m.old)
	m.old = lw
	return lw
}
