package parse

import (
	"fmt"
	"math"
)

// EchoMode is the sensor's return reporting mode as resolved from DIFOP.
type EchoMode int

const (
	EchoUnknown  EchoMode = iota // no DIFOP yet, or an unrecognised return byte
	EchoSingle                   // firmware predating the return-mode field
	EchoDualMax                  // return byte 0x01
	EchoDualLast                 // return byte 0x02
)

func (e EchoMode) String() string {
	switch e {
	case EchoSingle:
		return "single"
	case EchoDualMax:
		return "dual-max"
	case EchoDualLast:
		return "dual-last"
	default:
		return "unknown"
	}
}

// Dual reports whether blocks arrive in same-azimuth pairs.
func (e EchoMode) Dual() bool {
	return e == EchoDualMax || e == EchoDualLast
}

// IntensityMode selects the intensity calibration curve family.
type IntensityMode int

const (
	IntensityCurveV1 IntensityMode = iota
	IntensityCurveV2
	IntensityPassThrough
)

func (m IntensityMode) String() string {
	switch m {
	case IntensityCurveV1:
		return "curve-v1"
	case IntensityCurveV2:
		return "curve-v2"
	case IntensityPassThrough:
		return "passthrough"
	default:
		return fmt.Sprintf("IntensityMode(%d)", int(m))
	}
}

// Latch bits in Calibration.Loaded. Once set, DIFOP no longer rewrites the
// corresponding table.
const (
	LoadedCurves uint8 = 1 << 0
	LoadedAngles uint8 = 1 << 1
)

// Resolution coefficients, metres per distance tick.
const (
	RESOLUTION_FINE_COEF   = 0.005
	RESOLUTION_COARSE_COEF = 0.01

	DEFAULT_INTENSITY_COEF = 51
	DEFAULT_RPM            = 600
	CURVE_COEFFS           = 7
)

// Calibration is the mutable per-sensor device state. It is owned by one
// Decoder; DIFOP packets and externally loaded tables are the only writers.
type Calibration struct {
	EchoMode      EchoMode
	Coarse        bool // distance tick is RESOLUTION_COARSE_COEF rather than fine
	IntensityMode IntensityMode
	IntensityCoef float64

	VertAngle          []int32     // centidegrees per laser, signed
	HorizAngle         []int32     // centidegrees per laser
	DistanceCorrection [][]int32   // [laser][temperature bucket] ticks
	IntensityCurves    [][]float64 // [CURVE_COEFFS][laser]

	Loaded uint8 // LoadedCurves | LoadedAngles

	MinRange float64
	MaxRange float64

	RPM                  int
	PacketsPerRevolution int
}

func newCalibration(f *Family) *Calibration {
	c := &Calibration{
		EchoMode:           EchoUnknown,
		Coarse:             true,
		IntensityMode:      IntensityCurveV1,
		IntensityCoef:      DEFAULT_INTENSITY_COEF,
		VertAngle:          make([]int32, f.Lasers),
		HorizAngle:         make([]int32, f.Lasers),
		DistanceCorrection: make([][]int32, f.Lasers),
		IntensityCurves:    make([][]float64, CURVE_COEFFS),
		MinRange:           f.RangeMin,
		MaxRange:           f.RangeMax,
		RPM:                DEFAULT_RPM,
	}
	for i := range c.DistanceCorrection {
		c.DistanceCorrection[i] = make([]int32, f.Buckets())
	}
	for k := range c.IntensityCurves {
		c.IntensityCurves[k] = make([]float64, f.Lasers)
	}
	c.PacketsPerRevolution = packetsPerRevolution(f, c.EchoMode, c.RPM)
	return c
}

// Clone returns a deep copy.
func (c *Calibration) Clone() *Calibration {
	out := *c
	out.VertAngle = append([]int32(nil), c.VertAngle...)
	out.HorizAngle = append([]int32(nil), c.HorizAngle...)
	out.DistanceCorrection = make([][]int32, len(c.DistanceCorrection))
	for i, row := range c.DistanceCorrection {
		out.DistanceCorrection[i] = append([]int32(nil), row...)
	}
	out.IntensityCurves = make([][]float64, len(c.IntensityCurves))
	for i, row := range c.IntensityCurves {
		out.IntensityCurves[i] = append([]float64(nil), row...)
	}
	return &out
}

// ResolutionCoef returns metres per distance tick.
func (c *Calibration) ResolutionCoef() float64 {
	if c.Coarse {
		return RESOLUTION_COARSE_COEF
	}
	return RESOLUTION_FINE_COEF
}

// packetsPerRevolution estimates MSOP packets per motor revolution:
// ceil(firings/s ÷ blocks/packet), scaled by DualRateScale in the dual
// modes, then by 60/rpm and rounded up.
func packetsPerRevolution(f *Family, echo EchoMode, rpm int) int {
	if rpm <= 0 {
		rpm = DEFAULT_RPM
	}
	rate := math.Ceil(float64(f.FiringsPerSecond) / float64(f.BlocksPerPacket))
	if echo.Dual() && f.DualRateScale > 0 {
		rate = math.Ceil(rate * f.DualRateScale)
	}
	return int(math.Ceil(rate * 60 / float64(rpm)))
}

// Config is the construction bundle for a Decoder. Ranges are metres,
// angles are degrees. Out-of-family values are replaced by family defaults.
type Config struct {
	MinRange   float64
	MaxRange   float64
	StartAngle float64
	EndAngle   float64
	// FineResolution starts the decoder with the 0.005 m tick until a DIFOP
	// packet says otherwise.
	FineResolution bool
}

// DefaultConfig keeps the full family range and the full rotation.
func DefaultConfig(f *Family) Config {
	return Config{
		MinRange:   f.RangeMin,
		MaxRange:   f.RangeMax,
		StartAngle: 0,
		EndAngle:   360,
	}
}

// clampRanges applies the family rules: a max outside [RangeMin, RangeMax]
// or a min outside [0, RangeMax] falls back to that bound's default, and an
// inverted pair resets both.
func clampRanges(f *Family, minRange, maxRange float64) (float64, float64) {
	if math.IsNaN(maxRange) || maxRange > f.RangeMax || maxRange < f.RangeMin {
		maxRange = f.RangeMax
	}
	if math.IsNaN(minRange) || minRange > f.RangeMax || minRange < 0 {
		minRange = f.RangeMin
	}
	if minRange > maxRange {
		minRange, maxRange = f.RangeMin, f.RangeMax
	}
	return minRange, maxRange
}

// keepWindow is the azimuth keep-range in centidegrees. When start < end it
// is [start, end]; otherwise it wraps through 0 as [start, 36000) ∪ [0, end].
type keepWindow struct {
	start, end int
	simple     bool
}

func newKeepWindow(startDeg, endDeg float64) keepWindow {
	start := int(math.Round(startDeg * 100))
	end := int(math.Round(endDeg * 100))
	if math.IsNaN(startDeg) || start < 0 || start > ROTATION_UNITS {
		start = 0
	}
	if math.IsNaN(endDeg) || end < 0 || end > ROTATION_UNITS {
		end = ROTATION_UNITS
	}
	return keepWindow{start: start, end: end, simple: start < end}
}

func (w keepWindow) contains(azimuth int) bool {
	if w.simple {
		return azimuth >= w.start && azimuth <= w.end
	}
	return (azimuth >= w.start && azimuth < ROTATION_UNITS) || (azimuth >= 0 && azimuth <= w.end)
}

// CalibrationTables carries externally loaded tables. Nil fields leave the
// current table untouched.
type CalibrationTables struct {
	VertAngle          []int32
	HorizAngle         []int32
	DistanceCorrection [][]int32
	IntensityCurves    [][]float64

	// MinRange and MaxRange, when positive, replace the configured window
	// subject to the same family clamping as Config.
	MinRange float64
	MaxRange float64
}

// Validate checks every supplied table against the family dimensions.
func (t *CalibrationTables) Validate(f *Family) error {
	if t.VertAngle != nil && len(t.VertAngle) != f.Lasers {
		return fmt.Errorf("vertical angles: %d rows, want %d: %w", len(t.VertAngle), f.Lasers, ErrTableShape)
	}
	if t.HorizAngle != nil && len(t.HorizAngle) != f.Lasers {
		return fmt.Errorf("horizontal angles: %d rows, want %d: %w", len(t.HorizAngle), f.Lasers, ErrTableShape)
	}
	if t.DistanceCorrection != nil {
		if len(t.DistanceCorrection) != f.Lasers {
			return fmt.Errorf("distance correction: %d rows, want %d: %w", len(t.DistanceCorrection), f.Lasers, ErrTableShape)
		}
		for i, row := range t.DistanceCorrection {
			if len(row) != f.Buckets() {
				return fmt.Errorf("distance correction row %d: %d columns, want %d: %w", i, len(row), f.Buckets(), ErrTableShape)
			}
		}
	}
	if t.IntensityCurves != nil {
		if len(t.IntensityCurves) != CURVE_COEFFS {
			return fmt.Errorf("intensity curves: %d coefficient rows, want %d: %w", len(t.IntensityCurves), CURVE_COEFFS, ErrTableShape)
		}
		for k, row := range t.IntensityCurves {
			if len(row) != f.Lasers {
				return fmt.Errorf("intensity curve coefficient %d: %d channels, want %d: %w", k, len(row), f.Lasers, ErrTableShape)
			}
		}
	}
	return nil
}
