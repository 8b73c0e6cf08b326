package parse

import "math"

// Intensity curve breakpoints in metres.
const (
	curveNearLimit = 5.0
	curveFarLimit  = 40.0

	refPowerMin = 4.0
	refPowerMax = 500.0
	maxOutput   = 255.0

	// temperatureScale is the °C span that doubles the received power.
	temperatureScale = 24.0
)

// DecodeTemperature converts the two raw thermistor bytes (wire order) into
// degrees Celsius according to the family layout.
func DecodeTemperature(layout TemperatureLayout, raw [2]byte) float64 {
	var hi, lo byte
	var scale, lsb float64
	switch layout {
	case TemperatureSign7Nibble:
		hi, lo = raw[0], raw[1]
		scale, lsb = 16, float64(lo>>4)
	default:
		hi, lo = raw[1], raw[0]
		scale, lsb = 32, float64(lo>>3)
	}
	msb := float64(hi & 0x7F)
	t := (msb*scale + lsb) * 0.0625
	if hi&0x80 != 0 {
		t = -t
	}
	return t
}

// TemperatureBucket maps a temperature to a column of the distance
// correction table. Readings below tMin use column 0 and readings above
// tMin+tRange use the last column.
func TemperatureBucket(t float64, tMin, tRange int) int {
	idx := int(math.Floor(t + 0.5))
	switch {
	case idx < tMin:
		return 0
	case idx > tMin+tRange:
		return tRange
	default:
		return idx - tMin
	}
}

// correctedTicks subtracts the per-channel, per-bucket correction and
// floors the result at zero.
func correctedTicks(c *Calibration, laser, bucket, raw int) int {
	corr := int(c.DistanceCorrection[laser][bucket])
	if raw < corr {
		return 0
	}
	return raw - corr
}

// CalibratedDistance returns the corrected distance in metres.
func CalibratedDistance(c *Calibration, laser, bucket, raw int) float64 {
	return float64(correctedTicks(c, laser, bucket, raw)) * c.ResolutionCoef()
}

// remapPower expands the compressed raw power code for the active curve.
func remapPower(mode IntensityMode, p float64) float64 {
	switch mode {
	case IntensityCurveV1:
		switch r := int(p); {
		case r < 126:
			return p * 4
		case r < 226:
			return (p-125)*16 + 500
		default:
			return (p-225)*256 + 2100
		}
	case IntensityCurveV2:
		switch r := int(p); {
		case r < 64:
			return p
		case r < 176:
			return (p-64)*4 + 64
		default:
			return (p-176)*16 + 512
		}
	}
	return p
}

func curvePoly(curves [][]float64, laser int, d float64) float64 {
	return curves[4][laser]*d*d + curves[5][laser]*d + curves[6][laser]
}

// referencePower evaluates the channel's reflectivity curve at d metres.
func referencePower(mode IntensityMode, curves [][]float64, laser int, d float64) float64 {
	if d <= curveNearLimit {
		return curves[0][laser]*math.Exp(curves[1][laser]-curves[2][laser]*d) + curves[3][laser]
	}
	if mode == IntensityCurveV2 && d > curveFarLimit {
		p40 := curvePoly(curves, laser, curveFarLimit)
		p39 := curvePoly(curves, laser, curveFarLimit-1)
		return 0.3*(p40-p39)*d + p40
	}
	return curvePoly(curves, laser, d)
}

// CalibratedIntensity converts a raw intensity byte to a temperature and
// range compensated reflectivity capped at 255. The result may be NaN for
// degenerate temperatures; callers map that to 0.
func CalibratedIntensity(c *Calibration, laser, bucket, rawDistance int, rawIntensity uint8, temperature float64, tMin int) float64 {
	if c.IntensityMode == IntensityPassThrough {
		return float64(rawIntensity)
	}
	power := math.Max(float64(rawIntensity)/(1+(temperature-float64(tMin))/temperatureScale), 1)
	power = remapPower(c.IntensityMode, power)

	d := CalibratedDistance(c, laser, bucket, rawDistance)
	ref := referencePower(c.IntensityMode, c.IntensityCurves, laser, d)
	ref = math.Max(math.Min(ref, refPowerMax), refPowerMin)

	out := c.IntensityCoef * ref / power
	if out > maxOutput {
		out = maxOutput
	}
	return out
}
