package lidar

import (
	"math"
	"time"
)

// Point is one decoded laser return in the sensor frame.
//
// Every channel slot of a decoded block produces exactly one Point so that
// slot position stays aligned with the raw packet. A slot whose sample was
// filtered (out of range, outside the azimuth keep-window) carries NaN
// coordinates and zero intensity; see Valid.
type Point struct {
	X         float64 // metres, forward at azimuth 0
	Y         float64 // metres, negative towards increasing azimuth
	Z         float64 // metres, up
	Intensity float64 // calibrated reflectivity 0..255, never NaN

	Distance  float64   // calibrated range in metres
	Azimuth   float64   // corrected horizontal angle in degrees [0, 360)
	Elevation float64   // vertical angle in degrees
	Channel   int       // laser ring index
	BlockID   int       // index of the data block within the packet
	Timestamp time.Time // firing time of this channel
}

// Valid reports whether the point carries real coordinates.
func (p Point) Valid() bool {
	return !math.IsNaN(p.X) && !math.IsNaN(p.Y) && !math.IsNaN(p.Z)
}

// Invalidate turns p into the filtered-sample sentinel in place, keeping the
// slot metadata (channel, block, timestamp, azimuth) intact.
func (p *Point) Invalidate() {
	nan := math.NaN()
	p.X, p.Y, p.Z = nan, nan, nan
	p.Intensity = 0
}

// CountValid returns the number of points that are not sentinels.
func CountValid(points []Point) int {
	n := 0
	for i := range points {
		if points[i].Valid() {
			n++
		}
	}
	return n
}
