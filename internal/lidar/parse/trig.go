package parse

import (
	"math"
	"sync"
)

// trigTable holds sin and cos for every centidegree of a rotation.
type trigTable struct {
	sin [ROTATION_UNITS]float64
	cos [ROTATION_UNITS]float64
}

// trig is built once on first use and shared read-only afterwards.
var trig = sync.OnceValue(func() *trigTable {
	t := &trigTable{}
	for i := 0; i < ROTATION_UNITS; i++ {
		rad := float64(i) * 0.01 * math.Pi / 180
		t.sin[i] = math.Sin(rad)
		t.cos[i] = math.Cos(rad)
	}
	return t
})

// FoldAzimuth maps any centidegree value into [0, 36000).
func FoldAzimuth(a int) int {
	a %= ROTATION_UNITS
	if a < 0 {
		a += ROTATION_UNITS
	}
	return a
}

// Sin returns the sine of a centidegree angle.
func Sin(centideg int) float64 {
	return trig().sin[FoldAzimuth(centideg)]
}

// Cos returns the cosine of a centidegree angle.
func Cos(centideg int) float64 {
	return trig().cos[FoldAzimuth(centideg)]
}
