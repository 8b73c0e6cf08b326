package monitor

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/rslidar/internal/lidar"
)

// DefaultMaxSamples bounds the number of valid points retained for
// distribution statistics.
const DefaultMaxSamples = 1 << 20

// RangeSummary accumulates decoded points into range and intensity
// statistics. It implements network.PointSink and is safe for concurrent
// use.
type RangeSummary struct {
	mu sync.Mutex

	runID      uuid.UUID
	model      string
	lasers     int
	maxSamples int
	started    time.Time

	packets   int64
	points    int64
	valid     int64
	perLaser  []int64
	distances []float64
	intensity []float64
	firstSeen time.Time
	lastSeen  time.Time
}

// NewRangeSummary returns an empty summary for a sensor with the given
// number of lasers. maxSamples <= 0 selects DefaultMaxSamples.
func NewRangeSummary(model string, lasers, maxSamples int) *RangeSummary {
	if maxSamples <= 0 {
		maxSamples = DefaultMaxSamples
	}
	return &RangeSummary{
		runID:      uuid.New(),
		model:      model,
		lasers:     lasers,
		maxSamples: maxSamples,
		started:    time.Now(),
		perLaser:   make([]int64, lasers),
	}
}

// RunID identifies this summary in logs and plot titles.
func (s *RangeSummary) RunID() uuid.UUID {
	return s.runID
}

// ConsumePoints records one packet's points. Invalid points only count
// toward the totals.
func (s *RangeSummary) ConsumePoints(firstAzimuth int, points []lidar.Point) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.packets++
	s.points += int64(len(points))
	for i := range points {
		p := &points[i]
		if !p.Valid() {
			continue
		}
		s.valid++
		if p.Channel >= 0 && p.Channel < s.lasers {
			s.perLaser[p.Channel]++
		}
		if !p.Timestamp.IsZero() {
			if s.firstSeen.IsZero() || p.Timestamp.Before(s.firstSeen) {
				s.firstSeen = p.Timestamp
			}
			if p.Timestamp.After(s.lastSeen) {
				s.lastSeen = p.Timestamp
			}
		}
		if len(s.distances) < s.maxSamples {
			s.distances = append(s.distances, p.Distance)
			s.intensity = append(s.intensity, p.Intensity)
		}
	}
}

// Distribution is a set of order and moment statistics.
type Distribution struct {
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"stddev"`
	P50    float64 `json:"p50"`
	P90    float64 `json:"p90"`
	P99    float64 `json:"p99"`
}

// Summary is a point-in-time view of a RangeSummary.
type Summary struct {
	RunID       uuid.UUID     `json:"run_id"`
	Model       string        `json:"model"`
	Packets     int64         `json:"packets"`
	Points      int64         `json:"points"`
	ValidPoints int64         `json:"valid_points"`
	Samples     int           `json:"samples"`
	Distance    Distribution  `json:"distance_m"`
	Intensity   Distribution  `json:"intensity"`
	PerLaser    []int64       `json:"per_laser"` // valid points per laser
	SensorSpan  time.Duration `json:"sensor_span_ns"`
	Elapsed     time.Duration `json:"elapsed_ns"`
}

// ValidFraction returns ValidPoints / Points, or 0 with no points.
func (s Summary) ValidFraction() float64 {
	if s.Points == 0 {
		return 0
	}
	return float64(s.ValidPoints) / float64(s.Points)
}

// Snapshot computes the statistics over the retained samples.
func (s *RangeSummary) Snapshot() Summary {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := Summary{
		RunID:       s.runID,
		Model:       s.model,
		Packets:     s.packets,
		Points:      s.points,
		ValidPoints: s.valid,
		Samples:     len(s.distances),
		Distance:    distribution(s.distances),
		Intensity:   distribution(s.intensity),
		PerLaser:    append([]int64(nil), s.perLaser...),
		Elapsed:     time.Since(s.started),
	}
	if !s.firstSeen.IsZero() {
		out.SensorSpan = s.lastSeen.Sub(s.firstSeen)
	}
	return out
}

// Distances returns a copy of the retained distance samples.
func (s *RangeSummary) Distances() []float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]float64(nil), s.distances...)
}

func distribution(x []float64) Distribution {
	if len(x) == 0 {
		return Distribution{}
	}
	sorted := append([]float64(nil), x...)
	sort.Float64s(sorted)

	var d Distribution
	d.Min = floats.Min(sorted)
	d.Max = floats.Max(sorted)
	if len(sorted) > 1 {
		d.Mean, d.StdDev = stat.MeanStdDev(sorted, nil)
	} else {
		d.Mean = sorted[0]
	}
	d.P50 = stat.Quantile(0.5, stat.Empirical, sorted, nil)
	d.P90 = stat.Quantile(0.9, stat.Empirical, sorted, nil)
	d.P99 = stat.Quantile(0.99, stat.Empirical, sorted, nil)
	return d
}

// String renders the summary as a multi-line report.
func (s Summary) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s run %s: %s packets, %s points, %s valid (%.1f%%)\n",
		s.Model, s.RunID,
		lidar.FormatWithCommas(s.Packets),
		lidar.FormatWithCommas(s.Points),
		lidar.FormatWithCommas(s.ValidPoints),
		100*s.ValidFraction())
	if s.Samples == 0 {
		return b.String()
	}
	fmt.Fprintf(&b, "  range m: min %.3f p50 %.3f p90 %.3f p99 %.3f max %.3f (mean %.3f ± %.3f)\n",
		s.Distance.Min, s.Distance.P50, s.Distance.P90, s.Distance.P99, s.Distance.Max,
		s.Distance.Mean, s.Distance.StdDev)
	fmt.Fprintf(&b, "  intensity: mean %.1f ± %.1f, max %.1f\n",
		s.Intensity.Mean, s.Intensity.StdDev, s.Intensity.Max)
	if s.SensorSpan > 0 {
		fmt.Fprintf(&b, "  sensor time span %v\n", s.SensorSpan)
	}
	return b.String()
}
