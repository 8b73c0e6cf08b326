package monitor

import (
	"errors"
	"fmt"
	"image/color"
	"os"
	"path/filepath"
	"strconv"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// Output file names written by WritePlots.
const (
	RangeHistogramFile = "range_hist.png"
	LaserCountsFile    = "laser_counts.png"
)

// ErrNoSamples is returned when there is nothing to plot.
var ErrNoSamples = errors.New("no valid points recorded")

var (
	histFill = color.RGBA{R: 66, G: 133, B: 244, A: 255}
	barFill  = color.RGBA{R: 219, G: 68, B: 55, A: 255}
)

// WritePlots renders the range histogram and the per-laser valid point
// counts of s as PNG files in dir and returns their paths.
func WritePlots(dir string, s *RangeSummary, bins int) ([]string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output dir: %w", err)
	}
	snap := s.Snapshot()
	if snap.Samples == 0 {
		return nil, ErrNoSamples
	}

	histPath := filepath.Join(dir, RangeHistogramFile)
	if err := writeRangeHistogram(histPath, snap, s.Distances(), bins); err != nil {
		return nil, err
	}
	countsPath := filepath.Join(dir, LaserCountsFile)
	if err := writeLaserCounts(countsPath, snap); err != nil {
		return []string{histPath}, err
	}
	return []string{histPath, countsPath}, nil
}

func writeRangeHistogram(path string, snap Summary, distances []float64, bins int) error {
	if bins <= 0 {
		bins = 100
	}
	p := plot.New()
	p.Title.Text = fmt.Sprintf("%s range distribution (%s)", snap.Model, snap.RunID)
	p.X.Label.Text = "Distance (m)"
	p.Y.Label.Text = "Points"

	h, err := plotter.NewHist(plotter.Values(distances), bins)
	if err != nil {
		return fmt.Errorf("range histogram: %w", err)
	}
	h.FillColor = histFill
	h.LineStyle.Width = vg.Points(0.5)
	p.Add(h)

	if err := p.Save(10*vg.Inch, 5*vg.Inch, path); err != nil {
		return fmt.Errorf("save range histogram: %w", err)
	}
	return nil
}

func writeLaserCounts(path string, snap Summary) error {
	p := plot.New()
	p.Title.Text = fmt.Sprintf("%s valid points per laser", snap.Model)
	p.X.Label.Text = "Laser"
	p.Y.Label.Text = "Points"

	values := make(plotter.Values, len(snap.PerLaser))
	names := make([]string, len(snap.PerLaser))
	step := 1
	if len(snap.PerLaser) > 32 {
		step = 8
	}
	for i, n := range snap.PerLaser {
		values[i] = float64(n)
		if i%step == 0 {
			names[i] = strconv.Itoa(i)
		}
	}

	bars, err := plotter.NewBarChart(values, vg.Points(4))
	if err != nil {
		return fmt.Errorf("laser counts: %w", err)
	}
	bars.Color = barFill
	bars.LineStyle.Width = 0
	p.Add(bars)
	p.NominalX(names...)

	if err := p.Save(10*vg.Inch, 4*vg.Inch, path); err != nil {
		return fmt.Errorf("save laser counts: %w", err)
	}
	return nil
}
