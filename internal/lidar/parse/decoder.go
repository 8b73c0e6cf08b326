package parse

import (
	"errors"
	"math"
	"sync"
	"time"

	"github.com/banshee-data/rslidar/internal/lidar"
)

// Observer receives per-packet decode outcomes. Implementations must be
// safe for concurrent use and must not call back into the Decoder.
type Observer interface {
	MsopDecoded(points, valid, skippedBlocks int)
	DifopDecoded(status DifopStatus)
	PacketRejected(err error)
	TemperatureRead(celsius float64)
}

type noopObserver struct{}

func (noopObserver) MsopDecoded(int, int, int) {}
func (noopObserver) DifopDecoded(DifopStatus)  {}
func (noopObserver) PacketRejected(error)      {}
func (noopObserver) TemperatureRead(float64)   {}

// Decoder turns MSOP records into points using the calibration state built
// from DIFOP records and externally loaded tables.
//
// MSOP decoding takes the read lock; DecodeDifop and SetCalibrationTables
// take the write lock and commit their changes in one step, so a packet is
// always decoded against a consistent snapshot. The temperature hold has
// its own mutex.
type Decoder struct {
	f *Family

	mu     sync.RWMutex
	cal    *Calibration
	window keepWindow
	obs    Observer

	tempMu  sync.Mutex
	temp    float64
	tempAge int
}

// NewDecoder returns a decoder for family f. Invalid range or angle
// settings in cfg fall back to the family defaults.
func NewDecoder(f *Family, cfg Config) *Decoder {
	cal := newCalibration(f)
	cal.MinRange, cal.MaxRange = clampRanges(f, cfg.MinRange, cfg.MaxRange)
	cal.Coarse = !cfg.FineResolution
	return &Decoder{
		f:      f,
		cal:    cal,
		window: newKeepWindow(cfg.StartAngle, cfg.EndAngle),
		obs:    noopObserver{},
		temp:   f.InitialTemperature,
	}
}

// SetObserver installs o; nil restores the no-op observer.
func (d *Decoder) SetObserver(o Observer) {
	if o == nil {
		o = noopObserver{}
	}
	d.mu.Lock()
	d.obs = o
	d.mu.Unlock()
}

// Family returns the decoder's constant bundle.
func (d *Decoder) Family() *Family {
	return d.f
}

// Calibration returns a deep copy of the current calibration state.
func (d *Decoder) Calibration() *Calibration {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.cal.Clone()
}

// SetCalibrationTables installs externally loaded tables. Every supplied
// table must match the family dimensions or nothing is changed.
func (d *Decoder) SetCalibrationTables(t CalibrationTables) error {
	if err := t.Validate(d.f); err != nil {
		opsf("%s: rejected calibration tables: %v", d.f.Name, err)
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	c := d.cal
	if t.VertAngle != nil {
		c.VertAngle = append([]int32(nil), t.VertAngle...)
	}
	if t.HorizAngle != nil {
		c.HorizAngle = append([]int32(nil), t.HorizAngle...)
	}
	if t.DistanceCorrection != nil {
		c.DistanceCorrection = make([][]int32, len(t.DistanceCorrection))
		for i, row := range t.DistanceCorrection {
			c.DistanceCorrection[i] = append([]int32(nil), row...)
		}
	}
	if t.IntensityCurves != nil {
		c.IntensityCurves = make([][]float64, len(t.IntensityCurves))
		for i, row := range t.IntensityCurves {
			c.IntensityCurves[i] = append([]float64(nil), row...)
		}
	}
	if t.MinRange > 0 || t.MaxRange > 0 {
		minRange, maxRange := c.MinRange, c.MaxRange
		if t.MinRange > 0 {
			minRange = t.MinRange
		}
		if t.MaxRange > 0 {
			maxRange = t.MaxRange
		}
		c.MinRange, c.MaxRange = clampRanges(d.f, minRange, maxRange)
	}
	diagf("%s: calibration tables installed (range %.2f..%.2f m)", d.f.Name, c.MinRange, c.MaxRange)
	return nil
}

// temperature returns the thermistor reading for this packet, re-reading
// the header only once every TemperatureHold packets.
func (d *Decoder) temperature(p MsopPacket) float64 {
	d.tempMu.Lock()
	defer d.tempMu.Unlock()
	if d.tempAge == 0 {
		d.temp = DecodeTemperature(d.f.TemperatureLayout, p.TemperatureBytes())
	}
	d.tempAge++
	if d.tempAge >= d.f.TemperatureHold {
		d.tempAge = 0
	}
	return d.temp
}

// DecodeMsop decodes one MSOP record into a fresh slice. See AppendMsop.
func (d *Decoder) DecodeMsop(b []byte) (int, []lidar.Point, error) {
	return d.AppendMsop(nil, b)
}

// AppendMsop decodes one MSOP record and appends one point per channel slot
// of every accepted block to dst. It returns the first raw block azimuth in
// centidegrees for revolution tracking.
//
// Decoding stops at the first block whose id is wrong. A block whose
// azimuth delta is outside the family band is skipped without error, so the
// number of points is a multiple of ChannelsPerBlock that may be less than
// a full packet. On a structural error dst is returned unchanged together
// with AzimuthSyncMismatch or AzimuthTruncated.
func (d *Decoder) AppendMsop(dst []lidar.Point, b []byte) (int, []lidar.Point, error) {
	p, err := NewMsopPacket(d.f, b)
	if err != nil {
		d.mu.RLock()
		obs := d.obs
		d.mu.RUnlock()
		obs.PacketRejected(err)
		if errors.Is(err, ErrSyncMismatch) {
			return AzimuthSyncMismatch, dst, err
		}
		return AzimuthTruncated, dst, err
	}

	temp := d.temperature(p)
	first := p.Azimuth(0)

	d.mu.RLock()
	start := len(dst)
	dst, skipped := d.appendBlocks(dst, p, temp)
	obs := d.obs
	d.mu.RUnlock()

	out := dst[start:]
	valid := lidar.CountValid(out)
	tracef("%s msop #%d: az=%d temp=%.2f points=%d valid=%d skipped=%d",
		d.f.Name, p.Index(), first, temp, len(out), valid, skipped)
	obs.TemperatureRead(temp)
	obs.MsopDecoded(len(out), valid, skipped)
	return first, dst, nil
}

// appendBlocks is the point loop. Callers hold the read lock.
func (d *Decoder) appendBlocks(dst []lidar.Point, p MsopPacket, temp float64) ([]lidar.Point, int) {
	f, c := d.f, d.cal
	timing := TimingFor(c.EchoMode)
	dur := timing.BlockDuration(f)
	bucket := TemperatureBucket(temp, f.TemperatureMin, f.TemperatureRange)
	base := p.Timestamp()
	rx, rz := f.LeverArm[0], f.LeverArm[2]

	var elapsed float64 // µs since the first block
	skipped := 0
	for blk := 0; blk < f.BlocksPerPacket; blk++ {
		if !p.BlockValid(blk) {
			break
		}
		elapsed += timing.Offset(f, blk)
		delta := timing.AzimuthDelta(p, blk)
		if !InBand(f, delta) {
			skipped++
			continue
		}
		blkAz := float64(p.Azimuth(blk))

		for ch := 0; ch < f.ChannelsPerBlock; ch++ {
			laser := ch % f.Lasers
			frac := timing.FiringFraction(f, ch)
			horizRaw := FoldAzimuth(int(math.Round(blkAz + float64(delta)*frac)))
			horiz := FoldAzimuth(horizRaw + int(c.HorizAngle[laser]))
			vert := FoldAzimuth(int(c.VertAngle[laser]))

			rawDist := p.Distance(blk, ch)
			dist := CalibratedDistance(c, laser, bucket, rawDist)

			pt := lidar.Point{
				Distance:  dist,
				Azimuth:   float64(horiz) / 100,
				Elevation: float64(c.VertAngle[laser]) / 100,
				Channel:   laser,
				BlockID:   blk,
				Timestamp: base.Add(time.Duration((elapsed + frac*dur) * float64(time.Microsecond))),
			}
			if dist < c.MinRange || dist > c.MaxRange || !d.window.contains(horiz) {
				pt.Invalidate()
				dst = append(dst, pt)
				continue
			}

			cosV, sinV := Cos(vert), Sin(vert)
			pt.X = dist*cosV*Cos(horiz) + rx*Cos(horizRaw)
			pt.Y = -dist*cosV*Sin(horiz) - rx*Sin(horizRaw)
			pt.Z = dist*sinV + rz

			intensity := CalibratedIntensity(c, laser, bucket, rawDist, p.Intensity(blk, ch), temp, f.TemperatureMin)
			if math.IsNaN(intensity) {
				intensity = 0
			}
			pt.Intensity = intensity
			dst = append(dst, pt)
		}
	}
	return dst, skipped
}
