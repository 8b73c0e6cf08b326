package parse

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	curveStride     = 15 // 7 big-endian coefficients + XOR checksum
	curveScale      = 0.001
	presenceBytes   = 4
	firmwareMajor   = 0x08
	firmwareMinor   = 0x02
	firmwarePatch   = 0x09
	returnDualMax   = 0x01
	returnDualLast  = 0x02
	intensityV1     = 0xA1
	intensityV2     = 0xB1
	intensityPassTh = 0xC1
)

// DifopStatus summarises what one DIFOP record changed. Err joins the
// non-fatal conditions (checksum failure, unrecognised field values); the
// record was still applied where possible.
type DifopStatus struct {
	EchoMode             EchoMode
	RPM                  int
	PacketsPerRevolution int
	Coarse               bool
	IntensityMode        IntensityMode
	IntensityCoef        float64

	CurvesApplied  bool
	AnglesApplied  bool
	ChecksumFailed bool

	Err error
}

// difopUpdate is everything parsed from one record before it is committed.
type difopUpdate struct {
	echo          EchoMode
	rpm           int
	coarse        bool
	intensityMode IntensityMode
	modeKnown     bool
	coef          float64
	coefKnown     bool

	curves   [][]float64 // nil when absent, rejected or already latched
	curveErr error       // checksum failure of the curve blob

	vert []int32 // nil when absent
	horz []int32

	errs []error
}

// DecodeDifop validates a DIFOP record and folds it into the calibration
// state. Truncated or mis-synced records return an error and change
// nothing. Curve and angle tables are written at most once each; later
// records leave latched tables alone and their curve blob is not checked.
func (d *Decoder) DecodeDifop(b []byte) (DifopStatus, error) {
	p, err := NewDifopPacket(d.f, b)
	if err != nil {
		d.mu.RLock()
		obs := d.obs
		d.mu.RUnlock()
		obs.PacketRejected(err)
		opsf("%s difop rejected: %v", d.f.Name, err)
		return DifopStatus{}, err
	}
	d.mu.RLock()
	latched := d.cal.Loaded
	d.mu.RUnlock()
	u := parseDifop(d.f, p, latched)

	d.mu.Lock()
	st := d.commitDifop(u)
	obs := d.obs
	d.mu.Unlock()

	if st.ChecksumFailed {
		opsf("%s difop: intensity curve checksum mismatch, keeping previous curves", d.f.Name)
	}
	obs.DifopDecoded(st)
	return st, nil
}

// parseDifop decodes a record into locals. Tables whose bit is set in
// latched are not parsed.
func parseDifop(f *Family, p DifopPacket, latched uint8) difopUpdate {
	u := difopUpdate{
		rpm:    p.RPM(),
		coarse: !isPlaceholderSerial(f, p.MainSerial()),
	}

	u.echo = EchoSingle
	if firmwareReportsReturnMode(f, p.BottomVersion()) {
		switch rm := p.ReturnMode(); rm {
		case returnDualMax:
			u.echo = EchoDualMax
		case returnDualLast:
			u.echo = EchoDualLast
		default:
			u.echo = EchoUnknown
			u.errs = append(u.errs, fmt.Errorf("return mode 0x%02X: %w", rm, ErrUnrecognizedField))
		}
	}

	switch v := p.IntensityVersion(); v {
	case 0x00, 0xFF, intensityV1:
		u.intensityMode, u.modeKnown = IntensityCurveV1, true
	case intensityV2:
		u.intensityMode, u.modeKnown = IntensityCurveV2, true
	case intensityPassTh:
		u.intensityMode, u.modeKnown = IntensityPassThrough, true
	default:
		u.errs = append(u.errs, fmt.Errorf("intensity version 0x%02X: %w", v, ErrUnrecognizedField))
	}

	if coef := p.IntensityCoef(); coef != 0x00 && coef != 0xFF {
		u.coef, u.coefKnown = float64(coef), true
	}

	if f.DifopCurves && latched&LoadedCurves == 0 && present(p.IntensityBlob()) {
		u.curves, u.curveErr = parseCurves(f, p.IntensityBlob())
	}

	if pitch := p.PitchTable(); latched&LoadedAngles == 0 && present(pitch) {
		u.vert = parseAngles(pitch, f.NegateLowerHalf)
		if yaw := p.YawTable(); yaw != nil {
			u.horz = parseAngles(yaw, false)
		} else {
			u.horz = make([]int32, f.Lasers)
		}
	}
	return u
}

// commitDifop applies a parsed record. Callers hold the write lock.
func (d *Decoder) commitDifop(u difopUpdate) DifopStatus {
	c := d.cal
	if c.EchoMode != u.echo {
		diagf("%s: echo mode %s -> %s", d.f.Name, c.EchoMode, u.echo)
	}
	c.EchoMode = u.echo
	if u.rpm > 0 {
		c.RPM = u.rpm
	}
	c.PacketsPerRevolution = packetsPerRevolution(d.f, c.EchoMode, c.RPM)
	c.Coarse = u.coarse
	if u.modeKnown {
		c.IntensityMode = u.intensityMode
	}
	// Another record may have latched the curves since parseDifop looked.
	curvesLatched := c.Loaded&LoadedCurves != 0
	// Families with DIFOP curves take the coefficient only until the curves
	// latch, including the record that latches them.
	if u.coefKnown && (!d.f.DifopCurves || !curvesLatched) {
		c.IntensityCoef = u.coef
	}

	var st DifopStatus
	errs := u.errs
	if u.curveErr != nil && !curvesLatched {
		st.ChecksumFailed = true
		errs = append(errs, u.curveErr)
	}
	if u.curves != nil && !curvesLatched {
		c.IntensityCurves = u.curves
		c.Loaded |= LoadedCurves
		st.CurvesApplied = true
		diagf("%s: intensity curves latched from difop", d.f.Name)
	}
	if u.vert != nil && c.Loaded&LoadedAngles == 0 {
		c.VertAngle = u.vert
		c.HorizAngle = u.horz
		c.Loaded |= LoadedAngles
		st.AnglesApplied = true
		diagf("%s: angle tables latched from difop", d.f.Name)
	}
	st.EchoMode = c.EchoMode
	st.RPM = c.RPM
	st.PacketsPerRevolution = c.PacketsPerRevolution
	st.Coarse = c.Coarse
	st.IntensityMode = c.IntensityMode
	st.IntensityCoef = c.IntensityCoef
	st.Err = errors.Join(errs...)
	return st
}

// firmwareReportsReturnMode applies the bottom board version gate.
func firmwareReportsReturnMode(f *Family, v []byte) bool {
	major, minor, patch := v[0], v[1], v[2]
	switch {
	case major == firmwareMajor && minor == firmwareMinor && patch >= firmwarePatch:
		return true
	case major == firmwareMajor && minor > firmwareMinor:
		return true
	case f.AcceptNewerMajor && major > firmwareMajor:
		return true
	}
	return false
}

// isPlaceholderSerial reports whether main serial bytes 1..3 match one of
// the patterns that mark the fine resolution tick.
func isPlaceholderSerial(f *Family, sn []byte) bool {
	for _, pat := range f.PlaceholderSerials {
		if sn[1] == pat[0] && sn[2] == pat[1] && sn[3] == pat[2] {
			return true
		}
	}
	return false
}

// present reports whether a calibration area was written at the factory:
// an area whose first bytes are all 0x00 or 0xFF is blank.
func present(b []byte) bool {
	for _, v := range b[:presenceBytes] {
		if v != 0x00 && v != 0xFF {
			return true
		}
	}
	return false
}

func parseCurves(f *Family, blob []byte) ([][]float64, error) {
	curves := make([][]float64, CURVE_COEFFS)
	for k := range curves {
		curves[k] = make([]float64, f.Lasers)
	}
	for ch := 0; ch < f.Lasers; ch++ {
		rec := blob[ch*curveStride : (ch+1)*curveStride]
		var sum byte
		for _, v := range rec[:curveStride-1] {
			sum ^= v
		}
		if sum != rec[curveStride-1] {
			return nil, fmt.Errorf("channel %d: got 0x%02X, want 0x%02X: %w", ch, rec[curveStride-1], sum, ErrChecksumFailure)
		}
		for k := 0; k < CURVE_COEFFS; k++ {
			curves[k][ch] = float64(binary.BigEndian.Uint16(rec[2*k:2*k+2])) * curveScale
		}
	}
	return curves, nil
}

// parseAngles decodes 24-bit big-endian magnitudes (0.0001° per LSB) into
// centidegrees, truncating toward zero. With negateLowerHalf the first half
// of the table is below the horizon.
func parseAngles(b []byte, negateLowerHalf bool) []int32 {
	n := len(b) / ANGLE_ENTRY_SIZE
	out := make([]int32, n)
	for i := range out {
		e := b[i*ANGLE_ENTRY_SIZE : (i+1)*ANGLE_ENTRY_SIZE]
		mag := int32(e[0])<<16 | int32(e[1])<<8 | int32(e[2])
		// 0.0001° → 0.01°
		v := mag / 100
		if negateLowerHalf && i < n/2 {
			v = -v
		}
		out[i] = v
	}
	return out
}
