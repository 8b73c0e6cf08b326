package parse

import "encoding/binary"

// msopBuilder assembles synthetic MSOP records for family f.
type msopBuilder struct {
	f *Family
	b []byte
}

func newMsop(f *Family) *msopBuilder {
	b := make([]byte, f.PacketSize)
	copy(b, f.MsopSync)
	return &msopBuilder{f: f, b: b}
}

func (m *msopBuilder) blockOffset(blk int) int {
	return m.f.MsopHeaderSize + blk*m.f.BlockSize
}

// block writes a valid block id and azimuth.
func (m *msopBuilder) block(blk, azimuth int) *msopBuilder {
	off := m.blockOffset(blk)
	copy(m.b[off:], m.f.BlockID)
	binary.BigEndian.PutUint16(m.b[off+AZIMUTH_OFFSET:], uint16(azimuth))
	return m
}

// channels fills every channel of blk with the same raw sample.
func (m *msopBuilder) channels(blk, distance int, intensity uint8) *msopBuilder {
	for ch := 0; ch < m.f.ChannelsPerBlock; ch++ {
		m.channel(blk, ch, distance, intensity)
	}
	return m
}

func (m *msopBuilder) channel(blk, ch, distance int, intensity uint8) *msopBuilder {
	off := m.blockOffset(blk) + m.f.BlockHeaderSize + ch*BYTES_PER_CHANNEL
	binary.BigEndian.PutUint16(m.b[off:], uint16(distance))
	m.b[off+2] = intensity
	return m
}

func (m *msopBuilder) temperature(b0, b1 byte) *msopBuilder {
	m.b[m.f.TemperatureOffset] = b0
	m.b[m.f.TemperatureOffset+1] = b1
	return m
}

func (m *msopBuilder) timestamp(fields [6]byte, ms, us uint16) *msopBuilder {
	off := m.f.TimestampOffset
	copy(m.b[off:], fields[:])
	binary.BigEndian.PutUint16(m.b[off+6:], ms)
	binary.BigEndian.PutUint16(m.b[off+8:], us)
	return m
}

func (m *msopBuilder) index(n uint32) *msopBuilder {
	binary.BigEndian.PutUint32(m.b[m.f.IndexOffset:], n)
	return m
}

func (m *msopBuilder) bytes() []byte {
	return m.b
}

// difopBuilder assembles synthetic DIFOP records for family f.
type difopBuilder struct {
	f *Family
	b []byte
}

func newDifop(f *Family) *difopBuilder {
	b := make([]byte, f.PacketSize)
	copy(b, f.DifopSync)
	return &difopBuilder{f: f, b: b}
}

func (d *difopBuilder) rpm(v int) *difopBuilder {
	binary.BigEndian.PutUint16(d.b[DIFOP_RPM_OFFSET:], uint16(v))
	return d
}

func (d *difopBuilder) mainSerial(sn ...byte) *difopBuilder {
	copy(d.b[DIFOP_MAIN_SN_OFFSET:DIFOP_MAIN_SN_OFFSET+DIFOP_VERSION_SIZE], sn)
	return d
}

func (d *difopBuilder) bottomVersion(v ...byte) *difopBuilder {
	copy(d.b[DIFOP_BOTTOM_SN_OFFSET:DIFOP_BOTTOM_SN_OFFSET+DIFOP_VERSION_SIZE], v)
	return d
}

func (d *difopBuilder) returnMode(v byte) *difopBuilder {
	d.b[DIFOP_RETURN_MODE_OFFSET] = v
	return d
}

func (d *difopBuilder) intensity(coef, version byte) *difopBuilder {
	d.b[DIFOP_INTENSITY_COEF_OFFSET] = coef
	d.b[DIFOP_INTENSITY_VER_OFFSET] = version
	return d
}

// curves writes raw coefficient words for every laser, coeffs[k] applied
// to all channels, with a correct checksum.
func (d *difopBuilder) curves(coeffs [CURVE_COEFFS]uint16) *difopBuilder {
	blob := d.b[DIFOP_INTENSITY_OFFSET : DIFOP_INTENSITY_OFFSET+DIFOP_INTENSITY_SIZE]
	for ch := 0; ch < d.f.Lasers; ch++ {
		rec := blob[ch*curveStride : (ch+1)*curveStride]
		var sum byte
		for k, c := range coeffs {
			binary.BigEndian.PutUint16(rec[2*k:], c)
		}
		for _, v := range rec[:curveStride-1] {
			sum ^= v
		}
		rec[curveStride-1] = sum
	}
	return d
}

// corruptCurveChecksum flips the checksum byte of channel ch.
func (d *difopBuilder) corruptCurveChecksum(ch int) *difopBuilder {
	d.b[DIFOP_INTENSITY_OFFSET+ch*curveStride+curveStride-1] ^= 0xFF
	return d
}

func putAngle(b []byte, magnitude int) {
	b[0] = byte(magnitude >> 16)
	b[1] = byte(magnitude >> 8)
	b[2] = byte(magnitude)
}

// pitch writes one 0.0001° magnitude per laser.
func (d *difopBuilder) pitch(magnitudes []int) *difopBuilder {
	for i, m := range magnitudes {
		putAngle(d.b[d.f.PitchOffset+i*ANGLE_ENTRY_SIZE:], m)
	}
	return d
}

func (d *difopBuilder) yaw(magnitudes []int) *difopBuilder {
	for i, m := range magnitudes {
		putAngle(d.b[d.f.YawOffset+i*ANGLE_ENTRY_SIZE:], m)
	}
	return d
}

func (d *difopBuilder) bytes() []byte {
	return d.b
}

// rs16 and rs128 return private copies so tests can run in parallel.
func rs16() *Family  { return FamilyFor(ModelRS16) }
func rs128() *Family { return FamilyFor(ModelRS128) }
