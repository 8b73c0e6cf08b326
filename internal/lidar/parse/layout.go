package parse

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"time"
)

/*
RoboSense mechanical LiDAR wire layout

Both families emit fixed 1248-byte UDP payloads on two streams:

MSOP (measurement data, default port 6699):
├── Header (RS16: 42 bytes, RS128: 80 bytes)
│   ├── Sync marker (RS16: 8 bytes 55 AA 05 0A 5A A5 50 A0, RS128: 4 bytes 55 AA 05 5A)
│   ├── Timestamp (10 bytes): year-2000, month, day, hour, minute, second, ms (BE), µs (BE)
│   └── Thermistor bytes (2)
├── Data blocks (RS16: 12 × 100 bytes, RS128: 3 × 388 bytes)
│   └── Block id (RS16: FF EE, RS128: FE + return id) + azimuth (BE, 0.01°) + channels × 3 bytes
│       └── Channel: distance ticks (BE uint16) + intensity (uint8)
└── Packet index (4 bytes) [+ RS16 tail (2 bytes)]

DIFOP (device info, default port 7788):
├── Sync marker (RS16: A5 FF 00 5A 11 11 55 55, RS128: A5 FF 00 5A)
├── Motor speed (BE uint16 RPM) at 8
├── Main / bottom board versions at 40 / 45
├── Intensity calibration blob (240 bytes) at 50, coefficient at 290, version at 291
├── Return mode at 300
├── Pitch calibration (RS16: 16 × 3 bytes at 1165, RS128: 128 × 3 bytes at 468)
└── Yaw calibration (RS128 only: 128 × 3 bytes at 852)

Every multi-byte numeric field is big-endian and is read with explicit offset
arithmetic; nothing overlays a struct on the buffer. Sync and block id
markers are compared byte for byte. A view is only handed out after its
length and sync marker have been checked.
*/

// Layout constants shared by both families.
const (
	BYTES_PER_CHANNEL = 3  // 2 bytes distance + 1 byte intensity
	TIMESTAMP_SIZE    = 10 // year, month, day, hour, minute, second, ms(2), µs(2)
	ANGLE_ENTRY_SIZE  = 3  // 24-bit big-endian magnitude, 0.0001° per LSB
	ROTATION_UNITS    = 36000
	AZIMUTH_OFFSET    = 2 // azimuth position inside the block header

	DIFOP_RPM_OFFSET            = 8
	DIFOP_MAIN_SN_OFFSET        = 40
	DIFOP_BOTTOM_SN_OFFSET      = 45
	DIFOP_VERSION_SIZE          = 5
	DIFOP_INTENSITY_OFFSET      = 50
	DIFOP_INTENSITY_SIZE        = 240
	DIFOP_INTENSITY_COEF_OFFSET = 290
	DIFOP_INTENSITY_VER_OFFSET  = 291
	DIFOP_SN_OFFSET             = 292
	DIFOP_SN_SIZE               = 6
	DIFOP_RETURN_MODE_OFFSET    = 300
	DIFOP_TIMESTAMP_OFFSET      = 303

	DEFAULT_MSOP_PORT  = 6699
	DEFAULT_DIFOP_PORT = 7788
)

// PacketKind is the stream a datagram belongs to.
type PacketKind int

const (
	PacketUnknown PacketKind = iota
	PacketMsop
	PacketDifop
)

func (k PacketKind) String() string {
	switch k {
	case PacketMsop:
		return "msop"
	case PacketDifop:
		return "difop"
	default:
		return "unknown"
	}
}

// Classify reports which stream b belongs to by its sync marker. Short
// buffers are classified by marker alone so callers can count them.
func Classify(f *Family, b []byte) PacketKind {
	switch {
	case bytes.HasPrefix(b, f.MsopSync):
		return PacketMsop
	case bytes.HasPrefix(b, f.DifopSync):
		return PacketDifop
	default:
		return PacketUnknown
	}
}

func checkRecord(f *Family, b []byte, sync []byte, kind string) error {
	if len(b) < f.PacketSize {
		return fmt.Errorf("%s %s: need %d bytes, have %d: %w", f.Name, kind, f.PacketSize, len(b), ErrTruncatedPacket)
	}
	if !bytes.Equal(b[:len(sync)], sync) {
		return fmt.Errorf("%s %s: got % X: %w", f.Name, kind, b[:len(sync)], ErrSyncMismatch)
	}
	return nil
}

// MsopPacket is a read-only view over one caller-owned MSOP record.
type MsopPacket struct {
	f *Family
	b []byte
}

// NewMsopPacket validates length and sync marker and returns a view over b.
// The view is only valid while the caller keeps b unchanged.
func NewMsopPacket(f *Family, b []byte) (MsopPacket, error) {
	if err := checkRecord(f, b, f.MsopSync, "msop"); err != nil {
		return MsopPacket{}, err
	}
	return MsopPacket{f: f, b: b[:f.PacketSize]}, nil
}

func (p MsopPacket) block(i int) []byte {
	off := p.f.MsopHeaderSize + i*p.f.BlockSize
	return p.b[off : off+p.f.BlockSize]
}

// BlockValid reports whether block i starts with the family's block id.
func (p MsopPacket) BlockValid(i int) bool {
	if i < 0 || i >= p.f.BlocksPerPacket {
		return false
	}
	return bytes.HasPrefix(p.block(i), p.f.BlockID)
}

// Azimuth returns the raw azimuth of block i in centidegrees.
func (p MsopPacket) Azimuth(i int) int {
	blk := p.block(i)
	return int(binary.BigEndian.Uint16(blk[AZIMUTH_OFFSET : AZIMUTH_OFFSET+2]))
}

// ReturnID returns the return identifier byte of block i on families whose
// block header carries one (RS128), and 0 otherwise.
func (p MsopPacket) ReturnID(i int) uint8 {
	if len(p.f.BlockID) != 1 {
		return 0
	}
	return p.block(i)[1]
}

func (p MsopPacket) channel(i, ch int) []byte {
	off := p.f.BlockHeaderSize + ch*BYTES_PER_CHANNEL
	return p.block(i)[off : off+BYTES_PER_CHANNEL]
}

// Distance returns the raw distance tick count of channel ch in block i.
func (p MsopPacket) Distance(i, ch int) int {
	return int(binary.BigEndian.Uint16(p.channel(i, ch)[0:2]))
}

// Intensity returns the raw intensity byte of channel ch in block i.
func (p MsopPacket) Intensity(i, ch int) uint8 {
	return p.channel(i, ch)[2]
}

// TemperatureBytes returns the two raw thermistor bytes in wire order.
func (p MsopPacket) TemperatureBytes() [2]byte {
	o := p.f.TemperatureOffset
	return [2]byte{p.b[o], p.b[o+1]}
}

// Timestamp returns the sensor's UTC packet time.
func (p MsopPacket) Timestamp() time.Time {
	return decodeTimestamp(p.b[p.f.TimestampOffset : p.f.TimestampOffset+TIMESTAMP_SIZE])
}

// Index returns the packet counter.
func (p MsopPacket) Index() uint32 {
	return binary.BigEndian.Uint32(p.b[p.f.IndexOffset : p.f.IndexOffset+4])
}

// decodeTimestamp converts the 10 byte sensor time field. Fields outside
// their calendar range are normalised by time.Date rather than rejected.
func decodeTimestamp(b []byte) time.Time {
	ms := int(binary.BigEndian.Uint16(b[6:8]))
	us := int(binary.BigEndian.Uint16(b[8:10]))
	return time.Date(2000+int(b[0]), time.Month(b[1]), int(b[2]),
		int(b[3]), int(b[4]), int(b[5]), (ms*1000+us)*1000, time.UTC)
}

// DifopPacket is a read-only view over one caller-owned DIFOP record.
type DifopPacket struct {
	f *Family
	b []byte
}

// NewDifopPacket validates length and sync marker and returns a view over b.
func NewDifopPacket(f *Family, b []byte) (DifopPacket, error) {
	if err := checkRecord(f, b, f.DifopSync, "difop"); err != nil {
		return DifopPacket{}, err
	}
	return DifopPacket{f: f, b: b[:f.PacketSize]}, nil
}

// RPM returns the configured motor speed.
func (p DifopPacket) RPM() int {
	return int(binary.BigEndian.Uint16(p.b[DIFOP_RPM_OFFSET : DIFOP_RPM_OFFSET+2]))
}

// MainSerial returns the main board version/serial bytes.
func (p DifopPacket) MainSerial() []byte {
	return p.b[DIFOP_MAIN_SN_OFFSET : DIFOP_MAIN_SN_OFFSET+DIFOP_VERSION_SIZE]
}

// BottomVersion returns the bottom board firmware version bytes.
func (p DifopPacket) BottomVersion() []byte {
	return p.b[DIFOP_BOTTOM_SN_OFFSET : DIFOP_BOTTOM_SN_OFFSET+DIFOP_VERSION_SIZE]
}

// SerialNumber returns the 6 byte device serial number.
func (p DifopPacket) SerialNumber() []byte {
	return p.b[DIFOP_SN_OFFSET : DIFOP_SN_OFFSET+DIFOP_SN_SIZE]
}

// ReturnMode returns the raw return-mode byte.
func (p DifopPacket) ReturnMode() uint8 {
	return p.b[DIFOP_RETURN_MODE_OFFSET]
}

// IntensityBlob returns the raw 240 byte intensity calibration area.
func (p DifopPacket) IntensityBlob() []byte {
	return p.b[DIFOP_INTENSITY_OFFSET : DIFOP_INTENSITY_OFFSET+DIFOP_INTENSITY_SIZE]
}

// IntensityCoef returns the raw intensity coefficient byte.
func (p DifopPacket) IntensityCoef() uint8 {
	return p.b[DIFOP_INTENSITY_COEF_OFFSET]
}

// IntensityVersion returns the raw intensity curve version byte.
func (p DifopPacket) IntensityVersion() uint8 {
	return p.b[DIFOP_INTENSITY_VER_OFFSET]
}

// PitchTable returns the vertical angle calibration area.
func (p DifopPacket) PitchTable() []byte {
	o := p.f.PitchOffset
	return p.b[o : o+p.f.Lasers*ANGLE_ENTRY_SIZE]
}

// YawTable returns the horizontal angle calibration area, or nil when the
// family has none.
func (p DifopPacket) YawTable() []byte {
	if p.f.YawOffset == 0 {
		return nil
	}
	o := p.f.YawOffset
	return p.b[o : o+p.f.Lasers*ANGLE_ENTRY_SIZE]
}

// Timestamp returns the device clock carried in the DIFOP record.
func (p DifopPacket) Timestamp() time.Time {
	return decodeTimestamp(p.b[DIFOP_TIMESTAMP_OFFSET : DIFOP_TIMESTAMP_OFFSET+TIMESTAMP_SIZE])
}
