package parse

import (
	"fmt"
	"strings"
)

// Model identifies a supported sensor family.
type Model int

const (
	ModelRS16 Model = iota
	ModelRS128
)

func (m Model) String() string {
	switch m {
	case ModelRS16:
		return "RS16"
	case ModelRS128:
		return "RS128"
	default:
		return fmt.Sprintf("Model(%d)", int(m))
	}
}

// TemperatureLayout selects how the two raw thermistor bytes of an MSOP
// header are turned into degrees Celsius.
type TemperatureLayout int

const (
	// TemperatureSign7Lsb5: byte 1 holds sign + 7 bit msb, byte 0 holds a
	// 5 bit lsb in its top bits. Value is (msb*32 + lsb) / 16.
	TemperatureSign7Lsb5 TemperatureLayout = iota
	// TemperatureSign7Nibble: byte 0 holds sign + 7 bit msb, byte 1 holds a
	// 4 bit fractional nibble in its top bits. Value is (msb*16 + lsb) / 16.
	TemperatureSign7Nibble
)

// Family is the constant bundle that parameterises the generic decoder.
// The 16 and 128 channel sensors differ only in these values.
type Family struct {
	Model Model
	Name  string

	Lasers           int // rows of every calibration table
	ChannelsPerBlock int // samples per data block; wraps Lasers on RS16
	BlocksPerPacket  int
	PacketSize       int // MSOP and DIFOP records share one size

	// MSOP layout
	MsopSync          []byte
	BlockID           []byte
	MsopHeaderSize    int
	BlockHeaderSize   int // id (+ return id) + azimuth
	BlockSize         int
	TimestampOffset   int
	TemperatureOffset int
	IndexOffset       int

	// DIFOP layout
	DifopSync       []byte
	PitchOffset     int
	YawOffset       int  // 0 when the family has no yaw table
	DifopCurves     bool // intensity curves are burned into the DIFOP blob
	NegateLowerHalf bool // first Lasers/2 pitch entries are negative

	// Firmware gate: bottom board version 08.02.09+ (and, when set, any major
	// above 08) reports a meaningful return-mode byte.
	AcceptNewerMajor bool

	// Main serial bytes [1:4] that mark a placeholder / legacy fine
	// resolution unit.
	PlaceholderSerials [][3]byte

	MaxAzimuthDelta int        // centidegrees between reference blocks
	LeverArm        [3]float64 // Rx, Ry, Rz in metres

	RangeMin float64 // default and lowest legal max range, metres
	RangeMax float64 // default and highest legal range, metres

	TemperatureLayout  TemperatureLayout
	TemperatureMin     int // first distance-correction bucket, °C
	TemperatureRange   int // buckets beyond the first
	TemperatureHold    int // packets between thermistor re-reads
	InitialTemperature float64

	FiringGroup         int     // channels per firing sequence
	ChannelTOffset      float64 // µs between channels of one sequence
	FiringTDuration     float64 // µs per firing sequence in single mode
	BlockDurationSingle float64 // µs
	BlockDurationDual   float64 // µs
	FiringsPerSecond    int
	// DualRateScale multiplies the packet rate in the dual echo modes: RS16
	// packs both returns into the same packets at half the firing rate,
	// RS128 sends twice as many packets.
	DualRateScale float64
}

// Buckets returns the number of temperature columns of the distance table.
func (f *Family) Buckets() int {
	return f.TemperatureRange + 1
}

var placeholderSerials = [][3]byte{
	{0x00, 0x00, 0x00},
	{0xFF, 0xFF, 0xFF},
	{0x55, 0xAA, 0x5A},
	{0xE9, 0x01, 0x00},
}

// RS16 describes the 16-laser sensor. Blocks carry two firing sequences.
var RS16 = Family{
	Model: ModelRS16,
	Name:  "RS16",

	Lasers:           16,
	ChannelsPerBlock: 32,
	BlocksPerPacket:  12,
	PacketSize:       1248,

	MsopSync:          []byte{0x55, 0xAA, 0x05, 0x0A, 0x5A, 0xA5, 0x50, 0xA0},
	BlockID:           []byte{0xFF, 0xEE},
	MsopHeaderSize:    42,
	BlockHeaderSize:   4,
	BlockSize:         4 + 32*BYTES_PER_CHANNEL,
	TimestampOffset:   20,
	TemperatureOffset: 38,
	IndexOffset:       1242,

	DifopSync:       []byte{0xA5, 0xFF, 0x00, 0x5A, 0x11, 0x11, 0x55, 0x55},
	PitchOffset:     1165,
	DifopCurves:     true,
	NegateLowerHalf: true,

	AcceptNewerMajor:   true,
	PlaceholderSerials: placeholderSerials,

	MaxAzimuthDelta: 75,
	LeverArm:        [3]float64{0.03825, -0.01088, 0},

	RangeMin: 0.2,
	RangeMax: 200,

	TemperatureLayout:  TemperatureSign7Lsb5,
	TemperatureMin:     31,
	TemperatureRange:   40,
	TemperatureHold:    1,
	InitialTemperature: 31,

	FiringGroup:         16,
	ChannelTOffset:      3,
	FiringTDuration:     50,
	BlockDurationSingle: 100,
	BlockDurationDual:   50,
	FiringsPerSecond:    20000,
	DualRateScale:       0.5,
}

// RS128 describes the 128-laser sensor. Each block holds every laser once.
var RS128 = Family{
	Model: ModelRS128,
	Name:  "RS128",

	Lasers:           128,
	ChannelsPerBlock: 128,
	BlocksPerPacket:  3,
	PacketSize:       1248,

	MsopSync:          []byte{0x55, 0xAA, 0x05, 0x5A},
	BlockID:           []byte{0xFE},
	MsopHeaderSize:    80,
	BlockHeaderSize:   4,
	BlockSize:         4 + 128*BYTES_PER_CHANNEL,
	TimestampOffset:   10,
	TemperatureOffset: 8,
	IndexOffset:       1244,

	DifopSync:   []byte{0xA5, 0xFF, 0x00, 0x5A},
	PitchOffset: 468,
	YawOffset:   852,

	PlaceholderSerials: placeholderSerials,

	MaxAzimuthDelta: 40,
	LeverArm:        [3]float64{0.03615, -0.017, 0},

	RangeMin: 3.5,
	RangeMax: 230,

	TemperatureLayout:  TemperatureSign7Nibble,
	TemperatureMin:     31,
	TemperatureRange:   50,
	TemperatureHold:    20000,
	InitialTemperature: 31,

	FiringGroup:         16,
	ChannelTOffset:      3,
	FiringTDuration:     0,
	BlockDurationSingle: 55,
	BlockDurationDual:   55,
	FiringsPerSecond:    20280,
	DualRateScale:       2,
}

// LookupFamily resolves a model name such as "rs16" or "RS128".
func LookupFamily(name string) (*Family, error) {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "RS16", "RS-16", "16":
		f := RS16
		return &f, nil
	case "RS128", "RS-128", "RUBY", "128":
		f := RS128
		return &f, nil
	default:
		return nil, fmt.Errorf("unknown lidar model %q: %w", name, ErrUnrecognizedField)
	}
}

// FamilyFor returns a copy of the bundle for m.
func FamilyFor(m Model) *Family {
	var f Family
	switch m {
	case ModelRS128:
		f = RS128
	default:
		f = RS16
	}
	return &f
}
