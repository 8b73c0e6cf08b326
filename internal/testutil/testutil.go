// Package testutil provides shared test utilities and fixtures.
//
// The packet fixtures build well-formed MSOP and DIFOP records for a sensor
// family so ingest, replay and monitoring tests do not hand-assemble bytes.
package testutil

import (
	"encoding/binary"
	"testing"

	"github.com/banshee-data/rslidar/internal/lidar/parse"
)

// AssertNoError fails the test if err is not nil.
func AssertNoError(t testing.TB, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// AssertError fails the test if err is nil.
func AssertError(t testing.TB, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

// MsopPacket returns a record for f with one valid block per entry of
// azimuths (centidegrees). Every channel carries distance ticks and
// intensity. Blocks beyond len(azimuths) are left zeroed and therefore end
// decoding.
func MsopPacket(f *parse.Family, azimuths []int, distance int, intensity uint8) []byte {
	b := make([]byte, f.PacketSize)
	copy(b, f.MsopSync)
	for blk, az := range azimuths {
		if blk >= f.BlocksPerPacket {
			break
		}
		off := f.MsopHeaderSize + blk*f.BlockSize
		copy(b[off:], f.BlockID)
		binary.BigEndian.PutUint16(b[off+parse.AZIMUTH_OFFSET:], uint16(az))
		for ch := 0; ch < f.ChannelsPerBlock; ch++ {
			c := off + f.BlockHeaderSize + ch*parse.BYTES_PER_CHANNEL
			binary.BigEndian.PutUint16(b[c:], uint16(distance))
			b[c+2] = intensity
		}
	}
	return b
}

// FullMsopPacket fills every block of a record starting at azimuth and
// advancing by step centidegrees per block, wrapping at 360°.
func FullMsopPacket(f *parse.Family, azimuth, step, distance int, intensity uint8) []byte {
	azimuths := make([]int, f.BlocksPerPacket)
	for i := range azimuths {
		azimuths[i] = (azimuth + i*step) % parse.ROTATION_UNITS
	}
	return MsopPacket(f, azimuths, distance, intensity)
}

// DifopPacket returns a device-info record for f reporting rpm with a
// non-placeholder serial. A zero returnMode selects firmware that predates
// the return-mode field, so the sensor decodes as single return; any other
// value is written with firmware new enough for it to be honoured.
func DifopPacket(f *parse.Family, rpm int, returnMode byte) []byte {
	b := make([]byte, f.PacketSize)
	copy(b, f.DifopSync)
	binary.BigEndian.PutUint16(b[parse.DIFOP_RPM_OFFSET:], uint16(rpm))
	copy(b[parse.DIFOP_MAIN_SN_OFFSET:], []byte{0x01, 0x02, 0x03, 0x04, 0x05})
	if returnMode == 0 {
		copy(b[parse.DIFOP_BOTTOM_SN_OFFSET:], []byte{0x08, 0x02, 0x08, 0x00, 0x00})
	} else {
		copy(b[parse.DIFOP_BOTTOM_SN_OFFSET:], []byte{0x08, 0x02, 0x09, 0x00, 0x00})
		b[parse.DIFOP_RETURN_MODE_OFFSET] = returnMode
	}
	return b
}
