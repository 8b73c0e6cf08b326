package parse

import (
	"errors"
	"testing"
	"time"
)

func TestClassify(t *testing.T) {
	t.Parallel()
	f := rs16()
	tests := []struct {
		name string
		b    []byte
		want PacketKind
	}{
		{"msop", newMsop(f).bytes(), PacketMsop},
		{"difop", newDifop(f).bytes(), PacketDifop},
		{"short msop marker", f.MsopSync[:8], PacketMsop},
		{"garbage", []byte{1, 2, 3, 4, 5, 6, 7, 8}, PacketUnknown},
		{"empty", nil, PacketUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(f, tt.b); got != tt.want {
				t.Errorf("Classify() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestClassify_RS128(t *testing.T) {
	t.Parallel()
	f := rs128()
	if got := Classify(f, newMsop(f).bytes()); got != PacketMsop {
		t.Errorf("msop classified as %v", got)
	}
	if got := Classify(f, newDifop(f).bytes()); got != PacketDifop {
		t.Errorf("difop classified as %v", got)
	}
	// The markers differ at byte 3, so families never cross-match.
	if got := Classify(f, newMsop(rs16()).bytes()); got != PacketUnknown {
		t.Errorf("rs16 msop classified as %v by rs128", got)
	}
}

func TestNewMsopPacket_Errors(t *testing.T) {
	t.Parallel()
	f := rs16()

	if _, err := NewMsopPacket(f, make([]byte, 100)); !errors.Is(err, ErrTruncatedPacket) {
		t.Errorf("short buffer: got %v, want ErrTruncatedPacket", err)
	}

	bad := newMsop(f).bytes()
	bad[0] = 0x00
	if _, err := NewMsopPacket(f, bad); !errors.Is(err, ErrSyncMismatch) {
		t.Errorf("bad sync: got %v, want ErrSyncMismatch", err)
	}

	// A DIFOP record is not an MSOP record.
	if _, err := NewMsopPacket(f, newDifop(f).bytes()); !errors.Is(err, ErrSyncMismatch) {
		t.Errorf("difop as msop: got %v, want ErrSyncMismatch", err)
	}
}

func TestMsopPacket_Accessors(t *testing.T) {
	t.Parallel()
	f := rs16()
	raw := newMsop(f).
		block(0, 35990).
		block(1, 10).
		channel(0, 0, 0x1234, 0x56).
		channel(1, 31, 0xABCD, 0xEF).
		temperature(0x80, 0x03).
		timestamp([6]byte{24, 5, 6, 7, 8, 9}, 10, 11).
		index(0xDEADBEEF).
		bytes()

	p, err := NewMsopPacket(f, raw)
	if err != nil {
		t.Fatalf("NewMsopPacket: %v", err)
	}
	if !p.BlockValid(0) || !p.BlockValid(1) {
		t.Error("blocks 0 and 1 should be valid")
	}
	if p.BlockValid(2) {
		t.Error("block 2 has no id and should be invalid")
	}
	if p.BlockValid(-1) || p.BlockValid(f.BlocksPerPacket) {
		t.Error("out of range block index reported valid")
	}
	if got := p.Azimuth(0); got != 35990 {
		t.Errorf("Azimuth(0) = %d, want 35990", got)
	}
	if got := p.Distance(0, 0); got != 0x1234 {
		t.Errorf("Distance(0,0) = %#x, want 0x1234", got)
	}
	if got := p.Intensity(0, 0); got != 0x56 {
		t.Errorf("Intensity(0,0) = %#x, want 0x56", got)
	}
	if got := p.Distance(1, 31); got != 0xABCD {
		t.Errorf("Distance(1,31) = %#x, want 0xabcd", got)
	}
	if got := p.Intensity(1, 31); got != 0xEF {
		t.Errorf("Intensity(1,31) = %#x, want 0xef", got)
	}
	if got := p.TemperatureBytes(); got != [2]byte{0x80, 0x03} {
		t.Errorf("TemperatureBytes() = % X", got)
	}
	if got := p.Index(); got != 0xDEADBEEF {
		t.Errorf("Index() = %#x", got)
	}
	if got := p.ReturnID(0); got != 0 {
		t.Errorf("ReturnID on rs16 = %d, want 0", got)
	}

	want := time.Date(2024, 5, 6, 7, 8, 9, 10011000, time.UTC)
	if got := p.Timestamp(); !got.Equal(want) {
		t.Errorf("Timestamp() = %v, want %v", got, want)
	}
}

func TestMsopPacket_RS128ReturnID(t *testing.T) {
	t.Parallel()
	f := rs128()
	raw := newMsop(f).block(0, 100).bytes()
	raw[f.MsopHeaderSize+1] = 0x02

	p, err := NewMsopPacket(f, raw)
	if err != nil {
		t.Fatalf("NewMsopPacket: %v", err)
	}
	if got := p.ReturnID(0); got != 0x02 {
		t.Errorf("ReturnID(0) = %d, want 2", got)
	}
	if got := p.Azimuth(0); got != 100 {
		t.Errorf("Azimuth(0) = %d, want 100", got)
	}
}

func TestMsopPacket_LongerBufferIsTrimmed(t *testing.T) {
	t.Parallel()
	f := rs16()
	raw := append(newMsop(f).block(0, 1).bytes(), 0xAA, 0xBB)
	p, err := NewMsopPacket(f, raw)
	if err != nil {
		t.Fatalf("NewMsopPacket: %v", err)
	}
	if len(p.b) != f.PacketSize {
		t.Errorf("view length = %d, want %d", len(p.b), f.PacketSize)
	}
}

func TestDifopPacket_Accessors(t *testing.T) {
	t.Parallel()
	f := rs128()
	raw := newDifop(f).
		rpm(1200).
		mainSerial(0x01, 0x55, 0xAA, 0x5A, 0x00).
		bottomVersion(0x08, 0x02, 0x09).
		returnMode(0x02).
		intensity(0x40, 0xB1).
		pitch([]int{1, 2, 3}).
		yaw([]int{4}).
		bytes()
	copy(raw[DIFOP_SN_OFFSET:], []byte{1, 2, 3, 4, 5, 6})

	p, err := NewDifopPacket(f, raw)
	if err != nil {
		t.Fatalf("NewDifopPacket: %v", err)
	}
	if got := p.RPM(); got != 1200 {
		t.Errorf("RPM() = %d", got)
	}
	if got := p.MainSerial(); got[1] != 0x55 || len(got) != DIFOP_VERSION_SIZE {
		t.Errorf("MainSerial() = % X", got)
	}
	if got := p.BottomVersion(); got[0] != 0x08 || got[2] != 0x09 {
		t.Errorf("BottomVersion() = % X", got)
	}
	if got := p.ReturnMode(); got != 0x02 {
		t.Errorf("ReturnMode() = %#x", got)
	}
	if p.IntensityCoef() != 0x40 || p.IntensityVersion() != 0xB1 {
		t.Errorf("intensity coef/version = %#x/%#x", p.IntensityCoef(), p.IntensityVersion())
	}
	if got := len(p.IntensityBlob()); got != DIFOP_INTENSITY_SIZE {
		t.Errorf("IntensityBlob length = %d", got)
	}
	if got := len(p.PitchTable()); got != 128*ANGLE_ENTRY_SIZE {
		t.Errorf("PitchTable length = %d", got)
	}
	if got := p.PitchTable()[2]; got != 1 {
		t.Errorf("first pitch entry lsb = %d, want 1", got)
	}
	if got := p.YawTable(); len(got) != 128*ANGLE_ENTRY_SIZE || got[2] != 4 {
		t.Errorf("YawTable() unexpected, len %d", len(got))
	}
	if got := p.SerialNumber(); got[5] != 6 {
		t.Errorf("SerialNumber() = % X", got)
	}
}

func TestDifopPacket_NoYawOnRS16(t *testing.T) {
	t.Parallel()
	f := rs16()
	p, err := NewDifopPacket(f, newDifop(f).bytes())
	if err != nil {
		t.Fatalf("NewDifopPacket: %v", err)
	}
	if p.YawTable() != nil {
		t.Error("rs16 should have no yaw table")
	}
	if got := len(p.PitchTable()); got != 16*ANGLE_ENTRY_SIZE {
		t.Errorf("PitchTable length = %d", got)
	}
}

func TestNewDifopPacket_Errors(t *testing.T) {
	t.Parallel()
	f := rs16()
	if _, err := NewDifopPacket(f, newDifop(f).bytes()[:500]); !errors.Is(err, ErrTruncatedPacket) {
		t.Errorf("got %v, want ErrTruncatedPacket", err)
	}
	if _, err := NewDifopPacket(f, newMsop(f).bytes()); !errors.Is(err, ErrSyncMismatch) {
		t.Errorf("got %v, want ErrSyncMismatch", err)
	}
}
