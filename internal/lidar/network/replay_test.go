package network

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/rslidar/internal/lidar"
	"github.com/banshee-data/rslidar/internal/lidar/parse"
	"github.com/banshee-data/rslidar/internal/testutil"
)

func TestPortFilter(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		ports []int
		want  string
	}{
		{"defaults", nil, "udp port 6699 or udp port 7788"},
		{"single", []int{6699}, "udp port 6699"},
		{"custom pair", []int{6688, 7799}, "udp port 6688 or udp port 7799"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, PortFilter(tt.ports...))
		})
	}
}

func TestReplay_SyntheticCapture(t *testing.T) {
	t.Parallel()

	f := parse.FamilyFor(parse.ModelRS128)
	dec := parse.NewDecoder(f, parse.DefaultConfig(f))
	stats := lidar.NewPacketStats()
	sink := &recordingSink{}
	d := NewDispatcher(dec, stats, sink)

	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	reader := newFakeCapture()
	reader.add(testutil.DifopPacket(f, 600, 0x02), base, 7788)
	reader.add(testutil.FullMsopPacket(f, 100, 20, 2000, 5), base.Add(time.Millisecond), 6699)
	reader.add(nil, base.Add(2*time.Millisecond), 6699)
	reader.add([]byte{0xDE, 0xAD}, base.Add(3*time.Millisecond), 6699)
	reader.add(testutil.FullMsopPacket(f, 200, 20, 2000, 5), base.Add(4*time.Millisecond), 6699)
	factory := &fakeCaptureFactory{capture: reader}

	sum, err := Replay(context.Background(), factory, "capture.pcap", ReplayOptions{}, d)
	require.NoError(t, err)

	assert.Equal(t, 4, sum.Packets)
	assert.Equal(t, 1, sum.Errors)
	assert.Equal(t, base, sum.FirstCapture)
	assert.Equal(t, base.Add(4*time.Millisecond), sum.LastCapture)
	assert.Positive(t, sum.Elapsed)

	assert.Equal(t, "capture.pcap", reader.opened)
	assert.Equal(t, "udp port 6699 or udp port 7788", reader.filter)
	assert.True(t, reader.closed)
	assert.Equal(t, 1, factory.created)

	// In dual mode the middle block is measured with its pair, so every
	// block of both records decodes.
	assert.Equal(t, parse.EchoDualLast, dec.Calibration().EchoMode)
	snap := stats.GetAndReset()
	assert.Equal(t, int64(1), snap.Difop)
	assert.Equal(t, int64(1), snap.Dropped)
	assert.Equal(t, int64(2*3*128), snap.Points)
	assert.Equal(t, 2, sink.count())
}

func TestReplay_ReaderFailures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		setup func(r *fakeCapture)
		want  string
	}{
		{"open", func(r *fakeCapture) { r.openErr = errors.New("no such file") }, "failed to open PCAP file"},
		{"filter", func(r *fakeCapture) { r.filterErr = errors.New("bad filter") }, "failed to set BPF filter"},
		{"read", func(r *fakeCapture) { r.readErr = errors.New("truncated capture") }, "truncated capture"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			reader := newFakeCapture()
			tt.setup(reader)
			f := parse.FamilyFor(parse.ModelRS16)
			d := NewDispatcher(parse.NewDecoder(f, parse.DefaultConfig(f)), nil, nil)

			_, err := Replay(context.Background(), &fakeCaptureFactory{capture: reader}, "x.pcap", ReplayOptions{}, d)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestReplay_Cancelled(t *testing.T) {
	t.Parallel()

	f := parse.FamilyFor(parse.ModelRS16)
	reader := newFakeCapture()
	reader.add(testutil.FullMsopPacket(f, 0, 20, 1000, 1), time.Now(), 6699)
	d := NewDispatcher(parse.NewDecoder(f, parse.DefaultConfig(f)), nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sum, err := Replay(ctx, &fakeCaptureFactory{capture: reader}, "x.pcap", ReplayOptions{}, d)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, sum.Packets)
}

func TestReplay_Pacing(t *testing.T) {
	t.Parallel()

	f := parse.FamilyFor(parse.ModelRS16)
	base := time.Now()
	reader := newFakeCapture()
	for i := 0; i < 3; i++ {
		reader.add(testutil.FullMsopPacket(f, i*300, 20, 1000, 1), base.Add(time.Duration(i)*40*time.Millisecond), 6699)
	}
	d := NewDispatcher(parse.NewDecoder(f, parse.DefaultConfig(f)), nil, nil)

	sum, err := Replay(context.Background(), &fakeCaptureFactory{capture: reader}, "x.pcap", ReplayOptions{Speed: 2, Ports: []int{6699}}, d)
	require.NoError(t, err)
	assert.Equal(t, 3, sum.Packets)
	assert.GreaterOrEqual(t, sum.Elapsed, 40*time.Millisecond)
	assert.Equal(t, "udp port 6699", reader.filter)
}

func TestReplay_PacingCancelled(t *testing.T) {
	t.Parallel()

	f := parse.FamilyFor(parse.ModelRS16)
	base := time.Now()
	reader := newFakeCapture()
	reader.add(testutil.FullMsopPacket(f, 0, 20, 1000, 1), base, 6699)
	reader.add(testutil.FullMsopPacket(f, 300, 20, 1000, 1), base.Add(time.Hour), 6699)
	d := NewDispatcher(parse.NewDecoder(f, parse.DefaultConfig(f)), nil, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	sum, err := Replay(ctx, &fakeCaptureFactory{capture: reader}, "x.pcap", ReplayOptions{Speed: 1}, d)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, sum.Packets)
}
