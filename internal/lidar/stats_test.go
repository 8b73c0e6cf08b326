package lidar

import (
	"bytes"
	"log"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPacketStats_GetAndReset(t *testing.T) {
	t.Parallel()

	ps := NewPacketStats()
	ps.AddPacket(1248)
	ps.AddPacket(1248)
	ps.AddDifop()
	ps.AddDropped()
	ps.AddPoints(384, 300)
	ps.AddRevolution()

	s := ps.GetAndReset()
	assert.Equal(t, int64(2), s.Packets)
	assert.Equal(t, int64(2496), s.Bytes)
	assert.Equal(t, int64(1), s.Difop)
	assert.Equal(t, int64(1), s.Dropped)
	assert.Equal(t, int64(384), s.Points)
	assert.Equal(t, int64(300), s.ValidPoints)
	assert.Equal(t, int64(1), s.Revolutions)
	assert.GreaterOrEqual(t, s.Duration.Nanoseconds(), int64(0))

	s = ps.GetAndReset()
	s.Duration = 0
	assert.Equal(t, StatsSnapshot{}, s)
}

func TestPacketStats_Concurrent(t *testing.T) {
	t.Parallel()

	ps := NewPacketStats()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				ps.AddPacket(10)
				ps.AddPoints(2, 1)
			}
		}()
	}
	wg.Wait()

	s := ps.GetAndReset()
	assert.Equal(t, int64(800), s.Packets)
	assert.Equal(t, int64(8000), s.Bytes)
	assert.Equal(t, int64(1600), s.Points)
	assert.Equal(t, int64(800), s.ValidPoints)
}

// LogStats writes through the standard logger, so these tests do not run
// in parallel.
func captureLog(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := log.Writer()
	log.SetOutput(&buf)
	t.Cleanup(func() { log.SetOutput(prev) })
	return &buf
}

func TestPacketStats_LogStats(t *testing.T) {
	buf := captureLog(t)

	ps := NewPacketStats()
	ps.AddPacket(1248)
	ps.AddDifop()
	ps.AddDropped()
	ps.AddPoints(384, 384)
	ps.LogStats(true)

	out := buf.String()
	assert.Contains(t, out, "Lidar stats (/sec)")
	assert.Contains(t, out, "points")
	assert.Contains(t, out, "1 difop")
	assert.Contains(t, out, "1 dropped")
}

func TestPacketStats_LogStatsWithoutParsing(t *testing.T) {
	buf := captureLog(t)

	ps := NewPacketStats()
	ps.AddPacket(1248)
	ps.AddPoints(384, 384)
	ps.LogStats(false)

	out := buf.String()
	assert.Contains(t, out, "packets")
	assert.NotContains(t, out, "points")
}

func TestPacketStats_LogStatsIdle(t *testing.T) {
	buf := captureLog(t)

	NewPacketStats().LogStats(true)
	assert.Empty(t, strings.TrimSpace(buf.String()))
}

func TestFormatWithCommas(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   int64
		want string
	}{
		{0, "0"},
		{999, "999"},
		{1000, "1,000"},
		{123456, "123,456"},
		{1234567, "1,234,567"},
		{-42, "-42"},
		{-1234567, "-1,234,567"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatWithCommas(tt.in), "FormatWithCommas(%d)", tt.in)
	}
}

func TestRevolutionCounter(t *testing.T) {
	t.Parallel()

	var r RevolutionCounter
	var rolled []bool
	for _, az := range []int{35000, 35500, 100, 600, -1, 35900, 200} {
		rolled = append(rolled, r.Observe(az))
	}
	require.Equal(t, []bool{false, false, true, false, false, false, true}, rolled)
	assert.Equal(t, int64(2), r.Count())
}

func TestRevolutionCounter_IgnoresFailuresBeforeStart(t *testing.T) {
	t.Parallel()

	var r RevolutionCounter
	assert.False(t, r.Observe(-2))
	assert.False(t, r.Observe(100), "first valid azimuth only seeds the counter")
	assert.True(t, r.Observe(50))
	assert.Equal(t, int64(1), r.Count())
}
