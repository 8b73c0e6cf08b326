package lidar

import (
	"fmt"
	"log"
	"sync"
	"time"
)

// PacketStats tracks packet statistics with thread-safe operations
type PacketStats struct {
	mu           sync.Mutex
	packetCount  int64
	difopCount   int64
	byteCount    int64
	droppedCount int64
	pointCount   int64
	validCount   int64
	revolutions  int64
	lastReset    time.Time
}

// StatsSnapshot is the set of counters accumulated since the last reset.
type StatsSnapshot struct {
	Packets     int64
	Difop       int64
	Bytes       int64
	Dropped     int64
	Points      int64
	ValidPoints int64
	Revolutions int64
	Duration    time.Duration
}

// NewPacketStats creates a new PacketStats instance
func NewPacketStats() *PacketStats {
	return &PacketStats{
		lastReset: time.Now(),
	}
}

// AddPacket increments packet count and byte count
func (ps *PacketStats) AddPacket(bytes int) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.packetCount++
	ps.byteCount += int64(bytes)
}

// AddDifop increments the device-info packet count
func (ps *PacketStats) AddDifop() {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.difopCount++
}

// AddDropped increments dropped packet count
func (ps *PacketStats) AddDropped() {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.droppedCount++
}

// AddPoints records emitted point slots and how many of them were valid
func (ps *PacketStats) AddPoints(count, valid int) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.pointCount += int64(count)
	ps.validCount += int64(valid)
}

// AddRevolution increments the completed revolution count
func (ps *PacketStats) AddRevolution() {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.revolutions++
}

// GetAndReset returns current stats and resets counters
func (ps *PacketStats) GetAndReset() StatsSnapshot {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	now := time.Now()
	snap := StatsSnapshot{
		Packets:     ps.packetCount,
		Difop:       ps.difopCount,
		Bytes:       ps.byteCount,
		Dropped:     ps.droppedCount,
		Points:      ps.pointCount,
		ValidPoints: ps.validCount,
		Revolutions: ps.revolutions,
		Duration:    now.Sub(ps.lastReset),
	}

	ps.packetCount = 0
	ps.difopCount = 0
	ps.byteCount = 0
	ps.droppedCount = 0
	ps.pointCount = 0
	ps.validCount = 0
	ps.revolutions = 0
	ps.lastReset = now

	return snap
}

// LogStats logs formatted statistics with the specified format
func (ps *PacketStats) LogStats(parsePackets bool) {
	s := ps.GetAndReset()
	if s.Packets == 0 && s.Dropped == 0 {
		return
	}
	secs := s.Duration.Seconds()
	if secs <= 0 {
		return
	}
	packetsPerSec := float64(s.Packets) / secs
	mbPerSec := float64(s.Bytes) / secs / (1024 * 1024)

	logMsg := fmt.Sprintf("Lidar stats (/sec): %.2f MB, %.1f packets", mbPerSec, packetsPerSec)
	if parsePackets && s.Points > 0 {
		logMsg += fmt.Sprintf(", %s points (%s valid), %.2f rev",
			FormatWithCommas(int64(float64(s.Points)/secs)),
			FormatWithCommas(int64(float64(s.ValidPoints)/secs)),
			float64(s.Revolutions)/secs)
	}
	if s.Difop > 0 {
		logMsg += fmt.Sprintf(", %d difop", s.Difop)
	}
	if s.Dropped > 0 {
		logMsg += fmt.Sprintf(", %d dropped", s.Dropped)
	}

	log.Print(logMsg)
}

// FormatWithCommas formats a number with thousands separators
func FormatWithCommas(n int64) string {
	str := fmt.Sprintf("%d", n)
	neg := false
	if n < 0 {
		neg = true
		str = str[1:]
	}
	if len(str) <= 3 {
		if neg {
			return "-" + str
		}
		return str
	}

	result := ""
	for i, char := range str {
		if i > 0 && (len(str)-i)%3 == 0 {
			result += ","
		}
		result += string(char)
	}
	if neg {
		return "-" + result
	}
	return result
}

// RevolutionCounter detects revolution boundaries from the first azimuth of
// consecutive MSOP packets. A boundary is reported when the azimuth falls
// back, i.e. the motor crossed 0°.
type RevolutionCounter struct {
	mu      sync.Mutex
	last    int
	started bool
	count   int64
}

// Observe records the first azimuth (centidegrees) of a decoded packet and
// reports whether it starts a new revolution. Negative azimuths (decode
// failures) are ignored.
func (r *RevolutionCounter) Observe(firstAzimuth int) bool {
	if firstAzimuth < 0 {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	rolled := r.started && firstAzimuth < r.last
	if rolled {
		r.count++
	}
	r.last = firstAzimuth
	r.started = true
	return rolled
}

// Count returns the number of boundaries observed so far.
func (r *RevolutionCounter) Count() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}
