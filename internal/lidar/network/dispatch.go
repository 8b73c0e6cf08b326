package network

import (
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/banshee-data/rslidar/internal/lidar"
	"github.com/banshee-data/rslidar/internal/lidar/parse"
)

// ErrUnknownPacket marks a datagram that carries neither the MSOP nor the
// DIFOP sync marker of the configured family.
var ErrUnknownPacket = errors.New("unrecognised lidar datagram")

// PacketStatsInterface provides packet statistics management
type PacketStatsInterface interface {
	AddPacket(bytes int)
	AddDifop()
	AddDropped()
	AddPoints(count, valid int)
	AddRevolution()
	LogStats(parsePackets bool)
}

// noopStats is a PacketStatsInterface implementation that does nothing.
// It is used as a safe default when no stats collector is provided.
type noopStats struct{}

func (n *noopStats) AddPacket(bytes int)        {}
func (n *noopStats) AddDifop()                  {}
func (n *noopStats) AddDropped()                {}
func (n *noopStats) AddPoints(count, valid int) {}
func (n *noopStats) AddRevolution()             {}
func (n *noopStats) LogStats(parsePackets bool) {}

// Decoder is the part of *parse.Decoder the ingest path needs.
type Decoder interface {
	Family() *parse.Family
	AppendMsop(dst []lidar.Point, b []byte) (int, []lidar.Point, error)
	DecodeDifop(b []byte) (parse.DifopStatus, error)
}

// PointSink receives the points of every decoded MSOP packet. The slice is
// reused once ConsumePoints returns; sinks that keep points must copy them.
type PointSink interface {
	ConsumePoints(firstAzimuth int, points []lidar.Point)
}

// Dispatcher routes raw datagrams to the decoder by sync marker and feeds
// the results to the stats collector and an optional point sink. It is
// shared by the UDP listener and PCAP replay.
type Dispatcher struct {
	decoder Decoder
	stats   PacketStatsInterface
	sink    PointSink
	revs    lidar.RevolutionCounter

	mu  sync.Mutex // guards buf
	buf []lidar.Point
}

// NewDispatcher returns a dispatcher. stats and sink may be nil.
func NewDispatcher(decoder Decoder, stats PacketStatsInterface, sink PointSink) *Dispatcher {
	if stats == nil {
		stats = &noopStats{}
	}
	return &Dispatcher{decoder: decoder, stats: stats, sink: sink}
}

// Revolutions returns the number of revolution boundaries seen so far.
func (d *Dispatcher) Revolutions() int64 {
	return d.revs.Count()
}

// HandlePacket classifies and decodes one datagram. Errors are per packet;
// the dispatcher stays usable.
func (d *Dispatcher) HandlePacket(packet []byte) error {
	d.stats.AddPacket(len(packet))

	switch parse.Classify(d.decoder.Family(), packet) {
	case parse.PacketMsop:
		return d.handleMsop(packet)
	case parse.PacketDifop:
		return d.handleDifop(packet)
	default:
		d.stats.AddDropped()
		return fmt.Errorf("%d byte datagram: %w", len(packet), ErrUnknownPacket)
	}
}

func (d *Dispatcher) handleMsop(packet []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	first, points, err := d.decoder.AppendMsop(d.buf[:0], packet)
	d.buf = points
	if err != nil {
		d.stats.AddDropped()
		return fmt.Errorf("msop: %w", err)
	}

	d.stats.AddPoints(len(points), lidar.CountValid(points))
	if d.revs.Observe(first) {
		d.stats.AddRevolution()
	}
	if d.sink != nil && len(points) > 0 {
		d.sink.ConsumePoints(first, points)
	}
	return nil
}

func (d *Dispatcher) handleDifop(packet []byte) error {
	status, err := d.decoder.DecodeDifop(packet)
	if err != nil {
		d.stats.AddDropped()
		return fmt.Errorf("difop: %w", err)
	}
	d.stats.AddDifop()
	if status.Err != nil {
		log.Printf("DIFOP applied with warnings: %v", status.Err)
	}
	return nil
}
