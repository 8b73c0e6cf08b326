package network

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"github.com/banshee-data/rslidar/internal/lidar/parse"
)

// ReplayOptions controls capture replay.
type ReplayOptions struct {
	// Ports restricts the BPF filter; empty means the default MSOP and
	// DIFOP ports.
	Ports []int
	// Speed scales capture-time pacing: 1 is real time, 2 twice as fast.
	// Zero replays as fast as the decoder allows.
	Speed float64
	// ProgressEvery logs progress after this many packets; 0 means 10000.
	ProgressEvery int
}

// ReplaySummary describes a finished replay.
type ReplaySummary struct {
	Packets      int
	Errors       int
	FirstCapture time.Time
	LastCapture  time.Time
	Elapsed      time.Duration
}

// PortFilter builds a BPF expression matching UDP traffic on any of ports.
func PortFilter(ports ...int) string {
	if len(ports) == 0 {
		ports = []int{parse.DEFAULT_MSOP_PORT, parse.DEFAULT_DIFOP_PORT}
	}
	terms := make([]string, len(ports))
	for i, p := range ports {
		terms[i] = fmt.Sprintf("udp port %d", p)
	}
	return strings.Join(terms, " or ")
}

// Replay feeds every UDP payload of a capture file to d. Decode errors are
// counted and logged, not returned; the replay only fails on reader errors
// or cancellation.
func Replay(ctx context.Context, factory PCAPReaderFactory, path string, opts ReplayOptions, d *Dispatcher) (sum ReplaySummary, err error) {
	reader := factory.NewReader()
	if err := reader.Open(path); err != nil {
		return sum, fmt.Errorf("failed to open PCAP file %s: %w", path, err)
	}
	defer reader.Close()

	filter := PortFilter(opts.Ports...)
	if err := reader.SetBPFFilter(filter); err != nil {
		return sum, fmt.Errorf("failed to set BPF filter '%s': %w", filter, err)
	}
	log.Printf("PCAP BPF filter set: %s", filter)

	progress := opts.ProgressEvery
	if progress <= 0 {
		progress = 10000
	}

	start := time.Now()
	defer func() { sum.Elapsed = time.Since(start) }()

	for {
		if ctx.Err() != nil {
			log.Printf("PCAP replay stopping due to context cancellation (processed %d packets)", sum.Packets)
			return sum, ctx.Err()
		}

		pkt, err := reader.NextPacket()
		if errors.Is(err, io.EOF) || (err == nil && pkt == nil) {
			log.Printf("PCAP replay complete: %d packets, %d errors in %v", sum.Packets, sum.Errors, time.Since(start))
			return sum, nil
		}
		if err != nil {
			return sum, fmt.Errorf("reading %s after %d packets: %w", path, sum.Packets, err)
		}
		if len(pkt.Data) == 0 {
			continue
		}

		if opts.Speed > 0 && !sum.LastCapture.IsZero() {
			if err := pace(ctx, pkt.Timestamp.Sub(sum.LastCapture), opts.Speed); err != nil {
				return sum, err
			}
		}
		if sum.FirstCapture.IsZero() {
			sum.FirstCapture = pkt.Timestamp
		}
		sum.LastCapture = pkt.Timestamp
		sum.Packets++

		if err := d.HandlePacket(pkt.Data); err != nil {
			sum.Errors++
			log.Printf("Error decoding PCAP packet %d (port %d): %v", sum.Packets, pkt.DstPort, err)
		}

		if sum.Packets%progress == 0 {
			elapsed := time.Since(start)
			log.Printf("PCAP progress: %d packets processed in %v (%.0f pkt/s)",
				sum.Packets, elapsed, float64(sum.Packets)/elapsed.Seconds())
		}
	}
}

// pace sleeps for the capture gap scaled by speed. Backwards or zero gaps
// do not sleep.
func pace(ctx context.Context, gap time.Duration, speed float64) error {
	if gap <= 0 {
		return nil
	}
	timer := time.NewTimer(time.Duration(float64(gap) / speed))
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
